// Package client implements the HTTP adapter flowcheck uses to reach the
// ledger API. It owns connection setup, base URL handling, and per-request
// timeouts. Requests are dispatched exactly once: the workflows exercised by
// this tool create financial side effects, so failed calls are never retried.
package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/example/paygate/tools/flowcheck/internal/config"
)

// maxResponseSize caps response body reads.
const maxResponseSize = 10 * 1024 * 1024 // 10 MB

// Client is the HTTP adapter for the ledger API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	headers    map[string]string
	mu         sync.RWMutex
}

// Request describes a single HTTP request to the ledger API.
type Request struct {
	// Method is the HTTP method (GET, POST, ...).
	Method string

	// Path is the endpoint path, e.g. "/api/auth/register".
	Path string

	// Headers are request-specific headers. Bearer tokens ride here so the
	// two actors of a run can hold separate identities.
	Headers map[string]string

	// Body is JSON-marshaled into the request body when non-nil.
	Body any
}

// Response is the outcome of a dispatched request. Non-2xx statuses are not
// errors; callers inspect the status code and body.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// NewClient creates a client for the configured target.
func NewClient(cfg config.TargetConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}

	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.TLSSkipVerify,
		},
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}

	client := &Client{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
		},
		baseURL: cfg.BaseURL,
		headers: make(map[string]string),
	}

	client.headers["Content-Type"] = "application/json"
	client.headers["Accept"] = "application/json"
	client.headers["User-Agent"] = "PayGate-FlowCheck/1.0"

	for k, v := range cfg.Headers {
		client.headers[k] = v
	}

	return client, nil
}

// Do executes a request once and returns the response. A non-nil error means
// the request never produced a response (connection refused, timeout, DNS
// failure, canceled context); HTTP-level failures are reported through the
// response's status code instead.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	u, err := c.buildURL(req.Path)
	if err != nil {
		return nil, fmt.Errorf("building URL: %w", err)
	}

	var bodyReader io.Reader
	if req.Body != nil {
		bodyBytes, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, u.String(), bodyReader)
	if err != nil {
		return nil, fmt.Errorf("creating HTTP request: %w", err)
	}

	c.setHeaders(httpReq, req.Headers)

	start := time.Now()
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	return &Response{
		StatusCode: httpResp.StatusCode,
		Headers:    httpResp.Header,
		Body:       body,
		Duration:   time.Since(start),
	}, nil
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, path string, headers map[string]string) (*Response, error) {
	return c.Do(ctx, Request{
		Method:  http.MethodGet,
		Path:    path,
		Headers: headers,
	})
}

// Post performs a POST request with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body any, headers map[string]string) (*Response, error) {
	return c.Do(ctx, Request{
		Method:  http.MethodPost,
		Path:    path,
		Headers: headers,
		Body:    body,
	})
}

// buildURL joins the base URL with an endpoint path.
func (c *Client) buildURL(path string) (*url.URL, error) {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	baseURL, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}

	u, err := baseURL.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}

	return u, nil
}

// setHeaders applies default then request-specific headers.
func (c *Client) setHeaders(req *http.Request, requestHeaders map[string]string) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	for k, v := range requestHeaders {
		req.Header.Set(k, v)
	}
}

// SetHeader sets a default header for all requests.
func (c *Client) SetHeader(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.headers[key] = value
}

// BaseURL returns the client's base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}
