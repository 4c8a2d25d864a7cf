// Package config provides the YAML run configuration for flowcheck.
// The main Config struct ties together the target system, the two actors
// the workflow plays, the monetary amounts it moves, and output settings.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Errors returned by the config package.
var (
	// ErrInvalidConfig is returned when the configuration is invalid.
	ErrInvalidConfig = errors.New("config: invalid configuration")
	// ErrConfigNotFound is returned when the config file is not found.
	ErrConfigNotFound = errors.New("config: configuration file not found")
)

// Config is the root configuration structure for a flowcheck run.
type Config struct {
	// Name is a descriptive name for this configuration.
	Name string `yaml:"name" json:"name"`

	// Description provides additional context about the configuration.
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// Target is the ledger API under test.
	Target TargetConfig `yaml:"target" json:"target"`

	// Actors configures the sender and receiver identities.
	Actors ActorsConfig `yaml:"actors,omitempty" json:"actors,omitempty"`

	// Amounts configures the monetary amounts the workflow moves.
	Amounts AmountsConfig `yaml:"amounts,omitempty" json:"amounts,omitempty"`

	// TopupMethod is the payment method recorded on the top-up.
	// Default: "shopeepay"
	TopupMethod string `yaml:"topupMethod,omitempty" json:"topupMethod,omitempty"`

	// Pace spaces out step dispatches. Zero disables pacing.
	Pace time.Duration `yaml:"pace,omitempty" json:"pace,omitempty"`

	// Preflight prepends a health check step to the workflow.
	Preflight bool `yaml:"preflight,omitempty" json:"preflight,omitempty"`

	// Output configures report rendering.
	Output OutputConfig `yaml:"output,omitempty" json:"output,omitempty"`

	// Prometheus configures the optional metrics endpoint.
	Prometheus PrometheusConfig `yaml:"prometheus,omitempty" json:"prometheus,omitempty"`
}

// TargetConfig holds target system configuration.
type TargetConfig struct {
	// BaseURL is the base URL of the ledger API (e.g. "http://localhost:5000").
	BaseURL string `yaml:"baseURL" json:"baseURL"`

	// Timeout is the per-request timeout.
	// Default: 30s
	Timeout time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`

	// TLSSkipVerify skips TLS certificate verification (for testing only).
	TLSSkipVerify bool `yaml:"tlsSkipVerify,omitempty" json:"tlsSkipVerify,omitempty"`

	// Headers are additional headers to include in all requests.
	Headers map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
}

// ActorsConfig configures the two identities a run registers and drives.
type ActorsConfig struct {
	// Sender is the actor that is provisioned with a balance and transfers
	// money out.
	Sender ActorConfig `yaml:"sender,omitempty" json:"sender,omitempty"`

	// Receiver is the actor that tops up, receives the transfer, and
	// withdraws.
	Receiver ActorConfig `yaml:"receiver,omitempty" json:"receiver,omitempty"`

	// EmailDomain is the domain of the generated per-run emails.
	// Default: "example.com"
	EmailDomain string `yaml:"emailDomain,omitempty" json:"emailDomain,omitempty"`

	// Password is the shared account password.
	// Default: "password123"
	Password string `yaml:"password,omitempty" json:"password,omitempty"`

	// Randomize replaces the configured names with generated ones.
	Randomize bool `yaml:"randomize,omitempty" json:"randomize,omitempty"`
}

// ActorConfig describes one actor identity.
type ActorConfig struct {
	// FirstName is the actor's first name.
	FirstName string `yaml:"firstname,omitempty" json:"firstname,omitempty"`

	// LastName is the actor's last name.
	LastName string `yaml:"lastname,omitempty" json:"lastname,omitempty"`

	// EmailStem is the local-part prefix of the generated email.
	// Default: lowercase first name.
	EmailStem string `yaml:"emailStem,omitempty" json:"emailStem,omitempty"`
}

// AmountsConfig configures the amounts the workflow moves. The ledger API
// enforces its own minimums; flowcheck only requires amounts to be positive.
type AmountsConfig struct {
	// InitialBalance is the sender's provisioned balance.
	// Default: 100000
	InitialBalance int64 `yaml:"initialBalance,omitempty" json:"initialBalance,omitempty"`

	// Topup is the receiver's top-up amount.
	// Default: 300000
	Topup int64 `yaml:"topup,omitempty" json:"topup,omitempty"`

	// Transfer is the sender-to-receiver transfer amount.
	// Default: 50000
	Transfer int64 `yaml:"transfer,omitempty" json:"transfer,omitempty"`

	// Withdraw is the receiver's withdrawal amount.
	// Default: 50001
	Withdraw int64 `yaml:"withdraw,omitempty" json:"withdraw,omitempty"`
}

// OutputConfig configures report rendering.
type OutputConfig struct {
	// Type is the output type: "console", "json", or "console,json".
	// Default: "console"
	Type string `yaml:"type,omitempty" json:"type,omitempty"`

	// Path is the JSON report file path. Supports {{.Timestamp}} expansion.
	Path string `yaml:"path,omitempty" json:"path,omitempty"`

	// Verbose enables verbose output.
	Verbose bool `yaml:"verbose,omitempty" json:"verbose,omitempty"`

	// NoColor disables ANSI colors on console output.
	NoColor bool `yaml:"noColor,omitempty" json:"noColor,omitempty"`
}

// PrometheusConfig configures the optional metrics endpoint.
type PrometheusConfig struct {
	// Enabled turns the exporter on.
	Enabled bool `yaml:"enabled,omitempty" json:"enabled,omitempty"`

	// Port is the HTTP port for the metrics endpoint.
	// Default: 9090
	Port int `yaml:"port,omitempty" json:"port,omitempty"`

	// Path is the URL path for the metrics endpoint.
	// Default: /metrics
	Path string `yaml:"path,omitempty" json:"path,omitempty"`
}

// LoadFromFile loads configuration from a YAML file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	return LoadFromBytes(data)
}

// LoadFromBytes loads configuration from YAML bytes.
func LoadFromBytes(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()
	return &cfg, nil
}

// Validate validates the configuration. Zero values for optional fields are
// accepted and later filled in by ApplyDefaults.
func (c *Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidConfig)
	}

	if c.Target.BaseURL == "" {
		return fmt.Errorf("%w: target.baseURL is required", ErrInvalidConfig)
	}

	if _, err := url.Parse(c.Target.BaseURL); err != nil {
		return fmt.Errorf("%w: target.baseURL: %v", ErrInvalidConfig, err)
	}

	if c.Target.Timeout < 0 {
		return fmt.Errorf("%w: target.timeout cannot be negative", ErrInvalidConfig)
	}

	if c.Pace < 0 {
		return fmt.Errorf("%w: pace cannot be negative", ErrInvalidConfig)
	}

	if c.Amounts.InitialBalance < 0 {
		return fmt.Errorf("%w: amounts.initialBalance cannot be negative", ErrInvalidConfig)
	}
	if c.Amounts.Topup < 0 {
		return fmt.Errorf("%w: amounts.topup cannot be negative", ErrInvalidConfig)
	}
	if c.Amounts.Transfer < 0 {
		return fmt.Errorf("%w: amounts.transfer cannot be negative", ErrInvalidConfig)
	}
	if c.Amounts.Withdraw < 0 {
		return fmt.Errorf("%w: amounts.withdraw cannot be negative", ErrInvalidConfig)
	}

	if c.Prometheus.Port < 0 || c.Prometheus.Port > 65535 {
		return fmt.Errorf("%w: prometheus.port out of range", ErrInvalidConfig)
	}

	return nil
}

// ApplyDefaults applies default values to unset fields. The defaults mirror
// the scripted scenario the tool ships with: Alice funds her account and
// transfers to Bob, who tops up and withdraws.
func (c *Config) ApplyDefaults() {
	if c.Target.Timeout == 0 {
		c.Target.Timeout = 30 * time.Second
	}

	if c.Actors.Sender.FirstName == "" {
		c.Actors.Sender.FirstName = "Alice"
	}
	if c.Actors.Sender.LastName == "" {
		c.Actors.Sender.LastName = "Smith"
	}
	if c.Actors.Receiver.FirstName == "" {
		c.Actors.Receiver.FirstName = "Bob"
	}
	if c.Actors.Receiver.LastName == "" {
		c.Actors.Receiver.LastName = "Johnson"
	}
	if c.Actors.EmailDomain == "" {
		c.Actors.EmailDomain = "example.com"
	}
	if c.Actors.Password == "" {
		c.Actors.Password = "password123"
	}

	if c.Amounts.InitialBalance == 0 {
		c.Amounts.InitialBalance = 100000
	}
	if c.Amounts.Topup == 0 {
		c.Amounts.Topup = 300000
	}
	if c.Amounts.Transfer == 0 {
		c.Amounts.Transfer = 50000
	}
	if c.Amounts.Withdraw == 0 {
		c.Amounts.Withdraw = 50001
	}

	if c.TopupMethod == "" {
		c.TopupMethod = "shopeepay"
	}

	if c.Output.Type == "" {
		c.Output.Type = "console"
	}

	if c.Prometheus.Port == 0 {
		c.Prometheus.Port = 9090
	}
	if c.Prometheus.Path == "" {
		c.Prometheus.Path = "/metrics"
	}
}
