package scenario

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/paygate/tools/flowcheck/internal/client"
	"github.com/example/paygate/tools/flowcheck/internal/config"
	"github.com/example/paygate/tools/flowcheck/internal/envelope"
	"github.com/example/paygate/tools/flowcheck/internal/generator"
	"github.com/example/paygate/tools/flowcheck/internal/session"
	"github.com/example/paygate/tools/flowcheck/internal/workflow"
)

// mockClient is a scripted client for testing.
type mockClient struct {
	mu        sync.Mutex
	responses []mockResponse
	calls     []mockCall
	callIndex int
}

type mockResponse struct {
	statusCode int
	body       string
	err        error
}

type mockCall struct {
	method  string
	path    string
	headers map[string]string
	body    any
}

func newMockClient(responses ...mockResponse) *mockClient {
	return &mockClient{
		responses: responses,
		calls:     make([]mockCall, 0),
	}
}

func (m *mockClient) Do(ctx context.Context, req client.Request) (*client.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, mockCall{
		method:  req.Method,
		path:    req.Path,
		headers: req.Headers,
		body:    req.Body,
	})

	if m.callIndex >= len(m.responses) {
		return &client.Response{
			StatusCode: 200,
			Body:       []byte(`{"status":"success","data":{}}`),
		}, nil
	}

	resp := m.responses[m.callIndex]
	m.callIndex++

	if resp.err != nil {
		return nil, resp.err
	}

	return &client.Response{
		StatusCode: resp.statusCode,
		Body:       []byte(resp.body),
	}, nil
}

func (m *mockClient) getCalls() []mockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mockCall{}, m.calls...)
}

func testGenerator() *generator.Generator {
	now := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	return generator.New().WithNowFunc(func() time.Time { return now })
}

func defaultParams() Params {
	g := testGenerator()
	return Params{
		Sender: g.Actor(generator.ActorSpec{
			FirstName: "Alice", LastName: "Smith",
			EmailStem: "alice", EmailDomain: "example.com", Password: "password123",
		}),
		Receiver: g.Actor(generator.ActorSpec{
			FirstName: "Bob", LastName: "Johnson",
			EmailStem: "bob", EmailDomain: "example.com", Password: "password123",
		}),
		InitialBalance: 100000,
		TopupAmount:    300000,
		TopupMethod:    "shopeepay",
		TransferAmount: 50000,
		WithdrawAmount: 50001,
	}
}

// happyResponses scripts the full ten-step flow: two registrations, two
// logins, two identity checks, then saldo, topup, transfer, withdraw.
func happyResponses() []mockResponse {
	return []mockResponse{
		{statusCode: 200, body: `{"status":"success","message":"Register success","data":{"id":1,"firstname":"Alice"}}`},
		{statusCode: 200, body: `{"status":"success","message":"Register success","data":{"id":2,"firstname":"Bob"}}`},
		{statusCode: 200, body: `{"status":"success","message":"Login success","data":"jwt-sender"}`},
		{statusCode: 200, body: `{"status":"success","message":"Login success","data":"jwt-receiver"}`},
		{statusCode: 200, body: `{"status":"success","data":{"id":1,"email":"alice@example.com"}}`},
		{statusCode: 200, body: `{"status":"success","data":{"id":2,"email":"bob@example.com"}}`},
		{statusCode: 201, body: `{"status":"success","data":{"id":11,"total_balance":100000}}`},
		{statusCode: 201, body: `{"status":"success","data":{"topup_id":21,"topup_amount":300000}}`},
		{statusCode: 201, body: `{"status":"success","data":{"transfer_id":31}}`},
		{statusCode: 201, body: `{"status":"success","data":{"withdraw_id":41}}`},
	}
}

func TestBuild_WorkflowIsValid(t *testing.T) {
	wf := Build(defaultParams(), testGenerator())
	require.NoError(t, wf.Validate())
	assert.Len(t, wf.Steps, 10)
}

func TestBuild_WithPreflightIsValid(t *testing.T) {
	p := defaultParams()
	p.Preflight = true
	wf := Build(p, testGenerator())
	require.NoError(t, wf.Validate())
	require.Len(t, wf.Steps, 11)
	assert.Equal(t, "health_check", wf.Steps[0].Name)
}

func TestBuild_StepOrder(t *testing.T) {
	wf := Build(defaultParams(), testGenerator())

	names := make([]string, 0, len(wf.Steps))
	for _, step := range wf.Steps {
		names = append(names, step.Name)
	}

	assert.Equal(t, []string{
		"register_sender",
		"register_receiver",
		"login_sender",
		"login_receiver",
		"whoami_sender",
		"whoami_receiver",
		"create_saldo",
		"create_topup",
		"create_transfer",
		"create_withdraw",
	}, names)
}

func TestScenario_EndToEnd(t *testing.T) {
	mock := newMockClient(happyResponses()...)
	runner, err := workflow.NewRunner(workflow.RunnerConfig{Client: mock})
	require.NoError(t, err)

	wf := Build(defaultParams(), testGenerator())

	report, err := runner.Run(context.Background(), wf)
	require.NoError(t, err)
	assert.True(t, report.Success)
	assert.Equal(t, 10, report.SucceededSteps)
	assert.Equal(t, 0, report.SkippedSteps)
	assert.Empty(t, report.FailedStep)

	calls := mock.getCalls()
	require.Len(t, calls, 10)

	// Registration carries the full identity and repeats the password.
	assert.Equal(t, "POST", calls[0].method)
	assert.Equal(t, "/api/auth/register", calls[0].path)
	reg := calls[0].body.(registerRequest)
	assert.Equal(t, "Alice", reg.Firstname)
	assert.Equal(t, "Smith", reg.Lastname)
	assert.True(t, strings.HasPrefix(reg.Email, "alice_"))
	assert.True(t, strings.HasSuffix(reg.Email, "@example.com"))
	assert.Equal(t, "password123", reg.Password)
	assert.Equal(t, reg.Password, reg.ConfirmPassword)

	regReceiver := calls[1].body.(registerRequest)
	assert.Equal(t, "Bob", regReceiver.Firstname)
	assert.NotEqual(t, reg.Email, regReceiver.Email)

	// Logins reuse the registration credentials.
	assert.Equal(t, "/api/auth/login", calls[2].path)
	login := calls[2].body.(loginRequest)
	assert.Equal(t, reg.Email, login.Email)
	assert.Equal(t, "password123", login.Password)

	// Identity checks run under each actor's own token.
	assert.Equal(t, "GET", calls[4].method)
	assert.Equal(t, "/api/auth/me", calls[4].path)
	assert.Equal(t, "Bearer jwt-sender", calls[4].headers["Authorization"])
	assert.Equal(t, "Bearer jwt-receiver", calls[5].headers["Authorization"])

	// The sender funds the balance.
	assert.Equal(t, "/api/saldos", calls[6].path)
	assert.Equal(t, "Bearer jwt-sender", calls[6].headers["Authorization"])
	saldo := calls[6].body.(saldoRequest)
	assert.Equal(t, int64(1), saldo.UserID)
	assert.Equal(t, int64(100000), saldo.TotalBalance)

	// The receiver tops up with a generated reference number.
	assert.Equal(t, "/api/topups", calls[7].path)
	assert.Equal(t, "Bearer jwt-receiver", calls[7].headers["Authorization"])
	topup := calls[7].body.(topupRequest)
	assert.Equal(t, int64(2), topup.UserID)
	assert.True(t, strings.HasPrefix(topup.TopupNo, "TOPUP"))
	assert.Equal(t, int64(300000), topup.TopupAmount)
	assert.Equal(t, "shopeepay", topup.TopupMethod)

	// The transfer runs from the sender's account to the receiver's.
	assert.Equal(t, "/api/transfers", calls[8].path)
	assert.Equal(t, "Bearer jwt-sender", calls[8].headers["Authorization"])
	transfer := calls[8].body.(transferRequest)
	assert.Equal(t, int64(1), transfer.TransferFrom)
	assert.Equal(t, int64(2), transfer.TransferTo)
	assert.Equal(t, int64(50000), transfer.TransferAmount)

	// The withdrawal is stamped with a second-precision UTC instant.
	assert.Equal(t, "/api/withdraws", calls[9].path)
	assert.Equal(t, "Bearer jwt-receiver", calls[9].headers["Authorization"])
	withdraw := calls[9].body.(withdrawRequest)
	assert.Equal(t, int64(2), withdraw.UserID)
	assert.Equal(t, int64(50001), withdraw.WithdrawAmount)
	assert.Regexp(t, regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}Z$`), withdraw.WithdrawTime)

	// Extracted identifiers surface in the report.
	assert.Equal(t, int64(11), report.Steps[6].Extracted)
	assert.Equal(t, int64(21), report.Steps[7].Extracted)
	assert.Equal(t, int64(31), report.Steps[8].Extracted)
	assert.Equal(t, int64(41), report.Steps[9].Extracted)
}

func TestScenario_IdentityMismatchHaltsRun(t *testing.T) {
	responses := happyResponses()
	// The service resolves the sender's token to somebody else.
	responses[4] = mockResponse{statusCode: 200, body: `{"status":"success","data":{"id":99}}`}

	mock := newMockClient(responses...)
	runner, err := workflow.NewRunner(workflow.RunnerConfig{Client: mock})
	require.NoError(t, err)

	report, err := runner.Run(context.Background(), Build(defaultParams(), testGenerator()))
	require.NoError(t, err)

	assert.False(t, report.Success)
	assert.Equal(t, "whoami_sender", report.FailedStep)
	assert.ErrorIs(t, report.Error, workflow.ErrIdentityMismatch)
	assert.Contains(t, report.Error.Error(), "registered id 1")
	assert.Contains(t, report.Error.Error(), "authenticated id 99")

	// Nothing after the mismatch reaches the wire.
	assert.Len(t, mock.getCalls(), 5)
	assert.Equal(t, workflow.OutcomeSkipped, report.Steps[5].Outcome)
	assert.Equal(t, workflow.OutcomeSkipped, report.Steps[9].Outcome)
}

func TestScenario_SaldoRejectionSkipsDownstream(t *testing.T) {
	responses := happyResponses()[:6]
	responses = append(responses, mockResponse{
		statusCode: 400,
		body:       `{"status":"fail","message":"total_balance must be at least 50000"}`,
	})

	mock := newMockClient(responses...)
	runner, err := workflow.NewRunner(workflow.RunnerConfig{Client: mock})
	require.NoError(t, err)

	report, err := runner.Run(context.Background(), Build(defaultParams(), testGenerator()))
	require.NoError(t, err)

	assert.False(t, report.Success)
	assert.Equal(t, "create_saldo", report.FailedStep)
	assert.ErrorIs(t, report.Error, envelope.ErrStatusMismatch)
	assert.Contains(t, report.Error.Error(), "total_balance must be at least 50000")
	assert.Equal(t, 6, report.SucceededSteps)
	assert.Equal(t, 3, report.SkippedSteps)

	// Topup, transfer, and withdraw are never dispatched.
	assert.Len(t, mock.getCalls(), 7)
}

func TestScenario_ZeroTransferAmountNeverDispatches(t *testing.T) {
	p := defaultParams()
	p.TransferAmount = 0

	mock := newMockClient(happyResponses()...)
	runner, err := workflow.NewRunner(workflow.RunnerConfig{Client: mock})
	require.NoError(t, err)

	report, err := runner.Run(context.Background(), Build(p, testGenerator()))
	require.NoError(t, err)

	assert.False(t, report.Success)
	assert.Equal(t, "create_transfer", report.FailedStep)
	assert.ErrorIs(t, report.Error, workflow.ErrBusinessRule)
	assert.Contains(t, report.Error.Error(), "transfer amount must be positive")

	// The transfer is rejected before dispatch, so only the eight steps
	// ahead of it hit the wire.
	assert.Len(t, mock.getCalls(), 8)
	assert.Equal(t, workflow.OutcomeSkipped, report.Steps[9].Outcome)
}

func TestScenario_ZeroInitialBalanceNeverDispatches(t *testing.T) {
	p := defaultParams()
	p.InitialBalance = 0

	mock := newMockClient(happyResponses()...)
	runner, err := workflow.NewRunner(workflow.RunnerConfig{Client: mock})
	require.NoError(t, err)

	report, err := runner.Run(context.Background(), Build(p, testGenerator()))
	require.NoError(t, err)

	assert.False(t, report.Success)
	assert.Equal(t, "create_saldo", report.FailedStep)
	assert.ErrorIs(t, report.Error, workflow.ErrBusinessRule)
	assert.Contains(t, report.Error.Error(), "initial balance must be positive")

	// Only the six identity steps reach the wire; no money moves.
	assert.Len(t, mock.getCalls(), 6)
	assert.Equal(t, 3, report.SkippedSteps)
}

func TestScenario_PreflightRunsFirst(t *testing.T) {
	p := defaultParams()
	p.Preflight = true

	responses := append([]mockResponse{{statusCode: 200, body: `WELCOME TO PAYGATE`}}, happyResponses()...)
	mock := newMockClient(responses...)
	runner, err := workflow.NewRunner(workflow.RunnerConfig{Client: mock})
	require.NoError(t, err)

	report, err := runner.Run(context.Background(), Build(p, testGenerator()))
	require.NoError(t, err)

	assert.True(t, report.Success)
	assert.Equal(t, 11, report.SucceededSteps)

	calls := mock.getCalls()
	require.Len(t, calls, 11)
	assert.Equal(t, "GET", calls[0].method)
	assert.Equal(t, "/api/healthchecker", calls[0].path)
	assert.Nil(t, report.Steps[0].Extracted)
}

func TestScenario_UnhealthyServiceStopsEverything(t *testing.T) {
	p := defaultParams()
	p.Preflight = true

	mock := newMockClient(mockResponse{statusCode: 503, body: `service unavailable`})
	runner, err := workflow.NewRunner(workflow.RunnerConfig{Client: mock})
	require.NoError(t, err)

	report, err := runner.Run(context.Background(), Build(p, testGenerator()))
	require.NoError(t, err)

	assert.False(t, report.Success)
	assert.Equal(t, "health_check", report.FailedStep)
	assert.Equal(t, 10, report.SkippedSteps)
	assert.Len(t, mock.getCalls(), 1)
}

func TestCreateWithdraw_FreshTimestampPerCall(t *testing.T) {
	current := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	gen := generator.New().WithNowFunc(func() time.Time {
		now := current
		current = current.Add(time.Second)
		return now
	})

	step := createWithdraw(50001, gen)

	state := session.New()
	state.Set(KeyReceiverToken, "jwt-receiver")
	state.Set(KeyReceiverID, int64(2))

	first, err := step.Request(state)
	require.NoError(t, err)
	second, err := step.Request(state)
	require.NoError(t, err)

	// The timestamp is computed at dispatch time, never cached.
	assert.Equal(t, "2026-01-15T10:00:00Z", first.Body.(withdrawRequest).WithdrawTime)
	assert.Equal(t, "2026-01-15T10:00:01Z", second.Body.(withdrawRequest).WithdrawTime)
}

func TestFromConfig(t *testing.T) {
	cfg, err := config.LoadFromBytes([]byte(`
name: "staging smoke"
target:
  baseURL: "http://localhost:5000"
`))
	require.NoError(t, err)

	wf := FromConfig(cfg, testGenerator())
	require.NoError(t, wf.Validate())
	assert.Equal(t, "staging smoke", wf.Name)
	assert.Len(t, wf.Steps, 10)
}
