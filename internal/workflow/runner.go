package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/example/paygate/tools/flowcheck/internal/client"
	"github.com/example/paygate/tools/flowcheck/internal/envelope"
	"github.com/example/paygate/tools/flowcheck/internal/session"
)

// Doer dispatches a single HTTP request.
type Doer interface {
	Do(ctx context.Context, req client.Request) (*client.Response, error)
}

// RunnerConfig holds configuration for the workflow runner.
type RunnerConfig struct {
	// Client dispatches the HTTP requests.
	Client Doer

	// Pace spaces out step dispatches. Zero disables pacing.
	Pace time.Duration

	// OnStepStart is called before a step is dispatched. Skipped steps
	// never trigger it.
	OnStepStart func(stepIndex int, step Step)

	// OnStepComplete is called once per step with its report, including
	// steps recorded as skipped.
	OnStepComplete func(stepIndex int, step Step, report StepReport)
}

// Runner executes workflows one step at a time.
type Runner struct {
	config  RunnerConfig
	limiter *rate.Limiter

	// For testing
	nowFunc func() time.Time
}

// Outcome classifies how a step ended.
type Outcome string

const (
	// OutcomeSuccess means the step ran and passed every check.
	OutcomeSuccess Outcome = "success"
	// OutcomeFailure means the step failed one of its checks.
	OutcomeFailure Outcome = "failure"
	// OutcomeSkipped means the step was never dispatched because an
	// earlier step failed.
	OutcomeSkipped Outcome = "skipped"
)

// StepReport holds the result of a single step.
type StepReport struct {
	// StepIndex is the 0-based index of the step.
	StepIndex int

	// StepName is the name of the step.
	StepName string

	// Outcome classifies how the step ended.
	Outcome Outcome

	// StatusCode is the HTTP status code received, 0 if no response.
	StatusCode int

	// ExpectedStatus is the status code the step required.
	ExpectedStatus int

	// Extracted is the value pulled from the response, nil for
	// status-only steps.
	Extracted any

	// Detail is a human-readable account of the failure, empty on success.
	Detail string

	// Duration is the time taken to execute the step.
	Duration time.Duration

	// Err holds the failure, nil for success and skipped.
	Err error
}

// Report holds the result of a complete run.
type Report struct {
	// RunID uniquely identifies this run.
	RunID string

	// WorkflowName is the name of the executed workflow.
	WorkflowName string

	// Success is true when every step succeeded.
	Success bool

	// StartedAt and FinishedAt bound the run.
	StartedAt  time.Time
	FinishedAt time.Time

	// Duration is the total wall time of the run.
	Duration time.Duration

	// Steps holds one report per workflow step, in order.
	Steps []StepReport

	// SucceededSteps and SkippedSteps count step outcomes.
	SucceededSteps int
	SkippedSteps   int

	// FailedStep is the name of the step that halted the run, empty on
	// success.
	FailedStep string

	// Error holds the failure that halted the run, nil on success.
	Error error
}

// NewRunner creates a workflow runner.
func NewRunner(config RunnerConfig) (*Runner, error) {
	if config.Client == nil {
		return nil, fmt.Errorf("HTTP client is required")
	}

	r := &Runner{
		config:  config,
		nowFunc: time.Now,
	}

	if config.Pace > 0 {
		r.limiter = rate.NewLimiter(rate.Every(config.Pace), 1)
	}

	return r, nil
}

// WithNowFunc sets a custom time function for testing.
// IMPORTANT: This method is NOT thread-safe. It must be called during
// initialization, before Run.
func (r *Runner) WithNowFunc(fn func() time.Time) *Runner {
	r.nowFunc = fn
	return r
}

// Run executes the workflow against a fresh session. The returned error is
// non-nil only when the workflow definition itself is invalid; step failures
// are recorded in the report.
func (r *Runner) Run(ctx context.Context, wf Workflow) (*Report, error) {
	if err := wf.Validate(); err != nil {
		return nil, err
	}

	report := &Report{
		RunID:        uuid.NewString(),
		WorkflowName: wf.Name,
		StartedAt:    r.nowFunc(),
		Steps:        make([]StepReport, 0, len(wf.Steps)),
	}

	state := session.New()

	for i, step := range wf.Steps {
		if report.Error != nil {
			skipped := StepReport{
				StepIndex: i,
				StepName:  step.Name,
				Outcome:   OutcomeSkipped,
				Detail:    fmt.Sprintf("not executed: workflow halted at step %q", report.FailedStep),
			}
			report.Steps = append(report.Steps, skipped)
			report.SkippedSteps++

			if r.config.OnStepComplete != nil {
				r.config.OnStepComplete(i, step, skipped)
			}
			continue
		}

		if r.config.OnStepStart != nil {
			r.config.OnStepStart(i, step)
		}

		stepReport := r.runStep(ctx, i, step, state)
		report.Steps = append(report.Steps, stepReport)

		if r.config.OnStepComplete != nil {
			r.config.OnStepComplete(i, step, stepReport)
		}

		if stepReport.Outcome == OutcomeSuccess {
			report.SucceededSteps++
		} else {
			report.FailedStep = step.Name
			report.Error = stepReport.Err
		}
	}

	report.FinishedAt = r.nowFunc()
	report.Duration = report.FinishedAt.Sub(report.StartedAt)
	report.Success = report.Error == nil

	return report, nil
}

// runStep executes a single step against the session state.
func (r *Runner) runStep(ctx context.Context, index int, step Step, state *session.State) StepReport {
	started := r.nowFunc()

	report := StepReport{
		StepIndex:      index,
		StepName:       step.Name,
		Outcome:        OutcomeFailure,
		ExpectedStatus: step.ExpectedStatus,
	}

	fail := func(err error) StepReport {
		report.Err = err
		report.Detail = err.Error()
		report.Duration = r.nowFunc().Sub(started)
		return report
	}

	for _, key := range step.Requires {
		if !state.Has(key) {
			return fail(fmt.Errorf("%w: step %q requires %q", ErrPrerequisiteMissing, step.Name, key))
		}
	}

	req, err := step.Request(state)
	if err != nil {
		return fail(err)
	}

	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return fail(fmt.Errorf("%w: %v", ErrTransport, err))
		}
	}

	resp, err := r.config.Client.Do(ctx, req)
	if err != nil {
		return fail(fmt.Errorf("%w: %v", ErrTransport, err))
	}
	report.StatusCode = resp.StatusCode

	value, err := envelope.Validate(resp.StatusCode, resp.Body, step.ExpectedStatus, step.ExtractPath)
	if err != nil {
		return fail(err)
	}

	if step.ExtractPath != "" {
		report.Extracted = value.Any()
	}

	if step.Verify != nil {
		if err := step.Verify(state, value); err != nil {
			return fail(err)
		}
	}

	if step.Store != "" {
		state.Set(step.Store, value.Any())
	}

	report.Outcome = OutcomeSuccess
	report.Duration = r.nowFunc().Sub(started)
	return report
}
