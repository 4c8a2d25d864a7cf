// Package workflow runs an ordered sequence of dependent API calls against
// a ledger service and records the outcome of every step. Steps declare the
// session keys they need and the key they store, so a workflow can be
// checked for ordering mistakes before a single request is sent. Execution
// is strictly sequential: the first failing step halts the run and every
// remaining step is reported as skipped, never dispatched.
package workflow

import (
	"errors"
	"fmt"

	"github.com/example/paygate/tools/flowcheck/internal/client"
	"github.com/example/paygate/tools/flowcheck/internal/envelope"
	"github.com/example/paygate/tools/flowcheck/internal/session"
)

// Errors returned by the workflow package.
var (
	// ErrInvalidWorkflow is returned when a workflow definition is invalid.
	ErrInvalidWorkflow = errors.New("workflow: invalid workflow definition")
	// ErrPrerequisiteMissing is returned when a step needs a session value
	// that no earlier step produced.
	ErrPrerequisiteMissing = errors.New("workflow: prerequisite value missing")
	// ErrTransport is returned when a request produced no HTTP response.
	ErrTransport = errors.New("workflow: request transport failed")
	// ErrIdentityMismatch is returned when the service reports a different
	// identity than the one established earlier in the run.
	ErrIdentityMismatch = errors.New("workflow: identity mismatch")
	// ErrBusinessRule is returned when a step's inputs violate a business
	// rule, before any request is sent.
	ErrBusinessRule = errors.New("workflow: business rule violation")
)

// Step defines a single API call in a workflow.
type Step struct {
	// Name is the unique identifier for this step (used in reports and
	// metric labels).
	Name string

	// Requires lists the session keys that must be present before this
	// step may run. Each key must be stored by an earlier step.
	Requires []string

	// Store is the session key the extracted value is saved under.
	// Empty means the step stores nothing.
	Store string

	// ExpectedStatus is the HTTP status code the step must receive.
	ExpectedStatus int

	// ExtractPath is the path inside the response data payload to pull
	// a value from (e.g. "data.id"). Empty means the step only checks
	// the status code.
	ExtractPath string

	// Request builds the HTTP request from the current session state.
	// An error here fails the step without dispatching anything.
	Request func(state *session.State) (client.Request, error)

	// Verify is an optional check run against the extracted value after
	// envelope validation, before the value is stored.
	Verify func(state *session.State, value envelope.Value) error
}

// Workflow is an ordered sequence of steps.
type Workflow struct {
	// Name identifies the workflow in reports.
	Name string

	// Description provides context about the workflow's purpose.
	Description string

	// Steps is the ordered sequence of API calls to execute.
	Steps []Step
}

// Validate checks the workflow definition without executing it. It rejects
// steps whose Requires keys are not stored by a strictly earlier step, so
// ordering mistakes surface before any request is sent.
func (w *Workflow) Validate() error {
	if w.Name == "" {
		return fmt.Errorf("%w: workflow name is required", ErrInvalidWorkflow)
	}

	if len(w.Steps) == 0 {
		return fmt.Errorf("%w: workflow %q has no steps", ErrInvalidWorkflow, w.Name)
	}

	names := make(map[string]bool, len(w.Steps))
	stored := make(map[string]bool)

	for i, step := range w.Steps {
		if err := step.validate(); err != nil {
			return fmt.Errorf("%w: workflow %q step %d: %v", ErrInvalidWorkflow, w.Name, i+1, err)
		}

		if names[step.Name] {
			return fmt.Errorf("%w: workflow %q step %d: duplicate step name %q", ErrInvalidWorkflow, w.Name, i+1, step.Name)
		}
		names[step.Name] = true

		for _, key := range step.Requires {
			if !stored[key] {
				return fmt.Errorf("%w: workflow %q step %d: requires %q but no earlier step stores it", ErrInvalidWorkflow, w.Name, i+1, key)
			}
		}

		if step.Store != "" {
			if stored[step.Store] {
				return fmt.Errorf("%w: workflow %q step %d: store key %q already produced by an earlier step", ErrInvalidWorkflow, w.Name, i+1, step.Store)
			}
			stored[step.Store] = true
		}
	}

	return nil
}

// validate checks a single step definition.
func (s *Step) validate() error {
	if s.Name == "" {
		return fmt.Errorf("step name is required")
	}

	if s.Request == nil {
		return fmt.Errorf("request builder is required")
	}

	if s.ExpectedStatus < 100 || s.ExpectedStatus > 599 {
		return fmt.Errorf("expected status %d is not a valid HTTP status", s.ExpectedStatus)
	}

	if s.Store != "" && s.ExtractPath == "" {
		return fmt.Errorf("store key %q has no extract path", s.Store)
	}

	for _, key := range s.Requires {
		if key == "" {
			return fmt.Errorf("required session key cannot be empty")
		}
	}

	return nil
}
