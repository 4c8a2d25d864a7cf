package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/example/paygate/tools/flowcheck/internal/workflow"
)

// Document is a complete run report in JSON form. It carries everything an
// external tool needs to analyze a run without scraping console output.
type Document struct {
	// Metadata about the report
	Metadata Metadata `json:"metadata"`

	// Run summary
	Run RunSummary `json:"run"`

	// Per-step results
	Steps []StepEntry `json:"steps"`
}

// Metadata identifies the report producer.
type Metadata struct {
	Version     string    `json:"version"`
	GeneratedAt time.Time `json:"generatedAt"`
	Generator   string    `json:"generator"`
}

// RunSummary contains overall run statistics.
type RunSummary struct {
	RunID      string     `json:"runId"`
	Workflow   string     `json:"workflow"`
	Target     string     `json:"target,omitempty"`
	Success    bool       `json:"success"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt time.Time  `json:"finishedAt"`
	Duration   Duration   `json:"duration"`
	StepCounts StepCounts `json:"stepCounts"`
	FailedStep string     `json:"failedStep,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// StepCounts breaks the run down by outcome.
type StepCounts struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// StepEntry describes a single step result.
type StepEntry struct {
	Index          int     `json:"index"`
	Name           string  `json:"name"`
	Outcome        string  `json:"outcome"`
	StatusCode     int     `json:"statusCode,omitempty"`
	ExpectedStatus int     `json:"expectedStatus,omitempty"`
	Extracted      any     `json:"extracted,omitempty"`
	Detail         string  `json:"detail,omitempty"`
	DurationMs     float64 `json:"durationMs"`
}

// Duration wraps time.Duration for JSON serialization.
type Duration struct {
	time.Duration
}

// MarshalJSON implements json.Marshaler for Duration.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{
		"seconds": d.Seconds(),
		"display": formatDuration(d.Duration),
	})
}

// UnmarshalJSON implements json.Unmarshaler for Duration.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	if seconds, ok := obj["seconds"].(float64); ok {
		d.Duration = time.Duration(seconds * float64(time.Second))
	}
	return nil
}

// Reporter generates JSON documents from run reports.
type Reporter struct {
	version string
}

// NewReporter creates a new Reporter.
func NewReporter() *Reporter {
	return &Reporter{
		version: "1.0.0",
	}
}

// Options configures document generation.
type Options struct {
	// Target is the base URL of the system under test.
	Target string
}

// Build creates a JSON document from a run report.
func (r *Reporter) Build(report *workflow.Report, opts Options) *Document {
	failed := 0
	if report.FailedStep != "" {
		failed = 1
	}

	doc := &Document{
		Metadata: Metadata{
			Version:     r.version,
			GeneratedAt: time.Now().UTC(),
			Generator:   "flowcheck",
		},
		Run: RunSummary{
			RunID:      report.RunID,
			Workflow:   report.WorkflowName,
			Target:     opts.Target,
			Success:    report.Success,
			StartedAt:  report.StartedAt,
			FinishedAt: report.FinishedAt,
			Duration:   Duration{report.Duration},
			StepCounts: StepCounts{
				Total:     len(report.Steps),
				Succeeded: report.SucceededSteps,
				Failed:    failed,
				Skipped:   report.SkippedSteps,
			},
			FailedStep: report.FailedStep,
		},
	}

	if report.Error != nil {
		doc.Run.Error = report.Error.Error()
	}

	doc.Steps = make([]StepEntry, 0, len(report.Steps))
	for _, step := range report.Steps {
		doc.Steps = append(doc.Steps, StepEntry{
			Index:          step.StepIndex,
			Name:           step.StepName,
			Outcome:        string(step.Outcome),
			StatusCode:     step.StatusCode,
			ExpectedStatus: step.ExpectedStatus,
			Extracted:      step.Extracted,
			Detail:         step.Detail,
			DurationMs:     float64(step.Duration.Nanoseconds()) / 1e6,
		})
	}

	return doc
}

// ToJSON serializes a document to JSON bytes.
func (r *Reporter) ToJSON(doc *Document) ([]byte, error) {
	return json.MarshalIndent(doc, "", "  ")
}

// WriteToFile writes a document to a file.
// The path supports template variables:
// - {{.Timestamp}} - Current timestamp in format YYYYMMDD-HHMMSS
// - {{.Date}} - Current date in format YYYY-MM-DD
// - {{.Time}} - Current time in format HHMMSS
func (r *Reporter) WriteToFile(doc *Document, path string) error {
	expandedPath := filepath.Clean(expandPathTemplate(path))

	dir := filepath.Dir(expandedPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	data, err := r.ToJSON(doc)
	if err != nil {
		return fmt.Errorf("marshaling report to JSON: %w", err)
	}

	if err := os.WriteFile(expandedPath, data, 0644); err != nil {
		return fmt.Errorf("writing report file: %w", err)
	}

	return nil
}

// expandPathTemplate expands template variables in a path.
func expandPathTemplate(path string) string {
	now := time.Now()

	replacements := map[string]string{
		"{{.Timestamp}}": now.Format("20060102-150405"),
		"{{.Date}}":      now.Format("2006-01-02"),
		"{{.Time}}":      now.Format("150405"),
	}

	result := path
	for template, value := range replacements {
		result = strings.ReplaceAll(result, template, value)
	}

	return result
}
