package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewReporter(t *testing.T) {
	r := NewReporter()
	assert.NotNil(t, r)
	assert.Equal(t, "1.0.0", r.version)
}

func TestReporter_Build(t *testing.T) {
	r := NewReporter()
	run := failingReport()

	doc := r.Build(run, Options{Target: "http://localhost:5000"})

	// Metadata
	assert.Equal(t, "1.0.0", doc.Metadata.Version)
	assert.Equal(t, "flowcheck", doc.Metadata.Generator)
	assert.False(t, doc.Metadata.GeneratedAt.IsZero())

	// Run summary
	assert.Equal(t, "run-5678", doc.Run.RunID)
	assert.Equal(t, "money_movement", doc.Run.Workflow)
	assert.Equal(t, "http://localhost:5000", doc.Run.Target)
	assert.False(t, doc.Run.Success)
	assert.Equal(t, time.Second, doc.Run.Duration.Duration)
	assert.Equal(t, "create_saldo", doc.Run.FailedStep)
	assert.Contains(t, doc.Run.Error, "total_balance too low")

	// Step counts
	assert.Equal(t, 3, doc.Run.StepCounts.Total)
	assert.Equal(t, 1, doc.Run.StepCounts.Succeeded)
	assert.Equal(t, 1, doc.Run.StepCounts.Failed)
	assert.Equal(t, 1, doc.Run.StepCounts.Skipped)

	// Steps
	require.Len(t, doc.Steps, 3)
	assert.Equal(t, "register_sender", doc.Steps[0].Name)
	assert.Equal(t, "success", doc.Steps[0].Outcome)
	assert.InDelta(t, 52.0, doc.Steps[0].DurationMs, 0.01)
	assert.Equal(t, 400, doc.Steps[1].StatusCode)
	assert.Equal(t, 201, doc.Steps[1].ExpectedStatus)
	assert.Equal(t, "skipped", doc.Steps[2].Outcome)
	assert.Equal(t, 0, doc.Steps[2].StatusCode)
}

func TestReporter_Build_PassingRun(t *testing.T) {
	r := NewReporter()

	doc := r.Build(passingReport(), Options{})

	assert.True(t, doc.Run.Success)
	assert.Empty(t, doc.Run.FailedStep)
	assert.Empty(t, doc.Run.Error)
	assert.Equal(t, 0, doc.Run.StepCounts.Failed)
	assert.Equal(t, int64(1), doc.Steps[0].Extracted)
}

func TestReporter_ToJSON(t *testing.T) {
	r := NewReporter()
	doc := r.Build(passingReport(), Options{Target: "http://localhost:5000"})

	data, err := r.ToJSON(doc)
	require.NoError(t, err)
	assert.NotEmpty(t, data)

	// Verify it's valid JSON by unmarshaling
	var parsed map[string]any
	err = json.Unmarshal(data, &parsed)
	require.NoError(t, err)

	assert.Contains(t, parsed, "metadata")
	assert.Contains(t, parsed, "run")
	assert.Contains(t, parsed, "steps")
}

func TestReporter_WriteToFile(t *testing.T) {
	r := NewReporter()
	doc := r.Build(failingReport(), Options{})

	tmpDir := t.TempDir()

	t.Run("simple path", func(t *testing.T) {
		path := filepath.Join(tmpDir, "report.json")
		err := r.WriteToFile(doc, path)
		require.NoError(t, err)

		data, err := os.ReadFile(path)
		require.NoError(t, err)

		var parsed Document
		err = json.Unmarshal(data, &parsed)
		require.NoError(t, err)
		assert.Equal(t, doc.Run.RunID, parsed.Run.RunID)
		assert.Equal(t, doc.Run.FailedStep, parsed.Run.FailedStep)
	})

	t.Run("nested directory", func(t *testing.T) {
		path := filepath.Join(tmpDir, "nested", "dir", "report.json")
		err := r.WriteToFile(doc, path)
		require.NoError(t, err)

		_, err = os.Stat(path)
		require.NoError(t, err)
	})

	t.Run("timestamp template", func(t *testing.T) {
		path := filepath.Join(tmpDir, "report-{{.Timestamp}}.json")
		err := r.WriteToFile(doc, path)
		require.NoError(t, err)

		files, err := os.ReadDir(tmpDir)
		require.NoError(t, err)

		found := false
		for _, f := range files {
			if strings.HasPrefix(f.Name(), "report-") && strings.HasSuffix(f.Name(), ".json") && f.Name() != "report-{{.Timestamp}}.json" {
				found = true
				name := strings.TrimPrefix(f.Name(), "report-")
				name = strings.TrimSuffix(name, ".json")
				assert.Regexp(t, `^\d{8}-\d{6}$`, name)
				break
			}
		}
		assert.True(t, found, "File with expanded timestamp should exist")
	})
}

func TestExpandPathTemplate(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		validate func(t *testing.T, result string)
	}{
		{
			name:  "no template",
			input: "path/to/file.json",
			validate: func(t *testing.T, result string) {
				assert.Equal(t, "path/to/file.json", result)
			},
		},
		{
			name:  "timestamp template",
			input: "results/{{.Timestamp}}.json",
			validate: func(t *testing.T, result string) {
				assert.NotContains(t, result, "{{.Timestamp}}")
				assert.Regexp(t, `results/\d{8}-\d{6}\.json`, result)
			},
		},
		{
			name:  "date template",
			input: "results/{{.Date}}/report.json",
			validate: func(t *testing.T, result string) {
				assert.NotContains(t, result, "{{.Date}}")
				assert.Regexp(t, `results/\d{4}-\d{2}-\d{2}/report\.json`, result)
			},
		},
		{
			name:  "multiple templates",
			input: "results/{{.Date}}/flowcheck-{{.Timestamp}}.json",
			validate: func(t *testing.T, result string) {
				assert.NotContains(t, result, "{{")
				assert.Regexp(t, `results/\d{4}-\d{2}-\d{2}/flowcheck-\d{8}-\d{6}\.json`, result)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.validate(t, expandPathTemplate(tt.input))
		})
	}
}
