// Package report renders workflow run results. The console renderer prints
// a step-by-step verdict for humans, the JSON reporter produces a document
// for external tools, and the Prometheus exporter publishes run metrics
// for scraping.
package report

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/example/paygate/tools/flowcheck/internal/workflow"
)

// Console renders run reports as human-readable text.
//
// Thread Safety: NOT safe for concurrent use.
type Console struct {
	writer io.Writer
	config ConsoleConfig
}

// ConsoleConfig holds configuration for console output.
type ConsoleConfig struct {
	// Writer is the output destination. Default: os.Stdout
	Writer io.Writer

	// UseColors enables ANSI color codes. Default: true
	UseColors bool

	// Verbose prints extracted values alongside each step. Default: false
	Verbose bool
}

// DefaultConsoleConfig returns default configuration.
func DefaultConsoleConfig() ConsoleConfig {
	return ConsoleConfig{
		Writer:    os.Stdout,
		UseColors: true,
	}
}

// ANSI color codes.
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
)

// Step outcome glyphs.
const (
	glyphSuccess = "✓"
	glyphFailure = "✗"
	glyphSkipped = "-"
)

// stepNameWidth pads step names so status columns line up.
const stepNameWidth = 20

// NewConsole creates a new console renderer.
func NewConsole(config ConsoleConfig) *Console {
	if config.Writer == nil {
		config.Writer = os.Stdout
	}

	return &Console{
		writer: config.Writer,
		config: config,
	}
}

// color returns the color code if colors are enabled, empty string otherwise.
func (c *Console) color(code string) string {
	if c.config.UseColors {
		return code
	}
	return ""
}

// PrintReport renders a complete run report: a header, one line per step,
// and a final verdict banner.
func (c *Console) PrintReport(report *workflow.Report) {
	w := c.writer

	fmt.Fprintln(w)
	fmt.Fprintf(w, "%s%s%s\n", c.color(colorBold), report.WorkflowName, c.color(colorReset))
	fmt.Fprintf(w, "%srun %s | started %s%s\n",
		c.color(colorDim), report.RunID,
		report.StartedAt.Format("2006-01-02 15:04:05"), c.color(colorReset))
	fmt.Fprintln(w)

	for _, step := range report.Steps {
		fmt.Fprintln(w, c.formatStep(step))
	}

	fmt.Fprintln(w)
	c.printVerdict(report)
}

// formatStep renders one step line; failures carry the detail on a second
// indented line.
func (c *Console) formatStep(step workflow.StepReport) string {
	name := step.StepName
	if len(name) < stepNameWidth {
		name += strings.Repeat(" ", stepNameWidth-len(name))
	}

	switch step.Outcome {
	case workflow.OutcomeSuccess:
		line := fmt.Sprintf("  %s%s%s %s %d in %s",
			c.color(colorGreen), glyphSuccess, c.color(colorReset),
			name, step.StatusCode, formatLatency(step.Duration))
		if c.config.Verbose && step.Extracted != nil {
			line += fmt.Sprintf(" %s[%v]%s", c.color(colorCyan), step.Extracted, c.color(colorReset))
		}
		return line

	case workflow.OutcomeFailure:
		status := ""
		if step.StatusCode != 0 {
			status = fmt.Sprintf("%d ", step.StatusCode)
			if step.StatusCode != step.ExpectedStatus {
				status = fmt.Sprintf("%d (want %d) ", step.StatusCode, step.ExpectedStatus)
			}
		}
		line := fmt.Sprintf("  %s%s%s %s %sin %s",
			c.color(colorRed), glyphFailure, c.color(colorReset),
			name, status, formatLatency(step.Duration))
		if step.Detail != "" {
			line += fmt.Sprintf("\n      %s%s%s", c.color(colorRed), step.Detail, c.color(colorReset))
		}
		return line

	default:
		return fmt.Sprintf("  %s%s %s %s%s",
			c.color(colorDim), glyphSkipped, name, step.Detail, c.color(colorReset))
	}
}

// printVerdict renders the final pass/fail banner.
func (c *Console) printVerdict(report *workflow.Report) {
	w := c.writer
	rule := strings.Repeat("═", 62)

	fmt.Fprintf(w, "%s%s%s\n", c.color(colorDim), rule, c.color(colorReset))

	if report.Success {
		fmt.Fprintf(w, "  %s%sPASS%s  %d steps in %s\n",
			c.color(colorBold), c.color(colorGreen), c.color(colorReset),
			report.SucceededSteps, formatDuration(report.Duration))
	} else {
		fmt.Fprintf(w, "  %s%sFAIL%s  halted at %q: %v\n",
			c.color(colorBold), c.color(colorRed), c.color(colorReset),
			report.FailedStep, report.Error)
		fmt.Fprintf(w, "        %d passed, %d skipped in %s\n",
			report.SucceededSteps, report.SkippedSteps, formatDuration(report.Duration))
	}

	fmt.Fprintf(w, "%s%s%s\n", c.color(colorDim), rule, c.color(colorReset))
}

// formatLatency formats a step duration for display.
func formatLatency(d time.Duration) string {
	if d == 0 {
		return "0ms"
	}
	if d < time.Microsecond {
		return fmt.Sprintf("%dns", d.Nanoseconds())
	}
	if d < time.Millisecond {
		return fmt.Sprintf("%.2fµs", float64(d.Nanoseconds())/1000)
	}
	if d < time.Second {
		return fmt.Sprintf("%.2fms", float64(d.Nanoseconds())/1e6)
	}
	return fmt.Sprintf("%.2fs", d.Seconds())
}

// formatDuration formats a run duration for display.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		minutes := int(d.Minutes())
		seconds := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm%ds", minutes, seconds)
	}
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh%dm", hours, minutes)
}
