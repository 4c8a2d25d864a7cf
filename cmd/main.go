// Package main provides the CLI entry point for flowcheck.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/example/paygate/tools/flowcheck/internal/client"
	"github.com/example/paygate/tools/flowcheck/internal/config"
	"github.com/example/paygate/tools/flowcheck/internal/generator"
	"github.com/example/paygate/tools/flowcheck/internal/report"
	"github.com/example/paygate/tools/flowcheck/internal/scenario"
	"github.com/example/paygate/tools/flowcheck/internal/workflow"
)

// Version information (populated at build time)
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// CLI flags
var (
	configPath     string
	baseURL        string
	timeout        time.Duration
	pace           time.Duration
	preflight      bool
	verbose        bool
	validate       bool
	dryRun         bool
	showVersion    bool
	outputFormat   string
	outputFile     string
	prometheusAddr string
	noColor        bool
)

func init() {
	// Configuration
	flag.StringVar(&configPath, "config", "", "Path to the YAML configuration file")
	flag.StringVar(&configPath, "c", "", "Path to the YAML configuration file (shorthand)")

	// Override flags
	flag.StringVar(&baseURL, "base-url", "", "Override the target base URL")
	flag.DurationVar(&timeout, "timeout", 0, "Override the request timeout (e.g., 30s)")
	flag.DurationVar(&pace, "pace", 0, "Override the delay between steps (e.g., 500ms)")
	flag.BoolVar(&preflight, "preflight", false, "Prepend a health check step to the workflow")

	// Utility flags
	flag.BoolVar(&verbose, "verbose", false, "Enable verbose output")
	flag.BoolVar(&verbose, "v", false, "Enable verbose output (shorthand)")
	flag.BoolVar(&validate, "validate", false, "Validate configuration and exit")
	flag.BoolVar(&dryRun, "dry-run", false, "Show the step plan without dispatching requests")
	flag.BoolVar(&showVersion, "version", false, "Show version information")

	// Output flags
	flag.StringVar(&outputFormat, "output", "", "Output format: console, json, or console,json")
	flag.StringVar(&outputFile, "output-file", "", "JSON report file path (overrides config, supports {{.Timestamp}})")
	flag.StringVar(&prometheusAddr, "prometheus", "", "Prometheus metrics endpoint (e.g., :9090 or localhost:9090)")
	flag.BoolVar(&noColor, "no-color", false, "Disable ANSI colors in console output")

	// Custom usage
	flag.Usage = printUsage
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `FlowCheck - PayGate Ledger API Workflow Checker

USAGE:
    flowcheck -config <path> [options]

DESCRIPTION:
    Drives a scripted money-movement workflow against a running ledger API
    and verifies every response. Two actors register and log in, both prove
    their identity, the sender is provisioned with a balance, the receiver
    tops up, the sender transfers, and the receiver withdraws.

    Execution is strictly sequential. The first failing step halts the run;
    every remaining step is reported as skipped and never dispatched.

CONFIGURATION:
    -config, -c <path>    Path to the YAML configuration file

OVERRIDE OPTIONS:
    -base-url <url>       Override the target base URL
    -timeout <dur>        Override the request timeout (e.g., "30s")
    -pace <dur>           Override the delay between steps (e.g., "500ms")
    -preflight            Prepend a health check step to the workflow

UTILITY OPTIONS:
    -validate             Validate configuration and exit
    -dry-run              Show the step plan without dispatching requests
    -verbose, -v          Enable verbose output
    -version              Show version information
    -help, -h             Show this help message

OUTPUT OPTIONS:
    -output <format>      Output format: console, json, or console,json
    -output-file <path>   JSON report file (supports {{.Timestamp}} template)
    -prometheus <addr>    Serve Prometheus metrics during the run (e.g., :9090)
    -no-color             Disable ANSI colors in console output

EXIT CODES:
    0    Every step passed
    1    A step failed, the configuration was invalid, or setup failed

EXAMPLES:
    # Run against a local ledger instance
    flowcheck -config configs/local.yaml

    # Point the same workflow at staging
    flowcheck -config configs/local.yaml -base-url https://staging.paygate.example.com

    # Slow the steps down and watch every extracted value
    flowcheck -config configs/local.yaml -pace 500ms -v

    # Produce a JSON report for CI artifacts
    flowcheck -config configs/local.yaml -output console,json -output-file results/run-{{.Timestamp}}.json

    # Expose run metrics for a Prometheus scrape
    flowcheck -config configs/local.yaml -prometheus :9090

    # Validate configuration
    flowcheck -config configs/local.yaml -validate

    # Inspect the step plan
    flowcheck -config configs/local.yaml -dry-run -v

CONFIGURATION FILE FORMAT:
    The configuration file is in YAML format and supports:
    - Target settings (baseURL, timeout, headers, TLS)
    - Actor identities for the sender and receiver
    - Amounts for saldo, topup, transfer, and withdraw
    - Pacing between steps and an optional health check
    - Output settings (console, JSON report, Prometheus)

For more information, visit: https://github.com/example/paygate/tools/flowcheck
`)
}

func main() {
	flag.Parse()

	// Handle version flag
	if showVersion {
		printVersion()
		os.Exit(0)
	}

	if configPath == "" {
		fmt.Fprintln(os.Stderr, "Error: -config flag is required")
		fmt.Fprintln(os.Stderr, "")
		printUsage()
		os.Exit(1)
	}

	// Resolve config path
	absConfigPath, err := filepath.Abs(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error resolving config path: %v\n", err)
		os.Exit(1)
	}

	// Load configuration
	cfg, err := config.LoadFromFile(absConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	// Apply CLI overrides
	applyOverrides(cfg)

	// Handle utility commands
	if validate {
		fmt.Printf("Configuration '%s' is valid.\n", cfg.Name)
		printConfigSummary(cfg)
		os.Exit(0)
	}

	wf := scenario.FromConfig(cfg, generator.New())

	if dryRun {
		printStepPlan(cfg, wf)
		os.Exit(0)
	}

	// Run the workflow
	passed, err := runWorkflow(cfg, wf)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error running workflow: %v\n", err)
		os.Exit(1)
	}
	if !passed {
		os.Exit(1)
	}
}

func printVersion() {
	fmt.Printf("flowcheck version %s\n", version)
	fmt.Printf("  Build time: %s\n", buildTime)
	fmt.Printf("  Git commit: %s\n", gitCommit)
}

func applyOverrides(cfg *config.Config) {
	if baseURL != "" {
		cfg.Target.BaseURL = baseURL
		if verbose {
			fmt.Printf("Override: target.baseURL = %s\n", baseURL)
		}
	}

	if timeout > 0 {
		cfg.Target.Timeout = timeout
		if verbose {
			fmt.Printf("Override: target.timeout = %v\n", timeout)
		}
	}

	if pace > 0 {
		cfg.Pace = pace
		if verbose {
			fmt.Printf("Override: pace = %v\n", pace)
		}
	}

	if preflight {
		cfg.Preflight = true
		if verbose {
			fmt.Println("Override: preflight enabled")
		}
	}

	if verbose {
		cfg.Output.Verbose = true
	}

	if noColor {
		cfg.Output.NoColor = true
	}

	// Apply output format override
	if outputFormat != "" {
		cfg.Output.Type = outputFormat
		if verbose {
			fmt.Printf("Override: output format = %s\n", outputFormat)
		}
	}

	// Apply output file override; writing a file implies JSON output
	if outputFile != "" {
		cfg.Output.Path = outputFile
		if !strings.Contains(strings.ToLower(cfg.Output.Type), "json") {
			cfg.Output.Type += ",json"
		}
		if verbose {
			fmt.Printf("Override: output file = %s\n", outputFile)
		}
	}

	// Apply Prometheus override
	if prometheusAddr != "" {
		cfg.Prometheus.Enabled = true
		// Parse address - support both :9090 and localhost:9090 formats
		port := parsePrometheusPort(prometheusAddr)
		if port > 0 {
			cfg.Prometheus.Port = port
		}
		if cfg.Prometheus.Path == "" {
			cfg.Prometheus.Path = "/metrics"
		}
		if verbose {
			fmt.Printf("Override: Prometheus enabled on port %d\n", cfg.Prometheus.Port)
		}
	}
}

// parsePrometheusPort extracts port from address string.
// Supports formats: :9090, localhost:9090, 9090
// Returns 0 for invalid ports (including out of range 1-65535).
func parsePrometheusPort(addr string) int {
	addr = strings.TrimSpace(addr)

	// Handle just port number
	if !strings.Contains(addr, ":") {
		var port int
		if _, err := fmt.Sscanf(addr, "%d", &port); err == nil {
			if port > 0 && port <= 65535 {
				return port
			}
		}
		return 0
	}

	// Handle :port or host:port
	parts := strings.Split(addr, ":")
	if len(parts) >= 2 {
		var port int
		if _, err := fmt.Sscanf(parts[len(parts)-1], "%d", &port); err == nil {
			if port > 0 && port <= 65535 {
				return port
			}
		}
	}
	return 0
}

func printConfigSummary(cfg *config.Config) {
	fmt.Println()
	fmt.Println("Configuration Summary:")
	fmt.Printf("  Name:        %s\n", cfg.Name)
	fmt.Printf("  Target:      %s\n", cfg.Target.BaseURL)
	fmt.Printf("  Timeout:     %v\n", cfg.Target.Timeout)
	fmt.Printf("  Pace:        %v\n", cfg.Pace)
	fmt.Printf("  Preflight:   %v\n", cfg.Preflight)
	fmt.Printf("  Sender:      %s %s\n", cfg.Actors.Sender.FirstName, cfg.Actors.Sender.LastName)
	fmt.Printf("  Receiver:    %s %s\n", cfg.Actors.Receiver.FirstName, cfg.Actors.Receiver.LastName)
	fmt.Printf("  Amounts:     saldo=%d topup=%d transfer=%d withdraw=%d\n",
		cfg.Amounts.InitialBalance, cfg.Amounts.Topup, cfg.Amounts.Transfer, cfg.Amounts.Withdraw)
	fmt.Printf("  Output:      %s\n", cfg.Output.Type)
	if cfg.Prometheus.Enabled {
		fmt.Printf("  Prometheus:  port %d, path %s\n", cfg.Prometheus.Port, cfg.Prometheus.Path)
	}
}

func printStepPlan(cfg *config.Config, wf workflow.Workflow) {
	fmt.Println("=== Step Plan (Dry Run) ===")

	printConfigSummary(cfg)

	fmt.Println()
	fmt.Printf("Workflow '%s' (%d steps):\n", wf.Name, len(wf.Steps))
	for i, step := range wf.Steps {
		fmt.Printf("  %2d. %-20s expect %d", i+1, step.Name, step.ExpectedStatus)
		if step.ExtractPath != "" {
			fmt.Printf("  extract %s", step.ExtractPath)
		}
		if step.Store != "" {
			fmt.Printf("  store %s", step.Store)
		}
		fmt.Println()
		if verbose && len(step.Requires) > 0 {
			fmt.Printf("      requires: %s\n", strings.Join(step.Requires, ", "))
		}
	}

	if err := wf.Validate(); err != nil {
		fmt.Println()
		fmt.Fprintf(os.Stderr, "Workflow is invalid: %v\n", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("Workflow is valid. Remove -dry-run flag to execute it.")
}

func runWorkflow(cfg *config.Config, wf workflow.Workflow) (bool, error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpClient, err := client.NewClient(cfg.Target)
	if err != nil {
		return false, fmt.Errorf("creating HTTP client: %w", err)
	}

	runnerConfig := workflow.RunnerConfig{
		Client: httpClient,
		Pace:   cfg.Pace,
	}

	// Optional Prometheus exporter, serving for the lifetime of the run
	var exporter *report.Exporter
	if cfg.Prometheus.Enabled {
		exporter = report.NewExporter(report.ExporterConfig{
			Port: cfg.Prometheus.Port,
			Path: cfg.Prometheus.Path,
		})
		if err := exporter.Start(); err != nil {
			return false, err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = exporter.Stop(shutdownCtx)
		}()

		runnerConfig.OnStepComplete = func(_ int, _ workflow.Step, stepReport workflow.StepReport) {
			exporter.RecordStep(stepReport)
		}

		if cfg.Output.Verbose {
			fmt.Printf("Prometheus metrics on %s\n", exporter.GetAddress())
		}
	}

	runner, err := workflow.NewRunner(runnerConfig)
	if err != nil {
		return false, err
	}

	runReport, err := runner.Run(ctx, wf)
	if err != nil {
		return false, err
	}

	if exporter != nil {
		exporter.RecordRun(runReport)
	}

	outputType := strings.ToLower(cfg.Output.Type)

	if strings.Contains(outputType, "console") {
		console := report.NewConsole(report.ConsoleConfig{
			UseColors: !cfg.Output.NoColor,
			Verbose:   cfg.Output.Verbose,
		})
		console.PrintReport(runReport)
	}

	if strings.Contains(outputType, "json") {
		reporter := report.NewReporter()
		doc := reporter.Build(runReport, report.Options{Target: cfg.Target.BaseURL})

		if cfg.Output.Path != "" {
			if err := reporter.WriteToFile(doc, cfg.Output.Path); err != nil {
				return runReport.Success, err
			}
			if cfg.Output.Verbose {
				fmt.Printf("JSON report written to %s\n", cfg.Output.Path)
			}
		} else {
			data, err := reporter.ToJSON(doc)
			if err != nil {
				return runReport.Success, err
			}
			fmt.Println(string(data))
		}
	}

	return runReport.Success, nil
}
