package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"arena-verify/internal/harness"
	"arena-verify/internal/platform"
)

func main() {
	baseURL := flag.String("base-url", envOr("ARENA_BASE_URL", ""), "Base URL of the platform under verification")
	timeout := flag.Duration("timeout", 10*time.Second, "Per-probe HTTP timeout")
	features := flag.String("features", "all", "Comma-separated feature groups: achievements,fraud-detection,brackets,predictions,social,leaderboards,all")
	format := flag.String("format", "text", "Output format: text|json")
	outputPath := flag.String("out", "", "Write full report artifact JSON to this file")
	baselineInPath := flag.String("baseline-in", "", "Load baseline artifact JSON and run regression comparison")
	baselineOutPath := flag.String("baseline-out", "", "Write current artifact as future baseline JSON")
	threshold := flag.Float64("threshold", 0.75, "Minimum acceptable aggregate pass rate (0..1)")
	skipCleanup := flag.Bool("skip-cleanup", false, "Leave created resources in place")
	flag.Parse()

	if strings.TrimSpace(*baseURL) == "" {
		exitWith("ARENA_BASE_URL or -base-url is required")
	}

	client := platform.NewClient(platform.Config{
		BaseURL: *baseURL,
		Timeout: *timeout,
		DefaultHeaders: map[string]string{
			"Accept": "application/json",
		},
	})

	runConfig := harness.RunConfig{
		BaseURL:      *baseURL,
		Features:     harness.ResolveFeatureSelection(*features),
		SkipCleanup:  *skipCleanup,
		ProbeTimeout: int(timeout.Seconds()),
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout*64)
	defer cancel()

	orchestrator := harness.NewOrchestrator(client, runConfig)
	cleanup := orchestrator.Run(ctx)

	agg := orchestrator.Aggregator()
	artifact := harness.BuildArtifact(*baseURL, agg, harness.CategoryByTag)
	artifact.Cleanup = &cleanup

	var regression *harness.RegressionSummary
	if strings.TrimSpace(*baselineInPath) != "" {
		baseline, err := harness.ReadArtifact(*baselineInPath)
		if err != nil {
			exitWith("failed to read baseline artifact: " + err.Error())
		}
		summary := harness.CompareArtifacts(artifact, baseline)
		regression = &summary
	}

	switch strings.ToLower(strings.TrimSpace(*format)) {
	case "json":
		printJSON(artifact, regression)
	default:
		harness.RenderText(os.Stdout, artifact, agg.Results())
		printRegressionText(regression)
	}

	if strings.TrimSpace(*outputPath) != "" {
		if err := harness.WriteArtifact(*outputPath, artifact); err != nil {
			exitWith("failed to write report artifact: " + err.Error())
		}
	}
	if strings.TrimSpace(*baselineOutPath) != "" {
		if err := harness.WriteArtifact(*baselineOutPath, artifact); err != nil {
			exitWith("failed to write baseline artifact: " + err.Error())
		}
	}

	if artifact.Summary.Rate < *threshold {
		fmt.Fprintf(os.Stderr, "pass rate %.1f%% below threshold %.1f%%\n",
			artifact.Summary.Rate*100, *threshold*100)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func printJSON(artifact harness.Artifact, regression *harness.RegressionSummary) {
	payload := map[string]any{"report": artifact}
	if regression != nil {
		payload["regression"] = regression
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		exitWith("failed to encode report JSON: " + err.Error())
	}
	fmt.Println(string(data))
}

func printRegressionText(regression *harness.RegressionSummary) {
	if regression == nil {
		return
	}
	fmt.Printf("\nBaseline: rate=%.1f%% delta=%+.1f points\n",
		regression.BaselineRate*100, regression.RateDelta*100)
	for _, finding := range regression.Findings {
		fmt.Printf("  - %s\n", finding)
	}
}

func exitWith(message string) {
	fmt.Fprintln(os.Stderr, "error:", message)
	os.Exit(2)
}
