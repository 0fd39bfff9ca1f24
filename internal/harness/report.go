package harness

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// Artifact is the on-disk report schema consumed by downstream tooling.
type Artifact struct {
	GeneratedAt string            `json:"generated_at"`
	Target      string            `json:"target"`
	Summary     Summary           `json:"summary"`
	Categories  []CategorySummary `json:"categories"`
	Results     []ArtifactResult  `json:"results"`
	Cleanup     *CleanupReport    `json:"cleanup,omitempty"`
}

type ArtifactResult struct {
	Test      string  `json:"test"`
	Verdict   Verdict `json:"verdict"`
	Details   string  `json:"details"`
	Timestamp string  `json:"timestamp"`
}

// BuildArtifact projects the aggregator's final state. It reads but never
// mutates the aggregator.
func BuildArtifact(target string, agg *Aggregator, labelFn func(ProbeResult) string) Artifact {
	if labelFn == nil {
		labelFn = CategoryByTag
	}
	results := agg.Results()
	out := Artifact{
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Target:      target,
		Summary:     agg.Summary(),
		Categories:  agg.ByCategory(labelFn),
		Results:     make([]ArtifactResult, 0, len(results)),
	}
	for _, result := range results {
		out.Results = append(out.Results, ArtifactResult{
			Test:      result.Test,
			Verdict:   result.Verdict,
			Details:   result.Details,
			Timestamp: result.Timestamp,
		})
	}
	return out
}

// RenderText writes the console summary: totals, per-category rates, and
// the failing probes with enough detail to tell a missing route from a
// broken one.
func RenderText(w io.Writer, artifact Artifact, results []ProbeResult) {
	fmt.Fprintf(w, "Target: %s\n", artifact.Target)
	fmt.Fprintf(w, "Generated: %s\n\n", artifact.GeneratedAt)

	for _, category := range artifact.Categories {
		fmt.Fprintf(w, "%-20s %d/%d\n", category.Name, category.Passed, category.Total)
	}
	fmt.Fprintln(w)

	for _, result := range results {
		if result.Passed() {
			continue
		}
		fmt.Fprintf(w, "[%s] %s - %s\n", result.Verdict, result.Test, result.Details)
	}

	summary := artifact.Summary
	fmt.Fprintf(w, "\nTotals: passed=%d failed=%d skipped=%d rate=%.1f%%\n",
		summary.Passed, summary.Failed, summary.Skipped, summary.Rate*100)
	if artifact.Cleanup != nil && len(artifact.Cleanup.Orphaned) > 0 {
		fmt.Fprintf(w, "Orphaned resources: %d (see cleanup section of the artifact)\n", len(artifact.Cleanup.Orphaned))
	}
}

func WriteArtifact(path string, artifact Artifact) error {
	data, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		return fmt.Errorf("encode artifact: %w", err)
	}
	return os.WriteFile(filepath.Clean(path), data, 0o644)
}

func ReadArtifact(path string) (Artifact, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Artifact{}, err
	}
	var artifact Artifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return Artifact{}, fmt.Errorf("decode artifact: %w", err)
	}
	return artifact, nil
}
