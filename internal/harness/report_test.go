package harness

import (
	"path/filepath"
	"strings"
	"testing"
)

func sampleAggregator() *Aggregator {
	agg := NewAggregator()
	agg.Record(ProbeResult{Test: "achievements.list", Category: "achievements", Verdict: VerdictSuccess, Details: "ok (200)", Timestamp: "2026-08-01T00:00:00Z"})
	agg.Record(ProbeResult{Test: "achievements.claim", Category: "achievements", Verdict: VerdictNotImplemented, Details: "route missing: 404 page not found", Timestamp: "2026-08-01T00:00:01Z"})
	agg.Record(ProbeResult{Test: "social.share", Category: "social", Verdict: VerdictAuthRequired, Details: "route exists, credentials required", Timestamp: "2026-08-01T00:00:02Z"})
	return agg
}

func TestBuildArtifact(t *testing.T) {
	artifact := BuildArtifact("http://arena.local:3000", sampleAggregator(), nil)
	if artifact.Target != "http://arena.local:3000" {
		t.Fatalf("unexpected target %q", artifact.Target)
	}
	if artifact.Summary.Total != 3 || artifact.Summary.Passed != 2 || artifact.Summary.Failed != 1 {
		t.Fatalf("unexpected summary %+v", artifact.Summary)
	}
	if len(artifact.Categories) != 2 {
		t.Fatalf("expected 2 categories, got %v", artifact.Categories)
	}
	if len(artifact.Results) != 3 || artifact.Results[0].Test != "achievements.list" {
		t.Fatalf("results not projected in order: %v", artifact.Results)
	}
}

func TestRenderTextListsFailures(t *testing.T) {
	agg := sampleAggregator()
	artifact := BuildArtifact("http://arena.local:3000", agg, nil)

	var sb strings.Builder
	RenderText(&sb, artifact, agg.Results())
	out := sb.String()
	if !strings.Contains(out, "achievements.claim") {
		t.Fatalf("failing probe missing from output:\n%s", out)
	}
	if strings.Contains(out, "achievements.list -") {
		t.Fatalf("passing probe should not be listed as failing:\n%s", out)
	}
	if !strings.Contains(out, "rate=66.7%") {
		t.Fatalf("expected rate line, got:\n%s", out)
	}
}

func TestArtifactRoundTrip(t *testing.T) {
	artifact := BuildArtifact("http://arena.local:3000", sampleAggregator(), nil)
	artifact.Cleanup = &CleanupReport{
		Deleted:  []CleanupOutcome{{Type: "share", ID: "7"}},
		Orphaned: []CleanupOutcome{},
	}
	path := filepath.Join(t.TempDir(), "report.json")
	if err := WriteArtifact(path, artifact); err != nil {
		t.Fatalf("WriteArtifact error: %v", err)
	}
	loaded, err := ReadArtifact(path)
	if err != nil {
		t.Fatalf("ReadArtifact error: %v", err)
	}
	if loaded.Summary != artifact.Summary {
		t.Fatalf("summary changed across round trip: %+v vs %+v", loaded.Summary, artifact.Summary)
	}
	if loaded.Cleanup == nil || len(loaded.Cleanup.Deleted) != 1 {
		t.Fatalf("cleanup section lost: %+v", loaded.Cleanup)
	}
}

func TestCompareArtifactsFindsDegradation(t *testing.T) {
	baseline := Artifact{
		GeneratedAt: "2026-07-01T00:00:00Z",
		Target:      "http://arena.local:3000",
		Summary:     Summary{Total: 4, Passed: 4, Rate: 1.0},
		Categories: []CategorySummary{
			{Name: "achievements", Passed: 2, Total: 2},
			{Name: "social", Passed: 2, Total: 2},
		},
	}
	current := Artifact{
		GeneratedAt: "2026-08-01T00:00:00Z",
		Target:      "http://arena.local:3000",
		Summary:     Summary{Total: 6, Passed: 4, Failed: 2, Rate: 4.0 / 6.0},
		Categories: []CategorySummary{
			{Name: "achievements", Passed: 1, Total: 2},
			{Name: "social", Passed: 2, Total: 2},
			{Name: "predictions", Passed: 1, Total: 2},
		},
	}
	summary := CompareArtifacts(current, baseline)
	if summary.Improved {
		t.Fatalf("regression should not be marked improved")
	}
	if len(summary.DegradedCategories) != 1 || summary.DegradedCategories[0] != "achievements" {
		t.Fatalf("expected achievements degraded, got %v", summary.DegradedCategories)
	}
	if len(summary.NewCategories) != 1 || summary.NewCategories[0] != "predictions" {
		t.Fatalf("expected predictions new, got %v", summary.NewCategories)
	}
	if summary.RateDelta >= 0 {
		t.Fatalf("expected negative rate delta, got %f", summary.RateDelta)
	}
}

func TestCompareArtifactsTargetMismatch(t *testing.T) {
	baseline := Artifact{Target: "http://a.local", Summary: Summary{Rate: 1}}
	current := Artifact{Target: "http://b.local", Summary: Summary{Rate: 1}}
	summary := CompareArtifacts(current, baseline)
	found := false
	for _, finding := range summary.Findings {
		if strings.Contains(finding, "target mismatch") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected target mismatch finding, got %v", summary.Findings)
	}
}
