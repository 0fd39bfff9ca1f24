package server

import (
	"testing"

	"arena-verify/internal/harness"
)

func TestMemoryStoreRunLifecycle(t *testing.T) {
	store, err := NewMemoryFileStore("")
	if err != nil {
		t.Fatalf("NewMemoryFileStore error: %v", err)
	}
	meta := RunMeta{
		RunID:       "run_test_1",
		Status:      "queued",
		Source:      "test",
		CreatorType: "admin",
		CreatedAt:   nowRFC3339(),
	}
	if err := store.CreateRun(meta); err != nil {
		t.Fatalf("CreateRun error: %v", err)
	}
	event, err := store.AppendRunEvent(meta.RunID, "queue", "queued", nil)
	if err != nil {
		t.Fatalf("AppendRunEvent error: %v", err)
	}
	if event.Seq != 1 {
		t.Fatalf("expected first seq=1, got %d", event.Seq)
	}
	updated, err := store.UpdateRun(meta.RunID, func(item *RunMeta) {
		item.Status = "running"
	})
	if err != nil {
		t.Fatalf("UpdateRun error: %v", err)
	}
	if updated.Status != "running" {
		t.Fatalf("expected status running, got %s", updated.Status)
	}
}

func TestMemoryStoreMetricsOverview(t *testing.T) {
	store, err := NewMemoryFileStore("")
	if err != nil {
		t.Fatalf("NewMemoryFileStore error: %v", err)
	}
	report := &harness.Artifact{
		Summary: harness.Summary{Total: 10, Passed: 8, Failed: 2, Rate: 0.8},
	}
	first := RunMeta{
		RunID:       "run_pass",
		Status:      "pass",
		CreatorType: "admin",
		CreatedAt:   "2026-01-01T00:00:00Z",
		StartedAt:   "2026-01-01T00:00:01Z",
		FinishedAt:  "2026-01-01T00:00:31Z",
		Report:      report,
		Outcome:     OutcomeSnapshot{PassRate: 0.8, MissingRoutes: 2, OrphanedResources: 1},
	}
	second := RunMeta{
		RunID:       "run_fail",
		Status:      "fail",
		CreatorType: "user",
		CreatedAt:   "2026-01-01T01:00:00Z",
		StartedAt:   "2026-01-01T01:00:01Z",
		FinishedAt:  "2026-01-01T01:00:11Z",
		Report:      report,
		Outcome:     OutcomeSnapshot{PassRate: 0.4, MissingRoutes: 3},
	}
	if err := store.CreateRun(first); err != nil {
		t.Fatalf("CreateRun error: %v", err)
	}
	if err := store.CreateRun(second); err != nil {
		t.Fatalf("CreateRun error: %v", err)
	}

	overview := store.GetMetricsOverview()
	if overview.TotalRuns != 2 {
		t.Fatalf("expected 2 total runs, got %d", overview.TotalRuns)
	}
	if overview.PassRuns != 1 || overview.FailRuns != 1 {
		t.Fatalf("unexpected pass/fail counts: %+v", overview)
	}
	if overview.MissingRoutes != 5 {
		t.Fatalf("expected 5 missing routes, got %d", overview.MissingRoutes)
	}
	if overview.OrphanedResources != 1 {
		t.Fatalf("expected 1 orphaned resource, got %d", overview.OrphanedResources)
	}
	if overview.AveragePassRate < 0.59 || overview.AveragePassRate > 0.61 {
		t.Fatalf("expected average pass rate ~0.6, got %f", overview.AveragePassRate)
	}
	if overview.AverageDuration != 20000 {
		t.Fatalf("expected average duration 20000ms, got %d", overview.AverageDuration)
	}
}
