package harness

import (
	"math"
	"testing"
)

func TestSummaryPartitionsResults(t *testing.T) {
	agg := NewAggregator()
	agg.Record(ProbeResult{Test: "a", Category: "achievements", Verdict: VerdictSuccess})
	agg.Record(ProbeResult{Test: "b", Category: "achievements", Verdict: VerdictAuthRequired})
	agg.Record(ProbeResult{Test: "c", Category: "fraud-detection", Verdict: VerdictNotImplemented})
	agg.Record(ProbeResult{Test: "d", Category: "fraud-detection", Verdict: VerdictSkipped})
	agg.Record(ProbeResult{Test: "e", Category: "social", Verdict: VerdictServerFault})

	summary := agg.Summary()
	if summary.Total != 5 {
		t.Fatalf("expected total 5, got %d", summary.Total)
	}
	if summary.Passed != 2 || summary.Failed != 2 || summary.Skipped != 1 {
		t.Fatalf("unexpected partition: %+v", summary)
	}
	// skipped results stay out of the denominator
	if math.Abs(summary.Rate-0.5) > 1e-9 {
		t.Fatalf("expected rate 0.5, got %f", summary.Rate)
	}
}

func TestSummaryEmptyAggregator(t *testing.T) {
	summary := NewAggregator().Summary()
	if summary.Total != 0 || summary.Rate != 0 {
		t.Fatalf("expected zero summary, got %+v", summary)
	}
}

func TestSummaryExpectedVerdictCountsAsPass(t *testing.T) {
	agg := NewAggregator()
	agg.Record(ProbeResult{Test: "guard", Verdict: VerdictAuthRequired, Expected: VerdictAuthRequired})
	agg.Record(ProbeResult{Test: "guard2", Verdict: VerdictSuccess, Expected: VerdictAuthRequired})
	summary := agg.Summary()
	if summary.Passed != 1 || summary.Failed != 1 {
		t.Fatalf("expectation hint not honored: %+v", summary)
	}
}

func TestByCategoryPreservesFirstSeenOrder(t *testing.T) {
	agg := NewAggregator()
	agg.Record(ProbeResult{Test: "a", Category: "leaderboards", Verdict: VerdictSuccess})
	agg.Record(ProbeResult{Test: "b", Category: "achievements", Verdict: VerdictNotImplemented})
	agg.Record(ProbeResult{Test: "c", Category: "leaderboards", Verdict: VerdictSkipped})
	agg.Record(ProbeResult{Test: "d", Category: "", Verdict: VerdictSuccess})

	categories := agg.ByCategory(CategoryByTag)
	if len(categories) != 3 {
		t.Fatalf("expected 3 categories, got %v", categories)
	}
	if categories[0].Name != "leaderboards" || categories[1].Name != "achievements" || categories[2].Name != "uncategorized" {
		t.Fatalf("unexpected order: %v", categories)
	}
	if categories[0].Passed != 1 || categories[0].Total != 2 {
		t.Fatalf("leaderboards should be 1/2, got %d/%d", categories[0].Passed, categories[0].Total)
	}
}

func TestCompareToBaseline(t *testing.T) {
	agg := NewAggregator()
	agg.Record(ProbeResult{Test: "a", Verdict: VerdictSuccess})
	agg.Record(ProbeResult{Test: "b", Verdict: VerdictNotImplemented})

	delta := agg.CompareToBaseline(0.25)
	if math.Abs(delta-0.25) > 1e-9 {
		t.Fatalf("expected delta 0.25, got %f", delta)
	}
	if agg.CompareToBaseline(0.75) >= 0 {
		t.Fatalf("expected negative delta against a stronger baseline")
	}
}
