package harness

import "sync"

type Summary struct {
	Total   int     `json:"total"`
	Passed  int     `json:"passed"`
	Failed  int     `json:"failed"`
	Skipped int     `json:"skipped,omitempty"`
	Rate    float64 `json:"rate"`
}

type CategorySummary struct {
	Name   string `json:"name"`
	Passed int    `json:"passed"`
	Total  int    `json:"total"`
}

// Aggregator accumulates one immutable record per probe and derives
// summaries on demand. It knows nothing about categories beyond the label
// function callers hand it.
type Aggregator struct {
	mu      sync.Mutex
	results []ProbeResult
}

func NewAggregator() *Aggregator {
	return &Aggregator{}
}

func (a *Aggregator) Record(result ProbeResult) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.results = append(a.results, result)
}

func (a *Aggregator) Results() []ProbeResult {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]ProbeResult, len(a.results))
	copy(out, a.results)
	return out
}

// Summary computes run-level counts. Skipped probes sit outside the rate
// denominator so an environment problem does not depress the rate.
func (a *Aggregator) Summary() Summary {
	a.mu.Lock()
	defer a.mu.Unlock()
	summary := Summary{Total: len(a.results)}
	for _, result := range a.results {
		switch {
		case result.Verdict == VerdictSkipped:
			summary.Skipped++
		case result.Passed():
			summary.Passed++
		default:
			summary.Failed++
		}
	}
	if scored := summary.Passed + summary.Failed; scored > 0 {
		summary.Rate = float64(summary.Passed) / float64(scored)
	}
	return summary
}

// ByCategory partitions results with the supplied label function,
// preserving first-seen category order.
func (a *Aggregator) ByCategory(labelFn func(ProbeResult) string) []CategorySummary {
	a.mu.Lock()
	defer a.mu.Unlock()
	index := map[string]int{}
	out := []CategorySummary{}
	for _, result := range a.results {
		name := labelFn(result)
		i, ok := index[name]
		if !ok {
			i = len(out)
			index[name] = i
			out = append(out, CategorySummary{Name: name})
		}
		out[i].Total++
		if result.Verdict != VerdictSkipped && result.Passed() {
			out[i].Passed++
		}
	}
	return out
}

// CompareToBaseline returns the rate delta against a previously recorded
// aggregate rate. Positive means this run improved.
func (a *Aggregator) CompareToBaseline(previousRate float64) float64 {
	return a.Summary().Rate - previousRate
}

// CategoryByTag is the default label function: the explicit category tag
// assigned at probe-definition time.
func CategoryByTag(result ProbeResult) string {
	if result.Category == "" {
		return "uncategorized"
	}
	return result.Category
}
