package harness

import (
	"fmt"
	"strings"
)

// RegressionSummary frames the current run against a previously recorded
// artifact: did the aggregate rate or any category get worse.
type RegressionSummary struct {
	BaselineGeneratedAt string   `json:"baseline_generated_at"`
	BaselineRate        float64  `json:"baseline_rate"`
	CurrentRate         float64  `json:"current_rate"`
	RateDelta           float64  `json:"rate_delta"`
	Improved            bool     `json:"improved"`
	DegradedCategories  []string `json:"degraded_categories,omitempty"`
	NewCategories       []string `json:"new_categories,omitempty"`
	Findings            []string `json:"findings,omitempty"`
}

// CompareArtifacts computes rate drift and per-category degradation
// against a baseline artifact.
func CompareArtifacts(current, baseline Artifact) RegressionSummary {
	out := RegressionSummary{
		BaselineGeneratedAt: baseline.GeneratedAt,
		BaselineRate:        baseline.Summary.Rate,
		CurrentRate:         current.Summary.Rate,
		RateDelta:           current.Summary.Rate - baseline.Summary.Rate,
		DegradedCategories:  []string{},
		NewCategories:       []string{},
		Findings:            []string{},
	}
	out.Improved = out.RateDelta > 0

	if strings.TrimSpace(current.Target) != strings.TrimSpace(baseline.Target) {
		out.Findings = append(out.Findings, fmt.Sprintf("target mismatch: current=%s baseline=%s", current.Target, baseline.Target))
	}

	baselineRates := map[string]float64{}
	for _, category := range baseline.Categories {
		baselineRates[category.Name] = categoryRate(category)
	}
	for _, category := range current.Categories {
		previous, known := baselineRates[category.Name]
		if !known {
			out.NewCategories = append(out.NewCategories, category.Name)
			continue
		}
		rate := categoryRate(category)
		if rate < previous {
			out.DegradedCategories = append(out.DegradedCategories, category.Name)
			out.Findings = append(out.Findings, fmt.Sprintf(
				"%s degraded: current=%.3f baseline=%.3f", category.Name, rate, previous))
		}
	}

	switch {
	case out.RateDelta < 0:
		out.Findings = append(out.Findings, fmt.Sprintf("aggregate rate dropped by %.1f points", -out.RateDelta*100))
	case out.RateDelta > 0:
		out.Findings = append(out.Findings, fmt.Sprintf("aggregate rate improved by %.1f points", out.RateDelta*100))
	}
	return out
}

func categoryRate(category CategorySummary) float64 {
	if category.Total == 0 {
		return 0
	}
	return float64(category.Passed) / float64(category.Total)
}
