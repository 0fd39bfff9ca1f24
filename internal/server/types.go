package server

import (
	"time"

	"arena-verify/internal/harness"
)

type Principal struct {
	Subject  string `json:"subject"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

type RunRequest struct {
	Target      string   `json:"target"`
	Features    []string `json:"features"`
	Threshold   float64  `json:"threshold,omitempty"`
	TimeoutSec  int      `json:"timeout_sec,omitempty"`
	SkipCleanup bool     `json:"skip_cleanup,omitempty"`
}

type QuickCheckRequest struct {
	ScenarioID string `json:"scenario_id"`
	Target     string `json:"target"`
}

type RunMeta struct {
	RunID       string            `json:"run_id"`
	Status      string            `json:"status"`
	CreatorType string            `json:"creator_type"`
	CreatorSub  string            `json:"creator_sub,omitempty"`
	Source      string            `json:"source"`
	Request     RunRequest        `json:"request"`
	StartedAt   string            `json:"started_at,omitempty"`
	FinishedAt  string            `json:"finished_at,omitempty"`
	CreatedAt   string            `json:"created_at"`
	Error       string            `json:"error,omitempty"`
	Report      *harness.Artifact `json:"report,omitempty"`
	Outcome     OutcomeSnapshot   `json:"outcome"`
}

// OutcomeSnapshot is the run-level rollup stored alongside the full
// artifact, so list views never parse the whole report.
type OutcomeSnapshot struct {
	PassRate          float64 `json:"pass_rate"`
	MissingRoutes     int     `json:"missing_routes"`
	ServerFaults      int     `json:"server_faults"`
	SkippedProbes     int     `json:"skipped_probes"`
	OrphanedResources int     `json:"orphaned_resources"`
}

type AuditEvent struct {
	Timestamp string `json:"timestamp"`
	RunID     string `json:"run_id,omitempty"`
	ActorType string `json:"actor_type"`
	ActorSub  string `json:"actor_sub,omitempty"`
	Action    string `json:"action"`
	Result    string `json:"result"`
	IPHash    string `json:"ip_hash,omitempty"`
	UAHash    string `json:"ua_hash,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

type RunEvent struct {
	Seq       int64          `json:"seq"`
	Timestamp string         `json:"timestamp"`
	Stage     string         `json:"stage"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
}

type MetricsOverview struct {
	GeneratedAt       string  `json:"generated_at"`
	TotalRuns         int     `json:"total_runs"`
	RunningRuns       int     `json:"running_runs"`
	PassRuns          int     `json:"pass_runs"`
	FailRuns          int     `json:"fail_runs"`
	AveragePassRate   float64 `json:"average_pass_rate"`
	AverageDuration   int64   `json:"average_duration_ms"`
	MissingRoutes     int     `json:"missing_routes"`
	OrphanedResources int     `json:"orphaned_resources"`
}

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func outcomeFromArtifact(artifact harness.Artifact) OutcomeSnapshot {
	out := OutcomeSnapshot{
		PassRate:      artifact.Summary.Rate,
		SkippedProbes: artifact.Summary.Skipped,
	}
	for _, result := range artifact.Results {
		switch result.Verdict {
		case harness.VerdictNotImplemented:
			out.MissingRoutes++
		case harness.VerdictServerFault:
			out.ServerFaults++
		}
	}
	if artifact.Cleanup != nil {
		out.OrphanedResources = len(artifact.Cleanup.Orphaned)
	}
	return out
}
