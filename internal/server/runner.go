package server

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"arena-verify/internal/harness"
	"arena-verify/internal/platform"
)

type RunManager struct {
	cfg        ServerConfig
	store      Store
	targets    *TargetLeaseManager
	obs        *Observability
	queue      chan queuedRun
	wg         sync.WaitGroup
	quickLimit *ipRateLimiter
}

type RunnerService interface {
	CreateAdminRun(request RunRequest, principal Principal, source string) (RunMeta, error)
	CreateQuickCheck(request QuickCheckRequest, ipHash, uaHash string) (RunMeta, error)
}

type queuedRun struct {
	RunID       string
	Request     RunRequest
	Creator     Principal
	CreatorType string
	Source      string
}

func NewRunManager(cfg ServerConfig, store Store, targets *TargetLeaseManager, obs *Observability) *RunManager {
	maxParallel := cfg.Runs.MaxParallelRuns
	if maxParallel <= 0 {
		maxParallel = 2
	}
	manager := &RunManager{
		cfg:        cfg,
		store:      store,
		targets:    targets,
		obs:        obs,
		queue:      make(chan queuedRun, maxParallel*8),
		quickLimit: newIPRateLimiter(cfg.Limits.QuickCheckRPM),
	}
	for i := 0; i < maxParallel; i++ {
		manager.wg.Add(1)
		go func() {
			defer manager.wg.Done()
			manager.worker()
		}()
	}
	return manager
}

func (m *RunManager) Shutdown() {
	close(m.queue)
	m.wg.Wait()
}

func (m *RunManager) CreateAdminRun(request RunRequest, principal Principal, source string) (RunMeta, error) {
	request.Target = strings.TrimSpace(request.Target)
	if request.Target == "" {
		return RunMeta{}, errors.New("target is required")
	}
	if _, err := m.targets.ValidateTarget(request.Target); err != nil {
		return RunMeta{}, err
	}
	if request.Threshold <= 0 || request.Threshold > 1 {
		request.Threshold = m.cfg.Runs.DefaultThreshold
	}
	if request.TimeoutSec <= 0 {
		request.TimeoutSec = m.cfg.Runs.DefaultTimeoutSec
	}
	if len(request.Features) == 0 {
		request.Features = harness.DefaultFeatureOrder()
	}
	runID, err := randomID("run")
	if err != nil {
		return RunMeta{}, err
	}
	meta := RunMeta{
		RunID:       runID,
		Status:      "queued",
		Source:      source,
		CreatorType: "admin",
		CreatorSub:  principal.Subject,
		Request:     request,
		CreatedAt:   nowRFC3339(),
	}
	if err := m.store.CreateRun(meta); err != nil {
		return RunMeta{}, err
	}
	_, _ = m.store.AppendRunEvent(runID, "queue", "run queued", map[string]any{
		"source": source,
		"target": request.Target,
	})
	_ = m.store.AppendAudit(AuditEvent{
		Timestamp: nowRFC3339(),
		RunID:     runID,
		ActorType: "admin",
		ActorSub:  principal.Subject,
		Action:    "run.create",
		Result:    "queued",
	})
	m.queue <- queuedRun{
		RunID:       runID,
		Request:     request,
		Creator:     principal,
		CreatorType: "admin",
		Source:      source,
	}
	return meta, nil
}

func (m *RunManager) CreateQuickCheck(request QuickCheckRequest, ipHash, uaHash string) (RunMeta, error) {
	if !m.quickLimit.Allow(ipHash) {
		if m.obs != nil {
			m.obs.MarkSkipped(context.Background(), "quick_check_rate_limit")
		}
		_ = m.store.AppendAudit(AuditEvent{
			Timestamp: nowRFC3339(),
			ActorType: "user",
			Action:    "quick_check.reject",
			Result:    "rate_limited",
			IPHash:    ipHash,
			UAHash:    uaHash,
		})
		return RunMeta{}, errors.New("quick check rate limit reached")
	}
	runRequest, err := scenarioToRunRequest(request, m.cfg)
	if err != nil {
		return RunMeta{}, err
	}
	if _, err := m.targets.ValidateTarget(runRequest.Target); err != nil {
		return RunMeta{}, err
	}
	runID, err := randomID("run")
	if err != nil {
		return RunMeta{}, err
	}
	meta := RunMeta{
		RunID:       runID,
		Status:      "queued",
		Source:      "user.quick_check",
		CreatorType: "user",
		Request:     runRequest,
		CreatedAt:   nowRFC3339(),
	}
	if err := m.store.CreateRun(meta); err != nil {
		return RunMeta{}, err
	}
	_, _ = m.store.AppendRunEvent(runID, "queue", "quick check queued", map[string]any{
		"scenario_id": request.ScenarioID,
	})
	_ = m.store.AppendAudit(AuditEvent{
		Timestamp: nowRFC3339(),
		RunID:     runID,
		ActorType: "user",
		Action:    "quick_check.create",
		Result:    "queued",
		IPHash:    ipHash,
		UAHash:    uaHash,
		Detail:    request.ScenarioID,
	})
	m.queue <- queuedRun{
		RunID:       runID,
		Request:     runRequest,
		CreatorType: "user",
		Source:      "user.quick_check",
	}
	return meta, nil
}

func (m *RunManager) worker() {
	for queued := range m.queue {
		m.executeRun(queued)
	}
}

func (m *RunManager) executeRun(queued queuedRun) {
	lease, err := m.targets.Acquire(queued.Request.Target)
	if err != nil {
		_, _ = m.store.UpdateRun(queued.RunID, func(meta *RunMeta) {
			meta.Status = "fail"
			meta.Error = "target unavailable: " + err.Error()
			meta.FinishedAt = nowRFC3339()
		})
		_, _ = m.store.AppendRunEvent(queued.RunID, "error", "target unavailable", map[string]any{"error": err.Error()})
		if m.obs != nil {
			m.obs.MarkRun(context.Background(), "fail")
		}
		return
	}
	defer m.targets.Release(lease)

	startedAt := nowRFC3339()
	_, _ = m.store.UpdateRun(queued.RunID, func(meta *RunMeta) {
		meta.Status = "running"
		meta.StartedAt = startedAt
	})
	_, _ = m.store.AppendRunEvent(queued.RunID, "start", "run started", nil)

	timeout := time.Duration(queued.Request.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = time.Duration(m.cfg.Runs.DefaultTimeoutSec) * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	client := platform.NewClient(platform.Config{
		BaseURL: queued.Request.Target,
		Timeout: 10 * time.Second,
		DefaultHeaders: map[string]string{
			"Accept": "application/json",
		},
	})
	orch := harness.NewOrchestrator(client, harness.RunConfig{
		BaseURL:     queued.Request.Target,
		Features:    queued.Request.Features,
		SkipCleanup: queued.Request.SkipCleanup,
	})
	featureStart := map[string]time.Time{}
	orch.OnEvent(func(event harness.Event) {
		_, _ = m.store.AppendRunEvent(queued.RunID, event.Stage, event.Message, event.Data)
		if m.obs == nil {
			return
		}
		feature := strings.TrimSpace(fmt.Sprint(event.Data["feature"]))
		switch event.Stage {
		case "feature_start":
			featureStart[feature] = time.Now()
		case "feature_done":
			if start, ok := featureStart[feature]; ok {
				m.obs.MarkFeature(ctx, feature, time.Since(start).Milliseconds())
			}
		case "probe_result":
			if fmt.Sprint(event.Data["verdict"]) == string(harness.VerdictSkipped) {
				m.obs.MarkSkipped(ctx, "prerequisite")
			}
		}
	})

	cleanup := orch.Run(ctx)
	artifact := harness.BuildArtifact(queued.Request.Target, orch.Aggregator(), nil)
	artifact.Cleanup = &cleanup

	outcome := outcomeFromArtifact(artifact)
	status := "pass"
	if artifact.Summary.Rate < queued.Request.Threshold {
		status = "fail"
	}
	_, _ = m.store.UpdateRun(queued.RunID, func(meta *RunMeta) {
		meta.Status = status
		meta.FinishedAt = nowRFC3339()
		meta.Report = &artifact
		meta.Outcome = outcome
		if status == "fail" {
			meta.Error = fmt.Sprintf("pass rate %.2f below threshold %.2f", artifact.Summary.Rate, queued.Request.Threshold)
		}
	})
	_, _ = m.store.AppendRunEvent(queued.RunID, "completed", "run completed", map[string]any{
		"status":    status,
		"pass_rate": artifact.Summary.Rate,
		"orphaned":  len(cleanup.Orphaned),
	})
	_ = m.store.AppendAudit(AuditEvent{
		Timestamp: nowRFC3339(),
		RunID:     queued.RunID,
		ActorType: queued.CreatorType,
		ActorSub:  queued.Creator.Subject,
		Action:    "run.completed",
		Result:    status,
		Detail:    fmt.Sprintf("rate=%.2f target=%s", artifact.Summary.Rate, lease.Host),
	})
	if m.obs != nil {
		m.obs.MarkRun(ctx, status)
		m.obs.MarkOrphans(ctx, lease.Host, int64(len(cleanup.Orphaned)))
	}
}

func randomID(prefix string) (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return prefix + "_" + hex.EncodeToString(b), nil
}

// scenarioToRunRequest maps the small fixed set of user-facing scenarios
// onto full run requests. Users never pick arbitrary feature lists.
func scenarioToRunRequest(input QuickCheckRequest, cfg ServerConfig) (RunRequest, error) {
	scenario := strings.ToLower(strings.TrimSpace(input.ScenarioID))
	target := strings.TrimSpace(input.Target)
	if target == "" {
		return RunRequest{}, errors.New("target is required")
	}
	base := RunRequest{
		Target:     target,
		Threshold:  cfg.Runs.DefaultThreshold,
		TimeoutSec: cfg.Runs.DefaultTimeoutSec,
	}
	switch scenario {
	case "core-smoke":
		base.Features = []string{"achievements", "leaderboards"}
	case "social-smoke":
		base.Features = []string{"social"}
	case "fraud-readonly":
		base.Features = []string{"fraud-detection"}
	case "full-sweep":
		base.Features = harness.DefaultFeatureOrder()
	default:
		return RunRequest{}, errors.New("unsupported scenario_id")
	}
	return base, nil
}

type ipRateLimiter struct {
	mu      sync.Mutex
	rpm     int
	records map[string][]time.Time
}

func newIPRateLimiter(rpm int) *ipRateLimiter {
	if rpm <= 0 {
		rpm = 6
	}
	return &ipRateLimiter{
		rpm:     rpm,
		records: map[string][]time.Time{},
	}
}

func (l *ipRateLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if strings.TrimSpace(key) == "" {
		key = "unknown"
	}
	now := time.Now()
	cutoff := now.Add(-1 * time.Minute)
	items := l.records[key]
	items = filterRecentTime(items, cutoff)
	if len(items) >= l.rpm {
		l.records[key] = items
		return false
	}
	items = append(items, now)
	l.records[key] = items
	return true
}

func filterRecentTime(items []time.Time, cutoff time.Time) []time.Time {
	if len(items) == 0 {
		return items
	}
	out := items[:0]
	for _, item := range items {
		if item.After(cutoff) {
			out = append(out, item)
		}
	}
	return out
}

func hashString(input string) string {
	sum := sha256Sum(input)
	return sum[:16]
}

func sha256Sum(input string) string {
	hash := sha256.New()
	_, _ = hash.Write([]byte(input))
	return hex.EncodeToString(hash.Sum(nil))
}
