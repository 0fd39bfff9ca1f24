package server

import "testing"

func TestScenarioToRunRequest(t *testing.T) {
	cfg := DefaultServerConfig()
	request, err := scenarioToRunRequest(QuickCheckRequest{
		ScenarioID: "core-smoke",
		Target:     "http://arena.local:3000",
	}, cfg)
	if err != nil {
		t.Fatalf("scenarioToRunRequest returned error: %v", err)
	}
	if request.Target == "" {
		t.Fatalf("expected target to be set")
	}
	if len(request.Features) != 2 {
		t.Fatalf("expected two features for core-smoke, got %v", request.Features)
	}
	if request.Threshold != cfg.Runs.DefaultThreshold {
		t.Fatalf("expected default threshold, got %f", request.Threshold)
	}
}

func TestScenarioToRunRequestRejectUnknownScenario(t *testing.T) {
	cfg := DefaultServerConfig()
	_, err := scenarioToRunRequest(QuickCheckRequest{
		ScenarioID: "unknown",
		Target:     "http://arena.local:3000",
	}, cfg)
	if err == nil {
		t.Fatalf("expected error for unsupported scenario")
	}
}

func TestScenarioToRunRequestRequiresTarget(t *testing.T) {
	cfg := DefaultServerConfig()
	_, err := scenarioToRunRequest(QuickCheckRequest{ScenarioID: "full-sweep"}, cfg)
	if err == nil {
		t.Fatalf("expected error when target missing")
	}
}

func TestTargetLeaseManagerSerializesPerHost(t *testing.T) {
	cfg := DefaultServerConfig()
	cfg.Runs.MaxParallelRuns = 4
	manager := NewTargetLeaseManager(cfg)

	lease, err := manager.Acquire("http://arena.local:3000")
	if err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}
	if _, err := manager.Acquire("http://arena.local:3000/api"); err == nil {
		t.Fatalf("expected second acquire on same host to fail")
	}
	if _, err := manager.Acquire("http://other.local:3000"); err != nil {
		t.Fatalf("acquire on different host failed: %v", err)
	}
	manager.Release(lease)
	if _, err := manager.Acquire("http://arena.local:3000"); err != nil {
		t.Fatalf("acquire after release failed: %v", err)
	}
}

func TestTargetLeaseManagerAllowlist(t *testing.T) {
	cfg := DefaultServerConfig()
	cfg.Security.AllowedTargetHosts = []string{"staging.arena.example"}
	manager := NewTargetLeaseManager(cfg)

	if _, err := manager.ValidateTarget("http://staging.arena.example:3000"); err != nil {
		t.Fatalf("allowlisted host rejected: %v", err)
	}
	if _, err := manager.ValidateTarget("http://rogue.example"); err == nil {
		t.Fatalf("expected host outside allowlist to be rejected")
	}
	if _, err := manager.ValidateTarget("ftp://staging.arena.example"); err == nil {
		t.Fatalf("expected non-http scheme to be rejected")
	}
}

func TestTargetLeaseManagerParallelCap(t *testing.T) {
	cfg := DefaultServerConfig()
	cfg.Runs.MaxParallelRuns = 1
	manager := NewTargetLeaseManager(cfg)

	if _, err := manager.Acquire("http://one.local"); err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}
	if _, err := manager.Acquire("http://two.local"); err == nil {
		t.Fatalf("expected capacity error with max parallel 1")
	}
}
