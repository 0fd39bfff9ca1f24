package server

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
)

// TargetLease is held for the lifetime of a run against one target.
// Release must be called exactly once, success or not.
type TargetLease struct {
	Host      string
	targetRef *targetState
	manager   *TargetLeaseManager
}

// TargetLeaseManager serializes runs per target host and caps the
// number of runs in flight across all targets. Concurrent runs against
// one platform instance would race on resource creation and cleanup.
type TargetLeaseManager struct {
	mu          sync.Mutex
	targets     map[string]*targetState
	allowed     []string
	maxParallel int
	active      int
}

type targetState struct {
	Host      string
	Leased    bool
	RunsTotal int
}

func NewTargetLeaseManager(cfg ServerConfig) *TargetLeaseManager {
	maxParallel := cfg.Runs.MaxParallelRuns
	if maxParallel <= 0 {
		maxParallel = 2
	}
	var allowed []string
	for _, host := range cfg.Security.AllowedTargetHosts {
		host = strings.ToLower(strings.TrimSpace(host))
		if host != "" {
			allowed = append(allowed, host)
		}
	}
	return &TargetLeaseManager{
		targets:     map[string]*targetState{},
		allowed:     allowed,
		maxParallel: maxParallel,
	}
}

// ValidateTarget parses the base URL and checks it against the allowlist.
// An empty allowlist accepts any host; that is the local-dev posture.
func (m *TargetLeaseManager) ValidateTarget(rawURL string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || parsed.Host == "" {
		return "", fmt.Errorf("invalid target url: %q", rawURL)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("unsupported target scheme: %q", parsed.Scheme)
	}
	host := strings.ToLower(parsed.Hostname())
	if len(m.allowed) == 0 {
		return host, nil
	}
	for _, candidate := range m.allowed {
		if host == candidate {
			return host, nil
		}
	}
	return "", fmt.Errorf("target host %q is not in the allowlist", host)
}

func (m *TargetLeaseManager) Acquire(rawURL string) (TargetLease, error) {
	host, err := m.ValidateTarget(rawURL)
	if err != nil {
		return TargetLease{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active >= m.maxParallel {
		return TargetLease{}, errors.New("run capacity reached; retry later")
	}
	state, ok := m.targets[host]
	if !ok {
		state = &targetState{Host: host}
		m.targets[host] = state
	}
	if state.Leased {
		return TargetLease{}, fmt.Errorf("a run against %s is already in flight", host)
	}
	state.Leased = true
	state.RunsTotal++
	m.active++
	return TargetLease{Host: host, targetRef: state, manager: m}, nil
}

func (m *TargetLeaseManager) Release(lease TargetLease) {
	if lease.targetRef == nil || lease.manager != m {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if lease.targetRef.Leased {
		lease.targetRef.Leased = false
		if m.active > 0 {
			m.active--
		}
	}
}

// ActiveRuns reports how many leases are currently held.
func (m *TargetLeaseManager) ActiveRuns() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}
