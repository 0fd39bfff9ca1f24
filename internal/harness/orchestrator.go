package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"arena-verify/internal/platform"
)

type Phase string

const (
	PhaseInit           Phase = "init"
	PhaseAuthenticating Phase = "authenticating"
	PhaseProbing        Phase = "probing"
	PhaseCleanup        Phase = "cleanup"
	PhaseReporting      Phase = "reporting"
	PhaseDone           Phase = "done"
)

type Event struct {
	Stage   string
	Message string
	Data    map[string]any
}

// Orchestrator drives one full verification run: acquire sessions, walk
// the feature groups strictly in order, clean up created resources, and
// leave the aggregator ready for reporting. Probes never run in parallel.
type Orchestrator struct {
	client   *platform.Client
	sessions *SessionManager
	prober   *Prober
	registry *Registry
	agg      *Aggregator
	cfg      RunConfig
	roles    []RoleConfig
	groups   []FeatureGroup
	cleanups []CleanupSpec
	phase    Phase
	onEvent  func(Event)
	authErrs map[string]error
}

func NewOrchestrator(client *platform.Client, cfg RunConfig) *Orchestrator {
	roles := cfg.Roles
	if len(roles) == 0 {
		roles = DefaultRoles()
	}
	return &Orchestrator{
		client:   client,
		sessions: NewSessionManager(client),
		prober:   NewProber(client),
		registry: NewRegistry(),
		agg:      NewAggregator(),
		cfg:      cfg,
		roles:    roles,
		groups:   Catalogue(),
		cleanups: CleanupSpecs(),
		phase:    PhaseInit,
		onEvent:  func(Event) {},
		authErrs: map[string]error{},
	}
}

// OnEvent registers a progress callback. Must be set before Run.
func (o *Orchestrator) OnEvent(fn func(Event)) {
	if fn != nil {
		o.onEvent = fn
	}
}

func (o *Orchestrator) Phase() Phase {
	return o.phase
}

func (o *Orchestrator) Aggregator() *Aggregator {
	return o.agg
}

func (o *Orchestrator) Registry() *Registry {
	return o.registry
}

// Run executes all phases and returns the cleanup report. Probe failures
// never abort the run; only the caller decides what the aggregate means.
func (o *Orchestrator) Run(ctx context.Context) CleanupReport {
	o.enterPhase(PhaseAuthenticating)
	o.authenticateRoles(ctx)

	o.enterPhase(PhaseProbing)
	selected := o.selectGroups()
	for _, group := range selected {
		o.onEvent(Event{Stage: "feature_start", Message: "feature started", Data: map[string]any{"feature": group.Name}})
		for _, probe := range group.Probes {
			result := o.executeProbe(ctx, group.Name, probe)
			o.agg.Record(result)
			o.onEvent(Event{Stage: "probe_result", Message: result.Details, Data: map[string]any{
				"probe":       result.Test,
				"verdict":     string(result.Verdict),
				"status_code": result.StatusCode,
				"duration_ms": result.DurationMS,
			}})
		}
		o.onEvent(Event{Stage: "feature_done", Message: "feature finished", Data: map[string]any{"feature": group.Name}})
	}

	report := CleanupReport{Deleted: []CleanupOutcome{}, Orphaned: []CleanupOutcome{}}
	if !o.cfg.SkipCleanup {
		o.enterPhase(PhaseCleanup)
		report = o.registry.Cleanup(ctx, o.deleters())
		o.onEvent(Event{Stage: "cleanup", Message: "cleanup pass finished", Data: map[string]any{
			"deleted":  len(report.Deleted),
			"orphaned": len(report.Orphaned),
		}})
	}

	o.enterPhase(PhaseReporting)
	o.enterPhase(PhaseDone)
	return report
}

func (o *Orchestrator) enterPhase(phase Phase) {
	o.phase = phase
	o.onEvent(Event{Stage: "phase", Message: string(phase)})
}

func (o *Orchestrator) authenticateRoles(ctx context.Context) {
	for _, role := range o.roles {
		if _, err := o.sessions.Authenticate(ctx, role); err != nil {
			o.authErrs[role.Name] = err
			slog.Warn("role authentication failed; dependent probes will be skipped", "role", role.Name, "error", err)
			o.onEvent(Event{Stage: "auth_failed", Message: err.Error(), Data: map[string]any{"role": role.Name}})
			continue
		}
		o.onEvent(Event{Stage: "auth_ok", Message: "session acquired", Data: map[string]any{"role": role.Name}})
	}
}

func (o *Orchestrator) selectGroups() []FeatureGroup {
	wanted := o.cfg.Features
	if len(wanted) == 0 {
		return o.groups
	}
	byName := map[string]FeatureGroup{}
	for _, group := range o.groups {
		byName[group.Name] = group
	}
	out := make([]FeatureGroup, 0, len(wanted))
	for _, name := range wanted {
		group, ok := byName[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			slog.Warn("unknown feature requested", "feature", name)
			continue
		}
		out = append(out, group)
	}
	return out
}

func (o *Orchestrator) executeProbe(ctx context.Context, category string, probe CatalogProbe) ProbeResult {
	skipped := func(detail string) ProbeResult {
		return ProbeResult{
			Test:      probe.Name,
			Category:  category,
			Role:      probe.Role,
			Verdict:   VerdictSkipped,
			Details:   detail,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}
	}

	if probe.Role != "" && !o.sessions.HasRole(probe.Role) {
		authErr := o.authErrs[probe.Role]
		detail := fmt.Sprintf("role %q unavailable", probe.Role)
		if authErr != nil {
			detail += ": " + authErr.Error()
		}
		return skipped(detail)
	}

	path, ok := o.resolvePath(probe.Path)
	if !ok {
		return skipped("missing prerequisite resource for path " + probe.Path)
	}

	request := ProbeRequest{
		Name:     probe.Name,
		Category: category,
		Method:   probe.Method,
		Path:     path,
		Payload:  payloadOrNil(probe.Payload),
		Role:     probe.Role,
		Expect:   probe.Expect,
	}

	probeCtx, cancel := o.probeContext(ctx)
	defer cancel()

	var result ProbeResult
	var body []byte
	call := func() error {
		result, body = o.prober.Probe(probeCtx, request)
		return nil
	}
	if probe.Role != "" {
		_ = o.sessions.WithRole(probe.Role, call)
	} else {
		_ = o.sessions.WithoutRole(call)
	}

	if probe.Capture != nil && result.Verdict == VerdictSuccess {
		if id, found := extractIdentifier(body, probe.Capture.Field); found {
			o.registry.Register(probe.Capture.Type, id, probe.Name)
		} else {
			result.Details += "; no " + probe.Capture.Field + " in response to track"
		}
	}
	return result
}

func (o *Orchestrator) probeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := time.Duration(o.cfg.ProbeTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return context.WithTimeout(ctx, timeout)
}

// resolvePath substitutes {type} placeholders with the latest tracked id
// of that type. An unresolvable placeholder means a prerequisite probe did
// not create its resource.
func (o *Orchestrator) resolvePath(template string) (string, bool) {
	path := template
	for {
		start := strings.Index(path, "{")
		if start < 0 {
			return path, true
		}
		end := strings.Index(path[start:], "}")
		if end < 0 {
			return path, true
		}
		token := path[start+1 : start+end]
		id, ok := o.registry.Latest(token)
		if !ok {
			return "", false
		}
		path = path[:start] + id + path[start+end+1:]
	}
}

func (o *Orchestrator) deleters() map[string]DeleteFunc {
	out := map[string]DeleteFunc{}
	for _, spec := range o.cleanups {
		spec := spec
		out[spec.Type] = func(ctx context.Context, resType, id string) error {
			path := strings.ReplaceAll(spec.Path, "{id}", id)
			call := func() error {
				_, err := o.client.Do(ctx, http.MethodDelete, path, nil, platform.RequestOptions{})
				if err != nil {
					if apiErr, ok := platform.IsAPIError(err); ok && apiErr.StatusCode == 404 {
						// Already gone; good enough for cleanup.
						return nil
					}
					return err
				}
				return nil
			}
			if !o.sessions.HasRole(spec.Role) {
				return &NoSessionError{Role: spec.Role}
			}
			return o.sessions.WithRole(spec.Role, call)
		}
	}
	return out
}

func payloadOrNil(payload map[string]any) any {
	if len(payload) == 0 {
		return nil
	}
	return payload
}

// extractIdentifier pulls a created id out of a response body, checking
// the named field at the top level and under the data envelope.
func extractIdentifier(body []byte, field string) (string, bool) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(body, &top); err != nil {
		return "", false
	}
	if raw, ok := top[field]; ok {
		if id, ok := rawToID(raw); ok {
			return id, true
		}
	}
	if data, ok := top["data"]; ok {
		var nested map[string]json.RawMessage
		if err := json.Unmarshal(data, &nested); err == nil {
			if raw, ok := nested[field]; ok {
				return rawToID(raw)
			}
		}
	}
	return "", false
}

func rawToID(raw json.RawMessage) (string, bool) {
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		asString = strings.TrimSpace(asString)
		return asString, asString != ""
	}
	var asNumber json.Number
	if err := json.Unmarshal(raw, &asNumber); err == nil {
		return asNumber.String(), true
	}
	return "", false
}
