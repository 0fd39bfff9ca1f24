package harness

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type TrackedResource struct {
	Type      string    `json:"type"`
	ID        string    `json:"id"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

// Registry records identifiers created by probes so later probes can reuse
// them and the cleanup pass can delete them.
type Registry struct {
	mu    sync.Mutex
	items []TrackedResource
	seen  map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{seen: map[string]struct{}{}}
}

// Register is idempotent on the (type, id) pair.
func (r *Registry) Register(resType, id, createdBy string) {
	if resType == "" || id == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	key := resType + "\x00" + id
	if _, dup := r.seen[key]; dup {
		return
	}
	r.seen[key] = struct{}{}
	r.items = append(r.items, TrackedResource{
		Type:      resType,
		ID:        id,
		CreatedBy: createdBy,
		CreatedAt: time.Now(),
	})
}

// List returns ids of the given type in insertion order.
func (r *Registry) List(resType string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []string{}
	for _, item := range r.items {
		if item.Type == resType {
			out = append(out, item.ID)
		}
	}
	return out
}

// Latest returns the most recently registered id of the given type.
func (r *Registry) Latest(resType string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.items) - 1; i >= 0; i-- {
		if r.items[i].Type == resType {
			return r.items[i].ID, true
		}
	}
	return "", false
}

func (r *Registry) All() []TrackedResource {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]TrackedResource, len(r.items))
	copy(out, r.items)
	return out
}

type DeleteFunc func(ctx context.Context, resType, id string) error

type CleanupOutcome struct {
	Type  string `json:"type"`
	ID    string `json:"id"`
	Error string `json:"error,omitempty"`
}

type CleanupReport struct {
	Deleted  []CleanupOutcome `json:"deleted"`
	Orphaned []CleanupOutcome `json:"orphaned"`
}

// Cleanup deletes registered resources in reverse creation order so that
// dependents go before their dependencies. Individual failures never abort
// the pass; failed resources stay registered and are reported as orphaned.
func (r *Registry) Cleanup(ctx context.Context, deleters map[string]DeleteFunc) CleanupReport {
	r.mu.Lock()
	items := make([]TrackedResource, len(r.items))
	copy(items, r.items)
	r.mu.Unlock()

	report := CleanupReport{Deleted: []CleanupOutcome{}, Orphaned: []CleanupOutcome{}}
	remaining := make([]TrackedResource, 0, len(items))
	for i := len(items) - 1; i >= 0; i-- {
		item := items[i]
		deleter, ok := deleters[item.Type]
		if !ok {
			report.Orphaned = append(report.Orphaned, CleanupOutcome{Type: item.Type, ID: item.ID, Error: "no deleter registered for type"})
			remaining = append(remaining, item)
			slog.Warn("resource orphaned", "type", item.Type, "id", item.ID, "reason", "no deleter")
			continue
		}
		if err := deleter(ctx, item.Type, item.ID); err != nil {
			report.Orphaned = append(report.Orphaned, CleanupOutcome{Type: item.Type, ID: item.ID, Error: err.Error()})
			remaining = append(remaining, item)
			slog.Warn("resource orphaned", "type", item.Type, "id", item.ID, "error", err)
			continue
		}
		report.Deleted = append(report.Deleted, CleanupOutcome{Type: item.Type, ID: item.ID})
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = r.items[:0]
	r.seen = map[string]struct{}{}
	// remaining is in reverse creation order; restore insertion order.
	for i := len(remaining) - 1; i >= 0; i-- {
		item := remaining[i]
		r.items = append(r.items, item)
		r.seen[item.Type+"\x00"+item.ID] = struct{}{}
	}
	return report
}
