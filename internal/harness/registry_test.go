package harness

import (
	"context"
	"errors"
	"testing"
)

func TestRegistryIdempotentRegister(t *testing.T) {
	registry := NewRegistry()
	registry.Register("achievement", "42", "achievements.create")
	registry.Register("achievement", "42", "achievements.create")
	registry.Register("achievement", "43", "achievements.create")
	registry.Register("share", "42", "social.share")

	if got := registry.List("achievement"); len(got) != 2 {
		t.Fatalf("expected 2 achievements, got %v", got)
	}
	if got := registry.List("share"); len(got) != 1 {
		t.Fatalf("expected 1 share, got %v", got)
	}
	latest, ok := registry.Latest("achievement")
	if !ok || latest != "43" {
		t.Fatalf("expected latest achievement 43, got %q", latest)
	}
}

func TestRegistryIgnoresEmptyKeys(t *testing.T) {
	registry := NewRegistry()
	registry.Register("", "42", "x")
	registry.Register("achievement", "", "x")
	if got := registry.All(); len(got) != 0 {
		t.Fatalf("expected nothing registered, got %v", got)
	}
}

func TestCleanupReverseOrderAndFailSoft(t *testing.T) {
	registry := NewRegistry()
	registry.Register("bracket", "b1", "brackets.create")
	registry.Register("prediction", "p1", "predictions.create")
	registry.Register("bracket", "b2", "brackets.create")

	var order []string
	deleters := map[string]DeleteFunc{
		"bracket": func(ctx context.Context, resType, id string) error {
			order = append(order, id)
			if id == "b1" {
				return errors.New("409 still referenced")
			}
			return nil
		},
		"prediction": func(ctx context.Context, resType, id string) error {
			order = append(order, id)
			return nil
		},
	}
	report := registry.Cleanup(context.Background(), deleters)

	if len(order) != 3 || order[0] != "b2" || order[1] != "p1" || order[2] != "b1" {
		t.Fatalf("expected reverse creation order b2,p1,b1, got %v", order)
	}
	if len(report.Deleted) != 2 {
		t.Fatalf("expected 2 deleted, got %v", report.Deleted)
	}
	if len(report.Orphaned) != 1 || report.Orphaned[0].ID != "b1" {
		t.Fatalf("expected b1 orphaned, got %v", report.Orphaned)
	}
	// failed resources stay registered for a later pass
	if got := registry.List("bracket"); len(got) != 1 || got[0] != "b1" {
		t.Fatalf("expected b1 to remain registered, got %v", got)
	}
	if got := registry.List("prediction"); len(got) != 0 {
		t.Fatalf("expected predictions cleared, got %v", got)
	}
}

func TestCleanupMissingDeleterOrphans(t *testing.T) {
	registry := NewRegistry()
	registry.Register("mystery", "m1", "somewhere")
	report := registry.Cleanup(context.Background(), map[string]DeleteFunc{})
	if len(report.Orphaned) != 1 {
		t.Fatalf("expected 1 orphan, got %v", report.Orphaned)
	}
	if report.Orphaned[0].Error == "" {
		t.Fatalf("expected orphan reason to be recorded")
	}
}
