package conflict

import (
	"context"
	"strings"
	"testing"

	"github.com/karkhana/billsync/internal/models"
	"github.com/karkhana/billsync/internal/remote"
)

func TestResolveNoRulePassesThrough(t *testing.T) {
	r := NewResolver(remote.NewMemory())

	payload := models.Row{"id": "c1", "name": "Ravi Traders"}
	result, err := r.Resolve(context.Background(), "customers", payload)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if result.Changed {
		t.Error("no sequence rule, nothing should change")
	}
	if result.Payload["name"] != "Ravi Traders" {
		t.Errorf("payload altered: %v", result.Payload)
	}
}

func TestResolveNoCollisionKeepsCandidate(t *testing.T) {
	backend := remote.NewMemory()
	backend.Seed("entries", models.Row{"id": "1", "serial_no": "007", "loading_location": "BLR"})

	r := NewResolver(backend)
	payload := models.Row{"id": "e1", "serial_no": "008", "loading_location": "BLR"}
	result, err := r.Resolve(context.Background(), "entries", payload)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if result.Changed {
		t.Errorf("008 is free, expected no change, got %v", result.Payload["serial_no"])
	}
}

func TestResolveCollisionPreservesPadding(t *testing.T) {
	backend := remote.NewMemory()
	backend.Seed("entries", models.Row{"id": "1", "serial_no": "050", "loading_location": "BLR"})

	r := NewResolver(backend)
	payload := models.Row{"id": "e1", "serial_no": "050", "loading_location": "BLR"}
	result, err := r.Resolve(context.Background(), "entries", payload)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !result.Changed {
		t.Fatal("expected a replacement for colliding serial")
	}
	if result.Value != "051" {
		t.Errorf("expected 051 with padding kept, got %q", result.Value)
	}
	if result.Payload["serial_no"] != "051" {
		t.Errorf("payload not updated: %v", result.Payload["serial_no"])
	}
	if result.Column != "serial_no" {
		t.Errorf("expected serial_no, got %q", result.Column)
	}
	if result.Degraded {
		t.Error("max query succeeded, must not be degraded")
	}
}

func TestResolveCollisionPreservesPrefix(t *testing.T) {
	backend := remote.NewMemory()
	backend.Seed("sales", models.Row{"id": "1", "bill_no": "BLR-007", "loading_location": "BLR"})
	backend.Seed("sales", models.Row{"id": "2", "bill_no": "BLR-012", "loading_location": "BLR"})

	r := NewResolver(backend)
	payload := models.Row{"id": "s1", "bill_no": "BLR-007", "loading_location": "BLR"}
	result, err := r.Resolve(context.Background(), "sales", payload)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !result.Changed || result.Value != "BLR-013" {
		t.Errorf("expected BLR-013 (max 012 incremented), got %q", result.Value)
	}
}

func TestResolveScopeIsolation(t *testing.T) {
	backend := remote.NewMemory()
	// Same serial exists, but under a different loading location.
	backend.Seed("entries", models.Row{"id": "1", "serial_no": "001", "loading_location": "MAA"})

	r := NewResolver(backend)
	payload := models.Row{"id": "e1", "serial_no": "001", "loading_location": "BLR"}
	result, err := r.Resolve(context.Background(), "entries", payload)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if result.Changed {
		t.Errorf("different scope must not collide, got %v", result.Value)
	}
}

func TestResolveGlobalScope(t *testing.T) {
	backend := remote.NewMemory()
	backend.Seed("receipts", models.Row{"id": "1", "receipt_no": "R-100"})

	r := NewResolver(backend)
	payload := models.Row{"id": "r1", "receipt_no": "R-100"}
	result, err := r.Resolve(context.Background(), "receipts", payload)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !result.Changed || result.Value != "R-101" {
		t.Errorf("expected R-101, got %q", result.Value)
	}
}

func TestResolveDegradedFallback(t *testing.T) {
	backend := remote.NewMemory()
	// The colliding value has no numeric suffix, so max+1 cannot apply.
	backend.Seed("receipts", models.Row{"id": "1", "receipt_no": "legacy"})

	r := NewResolver(backend)
	payload := models.Row{"id": "r1", "receipt_no": "legacy"}
	result, err := r.Resolve(context.Background(), "receipts", payload)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !result.Changed {
		t.Fatal("expected a replacement")
	}
	if !result.Degraded {
		t.Error("expected degraded mode for unparseable sequence")
	}
	if !strings.HasPrefix(result.Value, "legacy") {
		t.Errorf("fallback must keep the prefix, got %q", result.Value)
	}
	if result.Value == "legacy" {
		t.Error("fallback must differ from the colliding value")
	}
}

func TestResolveQueryFailureIsRetryable(t *testing.T) {
	backend := remote.NewMemory()
	backend.FailNext(&remote.Error{StatusCode: 500, Message: "backend down"})

	r := NewResolver(backend)
	payload := models.Row{"id": "e1", "serial_no": "001", "loading_location": "BLR"}
	if _, err := r.Resolve(context.Background(), "entries", payload); err == nil {
		t.Fatal("expected the collision check failure to surface")
	}
}

func TestResolveEmptyCandidatePassesThrough(t *testing.T) {
	r := NewResolver(remote.NewMemory())

	payload := models.Row{"id": "e1", "loading_location": "BLR"}
	result, err := r.Resolve(context.Background(), "entries", payload)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if result.Changed {
		t.Error("no candidate value, nothing to resolve")
	}
}
