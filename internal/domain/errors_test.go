package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestCrossTenantErrorLooksLikeNotFound(t *testing.T) {
	err := NewCrossTenantError("update", "Client")

	if !errors.Is(err, ErrNotFound) {
		t.Fatal("expected cross-tenant error to match ErrNotFound")
	}
	if !errors.Is(err, ErrCrossTenantAccessDenied) {
		t.Fatal("expected cross-tenant error to match ErrCrossTenantAccessDenied")
	}
	if !IsIsolation(err) {
		t.Fatal("expected IsIsolation to be true")
	}
}

func TestIsIsolationWrapped(t *testing.T) {
	inner := &IsolationError{Op: "find", Entity: "Case", Err: ErrMissingTenantContext}
	wrapped := fmt.Errorf("list cases: %w", inner)

	if !IsIsolation(wrapped) {
		t.Fatal("expected wrapped isolation error to be detected")
	}
	if !errors.Is(wrapped, ErrMissingTenantContext) {
		t.Fatal("expected errors.Is to reach ErrMissingTenantContext")
	}
	if IsIsolation(fmt.Errorf("get: %w", ErrNotFound)) {
		t.Fatal("plain not-found must not be classified as isolation failure")
	}
}

func TestIsolationErrorMessage(t *testing.T) {
	err := &IsolationError{Op: "create", Entity: "Invoice", Err: ErrUnclassifiedEntity}
	if got, want := err.Error(), "create Invoice: unclassified entity"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
