package apperrors

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorFormatting(t *testing.T) {
	err := New(ErrNotFound, "customer missing")
	if err.Error() != "[NOT_FOUND] customer missing" {
		t.Errorf("unexpected format: %s", err.Error())
	}

	wrapped := Wrap(ErrDatabase, "query failed", errors.New("disk io"))
	if wrapped.Error() != "[DATABASE_ERROR] query failed: disk io" {
		t.Errorf("unexpected format: %s", wrapped.Error())
	}
}

func TestIsWalksWrapChain(t *testing.T) {
	inner := New(ErrNotFound, "row missing")
	outer := fmt.Errorf("lookup: %w", inner)

	if !Is(outer, ErrNotFound) {
		t.Error("expected code found through fmt.Errorf wrapping")
	}
	if Is(outer, ErrDatabase) {
		t.Error("unexpected code match")
	}
	if Is(nil, ErrNotFound) {
		t.Error("nil error must not match")
	}
}

func TestCodeOf(t *testing.T) {
	if CodeOf(New(ErrValidation, "bad input")) != ErrValidation {
		t.Error("expected VALIDATION_ERROR")
	}
	if CodeOf(errors.New("plain")) != ErrInternal {
		t.Error("plain errors default to INTERNAL_ERROR")
	}
	// The outermost code wins when codes nest.
	nested := Wrap(ErrStorageInit, "open failed", New(ErrDatabase, "locked"))
	if CodeOf(nested) != ErrStorageInit {
		t.Errorf("expected outermost code, got %s", CodeOf(nested))
	}
}

func TestUnwrap(t *testing.T) {
	inner := errors.New("disk io")
	wrapped := Wrap(ErrDatabase, "query failed", inner)
	if !errors.Is(wrapped, inner) {
		t.Error("expected errors.Is to reach the cause")
	}
}
