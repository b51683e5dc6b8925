package core

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorKinds(t *testing.T) {
	wrapped := fmt.Errorf("add payment: %w", ErrDebtArchived)
	if !errors.Is(wrapped, ErrBusinessRule) {
		t.Fatalf("wrapped archived error should match ErrBusinessRule")
	}
	if errors.Is(wrapped, ErrNotFound) {
		t.Fatalf("archived error must not match ErrNotFound")
	}
	if !errors.Is(wrapped, ErrDebtArchived) {
		t.Fatalf("identity match lost through wrapping")
	}
	if KindOf(wrapped) != KindBusinessRule {
		t.Fatalf("KindOf() = %v", KindOf(wrapped))
	}
	if MessageOf(wrapped) != "cannot add payment to archived debt" {
		t.Fatalf("MessageOf() = %q", MessageOf(wrapped))
	}
	if KindOf(errors.New("boom")) != KindInternal {
		t.Fatalf("plain errors are internal")
	}
	if got := NotFoundf("goal %s not found", "g1"); !errors.Is(got, ErrNotFound) {
		t.Fatalf("NotFoundf should match ErrNotFound")
	}
}
