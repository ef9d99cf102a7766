package remote

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorClassification(t *testing.T) {
	base := errors.New("boom")

	if !IsTransient(Transient(base)) {
		t.Error("Transient error should be transient")
	}
	if IsPermanent(Transient(base)) {
		t.Error("Transient error should not be permanent")
	}
	if !IsPermanent(Permanent(base)) {
		t.Error("Permanent error should be permanent")
	}

	// Unclassified errors default to transient.
	if !IsTransient(base) {
		t.Error("bare error should default to transient")
	}
	if IsTransient(nil) {
		t.Error("nil should not be transient")
	}

	// Classification survives wrapping.
	wrapped := fmt.Errorf("sync record: %w", Permanent(base))
	if !IsPermanent(wrapped) {
		t.Error("classification should survive fmt.Errorf wrapping")
	}
	if !errors.Is(wrapped, base) {
		t.Error("underlying error should still match with errors.Is")
	}
}

func TestNilPassthrough(t *testing.T) {
	if Transient(nil) != nil {
		t.Error("Transient(nil) should be nil")
	}
	if Permanent(nil) != nil {
		t.Error("Permanent(nil) should be nil")
	}
}
