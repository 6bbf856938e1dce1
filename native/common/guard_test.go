package common

import (
	"errors"
	"testing"
)

func TestGuard(t *testing.T) {
	pauses := NewPauses(map[string]bool{"payment": true, "other": false})
	if err := Guard(pauses, "payment"); !errors.Is(err, ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
	if err := Guard(pauses, "other"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pauses.Set("payment", false)
	if err := Guard(pauses, "payment"); err != nil {
		t.Fatalf("expected unpaused, got %v", err)
	}
	if err := Guard(nil, "payment"); err != nil {
		t.Fatalf("nil view must not block: %v", err)
	}
}
