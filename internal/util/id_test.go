package util

import (
	"strings"
	"testing"
)

func TestNewID(t *testing.T) {
	id := NewID("sub")
	if !strings.HasPrefix(id, "sub_") {
		t.Fatalf("NewID(%q) = %q, want prefix %q", "sub", id, "sub_")
	}
	if len(strings.TrimPrefix(id, "sub_")) != 32 {
		t.Fatalf("NewID(%q) = %q, want 32 hex chars after prefix", "sub", id)
	}
	if NewID("") == NewID("") {
		t.Fatal("expected distinct ids")
	}
}
