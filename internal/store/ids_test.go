package store

import (
	"strings"
	"testing"
)

func TestNewRandomID_HasPrefixAndIsUnique(t *testing.T) {
	a := newRandomID("doc")
	b := newRandomID("doc")
	if !strings.HasPrefix(a, "doc-") {
		t.Fatalf("expected doc prefix, got %q", a)
	}
	if got, want := len(strings.TrimPrefix(a, "doc-")), 32; got != want {
		t.Fatalf("expected suffix len %d, got %d (%q)", want, got, a)
	}
	if a == b {
		t.Fatalf("expected distinct ids, got %q twice", a)
	}
}
