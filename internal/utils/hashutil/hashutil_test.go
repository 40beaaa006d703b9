package hashutil

import (
	"testing"
)

func TestBlake3HashDeterministic(t *testing.T) {
	first := Blake3Hash([]byte("catalog image"))
	second := Blake3Hash([]byte("catalog image"))
	if first != second {
		t.Fatalf("expected identical digests, got %q and %q", first, second)
	}
	if len(first) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(first))
	}

	if other := Blake3Hash([]byte("catalog image!")); other == first {
		t.Fatal("expected different content to hash differently")
	}
}
