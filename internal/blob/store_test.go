package blob

import "testing"

func TestObjectKeyStableForContent(t *testing.T) {
	first := ObjectKey([]byte("payload"))
	second := ObjectKey([]byte("payload"))
	if first != second {
		t.Fatalf("identical content produced different keys: %q vs %q", first, second)
	}
	if len(first) != 64 {
		t.Fatalf("expected sha256 hex key, got %q", first)
	}
	if other := ObjectKey([]byte("different")); other == first {
		t.Fatalf("distinct content shared a key")
	}
}

func TestObjectKeyEmptyPayloadRandom(t *testing.T) {
	first := ObjectKey(nil)
	second := ObjectKey(nil)
	if first == "" || second == "" {
		t.Fatalf("empty payload produced empty key")
	}
	if first == second {
		t.Fatalf("empty payloads must not share keys")
	}
}
