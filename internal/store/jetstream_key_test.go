package store

import "testing"

func TestEncodeDecodeKeyRoundTrip(t *testing.T) {
	for _, id := range []string{
		"order-42",
		"simple",
		"has.dots.and spaces",
		"unicode-日本語",
		"",
	} {
		enc := encodeKey(id)
		dec := decodeKey(enc)
		if dec != id {
			t.Fatalf("round trip for %q: encoded %q, decoded %q", id, enc, dec)
		}
	}
}

func TestEncodeKeyPassesThroughSafeIDs(t *testing.T) {
	id := "order-42_ABC"
	if got := encodeKey(id); got != id {
		t.Fatalf("safe id was re-encoded: %q -> %q", id, got)
	}
}

func TestEncodeKeyEscapesUnsafeBytes(t *testing.T) {
	got := encodeKey("a.b c")
	if got == "a.b c" {
		t.Fatal("expected unsafe id to be escaped")
	}
	if decodeKey(got) != "a.b c" {
		t.Fatalf("decode(encode(x)) != x: got %q", decodeKey(got))
	}
}
