package gateway

import (
	"testing"
)

func fixedNow() int64 { return 1000 }

func TestParseInboundAbsolute(t *testing.T) {
	headers := map[string][]string{
		"Gozo-When": {"1005"},
		"X-Trace":   {"abc"},
	}
	got := parseInbound("gozo", "r.a", []byte("hello"), headers, fixedNow)
	if got.err != nil {
		t.Fatalf("unexpected error: %v", got.err)
	}
	if got.schedule == nil {
		t.Fatal("expected a schedule request")
	}
	if got.schedule.FireAt != 1005 {
		t.Fatalf("FireAt = %d, want 1005", got.schedule.FireAt)
	}
	if got.schedule.ID != "" {
		t.Fatalf("expected ephemeral schedule, got id %q", got.schedule.ID)
	}
	if got.schedule.Headers["X-Trace"] != "abc" {
		t.Fatalf("passthrough header missing: %v", got.schedule.Headers)
	}
	if _, ok := got.schedule.Headers[HeaderWhen]; ok {
		t.Fatal("Gozo-When must be stripped from the admitted request's headers")
	}
}

func TestParseInboundRelative(t *testing.T) {
	headers := map[string][]string{"Gozo-When": {"+3"}}
	got := parseInbound("gozo", "r.b", nil, headers, fixedNow)
	if got.err != nil {
		t.Fatalf("unexpected error: %v", got.err)
	}
	if got.schedule.FireAt != 1003 {
		t.Fatalf("FireAt = %d, want 1003", got.schedule.FireAt)
	}
}

func TestParseInboundWithID(t *testing.T) {
	headers := map[string][]string{
		"Gozo-When": {"1005"},
		"Gozo-Id":   {"order-42"},
	}
	got := parseInbound("gozo", "r.c", nil, headers, fixedNow)
	if got.err != nil {
		t.Fatalf("unexpected error: %v", got.err)
	}
	if got.schedule.ID != "order-42" {
		t.Fatalf("ID = %q, want order-42", got.schedule.ID)
	}
	if _, ok := got.schedule.Headers[HeaderID]; ok {
		t.Fatal("Gozo-Id must be stripped from the admitted request's headers")
	}
}

func TestParseInboundCancellation(t *testing.T) {
	headers := map[string][]string{"Gozo-Del-Id": {"order-42"}}
	got := parseInbound("gozo", "", nil, headers, fixedNow)
	if got.err != nil {
		t.Fatalf("unexpected error: %v", got.err)
	}
	if got.cancel == nil || got.cancel.ID != "order-42" {
		t.Fatalf("expected cancellation for order-42, got %+v", got.cancel)
	}
}

// TestParseInboundDelIdPrecedence verifies that when both Gozo-When and
// Gozo-Del-Id are present, cancellation wins.
func TestParseInboundDelIdPrecedence(t *testing.T) {
	headers := map[string][]string{
		"Gozo-When":   {"1005"},
		"Gozo-Del-Id": {"order-42"},
	}
	got := parseInbound("gozo", "r.d", nil, headers, fixedNow)
	if got.err != nil {
		t.Fatalf("unexpected error: %v", got.err)
	}
	if got.cancel == nil {
		t.Fatal("expected cancellation to take precedence over scheduling")
	}
	if got.schedule != nil {
		t.Fatal("expected no schedule request when Gozo-Del-Id is present")
	}
}

func TestParseInboundMissingWhen(t *testing.T) {
	got := parseInbound("gozo", "r.e", nil, nil, fixedNow)
	if got.err == nil {
		t.Fatal("expected a parse error for missing Gozo-When")
	}
}

func TestParseInboundEmptyReplySubject(t *testing.T) {
	headers := map[string][]string{"Gozo-When": {"1005"}}
	got := parseInbound("gozo", "", nil, headers, fixedNow)
	if got.err == nil {
		t.Fatal("expected a parse error for empty reply subject")
	}
}

func TestParseInboundMalformedWhen(t *testing.T) {
	for _, when := range []string{"not-a-number", "+abc", "-5", "+-3"} {
		headers := map[string][]string{"Gozo-When": {when}}
		got := parseInbound("gozo", "r.f", nil, headers, fixedNow)
		if got.err == nil {
			t.Fatalf("Gozo-When=%q: expected a parse error", when)
		}
	}
}

func TestParseInboundDropsEmptyHeaderValues(t *testing.T) {
	headers := map[string][]string{
		"Gozo-When": {"1005"},
		"X-Empty":   {},
	}
	got := parseInbound("gozo", "r.g", nil, headers, fixedNow)
	if got.err != nil {
		t.Fatalf("unexpected error: %v", got.err)
	}
	if _, ok := got.schedule.Headers["X-Empty"]; ok {
		t.Fatal("a header with no values must not be carried through")
	}
}
