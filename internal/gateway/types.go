package gateway

import (
	"context"
	"strconv"
	"strings"

	"gozo/internal/scheduler"
)

// Control headers. Matched case-sensitively against the wire — NATS
// headers are just string keys, so callers must send these exact casings.
const (
	HeaderWhen   = "Gozo-When"
	HeaderID     = "Gozo-Id"
	HeaderDelID  = "Gozo-Del-Id"
	HeaderReply  = "Gozo-Reply"
)

// Admitter is the Scheduler Core surface the Gateway drives. Defined here,
// consumed from scheduler, so the Gateway depends only on the narrow slice
// it actually calls.
type Admitter interface {
	Admit(ctx context.Context, req scheduler.ScheduleRequest) error
	Cancel(ctx context.Context, req scheduler.CancelRequest) error
}

// Config configures the Gateway's subscription.
type Config struct {
	// Subject is the request subject to subscribe to. Defaults to "gozo".
	Subject string
}

// parsedRequest is the outcome of decoding one inbound message: exactly one
// of schedule or cancel is non-nil, or err is set.
type parsedRequest struct {
	schedule *scheduler.ScheduleRequest
	cancel   *scheduler.CancelRequest
	err      error
}

// parseInbound turns one inbound NATS message's headers into either a
// schedule or a cancellation request. nowFn supplies the wall-clock
// snapshot relative "+N" admissions resolve against; it is read once per
// call so a single admission is internally consistent.
func parseInbound(subject, reply string, data []byte, headers map[string][]string, nowFn func() int64) parsedRequest {
	get := func(name string) (string, bool) {
		vs, ok := headers[name]
		if !ok || len(vs) == 0 {
			return "", false
		}
		return vs[0], true
	}

	// Gozo-Del-Id takes precedence when both it and Gozo-When are present:
	// a cancel is unambiguous regardless of what else rode along on the
	// message, so there's no reason to require a caller to strip Gozo-When
	// before cancelling.
	if delID, ok := get(HeaderDelID); ok {
		return parsedRequest{cancel: &scheduler.CancelRequest{ID: delID}}
	}

	when, ok := get(HeaderWhen)
	if !ok {
		return parsedRequest{err: &scheduler.ParseError{Reason: "missing Gozo-When"}}
	}
	fireAt, err := resolveWhen(when, nowFn)
	if err != nil {
		return parsedRequest{err: &scheduler.ParseError{Reason: "malformed Gozo-When: " + err.Error()}}
	}
	if strings.TrimSpace(reply) == "" {
		return parsedRequest{err: &scheduler.ParseError{Reason: "empty reply subject"}}
	}

	id, _ := get(HeaderID)

	out := make(map[string]string, len(headers))
	for name, vs := range headers {
		if name == HeaderWhen || name == HeaderID || len(vs) == 0 {
			continue
		}
		out[name] = vs[0]
	}

	payload := make([]byte, len(data))
	copy(payload, data)

	return parsedRequest{schedule: &scheduler.ScheduleRequest{
		ID:           id,
		FireAt:       fireAt,
		ReplySubject: reply,
		Payload:      payload,
		Headers:      out,
	}}
}

// resolveWhen parses an absolute epoch-second string, or a "+N" relative
// one resolved against a single nowFn() snapshot.
func resolveWhen(when string, nowFn func() int64) (int64, error) {
	if strings.HasPrefix(when, "+") {
		n, err := strconv.ParseInt(strings.TrimPrefix(when, "+"), 10, 64)
		if err != nil {
			return 0, err
		}
		if n < 0 {
			return 0, strconv.ErrSyntax
		}
		return nowFn() + n, nil
	}
	n, err := strconv.ParseInt(when, 10, 64)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, strconv.ErrSyntax
	}
	return n, nil
}
