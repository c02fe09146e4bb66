package store

import (
	"context"
	"errors"
	"time"
)

// ErrDisabled is returned by callers that choose to operate without
// durability (e.g. tests, or a deployment that only ever schedules
// ephemeral requests).
var ErrDisabled = errors.New("store: disabled")

// ErrNotFound reports that an id has no durable record. The Store
// interface has no lookup by id, and no backend in this package returns it.
var ErrNotFound = errors.New("store: not found")

// Record is the persisted form of one durable Schedule.
//
// This is the minimal encoding needed to resume a schedule: fire_at,
// reply_subject, payload, headers, stable across restarts of the same
// deployment.
type Record struct {
	FireAt       int64             `json:"fire_at"`
	ReplySubject string            `json:"reply_subject"`
	Payload      []byte            `json:"payload"`
	Headers      map[string]string `json:"headers,omitempty"`
}

// Entry pairs a stored Record with the schedule id it was filed under.
type Entry struct {
	ID     string
	Record Record
}

// Store is the minimal durable persistence API consumed by the scheduler.
//
// Put is create-or-overwrite and must be atomic with respect to concurrent
// readers/writers from this process (there is only ever one writer by
// design). Delete is idempotent. Iterate enumerates every live entry and is
// used once, at startup, for recovery.
type Store interface {
	Put(ctx context.Context, id string, rec Record) error
	Delete(ctx context.Context, id string) error
	Iterate(ctx context.Context) ([]Entry, error)
	Close() error
}

// Config selects and configures a Store backend.
//
// Driver values:
//   - "jetstream": NATS JetStream KV bucket (the production backend)
//   - "memory": dependency-free in-process backend, used by tests and by
//     deployments that accept losing durable schedules across restarts
//   - "" / "none": durability disabled; Open returns (nil, nil) and the
//     scheduler treats every admission as ephemeral-only
type Config struct {
	Driver string
	Bucket string

	// RetryMax bounds the bounded retry/backoff wrapped around transient
	// JetStream errors (network blips, KV not yet replicated). 0 uses a
	// sane default.
	RetryMax int
	// RetryBase is the initial backoff delay.
	RetryBase time.Duration
}
