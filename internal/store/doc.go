// Package store implements Gozo's Durable Store: a thin, single-writer
// key/value layer over a NATS JetStream bucket used to survive restarts.
//
// Keys are schedule ids; values are a stable, self-describing encoding of
// the fields needed to resume a schedule (fire_at, reply_subject, payload,
// headers). The scheduler is the store's sole writer (see internal/scheduler);
// concurrent readers/writers from other processes are out of scope.
package store
