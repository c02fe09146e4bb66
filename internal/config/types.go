package config

// Config is the operational surface read from the optional config file:
// logging, the KV bucket name, the request subject, the shutdown drain
// deadline, the scheduler's poll floor, and the metrics server. Of these,
// only logging and the poll floor take effect on a reload; the others are
// read once at startup.
//
// Bus credentials (address, TLS, token, user/password, certs, NKey, creds
// file) are intentionally NOT part of this struct — they are assembled once
// at startup by RegisterBusFlags and ResolveBusOptions (flags + NATS_* env
// vars): connection
// bootstrap is an external collaborator the core only consumes through a
// small struct, never re-reads or hot-swaps.
type Config struct {
	Logging LoggingConfig `json:"logging"`

	// Subject is the request subject Gozo subscribes to. Defaults to "gozo".
	Subject string `json:"subject,omitempty"`

	// Bucket is the JetStream KV bucket name backing the Durable Store.
	// Defaults to "gozo".
	Bucket string `json:"bucket,omitempty"`

	// Drain is a Go duration string bounding how long the supervisor waits
	// for the scheduler's pending queue to empty on shutdown before giving
	// up and leaving durable schedules for the next process to pick up.
	Drain string `json:"drain,omitempty"`

	// PollFloor bounds how often the Scheduler Core's timer worker
	// recomputes its sleep target even without a doorbell wakeup, as a
	// clock-skew safety net (see internal/scheduler.Config). Empty or zero
	// disables the floor. Unlike Subject/Bucket/Drain this is hot-reloadable
	// — it binds no subscription or KV handle.
	PollFloor string `json:"poll_floor,omitempty"`

	Metrics MetricsConfig `json:"metrics,omitempty"`
}

type LoggingConfig struct {
	Level string      `json:"level"`
	Console bool      `json:"console"`
	File  LoggingFile `json:"file,omitempty"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// MetricsConfig controls the optional Prometheus /metrics + /healthz server.
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default: "127.0.0.1:8222"
}
