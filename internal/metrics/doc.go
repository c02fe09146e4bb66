// Package metrics is Gozo's optional ambient observability surface: a
// handful of Prometheus counters/gauges around admission, cancellation,
// firing, and parse errors, plus a /healthz liveness check. None of it
// is load-bearing for correctness — the scheduler works identically with
// metrics disabled.
package metrics
