// Package logx configures gozo's structured logging.
//
// A small wrapper (logx.Logger) on top of zerolog keeps:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - A Sampler helper for throttling repetitive warning/error lines
package logx
