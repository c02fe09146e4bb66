// Package scheduler implements Gozo's Scheduler Core: a min-heap of
// pending schedules, a single timer worker, and the admit/cancel protocol
// that the Bus Gateway and Durable Store sit around. This is the only
// package that mutates schedule state; everything else is plumbing.
package scheduler
