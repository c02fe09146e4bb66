// Package app is Gozo's Supervisor: it wires the Bus Gateway, Durable
// Store and Scheduler Core together in dependency order, performs
// restart-time recovery before the Gateway subscribes, and owns the
// staged shutdown sequence.
package app
