// Package gateway implements Gozo's Bus Gateway: the single NATS
// subscription that turns inbound messages into scheduler.ScheduleRequest
// / scheduler.CancelRequest values, and the Publish side the Scheduler
// Core calls at fire time.
package gateway
