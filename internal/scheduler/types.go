package scheduler

// Schedule is one admitted request to emit a message at a future instant.
//
// id is empty for ephemeral schedules (never written to the Durable Store,
// lost across a restart). seq breaks ties between schedules sharing the
// same fire_at in admission order; it is assigned once, at admission, and
// never reused.
type Schedule struct {
	id           string
	fireAt       int64
	replySubject string
	payload      []byte
	headers      map[string]string

	seq        uint64
	tombstoned bool

	heapIndex int // maintained by container/heap; -1 once popped
}

// ID reports the schedule's client-supplied identifier, or "" if ephemeral.
func (s *Schedule) ID() string { return s.id }

// FireAt reports the absolute epoch-second instant the schedule is due.
func (s *Schedule) FireAt() int64 { return s.fireAt }

// ScheduleRequest admits or overwrites a pending schedule.
//
// ID may be empty (ephemeral). FireAt is an absolute epoch-second instant
// already resolved from any "+N" relative form by the caller (the
// Gateway), against a single wall-clock snapshot so one admission never
// straddles two different "now" values.
type ScheduleRequest struct {
	ID           string
	FireAt       int64
	ReplySubject string
	Payload      []byte
	Headers      map[string]string
}

// CancelRequest tombstones any live schedule bearing ID. Cancelling an
// unknown or already-cancelled id is a silent no-op.
type CancelRequest struct {
	ID string
}

// Emitter is how the Scheduler Core publishes a fired schedule back onto
// the bus. It is implemented by the Bus Gateway; the scheduler never talks
// to the bus connection directly. id is "" for ephemeral schedules; the
// Gateway re-attaches it as Gozo-Id on the outbound message when non-empty.
type Emitter interface {
	Publish(id, replySubject string, payload []byte, headers map[string]string) error
}
