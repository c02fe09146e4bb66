package scheduler

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"gozo/internal/eventbus"
	"gozo/internal/metrics"
	"gozo/internal/store"
	logx "gozo/pkg/logx"
)

// Config controls the scheduler's runtime knobs.
type Config struct {
	// PollFloor bounds how often the timer worker recomputes its sleep
	// target even in the absence of a wakeup signal, as a clock-skew
	// safety net. 0 disables the floor (sleep exactly until fire_at).
	PollFloor time.Duration
}

// Service is the Scheduler Core: a priority queue of pending schedules
// served by a single timer worker. The heap and id index are guarded by
// one mutex; the timer worker is the sole mutator that pops from the heap
// and the sole emitter, so cancellation never needs to touch the heap
// directly — it only flips a tombstone bit the worker checks on pop.
type Service struct {
	mu sync.Mutex

	log   logx.Logger
	cfg   Config
	clock func() int64

	heap    scheduleHeap
	byID    map[string]*Schedule
	nextSeq uint64

	emit  Emitter
	store store.Store

	doorbell chan struct{}

	metrics *metrics.Collector
	bus     eventbus.Bus
}

// SetBus attaches an optional internal event bus. Admit/Cancel/fire
// publish a lightweight, non-blocking signal onto it (schedule lifecycle
// events) for in-process observers — e.g. a debug log subscriber — without
// coupling the Scheduler Core to any particular consumer.
func (s *Service) SetBus(bus eventbus.Bus) {
	s.bus = bus
}

func (s *Service) notify(kind eventbus.Kind, sched *Schedule) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{
		Kind:    kind,
		ID:      sched.id,
		FireAt:  sched.fireAt,
		Subject: sched.replySubject,
	})
}

// SetMetrics attaches an optional metrics collector. Safe to call once
// before Run starts; nil disables reporting (the zero value already does
// — Collector methods tolerate a nil receiver).
func (s *Service) SetMetrics(c *metrics.Collector) {
	s.metrics = c
}

// SetPollFloor updates the clock-skew safety net applied by nextDue. Unlike
// the Bus Gateway's subject or the Durable Store's bucket, the poll floor
// has no open subscription or KV handle bound to it, so it is safe to
// change on a running Service — the Supervisor's config-reload path calls
// this directly instead of requiring a restart.
func (s *Service) SetPollFloor(d time.Duration) {
	s.mu.Lock()
	s.cfg.PollFloor = d
	s.mu.Unlock()
	s.wake()
}

// SetEmitter wires the Bus Gateway in after construction, breaking the
// Gateway/Scheduler construction cycle (the Gateway needs an Admitter —
// this Service — before it exists, and the Service needs an Emitter —
// the Gateway — before it exists). Must be called before Run.
func (s *Service) SetEmitter(emit Emitter) {
	s.emit = emit
}

// New builds a Scheduler Core. emit publishes fired schedules; db is the
// optional Durable Store (nil disables durability — every admission is
// treated as ephemeral regardless of whether the request carried an id).
func New(cfg Config, emit Emitter, db store.Store, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		log:      log,
		cfg:      cfg,
		clock:    func() int64 { return time.Now().Unix() },
		heap:     make(scheduleHeap, 0, 64),
		byID:     map[string]*Schedule{},
		emit:     emit,
		store:    db,
		doorbell: make(chan struct{}, 1),
	}
}

// wake nudges the timer worker to recompute its sleep target. Non-blocking
// by construction: the channel is buffered size 1 and a pending wakeup
// coalesces with any not-yet-consumed one, so a burst of admits can never
// back up behind a slow or busy worker.
func (s *Service) wake() {
	select {
	case s.doorbell <- struct{}{}:
	default:
	}
}

// Admit enqueues a schedule. The Durable Store write, when one is
// required, happens before any in-memory mutation — a failed Store.Put
// must leave no trace in the heap, so a caller retrying on StoreError
// never double-admits.
func (s *Service) Admit(ctx context.Context, req ScheduleRequest) error {
	if req.ReplySubject == "" {
		return &ParseError{Reason: "empty reply subject"}
	}

	durable := req.ID != ""
	if durable && s.store != nil {
		rec := store.Record{
			FireAt:       req.FireAt,
			ReplySubject: req.ReplySubject,
			Payload:      req.Payload,
			Headers:      req.Headers,
		}
		if err := s.store.Put(ctx, req.ID, rec); err != nil {
			return &StoreError{Op: "put", Err: err}
		}
	}

	s.mu.Lock()
	var replaced *Schedule
	if durable {
		if old, ok := s.byID[req.ID]; ok {
			old.tombstoned = true
			delete(s.byID, req.ID)
			replaced = old
		}
	}

	sched := &Schedule{
		id:           req.ID,
		fireAt:       req.FireAt,
		replySubject: req.ReplySubject,
		payload:      req.Payload,
		headers:      req.Headers,
		seq:          s.nextSeq,
	}
	s.nextSeq++
	heap.Push(&s.heap, sched)
	if durable {
		s.byID[req.ID] = sched
	}
	wokeEarlier := s.heap[0] == sched
	s.mu.Unlock()

	s.metrics.Admitted()
	if replaced != nil {
		s.notify(eventbus.Cancelled, replaced)
	}
	s.notify(eventbus.Admitted, sched)
	if wokeEarlier {
		s.wake()
	}
	return nil
}

// Cancel tombstones a pending schedule by id. Unknown or already-cancelled
// ids are a silent no-op — including the Store.Delete, which only runs
// when there was a live entry to remove.
func (s *Service) Cancel(ctx context.Context, req CancelRequest) error {
	s.mu.Lock()
	sched, ok := s.byID[req.ID]
	if ok {
		sched.tombstoned = true
		delete(s.byID, req.ID)
	}
	s.mu.Unlock()

	if !ok {
		return nil
	}
	s.metrics.Cancelled()
	s.notify(eventbus.Cancelled, sched)
	if s.store != nil {
		if err := s.store.Delete(ctx, req.ID); err != nil {
			s.log.Warn("store delete failed on cancel", logx.String("id", req.ID), logx.Err(err))
			s.metrics.StoreError()
		}
	}
	return nil
}

// Recover admits every entry returned by the Durable Store's Iterate, as
// if each had just been received. It bypasses Store.Put since the record
// is already persisted. Must run before the Gateway subscribes, so no
// newly admitted schedule can race a not-yet-recovered one for the same id.
func (s *Service) Recover(ctx context.Context, entries []store.Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		sched := &Schedule{
			id:           e.ID,
			fireAt:       e.Record.FireAt,
			replySubject: e.Record.ReplySubject,
			payload:      e.Record.Payload,
			headers:      e.Record.Headers,
			seq:          s.nextSeq,
		}
		s.nextSeq++
		heap.Push(&s.heap, sched)
		s.byID[e.ID] = sched
	}
	s.log.Info("scheduler: recovered durable schedules", logx.Int("count", len(entries)))
}

// Run is the timer worker's firing loop. It blocks until ctx is
// cancelled.
func (s *Service) Run(ctx context.Context) {
	for {
		sched, waitFor, empty := s.nextDue()
		if sched != nil {
			s.fire(ctx, sched)
			continue
		}

		if empty {
			select {
			case <-ctx.Done():
				return
			case <-s.doorbell:
			}
			continue
		}

		timer := time.NewTimer(waitFor)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-s.doorbell:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// nextDue peeks and discards tombstones until it finds a live minimum.
// It returns the schedule to fire now (already popped), or nil with a wait
// duration and whether the heap is now empty.
func (s *Service) nextDue() (due *Schedule, waitFor time.Duration, empty bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for s.heap.Len() > 0 {
		top := s.heap[0]
		if top.tombstoned {
			heap.Pop(&s.heap)
			continue
		}
		now := s.clock()
		if top.fireAt <= now {
			heap.Pop(&s.heap)
			if top.id != "" {
				delete(s.byID, top.id)
			}
			return top, 0, false
		}
		wait := time.Duration(top.fireAt-now) * time.Second
		if s.cfg.PollFloor > 0 && wait > s.cfg.PollFloor {
			wait = s.cfg.PollFloor
		}
		return nil, wait, false
	}
	return nil, 0, true
}

// fire invokes the Gateway and, for durable schedules, deletes the Store
// record. Neither a publish failure nor a post-fire delete failure is
// retried: the schedule has already fired, so retrying would risk a
// duplicate emit rather than recover anything.
func (s *Service) fire(ctx context.Context, sched *Schedule) {
	if err := s.emit.Publish(sched.id, sched.replySubject, sched.payload, sched.headers); err != nil {
		ee := &EmitError{ID: sched.id, Err: err}
		s.log.Warn("emit failed", logx.String("subject", sched.replySubject), logx.Err(ee))
		s.metrics.EmitError()
	}
	s.metrics.Fired()
	s.notify(eventbus.Fired, sched)
	if sched.id != "" && s.store != nil {
		if err := s.store.Delete(ctx, sched.id); err != nil {
			s.log.Warn("store delete failed after fire", logx.String("id", sched.id), logx.Err(err))
			s.metrics.StoreError()
		}
	}
	s.metrics.SetPending(s.Pending())
}

// Pending reports the number of live (non-tombstoned) schedules still in
// the heap. Used by the Supervisor's drain-on-shutdown loop.
func (s *Service) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, sched := range s.heap {
		if !sched.tombstoned {
			n++
		}
	}
	return n
}
