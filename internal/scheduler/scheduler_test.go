package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"gozo/internal/store"
	logx "gozo/pkg/logx"
)

// fakeEmitter records Publish calls in the order they arrive.
type fakeEmitter struct {
	mu    sync.Mutex
	calls []publishCall
	ch    chan publishCall
}

type publishCall struct {
	id      string
	subject string
	payload []byte
	headers map[string]string
}

func newFakeEmitter() *fakeEmitter {
	return &fakeEmitter{ch: make(chan publishCall, 64)}
}

func (f *fakeEmitter) Publish(id, replySubject string, payload []byte, headers map[string]string) error {
	c := publishCall{id: id, subject: replySubject, payload: payload, headers: headers}
	f.mu.Lock()
	f.calls = append(f.calls, c)
	f.mu.Unlock()
	f.ch <- c
	return nil
}

func (f *fakeEmitter) snapshot() []publishCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]publishCall(nil), f.calls...)
}

// fakeClock lets tests drive the scheduler's notion of "now" without
// sleeping real wall-clock seconds.
type fakeClock struct {
	mu  sync.Mutex
	now int64
}

func (c *fakeClock) read() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) set(n int64) {
	c.mu.Lock()
	c.now = n
	c.mu.Unlock()
}

func newTestService(t *testing.T, emit Emitter, db store.Store) (*Service, *fakeClock) {
	t.Helper()
	s := New(Config{}, emit, db, logx.Nop())
	fc := &fakeClock{now: 1000}
	s.clock = fc.read
	return s, fc
}

// TestOrdering checks property 1: distinct fire_at values emit in
// ascending fire_at order regardless of admission order.
func TestOrdering(t *testing.T) {
	emit := newFakeEmitter()
	s, fc := newTestService(t, emit, nil)
	fc.set(1000)

	mustAdmit(t, s, ScheduleRequest{ReplySubject: "r.b", FireAt: 1002})
	mustAdmit(t, s, ScheduleRequest{ReplySubject: "r.a", FireAt: 1005})
	mustAdmit(t, s, ScheduleRequest{ReplySubject: "r.c", FireAt: 1005})

	fc.set(1005) // make everything due

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	want := []string{"r.b", "r.a", "r.c"}
	for i, w := range want {
		select {
		case c := <-emit.ch:
			if c.subject != w {
				t.Fatalf("emit[%d] = %s, want %s", i, c.subject, w)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for emit %d (%s)", i, w)
		}
	}
}

// TestTieBreaking checks property 2 directly: two schedules admitted at
// the same fire_at emit in admission order.
func TestTieBreaking(t *testing.T) {
	emit := newFakeEmitter()
	s, fc := newTestService(t, emit, nil)
	fc.set(1000)

	mustAdmit(t, s, ScheduleRequest{ReplySubject: "r.a", FireAt: 1005})
	mustAdmit(t, s, ScheduleRequest{ReplySubject: "r.b", FireAt: 1005})
	fc.set(1005)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	for _, want := range []string{"r.a", "r.b"} {
		select {
		case c := <-emit.ch:
			if c.subject != want {
				t.Fatalf("got %s, want %s", c.subject, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for tie-broken emit")
		}
	}
}

// TestCancelIdempotent checks property 3.
func TestCancelIdempotent(t *testing.T) {
	emit := newFakeEmitter()
	s, _ := newTestService(t, emit, nil)

	// Unknown id: silent no-op.
	if err := s.Cancel(context.Background(), CancelRequest{ID: "ghost"}); err != nil {
		t.Fatalf("cancel unknown id: %v", err)
	}

	mustAdmit(t, s, ScheduleRequest{ID: "x", ReplySubject: "r.x", FireAt: 5000})
	if err := s.Cancel(context.Background(), CancelRequest{ID: "x"}); err != nil {
		t.Fatalf("first cancel: %v", err)
	}
	if err := s.Cancel(context.Background(), CancelRequest{ID: "x"}); err != nil {
		t.Fatalf("second cancel (already gone): %v", err)
	}

	s.mu.Lock()
	_, stillIndexed := s.byID["x"]
	s.mu.Unlock()
	if stillIndexed {
		t.Fatal("cancelled id must be removed from the id index")
	}
}

// TestOverwriteReplaces checks property 4 both directions (forward and
// backward), matching scenario C.
func TestOverwriteReplaces(t *testing.T) {
	for _, dir := range []struct {
		name   string
		first  int64
		second int64
	}{
		{"forward", 1010, 1020},
		{"backward", 1020, 1010},
	} {
		dir := dir
		t.Run(dir.name, func(t *testing.T) {
			emit := newFakeEmitter()
			s, fc := newTestService(t, emit, nil)
			fc.set(1000)

			mustAdmit(t, s, ScheduleRequest{ID: "x", ReplySubject: "r.x", FireAt: dir.first})
			mustAdmit(t, s, ScheduleRequest{ID: "x", ReplySubject: "r.x", FireAt: dir.second})
			fc.set(dir.second)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			go s.Run(ctx)

			select {
			case c := <-emit.ch:
				if c.subject != "r.x" {
					t.Fatalf("unexpected emit subject %s", c.subject)
				}
			case <-time.After(2 * time.Second):
				t.Fatal("timed out waiting for overwrite emit")
			}

			cancel()
			time.Sleep(20 * time.Millisecond)
			if got := len(emit.snapshot()); got != 1 {
				t.Fatalf("got %d emits, want exactly 1 (no firing of the superseded entry)", got)
			}
		})
	}
}

// TestCancelPreventsEmit checks scenario D: a cancelled schedule never
// fires even once its fire_at has passed.
func TestCancelPreventsEmit(t *testing.T) {
	emit := newFakeEmitter()
	s, fc := newTestService(t, emit, nil)
	fc.set(1000)

	mustAdmit(t, s, ScheduleRequest{ID: "x", ReplySubject: "r.x", FireAt: 1010})
	if err := s.Cancel(context.Background(), CancelRequest{ID: "x"}); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	fc.set(1010)

	ctx, cancel := context.WithCancel(context.Background())
	go s.Run(ctx)
	time.Sleep(50 * time.Millisecond)
	cancel()

	if got := len(emit.snapshot()); got != 0 {
		t.Fatalf("cancelled schedule fired %d times, want 0", got)
	}
}

// TestPastTimeFiresPromptly checks property 7: a schedule admitted with
// fire_at <= now fires without waiting for the next natural wakeup.
func TestPastTimeFiresPromptly(t *testing.T) {
	emit := newFakeEmitter()
	s, fc := newTestService(t, emit, nil)
	fc.set(1000)

	mustAdmit(t, s, ScheduleRequest{ReplySubject: "r.now", FireAt: 999})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	select {
	case c := <-emit.ch:
		if c.subject != "r.now" {
			t.Fatalf("unexpected emit %s", c.subject)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatal("past-due schedule did not fire promptly")
	}
}

// TestHeaderPassthrough checks property 8: non-control headers reach the
// emitted message unchanged, and the scheduler layer doesn't touch them.
func TestHeaderPassthrough(t *testing.T) {
	emit := newFakeEmitter()
	s, fc := newTestService(t, emit, nil)
	fc.set(1000)

	hdrs := map[string]string{"X-Trace": "abc123", "X-Tenant": "acme"}
	mustAdmit(t, s, ScheduleRequest{ReplySubject: "r.h", FireAt: 999, Headers: hdrs})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	select {
	case c := <-emit.ch:
		for k, v := range hdrs {
			if c.headers[k] != v {
				t.Fatalf("header %s = %q, want %q", k, c.headers[k], v)
			}
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatal("timed out waiting for emit")
	}
}

// TestDurableSchedulePersistsAndDeletes exercises the Store wiring: a
// durable admission calls Put, and firing calls Delete.
func TestDurableSchedulePersistsAndDeletes(t *testing.T) {
	db := store.OpenMemory()
	emit := newFakeEmitter()
	s, fc := newTestService(t, emit, db)
	fc.set(1000)

	mustAdmit(t, s, ScheduleRequest{ID: "dur-1", ReplySubject: "r.d", FireAt: 999})

	entries, err := db.Iterate(context.Background())
	if err != nil {
		t.Fatalf("iterate: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != "dur-1" {
		t.Fatalf("expected durable record persisted before firing, got %v", entries)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go s.Run(ctx)
	select {
	case <-emit.ch:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("timed out waiting for emit")
	}
	cancel()

	time.Sleep(20 * time.Millisecond)
	entries, err = db.Iterate(context.Background())
	if err != nil {
		t.Fatalf("iterate after fire: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected durable record deleted after firing, still have %v", entries)
	}
}

// TestRecoveryDurableSurvivesRestart checks properties 5 and 6: a durable
// schedule recovered from the Store still fires after "restart" (a fresh
// Service built from the same Store), while an ephemeral one was never
// persisted and so has nothing to recover.
func TestRecoveryDurableSurvivesRestart(t *testing.T) {
	db := store.OpenMemory()
	emit1 := newFakeEmitter()
	s1, fc1 := newTestService(t, emit1, db)
	fc1.set(1000)

	mustAdmit(t, s1, ScheduleRequest{ID: "durable", ReplySubject: "r.durable", FireAt: 1030})
	mustAdmit(t, s1, ScheduleRequest{ReplySubject: "r.ephemeral", FireAt: 1030})

	// Simulate a restart: build a brand new Service sharing only the Store.
	entries, err := db.Iterate(context.Background())
	if err != nil {
		t.Fatalf("iterate: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected exactly one durable entry to recover, got %d", len(entries))
	}

	emit2 := newFakeEmitter()
	s2, fc2 := newTestService(t, emit2, db)
	fc2.set(1010)
	s2.Recover(context.Background(), entries)

	fc2.set(1030)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s2.Run(ctx)

	select {
	case c := <-emit2.ch:
		if c.subject != "r.durable" {
			t.Fatalf("unexpected recovered emit %s", c.subject)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("durable schedule did not survive simulated restart")
	}

	select {
	case c := <-emit2.ch:
		t.Fatalf("ephemeral schedule unexpectedly survived restart: %v", c)
	case <-time.After(50 * time.Millisecond):
	}
}

// TestAdmitRequiresReplySubject checks the parse-level invariant enforced
// at the scheduler boundary (belt-and-suspenders with the Gateway's own
// check): an empty reply subject is rejected outright.
func TestAdmitRequiresReplySubject(t *testing.T) {
	s, _ := newTestService(t, newFakeEmitter(), nil)
	err := s.Admit(context.Background(), ScheduleRequest{FireAt: 1000})
	if _, ok := err.(*ParseError); !ok {
		t.Fatalf("expected *ParseError, got %v", err)
	}
}

// TestPending reports only live (non-tombstoned) entries.
func TestPending(t *testing.T) {
	s, fc := newTestService(t, newFakeEmitter(), nil)
	fc.set(1000)

	mustAdmit(t, s, ScheduleRequest{ID: "a", ReplySubject: "r.a", FireAt: 5000})
	mustAdmit(t, s, ScheduleRequest{ReplySubject: "r.b", FireAt: 5000})
	if got := s.Pending(); got != 2 {
		t.Fatalf("Pending() = %d, want 2", got)
	}

	if err := s.Cancel(context.Background(), CancelRequest{ID: "a"}); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got := s.Pending(); got != 1 {
		t.Fatalf("Pending() after cancel = %d, want 1", got)
	}
}

func mustAdmit(t *testing.T, s *Service, req ScheduleRequest) {
	t.Helper()
	if err := s.Admit(context.Background(), req); err != nil {
		t.Fatalf("admit %+v: %v", req, err)
	}
}
