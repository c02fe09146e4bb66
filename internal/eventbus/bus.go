// Package eventbus is a small in-process, non-blocking fanout used to
// decouple the Scheduler Core from anything that wants to observe a
// schedule's lifecycle (admitted, cancelled, fired) without being on the
// admit/cancel/fire call path itself.
package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

// Kind enumerates the schedule lifecycle transitions the Scheduler Core
// reports: Admitted when a schedule enters the heap, Cancelled when it is
// tombstoned by Cancel or an overwriting re-Admit, Fired when the timer
// worker pops and emits it.
type Kind string

const (
	Admitted  Kind = "admitted"
	Cancelled Kind = "cancelled"
	Fired     Kind = "fired"
)

// Event is one schedule lifecycle transition. ID is "" for ephemeral
// schedules.
type Event struct {
	Kind    Kind
	ID      string
	FireAt  int64
	Subject string
	Time    time.Time
}

// Bus fans Events out to subscribers. Publish never blocks on a slow or
// absent subscriber: delivery is best-effort.
type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

// New returns an in-memory fanout Bus that owns no background goroutines.
func New() Bus {
	return &memBus{subs: map[uint64]chan Event{}}
}

type memBus struct {
	mu   sync.RWMutex
	subs map[uint64]chan Event
	seq  atomic.Uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	// Snapshot the subscriber list so Publish never holds the lock while
	// attempting sends.
	b.mu.RLock()
	chs := make([]chan Event, 0, len(b.subs))
	for _, ch := range b.subs {
		chs = append(chs, ch)
	}
	b.mu.RUnlock()

	for _, ch := range chs {
		// A subscriber may unsubscribe (and its channel close) concurrently
		// with this send; recover the resulting panic rather than serialize
		// Publish against every Unsubscribe.
		func(ch chan Event) {
			defer func() { _ = recover() }()
			select {
			case ch <- e:
			default:
			}
		}(ch)
	}
}

func (b *memBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Event, buffer)
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, unsub
}
