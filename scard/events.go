package scard

import (
	"fmt"
	"sync"
)

// EventKind labels a monitor event.
type EventKind int

const (
	ReaderAttached EventKind = iota
	ReaderDetached
	CardInserted
	CardRemoved
	MonitorError
)

var eventKindNames = map[EventKind]string{
	ReaderAttached: "reader-attached",
	ReaderDetached: "reader-detached",
	CardInserted:   "card-inserted",
	CardRemoved:    "card-removed",
	MonitorError:   "error",
}

func (k EventKind) String() string {
	if s, ok := eventKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("event(%d)", int(k))
}

// Event is one observation delivered to the monitor callback. Reader and
// ATR are private copies the callback may keep. State is zero for detach
// and error events, ATR is only set when a card is present, and Err only
// accompanies MonitorError.
type Event struct {
	Kind   EventKind
	Reader string
	State  StateFlag
	ATR    []byte
	Err    error
}

// eventQueue is the unbounded FIFO between the monitor worker and the
// consumer goroutine running the callback. push never blocks the worker;
// next blocks until an event arrives or the queue closes with nothing
// left to drain.
type eventQueue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	pending []Event
	closed  bool
}

func newEventQueue() *eventQueue {
	q := &eventQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *eventQueue) push(ev Event) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.pending = append(q.pending, ev)
	q.cond.Signal()
}

// close stops accepting events; anything already queued still drains.
func (q *eventQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}

func (q *eventQueue) next() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.pending) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.pending) == 0 {
		return Event{}, false
	}
	ev := q.pending[0]
	q.pending = q.pending[1:]
	if len(q.pending) == 0 {
		q.pending = nil
	}
	return ev, true
}
