package eventqueue

import (
	"context"
	"errors"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/theapemachine/a2a-sdk/pkg/a2a"
)

// DefaultQueueSize bounds a queue when the caller does not choose a size.
const DefaultQueueSize = 1024

var (
	// ErrQueueEmpty is the transient outcome of a non-blocking dequeue on an
	// open queue; the consumer should retry, not terminate.
	ErrQueueEmpty = errors.New("event queue is empty")
	// ErrQueueClosed signals that the queue is closed and fully drained.
	ErrQueueClosed = errors.New("event queue is closed")
)

/*
Queue is a bounded FIFO bridging one agent producer and one primary
consumer, with any number of tapped child queues fanning out the same
events to resubscribers.  Closing is idempotent; consumers drain buffered
events before they observe the close.
*/
type Queue struct {
	events chan a2a.Event
	done   chan struct{}

	mu       sync.Mutex
	closed   bool
	err      error
	children []*Queue
}

func New() *Queue {
	return NewWithSize(DefaultQueueSize)
}

func NewWithSize(size int) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}

	return &Queue{
		events: make(chan a2a.Event, size),
		done:   make(chan struct{}),
	}
}

/*
Enqueue appends an event and fans it out to every tap.  Writing to a
closed queue is a logged no-op so producers that lost the race with close
do not fail.  A full queue blocks until there is room, the queue closes,
or the context is done.
*/
func (q *Queue) Enqueue(ctx context.Context, event a2a.Event) error {
	q.mu.Lock()

	if q.closed {
		q.mu.Unlock()
		log.Debug("enqueue on closed queue dropped", "kind", event.EventKind())
		return nil
	}

	children := make([]*Queue, len(q.children))
	copy(children, q.children)
	q.mu.Unlock()

	select {
	case q.events <- event:
	case <-q.done:
		log.Debug("queue closed during enqueue", "kind", event.EventKind())
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}

	for _, child := range children {
		if err := child.Enqueue(ctx, event); err != nil {
			return err
		}
	}

	return nil
}

/*
Dequeue returns the next event, waiting until one arrives, the queue
closes, or the context is done.  After close, buffered events are drained
first; once empty it returns the recorded producer failure if there is
one, otherwise ErrQueueClosed.
*/
func (q *Queue) Dequeue(ctx context.Context) (a2a.Event, error) {
	select {
	case event := <-q.events:
		return event, nil
	default:
	}

	select {
	case event := <-q.events:
		return event, nil
	case <-q.done:
		select {
		case event := <-q.events:
			return event, nil
		default:
			return nil, q.closeReason()
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

/*
DequeueNoWait polls for the next event.  An open, empty queue yields
ErrQueueEmpty, which is a retry signal rather than a terminal condition.
*/
func (q *Queue) DequeueNoWait() (a2a.Event, error) {
	select {
	case event := <-q.events:
		return event, nil
	default:
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		if q.err != nil {
			return nil, q.err
		}
		return nil, ErrQueueClosed
	}

	return nil, ErrQueueEmpty
}

/*
Tap creates a child queue that receives every event enqueued from now on.
Tapping a closed queue returns an already-closed child, so a subscriber
still terminates cleanly.
*/
func (q *Queue) Tap() *Queue {
	child := NewWithSize(cap(q.events))

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		child.closeLocked(q.err)
		return child
	}

	q.children = append(q.children, child)

	return child
}

// Close shuts the queue down; buffered events stay readable until drained.
// Taps close with their parent.
func (q *Queue) Close() {
	q.fail(nil)
}

// Fail closes the queue and records the producer's error, which consumers
// receive once the buffer is drained.
func (q *Queue) Fail(err error) {
	q.fail(err)
}

func (q *Queue) fail(err error) {
	q.mu.Lock()

	if q.closed {
		q.mu.Unlock()
		return
	}

	children := make([]*Queue, len(q.children))
	copy(children, q.children)
	q.closeLocked(err)
	q.mu.Unlock()

	for _, child := range children {
		child.fail(err)
	}
}

// closeLocked flips the closed state; callers hold q.mu (or own the queue
// exclusively, as Tap does for a fresh child).
func (q *Queue) closeLocked(err error) {
	if q.closed {
		return
	}

	q.closed = true
	q.err = err
	close(q.done)
}

// Closed reports whether Close or Fail was called.
func (q *Queue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.closed
}

func (q *Queue) closeReason() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.err != nil {
		return q.err
	}

	return ErrQueueClosed
}
