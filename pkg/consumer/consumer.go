package consumer

import (
	"context"
	stderrors "errors"

	"github.com/theapemachine/a2a-sdk/pkg/a2a"
	"github.com/theapemachine/a2a-sdk/pkg/errors"
	"github.com/theapemachine/a2a-sdk/pkg/eventqueue"
)

// Result pairs an event with the error that ended the stream, so a single
// channel can carry both.
type Result struct {
	Event a2a.Event
	Err   *errors.RpcError
}

/*
EventConsumer reads the events an agent produces for one request.  It owns
the consuming side of the queue and decides when the stream is complete.
*/
type EventConsumer struct {
	queue *eventqueue.Queue
}

func New(queue *eventqueue.Queue) *EventConsumer {
	return &EventConsumer{queue: queue}
}

/*
ConsumeOne returns the next buffered event without waiting.  An empty
queue means the agent produced nothing, which callers treat as a protocol
violation rather than a retry.
*/
func (c *EventConsumer) ConsumeOne() (a2a.Event, *errors.RpcError) {
	event, err := c.queue.DequeueNoWait()

	if err != nil {
		return nil, errors.ErrInternal.WithMessagef(
			"agent did not return any response",
		)
	}

	return event, nil
}

/*
ConsumeAll streams every event until a final one arrives, the queue closes,
or the context is done.  A Message or a final status update terminates the
stream and closes the queue so taps shut down with it.  A producer failure
recorded on the queue surfaces as the last Result.
*/
func (c *EventConsumer) ConsumeAll(ctx context.Context) <-chan Result {
	out := make(chan Result)

	go func() {
		defer close(out)

		for {
			event, err := c.queue.Dequeue(ctx)

			if err != nil {
				if stderrors.Is(err, eventqueue.ErrQueueClosed) || ctx.Err() != nil {
					return
				}

				select {
				case out <- Result{Err: errors.FromError(err)}:
				case <-ctx.Done():
				}

				return
			}

			select {
			case out <- Result{Event: event}:
			case <-ctx.Done():
				return
			}

			if IsFinal(event) {
				c.queue.Close()
				return
			}
		}
	}()

	return out
}

/*
IsFinal reports whether an event ends the stream for its request: a direct
Message reply, a status update flagged final, or a full Task snapshot in a
state the producer will not move past on this stream.
*/
func IsFinal(event a2a.Event) bool {
	switch ev := event.(type) {
	case *a2a.Message:
		return true
	case *a2a.TaskStatusUpdateEvent:
		return ev.Final
	case *a2a.Task:
		return ev.Status.State.Terminal() ||
			ev.Status.State.Interrupted() ||
			ev.Status.State == a2a.TaskStateUnknown
	}

	return false
}
