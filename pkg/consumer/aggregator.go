package consumer

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/theapemachine/a2a-sdk/pkg/a2a"
	"github.com/theapemachine/a2a-sdk/pkg/errors"
	"github.com/theapemachine/a2a-sdk/pkg/taskmanager"
)

/*
ResultAggregator folds a consumer's event stream into the task store and
shapes the outcome a request handler returns: the full stream, the final
result, or an early snapshot when the agent pauses for authentication or
the caller asked not to block.
*/
type ResultAggregator struct {
	manager *taskmanager.TaskManager
}

func NewResultAggregator(manager *taskmanager.TaskManager) *ResultAggregator {
	return &ResultAggregator{manager: manager}
}

/*
ConsumeAndEmit folds each event into the store and forwards it unchanged,
which is what a streaming response needs: persistence as a side effect,
the live events as the payload.
*/
func (ra *ResultAggregator) ConsumeAndEmit(ctx context.Context, c *EventConsumer) <-chan Result {
	out := make(chan Result)

	go func() {
		defer close(out)

		for res := range c.ConsumeAll(ctx) {
			if res.Err == nil && res.Event != nil {
				if _, rpcErr := ra.manager.Process(ctx, res.Event); rpcErr != nil {
					res = Result{Err: rpcErr}
				}
			}

			select {
			case out <- res:
			case <-ctx.Done():
				return
			}

			if res.Err != nil {
				return
			}
		}
	}()

	return out
}

/*
ConsumeAll drains the stream to completion and returns the final result: the
Message when the agent replied directly, otherwise the folded Task snapshot.
*/
func (ra *ResultAggregator) ConsumeAll(ctx context.Context, c *EventConsumer) (a2a.Event, *errors.RpcError) {
	for res := range c.ConsumeAll(ctx) {
		if res.Err != nil {
			return nil, res.Err
		}

		if msg, ok := res.Event.(*a2a.Message); ok {
			return msg, nil
		}

		if _, rpcErr := ra.manager.Process(ctx, res.Event); rpcErr != nil {
			return nil, rpcErr
		}
	}

	return ra.snapshot(ctx)
}

// snapshotGrace bounds how long a non-blocking send waits for the agent's
// first event before synthesizing a submitted snapshot.
const snapshotGrace = 250 * time.Millisecond

/*
ConsumeAndBreakOnInterrupt behaves like ConsumeAll until the task enters an
interruptible state, where the agent is waiting on the client.  It then
returns the current snapshot with interrupted set, leaving the producer
running and the queue open, while a background goroutine keeps folding the
remaining events so the store converges even though the caller stopped
waiting.

With blocking false it detaches on the first task-shaped event instead, or
after a short grace synthesizes a submitted snapshot, so the caller always
gets an id to poll.
*/
func (ra *ResultAggregator) ConsumeAndBreakOnInterrupt(ctx context.Context, c *EventConsumer, blocking bool) (a2a.Event, bool, *errors.RpcError) {
	events := c.ConsumeAll(ctx)

	var grace <-chan time.Time

	if !blocking {
		timer := time.NewTimer(snapshotGrace)
		defer timer.Stop()
		grace = timer.C
	}

	for {
		select {
		case res, ok := <-events:
			if !ok {
				event, rpcErr := ra.snapshot(ctx)
				return event, false, rpcErr
			}

			if res.Err != nil {
				return nil, false, res.Err
			}

			if msg, isMsg := res.Event.(*a2a.Message); isMsg {
				return msg, false, nil
			}

			if _, rpcErr := ra.manager.Process(ctx, res.Event); rpcErr != nil {
				return nil, false, rpcErr
			}

			if needsInterrupt(res.Event, blocking) && !IsFinal(res.Event) {
				go ra.continueConsuming(context.WithoutCancel(ctx), events)

				task, rpcErr := ra.snapshot(ctx)

				return task, true, rpcErr
			}

		case <-grace:
			go ra.continueConsuming(context.WithoutCancel(ctx), events)

			task, rpcErr := ra.manager.EnsureTask(ctx, nil)

			return task, true, rpcErr
		}
	}
}

// continueConsuming folds the rest of an abandoned stream so the persisted
// task still reaches its final state.
func (ra *ResultAggregator) continueConsuming(ctx context.Context, events <-chan Result) {
	for res := range events {
		if res.Err != nil {
			log.Warn("background consumption stopped", "error", res.Err)
			return
		}

		if _, rpcErr := ra.manager.Process(ctx, res.Event); rpcErr != nil {
			log.Warn("background folding failed", "error", rpcErr)
			return
		}
	}
}

func (ra *ResultAggregator) snapshot(ctx context.Context) (*a2a.Task, *errors.RpcError) {
	task, rpcErr := ra.manager.GetTask(ctx)

	if rpcErr != nil {
		return nil, rpcErr
	}

	if task == nil {
		return nil, errors.ErrInternal.WithMessagef(
			"agent produced no result for task",
		)
	}

	return task, nil
}

// needsInterrupt decides whether the caller should get an early snapshot:
// always when the task enters a state where the agent waits on the client,
// and on any task-shaped event when the caller opted out of blocking.
func needsInterrupt(event a2a.Event, blocking bool) bool {
	switch ev := event.(type) {
	case *a2a.Task:
		return ev.Status.State.Interrupted() || !blocking
	case *a2a.TaskStatusUpdateEvent:
		return ev.Status.State.Interrupted() || !blocking
	}

	return false
}
