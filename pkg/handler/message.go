package handler

import (
	"context"
	stderrors "errors"

	"github.com/theapemachine/a2a-sdk/pkg/a2a"
	"github.com/theapemachine/a2a-sdk/pkg/consumer"
	"github.com/theapemachine/a2a-sdk/pkg/errors"
	"github.com/theapemachine/a2a-sdk/pkg/eventqueue"
	"github.com/theapemachine/a2a-sdk/pkg/executor"
	"github.com/theapemachine/a2a-sdk/pkg/stores"
	"github.com/theapemachine/a2a-sdk/pkg/taskmanager"
)

// sendSetup is the resolved state of one send call before events flow.
type sendSetup struct {
	reqCtx *executor.RequestContext
	exec   *execution
	task   *a2a.Task
}

/*
OnMessageSend runs one message through the agent and returns the outcome:
the final task, an early snapshot when the agent pauses or the caller opted
out of blocking, or the agent's direct Message reply.
*/
func (h *RequestHandler) OnMessageSend(ctx context.Context, params *a2a.MessageSendParams, call *a2a.ServerCallContext) (a2a.Event, *errors.RpcError) {
	setup, rpcErr := h.prepareSend(ctx, params, call)

	if rpcErr != nil {
		return nil, rpcErr
	}

	blocking := params.Configuration.IsBlocking()

	if setup.exec != nil {
		return h.sendToRunning(ctx, setup, blocking, params, call)
	}

	return h.sendFresh(ctx, setup, blocking, params, call)
}

/*
OnMessageSendStream is the streaming variant: every event the agent emits
is folded into the store and forwarded to the caller as it happens.
*/
func (h *RequestHandler) OnMessageSendStream(ctx context.Context, params *a2a.MessageSendParams, call *a2a.ServerCallContext) (<-chan consumer.Result, *errors.RpcError) {
	if !h.card.Streaming() {
		return nil, errors.ErrUnsupportedOperation.WithMessagef("agent does not support streaming")
	}

	setup, rpcErr := h.prepareSend(ctx, params, call)

	if rpcErr != nil {
		return nil, rpcErr
	}

	// A live producer means this message is follow-up input: deliver it and
	// relay the shared queue instead of spawning a second execution.
	if setup.exec != nil {
		tap := setup.exec.queue.Tap()

		if !setup.exec.reqCtx.DeliverInput(params.Message) {
			tap.Close()
			return nil, errors.ErrInternal.WithMessagef(
				"agent is not accepting input for task %s", setup.task.ID,
			)
		}

		return h.relayTap(ctx, tap, nil), nil
	}

	reqCtx := setup.reqCtx
	queue := h.queues.CreateOrTap(reqCtx.TaskID)

	h.register(&execution{reqCtx: reqCtx, queue: queue})
	go h.execute(context.WithoutCancel(ctx), reqCtx, queue)

	manager := taskmanager.New(h.taskStore, reqCtx.TaskID, reqCtx.ContextID, reqCtx.Message)
	aggregator := consumer.NewResultAggregator(manager)

	return h.watchStream(ctx, aggregator.ConsumeAndEmit(ctx, consumer.New(queue)), call), nil
}

/*
prepareSend validates the request, resolves the task the message targets,
persists follow-up messages into history, and registers any embedded push
config.  It reports a live execution when one exists so the caller can
route the message to it.
*/
func (h *RequestHandler) prepareSend(ctx context.Context, params *a2a.MessageSendParams, call *a2a.ServerCallContext) (*sendSetup, *errors.RpcError) {
	if params == nil || params.Message == nil {
		return nil, errors.ErrInvalidParams.WithMessagef("message is required")
	}

	if params.Configuration != nil && !modalitiesCompatible(h.card.DefaultOutputModes, params.Configuration.AcceptedOutputModes) {
		return nil, errors.ErrContentTypeNotSupported
	}

	var task *a2a.Task

	if params.Message.TaskID != "" {
		var rpcErr *errors.RpcError
		task, rpcErr = h.taskStore.Get(ctx, params.Message.TaskID)

		if rpcErr != nil {
			return nil, rpcErr
		}

		if task == nil {
			return nil, errors.ErrTaskNotFound.WithMessagef(
				"no task with id %s", params.Message.TaskID,
			)
		}

		if task.Status.State.Terminal() {
			return nil, errors.ErrInvalidParams.WithMessagef(
				"task %s is in terminal state %s", task.ID, task.Status.State,
			)
		}
	}

	if exec := h.runningExecution(params.Message.TaskID); exec != nil && task != nil {
		manager := taskmanager.New(h.taskStore, task.ID, task.ContextID, nil)
		updated, rpcErr := manager.UpdateWithMessage(ctx, params.Message, task)

		if rpcErr != nil {
			return nil, rpcErr
		}

		if rpcErr := h.registerPushConfig(ctx, params, call, task.ID); rpcErr != nil {
			return nil, rpcErr
		}

		return &sendSetup{exec: exec, task: updated}, nil
	}

	related, rpcErr := h.relatedTasks(ctx, params.Message)

	if rpcErr != nil {
		return nil, rpcErr
	}

	reqCtx, rpcErr := executor.NewRequestContext(params, call, task, related)

	if rpcErr != nil {
		return nil, rpcErr
	}

	if rpcErr := h.registerPushConfig(ctx, params, call, reqCtx.TaskID); rpcErr != nil {
		return nil, rpcErr
	}

	// An existing task with no live producer resumes from the store: the
	// follow-up joins the history before the agent restarts.
	if task != nil {
		manager := taskmanager.New(h.taskStore, task.ID, task.ContextID, nil)
		updated, rpcErr := manager.UpdateWithMessage(ctx, params.Message, task)

		if rpcErr != nil {
			return nil, rpcErr
		}

		task = updated
		reqCtx.CurrentTask = updated
	}

	return &sendSetup{reqCtx: reqCtx, task: task}, nil
}

// relatedTasks resolves the tasks a message references; unknown ids are
// skipped rather than failing the send.
func (h *RequestHandler) relatedTasks(ctx context.Context, msg *a2a.Message) ([]*a2a.Task, *errors.RpcError) {
	if len(msg.ReferenceTaskIDs) == 0 {
		return nil, nil
	}

	related := make([]*a2a.Task, 0, len(msg.ReferenceTaskIDs))

	for _, id := range msg.ReferenceTaskIDs {
		ref, rpcErr := h.taskStore.Get(ctx, id)

		if rpcErr != nil {
			return nil, rpcErr
		}

		if ref != nil {
			related = append(related, ref)
		}
	}

	return related, nil
}

func (h *RequestHandler) registerPushConfig(ctx context.Context, params *a2a.MessageSendParams, call *a2a.ServerCallContext, taskID string) *errors.RpcError {
	if params.Configuration == nil || params.Configuration.PushNotificationConfig == nil {
		return nil
	}

	if !h.card.PushNotificationsEnabled() {
		return errors.ErrPushNotificationNotSupported
	}

	if h.pushStore == nil {
		return errors.ErrUnsupportedOperation.WithMessagef("push notification store is not configured")
	}

	_, rpcErr := h.pushStore.Set(ctx, h.ownerResolver(call), a2a.TaskPushNotificationConfig{
		TaskID:                 taskID,
		PushNotificationConfig: *params.Configuration.PushNotificationConfig,
	})

	return rpcErr
}

// sendFresh spawns the producer for a task with no running execution and
// consumes its events according to the blocking mode.
func (h *RequestHandler) sendFresh(ctx context.Context, setup *sendSetup, blocking bool, params *a2a.MessageSendParams, call *a2a.ServerCallContext) (a2a.Event, *errors.RpcError) {
	reqCtx := setup.reqCtx
	queue := h.queues.CreateOrTap(reqCtx.TaskID)

	h.register(&execution{reqCtx: reqCtx, queue: queue})
	go h.execute(context.WithoutCancel(ctx), reqCtx, queue)

	manager := taskmanager.New(h.taskStore, reqCtx.TaskID, reqCtx.ContextID, reqCtx.Message)
	aggregator := consumer.NewResultAggregator(manager)

	result, _, rpcErr := aggregator.ConsumeAndBreakOnInterrupt(ctx, consumer.New(queue), blocking)

	if rpcErr != nil {
		return nil, rpcErr
	}

	if task, ok := result.(*a2a.Task); ok {
		h.notify(ctx, call, task)
		return trimmed(task, params), nil
	}

	return result, nil
}

/*
sendToRunning routes a follow-up message to a live producer: the message is
handed to the execution's input channel and the caller watches the shared
queue from a tap.  Folding stays with the original call's consumer, so the
tap is folded into a throwaway store purely to shape this response.
*/
func (h *RequestHandler) sendToRunning(ctx context.Context, setup *sendSetup, blocking bool, params *a2a.MessageSendParams, call *a2a.ServerCallContext) (a2a.Event, *errors.RpcError) {
	task := setup.task
	tap := setup.exec.queue.Tap()

	if !setup.exec.reqCtx.DeliverInput(params.Message) {
		tap.Close()
		return nil, errors.ErrInternal.WithMessagef(
			"agent is not accepting input for task %s", task.ID,
		)
	}

	if !blocking {
		tap.Close()
		return trimmed(task, params), nil
	}

	local := stores.NewInMemoryTaskStore()

	if rpcErr := local.Save(ctx, task); rpcErr != nil {
		tap.Close()
		return nil, rpcErr
	}

	manager := taskmanager.New(local, task.ID, task.ContextID, nil)
	aggregator := consumer.NewResultAggregator(manager)

	result, _, rpcErr := aggregator.ConsumeAndBreakOnInterrupt(ctx, consumer.New(tap), true)

	if rpcErr != nil {
		return nil, rpcErr
	}

	if resolved, ok := result.(*a2a.Task); ok {
		h.notify(ctx, call, resolved)
		return trimmed(resolved, params), nil
	}

	return result, nil
}

/*
relayTap forwards events from a tap without folding them; the execution
that owns the primary queue is already persisting.  A non-nil first event
is emitted before any tap traffic, which is how resubscribers receive the
current snapshot ahead of the live stream.
*/
func (h *RequestHandler) relayTap(ctx context.Context, tap *eventqueue.Queue, first a2a.Event) <-chan consumer.Result {
	out := make(chan consumer.Result)

	go func() {
		defer close(out)

		if tap != nil {
			defer tap.Close()
		}

		if first != nil {
			select {
			case out <- consumer.Result{Event: first}:
			case <-ctx.Done():
				return
			}

			// A terminal snapshot is the whole story; an interrupted one
			// stays open for the events that resume it.
			if state, ok := eventState(first); ok && state.Terminal() {
				return
			}
		}

		if tap == nil {
			return
		}

		for {
			event, err := tap.Dequeue(ctx)

			if err != nil {
				if stderrors.Is(err, eventqueue.ErrQueueClosed) || ctx.Err() != nil {
					return
				}

				select {
				case out <- consumer.Result{Err: errors.FromError(err)}:
				case <-ctx.Done():
				}

				return
			}

			select {
			case out <- consumer.Result{Event: event}:
			case <-ctx.Done():
				return
			}

			if consumer.IsFinal(event) {
				return
			}
		}
	}()

	return out
}

// watchStream forwards a folded event stream, dispatching push
// notifications when a snapshot reaches a notifiable state.
func (h *RequestHandler) watchStream(ctx context.Context, events <-chan consumer.Result, call *a2a.ServerCallContext) <-chan consumer.Result {
	if h.pushSender == nil {
		return events
	}

	out := make(chan consumer.Result)

	go func() {
		defer close(out)

		for res := range events {
			select {
			case out <- res:
			case <-ctx.Done():
				return
			}

			if res.Err != nil {
				continue
			}

			state, ok := eventState(res.Event)

			if !ok || (!state.Terminal() && !state.Interrupted()) {
				continue
			}

			if task, rpcErr := h.taskStore.Get(ctx, taskIDOf(res.Event)); rpcErr == nil && task != nil {
				h.notify(ctx, call, task)
			}
		}
	}()

	return out
}
