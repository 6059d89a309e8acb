package handler

import (
	"context"

	"github.com/theapemachine/a2a-sdk/pkg/a2a"
	"github.com/theapemachine/a2a-sdk/pkg/consumer"
	"github.com/theapemachine/a2a-sdk/pkg/errors"
	"github.com/theapemachine/a2a-sdk/pkg/eventqueue"
	"github.com/theapemachine/a2a-sdk/pkg/executor"
	"github.com/theapemachine/a2a-sdk/pkg/stores"
	"github.com/theapemachine/a2a-sdk/pkg/taskmanager"
)

// OnGetTask reads a task snapshot, trimmed to the requested history depth.
func (h *RequestHandler) OnGetTask(ctx context.Context, params *a2a.TaskQueryParams, call *a2a.ServerCallContext) (*a2a.Task, *errors.RpcError) {
	if params == nil || params.ID == "" {
		return nil, errors.ErrInvalidParams.WithMessagef("task id is required")
	}

	task, rpcErr := h.taskStore.Get(ctx, params.ID)

	if rpcErr != nil {
		return nil, rpcErr
	}

	if task == nil {
		return nil, errors.ErrTaskNotFound.WithMessagef("no task with id %s", params.ID)
	}

	task.TrimHistory(params.HistoryLength)

	return task, nil
}

// OnListTasks pages through stored tasks; filtering, ordering and token
// handling live in the store layer.
func (h *RequestHandler) OnListTasks(ctx context.Context, params *a2a.ListTasksParams, call *a2a.ServerCallContext) (*a2a.ListTasksResult, *errors.RpcError) {
	if params == nil {
		params = &a2a.ListTasksParams{}
	}

	return h.taskStore.List(ctx, *params)
}

/*
OnCancelTask asks the agent to stop a task.  With a live producer the
cancel request rides the existing queue, so the original caller and every
tap observe the same canceled event; without one the agent's cancel runs
on a detached queue and its events fold straight into the store.
*/
func (h *RequestHandler) OnCancelTask(ctx context.Context, params *a2a.TaskIDParams, call *a2a.ServerCallContext) (*a2a.Task, *errors.RpcError) {
	if params == nil || params.ID == "" {
		return nil, errors.ErrInvalidParams.WithMessagef("task id is required")
	}

	task, rpcErr := h.taskStore.Get(ctx, params.ID)

	if rpcErr != nil {
		return nil, rpcErr
	}

	if task == nil {
		return nil, errors.ErrTaskNotFound.WithMessagef("no task with id %s", params.ID)
	}

	if task.Status.State.Terminal() {
		return nil, errors.ErrTaskNotCancelable.WithMessagef(
			"task %s is already in terminal state %s", task.ID, task.Status.State,
		)
	}

	if exec := h.runningExecution(task.ID); exec != nil {
		return h.cancelRunning(ctx, exec, task, call)
	}

	return h.cancelDetached(ctx, task, call)
}

func (h *RequestHandler) cancelRunning(ctx context.Context, exec *execution, task *a2a.Task, call *a2a.ServerCallContext) (*a2a.Task, *errors.RpcError) {
	tap := exec.queue.Tap()

	if err := h.agent.Cancel(ctx, exec.reqCtx, exec.queue); err != nil {
		tap.Close()
		return nil, errors.FromError(err)
	}

	// The original call's consumer folds the canceled event into the real
	// store; the tap only shapes this response.
	local := stores.NewInMemoryTaskStore()

	if rpcErr := local.Save(ctx, task); rpcErr != nil {
		tap.Close()
		return nil, rpcErr
	}

	manager := taskmanager.New(local, task.ID, task.ContextID, nil)
	result, rpcErr := consumer.NewResultAggregator(manager).ConsumeAll(ctx, consumer.New(tap))

	if rpcErr != nil {
		return nil, rpcErr
	}

	canceled, ok := result.(*a2a.Task)

	if !ok {
		return nil, errors.ErrInvalidAgentResponse.WithMessagef(
			"agent answered cancel with a message instead of a task",
		)
	}

	// The tap can lose the race with natural termination; the store holds
	// whichever terminal state won.
	if !canceled.Status.State.Terminal() {
		if fresh, rpcErr := h.taskStore.Get(ctx, task.ID); rpcErr == nil && fresh != nil {
			canceled = fresh
		}
	}

	h.notify(ctx, call, canceled)

	return canceled, nil
}

func (h *RequestHandler) cancelDetached(ctx context.Context, task *a2a.Task, call *a2a.ServerCallContext) (*a2a.Task, *errors.RpcError) {
	queue := eventqueue.New()

	reqCtx := &executor.RequestContext{
		TaskID:      task.ID,
		ContextID:   task.ContextID,
		CurrentTask: task,
		CallContext: call,
	}

	if err := h.agent.Cancel(ctx, reqCtx, queue); err != nil {
		return nil, errors.FromError(err)
	}

	queue.Close()

	manager := taskmanager.New(h.taskStore, task.ID, task.ContextID, nil)
	result, rpcErr := consumer.NewResultAggregator(manager).ConsumeAll(ctx, consumer.New(queue))

	if rpcErr != nil {
		return nil, rpcErr
	}

	canceled, ok := result.(*a2a.Task)

	if !ok {
		return nil, errors.ErrInvalidAgentResponse.WithMessagef(
			"agent answered cancel with a message instead of a task",
		)
	}

	h.notify(ctx, call, canceled)

	return canceled, nil
}

/*
OnResubscribe reattaches a caller to a task's event stream.  The first
event is always the current snapshot from the store, so the client resumes
from a known state; live events follow from a tap when the producer is
still running.
*/
func (h *RequestHandler) OnResubscribe(ctx context.Context, params *a2a.TaskIDParams, call *a2a.ServerCallContext) (<-chan consumer.Result, *errors.RpcError) {
	if !h.card.Streaming() {
		return nil, errors.ErrUnsupportedOperation.WithMessagef("agent does not support streaming")
	}

	if params == nil || params.ID == "" {
		return nil, errors.ErrInvalidParams.WithMessagef("task id is required")
	}

	task, rpcErr := h.taskStore.Get(ctx, params.ID)

	if rpcErr != nil {
		return nil, rpcErr
	}

	if task == nil {
		return nil, errors.ErrTaskNotFound.WithMessagef("no task with id %s", params.ID)
	}

	return h.relayTap(ctx, h.queues.Tap(task.ID), task), nil
}
