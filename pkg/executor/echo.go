package executor

import (
	"context"

	"github.com/theapemachine/a2a-sdk/pkg/a2a"
	"github.com/theapemachine/a2a-sdk/pkg/eventqueue"
)

/*
EchoExecutor is a minimal agent used by the examples and the test suites.
It acknowledges the request, streams the user's text back as an artifact,
and completes.
*/
type EchoExecutor struct{}

func NewEchoExecutor() *EchoExecutor {
	return &EchoExecutor{}
}

func (e *EchoExecutor) Execute(ctx context.Context, reqCtx *RequestContext, queue *eventqueue.Queue) error {
	task := reqCtx.CurrentTask

	if task == nil {
		created, rpcErr := a2a.NewTask(reqCtx.Message)

		if rpcErr != nil {
			return rpcErr
		}

		task = created

		if err := queue.Enqueue(ctx, task); err != nil {
			return err
		}
	}

	if err := queue.Enqueue(ctx, a2a.NewStatusUpdateEvent(task, a2a.TaskStateWorking, nil)); err != nil {
		return err
	}

	artifact := a2a.NewTextArtifact("echo", reqCtx.UserInput())

	if err := queue.Enqueue(ctx, a2a.NewArtifactUpdateEvent(task, artifact)); err != nil {
		return err
	}

	return queue.Enqueue(ctx, a2a.NewFinalStatusUpdateEvent(
		task, a2a.TaskStateCompleted, a2a.NewAgentMessage("done"),
	))
}

func (e *EchoExecutor) Cancel(ctx context.Context, reqCtx *RequestContext, queue *eventqueue.Queue) error {
	task := reqCtx.CurrentTask

	if task == nil {
		task = &a2a.Task{ID: reqCtx.TaskID, ContextID: reqCtx.ContextID}
	}

	return queue.Enqueue(ctx, a2a.NewFinalStatusUpdateEvent(
		task, a2a.TaskStateCanceled, nil,
	))
}
