package executor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/theapemachine/a2a-sdk/pkg/a2a"
	"github.com/theapemachine/a2a-sdk/pkg/eventqueue"
)

func TestNewRequestContextGeneratesIDs(t *testing.T) {
	params := &a2a.MessageSendParams{Message: a2a.NewUserMessage("hello")}

	reqCtx, rpcErr := NewRequestContext(params, nil, nil, nil)
	require.Nil(t, rpcErr)

	assert.NotEmpty(t, reqCtx.TaskID)
	assert.NotEmpty(t, reqCtx.ContextID)

	// The ids are written back so downstream events agree with the message.
	assert.Equal(t, reqCtx.TaskID, params.Message.TaskID)
	assert.Equal(t, reqCtx.ContextID, params.Message.ContextID)
}

func TestNewRequestContextPinsToExistingTask(t *testing.T) {
	msg := a2a.NewUserMessage("again")
	msg.TaskID = "stale-id"

	task := &a2a.Task{ID: "task-1", ContextID: "ctx-1"}

	reqCtx, rpcErr := NewRequestContext(&a2a.MessageSendParams{Message: msg}, nil, task, nil)
	require.Nil(t, rpcErr)

	assert.Equal(t, "task-1", reqCtx.TaskID)
	assert.Equal(t, "ctx-1", reqCtx.ContextID)
	assert.Equal(t, "task-1", msg.TaskID)
}

func TestNewRequestContextRequiresMessage(t *testing.T) {
	_, rpcErr := NewRequestContext(&a2a.MessageSendParams{}, nil, nil, nil)
	require.NotNil(t, rpcErr)

	_, rpcErr = NewRequestContext(nil, nil, nil, nil)
	require.NotNil(t, rpcErr)
}

func TestDeliverInput(t *testing.T) {
	reqCtx, rpcErr := NewRequestContext(
		&a2a.MessageSendParams{Message: a2a.NewUserMessage("start")}, nil, nil, nil,
	)
	require.Nil(t, rpcErr)

	follow := a2a.NewUserMessage("more")
	assert.True(t, reqCtx.DeliverInput(follow))

	select {
	case got := <-reqCtx.Input():
		assert.Equal(t, "more", got.String())
	default:
		t.Fatal("expected a buffered input message")
	}
}

func TestDeliverInputReportsFullBuffer(t *testing.T) {
	reqCtx, rpcErr := NewRequestContext(
		&a2a.MessageSendParams{Message: a2a.NewUserMessage("start")}, nil, nil, nil,
	)
	require.Nil(t, rpcErr)

	for i := 0; i < inputBuffer; i++ {
		require.True(t, reqCtx.DeliverInput(a2a.NewUserMessage("fill")))
	}

	assert.False(t, reqCtx.DeliverInput(a2a.NewUserMessage("overflow")))
}

func TestEchoExecutorStreamsEcho(t *testing.T) {
	queue := eventqueue.New()
	ctx := context.Background()

	reqCtx, rpcErr := NewRequestContext(
		&a2a.MessageSendParams{Message: a2a.NewUserMessage("Run agent")}, nil, nil, nil,
	)
	require.Nil(t, rpcErr)

	require.NoError(t, NewEchoExecutor().Execute(ctx, reqCtx, queue))

	kinds := []string{}

	for {
		event, err := queue.DequeueNoWait()
		if err != nil {
			break
		}
		kinds = append(kinds, event.EventKind())

		if artifact, ok := event.(*a2a.TaskArtifactUpdateEvent); ok {
			require.Len(t, artifact.Artifact.Parts, 1)
			assert.Equal(t, "Run agent", artifact.Artifact.Parts[0].Text)
		}
	}

	assert.Equal(t, []string{"task", "status-update", "artifact-update", "status-update"}, kinds)
}

func TestEchoExecutorCancel(t *testing.T) {
	queue := eventqueue.New()

	reqCtx, rpcErr := NewRequestContext(
		&a2a.MessageSendParams{Message: a2a.NewUserMessage("Run agent")}, nil, nil, nil,
	)
	require.Nil(t, rpcErr)

	require.NoError(t, NewEchoExecutor().Cancel(context.Background(), reqCtx, queue))

	event, err := queue.DequeueNoWait()
	require.NoError(t, err)

	update, ok := event.(*a2a.TaskStatusUpdateEvent)
	require.True(t, ok)
	assert.Equal(t, a2a.TaskStateCanceled, update.Status.State)
	assert.True(t, update.Final)
}
