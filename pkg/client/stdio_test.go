package client

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/theapemachine/a2a-sdk/pkg/a2a"
	"github.com/theapemachine/a2a-sdk/pkg/errors"
	"github.com/theapemachine/a2a-sdk/pkg/service"
)

// startStdioPeer wires the transport to a real stdio server over in-memory
// pipes, standing in for a spawned agent process.
func startStdioPeer(t *testing.T) Transport {
	t.Helper()

	srv := service.NewStdioServer(newEchoHandler())

	fromClient, toServer := io.Pipe()
	fromServer, toClient := io.Pipe()

	go func() {
		_ = srv.Serve(context.Background(), fromClient, toClient)

		// Serve returns once the transport closes its write side; closing
		// the reply pipe lets the transport's reader wind down too.
		_ = toClient.Close()
	}()

	card := echoCard()

	transport := newStdioPipes(&card, nil, toServer, fromServer)
	t.Cleanup(func() { _ = transport.Close() })

	return transport
}

func TestStdioSendMessageRoundTrip(t *testing.T) {
	transport := startStdioPeer(t)

	task := sendThrough(t, transport, "over the pipe")
	assert.Equal(t, a2a.TaskStateCompleted, task.Status.State)
	assert.Equal(t, "over the pipe", task.History[0].String())

	got, err := transport.GetTask(context.Background(), &a2a.TaskQueryParams{ID: task.ID})
	require.NoError(t, err)
	assert.Equal(t, task.ID, got.ID)
}

func TestStdioStreamEndsAfterFinalFrame(t *testing.T) {
	transport := startStdioPeer(t)

	frames, err := transport.SendMessageStream(context.Background(), &a2a.MessageSendParams{
		Message: a2a.NewUserMessage("stream me"),
	})
	require.NoError(t, err)

	var kinds []string

	for frame := range frames {
		require.NoError(t, frame.Err)
		kinds = append(kinds, frame.Event.EventKind())
	}

	assert.Equal(t, []string{"task", "status-update"}, kinds)
}

func TestStdioErrorEnvelope(t *testing.T) {
	transport := startStdioPeer(t)

	_, err := transport.GetTask(context.Background(), &a2a.TaskQueryParams{ID: "missing"})

	var rpcErr *errors.RpcError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, errors.ErrTaskNotFound.Code, rpcErr.Code)
}

func TestStdioSubscribeErrorFrameEndsStream(t *testing.T) {
	transport := startStdioPeer(t)

	frames, err := transport.Subscribe(context.Background(), &a2a.TaskIDParams{ID: "missing"})
	require.NoError(t, err)

	frame, ok := <-frames
	require.True(t, ok)

	var rpcErr *errors.RpcError
	require.ErrorAs(t, frame.Err, &rpcErr)
	assert.Equal(t, errors.ErrTaskNotFound.Code, rpcErr.Code)

	_, ok = <-frames
	assert.False(t, ok)
}

func TestStdioConcurrentCalls(t *testing.T) {
	transport := startStdioPeer(t)

	first := sendThrough(t, transport, "first")
	second := sendThrough(t, transport, "second")
	require.NotEqual(t, first.ID, second.ID)

	// Replies route by request id, so interleaved calls each get their own.
	gotFirst, err := transport.GetTask(context.Background(), &a2a.TaskQueryParams{ID: first.ID})
	require.NoError(t, err)

	gotSecond, err := transport.GetTask(context.Background(), &a2a.TaskQueryParams{ID: second.ID})
	require.NoError(t, err)

	assert.Equal(t, "first", gotFirst.History[0].String())
	assert.Equal(t, "second", gotSecond.History[0].String())
}

func TestStdioPushConfigRoundTrip(t *testing.T) {
	transport := startStdioPeer(t)
	task := sendThrough(t, transport, "notify me")

	stored, err := transport.SetTaskCallback(context.Background(), &a2a.TaskPushNotificationConfig{
		TaskID:                 task.ID,
		PushNotificationConfig: a2a.PushNotificationConfig{ID: "cfg-1", URL: "https://hooks.example.com/a2a"},
	})
	require.NoError(t, err)
	assert.Equal(t, task.ID, stored.TaskID)

	got, err := transport.GetTaskCallback(context.Background(), &a2a.GetTaskPushNotificationConfigParams{
		ID: task.ID, PushNotificationConfigID: "cfg-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://hooks.example.com/a2a", got.PushNotificationConfig.URL)
}

func TestStdioCloseUnblocksLaterCalls(t *testing.T) {
	transport := startStdioPeer(t)

	sendThrough(t, transport, "warm up")
	require.NoError(t, transport.Close())

	_, err := transport.SendMessage(context.Background(), &a2a.MessageSendParams{
		Message: a2a.NewUserMessage("too late"),
	})
	require.Error(t, err)
}
