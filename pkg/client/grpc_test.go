package client

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/theapemachine/a2a-sdk/pkg/a2a"
	"github.com/theapemachine/a2a-sdk/pkg/errors"
	"github.com/theapemachine/a2a-sdk/pkg/eventqueue"
	"github.com/theapemachine/a2a-sdk/pkg/executor"
	"github.com/theapemachine/a2a-sdk/pkg/grpcserver"
	"github.com/theapemachine/a2a-sdk/pkg/handler"
	"github.com/theapemachine/a2a-sdk/pkg/push"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"
)

// echoAgent completes every task with a single reply, giving the
// transports a real handler to talk to.
type echoAgent struct{}

func (echoAgent) Execute(ctx context.Context, reqCtx *executor.RequestContext, queue *eventqueue.Queue) error {
	task, rpcErr := a2a.NewTask(reqCtx.Message)
	if rpcErr != nil {
		return rpcErr
	}

	if err := queue.Enqueue(ctx, task); err != nil {
		return err
	}

	reply := a2a.NewAgentMessage("echo: " + reqCtx.UserInput())

	return queue.Enqueue(ctx, a2a.NewFinalStatusUpdateEvent(task, a2a.TaskStateCompleted, reply))
}

func (echoAgent) Cancel(ctx context.Context, reqCtx *executor.RequestContext, queue *eventqueue.Queue) error {
	return queue.Enqueue(ctx, a2a.NewFinalStatusUpdateEvent(
		&a2a.Task{ID: reqCtx.TaskID, ContextID: reqCtx.ContextID}, a2a.TaskStateCanceled, nil,
	))
}

func echoCard() a2a.AgentCard {
	return a2a.AgentCard{
		Name:               "echo-agent",
		URL:                "grpc://bufnet",
		Version:            "1.0.0",
		DefaultInputModes:  []string{"text/plain"},
		DefaultOutputModes: []string{"text/plain"},
		Capabilities: a2a.AgentCapabilities{
			Streaming:         a2a.Bool(true),
			PushNotifications: a2a.Bool(true),
		},
	}
}

func newEchoHandler() *handler.RequestHandler {
	return handler.New(echoCard(), echoAgent{}, handler.WithPushConfigStore(push.NewInMemoryConfigStore()))
}

// startGRPCServer runs the service on an in-memory listener and returns a
// transport dialed through it.
func startGRPCServer(t *testing.T) Transport {
	t.Helper()

	srv := grpcserver.New(newEchoHandler())

	lis := bufconn.Listen(1 << 20)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Shutdown)

	config := DefaultConfig()
	config.GRPCOptions = []grpc.DialOption{
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
	}

	card := echoCard()

	transport, err := newGRPCTransport(&card, "passthrough:///bufnet", config)
	require.NoError(t, err)
	t.Cleanup(func() { _ = transport.Close() })

	return transport
}

func sendThrough(t *testing.T, transport Transport, text string) *a2a.Task {
	t.Helper()

	event, err := transport.SendMessage(context.Background(), &a2a.MessageSendParams{
		Message: a2a.NewUserMessage(text),
	})
	require.NoError(t, err)

	task, ok := event.(*a2a.Task)
	require.True(t, ok)

	return task
}

func TestGRPCSendMessageRoundTrip(t *testing.T) {
	transport := startGRPCServer(t)

	task := sendThrough(t, transport, "hello")
	assert.NotEmpty(t, task.ID)
	assert.Equal(t, a2a.TaskStateCompleted, task.Status.State)
	assert.Equal(t, "hello", task.History[0].String())
}

func TestGRPCStreamDeliversEvents(t *testing.T) {
	transport := startGRPCServer(t)

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

func TestGRPCStatusMapsBackToProtocolErrors(t *testing.T) {
	transport := startGRPCServer(t)

	_, err := transport.GetTask(context.Background(), &a2a.TaskQueryParams{ID: "missing"})

	var rpcErr *errors.RpcError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, errors.ErrTaskNotFound.Code, rpcErr.Code)

	done := sendThrough(t, transport, "done already")

	_, err = transport.CancelTask(context.Background(), &a2a.TaskIDParams{ID: done.ID})
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, errors.ErrTaskNotCancelable.Code, rpcErr.Code)
}

func TestGRPCListTasksPaging(t *testing.T) {
	transport := startGRPCServer(t)
	sendThrough(t, transport, "one")
	sendThrough(t, transport, "two")

	page, err := transport.ListTasks(context.Background(), &a2a.ListTasksParams{PageSize: 1})
	require.NoError(t, err)

	assert.Len(t, page.Tasks, 1)
	assert.Equal(t, 2, page.TotalSize)
	assert.NotEmpty(t, page.NextPageToken)
}

func TestGRPCSubscribeReplaysFinishedTask(t *testing.T) {
	transport := startGRPCServer(t)
	task := sendThrough(t, transport, "observe me")

	frames, err := transport.Subscribe(context.Background(), &a2a.TaskIDParams{ID: task.ID})
	require.NoError(t, err)

	frame, ok := <-frames
	require.True(t, ok)
	require.NoError(t, frame.Err)

	snapshot, ok := frame.Event.(*a2a.Task)
	require.True(t, ok)
	assert.Equal(t, task.ID, snapshot.ID)

	_, ok = <-frames
	assert.False(t, ok)
}

func TestGRPCSubscribeUnknownTask(t *testing.T) {
	transport := startGRPCServer(t)

	frames, err := transport.Subscribe(context.Background(), &a2a.TaskIDParams{ID: "missing"})
	require.NoError(t, err)

	frame, ok := <-frames
	require.True(t, ok)

	var rpcErr *errors.RpcError
	require.ErrorAs(t, frame.Err, &rpcErr)
	assert.Equal(t, errors.ErrTaskNotFound.Code, rpcErr.Code)
}

func TestGRPCPushConfigLifecycle(t *testing.T) {
	transport := startGRPCServer(t)
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
	assert.Equal(t, "cfg-1", got.PushNotificationConfig.ID)

	configs, err := transport.ListTaskCallbacks(context.Background(), &a2a.ListTaskPushNotificationConfigParams{ID: task.ID})
	require.NoError(t, err)
	assert.Len(t, configs, 1)

	require.NoError(t, transport.DeleteTaskCallback(context.Background(), &a2a.DeleteTaskPushNotificationConfigParams{
		ID: task.ID, PushNotificationConfigID: "cfg-1",
	}))

	configs, err = transport.ListTaskCallbacks(context.Background(), &a2a.ListTaskPushNotificationConfigParams{ID: task.ID})
	require.NoError(t, err)
	assert.Len(t, configs, 0)
}

func TestGRPCExtendedCardFallsBackToPublic(t *testing.T) {
	transport := startGRPCServer(t)

	card, err := transport.GetExtendedCard(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "echo-agent", card.Name)
}
