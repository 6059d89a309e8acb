package grpcserver

import (
	"context"
	"io"
	"net"
	"testing"

	"github.com/theapemachine/a2a-sdk/pkg/a2a"
	"github.com/theapemachine/a2a-sdk/pkg/eventqueue"
	"github.com/theapemachine/a2a-sdk/pkg/executor"
	"github.com/theapemachine/a2a-sdk/pkg/handler"
	"github.com/theapemachine/a2a-sdk/pkg/push"
	"github.com/theapemachine/a2a-sdk/pkg/service"
	"github.com/tj/assert"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

// echoAgent completes every task with one reply and honors any extension
// the caller requested.
type echoAgent struct{}

func (echoAgent) Execute(ctx context.Context, reqCtx *executor.RequestContext, queue *eventqueue.Queue) error {
	for _, uri := range reqCtx.RequestedExtensions() {
		reqCtx.CallContext.ActivateExtension(uri)
	}

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

func testCard() a2a.AgentCard {
	return a2a.AgentCard{
		Name:               "echo-agent",
		Description:        "test agent that echoes the user message",
		URL:                "http://localhost:3220",
		Version:            "1.0.0",
		DefaultInputModes:  []string{"text/plain"},
		DefaultOutputModes: []string{"text/plain"},
		Capabilities: a2a.AgentCapabilities{
			Streaming:         a2a.Bool(true),
			PushNotifications: a2a.Bool(true),
		},
	}
}

// startServer runs the service on an in-memory listener and returns a
// client connection speaking the json content-subtype.
func startServer(t *testing.T, opts ...Option) *grpc.ClientConn {
	t.Helper()

	h := handler.New(testCard(), echoAgent{}, handler.WithPushConfigStore(push.NewInMemoryConfigStore()))
	srv := New(h, opts...)

	lis := bufconn.Listen(1 << 20)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Shutdown)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName)),
	)
	assert.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return conn
}

func invoke(t *testing.T, conn *grpc.ClientConn, method string, params, reply any, opts ...grpc.CallOption) error {
	t.Helper()

	return conn.Invoke(context.Background(), "/"+ServiceName+"/"+method, params, reply, opts...)
}

func sendMessage(t *testing.T, conn *grpc.ClientConn, text string) *a2a.Task {
	t.Helper()

	var sr a2a.StreamResponse
	assert.NoError(t, invoke(t, conn, "SendMessage", &a2a.MessageSendParams{
		Message: a2a.NewUserMessage(text),
	}, &sr))

	task, ok := sr.Event.(*a2a.Task)
	assert.True(t, ok)

	return task
}

func openStream(t *testing.T, ctx context.Context, conn *grpc.ClientConn, name string, params any) grpc.ClientStream {
	t.Helper()

	desc := &grpc.StreamDesc{StreamName: name, ServerStreams: true}

	stream, err := conn.NewStream(ctx, desc, "/"+ServiceName+"/"+name)
	assert.NoError(t, err)
	assert.NoError(t, stream.SendMsg(params))
	assert.NoError(t, stream.CloseSend())

	return stream
}

func drainKinds(t *testing.T, stream grpc.ClientStream) []string {
	t.Helper()

	var kinds []string

	for {
		var sr a2a.StreamResponse

		err := stream.RecvMsg(&sr)
		if err == io.EOF {
			return kinds
		}
		assert.NoError(t, err)

		kinds = append(kinds, sr.Event.EventKind())
	}
}

func TestSendMessageRoundTrip(t *testing.T) {
	conn := startServer(t)

	task := sendMessage(t, conn, "hello")
	assert.NotEmpty(t, task.ID)
	assert.Equal(t, a2a.TaskStateCompleted, task.Status.State)
	assert.Equal(t, "hello", task.History[0].String())
}

func TestGetTaskRoundTrip(t *testing.T) {
	conn := startServer(t)
	task := sendMessage(t, conn, "hello")

	var got a2a.Task
	assert.NoError(t, invoke(t, conn, "GetTask", &a2a.TaskQueryParams{ID: task.ID}, &got))
	assert.Equal(t, task.ID, got.ID)
	assert.Equal(t, a2a.TaskStateCompleted, got.Status.State)
}

func TestStatusCodeMapping(t *testing.T) {
	conn := startServer(t)

	var got a2a.Task
	err := invoke(t, conn, "GetTask", &a2a.TaskQueryParams{ID: "missing"}, &got)
	assert.Equal(t, codes.NotFound, status.Code(err))

	done := sendMessage(t, conn, "done already")
	err = invoke(t, conn, "CancelTask", &a2a.TaskIDParams{ID: done.ID}, &got)
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))
}

func TestListTasksPaging(t *testing.T) {
	conn := startServer(t)
	sendMessage(t, conn, "one")
	sendMessage(t, conn, "two")

	var page a2a.ListTasksResult
	assert.NoError(t, invoke(t, conn, "ListTasks", &a2a.ListTasksParams{PageSize: 1}, &page))
	assert.Len(t, page.Tasks, 1)
	assert.Equal(t, 2, page.TotalSize)
	assert.NotEmpty(t, page.NextPageToken)
}

func TestGetAgentCard(t *testing.T) {
	conn := startServer(t)

	var card a2a.AgentCard
	assert.NoError(t, invoke(t, conn, "GetAgentCard", &GetAgentCardRequest{}, &card))
	assert.Equal(t, "echo-agent", card.Name)
	assert.True(t, card.Streaming())
}

func TestSendStreamingMessage(t *testing.T) {
	conn := startServer(t)

	stream := openStream(t, context.Background(), conn, "SendStreamingMessage",
		&a2a.MessageSendParams{Message: a2a.NewUserMessage("stream me")})

	assert.Equal(t, []string{"task", "status-update"}, drainKinds(t, stream))
}

func TestTaskSubscriptionReplaysFinishedTask(t *testing.T) {
	conn := startServer(t)
	task := sendMessage(t, conn, "observe me")

	stream := openStream(t, context.Background(), conn, "TaskSubscription", &a2a.TaskIDParams{ID: task.ID})

	var sr a2a.StreamResponse
	assert.NoError(t, stream.RecvMsg(&sr))

	snapshot, ok := sr.Event.(*a2a.Task)
	assert.True(t, ok)
	assert.Equal(t, task.ID, snapshot.ID)

	assert.Equal(t, io.EOF, stream.RecvMsg(&sr))
}

func TestTaskSubscriptionUnknownTask(t *testing.T) {
	conn := startServer(t)

	stream := openStream(t, context.Background(), conn, "TaskSubscription", &a2a.TaskIDParams{ID: "missing"})

	var sr a2a.StreamResponse
	err := stream.RecvMsg(&sr)
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestPushConfigLifecycle(t *testing.T) {
	conn := startServer(t)
	task := sendMessage(t, conn, "notify me")

	var stored a2a.TaskPushNotificationConfig
	assert.NoError(t, invoke(t, conn, "CreateTaskPushNotificationConfig", &a2a.TaskPushNotificationConfig{
		TaskID:                 task.ID,
		PushNotificationConfig: a2a.PushNotificationConfig{ID: "cfg-1", URL: "https://hooks.example.com/a2a"},
	}, &stored))
	assert.Equal(t, task.ID, stored.TaskID)

	var got a2a.TaskPushNotificationConfig
	assert.NoError(t, invoke(t, conn, "GetTaskPushNotificationConfig", &a2a.GetTaskPushNotificationConfigParams{
		ID: task.ID, PushNotificationConfigID: "cfg-1",
	}, &got))
	assert.Equal(t, "cfg-1", got.PushNotificationConfig.ID)

	var configs []*a2a.TaskPushNotificationConfig
	assert.NoError(t, invoke(t, conn, "ListTaskPushNotificationConfig",
		&a2a.ListTaskPushNotificationConfigParams{ID: task.ID}, &configs))
	assert.Len(t, configs, 1)

	assert.NoError(t, invoke(t, conn, "DeleteTaskPushNotificationConfig",
		&a2a.DeleteTaskPushNotificationConfigParams{ID: task.ID, PushNotificationConfigID: "cfg-1"}, &Empty{}))

	assert.NoError(t, invoke(t, conn, "ListTaskPushNotificationConfig",
		&a2a.ListTaskPushNotificationConfigParams{ID: task.ID}, &configs))
	assert.Len(t, configs, 0)
}

func TestAuthenticatorGatesCalls(t *testing.T) {
	conn := startServer(t, WithAuthenticator(service.APIKeyAuth{Key: "sekrit"}))

	var card a2a.AgentCard
	err := invoke(t, conn, "GetAgentCard", &GetAgentCardRequest{}, &card)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	ctx := metadata.AppendToOutgoingContext(context.Background(), "x-api-key", "sekrit")
	assert.NoError(t, conn.Invoke(ctx, "/"+ServiceName+"/GetAgentCard", &GetAgentCardRequest{}, &card))
	assert.Equal(t, "echo-agent", card.Name)
}

func TestExtensionsEchoInHeader(t *testing.T) {
	conn := startServer(t)

	ctx := metadata.AppendToOutgoingContext(context.Background(),
		a2a.ExtensionsHeader, "https://ext.example.com/b, https://ext.example.com/a")

	var header metadata.MD
	var sr a2a.StreamResponse
	assert.NoError(t, conn.Invoke(ctx, "/"+ServiceName+"/SendMessage",
		&a2a.MessageSendParams{Message: a2a.NewUserMessage("extend")}, &sr, grpc.Header(&header)))

	assert.Equal(t,
		[]string{"https://ext.example.com/a, https://ext.example.com/b"},
		header.Get(a2a.ExtensionsHeader))
}

func TestExtensionsEchoInStreamTrailer(t *testing.T) {
	conn := startServer(t)

	ctx := metadata.AppendToOutgoingContext(context.Background(),
		a2a.ExtensionsHeader, "https://ext.example.com/a")

	stream := openStream(t, ctx, conn, "SendStreamingMessage",
		&a2a.MessageSendParams{Message: a2a.NewUserMessage("extend")})
	drainKinds(t, stream)

	assert.Equal(t, []string{"https://ext.example.com/a"}, stream.Trailer().Get(a2a.ExtensionsHeader))
}
