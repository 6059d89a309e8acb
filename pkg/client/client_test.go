package client

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/theapemachine/a2a-sdk/pkg/a2a"
	"github.com/theapemachine/a2a-sdk/pkg/errors"
)

// fakeTransport scripts transport behavior so the client surface can be
// exercised without a wire.
type fakeTransport struct {
	event      a2a.Event
	frames     []StreamResult
	lastSend   *a2a.MessageSendParams
	subscribed *a2a.TaskIDParams
	closed     bool
}

func (f *fakeTransport) play() <-chan StreamResult {
	frames := make(chan StreamResult, len(f.frames))

	for _, frame := range f.frames {
		frames <- frame
	}

	close(frames)

	return frames
}

func (f *fakeTransport) SendMessage(ctx context.Context, params *a2a.MessageSendParams) (a2a.Event, error) {
	f.lastSend = params
	return f.event, nil
}

func (f *fakeTransport) SendMessageStream(ctx context.Context, params *a2a.MessageSendParams) (<-chan StreamResult, error) {
	f.lastSend = params
	return f.play(), nil
}

func (f *fakeTransport) Subscribe(ctx context.Context, params *a2a.TaskIDParams) (<-chan StreamResult, error) {
	f.subscribed = params
	return f.play(), nil
}

func (f *fakeTransport) GetTask(ctx context.Context, params *a2a.TaskQueryParams) (*a2a.Task, error) {
	return &a2a.Task{ID: params.ID}, nil
}

func (f *fakeTransport) ListTasks(ctx context.Context, params *a2a.ListTasksParams) (*a2a.ListTasksResult, error) {
	return &a2a.ListTasksResult{}, nil
}

func (f *fakeTransport) CancelTask(ctx context.Context, params *a2a.TaskIDParams) (*a2a.Task, error) {
	return &a2a.Task{ID: params.ID}, nil
}

func (f *fakeTransport) SetTaskCallback(ctx context.Context, config *a2a.TaskPushNotificationConfig) (*a2a.TaskPushNotificationConfig, error) {
	return config, nil
}

func (f *fakeTransport) GetTaskCallback(ctx context.Context, params *a2a.GetTaskPushNotificationConfigParams) (*a2a.TaskPushNotificationConfig, error) {
	return &a2a.TaskPushNotificationConfig{TaskID: params.ID}, nil
}

func (f *fakeTransport) ListTaskCallbacks(ctx context.Context, params *a2a.ListTaskPushNotificationConfigParams) ([]*a2a.TaskPushNotificationConfig, error) {
	return nil, nil
}

func (f *fakeTransport) DeleteTaskCallback(ctx context.Context, params *a2a.DeleteTaskPushNotificationConfigParams) error {
	return nil
}

func (f *fakeTransport) GetExtendedCard(ctx context.Context) (*a2a.AgentCard, error) {
	return &a2a.AgentCard{Name: "extended"}, nil
}

func (f *fakeTransport) Close() error {
	f.closed = true
	return nil
}

func streamingCard() *a2a.AgentCard {
	return &a2a.AgentCard{
		Name: "stream-agent",
		URL:  "https://agent.example",
		Capabilities: a2a.AgentCapabilities{
			Streaming: a2a.Bool(true),
		},
	}
}

func newTask(t *testing.T, text string) *a2a.Task {
	t.Helper()

	task, rpcErr := a2a.NewTask(a2a.NewUserMessage(text))
	require.Nil(t, rpcErr)

	return task
}

func TestSendMessageStreamingFoldsUpdates(t *testing.T) {
	task := newTask(t, "do it")

	transport := &fakeTransport{frames: []StreamResult{
		{Event: task},
		{Event: a2a.NewStatusUpdateEvent(task, a2a.TaskStateWorking, nil)},
		{Event: a2a.NewFinalStatusUpdateEvent(task, a2a.TaskStateCompleted, a2a.NewAgentMessage("done"))},
	}}

	c := New(streamingCard(), transport, nil)

	updates, err := c.SendMessage(context.Background(), a2a.NewUserMessage("do it"), nil)
	require.NoError(t, err)

	var last TaskUpdate
	count := 0

	for update := range updates {
		require.NoError(t, update.Err)

		count++
		last = update
	}

	assert.Equal(t, 3, count)
	require.NotNil(t, last.Task)
	assert.Equal(t, a2a.TaskStateCompleted, last.Task.Status.State)
}

func TestSendMessageUnaryWhenCardLacksStreaming(t *testing.T) {
	task := newTask(t, "one shot")
	transport := &fakeTransport{event: task}
	c := New(&a2a.AgentCard{Name: "unary-agent"}, transport, nil)

	updates, err := c.SendMessage(context.Background(), a2a.NewUserMessage("one shot"), nil)
	require.NoError(t, err)

	update, ok := <-updates
	require.True(t, ok)
	require.NotNil(t, update.Task)
	assert.Equal(t, task.ID, update.Task.ID)

	_, ok = <-updates
	assert.False(t, ok)
}

func TestSendMessageNilMessage(t *testing.T) {
	c := New(streamingCard(), &fakeTransport{}, nil)

	_, err := c.SendMessage(context.Background(), nil, nil)

	var argsErr *InvalidArgsError
	require.ErrorAs(t, err, &argsErr)
}

func TestSendConfigurationLayering(t *testing.T) {
	transport := &fakeTransport{event: a2a.NewAgentMessage("ok")}

	length := 5
	config := DefaultConfig()
	config.Streaming = false
	config.Polling = true
	config.AcceptedOutputModes = []string{"text/plain"}
	config.HistoryLength = &length

	c := New(&a2a.AgentCard{Name: "cfg-agent"}, transport, config)

	updates, err := c.SendMessage(context.Background(), a2a.NewUserMessage("hi"), nil)
	require.NoError(t, err)

	for range updates {
	}

	sent := transport.lastSend
	require.NotNil(t, sent)
	require.NotNil(t, sent.Configuration)
	assert.Equal(t, []string{"text/plain"}, sent.Configuration.AcceptedOutputModes)
	require.NotNil(t, sent.Configuration.Blocking)
	assert.False(t, *sent.Configuration.Blocking)
	require.NotNil(t, sent.Configuration.HistoryLength)
	assert.Equal(t, 5, *sent.Configuration.HistoryLength)

	// Call-site settings win, including an explicit blocking flip.
	updates, err = c.SendMessage(context.Background(), a2a.NewUserMessage("again"), &a2a.MessageSendConfiguration{
		AcceptedOutputModes: []string{"application/json"},
		Blocking:            a2a.Bool(true),
	})
	require.NoError(t, err)

	for range updates {
	}

	sent = transport.lastSend
	assert.Equal(t, []string{"application/json"}, sent.Configuration.AcceptedOutputModes)
	assert.True(t, *sent.Configuration.Blocking)
	assert.Equal(t, 5, *sent.Configuration.HistoryLength)
}

func TestConsumersObserveEveryUpdate(t *testing.T) {
	task := newTask(t, "watch me")

	transport := &fakeTransport{frames: []StreamResult{
		{Event: task},
		{Event: a2a.NewFinalStatusUpdateEvent(task, a2a.TaskStateCompleted, nil)},
	}}

	var seen []string

	c := New(streamingCard(), transport, nil, func(update TaskUpdate) {
		seen = append(seen, update.Event.EventKind())
	})

	updates, err := c.SendMessage(context.Background(), a2a.NewUserMessage("watch me"), nil)
	require.NoError(t, err)

	for range updates {
	}

	assert.Equal(t, []string{"task", "status-update"}, seen)
}

func TestSubscribeRequiresStreaming(t *testing.T) {
	c := New(&a2a.AgentCard{Name: "unary-agent"}, &fakeTransport{}, nil)

	_, err := c.Subscribe(context.Background(), &a2a.TaskIDParams{ID: "t-1"})

	var stateErr *InvalidStateError
	require.ErrorAs(t, err, &stateErr)
}

func TestSubscribeFirstFrameMustBeTask(t *testing.T) {
	transport := &fakeTransport{frames: []StreamResult{
		{Event: a2a.NewAgentMessage("not a task")},
	}}

	c := New(streamingCard(), transport, nil)

	updates, err := c.Subscribe(context.Background(), &a2a.TaskIDParams{ID: "t-1"})
	require.NoError(t, err)

	update := <-updates
	require.Error(t, update.Err)

	var stateErr *InvalidStateError
	assert.ErrorAs(t, update.Err, &stateErr)
}

func TestSubscribeReplaysSnapshotFirst(t *testing.T) {
	task := newTask(t, "long haul")

	transport := &fakeTransport{frames: []StreamResult{
		{Event: task},
		{Event: a2a.NewFinalStatusUpdateEvent(task, a2a.TaskStateCompleted, nil)},
	}}

	c := New(streamingCard(), transport, nil)

	updates, err := c.Subscribe(context.Background(), &a2a.TaskIDParams{ID: task.ID})
	require.NoError(t, err)

	first := <-updates
	require.NoError(t, first.Err)

	_, ok := first.Event.(*a2a.Task)
	assert.True(t, ok)

	for range updates {
	}

	require.NotNil(t, transport.subscribed)
	assert.Equal(t, task.ID, transport.subscribed.ID)
}

func TestErrorFrameEndsUpdates(t *testing.T) {
	task := newTask(t, "doomed")

	transport := &fakeTransport{frames: []StreamResult{
		{Event: task},
		{Err: errors.ErrTaskNotFound},
	}}

	c := New(streamingCard(), transport, nil)

	updates, err := c.SendMessage(context.Background(), a2a.NewUserMessage("doomed"), nil)
	require.NoError(t, err)

	var last TaskUpdate

	for update := range updates {
		last = update
	}

	var rpcErr *errors.RpcError
	require.ErrorAs(t, last.Err, &rpcErr)
	assert.Equal(t, errors.ErrTaskNotFound.Code, rpcErr.Code)
}

func TestClientCloseDelegates(t *testing.T) {
	transport := &fakeTransport{}
	c := New(streamingCard(), transport, nil)

	require.NoError(t, c.Close())
	assert.True(t, transport.closed)
}
