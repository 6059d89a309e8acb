package client

import (
	"context"

	"github.com/theapemachine/a2a-sdk/pkg/a2a"
)

// TaskUpdate is one delivery to the caller: the event that arrived, the
// task snapshot after folding it in, and the error that ended the call.
type TaskUpdate struct {
	Event a2a.Event
	Task  *a2a.Task
	Err   error
}

// Consumer observes every update of a call, in arrival order, before the
// update reaches the caller's channel.
type Consumer func(update TaskUpdate)

/*
Client wraps a single transport with the call semantics shared by all of
them: send configuration layering, streaming-or-unary selection, and
folding event streams into task snapshots.  Build one through a Factory
for card-negotiated transports, or with New around a hand-built
transport.
*/
type Client struct {
	card      *a2a.AgentCard
	config    *Config
	transport Transport
	consumers []Consumer
}

func New(card *a2a.AgentCard, transport Transport, config *Config, consumers ...Consumer) *Client {
	if config == nil {
		config = DefaultConfig()
	}

	return &Client{
		card:      card,
		config:    config,
		transport: transport,
		consumers: consumers,
	}
}

// Card returns the agent card the client was built against.
func (c *Client) Card() *a2a.AgentCard {
	return c.card
}

// Transport exposes the underlying transport for calls the high-level
// surface does not cover.
func (c *Client) Transport() Transport {
	return c.transport
}

func (c *Client) Close() error {
	return c.transport.Close()
}

// streaming reports whether both this client and the agent agreed to
// stream.
func (c *Client) streaming() bool {
	return c.config.Streaming && c.card != nil && c.card.Streaming()
}

/*
sendParams layers the call-site configuration over the client-wide
defaults.  Any field the caller sets wins, including an explicit
Blocking=false.
*/
func (c *Client) sendParams(message *a2a.Message, configuration *a2a.MessageSendConfiguration) *a2a.MessageSendParams {
	merged := &a2a.MessageSendConfiguration{
		AcceptedOutputModes:    c.config.AcceptedOutputModes,
		PushNotificationConfig: c.config.PushConfig,
		HistoryLength:          c.config.HistoryLength,
		Blocking:               a2a.Bool(!c.config.Polling),
	}

	if configuration != nil {
		if len(configuration.AcceptedOutputModes) > 0 {
			merged.AcceptedOutputModes = configuration.AcceptedOutputModes
		}

		if configuration.PushNotificationConfig != nil {
			merged.PushNotificationConfig = configuration.PushNotificationConfig
		}

		if configuration.HistoryLength != nil {
			merged.HistoryLength = configuration.HistoryLength
		}

		if configuration.Blocking != nil {
			merged.Blocking = configuration.Blocking
		}
	}

	return &a2a.MessageSendParams{Message: message, Configuration: merged}
}

/*
SendMessage sends one message and delivers the resulting events as task
updates.  When both sides stream, updates arrive as the agent emits them;
otherwise the single unary response comes through as one update and the
channel closes.
*/
func (c *Client) SendMessage(ctx context.Context, message *a2a.Message, configuration *a2a.MessageSendConfiguration) (<-chan TaskUpdate, error) {
	if message == nil {
		return nil, &InvalidArgsError{Message: "message must not be nil"}
	}

	params := c.sendParams(message, configuration)

	if c.streaming() {
		frames, err := c.transport.SendMessageStream(ctx, params)

		if err != nil {
			return nil, err
		}

		return c.fold(ctx, frames, false), nil
	}

	event, err := c.transport.SendMessage(ctx, params)

	if err != nil {
		return nil, err
	}

	frames := make(chan StreamResult, 1)
	frames <- StreamResult{Event: event}
	close(frames)

	return c.fold(ctx, frames, false), nil
}

// Subscribe reattaches to a running task's stream.  The server replays
// the current snapshot first, so the first update always carries a task.
func (c *Client) Subscribe(ctx context.Context, params *a2a.TaskIDParams) (<-chan TaskUpdate, error) {
	if !c.streaming() {
		return nil, &InvalidStateError{Message: "agent does not support streaming"}
	}

	frames, err := c.transport.Subscribe(ctx, params)

	if err != nil {
		return nil, err
	}

	return c.fold(ctx, frames, true), nil
}

/*
fold drains transport frames into task updates.  Every update passes
through the consumers in order before it is offered to the caller; an
error frame or a folding error ends the stream after delivery.
*/
func (c *Client) fold(ctx context.Context, frames <-chan StreamResult, taskFirst bool) <-chan TaskUpdate {
	updates := make(chan TaskUpdate)

	go func() {
		defer close(updates)

		manager := new(clientTaskManager)
		first := true

		for frame := range frames {
			if frame.Err != nil {
				c.deliver(ctx, updates, TaskUpdate{Err: frame.Err})
				return
			}

			if taskFirst && first {
				if _, ok := frame.Event.(*a2a.Task); !ok {
					c.deliver(ctx, updates, TaskUpdate{
						Err: &InvalidStateError{Message: "subscription streams must open with a task snapshot"},
					})

					return
				}
			}

			first = false

			task, err := manager.Process(frame.Event)
			update := TaskUpdate{Event: frame.Event, Task: task, Err: err}

			if !c.deliver(ctx, updates, update) || err != nil {
				return
			}
		}
	}()

	return updates
}

func (c *Client) deliver(ctx context.Context, updates chan<- TaskUpdate, update TaskUpdate) bool {
	for _, consume := range c.consumers {
		consume(update)
	}

	select {
	case updates <- update:
		return true
	case <-ctx.Done():
		return false
	}
}

func (c *Client) GetTask(ctx context.Context, params *a2a.TaskQueryParams) (*a2a.Task, error) {
	return c.transport.GetTask(ctx, params)
}

func (c *Client) ListTasks(ctx context.Context, params *a2a.ListTasksParams) (*a2a.ListTasksResult, error) {
	return c.transport.ListTasks(ctx, params)
}

func (c *Client) CancelTask(ctx context.Context, params *a2a.TaskIDParams) (*a2a.Task, error) {
	return c.transport.CancelTask(ctx, params)
}

func (c *Client) SetTaskCallback(ctx context.Context, config *a2a.TaskPushNotificationConfig) (*a2a.TaskPushNotificationConfig, error) {
	return c.transport.SetTaskCallback(ctx, config)
}

func (c *Client) GetTaskCallback(ctx context.Context, params *a2a.GetTaskPushNotificationConfigParams) (*a2a.TaskPushNotificationConfig, error) {
	return c.transport.GetTaskCallback(ctx, params)
}

func (c *Client) ListTaskCallbacks(ctx context.Context, params *a2a.ListTaskPushNotificationConfigParams) ([]*a2a.TaskPushNotificationConfig, error) {
	return c.transport.ListTaskCallbacks(ctx, params)
}

func (c *Client) DeleteTaskCallback(ctx context.Context, params *a2a.DeleteTaskPushNotificationConfigParams) error {
	return c.transport.DeleteTaskCallback(ctx, params)
}

func (c *Client) GetExtendedCard(ctx context.Context) (*a2a.AgentCard, error) {
	return c.transport.GetExtendedCard(ctx)
}
