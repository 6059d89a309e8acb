package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync/atomic"

	"github.com/theapemachine/a2a-sdk/pkg/a2a"
	"github.com/theapemachine/a2a-sdk/pkg/jsonrpc"
	"github.com/theapemachine/a2a-sdk/pkg/sse"
)

/*
jsonrpcTransport posts JSON-RPC envelopes to the agent's root URL and
reads streaming replies as Server-Sent Events whose data fields carry
full response envelopes.
*/
type jsonrpcTransport struct {
	url    string
	card   *a2a.AgentCard
	config *Config
	conn   *http.Client
	nextID atomic.Int64
}

func newJSONRPCTransport(card *a2a.AgentCard, url string, config *Config) (Transport, error) {
	return &jsonrpcTransport{
		url:    url,
		card:   card,
		config: config,
		conn:   config.httpClient(),
	}, nil
}

func (t *jsonrpcTransport) newRequest(ctx context.Context, method string, params any, accept string) (*http.Request, error) {
	envelope, err := jsonrpc.NewRequest(t.nextID.Add(1), method, params)

	if err != nil {
		return nil, err
	}

	buf, err := json.Marshal(envelope)

	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(buf))

	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", accept)

	headers, err := callHeaders(ctx, t.card, method, t.config.Extensions, t.config.Interceptors)

	if err != nil {
		return nil, err
	}

	for name, value := range headers {
		req.Header.Set(name, value)
	}

	return req, nil
}

func (t *jsonrpcTransport) call(ctx context.Context, method string, params any, out any) error {
	ctx, cancel := t.config.callContext(ctx)
	defer cancel()

	req, err := t.newRequest(ctx, method, params, "application/json")

	if err != nil {
		return err
	}

	res, err := t.conn.Do(req)

	if err != nil {
		return asCallError(err)
	}

	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)

	if err != nil {
		return asCallError(err)
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return newHTTPError(res, body)
	}

	var envelope jsonrpc.RPCResponse

	if err := json.Unmarshal(body, &envelope); err != nil {
		return &JSONError{Err: err}
	}

	if envelope.Error != nil {
		return envelope.Error
	}

	if out == nil {
		return nil
	}

	if err := envelope.DecodeResult(out); err != nil {
		return &JSONError{Err: err}
	}

	return nil
}

// stream issues the request and fans decoded frames into a channel.  The
// stream outlives the unary timeout, so only the caller's context bounds it.
func (t *jsonrpcTransport) stream(ctx context.Context, method string, params any) (<-chan StreamResult, error) {
	req, err := t.newRequest(ctx, method, params, sse.ContentType)

	if err != nil {
		return nil, err
	}

	res, err := t.conn.Do(req)

	if err != nil {
		return nil, asCallError(err)
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 || !sse.IsEventStream(res.Header.Get("Content-Type")) {
		body, _ := io.ReadAll(res.Body)
		res.Body.Close()

		return nil, newHTTPError(res, body)
	}

	frames := make(chan StreamResult)

	go func() {
		defer close(frames)
		defer res.Body.Close()

		reader := sse.NewReader(res.Body)

		for {
			event, err := reader.Next()

			if err != nil {
				if err == io.EOF || ctx.Err() != nil {
					return
				}

				emit(ctx, frames, StreamResult{Err: &HTTPError{
					Status:  http.StatusBadRequest,
					Message: "malformed event stream: " + err.Error(),
				}})

				return
			}

			frame := decodeEnvelopeFrame(event.Data)

			if !emit(ctx, frames, frame) || frame.Err != nil {
				return
			}
		}
	}()

	return frames, nil
}

// decodeEnvelopeFrame unwraps one SSE data payload, which on this
// transport is a complete JSON-RPC response envelope.
func decodeEnvelopeFrame(data []byte) StreamResult {
	var envelope jsonrpc.RPCResponse

	if err := json.Unmarshal(data, &envelope); err != nil {
		return StreamResult{Err: &JSONError{Err: err}}
	}

	if envelope.Error != nil {
		return StreamResult{Err: envelope.Error}
	}

	var res a2a.StreamResponse

	if err := json.Unmarshal(envelope.Result, &res); err != nil {
		return StreamResult{Err: &JSONError{Err: err}}
	}

	return StreamResult{Event: res.Event}
}

func emit(ctx context.Context, frames chan<- StreamResult, frame StreamResult) bool {
	select {
	case frames <- frame:
		return true
	case <-ctx.Done():
		return false
	}
}

func (t *jsonrpcTransport) SendMessage(ctx context.Context, params *a2a.MessageSendParams) (a2a.Event, error) {
	var res a2a.StreamResponse

	if err := t.call(ctx, a2a.MethodMessageSend, params, &res); err != nil {
		return nil, err
	}

	return res.Event, nil
}

func (t *jsonrpcTransport) SendMessageStream(ctx context.Context, params *a2a.MessageSendParams) (<-chan StreamResult, error) {
	return t.stream(ctx, a2a.MethodMessageStream, params)
}

func (t *jsonrpcTransport) GetTask(ctx context.Context, params *a2a.TaskQueryParams) (*a2a.Task, error) {
	task := new(a2a.Task)

	if err := t.call(ctx, a2a.MethodTasksGet, params, task); err != nil {
		return nil, err
	}

	return task, nil
}

func (t *jsonrpcTransport) ListTasks(ctx context.Context, params *a2a.ListTasksParams) (*a2a.ListTasksResult, error) {
	result := new(a2a.ListTasksResult)

	if err := t.call(ctx, a2a.MethodTasksList, params, result); err != nil {
		return nil, err
	}

	return result, nil
}

func (t *jsonrpcTransport) CancelTask(ctx context.Context, params *a2a.TaskIDParams) (*a2a.Task, error) {
	task := new(a2a.Task)

	if err := t.call(ctx, a2a.MethodTasksCancel, params, task); err != nil {
		return nil, err
	}

	return task, nil
}

func (t *jsonrpcTransport) Subscribe(ctx context.Context, params *a2a.TaskIDParams) (<-chan StreamResult, error) {
	return t.stream(ctx, a2a.MethodTasksResubscribe, params)
}

func (t *jsonrpcTransport) SetTaskCallback(ctx context.Context, config *a2a.TaskPushNotificationConfig) (*a2a.TaskPushNotificationConfig, error) {
	out := new(a2a.TaskPushNotificationConfig)

	if err := t.call(ctx, a2a.MethodPushConfigSet, config, out); err != nil {
		return nil, err
	}

	return out, nil
}

func (t *jsonrpcTransport) GetTaskCallback(ctx context.Context, params *a2a.GetTaskPushNotificationConfigParams) (*a2a.TaskPushNotificationConfig, error) {
	out := new(a2a.TaskPushNotificationConfig)

	if err := t.call(ctx, a2a.MethodPushConfigGet, params, out); err != nil {
		return nil, err
	}

	return out, nil
}

func (t *jsonrpcTransport) ListTaskCallbacks(ctx context.Context, params *a2a.ListTaskPushNotificationConfigParams) ([]*a2a.TaskPushNotificationConfig, error) {
	var out []*a2a.TaskPushNotificationConfig

	if err := t.call(ctx, a2a.MethodPushConfigList, params, &out); err != nil {
		return nil, err
	}

	return out, nil
}

func (t *jsonrpcTransport) DeleteTaskCallback(ctx context.Context, params *a2a.DeleteTaskPushNotificationConfigParams) error {
	return t.call(ctx, a2a.MethodPushConfigDelete, params, nil)
}

func (t *jsonrpcTransport) GetExtendedCard(ctx context.Context) (*a2a.AgentCard, error) {
	card := new(a2a.AgentCard)

	if err := t.call(ctx, a2a.MethodAgentExtendedCard, nil, card); err != nil {
		return nil, err
	}

	return card, nil
}

func (t *jsonrpcTransport) Close() error {
	t.conn.CloseIdleConnections()
	return nil
}
