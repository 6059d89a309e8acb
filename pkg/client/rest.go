package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/theapemachine/a2a-sdk/pkg/a2a"
	"github.com/theapemachine/a2a-sdk/pkg/errors"
	"github.com/theapemachine/a2a-sdk/pkg/sse"
)

/*
restTransport speaks the resource-style HTTP+JSON binding.  Unary replies
are the result objects themselves, streams are Server-Sent Events whose
data fields carry bare event JSON, and failures carry the protocol error
object as the response body.
*/
type restTransport struct {
	base   string
	card   *a2a.AgentCard
	config *Config
	conn   *http.Client
}

func newRESTTransport(card *a2a.AgentCard, baseURL string, config *Config) (Transport, error) {
	return &restTransport{
		base:   strings.TrimSuffix(baseURL, "/"),
		card:   card,
		config: config,
		conn:   config.httpClient(),
	}, nil
}

func (t *restTransport) newRequest(ctx context.Context, httpMethod, path string, query url.Values, body any, accept, rpcMethod string) (*http.Request, error) {
	target := t.base + path

	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var payload io.Reader

	if body != nil {
		buf, err := json.Marshal(body)

		if err != nil {
			return nil, err
		}

		payload = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, httpMethod, target, payload)

	if err != nil {
		return nil, err
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	req.Header.Set("Accept", accept)

	headers, err := callHeaders(ctx, t.card, rpcMethod, t.config.Extensions, t.config.Interceptors)

	if err != nil {
		return nil, err
	}

	for name, value := range headers {
		req.Header.Set(name, value)
	}

	return req, nil
}

func (t *restTransport) do(ctx context.Context, httpMethod, path string, query url.Values, body, out any, rpcMethod string) error {
	ctx, cancel := t.config.callContext(ctx)
	defer cancel()

	req, err := t.newRequest(ctx, httpMethod, path, query, body, "application/json", rpcMethod)

	if err != nil {
		return err
	}

	res, err := t.conn.Do(req)

	if err != nil {
		return asCallError(err)
	}

	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)

	if err != nil {
		return asCallError(err)
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return restDecodeError(res, raw)
	}

	if out == nil || len(raw) == 0 {
		return nil
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return &JSONError{Err: err}
	}

	return nil
}

// restDecodeError prefers the protocol error object the server writes as
// the body of failed calls; anything else degrades to a plain HTTP error.
func restDecodeError(res *http.Response, body []byte) error {
	var rpcErr errors.RpcError

	if err := json.Unmarshal(body, &rpcErr); err == nil && rpcErr.Code != 0 {
		return &rpcErr
	}

	return newHTTPError(res, body)
}

func (t *restTransport) stream(ctx context.Context, httpMethod, path string, body any, rpcMethod string) (<-chan StreamResult, error) {
	req, err := t.newRequest(ctx, httpMethod, path, nil, body, sse.ContentType, rpcMethod)

	if err != nil {
		return nil, err
	}

	res, err := t.conn.Do(req)

	if err != nil {
		return nil, asCallError(err)
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 || !sse.IsEventStream(res.Header.Get("Content-Type")) {
		raw, _ := io.ReadAll(res.Body)
		res.Body.Close()

		return nil, restDecodeError(res, raw)
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

			frame := decodeBareFrame(event.Data)

			if !emit(ctx, frames, frame) || frame.Err != nil {
				return
			}
		}
	}()

	return frames, nil
}

/*
decodeBareFrame unwraps one SSE data payload, which on this transport is
the event JSON itself.  A failed stream delivers a protocol error object
as its final frame instead.
*/
func decodeBareFrame(data []byte) StreamResult {
	var res a2a.StreamResponse

	eventErr := json.Unmarshal(data, &res)

	if eventErr == nil {
		return StreamResult{Event: res.Event}
	}

	var rpcErr errors.RpcError

	if err := json.Unmarshal(data, &rpcErr); err == nil && rpcErr.Code != 0 {
		return StreamResult{Err: &rpcErr}
	}

	return StreamResult{Err: &JSONError{Err: eventErr}}
}

func (t *restTransport) SendMessage(ctx context.Context, params *a2a.MessageSendParams) (a2a.Event, error) {
	var res a2a.StreamResponse

	if err := t.do(ctx, http.MethodPost, "/v1/message:send", nil, params, &res, a2a.MethodMessageSend); err != nil {
		return nil, err
	}

	return res.Event, nil
}

func (t *restTransport) SendMessageStream(ctx context.Context, params *a2a.MessageSendParams) (<-chan StreamResult, error) {
	return t.stream(ctx, http.MethodPost, "/v1/message:stream", params, a2a.MethodMessageStream)
}

func (t *restTransport) GetTask(ctx context.Context, params *a2a.TaskQueryParams) (*a2a.Task, error) {
	query := url.Values{}

	if params.HistoryLength != nil {
		query.Set("historyLength", strconv.Itoa(*params.HistoryLength))
	}

	task := new(a2a.Task)

	if err := t.do(ctx, http.MethodGet, "/v1/tasks/"+params.ID, query, nil, task, a2a.MethodTasksGet); err != nil {
		return nil, err
	}

	return task, nil
}

func (t *restTransport) ListTasks(ctx context.Context, params *a2a.ListTasksParams) (*a2a.ListTasksResult, error) {
	query := url.Values{}

	if params != nil {
		if params.ContextID != "" {
			query.Set("contextId", params.ContextID)
		}

		if params.Status != "" {
			query.Set("status", string(params.Status))
		}

		if params.PageToken != "" {
			query.Set("pageToken", params.PageToken)
		}

		if params.PageSize > 0 {
			query.Set("pageSize", strconv.Itoa(params.PageSize))
		}

		if params.StatusTimestampAfter != nil {
			query.Set("statusTimestampAfter", params.StatusTimestampAfter.Format(time.RFC3339))
		}

		if params.HistoryLength != nil {
			query.Set("historyLength", strconv.Itoa(*params.HistoryLength))
		}
	}

	result := new(a2a.ListTasksResult)

	if err := t.do(ctx, http.MethodGet, "/v1/tasks", query, nil, result, a2a.MethodTasksList); err != nil {
		return nil, err
	}

	return result, nil
}

func (t *restTransport) CancelTask(ctx context.Context, params *a2a.TaskIDParams) (*a2a.Task, error) {
	task := new(a2a.Task)

	if err := t.do(ctx, http.MethodPost, "/v1/tasks/"+params.ID+":cancel", nil, nil, task, a2a.MethodTasksCancel); err != nil {
		return nil, err
	}

	return task, nil
}

func (t *restTransport) Subscribe(ctx context.Context, params *a2a.TaskIDParams) (<-chan StreamResult, error) {
	return t.stream(ctx, http.MethodGet, "/v1/tasks/"+params.ID+":subscribe", nil, a2a.MethodTasksResubscribe)
}

func (t *restTransport) SetTaskCallback(ctx context.Context, config *a2a.TaskPushNotificationConfig) (*a2a.TaskPushNotificationConfig, error) {
	out := new(a2a.TaskPushNotificationConfig)
	path := "/v1/tasks/" + config.TaskID + "/pushNotificationConfigs"

	if err := t.do(ctx, http.MethodPost, path, nil, config.PushNotificationConfig, out, a2a.MethodPushConfigSet); err != nil {
		return nil, err
	}

	return out, nil
}

func (t *restTransport) GetTaskCallback(ctx context.Context, params *a2a.GetTaskPushNotificationConfigParams) (*a2a.TaskPushNotificationConfig, error) {
	out := new(a2a.TaskPushNotificationConfig)
	path := "/v1/tasks/" + params.ID + "/pushNotificationConfigs/" + params.PushNotificationConfigID

	if err := t.do(ctx, http.MethodGet, path, nil, nil, out, a2a.MethodPushConfigGet); err != nil {
		return nil, err
	}

	return out, nil
}

func (t *restTransport) ListTaskCallbacks(ctx context.Context, params *a2a.ListTaskPushNotificationConfigParams) ([]*a2a.TaskPushNotificationConfig, error) {
	var out []*a2a.TaskPushNotificationConfig
	path := "/v1/tasks/" + params.ID + "/pushNotificationConfigs"

	if err := t.do(ctx, http.MethodGet, path, nil, nil, &out, a2a.MethodPushConfigList); err != nil {
		return nil, err
	}

	return out, nil
}

func (t *restTransport) DeleteTaskCallback(ctx context.Context, params *a2a.DeleteTaskPushNotificationConfigParams) error {
	path := "/v1/tasks/" + params.ID + "/pushNotificationConfigs/" + params.PushNotificationConfigID

	return t.do(ctx, http.MethodDelete, path, nil, nil, nil, a2a.MethodPushConfigDelete)
}

func (t *restTransport) GetExtendedCard(ctx context.Context) (*a2a.AgentCard, error) {
	card := new(a2a.AgentCard)

	if err := t.do(ctx, http.MethodGet, "/"+a2a.MethodAgentExtendedCard, nil, nil, card, a2a.MethodAgentExtendedCard); err != nil {
		return nil, err
	}

	return card, nil
}

func (t *restTransport) Close() error {
	t.conn.CloseIdleConnections()
	return nil
}
