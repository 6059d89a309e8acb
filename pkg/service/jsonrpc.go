package service

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"

	"github.com/theapemachine/a2a-sdk/pkg/a2a"
	"github.com/theapemachine/a2a-sdk/pkg/errors"
	"github.com/theapemachine/a2a-sdk/pkg/handler"
	"github.com/theapemachine/a2a-sdk/pkg/jsonrpc"
)

// HandlerFunc processes the raw params field of one call and returns a
// result or a protocol error. Returning (nil, nil) produces {"result":null}.
type HandlerFunc func(ctx context.Context, call *a2a.ServerCallContext, params json.RawMessage) (any, *errors.RpcError)

/*
RPCServer multiplexes JSON-RPC method names to handler functions.  Only
unary methods live here; the transport routes streaming methods to its
own SSE path before dispatch reaches this mux.
*/
type RPCServer struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

func NewRPCServer() *RPCServer {
	return &RPCServer{
		handlers: make(map[string]HandlerFunc),
	}
}

func (s *RPCServer) Register(method string, h HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[method] = h
}

// Handle runs a single parsed request to completion.
func (s *RPCServer) Handle(ctx context.Context, call *a2a.ServerCallContext, req *jsonrpc.RPCRequest) jsonrpc.RPCResponse {
	if req.JSONRPC != jsonrpc.Version {
		return jsonrpc.NewErrorResponse(req.ID, errors.ErrInvalidRequest)
	}

	s.mu.RLock()
	h, ok := s.handlers[req.Method]
	s.mu.RUnlock()

	if !ok {
		return jsonrpc.NewErrorResponse(req.ID, errors.ErrMethodNotFound)
	}

	result, rpcErr := h(ctx, call, req.Params)

	if rpcErr != nil {
		return jsonrpc.NewErrorResponse(req.ID, rpcErr)
	}

	return jsonrpc.NewResponse(req.ID, result)
}

/*
Dispatch parses a body that may hold a single request or a batch and runs
it through the mux.  The returned payload is ready for JSON encoding; a
false second return means the body held only notifications and no
response body should be written.
*/
func (s *RPCServer) Dispatch(ctx context.Context, call *a2a.ServerCallContext, body []byte) (any, bool) {
	body = bytes.TrimSpace(body)

	if len(body) == 0 {
		return jsonrpc.NewErrorResponse(nil, errors.ErrInvalidRequest), true
	}

	if body[0] == '[' {
		var batch []jsonrpc.RPCRequest

		if err := json.Unmarshal(body, &batch); err != nil {
			return jsonrpc.NewErrorResponse(nil, errors.ErrParseError), true
		}

		if len(batch) == 0 {
			return jsonrpc.NewErrorResponse(nil, errors.ErrInvalidRequest), true
		}

		responses := make([]jsonrpc.RPCResponse, 0, len(batch))

		for i := range batch {
			resp := s.Handle(ctx, call, &batch[i])

			// Notifications carry no id and get no response.
			if !batch[i].IsNotification() {
				responses = append(responses, resp)
			}
		}

		if len(responses) == 0 {
			return nil, false
		}

		return responses, true
	}

	var req jsonrpc.RPCRequest

	if err := json.Unmarshal(body, &req); err != nil {
		return jsonrpc.NewErrorResponse(nil, errors.ErrParseError), true
	}

	resp := s.Handle(ctx, call, &req)

	if req.IsNotification() {
		return nil, false
	}

	return resp, true
}

// registerA2AMethods binds every unary protocol method to the request
// handler. Streaming methods are wired in the transport layer.
func (s *RPCServer) registerA2AMethods(h *handler.RequestHandler) {
	s.Register(a2a.MethodMessageSend, func(ctx context.Context, call *a2a.ServerCallContext, raw json.RawMessage) (any, *errors.RpcError) {
		var params a2a.MessageSendParams

		if rpcErr := unmarshalParams(raw, &params); rpcErr != nil {
			return nil, rpcErr
		}

		return h.OnMessageSend(ctx, &params, call)
	})

	s.Register(a2a.MethodTasksGet, func(ctx context.Context, call *a2a.ServerCallContext, raw json.RawMessage) (any, *errors.RpcError) {
		var params a2a.TaskQueryParams

		if rpcErr := unmarshalParams(raw, &params); rpcErr != nil {
			return nil, rpcErr
		}

		return h.OnGetTask(ctx, &params, call)
	})

	s.Register(a2a.MethodTasksList, func(ctx context.Context, call *a2a.ServerCallContext, raw json.RawMessage) (any, *errors.RpcError) {
		var params a2a.ListTasksParams

		if rpcErr := unmarshalParams(raw, &params); rpcErr != nil {
			return nil, rpcErr
		}

		return h.OnListTasks(ctx, &params, call)
	})

	s.Register(a2a.MethodTasksCancel, func(ctx context.Context, call *a2a.ServerCallContext, raw json.RawMessage) (any, *errors.RpcError) {
		var params a2a.TaskIDParams

		if rpcErr := unmarshalParams(raw, &params); rpcErr != nil {
			return nil, rpcErr
		}

		return h.OnCancelTask(ctx, &params, call)
	})

	s.Register(a2a.MethodPushConfigSet, func(ctx context.Context, call *a2a.ServerCallContext, raw json.RawMessage) (any, *errors.RpcError) {
		var params a2a.TaskPushNotificationConfig

		if rpcErr := unmarshalParams(raw, &params); rpcErr != nil {
			return nil, rpcErr
		}

		return h.OnSetTaskPushConfig(ctx, &params, call)
	})

	s.Register(a2a.MethodPushConfigGet, func(ctx context.Context, call *a2a.ServerCallContext, raw json.RawMessage) (any, *errors.RpcError) {
		var params a2a.GetTaskPushNotificationConfigParams

		if rpcErr := unmarshalParams(raw, &params); rpcErr != nil {
			return nil, rpcErr
		}

		return h.OnGetTaskPushConfig(ctx, &params, call)
	})

	s.Register(a2a.MethodPushConfigList, func(ctx context.Context, call *a2a.ServerCallContext, raw json.RawMessage) (any, *errors.RpcError) {
		var params a2a.ListTaskPushNotificationConfigParams

		if rpcErr := unmarshalParams(raw, &params); rpcErr != nil {
			return nil, rpcErr
		}

		return h.OnListTaskPushConfig(ctx, &params, call)
	})

	s.Register(a2a.MethodPushConfigDelete, func(ctx context.Context, call *a2a.ServerCallContext, raw json.RawMessage) (any, *errors.RpcError) {
		var params a2a.DeleteTaskPushNotificationConfigParams

		if rpcErr := unmarshalParams(raw, &params); rpcErr != nil {
			return nil, rpcErr
		}

		if rpcErr := h.OnDeleteTaskPushConfig(ctx, &params, call); rpcErr != nil {
			return nil, rpcErr
		}

		return nil, nil
	})

	s.Register(a2a.MethodAgentExtendedCard, func(ctx context.Context, call *a2a.ServerCallContext, raw json.RawMessage) (any, *errors.RpcError) {
		return h.OnGetAuthenticatedExtendedCard(ctx, call)
	})
}

// unmarshalParams decodes the params field. Absent params are left at
// their zero value; each handler validates its own required fields.
func unmarshalParams(raw json.RawMessage, out any) *errors.RpcError {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return errors.ErrInvalidParams.WithMessagef("failed to unmarshal params: %v", err)
	}

	return nil
}
