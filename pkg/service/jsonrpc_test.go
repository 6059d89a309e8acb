package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/theapemachine/a2a-sdk/pkg/a2a"
	"github.com/theapemachine/a2a-sdk/pkg/errors"
	"github.com/theapemachine/a2a-sdk/pkg/handler"
	"github.com/theapemachine/a2a-sdk/pkg/jsonrpc"
)

func newEchoMux() *RPCServer {
	srv := NewRPCServer()

	srv.Register("echo", func(ctx context.Context, call *a2a.ServerCallContext, params json.RawMessage) (any, *errors.RpcError) {
		var v string
		if err := json.Unmarshal(params, &v); err != nil {
			return nil, errors.ErrInvalidParams
		}
		return v, nil
	})

	return srv
}

func mustRequest(t *testing.T, id any, method string, params any) *jsonrpc.RPCRequest {
	t.Helper()

	req, err := jsonrpc.NewRequest(id, method, params)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	return req
}

func TestRPCServerEchoRoundTrip(t *testing.T) {
	srv := newEchoMux()

	resp := srv.Handle(context.Background(), nil, mustRequest(t, 1, "echo", "hello"))
	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error)
	}

	var out string
	if err := resp.DecodeResult(&out); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if out != "hello" {
		t.Fatalf("unexpected result: %s", out)
	}
}

func TestRPCServerUnknownMethod(t *testing.T) {
	srv := newEchoMux()

	resp := srv.Handle(context.Background(), nil, mustRequest(t, 1, "does.not.exist", nil))
	if resp.Error == nil || resp.Error.Code != errors.ErrMethodNotFound.Code {
		t.Fatalf("expected method not found, got %v", resp.Error)
	}
}

func TestRPCServerRejectsWrongVersion(t *testing.T) {
	srv := newEchoMux()

	req := &jsonrpc.RPCRequest{JSONRPC: "1.0", ID: json.RawMessage(`1`), Method: "echo"}
	resp := srv.Handle(context.Background(), nil, req)
	if resp.Error == nil || resp.Error.Code != errors.ErrInvalidRequest.Code {
		t.Fatalf("expected invalid request, got %v", resp.Error)
	}
}

func TestRPCServerHandlerError(t *testing.T) {
	srv := NewRPCServer()
	srv.Register("fail", func(ctx context.Context, call *a2a.ServerCallContext, params json.RawMessage) (any, *errors.RpcError) {
		return nil, &errors.RpcError{Code: 123, Message: "boom"}
	})

	resp := srv.Handle(context.Background(), nil, mustRequest(t, 1, "fail", nil))
	if resp.Error == nil || resp.Error.Code != 123 || resp.Error.Message != "boom" {
		t.Fatalf("expected boom error, got %v", resp.Error)
	}
}

func TestDispatchSingleRequest(t *testing.T) {
	srv := newEchoMux()

	body, err := json.Marshal(mustRequest(t, 1, "echo", "one"))
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	payload, ok := srv.Dispatch(context.Background(), nil, body)
	if !ok {
		t.Fatalf("expected a response payload")
	}

	resp, isResp := payload.(jsonrpc.RPCResponse)
	if !isResp {
		t.Fatalf("unexpected payload type %T", payload)
	}

	var out string
	if err := resp.DecodeResult(&out); err != nil || out != "one" {
		t.Fatalf("unexpected result %q (err %v)", out, err)
	}
}

func TestDispatchParseError(t *testing.T) {
	srv := newEchoMux()

	payload, ok := srv.Dispatch(context.Background(), nil, []byte("{nope"))
	if !ok {
		t.Fatalf("expected an error payload")
	}

	resp := payload.(jsonrpc.RPCResponse)
	if resp.Error == nil || resp.Error.Code != errors.ErrParseError.Code {
		t.Fatalf("expected parse error, got %v", resp.Error)
	}
}

func TestDispatchEmptyBody(t *testing.T) {
	srv := newEchoMux()

	payload, ok := srv.Dispatch(context.Background(), nil, []byte("  "))
	if !ok {
		t.Fatalf("expected an error payload")
	}

	resp := payload.(jsonrpc.RPCResponse)
	if resp.Error == nil || resp.Error.Code != errors.ErrInvalidRequest.Code {
		t.Fatalf("expected invalid request, got %v", resp.Error)
	}
}

func TestDispatchBatch(t *testing.T) {
	srv := newEchoMux()

	body := []byte(`[
		{"jsonrpc":"2.0","id":1,"method":"echo","params":"a"},
		{"jsonrpc":"2.0","method":"echo","params":"notify"},
		{"jsonrpc":"2.0","id":2,"method":"missing"}
	]`)

	payload, ok := srv.Dispatch(context.Background(), nil, body)
	if !ok {
		t.Fatalf("expected a batch payload")
	}

	responses, isBatch := payload.([]jsonrpc.RPCResponse)
	if !isBatch {
		t.Fatalf("unexpected payload type %T", payload)
	}
	if len(responses) != 2 {
		t.Fatalf("expected 2 responses, got %d", len(responses))
	}

	var out string
	if err := responses[0].DecodeResult(&out); err != nil || out != "a" {
		t.Fatalf("unexpected first result %q (err %v)", out, err)
	}
	if responses[1].Error == nil || responses[1].Error.Code != errors.ErrMethodNotFound.Code {
		t.Fatalf("expected method not found, got %v", responses[1].Error)
	}
}

func TestDispatchEmptyBatch(t *testing.T) {
	srv := newEchoMux()

	payload, ok := srv.Dispatch(context.Background(), nil, []byte("[]"))
	if !ok {
		t.Fatalf("expected an error payload")
	}

	resp := payload.(jsonrpc.RPCResponse)
	if resp.Error == nil || resp.Error.Code != errors.ErrInvalidRequest.Code {
		t.Fatalf("expected invalid request, got %v", resp.Error)
	}
}

func TestDispatchAllNotifications(t *testing.T) {
	srv := newEchoMux()

	body := []byte(`[{"jsonrpc":"2.0","method":"echo","params":"quiet"}]`)
	if payload, ok := srv.Dispatch(context.Background(), nil, body); ok {
		t.Fatalf("expected no payload, got %v", payload)
	}
}

func TestRegisteredMethodsTolerateMissingParams(t *testing.T) {
	srv := NewRPCServer()
	srv.registerA2AMethods(handler.New(serverCard(), echoAgent{}))

	// tasks/list runs with no params at all.
	resp := srv.Handle(context.Background(), nil, mustRequest(t, 1, a2a.MethodTasksList, nil))
	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error)
	}

	var page a2a.ListTasksResult
	if err := resp.DecodeResult(&page); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if page.TotalSize != 0 {
		t.Fatalf("expected empty page, got %d", page.TotalSize)
	}

	// message/send without params fails validation, not parsing.
	resp = srv.Handle(context.Background(), nil, mustRequest(t, 2, a2a.MethodMessageSend, nil))
	if resp.Error == nil || resp.Error.Code != errors.ErrInvalidParams.Code {
		t.Fatalf("expected invalid params, got %v", resp.Error)
	}
}
