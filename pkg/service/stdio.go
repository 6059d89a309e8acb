package service

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/theapemachine/a2a-sdk/pkg/a2a"
	"github.com/theapemachine/a2a-sdk/pkg/consumer"
	"github.com/theapemachine/a2a-sdk/pkg/errors"
	"github.com/theapemachine/a2a-sdk/pkg/handler"
	"github.com/theapemachine/a2a-sdk/pkg/jsonrpc"
)

/*
StdioServer speaks newline-delimited JSON-RPC on a reader/writer pair,
typically the stdin/stdout of a spawned agent process.  Requests are
handled concurrently and responses interleave on the writer, one envelope
per line, so a long-running stream never blocks later calls.

Streaming methods answer with a run of success envelopes sharing the
request id.  The run ends with either an error envelope or a frame
carrying "eos": true in place of a result.
*/
type StdioServer struct {
	handler *handler.RequestHandler
	rpc     *RPCServer
	writeMu sync.Mutex
}

func NewStdioServer(h *handler.RequestHandler) *StdioServer {
	srv := &StdioServer{
		handler: h,
		rpc:     NewRPCServer(),
	}

	srv.rpc.registerA2AMethods(h)

	return srv
}

// StreamFrame is one line of a streaming response.  Ordinary frames carry
// a result; the closing frame carries EndOfStream instead.
type StreamFrame struct {
	jsonrpc.RPCResponse
	EndOfStream bool `json:"eos,omitempty"`
}

// ListenAndServe serves the process's own stdin and stdout.
func (srv *StdioServer) ListenAndServe(ctx context.Context) error {
	return srv.Serve(ctx, os.Stdin, os.Stdout)
}

/*
Serve reads requests line by line until r is exhausted, then waits for
every in-flight request to finish.  Shutdown is driven by closing r; ctx
cancels the work already in flight.
*/
func (srv *StdioServer) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), DefaultBodyLimit)

	enc := json.NewEncoder(w)

	var wg sync.WaitGroup

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())

		if len(line) == 0 {
			continue
		}

		// The scanner reuses its buffer between iterations.
		buf := make([]byte, len(line))
		copy(buf, line)

		wg.Add(1)

		go func() {
			defer wg.Done()

			call := a2a.NewServerCallContext(a2a.User{Authenticated: true, Name: "stdio"})
			srv.handleLine(ctx, call, buf, enc)
		}()
	}

	wg.Wait()

	return scanner.Err()
}

func (srv *StdioServer) handleLine(ctx context.Context, call *a2a.ServerCallContext, line []byte, enc *json.Encoder) {
	if line[0] == '[' {
		if payload, ok := srv.rpc.Dispatch(ctx, call, line); ok {
			srv.writeLine(enc, payload)
		}

		return
	}

	var req jsonrpc.RPCRequest

	if err := json.Unmarshal(line, &req); err != nil {
		srv.writeLine(enc, jsonrpc.NewErrorResponse(nil, errors.ErrParseError))
		return
	}

	switch req.Method {
	case a2a.MethodMessageStream:
		srv.streamLines(ctx, call, &req, enc, srv.startMessageStream)
		return
	case a2a.MethodTasksResubscribe:
		srv.streamLines(ctx, call, &req, enc, srv.startResubscribe)
		return
	}

	resp := srv.rpc.Handle(ctx, call, &req)

	if req.IsNotification() {
		return
	}

	srv.writeLine(enc, resp)
}

func (srv *StdioServer) startMessageStream(ctx context.Context, call *a2a.ServerCallContext, raw json.RawMessage) (<-chan consumer.Result, *errors.RpcError) {
	var params a2a.MessageSendParams

	if rpcErr := unmarshalParams(raw, &params); rpcErr != nil {
		return nil, rpcErr
	}

	return srv.handler.OnMessageSendStream(ctx, &params, call)
}

func (srv *StdioServer) startResubscribe(ctx context.Context, call *a2a.ServerCallContext, raw json.RawMessage) (<-chan consumer.Result, *errors.RpcError) {
	var params a2a.TaskIDParams

	if rpcErr := unmarshalParams(raw, &params); rpcErr != nil {
		return nil, rpcErr
	}

	return srv.handler.OnResubscribe(ctx, &params, call)
}

func (srv *StdioServer) streamLines(ctx context.Context, call *a2a.ServerCallContext, req *jsonrpc.RPCRequest, enc *json.Encoder, start streamStarter) {
	events, rpcErr := start(ctx, call, req.Params)

	if rpcErr != nil {
		srv.writeLine(enc, jsonrpc.NewErrorResponse(req.ID, rpcErr))
		return
	}

	for res := range events {
		if res.Err != nil {
			srv.writeLine(enc, jsonrpc.NewErrorResponse(req.ID, res.Err))
			return
		}

		if err := srv.writeLine(enc, jsonrpc.NewResponse(req.ID, a2a.StreamResponse{Event: res.Event})); err != nil {
			return
		}
	}

	srv.writeLine(enc, StreamFrame{
		RPCResponse: jsonrpc.RPCResponse{JSONRPC: jsonrpc.Version, ID: req.ID},
		EndOfStream: true,
	})
}

func (srv *StdioServer) writeLine(enc *json.Encoder, payload any) error {
	srv.writeMu.Lock()
	defer srv.writeMu.Unlock()

	if err := enc.Encode(payload); err != nil {
		log.Error("failed to write stdio response", "error", err)
		return err
	}

	return nil
}
