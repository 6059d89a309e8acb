package service

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/theapemachine/a2a-sdk/pkg/a2a"
	"github.com/theapemachine/a2a-sdk/pkg/auth"
	"github.com/theapemachine/a2a-sdk/pkg/consumer"
	"github.com/theapemachine/a2a-sdk/pkg/errors"
	"github.com/theapemachine/a2a-sdk/pkg/handler"
	"github.com/theapemachine/a2a-sdk/pkg/jsonrpc"
	"github.com/theapemachine/a2a-sdk/pkg/metrics"
	"github.com/theapemachine/a2a-sdk/pkg/push"
	"github.com/theapemachine/a2a-sdk/pkg/stores"
)

// DefaultBodyLimit caps request payloads at 10 MiB.
const DefaultBodyLimit = 10 << 20

// SessionHeader carries an opaque session id the server uses to restore
// per-session call state.
const SessionHeader = a2a.SessionHeader

/*
A2AServer exposes a RequestHandler over JSON-RPC, REST and SSE on a single
fiber app.  It is safe for concurrent use; all per-call state lives in the
ServerCallContext built by the middleware chain.
*/
type A2AServer struct {
	app      *fiber.App
	card     a2a.AgentCard
	handler  *handler.RequestHandler
	rpc      *RPCServer
	auth     Authenticator
	sessions stores.SessionStore
	metrics  *metrics.StreamingMetrics
	pushAuth *push.SenderAuth
	limiter  *auth.RateLimiter

	addr      string
	bodyLimit int
}

type ServerOption func(*A2AServer)

// WithAuthenticator protects every route except the public card and the
// health probes.
func WithAuthenticator(auth Authenticator) ServerOption {
	return func(srv *A2AServer) { srv.auth = auth }
}

func WithSessionStore(sessions stores.SessionStore) ServerOption {
	return func(srv *A2AServer) { srv.sessions = sessions }
}

func WithAddr(addr string) ServerOption {
	return func(srv *A2AServer) { srv.addr = addr }
}

func WithBodyLimit(limit int) ServerOption {
	return func(srv *A2AServer) { srv.bodyLimit = limit }
}

// WithPushSenderAuth publishes the push sender's JWKS at
// /.well-known/jwks.json so webhook receivers can verify deliveries.
func WithPushSenderAuth(auth *push.SenderAuth) ServerOption {
	return func(srv *A2AServer) { srv.pushAuth = auth }
}

// WithRateLimit caps request throughput on every route except the health
// probes.  Excess requests get 429 with a Retry-After hint.
func WithRateLimit(requests int64, per time.Duration) ServerOption {
	return func(srv *A2AServer) { srv.limiter = auth.NewRateLimiter(requests, per) }
}

func NewA2AServer(card a2a.AgentCard, h *handler.RequestHandler, opts ...ServerOption) *A2AServer {
	srv := &A2AServer{
		card:      card,
		handler:   h,
		rpc:       NewRPCServer(),
		sessions:  stores.NewInMemorySessionStore(),
		metrics:   metrics.NewStreamingMetrics(),
		addr:      ":3210",
		bodyLimit: DefaultBodyLimit,
	}

	for _, opt := range opts {
		opt(srv)
	}

	srv.app = fiber.New(fiber.Config{
		AppName:           card.Name,
		ServerHeader:      "A2A-Agent-Server",
		StreamRequestBody: true,
		BodyLimit:         srv.bodyLimit,
		ErrorHandler:      srv.errorHandler,
	})

	srv.rpc.registerA2AMethods(h)
	srv.middleware()
	srv.routes()

	return srv
}

// App exposes the underlying fiber app, mainly for tests.
func (srv *A2AServer) App() *fiber.App {
	return srv.app
}

// Metrics exposes the streaming counters for this server.
func (srv *A2AServer) Metrics() *metrics.StreamingMetrics {
	return srv.metrics
}

func (srv *A2AServer) Start() error {
	return srv.app.Listen(srv.addr, fiber.ListenConfig{DisableStartupMessage: true})
}

func (srv *A2AServer) Shutdown(ctx context.Context) error {
	return srv.app.ShutdownWithContext(ctx)
}

func (srv *A2AServer) middleware() {
	srv.app.Use(logger.New(logger.Config{
		// Health probes poll frequently and only add noise to the log.
		Next: func(c fiber.Ctx) bool {
			return isHealthPath(c.Path())
		},
	}), healthcheck.NewHealthChecker())

	if srv.limiter != nil {
		srv.app.Use(srv.rateLimitMiddleware)
	}

	srv.app.Use(srv.callContextMiddleware)
}

func (srv *A2AServer) rateLimitMiddleware(ctx fiber.Ctx) error {
	if isHealthPath(ctx.Path()) || srv.limiter.Allow() {
		return ctx.Next()
	}

	retry := int(math.Ceil(srv.limiter.WaitTime().Seconds()))
	if retry < 1 {
		retry = 1
	}

	ctx.Set("Retry-After", strconv.Itoa(retry))

	return ctx.SendStatus(fiber.StatusTooManyRequests)
}

// callContextMiddleware authenticates the request, builds the per-call
// envelope every handler receives, and echoes activated extensions back
// on the response.
func (srv *A2AServer) callContextMiddleware(ctx fiber.Ctx) error {
	user := a2a.User{}

	if srv.auth != nil && !isPublicPath(ctx.Path()) {
		authed, ok := srv.auth.Authenticate(ctx.Get("Authorization"), ctx.Get("X-API-Key"))

		if !ok {
			return ctx.SendStatus(fiber.StatusUnauthorized)
		}

		user = authed
	}

	call := a2a.NewServerCallContext(user)
	call.RequestExtensions(a2a.ParseExtensionHeader(ctx.GetReqHeaders()[a2a.ExtensionsHeader]))

	if sid := ctx.Get(SessionHeader); sid != "" {
		call.State["sessionId"] = sid

		if data, ok := srv.sessions.Get(sid); ok {
			for key, value := range data {
				call.State[key] = value
			}
		}
	}

	ctx.Locals(callContextKey, call)

	err := ctx.Next()

	if header := a2a.FormatExtensionHeader(call.ActivatedExtensions); header != "" {
		ctx.Set(a2a.ExtensionsHeader, header)
	}

	return err
}

const callContextKey = "a2a-call-context"

func callContextFrom(ctx fiber.Ctx) *a2a.ServerCallContext {
	if call, ok := ctx.Locals(callContextKey).(*a2a.ServerCallContext); ok {
		return call
	}

	return a2a.NewServerCallContext(a2a.User{})
}

func isHealthPath(path string) bool {
	return path == "/livez" || path == "/readyz" || path == "/startupz"
}

func isPublicPath(path string) bool {
	return isHealthPath(path) || strings.HasPrefix(path, "/.well-known/")
}

func (srv *A2AServer) routes() {
	srv.app.Get(a2a.AgentCardPath, srv.handleAgentCard)
	srv.app.Get(a2a.DeprecatedAgentCardPath, srv.handleDeprecatedAgentCard)
	srv.app.Get("/agent/authenticatedExtendedCard", srv.handleExtendedCard)
	srv.app.Post("/", srv.handleRPC)

	if srv.pushAuth != nil {
		srv.app.Get("/.well-known/jwks.json", srv.handleJWKS)
	}

	srv.app.Post("/v1/message\\:send", srv.restMessageSend)
	srv.app.Post("/v1/message\\:stream", srv.restMessageStream)
	srv.app.Get("/v1/card", srv.restCard)
	srv.app.Get("/v1/tasks", srv.restListTasks)
	srv.app.Get("/v1/tasks/:rest", srv.restGetOrSubscribe)
	srv.app.Post("/v1/tasks/:rest", srv.restCancelTask)
	srv.app.Post("/v1/tasks/:id/pushNotificationConfigs", srv.restSetPushConfig)
	srv.app.Get("/v1/tasks/:id/pushNotificationConfigs", srv.restListPushConfigs)
	srv.app.Get("/v1/tasks/:id/pushNotificationConfigs/:configID", srv.restGetPushConfig)
	srv.app.Delete("/v1/tasks/:id/pushNotificationConfigs/:configID", srv.restDeletePushConfig)
}

func (srv *A2AServer) handleAgentCard(ctx fiber.Ctx) error {
	return ctx.JSON(srv.handler.Card())
}

func (srv *A2AServer) handleJWKS(ctx fiber.Ctx) error {
	ctx.Set("Content-Type", "application/json")
	return ctx.Send(srv.pushAuth.JWKS())
}

func (srv *A2AServer) handleDeprecatedAgentCard(ctx fiber.Ctx) error {
	log.Warn("deprecated agent card path requested, use /.well-known/agent-card.json",
		"path", ctx.Path())

	return ctx.JSON(srv.handler.Card())
}

func (srv *A2AServer) handleExtendedCard(ctx fiber.Ctx) error {
	card, rpcErr := srv.handler.OnGetAuthenticatedExtendedCard(ctx.Context(), callContextFrom(ctx))

	if rpcErr != nil {
		return restError(ctx, rpcErr)
	}

	return ctx.JSON(card)
}

/*
handleRPC is the JSON-RPC endpoint.  Streaming methods hijack the response
into an SSE stream; every other method goes through the mux, including
batches.
*/
func (srv *A2AServer) handleRPC(ctx fiber.Ctx) error {
	body := bytes.TrimSpace(ctx.Body())
	call := callContextFrom(ctx)

	if len(body) > 0 && body[0] != '[' {
		var req jsonrpc.RPCRequest

		if err := json.Unmarshal(body, &req); err != nil {
			return ctx.JSON(jsonrpc.NewErrorResponse(nil, errors.ErrParseError))
		}

		switch req.Method {
		case a2a.MethodMessageStream:
			return srv.streamRPC(ctx, call, &req, srv.startMessageStream)
		case a2a.MethodTasksResubscribe:
			return srv.streamRPC(ctx, call, &req, srv.startResubscribe)
		}

		resp := srv.rpc.Handle(ctx.Context(), call, &req)

		if req.IsNotification() {
			return ctx.SendStatus(fiber.StatusNoContent)
		}

		return ctx.JSON(resp)
	}

	payload, ok := srv.rpc.Dispatch(ctx.Context(), call, body)

	if !ok {
		return ctx.SendStatus(fiber.StatusNoContent)
	}

	return ctx.JSON(payload)
}

type streamStarter func(ctx context.Context, call *a2a.ServerCallContext, raw json.RawMessage) (<-chan consumer.Result, *errors.RpcError)

func (srv *A2AServer) startMessageStream(ctx context.Context, call *a2a.ServerCallContext, raw json.RawMessage) (<-chan consumer.Result, *errors.RpcError) {
	var params a2a.MessageSendParams

	if rpcErr := unmarshalParams(raw, &params); rpcErr != nil {
		return nil, rpcErr
	}

	return srv.handler.OnMessageSendStream(ctx, &params, call)
}

func (srv *A2AServer) startResubscribe(ctx context.Context, call *a2a.ServerCallContext, raw json.RawMessage) (<-chan consumer.Result, *errors.RpcError) {
	var params a2a.TaskIDParams

	if rpcErr := unmarshalParams(raw, &params); rpcErr != nil {
		return nil, rpcErr
	}

	return srv.handler.OnResubscribe(ctx, &params, call)
}

// streamRPC serves one JSON-RPC streaming call as SSE. Each frame's data
// line is a full success envelope reusing the request id.
func (srv *A2AServer) streamRPC(ctx fiber.Ctx, call *a2a.ServerCallContext, req *jsonrpc.RPCRequest, start streamStarter) error {
	events, rpcErr := start(ctx.Context(), call, req.Params)

	if rpcErr != nil {
		return ctx.JSON(jsonrpc.NewErrorResponse(req.ID, rpcErr))
	}

	setSSEHeaders(ctx)
	requestID := req.ID

	return ctx.SendStreamWriter(func(w *bufio.Writer) {
		started := time.Now()
		defer srv.metrics.RecordConnection(true, time.Since(started))

		for res := range events {
			var frame jsonrpc.RPCResponse

			if res.Err != nil {
				frame = jsonrpc.NewErrorResponse(requestID, res.Err)
			} else {
				frame = jsonrpc.NewResponse(requestID, a2a.StreamResponse{Event: res.Event})
			}

			if !srv.writeSSEFrame(w, frame) || res.Err != nil {
				return
			}
		}
	})
}

// streamREST serves a REST streaming call as SSE with bare event payloads.
func (srv *A2AServer) streamREST(ctx fiber.Ctx, events <-chan consumer.Result) error {
	setSSEHeaders(ctx)

	return ctx.SendStreamWriter(func(w *bufio.Writer) {
		started := time.Now()
		defer srv.metrics.RecordConnection(true, time.Since(started))

		for res := range events {
			if res.Err != nil {
				srv.writeSSEFrame(w, res.Err)
				return
			}

			if !srv.writeSSEFrame(w, a2a.StreamResponse{Event: res.Event}) {
				return
			}
		}
	})
}

func setSSEHeaders(ctx fiber.Ctx) {
	ctx.Set("Content-Type", "text/event-stream")
	ctx.Set("Cache-Control", "no-cache")
	ctx.Set("Connection", "keep-alive")
}

// writeSSEFrame writes one data frame and flushes it out. A false return
// means the client is gone or the payload could not be encoded.
func (srv *A2AServer) writeSSEFrame(w *bufio.Writer, payload any) bool {
	started := time.Now()

	buf, err := json.Marshal(payload)

	if err != nil {
		log.Error("failed to marshal stream frame", "error", err)
		return false
	}

	if _, err := fmt.Fprintf(w, "data: %s\n\n", buf); err != nil {
		return false
	}

	if err := w.Flush(); err != nil {
		return false
	}

	srv.metrics.RecordEvent(false, time.Since(started), time.Since(started))

	return true
}

// errorHandler turns fiber-level failures into JSON-RPC shaped envelopes
// so clients always see a structured error.
func (srv *A2AServer) errorHandler(ctx fiber.Ctx, err error) error {
	var fiberErr *fiber.Error

	if stderrors.As(err, &fiberErr) {
		if fiberErr.Code == fiber.StatusRequestEntityTooLarge {
			return ctx.Status(fiber.StatusRequestEntityTooLarge).JSON(
				jsonrpc.NewErrorResponse(nil, errors.ErrInvalidRequest.WithMessagef("Payload too large")))
		}

		return ctx.Status(fiberErr.Code).JSON(
			jsonrpc.NewErrorResponse(nil, errors.ErrInternal.WithMessagef("%s", fiberErr.Message)))
	}

	return ctx.Status(fiber.StatusInternalServerError).JSON(
		jsonrpc.NewErrorResponse(nil, errors.FromError(err)))
}
