/*
Package grpcserver exposes a RequestHandler as the a2a.v1.A2AService gRPC
service.  The service descriptor is written by hand against the protocol's
JSON binding, so no generated protobuf code is involved; clients dial with
the matching json content-subtype.
*/
package grpcserver

import (
	"context"
	"net"

	"github.com/charmbracelet/log"
	"github.com/theapemachine/a2a-sdk/pkg/a2a"
	"github.com/theapemachine/a2a-sdk/pkg/consumer"
	"github.com/theapemachine/a2a-sdk/pkg/errors"
	"github.com/theapemachine/a2a-sdk/pkg/handler"
	"github.com/theapemachine/a2a-sdk/pkg/service"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// ServiceName is the fully qualified gRPC service identity.
const ServiceName = "a2a.v1.A2AService"

// GetAgentCardRequest and Empty mirror the parameterless proto messages.
type (
	GetAgentCardRequest struct{}
	Empty               struct{}
)

/*
Server adapts a RequestHandler to gRPC.  Authentication and extension
propagation run in interceptors so the method bodies only translate
between wire shapes and handler calls.
*/
type Server struct {
	handler *handler.RequestHandler
	auth    service.Authenticator

	server *grpc.Server
	addr   string
}

type Option func(*Server)

// WithAuthenticator gates every RPC; unauthenticated calls fail with
// codes.Unauthenticated.
func WithAuthenticator(auth service.Authenticator) Option {
	return func(srv *Server) { srv.auth = auth }
}

func WithAddr(addr string) Option {
	return func(srv *Server) { srv.addr = addr }
}

func New(h *handler.RequestHandler, opts ...Option) *Server {
	srv := &Server{
		handler: h,
		addr:    ":3220",
	}

	for _, opt := range opts {
		opt(srv)
	}

	srv.server = grpc.NewServer(
		grpc.ChainUnaryInterceptor(srv.unaryInterceptor),
		grpc.ChainStreamInterceptor(srv.streamInterceptor),
	)
	srv.server.RegisterService(&serviceDesc, srv)

	return srv
}

func (srv *Server) Start() error {
	lis, err := net.Listen("tcp", srv.addr)

	if err != nil {
		return err
	}

	log.Info("serving gRPC", "service", ServiceName, "addr", srv.addr)

	return srv.server.Serve(lis)
}

// Serve runs against a caller-provided listener, mainly for tests.
func (srv *Server) Serve(lis net.Listener) error {
	return srv.server.Serve(lis)
}

func (srv *Server) Shutdown() {
	srv.server.GracefulStop()
}

func callFrom(ctx context.Context) *a2a.ServerCallContext {
	if call := a2a.CallContextFrom(ctx); call != nil {
		return call
	}

	return a2a.NewServerCallContext(a2a.User{})
}

// newCallContext authenticates the request from its metadata and captures
// the extensions the caller asked for.
func (srv *Server) newCallContext(ctx context.Context) (*a2a.ServerCallContext, error) {
	md, _ := metadata.FromIncomingContext(ctx)
	user := a2a.User{}

	if srv.auth != nil {
		authed, ok := srv.auth.Authenticate(firstValue(md, "authorization"), firstValue(md, "x-api-key"))

		if !ok {
			return nil, status.Error(codes.Unauthenticated, "authentication required")
		}

		user = authed
	}

	call := a2a.NewServerCallContext(user)
	call.RequestExtensions(a2a.ParseExtensionHeader(md.Get(a2a.ExtensionsHeader)))

	return call, nil
}

func firstValue(md metadata.MD, key string) string {
	if values := md.Get(key); len(values) > 0 {
		return values[0]
	}

	return ""
}

func (srv *Server) unaryInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
	call, err := srv.newCallContext(ctx)

	if err != nil {
		return nil, err
	}

	res, err := next(a2a.WithCallContext(ctx, call), req)

	if header := a2a.FormatExtensionHeader(call.ActivatedExtensions); header != "" {
		_ = grpc.SetHeader(ctx, metadata.Pairs(a2a.ExtensionsHeader, header))
	}

	return res, err
}

// callStream overrides the stream context so handlers can reach the call
// envelope through callFrom.
type callStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *callStream) Context() context.Context {
	return s.ctx
}

func (srv *Server) streamInterceptor(impl any, stream grpc.ServerStream, info *grpc.StreamServerInfo, next grpc.StreamHandler) error {
	call, err := srv.newCallContext(stream.Context())

	if err != nil {
		return err
	}

	err = next(impl, &callStream{
		ServerStream: stream,
		ctx:          a2a.WithCallContext(stream.Context(), call),
	})

	// Activated extensions ride the trailer: they are only final once the
	// stream has drained.
	if header := a2a.FormatExtensionHeader(call.ActivatedExtensions); header != "" {
		stream.SetTrailer(metadata.Pairs(a2a.ExtensionsHeader, header))
	}

	return err
}

func (srv *Server) SendMessage(ctx context.Context, params *a2a.MessageSendParams) (*a2a.StreamResponse, error) {
	event, rpcErr := srv.handler.OnMessageSend(ctx, params, callFrom(ctx))

	if rpcErr != nil {
		return nil, statusFromRPC(rpcErr)
	}

	return &a2a.StreamResponse{Event: event}, nil
}

func (srv *Server) GetTask(ctx context.Context, params *a2a.TaskQueryParams) (*a2a.Task, error) {
	task, rpcErr := srv.handler.OnGetTask(ctx, params, callFrom(ctx))

	if rpcErr != nil {
		return nil, statusFromRPC(rpcErr)
	}

	return task, nil
}

func (srv *Server) ListTasks(ctx context.Context, params *a2a.ListTasksParams) (*a2a.ListTasksResult, error) {
	result, rpcErr := srv.handler.OnListTasks(ctx, params, callFrom(ctx))

	if rpcErr != nil {
		return nil, statusFromRPC(rpcErr)
	}

	return result, nil
}

func (srv *Server) CancelTask(ctx context.Context, params *a2a.TaskIDParams) (*a2a.Task, error) {
	task, rpcErr := srv.handler.OnCancelTask(ctx, params, callFrom(ctx))

	if rpcErr != nil {
		return nil, statusFromRPC(rpcErr)
	}

	return task, nil
}

func (srv *Server) CreateTaskPushNotificationConfig(ctx context.Context, params *a2a.TaskPushNotificationConfig) (*a2a.TaskPushNotificationConfig, error) {
	config, rpcErr := srv.handler.OnSetTaskPushConfig(ctx, params, callFrom(ctx))

	if rpcErr != nil {
		return nil, statusFromRPC(rpcErr)
	}

	return config, nil
}

func (srv *Server) GetTaskPushNotificationConfig(ctx context.Context, params *a2a.GetTaskPushNotificationConfigParams) (*a2a.TaskPushNotificationConfig, error) {
	config, rpcErr := srv.handler.OnGetTaskPushConfig(ctx, params, callFrom(ctx))

	if rpcErr != nil {
		return nil, statusFromRPC(rpcErr)
	}

	return config, nil
}

func (srv *Server) ListTaskPushNotificationConfig(ctx context.Context, params *a2a.ListTaskPushNotificationConfigParams) ([]*a2a.TaskPushNotificationConfig, error) {
	configs, rpcErr := srv.handler.OnListTaskPushConfig(ctx, params, callFrom(ctx))

	if rpcErr != nil {
		return nil, statusFromRPC(rpcErr)
	}

	return configs, nil
}

func (srv *Server) DeleteTaskPushNotificationConfig(ctx context.Context, params *a2a.DeleteTaskPushNotificationConfigParams) (*Empty, error) {
	if rpcErr := srv.handler.OnDeleteTaskPushConfig(ctx, params, callFrom(ctx)); rpcErr != nil {
		return nil, statusFromRPC(rpcErr)
	}

	return &Empty{}, nil
}

// GetAgentCard prefers the extended card when one is configured, since
// gRPC callers have already passed the authenticator by the time it runs.
func (srv *Server) GetAgentCard(ctx context.Context, _ *GetAgentCardRequest) (*a2a.AgentCard, error) {
	if card, rpcErr := srv.handler.OnGetAuthenticatedExtendedCard(ctx, callFrom(ctx)); rpcErr == nil {
		return card, nil
	}

	card := srv.handler.Card()

	return &card, nil
}

// relay drains one handler stream into the gRPC stream, one StreamResponse
// frame per event.
func (srv *Server) relay(stream grpc.ServerStream, events <-chan consumer.Result) error {
	for res := range events {
		if res.Err != nil {
			return statusFromRPC(res.Err)
		}

		if err := stream.SendMsg(&a2a.StreamResponse{Event: res.Event}); err != nil {
			return err
		}
	}

	return nil
}

func streamingMessageHandler(impl any, stream grpc.ServerStream) error {
	params := new(a2a.MessageSendParams)

	if err := stream.RecvMsg(params); err != nil {
		return err
	}

	srv := impl.(*Server)
	ctx := stream.Context()

	events, rpcErr := srv.handler.OnMessageSendStream(ctx, params, callFrom(ctx))

	if rpcErr != nil {
		return statusFromRPC(rpcErr)
	}

	return srv.relay(stream, events)
}

func taskSubscriptionHandler(impl any, stream grpc.ServerStream) error {
	params := new(a2a.TaskIDParams)

	if err := stream.RecvMsg(params); err != nil {
		return err
	}

	srv := impl.(*Server)
	ctx := stream.Context()

	events, rpcErr := srv.handler.OnResubscribe(ctx, params, callFrom(ctx))

	if rpcErr != nil {
		return statusFromRPC(rpcErr)
	}

	return srv.relay(stream, events)
}

// statusFromRPC translates a protocol error into the closest gRPC status.
func statusFromRPC(rpcErr *errors.RpcError) error {
	return status.Error(grpcCode(rpcErr.Code), rpcErr.Message)
}

func grpcCode(code int) codes.Code {
	switch code {
	case errors.ErrParseError.Code,
		errors.ErrInvalidRequest.Code,
		errors.ErrInvalidParams.Code,
		errors.ErrContentTypeNotSupported.Code:
		return codes.InvalidArgument
	case errors.ErrMethodNotFound.Code,
		errors.ErrUnsupportedOperation.Code,
		errors.ErrPushNotificationNotSupported.Code:
		return codes.Unimplemented
	case errors.ErrTaskNotFound.Code,
		errors.ErrExtendedCardNotConfigured.Code:
		return codes.NotFound
	case errors.ErrTaskNotCancelable.Code:
		return codes.FailedPrecondition
	default:
		return codes.Internal
	}
}

// unary adapts a typed method to the grpc.MethodDesc handler contract the
// way generated stubs do, including interceptor dispatch.
func unary[Req any, Res any](fullMethod string, invoke func(*Server, context.Context, *Req) (Res, error)) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(impl any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)

		if err := dec(in); err != nil {
			return nil, err
		}

		if interceptor == nil {
			return invoke(impl.(*Server), ctx, in)
		}

		info := &grpc.UnaryServerInfo{Server: impl, FullMethod: fullMethod}

		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return invoke(impl.(*Server), ctx, req.(*Req))
		})
	}
}

// A2AServiceServer is the service contract serviceDesc registers against.
type A2AServiceServer interface {
	SendMessage(context.Context, *a2a.MessageSendParams) (*a2a.StreamResponse, error)
	GetTask(context.Context, *a2a.TaskQueryParams) (*a2a.Task, error)
	ListTasks(context.Context, *a2a.ListTasksParams) (*a2a.ListTasksResult, error)
	CancelTask(context.Context, *a2a.TaskIDParams) (*a2a.Task, error)
	CreateTaskPushNotificationConfig(context.Context, *a2a.TaskPushNotificationConfig) (*a2a.TaskPushNotificationConfig, error)
	GetTaskPushNotificationConfig(context.Context, *a2a.GetTaskPushNotificationConfigParams) (*a2a.TaskPushNotificationConfig, error)
	ListTaskPushNotificationConfig(context.Context, *a2a.ListTaskPushNotificationConfigParams) ([]*a2a.TaskPushNotificationConfig, error)
	DeleteTaskPushNotificationConfig(context.Context, *a2a.DeleteTaskPushNotificationConfigParams) (*Empty, error)
	GetAgentCard(context.Context, *GetAgentCardRequest) (*a2a.AgentCard, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*A2AServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "SendMessage", Handler: unary("/"+ServiceName+"/SendMessage", (*Server).SendMessage)},
		{MethodName: "GetTask", Handler: unary("/"+ServiceName+"/GetTask", (*Server).GetTask)},
		{MethodName: "ListTasks", Handler: unary("/"+ServiceName+"/ListTasks", (*Server).ListTasks)},
		{MethodName: "CancelTask", Handler: unary("/"+ServiceName+"/CancelTask", (*Server).CancelTask)},
		{MethodName: "CreateTaskPushNotificationConfig", Handler: unary("/"+ServiceName+"/CreateTaskPushNotificationConfig", (*Server).CreateTaskPushNotificationConfig)},
		{MethodName: "GetTaskPushNotificationConfig", Handler: unary("/"+ServiceName+"/GetTaskPushNotificationConfig", (*Server).GetTaskPushNotificationConfig)},
		{MethodName: "ListTaskPushNotificationConfig", Handler: unary("/"+ServiceName+"/ListTaskPushNotificationConfig", (*Server).ListTaskPushNotificationConfig)},
		{MethodName: "DeleteTaskPushNotificationConfig", Handler: unary("/"+ServiceName+"/DeleteTaskPushNotificationConfig", (*Server).DeleteTaskPushNotificationConfig)},
		{MethodName: "GetAgentCard", Handler: unary("/"+ServiceName+"/GetAgentCard", (*Server).GetAgentCard)},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "SendStreamingMessage", Handler: streamingMessageHandler, ServerStreams: true},
		{StreamName: "TaskSubscription", Handler: taskSubscriptionHandler, ServerStreams: true},
	},
	Metadata: "a2a.proto",
}
