package client

import (
	"context"
	"io"
	"strings"

	"github.com/theapemachine/a2a-sdk/pkg/a2a"
	"github.com/theapemachine/a2a-sdk/pkg/errors"
	"github.com/theapemachine/a2a-sdk/pkg/grpcserver"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

/*
grpcTransport drives the a2a.v1.A2AService over a client connection using
the JSON codec, so messages marshal exactly as they do on the HTTP
bindings.  Interceptor headers travel as outgoing metadata.
*/
type grpcTransport struct {
	card   *a2a.AgentCard
	config *Config
	conn   *grpc.ClientConn
}

func newGRPCTransport(card *a2a.AgentCard, target string, config *Config) (Transport, error) {
	target = strings.TrimPrefix(strings.TrimPrefix(target, "grpcs://"), "grpc://")

	opts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(grpcserver.CodecName)),
	}, config.GRPCOptions...)

	conn, err := grpc.NewClient(target, opts...)

	if err != nil {
		return nil, err
	}

	return &grpcTransport{card: card, config: config, conn: conn}, nil
}

// outgoing folds interceptor headers into the call's outgoing metadata.
func (t *grpcTransport) outgoing(ctx context.Context, fullMethod string) (context.Context, error) {
	headers, err := callHeaders(ctx, t.card, fullMethod, t.config.Extensions, t.config.Interceptors)

	if err != nil {
		return nil, err
	}

	pairs := make([]string, 0, len(headers)*2)

	for name, value := range headers {
		pairs = append(pairs, name, value)
	}

	if len(pairs) > 0 {
		ctx = metadata.AppendToOutgoingContext(ctx, pairs...)
	}

	return ctx, nil
}

func (t *grpcTransport) call(ctx context.Context, name string, req, res any) error {
	ctx, cancel := t.config.callContext(ctx)
	defer cancel()

	fullMethod := "/" + grpcserver.ServiceName + "/" + name
	ctx, err := t.outgoing(ctx, fullMethod)

	if err != nil {
		return err
	}

	if err := t.conn.Invoke(ctx, fullMethod, req, res); err != nil {
		return grpcError(err)
	}

	return nil
}

func (t *grpcTransport) stream(ctx context.Context, name string, req any) (<-chan StreamResult, error) {
	fullMethod := "/" + grpcserver.ServiceName + "/" + name
	ctx, err := t.outgoing(ctx, fullMethod)

	if err != nil {
		return nil, err
	}

	desc := &grpc.StreamDesc{StreamName: name, ServerStreams: true}
	stream, err := t.conn.NewStream(ctx, desc, fullMethod)

	if err != nil {
		return nil, grpcError(err)
	}

	if err := stream.SendMsg(req); err != nil {
		return nil, grpcError(err)
	}

	if err := stream.CloseSend(); err != nil {
		return nil, grpcError(err)
	}

	frames := make(chan StreamResult)

	go func() {
		defer close(frames)

		for {
			res := new(a2a.StreamResponse)

			if err := stream.RecvMsg(res); err != nil {
				if err == io.EOF || ctx.Err() != nil {
					return
				}

				emit(ctx, frames, StreamResult{Err: grpcError(err)})

				return
			}

			if !emit(ctx, frames, StreamResult{Event: res.Event}) {
				return
			}
		}
	}()

	return frames, nil
}

// grpcError folds a gRPC status back into the protocol's error space, the
// inverse of the mapping the server applies.
func grpcError(err error) error {
	st, ok := status.FromError(err)

	if !ok {
		return asCallError(err)
	}

	switch st.Code() {
	case codes.DeadlineExceeded:
		return &TimeoutError{Err: err}
	case codes.NotFound:
		return errors.ErrTaskNotFound.WithMessagef("%s", st.Message())
	case codes.FailedPrecondition:
		return errors.ErrTaskNotCancelable.WithMessagef("%s", st.Message())
	case codes.InvalidArgument:
		return errors.ErrInvalidParams.WithMessagef("%s", st.Message())
	case codes.Unimplemented:
		return errors.ErrUnsupportedOperation.WithMessagef("%s", st.Message())
	default:
		return errors.ErrInternal.WithMessagef("%s", st.Message())
	}
}

func (t *grpcTransport) SendMessage(ctx context.Context, params *a2a.MessageSendParams) (a2a.Event, error) {
	res := new(a2a.StreamResponse)

	if err := t.call(ctx, "SendMessage", params, res); err != nil {
		return nil, err
	}

	return res.Event, nil
}

func (t *grpcTransport) SendMessageStream(ctx context.Context, params *a2a.MessageSendParams) (<-chan StreamResult, error) {
	return t.stream(ctx, "SendStreamingMessage", params)
}

func (t *grpcTransport) GetTask(ctx context.Context, params *a2a.TaskQueryParams) (*a2a.Task, error) {
	task := new(a2a.Task)

	if err := t.call(ctx, "GetTask", params, task); err != nil {
		return nil, err
	}

	return task, nil
}

func (t *grpcTransport) ListTasks(ctx context.Context, params *a2a.ListTasksParams) (*a2a.ListTasksResult, error) {
	result := new(a2a.ListTasksResult)

	if err := t.call(ctx, "ListTasks", params, result); err != nil {
		return nil, err
	}

	return result, nil
}

func (t *grpcTransport) CancelTask(ctx context.Context, params *a2a.TaskIDParams) (*a2a.Task, error) {
	task := new(a2a.Task)

	if err := t.call(ctx, "CancelTask", params, task); err != nil {
		return nil, err
	}

	return task, nil
}

func (t *grpcTransport) Subscribe(ctx context.Context, params *a2a.TaskIDParams) (<-chan StreamResult, error) {
	return t.stream(ctx, "TaskSubscription", params)
}

func (t *grpcTransport) SetTaskCallback(ctx context.Context, config *a2a.TaskPushNotificationConfig) (*a2a.TaskPushNotificationConfig, error) {
	out := new(a2a.TaskPushNotificationConfig)

	if err := t.call(ctx, "CreateTaskPushNotificationConfig", config, out); err != nil {
		return nil, err
	}

	return out, nil
}

func (t *grpcTransport) GetTaskCallback(ctx context.Context, params *a2a.GetTaskPushNotificationConfigParams) (*a2a.TaskPushNotificationConfig, error) {
	out := new(a2a.TaskPushNotificationConfig)

	if err := t.call(ctx, "GetTaskPushNotificationConfig", params, out); err != nil {
		return nil, err
	}

	return out, nil
}

func (t *grpcTransport) ListTaskCallbacks(ctx context.Context, params *a2a.ListTaskPushNotificationConfigParams) ([]*a2a.TaskPushNotificationConfig, error) {
	var out []*a2a.TaskPushNotificationConfig

	if err := t.call(ctx, "ListTaskPushNotificationConfig", params, &out); err != nil {
		return nil, err
	}

	return out, nil
}

func (t *grpcTransport) DeleteTaskCallback(ctx context.Context, params *a2a.DeleteTaskPushNotificationConfigParams) error {
	return t.call(ctx, "DeleteTaskPushNotificationConfig", params, new(grpcserver.Empty))
}

// GetExtendedCard maps onto GetAgentCard, which is the only card call the
// gRPC binding has.  The server answers with the extended card when the
// caller is entitled to one.
func (t *grpcTransport) GetExtendedCard(ctx context.Context) (*a2a.AgentCard, error) {
	card := new(a2a.AgentCard)

	if err := t.call(ctx, "GetAgentCard", new(grpcserver.GetAgentCardRequest), card); err != nil {
		return nil, err
	}

	return card, nil
}

func (t *grpcTransport) Close() error {
	return t.conn.Close()
}
