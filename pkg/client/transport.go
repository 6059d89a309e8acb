/*
Package client talks to remote agents over any of the protocol's wire
surfaces.  A Transport implements the raw operations for one surface;
the Client composes a negotiated transport with task folding, consumers
and call interceptors.
*/
package client

import (
	"context"
	"sync"

	"github.com/theapemachine/a2a-sdk/pkg/a2a"
)

/*
Transport is the uniform face of one wire surface.  Streaming operations
return a channel that closes when the stream ends; a frame carrying Err
is always the last one.
*/
type Transport interface {
	SendMessage(ctx context.Context, params *a2a.MessageSendParams) (a2a.Event, error)
	SendMessageStream(ctx context.Context, params *a2a.MessageSendParams) (<-chan StreamResult, error)
	GetTask(ctx context.Context, params *a2a.TaskQueryParams) (*a2a.Task, error)
	ListTasks(ctx context.Context, params *a2a.ListTasksParams) (*a2a.ListTasksResult, error)
	CancelTask(ctx context.Context, params *a2a.TaskIDParams) (*a2a.Task, error)
	Subscribe(ctx context.Context, params *a2a.TaskIDParams) (<-chan StreamResult, error)
	SetTaskCallback(ctx context.Context, config *a2a.TaskPushNotificationConfig) (*a2a.TaskPushNotificationConfig, error)
	GetTaskCallback(ctx context.Context, params *a2a.GetTaskPushNotificationConfigParams) (*a2a.TaskPushNotificationConfig, error)
	ListTaskCallbacks(ctx context.Context, params *a2a.ListTaskPushNotificationConfigParams) ([]*a2a.TaskPushNotificationConfig, error)
	DeleteTaskCallback(ctx context.Context, params *a2a.DeleteTaskPushNotificationConfigParams) error
	GetExtendedCard(ctx context.Context) (*a2a.AgentCard, error)
	Close() error
}

// StreamResult is one frame of a streaming call: an event, or the error
// that ended the stream.
type StreamResult struct {
	Event a2a.Event
	Err   error
}

// TransportProducer builds a transport instance for one agent interface.
type TransportProducer func(card *a2a.AgentCard, url string, config *Config) (Transport, error)

/*
TransportRegistry maps transport protocol labels to producers.  A fresh
registry already knows the three protocol surfaces; callers register
additional producers to plug in custom transports.
*/
type TransportRegistry struct {
	mu        sync.RWMutex
	producers map[a2a.TransportProtocol]TransportProducer
}

func NewTransportRegistry() *TransportRegistry {
	return &TransportRegistry{
		producers: map[a2a.TransportProtocol]TransportProducer{
			a2a.TransportJSONRPC:  newJSONRPCTransport,
			a2a.TransportHTTPJSON: newRESTTransport,
			a2a.TransportGRPC:     newGRPCTransport,
		},
	}
}

func (r *TransportRegistry) Register(protocol a2a.TransportProtocol, producer TransportProducer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.producers[protocol] = producer
}

func (r *TransportRegistry) Lookup(protocol a2a.TransportProtocol) (TransportProducer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	producer, ok := r.producers[protocol]

	return producer, ok
}

type (
	sessionKey    struct{}
	extensionsKey struct{}
)

// WithSession tags outgoing calls with a session id.  Transports forward
// it in the session header and credential lookups key on it.
func WithSession(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionKey{}, sessionID)
}

func SessionFrom(ctx context.Context) string {
	sessionID, _ := ctx.Value(sessionKey{}).(string)
	return sessionID
}

// WithExtensions requests the given extension URIs for the calls made
// under this context, overriding the client's configured default set.
func WithExtensions(ctx context.Context, uris ...string) context.Context {
	return context.WithValue(ctx, extensionsKey{}, uris)
}

func extensionsFrom(ctx context.Context, fallback []string) []string {
	if uris, ok := ctx.Value(extensionsKey{}).([]string); ok {
		return uris
	}

	return fallback
}

/*
callHeaders assembles the per-call header set: the requested extensions,
the session id, and whatever the interceptor chain adds on top.  Shared
by every transport so credentials behave identically across surfaces.
*/
func callHeaders(ctx context.Context, card *a2a.AgentCard, method string, defaults []string, interceptors []Interceptor) (map[string]string, error) {
	headers := make(map[string]string)

	if uris := extensionsFrom(ctx, defaults); len(uris) > 0 {
		headers[a2a.ExtensionsHeader] = a2a.FormatExtensionHeader(toSet(uris))
	}

	meta := &CallMeta{
		Method:  method,
		Headers: headers,
		State:   map[string]any{},
		Card:    card,
	}

	if sessionID := SessionFrom(ctx); sessionID != "" {
		headers[a2a.SessionHeader] = sessionID
		meta.State["sessionId"] = sessionID
	}

	for _, interceptor := range interceptors {
		if err := interceptor.Intercept(ctx, meta); err != nil {
			return nil, err
		}
	}

	return headers, nil
}

func toSet(uris []string) map[string]struct{} {
	set := make(map[string]struct{}, len(uris))

	for _, uri := range uris {
		set[uri] = struct{}{}
	}

	return set
}
