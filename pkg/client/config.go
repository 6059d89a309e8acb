package client

import (
	"context"
	"net/http"
	"time"

	"github.com/theapemachine/a2a-sdk/pkg/a2a"
	"google.golang.org/grpc"
)

// DefaultUnaryTimeout bounds unary calls when the config does not say
// otherwise.  Streaming calls run unbounded; the stream's context governs
// their lifetime.
const DefaultUnaryTimeout = 60 * time.Second

/*
Config carries the factory-level defaults for every client it creates:
transport negotiation preferences, the send-configuration baseline, and
the shared plumbing (HTTP client, interceptors, consumers).
*/
type Config struct {
	// Streaming gates the client side of the streaming decision; the agent
	// card's capabilities gate the other.
	Streaming bool

	// Polling inverts into the blocking flag of each send: a polling client
	// asks the server to return immediately.
	Polling bool

	AcceptedOutputModes []string
	PushConfig          *a2a.PushNotificationConfig
	HistoryLength       *int

	// SupportedTransports orders the transports this client can speak.
	// Empty means JSON-RPC only.
	SupportedTransports []a2a.TransportProtocol

	// UseClientPreference flips negotiation to walk the client's transport
	// order instead of the card's.
	UseClientPreference bool

	// Extensions is the default set of extension URIs requested on every
	// call; WithExtensions overrides it per call.
	Extensions []string

	HTTPClient *http.Client
	Timeout    time.Duration

	// GRPCOptions is appended to the dial options of gRPC transports.
	GRPCOptions []grpc.DialOption

	Interceptors []Interceptor
	Consumers    []Consumer
}

func DefaultConfig() *Config {
	return &Config{
		Streaming: true,
		Timeout:   DefaultUnaryTimeout,
	}
}

func (cfg *Config) httpClient() *http.Client {
	if cfg.HTTPClient != nil {
		return cfg.HTTPClient
	}

	return http.DefaultClient
}

// callContext applies the unary timeout. The cancel func is a no-op when
// no timeout is configured.
func (cfg *Config) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if cfg.Timeout > 0 {
		return context.WithTimeout(ctx, cfg.Timeout)
	}

	return ctx, func() {}
}
