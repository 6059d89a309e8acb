package a2a

import (
	"context"
	"sort"
	"strings"
)

// Header names shared across the HTTP transports.
const (
	ExtensionsHeader        = "X-A2A-Extensions"
	NotificationTokenHeader = "X-A2A-Notification-Token"
	SessionHeader           = "X-Session-ID"
)

// User describes the principal behind a call, as established by whatever
// authentication middleware fronts the server.
type User struct {
	Authenticated bool
	Name          string
}

/*
ServerCallContext is the per-request envelope handed from a transport
adapter to the request handler.  It carries the caller identity, transport
metadata, and the extension sets negotiated for this call.
*/
type ServerCallContext struct {
	User                User
	State               map[string]any
	RequestedExtensions map[string]struct{}
	ActivatedExtensions map[string]struct{}
}

func NewServerCallContext(user User) *ServerCallContext {
	return &ServerCallContext{
		User:                user,
		State:               make(map[string]any),
		RequestedExtensions: make(map[string]struct{}),
		ActivatedExtensions: make(map[string]struct{}),
	}
}

// Owner resolves the identity push-notification configs are scoped by.
func (call *ServerCallContext) Owner() string {
	if call == nil || !call.User.Authenticated || call.User.Name == "" {
		return "unknown"
	}

	return call.User.Name
}

// RequestExtensions records the extension URIs the client asked for.
func (call *ServerCallContext) RequestExtensions(uris []string) {
	for _, uri := range uris {
		call.RequestedExtensions[uri] = struct{}{}
	}
}

// ActivateExtension marks an extension as honored so the adapter can echo
// it back on the response.
func (call *ServerCallContext) ActivateExtension(uri string) {
	if call == nil || uri == "" {
		return
	}

	call.ActivatedExtensions[uri] = struct{}{}
}

type callContextKey struct{}

// WithCallContext attaches the call envelope to a context.
func WithCallContext(ctx context.Context, call *ServerCallContext) context.Context {
	return context.WithValue(ctx, callContextKey{}, call)
}

// CallContextFrom extracts the call envelope, or nil when the transport
// adapter did not install one.
func CallContextFrom(ctx context.Context) *ServerCallContext {
	call, _ := ctx.Value(callContextKey{}).(*ServerCallContext)
	return call
}

/*
ParseExtensionHeader splits one or more X-A2A-Extensions header values into
a set of URIs.  The parse is tolerant: repeated headers, repeated URIs,
stray commas and whitespace all collapse cleanly.
*/
func ParseExtensionHeader(values []string) []string {
	seen := make(map[string]struct{})

	for _, value := range values {
		for _, field := range strings.Split(value, ",") {
			if uri := strings.TrimSpace(field); uri != "" {
				seen[uri] = struct{}{}
			}
		}
	}

	uris := make([]string, 0, len(seen))
	for uri := range seen {
		uris = append(uris, uri)
	}

	sort.Strings(uris)

	return uris
}

// FormatExtensionHeader renders a set of extension URIs as a single
// deterministic (sorted) header value.
func FormatExtensionHeader(uris map[string]struct{}) string {
	if len(uris) == 0 {
		return ""
	}

	sorted := make([]string, 0, len(uris))
	for uri := range uris {
		sorted = append(sorted, uri)
	}

	sort.Strings(sorted)

	return strings.Join(sorted, ", ")
}
