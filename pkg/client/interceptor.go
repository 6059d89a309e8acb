package client

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/theapemachine/a2a-sdk/pkg/a2a"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

/*
CallMeta is the mutable envelope an interceptor sees before a request
leaves the transport.  Headers written here reach the wire as HTTP
headers or gRPC metadata.
*/
type CallMeta struct {
	Method  string
	Headers map[string]string
	State   map[string]any
	Card    *a2a.AgentCard
}

// Interceptor amends outgoing calls, typically to attach credentials.
type Interceptor interface {
	Intercept(ctx context.Context, meta *CallMeta) error
}

/*
CredentialService resolves the secret material for a named security
scheme.  An empty credential with a nil error means "nothing for this
scheme", letting the interceptor try the next one.
*/
type CredentialService interface {
	Get(ctx context.Context, scheme string, meta *CallMeta) (string, error)
}

/*
AuthInterceptor walks the agent card's security requirements and applies
the first scheme a credential can be found for:

	http bearer, oauth2, openIdConnect  →  Authorization: Bearer <credential>
	apiKey in header                    →  <scheme.name>: <credential>

API keys placed in query or cookie are skipped.  One applied scheme per
request; a card with no security requirements passes through untouched.
*/
type AuthInterceptor struct {
	credentials CredentialService
}

func NewAuthInterceptor(credentials CredentialService) *AuthInterceptor {
	return &AuthInterceptor{credentials: credentials}
}

func (i *AuthInterceptor) Intercept(ctx context.Context, meta *CallMeta) error {
	if meta.Card == nil || i.credentials == nil {
		return nil
	}

	for _, requirement := range meta.Card.Security {
		names := make([]string, 0, len(requirement))
		for name := range requirement {
			names = append(names, name)
		}

		sort.Strings(names)

		for _, name := range names {
			scheme, ok := meta.Card.SecuritySchemes[name]

			if !ok {
				continue
			}

			credential, err := i.credentials.Get(ctx, name, meta)

			if err != nil {
				return err
			}

			if credential == "" {
				continue
			}

			if applyScheme(meta, scheme, credential) {
				return nil
			}
		}
	}

	return nil
}

func applyScheme(meta *CallMeta, scheme a2a.SecurityScheme, credential string) bool {
	switch scheme.Type {
	case a2a.SecuritySchemeHTTP:
		if !strings.EqualFold(scheme.Scheme, "bearer") {
			return false
		}

		meta.Headers["Authorization"] = "Bearer " + credential

	case a2a.SecuritySchemeOAuth2, a2a.SecuritySchemeOpenIDConnect:
		meta.Headers["Authorization"] = "Bearer " + credential

	case a2a.SecuritySchemeAPIKey:
		if !strings.EqualFold(scheme.In, "header") || scheme.Name == "" {
			return false
		}

		meta.Headers[scheme.Name] = credential

	default:
		return false
	}

	return true
}

/*
InMemoryCredentials stores credentials per (session, scheme) pair.  The
session id comes from the call metadata, so tagging calls with
WithSession selects which credential set applies.
*/
type InMemoryCredentials struct {
	mu       sync.RWMutex
	sessions map[string]map[string]string
}

func NewInMemoryCredentials() *InMemoryCredentials {
	return &InMemoryCredentials{sessions: make(map[string]map[string]string)}
}

func (s *InMemoryCredentials) Set(sessionID, scheme, credential string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sessions[sessionID] == nil {
		s.sessions[sessionID] = make(map[string]string)
	}

	s.sessions[sessionID][scheme] = credential
}

func (s *InMemoryCredentials) Get(_ context.Context, scheme string, meta *CallMeta) (string, error) {
	sessionID, _ := meta.State["sessionId"].(string)

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.sessions[sessionID][scheme], nil
}

/*
OAuth2Credentials serves one oauth2 or openIdConnect scheme from a
client-credentials token source.  Tokens are cached and refreshed by the
source, so repeated calls do not hammer the token endpoint.
*/
type OAuth2Credentials struct {
	scheme string
	source oauth2.TokenSource
}

func NewOAuth2Credentials(scheme string, config *clientcredentials.Config) *OAuth2Credentials {
	return &OAuth2Credentials{
		scheme: scheme,
		source: config.TokenSource(context.Background()),
	}
}

func (s *OAuth2Credentials) Get(_ context.Context, scheme string, _ *CallMeta) (string, error) {
	if scheme != s.scheme {
		return "", nil
	}

	token, err := s.source.Token()

	if err != nil {
		return "", err
	}

	return token.AccessToken, nil
}
