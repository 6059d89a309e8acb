package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/theapemachine/a2a-sdk/pkg/a2a"
	"golang.org/x/oauth2/clientcredentials"
)

func securedCard(schemes map[string]a2a.SecurityScheme, requirements ...map[string][]string) *a2a.AgentCard {
	return &a2a.AgentCard{
		Name:            "secured-agent",
		SecuritySchemes: schemes,
		Security:        requirements,
	}
}

func newMeta(card *a2a.AgentCard) *CallMeta {
	return &CallMeta{
		Method:  a2a.MethodMessageSend,
		Headers: map[string]string{},
		State:   map[string]any{},
		Card:    card,
	}
}

func TestAuthInterceptorBearerScheme(t *testing.T) {
	card := securedCard(
		map[string]a2a.SecurityScheme{
			"bearer": {Type: a2a.SecuritySchemeHTTP, Scheme: "bearer"},
		},
		map[string][]string{"bearer": {}},
	)

	creds := NewInMemoryCredentials()
	creds.Set("", "bearer", "tok-123")

	meta := newMeta(card)
	require.NoError(t, NewAuthInterceptor(creds).Intercept(context.Background(), meta))

	assert.Equal(t, "Bearer tok-123", meta.Headers["Authorization"])
}

func TestAuthInterceptorSessionScopedCredentials(t *testing.T) {
	card := securedCard(
		map[string]a2a.SecurityScheme{
			"bearer": {Type: a2a.SecuritySchemeHTTP, Scheme: "bearer"},
		},
		map[string][]string{"bearer": {}},
	)

	creds := NewInMemoryCredentials()
	creds.Set("session-a", "bearer", "tok-a")
	creds.Set("session-b", "bearer", "tok-b")

	meta := newMeta(card)
	meta.State["sessionId"] = "session-b"

	require.NoError(t, NewAuthInterceptor(creds).Intercept(context.Background(), meta))
	assert.Equal(t, "Bearer tok-b", meta.Headers["Authorization"])
}

func TestAuthInterceptorAPIKeyPlacement(t *testing.T) {
	card := securedCard(
		map[string]a2a.SecurityScheme{
			"header-key": {Type: a2a.SecuritySchemeAPIKey, In: "header", Name: "X-API-Key"},
			"query-key":  {Type: a2a.SecuritySchemeAPIKey, In: "query", Name: "key"},
		},
		map[string][]string{"query-key": {}},
		map[string][]string{"header-key": {}},
	)

	creds := NewInMemoryCredentials()
	creds.Set("", "header-key", "sekrit")
	creds.Set("", "query-key", "ignored")

	meta := newMeta(card)
	require.NoError(t, NewAuthInterceptor(creds).Intercept(context.Background(), meta))

	// Query placement is unsupported, so the second requirement wins.
	assert.Equal(t, "sekrit", meta.Headers["X-API-Key"])
	assert.NotContains(t, meta.Headers, "key")
}

func TestAuthInterceptorSkipsSchemesWithoutCredentials(t *testing.T) {
	card := securedCard(
		map[string]a2a.SecurityScheme{
			"alpha": {Type: a2a.SecuritySchemeHTTP, Scheme: "bearer"},
			"beta":  {Type: a2a.SecuritySchemeOpenIDConnect},
		},
		map[string][]string{"alpha": {}, "beta": {}},
	)

	creds := NewInMemoryCredentials()
	creds.Set("", "beta", "tok-beta")

	meta := newMeta(card)
	require.NoError(t, NewAuthInterceptor(creds).Intercept(context.Background(), meta))

	assert.Equal(t, "Bearer tok-beta", meta.Headers["Authorization"])
}

func TestAuthInterceptorNoSecurityRequirements(t *testing.T) {
	meta := newMeta(&a2a.AgentCard{Name: "open-agent"})

	require.NoError(t, NewAuthInterceptor(NewInMemoryCredentials()).Intercept(context.Background(), meta))
	assert.Empty(t, meta.Headers)
}

func TestOAuth2CredentialsFetchesToken(t *testing.T) {
	tokens := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"oauth-tok","token_type":"bearer","expires_in":3600}`))
	}))
	defer tokens.Close()

	creds := NewOAuth2Credentials("oauth", &clientcredentials.Config{
		ClientID:     "client",
		ClientSecret: "secret",
		TokenURL:     tokens.URL + "/token",
	})

	token, err := creds.Get(context.Background(), "oauth", nil)
	require.NoError(t, err)
	assert.Equal(t, "oauth-tok", token)

	// A different scheme name yields nothing rather than the wrong token.
	other, err := creds.Get(context.Background(), "different", nil)
	require.NoError(t, err)
	assert.Empty(t, other)
}
