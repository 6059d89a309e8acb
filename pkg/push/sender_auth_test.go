package push

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSenderAuthPublishesJWKS(t *testing.T) {
	auth, err := NewSenderAuth()
	require.NoError(t, err)

	var jwks struct {
		Keys []map[string]any `json:"keys"`
	}

	require.NoError(t, json.Unmarshal(auth.JWKS(), &jwks))
	require.Len(t, jwks.Keys, 1)

	key := jwks.Keys[0]
	assert.Equal(t, "RSA", key["kty"])
	assert.Equal(t, "RS256", key["alg"])
	assert.Equal(t, "sig", key["use"])
	assert.NotEmpty(t, key["kid"])

	// Only the public half may ever leave the process.
	assert.NotContains(t, key, "d")
	assert.NotContains(t, key, "p")
	assert.NotContains(t, key, "q")
}

func TestSenderAuthTokenVerifiesAgainstJWKS(t *testing.T) {
	auth, err := NewSenderAuth()
	require.NoError(t, err)

	raw, err := auth.Token("task-1")
	require.NoError(t, err)

	keyset, err := jwk.Parse(auth.JWKS())
	require.NoError(t, err)

	token, err := jwt.Parse(
		[]byte(raw),
		jwt.WithKeySet(keyset),
		jwt.WithValidate(true),
		jwt.WithIssuer("a2a-sdk"),
	)
	require.NoError(t, err)

	taskID, ok := token.Get("taskId")
	require.True(t, ok)
	assert.Equal(t, "task-1", taskID)
}

func TestNotifyPrefersSenderAuthOverSecret(t *testing.T) {
	deliveries := make(chan capturedDelivery, 1)
	server := webhookServer(t, deliveries)
	defer server.Close()

	store := NewInMemoryConfigStore()
	ctx := context.Background()

	_, rpcErr := store.Set(ctx, "alice", configFor("task-1", "c1", server.URL))
	require.Nil(t, rpcErr)

	auth, err := NewSenderAuth()
	require.NoError(t, err)

	NewSender(store).
		WithSigningSecret([]byte("shared-secret")).
		WithSenderAuth(auth).
		Notify(ctx, "alice", completedTask("task-1"))

	delivery := <-deliveries

	raw := strings.TrimPrefix(delivery.headers.Get("Authorization"), "Bearer ")
	require.NotEmpty(t, raw)

	keyset, err := jwk.Parse(auth.JWKS())
	require.NoError(t, err)

	_, err = jwt.Parse([]byte(raw), jwt.WithKeySet(keyset), jwt.WithValidate(true))
	assert.NoError(t, err, "delivery token should be RS256, verifiable via JWKS")
}

func TestVerifyURL(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer healthy.Close()

	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	sender := NewSender(NewInMemoryConfigStore())

	assert.True(t, sender.VerifyURL(healthy.URL))
	assert.False(t, sender.VerifyURL(broken.URL))

	broken.Close()
	assert.False(t, sender.VerifyURL(broken.URL))
}
