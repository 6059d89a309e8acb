package service

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/theapemachine/a2a-sdk/pkg/a2a"
	"github.com/theapemachine/a2a-sdk/pkg/push"
	"github.com/tj/assert"
)

func deliveryTask(t *testing.T, text string) *a2a.Task {
	t.Helper()

	task, rpcErr := a2a.NewTask(a2a.NewUserMessage(text))
	assert.Nil(t, rpcErr)

	return task
}

func deliver(t *testing.T, srv *WebhookReceiver, task *a2a.Task, headers map[string]string) *http.Response {
	t.Helper()

	buf, err := json.Marshal(a2a.StreamResponse{Event: task})
	assert.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(buf))
	req.Header.Set("Content-Type", "application/json")

	for name, value := range headers {
		req.Header.Set(name, value)
	}

	res, err := srv.App().Test(req, fiber.TestConfig{Timeout: 5 * time.Second, FailOnTimeout: true})
	assert.NoError(t, err)

	return res
}

func hs256Token(t *testing.T, secret []byte, taskID string) string {
	t.Helper()

	now := time.Now()

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iat":    jwt.NewNumericDate(now),
		"exp":    jwt.NewNumericDate(now.Add(5 * time.Minute)),
		"taskId": taskID,
	}).SignedString(secret)
	assert.NoError(t, err)

	return token
}

func TestWebhookDeliveryReachesSink(t *testing.T) {
	var got *a2a.Task

	srv := NewWebhookReceiver(func(_ context.Context, task *a2a.Task) { got = task })
	task := deliveryTask(t, "all done")

	res := deliver(t, srv, task, nil)
	assert.Equal(t, http.StatusNoContent, res.StatusCode)
	assert.NotNil(t, got)
	assert.Equal(t, task.ID, got.ID)
}

func TestWebhookRejectsWrongToken(t *testing.T) {
	srv := NewWebhookReceiver(nil, WithDeliveryToken("expected"))
	task := deliveryTask(t, "knock knock")

	res := deliver(t, srv, task, nil)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	res = deliver(t, srv, task, map[string]string{a2a.NotificationTokenHeader: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	res = deliver(t, srv, task, map[string]string{a2a.NotificationTokenHeader: "expected"})
	assert.Equal(t, http.StatusNoContent, res.StatusCode)
}

func TestWebhookRejectsNonTaskPayload(t *testing.T) {
	srv := NewWebhookReceiver(nil)

	buf, err := json.Marshal(a2a.NewAgentMessage("not a task"))
	assert.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(buf))
	req.Header.Set("Content-Type", "application/json")

	res, err := srv.App().Test(req, fiber.TestConfig{Timeout: 5 * time.Second, FailOnTimeout: true})
	assert.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestWebhookSharedSecretVerification(t *testing.T) {
	secret := []byte("delivery-secret")
	srv := NewWebhookReceiver(nil, WithSharedSecret(secret))
	task := deliveryTask(t, "signed")

	res := deliver(t, srv, task, nil)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	res = deliver(t, srv, task, map[string]string{"Authorization": "Bearer " + hs256Token(t, secret, task.ID)})
	assert.Equal(t, http.StatusNoContent, res.StatusCode)

	// A token minted for one task must not authorize another.
	res = deliver(t, srv, task, map[string]string{"Authorization": "Bearer " + hs256Token(t, secret, "other-task")})
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	res = deliver(t, srv, task, map[string]string{"Authorization": "Bearer " + hs256Token(t, []byte("wrong"), task.ID)})
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
}

func TestWebhookSenderKeysVerification(t *testing.T) {
	sender, err := push.NewSenderAuth()
	assert.NoError(t, err)

	keys, err := jwk.Parse(sender.JWKS())
	assert.NoError(t, err)

	srv := NewWebhookReceiver(nil, WithSenderKeys(keys))
	task := deliveryTask(t, "rs256")

	token, err := sender.Token(task.ID)
	assert.NoError(t, err)

	res := deliver(t, srv, task, map[string]string{"Authorization": "Bearer " + token})
	assert.Equal(t, http.StatusNoContent, res.StatusCode)

	stranger, err := push.NewSenderAuth()
	assert.NoError(t, err)

	forged, err := stranger.Token(task.ID)
	assert.NoError(t, err)

	res = deliver(t, srv, task, map[string]string{"Authorization": "Bearer " + forged})
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
}
