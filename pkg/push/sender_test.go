package push

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/theapemachine/a2a-sdk/pkg/a2a"
)

type capturedDelivery struct {
	body    []byte
	headers http.Header
}

func webhookServer(t *testing.T, deliveries chan capturedDelivery) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		deliveries <- capturedDelivery{body: body, headers: r.Header.Clone()}
		w.WriteHeader(http.StatusOK)
	}))
}

func completedTask(id string) *a2a.Task {
	return &a2a.Task{
		ID:        id,
		ContextID: "ctx-1",
		Status:    a2a.NewTaskStatus(a2a.TaskStateCompleted, nil),
	}
}

func TestNotifyDeliversSnapshot(t *testing.T) {
	deliveries := make(chan capturedDelivery, 1)
	server := webhookServer(t, deliveries)
	defer server.Close()

	store := NewInMemoryConfigStore()
	ctx := context.Background()

	config := configFor("task-1", "c1", server.URL)
	config.PushNotificationConfig.Token = "secret-token"

	_, rpcErr := store.Set(ctx, "alice", config)
	require.Nil(t, rpcErr)

	NewSender(store).Notify(ctx, "alice", completedTask("task-1"))

	delivery := <-deliveries

	assert.Equal(t, "secret-token", delivery.headers.Get(a2a.NotificationTokenHeader))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(delivery.body, &decoded))
	assert.Equal(t, "task", decoded["kind"])
	assert.Equal(t, "task-1", decoded["id"])
}

func TestNotifyFansOutAndToleratesFailures(t *testing.T) {
	deliveries := make(chan capturedDelivery, 1)
	healthy := webhookServer(t, deliveries)
	defer healthy.Close()

	var failures atomic.Int32
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		failures.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer broken.Close()

	store := NewInMemoryConfigStore()
	ctx := context.Background()

	_, rpcErr := store.Set(ctx, "alice", configFor("task-1", "bad", broken.URL))
	require.Nil(t, rpcErr)
	_, rpcErr = store.Set(ctx, "alice", configFor("task-1", "good", healthy.URL))
	require.Nil(t, rpcErr)

	NewSender(store).Notify(ctx, "alice", completedTask("task-1"))

	// The healthy webhook gets its delivery even though the other endpoint
	// exhausted its retries.
	delivery := <-deliveries
	assert.NotEmpty(t, delivery.body)
	assert.GreaterOrEqual(t, failures.Load(), int32(1))
}

func TestNotifySignsWhenSecretSet(t *testing.T) {
	deliveries := make(chan capturedDelivery, 1)
	server := webhookServer(t, deliveries)
	defer server.Close()

	store := NewInMemoryConfigStore()
	ctx := context.Background()

	_, rpcErr := store.Set(ctx, "alice", configFor("task-1", "c1", server.URL))
	require.Nil(t, rpcErr)

	secret := []byte("push-secret")
	NewSender(store).WithSigningSecret(secret).Notify(ctx, "alice", completedTask("task-1"))

	delivery := <-deliveries

	raw := strings.TrimPrefix(delivery.headers.Get("Authorization"), "Bearer ")
	require.NotEmpty(t, raw)

	token, err := jwt.Parse(raw, func(token *jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	require.NoError(t, err)

	claims, ok := token.Claims.(jwt.MapClaims)
	require.True(t, ok)
	assert.Equal(t, "task-1", claims["taskId"])
}

func TestNotifyWithoutConfigsIsQuiet(t *testing.T) {
	NewSender(NewInMemoryConfigStore()).Notify(context.Background(), "alice", completedTask("task-1"))
}

func TestShouldNotify(t *testing.T) {
	assert.False(t, ShouldNotify(nil))

	for state, want := range map[a2a.TaskState]bool{
		a2a.TaskStateSubmitted:     false,
		a2a.TaskStateWorking:       false,
		a2a.TaskStateCompleted:     true,
		a2a.TaskStateCanceled:      true,
		a2a.TaskStateFailed:        true,
		a2a.TaskStateRejected:      true,
		a2a.TaskStateInputRequired: true,
		a2a.TaskStateAuthRequired:  true,
	} {
		task := completedTask("task-1")
		task.Status.State = state
		assert.Equal(t, want, ShouldNotify(task), "state %s", state)
	}
}
