package push

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/theapemachine/a2a-sdk/pkg/a2a"
	"github.com/theapemachine/a2a-sdk/pkg/errors"
)

func configFor(taskID, configID, url string) a2a.TaskPushNotificationConfig {
	return a2a.TaskPushNotificationConfig{
		TaskID: taskID,
		PushNotificationConfig: a2a.PushNotificationConfig{
			ID:  configID,
			URL: url,
		},
	}
}

func TestSetDefaultsConfigIDToTaskID(t *testing.T) {
	store := NewInMemoryConfigStore()

	saved, rpcErr := store.Set(context.Background(), "alice", configFor("task-1", "", "https://hooks/1"))
	require.Nil(t, rpcErr)
	assert.Equal(t, "task-1", saved.PushNotificationConfig.ID)
}

func TestSetRequiresTaskID(t *testing.T) {
	store := NewInMemoryConfigStore()

	_, rpcErr := store.Set(context.Background(), "alice", configFor("", "c1", "https://hooks/1"))
	require.NotNil(t, rpcErr)
	assert.Equal(t, errors.ErrInvalidParams.Code, rpcErr.Code)
}

func TestGetEmptyConfigIDReturnsFirst(t *testing.T) {
	store := NewInMemoryConfigStore()
	ctx := context.Background()

	_, rpcErr := store.Set(ctx, "alice", configFor("task-1", "c2", "https://hooks/2"))
	require.Nil(t, rpcErr)
	_, rpcErr = store.Set(ctx, "alice", configFor("task-1", "c1", "https://hooks/1"))
	require.Nil(t, rpcErr)

	config, rpcErr := store.Get(ctx, "alice", "task-1", "")
	require.Nil(t, rpcErr)
	require.NotNil(t, config)
	assert.Equal(t, "c1", config.PushNotificationConfig.ID)
}

func TestGetMissingReturnsNil(t *testing.T) {
	store := NewInMemoryConfigStore()

	config, rpcErr := store.Get(context.Background(), "alice", "task-1", "nope")
	require.Nil(t, rpcErr)
	assert.Nil(t, config)
}

func TestListIsScopedByOwner(t *testing.T) {
	store := NewInMemoryConfigStore()
	ctx := context.Background()

	_, rpcErr := store.Set(ctx, "alice", configFor("task-1", "c1", "https://hooks/alice"))
	require.Nil(t, rpcErr)
	_, rpcErr = store.Set(ctx, "bob", configFor("task-1", "c1", "https://hooks/bob"))
	require.Nil(t, rpcErr)

	configs, rpcErr := store.List(ctx, "alice", "task-1")
	require.Nil(t, rpcErr)
	require.Len(t, configs, 1)
	assert.Equal(t, "https://hooks/alice", configs[0].PushNotificationConfig.URL)
}

func TestDeleteIsIdempotent(t *testing.T) {
	store := NewInMemoryConfigStore()
	ctx := context.Background()

	_, rpcErr := store.Set(ctx, "alice", configFor("task-1", "c1", "https://hooks/1"))
	require.Nil(t, rpcErr)

	require.Nil(t, store.Delete(ctx, "alice", "task-1", "c1"))
	require.Nil(t, store.Delete(ctx, "alice", "task-1", "c1"))

	configs, rpcErr := store.List(ctx, "alice", "task-1")
	require.Nil(t, rpcErr)
	assert.Empty(t, configs)
}
