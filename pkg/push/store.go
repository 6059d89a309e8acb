package push

import (
	"context"
	"sort"
	"sync"

	"github.com/theapemachine/a2a-sdk/pkg/a2a"
	"github.com/theapemachine/a2a-sdk/pkg/errors"
)

/*
ConfigStore persists push notification registrations, scoped by the owner
that created them so one caller can never observe another's webhooks.  A
lookup that finds nothing returns nil without an error; absence only
becomes a protocol error at the handler layer.
*/
type ConfigStore interface {
	Set(ctx context.Context, owner string, config a2a.TaskPushNotificationConfig) (*a2a.TaskPushNotificationConfig, *errors.RpcError)
	Get(ctx context.Context, owner, taskID, configID string) (*a2a.TaskPushNotificationConfig, *errors.RpcError)
	List(ctx context.Context, owner, taskID string) ([]*a2a.TaskPushNotificationConfig, *errors.RpcError)
	Delete(ctx context.Context, owner, taskID, configID string) *errors.RpcError
}

/*
InMemoryConfigStore keeps registrations in a nested map guarded by a
read-write mutex.  The default for single-process servers; the s3 variant
covers deployments that need persistence.
*/
type InMemoryConfigStore struct {
	mu      sync.RWMutex
	configs map[string]map[string]map[string]a2a.TaskPushNotificationConfig
}

func NewInMemoryConfigStore() *InMemoryConfigStore {
	return &InMemoryConfigStore{
		configs: make(map[string]map[string]map[string]a2a.TaskPushNotificationConfig),
	}
}

func (store *InMemoryConfigStore) Set(
	ctx context.Context, owner string, config a2a.TaskPushNotificationConfig,
) (*a2a.TaskPushNotificationConfig, *errors.RpcError) {
	if config.TaskID == "" {
		return nil, errors.ErrInvalidParams.WithMessagef("push config has no task id")
	}

	// A config without an id takes the task id, matching the wire default.
	if config.PushNotificationConfig.ID == "" {
		config.PushNotificationConfig.ID = config.TaskID
	}

	store.mu.Lock()
	defer store.mu.Unlock()

	tasks, ok := store.configs[owner]

	if !ok {
		tasks = make(map[string]map[string]a2a.TaskPushNotificationConfig)
		store.configs[owner] = tasks
	}

	byID, ok := tasks[config.TaskID]

	if !ok {
		byID = make(map[string]a2a.TaskPushNotificationConfig)
		tasks[config.TaskID] = byID
	}

	byID[config.PushNotificationConfig.ID] = config

	return &config, nil
}

// Get returns one registration.  An empty configID selects the first
// config of the task in id order.
func (store *InMemoryConfigStore) Get(
	ctx context.Context, owner, taskID, configID string,
) (*a2a.TaskPushNotificationConfig, *errors.RpcError) {
	if configID == "" {
		configs, rpcErr := store.List(ctx, owner, taskID)

		if rpcErr != nil || len(configs) == 0 {
			return nil, rpcErr
		}

		return configs[0], nil
	}

	store.mu.RLock()
	defer store.mu.RUnlock()

	config, ok := store.configs[owner][taskID][configID]

	if !ok {
		return nil, nil
	}

	return &config, nil
}

func (store *InMemoryConfigStore) List(
	ctx context.Context, owner, taskID string,
) ([]*a2a.TaskPushNotificationConfig, *errors.RpcError) {
	store.mu.RLock()
	defer store.mu.RUnlock()

	byID := store.configs[owner][taskID]

	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	configs := make([]*a2a.TaskPushNotificationConfig, 0, len(ids))

	for _, id := range ids {
		config := byID[id]
		configs = append(configs, &config)
	}

	return configs, nil
}

// Delete removes one registration; deleting a missing one is a no-op.
func (store *InMemoryConfigStore) Delete(
	ctx context.Context, owner, taskID, configID string,
) *errors.RpcError {
	store.mu.Lock()
	defer store.mu.Unlock()

	delete(store.configs[owner][taskID], configID)

	return nil
}
