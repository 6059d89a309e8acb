package s3

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/charmbracelet/log"
	"github.com/theapemachine/a2a-sdk/pkg/a2a"
	a2aerrors "github.com/theapemachine/a2a-sdk/pkg/errors"
)

const pushConfigBucket = "push-configs"

/*
PushConfigStore keeps per-owner webhook registrations in an S3-compatible
bucket under owner/taskID/configID keys, so one owner's configs never leak
into another owner's listing.
*/
type PushConfigStore struct {
	conn *Conn
}

func NewPushConfigStore(ctx context.Context, conn *Conn) (*PushConfigStore, error) {
	if err := conn.EnsureBucket(ctx, pushConfigBucket); err != nil {
		return nil, err
	}

	return &PushConfigStore{conn: conn}, nil
}

func configKey(owner, taskID, configID string) string {
	return fmt.Sprintf("%s/%s/%s", owner, taskID, configID)
}

func (store *PushConfigStore) Set(
	ctx context.Context, owner string, config a2a.TaskPushNotificationConfig,
) (*a2a.TaskPushNotificationConfig, *a2aerrors.RpcError) {
	if config.TaskID == "" {
		return nil, a2aerrors.ErrInvalidParams.WithMessagef("push config has no task id")
	}

	// A config without an id takes the task id, matching the wire default.
	if config.PushNotificationConfig.ID == "" {
		config.PushNotificationConfig.ID = config.TaskID
	}

	data, err := json.Marshal(config)

	if err != nil {
		return nil, a2aerrors.ErrInternal.WithMessagef("failed to marshal push config: %v", err)
	}

	key := configKey(owner, config.TaskID, config.PushNotificationConfig.ID)

	if err := store.conn.Put(ctx, pushConfigBucket, key, data); err != nil {
		log.Error("failed to store push config", "error", err, "key", key)
		return nil, a2aerrors.ErrInternal.WithMessagef("failed to store push config: %v", err)
	}

	return &config, nil
}

/*
Get returns one registration.  An empty configID selects the first config
of the task in id order; a missing config yields nil without an error.
*/
func (store *PushConfigStore) Get(
	ctx context.Context, owner, taskID, configID string,
) (*a2a.TaskPushNotificationConfig, *a2aerrors.RpcError) {
	if configID == "" {
		configs, rpcErr := store.List(ctx, owner, taskID)

		if rpcErr != nil {
			return nil, rpcErr
		}

		if len(configs) == 0 {
			return nil, nil
		}

		return configs[0], nil
	}

	buf, err := store.conn.Get(ctx, pushConfigBucket, configKey(owner, taskID, configID))

	if err != nil {
		if errors.Is(err, ErrObjectMissing) {
			return nil, nil
		}

		return nil, a2aerrors.ErrInternal.WithMessagef("failed to get push config: %v", err)
	}

	var config a2a.TaskPushNotificationConfig

	if err := json.Unmarshal(buf, &config); err != nil {
		return nil, a2aerrors.ErrInternal.WithMessagef("failed to unmarshal push config: %v", err)
	}

	return &config, nil
}

func (store *PushConfigStore) List(
	ctx context.Context, owner, taskID string,
) ([]*a2a.TaskPushNotificationConfig, *a2aerrors.RpcError) {
	prefix := fmt.Sprintf("%s/%s/", owner, taskID)
	keys, err := store.conn.List(ctx, pushConfigBucket, prefix)

	if err != nil {
		return nil, a2aerrors.ErrInternal.WithMessagef("failed to list push configs: %v", err)
	}

	sort.Strings(keys)

	configs := make([]*a2a.TaskPushNotificationConfig, 0, len(keys))

	for _, key := range keys {
		buf, err := store.conn.Get(ctx, pushConfigBucket, key)

		if err != nil {
			if errors.Is(err, ErrObjectMissing) {
				continue
			}

			return nil, a2aerrors.ErrInternal.WithMessagef("failed to get push config: %v", err)
		}

		var config a2a.TaskPushNotificationConfig

		if err := json.Unmarshal(buf, &config); err != nil {
			return nil, a2aerrors.ErrInternal.WithMessagef("failed to unmarshal push config: %v", err)
		}

		configs = append(configs, &config)
	}

	return configs, nil
}

// Delete removes one registration; deleting a missing one is a no-op.
func (store *PushConfigStore) Delete(
	ctx context.Context, owner, taskID, configID string,
) *a2aerrors.RpcError {
	if err := store.conn.Delete(ctx, pushConfigBucket, configKey(owner, taskID, configID)); err != nil {
		log.Error("failed to delete push config", "error", err, "task_id", taskID)
		return a2aerrors.ErrInternal.WithMessagef("failed to delete push config: %v", err)
	}

	return nil
}
