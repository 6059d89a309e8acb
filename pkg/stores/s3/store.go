package s3

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/charmbracelet/log"
	"github.com/theapemachine/a2a-sdk/pkg/a2a"
	a2aerrors "github.com/theapemachine/a2a-sdk/pkg/errors"
	"github.com/theapemachine/a2a-sdk/pkg/stores"
)

const tasksBucket = "tasks"

/*
TaskStore persists task snapshots as JSON objects in an S3-compatible
bucket, one object per task id.  Listing pulls the bucket into memory and
reuses the shared query pipeline; at the scale a single agent runtime
handles this beats maintaining a secondary index.
*/
type TaskStore struct {
	conn *Conn
}

func NewTaskStore(ctx context.Context, conn *Conn) (*TaskStore, error) {
	if err := conn.EnsureBucket(ctx, tasksBucket); err != nil {
		return nil, err
	}

	return &TaskStore{conn: conn}, nil
}

func (store *TaskStore) Save(ctx context.Context, task *a2a.Task) *a2aerrors.RpcError {
	if task == nil || task.ID == "" {
		return a2aerrors.ErrInvalidParams.WithMessagef("task has no id")
	}

	data, err := json.Marshal(task)

	if err != nil {
		return a2aerrors.ErrInternal.WithMessagef("failed to marshal task: %v", err)
	}

	if err := store.conn.Put(ctx, tasksBucket, task.ID, data); err != nil {
		log.Error("failed to store task", "error", err, "task_id", task.ID)
		return a2aerrors.ErrInternal.WithMessagef("failed to store task: %v", err)
	}

	return nil
}

func (store *TaskStore) Get(ctx context.Context, taskID string) (*a2a.Task, *a2aerrors.RpcError) {
	buf, err := store.conn.Get(ctx, tasksBucket, taskID)

	if err != nil {
		if errors.Is(err, ErrObjectMissing) {
			return nil, nil
		}

		log.Error("failed to get task", "error", err, "task_id", taskID)
		return nil, a2aerrors.ErrInternal.WithMessagef("failed to get task: %v", err)
	}

	var task a2a.Task

	if err := json.Unmarshal(buf, &task); err != nil {
		return nil, a2aerrors.ErrInternal.WithMessagef("failed to unmarshal task: %v", err)
	}

	return &task, nil
}

func (store *TaskStore) Delete(ctx context.Context, taskID string) *a2aerrors.RpcError {
	if err := store.conn.Delete(ctx, tasksBucket, taskID); err != nil {
		log.Error("failed to delete task", "error", err, "task_id", taskID)
		return a2aerrors.ErrInternal.WithMessagef("failed to delete task: %v", err)
	}

	return nil
}

func (store *TaskStore) List(ctx context.Context, params a2a.ListTasksParams) (*a2a.ListTasksResult, *a2aerrors.RpcError) {
	keys, err := store.conn.List(ctx, tasksBucket, "")

	if err != nil {
		return nil, a2aerrors.ErrInternal.WithMessagef("failed to list tasks: %v", err)
	}

	tasks := make([]*a2a.Task, 0, len(keys))

	for _, key := range keys {
		task, rpcErr := store.Get(ctx, key)

		if rpcErr != nil {
			return nil, rpcErr
		}

		if task != nil {
			tasks = append(tasks, task)
		}
	}

	return stores.ApplyListQuery(tasks, params)
}
