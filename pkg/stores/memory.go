package stores

import (
	"context"
	"sync"

	"github.com/theapemachine/a2a-sdk/pkg/a2a"
	"github.com/theapemachine/a2a-sdk/pkg/errors"
)

/*
InMemoryTaskStore is the default TaskStore: a mutex-guarded map that clones
on both write and read so callers can never mutate the stored snapshot
behind the store's back.  Sufficient for dev and unit tests; persistent
deployments swap in the minio-backed store.
*/
type InMemoryTaskStore struct {
	mu    sync.RWMutex
	tasks map[string]*a2a.Task
}

func NewInMemoryTaskStore() *InMemoryTaskStore {
	return &InMemoryTaskStore{
		tasks: make(map[string]*a2a.Task),
	}
}

func (s *InMemoryTaskStore) Save(ctx context.Context, task *a2a.Task) *errors.RpcError {
	if task == nil || task.ID == "" {
		return errors.ErrInvalidParams.WithMessagef("task has no id")
	}

	s.mu.Lock()
	s.tasks[task.ID] = task.Clone()
	s.mu.Unlock()

	return nil
}

func (s *InMemoryTaskStore) Get(ctx context.Context, taskID string) (*a2a.Task, *errors.RpcError) {
	s.mu.RLock()
	task, ok := s.tasks[taskID]
	s.mu.RUnlock()

	if !ok {
		return nil, nil
	}

	return task.Clone(), nil
}

func (s *InMemoryTaskStore) Delete(ctx context.Context, taskID string) *errors.RpcError {
	s.mu.Lock()
	delete(s.tasks, taskID)
	s.mu.Unlock()

	return nil
}

func (s *InMemoryTaskStore) List(ctx context.Context, params a2a.ListTasksParams) (*a2a.ListTasksResult, *errors.RpcError) {
	s.mu.RLock()
	tasks := make([]*a2a.Task, 0, len(s.tasks))
	for _, task := range s.tasks {
		tasks = append(tasks, task)
	}
	s.mu.RUnlock()

	return ApplyListQuery(tasks, params)
}
