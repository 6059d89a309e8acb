package eventqueue

import (
	"errors"
	"sync"
)

var (
	// ErrTaskQueueExists rejects a second primary queue for the same task.
	ErrTaskQueueExists = errors.New("task already has an active queue")
	// ErrNoTaskQueue signals that the task has no active queue, usually
	// because it already finished and was cleaned up.
	ErrNoTaskQueue = errors.New("no active queue for task")
)

/*
Manager is the registry of task-id to primary queue.  A task has at most
one primary queue at a time; resubscribers receive taps, never the primary.
*/
type Manager struct {
	mu     sync.Mutex
	queues map[string]*Queue
}

func NewManager() *Manager {
	return &Manager{
		queues: make(map[string]*Queue),
	}
}

// Add registers the primary queue for a task.
func (m *Manager) Add(taskID string, queue *Queue) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.queues[taskID]; ok {
		return ErrTaskQueueExists
	}

	m.queues[taskID] = queue

	return nil
}

// Get returns the primary queue, or nil when the task has none.
func (m *Manager) Get(taskID string) *Queue {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.queues[taskID]
}

// Tap returns a new child of the task's primary queue for a resubscriber,
// or nil when the task has no active queue.
func (m *Manager) Tap(taskID string) *Queue {
	m.mu.Lock()
	queue := m.queues[taskID]
	m.mu.Unlock()

	if queue == nil {
		return nil
	}

	return queue.Tap()
}

// Close shuts down and removes the task's primary queue.
func (m *Manager) Close(taskID string) error {
	m.mu.Lock()
	queue, ok := m.queues[taskID]
	delete(m.queues, taskID)
	m.mu.Unlock()

	if !ok {
		return ErrNoTaskQueue
	}

	queue.Close()

	return nil
}

/*
CreateOrTap hands the caller a queue for the task: the fresh primary when
none exists yet, a tap when an execution is already running.
*/
func (m *Manager) CreateOrTap(taskID string) *Queue {
	m.mu.Lock()

	if queue, ok := m.queues[taskID]; ok {
		m.mu.Unlock()
		return queue.Tap()
	}

	queue := New()
	m.queues[taskID] = queue
	m.mu.Unlock()

	return queue
}
