package taskmanager

import (
	"context"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/theapemachine/a2a-sdk/pkg/a2a"
	"github.com/theapemachine/a2a-sdk/pkg/errors"
	"github.com/theapemachine/a2a-sdk/pkg/stores"
)

/*
TaskManager folds the events of a single task into the authoritative
snapshot in the TaskStore.  One manager serves one handler call; the mutex
serializes persistence per task while events for other tasks proceed in
parallel.
*/
type TaskManager struct {
	mu             sync.Mutex
	taskID         string
	contextID      string
	store          stores.TaskStore
	initialMessage *a2a.Message
}

func New(store stores.TaskStore, taskID, contextID string, initialMessage *a2a.Message) *TaskManager {
	return &TaskManager{
		taskID:         taskID,
		contextID:      contextID,
		store:          store,
		initialMessage: initialMessage,
	}
}

func (tm *TaskManager) TaskID() string    { return tm.taskID }
func (tm *TaskManager) ContextID() string { return tm.contextID }

// GetTask loads the current snapshot, or nil when nothing was persisted
// yet for this task.
func (tm *TaskManager) GetTask(ctx context.Context) (*a2a.Task, *errors.RpcError) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	return tm.loadLocked(ctx)
}

func (tm *TaskManager) loadLocked(ctx context.Context) (*a2a.Task, *errors.RpcError) {
	if tm.taskID == "" {
		return nil, nil
	}

	return tm.store.Get(ctx, tm.taskID)
}

/*
Process routes an event through the folder.  Task-shaped events update the
persisted snapshot; a standalone Message passes through untouched since it
carries no task state.  The event itself is returned so the caller can
relay it downstream.
*/
func (tm *TaskManager) Process(ctx context.Context, event a2a.Event) (a2a.Event, *errors.RpcError) {
	switch event.(type) {
	case *a2a.Task, *a2a.TaskStatusUpdateEvent, *a2a.TaskArtifactUpdateEvent:
		if _, rpcErr := tm.SaveTaskEvent(ctx, event); rpcErr != nil {
			return nil, rpcErr
		}
	}

	return event, nil
}

/*
SaveTaskEvent applies one event to the snapshot and persists the result.

The folding rules:
  - A full Task binds the manager's ids and replaces the snapshot.
  - A status-update moves the previous interim status message into history,
    then replaces the status.  Updates arriving after a terminal state merge
    their message and metadata but never un-terminalize the task.
  - An artifact-update inserts the artifact, extends its parts when
    appending, or replaces its parts otherwise.
*/
func (tm *TaskManager) SaveTaskEvent(ctx context.Context, event a2a.Event) (*a2a.Task, *errors.RpcError) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	switch ev := event.(type) {
	case *a2a.Task:
		if tm.mismatch(ev.ID) {
			return nil, errors.ErrInvalidParams.WithMessagef(
				"task id %s does not match bound task id %s", ev.ID, tm.taskID,
			)
		}

		tm.bindLocked(ev.ID, ev.ContextID)

		task := ev.Clone()

		if rpcErr := tm.store.Save(ctx, task); rpcErr != nil {
			return nil, rpcErr
		}

		return task, nil

	case *a2a.TaskStatusUpdateEvent:
		task, rpcErr := tm.ensureLocked(ctx, ev.TaskID, ev.ContextID)

		if rpcErr != nil {
			return nil, rpcErr
		}

		if task.Status.State.Terminal() {
			log.Warn(
				"status update after terminal state",
				"task_id", task.ID,
				"state", task.Status.State,
				"attempted", ev.Status.State,
			)

			if ev.Status.Message != nil {
				task.History = append(task.History, *ev.Status.Message)
			}
		} else {
			if task.Status.Message != nil {
				task.History = append(task.History, *task.Status.Message)
			}

			task.Status = ev.Status
		}

		task.Metadata = MergeMetadata(task.Metadata, ev.Metadata)

		if rpcErr := tm.store.Save(ctx, task); rpcErr != nil {
			return nil, rpcErr
		}

		return task, nil

	case *a2a.TaskArtifactUpdateEvent:
		task, rpcErr := tm.ensureLocked(ctx, ev.TaskID, ev.ContextID)

		if rpcErr != nil {
			return nil, rpcErr
		}

		ApplyArtifact(task, ev)

		if rpcErr := tm.store.Save(ctx, task); rpcErr != nil {
			return nil, rpcErr
		}

		return task, nil
	}

	// Standalone messages carry no task state.
	return nil, nil
}

/*
EnsureTask returns the task an event belongs to, synthesizing and
persisting a submitted snapshot when none exists yet.  A nil event keeps
the ids the manager was constructed with.
*/
func (tm *TaskManager) EnsureTask(ctx context.Context, event a2a.Event) (*a2a.Task, *errors.RpcError) {
	taskID, contextID := eventIDs(event)

	tm.mu.Lock()
	defer tm.mu.Unlock()

	return tm.ensureLocked(ctx, taskID, contextID)
}

/*
UpdateWithMessage appends an incoming message to the task history, first
demoting any interim status message, and persists the result.  Used when a
follow-up send targets an existing task.
*/
func (tm *TaskManager) UpdateWithMessage(ctx context.Context, msg *a2a.Message, task *a2a.Task) (*a2a.Task, *errors.RpcError) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if task.Status.Message != nil {
		task.History = append(task.History, *task.Status.Message)
		task.Status.Message = nil
	}

	task.History = append(task.History, *msg)

	if rpcErr := tm.store.Save(ctx, task); rpcErr != nil {
		return nil, rpcErr
	}

	return task, nil
}

// mismatch reports whether an event names a different task than the one
// this manager is bound to.
func (tm *TaskManager) mismatch(taskID string) bool {
	return tm.taskID != "" && taskID != "" && tm.taskID != taskID
}

func (tm *TaskManager) bindLocked(taskID, contextID string) {
	if tm.taskID == "" {
		tm.taskID = taskID
	}

	if tm.contextID == "" {
		tm.contextID = contextID
	}
}

func (tm *TaskManager) ensureLocked(ctx context.Context, taskID, contextID string) (*a2a.Task, *errors.RpcError) {
	// A mismatch on a status or artifact event means the agent is emitting
	// events for a task this call does not own.
	if tm.mismatch(taskID) {
		return nil, errors.ErrInternal.WithMessagef(
			"event task id %s does not match bound task id %s", taskID, tm.taskID,
		)
	}

	tm.bindLocked(taskID, contextID)

	task, rpcErr := tm.loadLocked(ctx)

	if rpcErr != nil {
		return nil, rpcErr
	}

	if task != nil {
		return task, nil
	}

	task = &a2a.Task{
		ID:        tm.taskID,
		ContextID: tm.contextID,
		Status:    a2a.NewTaskStatus(a2a.TaskStateSubmitted, nil),
	}

	if tm.initialMessage != nil {
		task.History = []a2a.Message{*tm.initialMessage}
	}

	if rpcErr := tm.store.Save(ctx, task); rpcErr != nil {
		return nil, rpcErr
	}

	return task, nil
}

// ApplyArtifact folds an artifact update into the task, implementing the
// insert / append / replace rules.  Both the server-side and the
// client-side folders route artifact events through here.
func ApplyArtifact(task *a2a.Task, ev *a2a.TaskArtifactUpdateEvent) {
	for i := range task.Artifacts {
		if task.Artifacts[i].ArtifactID != ev.Artifact.ArtifactID {
			continue
		}

		existing := &task.Artifacts[i]

		if ev.Append {
			existing.Parts = append(existing.Parts, ev.Artifact.Parts...)
		} else {
			// Replacement swaps the parts but keeps the artifact identity.
			existing.Parts = ev.Artifact.Parts

			if ev.Artifact.Name != "" {
				existing.Name = ev.Artifact.Name
			}

			if ev.Artifact.Description != "" {
				existing.Description = ev.Artifact.Description
			}
		}

		existing.Metadata = MergeMetadata(existing.Metadata, ev.Artifact.Metadata)

		return
	}

	task.Artifacts = append(task.Artifacts, ev.Artifact)
}

// MergeMetadata is last-write-wins per key.
func MergeMetadata(dst, src map[string]any) map[string]any {
	if len(src) == 0 {
		return dst
	}

	if dst == nil {
		dst = make(map[string]any, len(src))
	}

	for k, v := range src {
		dst[k] = v
	}

	return dst
}

func eventIDs(event a2a.Event) (string, string) {
	if event == nil {
		return "", ""
	}

	switch ev := event.(type) {
	case *a2a.Task:
		return ev.ID, ev.ContextID
	case *a2a.Message:
		return ev.TaskID, ev.ContextID
	case *a2a.TaskStatusUpdateEvent:
		return ev.TaskID, ev.ContextID
	case *a2a.TaskArtifactUpdateEvent:
		return ev.TaskID, ev.ContextID
	}

	return "", ""
}
