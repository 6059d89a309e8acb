package client

import (
	"github.com/charmbracelet/log"
	"github.com/theapemachine/a2a-sdk/pkg/a2a"
	"github.com/theapemachine/a2a-sdk/pkg/taskmanager"
)

/*
clientTaskManager folds the events of one call into a local task
snapshot, applying the same rules as the server-side folder minus
persistence.  A standalone Message may arrive before any task on sends
the agent answers directly; one arriving after a task is a protocol
violation.
*/
type clientTaskManager struct {
	task *a2a.Task
}

// Process folds one event and returns the snapshot as it stands.
func (tm *clientTaskManager) Process(event a2a.Event) (*a2a.Task, error) {
	switch ev := event.(type) {
	case *a2a.Message:
		if tm.task != nil {
			return nil, &InvalidStateError{Message: "message event received after a task snapshot"}
		}

		return nil, nil

	case *a2a.Task:
		tm.task = ev.Clone()

	case *a2a.TaskStatusUpdateEvent:
		if tm.task == nil {
			return nil, &InvalidStateError{Message: "status update received before a task snapshot"}
		}

		if tm.task.Status.State.Terminal() {
			log.Warn(
				"status update after terminal state",
				"task_id", tm.task.ID,
				"state", tm.task.Status.State,
				"attempted", ev.Status.State,
			)

			if ev.Status.Message != nil {
				tm.task.History = append(tm.task.History, *ev.Status.Message)
			}
		} else {
			if tm.task.Status.Message != nil {
				tm.task.History = append(tm.task.History, *tm.task.Status.Message)
			}

			tm.task.Status = ev.Status
		}

		tm.task.Metadata = taskmanager.MergeMetadata(tm.task.Metadata, ev.Metadata)

	case *a2a.TaskArtifactUpdateEvent:
		if tm.task == nil {
			return nil, &InvalidStateError{Message: "artifact update received before a task snapshot"}
		}

		taskmanager.ApplyArtifact(tm.task, ev)
	}

	return tm.task, nil
}
