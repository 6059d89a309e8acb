package a2a

import "time"

/*
TaskState enumerates the mutually‑exclusive states a task may be in.  The
zero value is "unknown".
*/
type TaskState string

const (
	TaskStateSubmitted     TaskState = "submitted"
	TaskStateWorking       TaskState = "working"
	TaskStateInputRequired TaskState = "input-required"
	TaskStateAuthRequired  TaskState = "auth-required"
	TaskStateCompleted     TaskState = "completed"
	TaskStateCanceled      TaskState = "canceled"
	TaskStateFailed        TaskState = "failed"
	TaskStateRejected      TaskState = "rejected"
	TaskStateUnknown       TaskState = "unknown"
)

// Terminal reports whether no further state transitions are accepted.
func (state TaskState) Terminal() bool {
	switch state {
	case TaskStateCompleted, TaskStateCanceled, TaskStateFailed, TaskStateRejected:
		return true
	}

	return false
}

// Interrupted reports whether the agent paused to wait for the client.
func (state TaskState) Interrupted() bool {
	return state == TaskStateInputRequired || state == TaskStateAuthRequired
}

type TaskStatus struct {
	State     TaskState  `json:"state"`
	Message   *Message   `json:"message,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// NewTaskStatus stamps the status with the current time.
func NewTaskStatus(state TaskState, message *Message) TaskStatus {
	now := time.Now().UTC()

	return TaskStatus{
		State:     state,
		Message:   message,
		Timestamp: &now,
	}
}
