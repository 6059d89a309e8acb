package a2a

import (
	"encoding/json"
	"fmt"
)

/*
Event is the unit carried on the event pipeline between an agent producer
and the consumers of a handler call.  The concrete variants are *Task,
*Message, *TaskStatusUpdateEvent and *TaskArtifactUpdateEvent; the wire
discriminator is the "kind" field each variant stamps into its JSON form.
*/
type Event interface {
	EventKind() string
}

/*
TaskStatusUpdateEvent is sent when the agent wishes to inform the client of
a status transition.  Final marks the last event of the stream.
*/
type TaskStatusUpdateEvent struct {
	TaskID    string         `json:"taskId"`
	ContextID string         `json:"contextId"`
	Status    TaskStatus     `json:"status"`
	Final     bool           `json:"final"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func (ev *TaskStatusUpdateEvent) EventKind() string { return "status-update" }

func (ev *TaskStatusUpdateEvent) MarshalJSON() ([]byte, error) {
	type alias TaskStatusUpdateEvent
	return json.Marshal(struct {
		Kind string `json:"kind"`
		*alias
	}{Kind: ev.EventKind(), alias: (*alias)(ev)})
}

/*
TaskArtifactUpdateEvent is emitted when a new or updated artifact chunk is
available for a task.  Append extends the parts of an existing artifact
with the same id rather than replacing them.
*/
type TaskArtifactUpdateEvent struct {
	TaskID    string         `json:"taskId"`
	ContextID string         `json:"contextId"`
	Artifact  Artifact       `json:"artifact"`
	Append    bool           `json:"append,omitempty"`
	LastChunk bool           `json:"lastChunk,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func (ev *TaskArtifactUpdateEvent) EventKind() string { return "artifact-update" }

func (ev *TaskArtifactUpdateEvent) MarshalJSON() ([]byte, error) {
	type alias TaskArtifactUpdateEvent
	return json.Marshal(struct {
		Kind string `json:"kind"`
		*alias
	}{Kind: ev.EventKind(), alias: (*alias)(ev)})
}

func NewStatusUpdateEvent(task *Task, state TaskState, message *Message) *TaskStatusUpdateEvent {
	return &TaskStatusUpdateEvent{
		TaskID:    task.ID,
		ContextID: task.ContextID,
		Status:    NewTaskStatus(state, message),
	}
}

func NewFinalStatusUpdateEvent(task *Task, state TaskState, message *Message) *TaskStatusUpdateEvent {
	ev := NewStatusUpdateEvent(task, state, message)
	ev.Final = true

	return ev
}

func NewArtifactUpdateEvent(task *Task, artifact Artifact) *TaskArtifactUpdateEvent {
	return &TaskArtifactUpdateEvent{
		TaskID:    task.ID,
		ContextID: task.ContextID,
		Artifact:  artifact,
	}
}

/*
UnmarshalEvent decodes a kind-discriminated event object into its concrete
variant.
*/
func UnmarshalEvent(data []byte) (Event, error) {
	var probe struct {
		Kind string `json:"kind"`
	}

	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, err
	}

	switch probe.Kind {
	case "task":
		var task Task
		if err := json.Unmarshal(data, &task); err != nil {
			return nil, err
		}
		return &task, nil
	case "message":
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, err
		}
		return &msg, nil
	case "status-update":
		var ev TaskStatusUpdateEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, err
		}
		return &ev, nil
	case "artifact-update":
		var ev TaskArtifactUpdateEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, err
		}
		return &ev, nil
	}

	return nil, fmt.Errorf("unknown event kind %q", probe.Kind)
}

/*
StreamResponse is the one-event envelope used by the streaming surfaces:
each SSE frame, gRPC stream message and stdio stream line carries exactly
one of the four event variants.  On the JSON wire the envelope is the bare
kind-discriminated event object.
*/
type StreamResponse struct {
	Event Event
}

func (sr StreamResponse) MarshalJSON() ([]byte, error) {
	return json.Marshal(sr.Event)
}

func (sr *StreamResponse) UnmarshalJSON(data []byte) error {
	event, err := UnmarshalEvent(data)
	if err != nil {
		return err
	}

	sr.Event = event

	return nil
}
