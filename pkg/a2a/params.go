package a2a

import "time"

// JSON-RPC method names shared by the client transports and the server mux.
const (
	MethodMessageSend       = "message/send"
	MethodMessageStream     = "message/stream"
	MethodTasksGet          = "tasks/get"
	MethodTasksList         = "tasks/list"
	MethodTasksCancel       = "tasks/cancel"
	MethodTasksResubscribe  = "tasks/resubscribe"
	MethodPushConfigSet     = "tasks/pushNotificationConfig/set"
	MethodPushConfigGet     = "tasks/pushNotificationConfig/get"
	MethodPushConfigList    = "tasks/pushNotificationConfig/list"
	MethodPushConfigDelete  = "tasks/pushNotificationConfig/delete"
	MethodAgentExtendedCard = "agent/authenticatedExtendedCard"
)

// MessageSendParams carries the message plus optional per-call tuning for
// message/send and message/stream.
type MessageSendParams struct {
	Message       *Message                  `json:"message"`
	Configuration *MessageSendConfiguration `json:"configuration,omitempty"`
	Metadata      map[string]any            `json:"metadata,omitempty"`
}

// MessageSendConfiguration tunes a single send call.
type MessageSendConfiguration struct {
	// AcceptedOutputModes lists the media types the client can handle.
	AcceptedOutputModes []string `json:"acceptedOutputModes,omitempty"`
	// HistoryLength caps how many history messages the returned task carries.
	HistoryLength *int `json:"historyLength,omitempty"`
	// PushNotificationConfig registers a webhook for updates to this task.
	PushNotificationConfig *PushNotificationConfig `json:"pushNotificationConfig,omitempty"`
	// Blocking selects whether the call waits for completion. Defaults to true.
	Blocking *bool `json:"blocking,omitempty"`
}

// IsBlocking resolves the blocking default: a send is blocking unless the
// client explicitly asked for polling.
func (cfg *MessageSendConfiguration) IsBlocking() bool {
	return cfg == nil || cfg.Blocking == nil || *cfg.Blocking
}

// TaskIDParams identifies a task for id-only operations such as cancel.
type TaskIDParams struct {
	ID       string         `json:"id"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// TaskQueryParams identifies a task and bounds the history returned.
type TaskQueryParams struct {
	ID            string         `json:"id"`
	HistoryLength *int           `json:"historyLength,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// DefaultListPageSize applies when a list call omits or zeroes page size.
const DefaultListPageSize = 50

// ListTasksParams selects a page of tasks, optionally filtered.
type ListTasksParams struct {
	ContextID            string     `json:"contextId,omitempty"`
	Status               TaskState  `json:"status,omitempty"`
	StatusTimestampAfter *time.Time `json:"statusTimestampAfter,omitempty"`
	PageSize             int        `json:"pageSize,omitempty"`
	PageToken            string     `json:"pageToken,omitempty"`
	HistoryLength        *int       `json:"historyLength,omitempty"`
}

// ListTasksResult is one page of tasks plus the token for the next page.
type ListTasksResult struct {
	Tasks         []*Task `json:"tasks"`
	NextPageToken string  `json:"nextPageToken,omitempty"`
	PageSize      int     `json:"pageSize"`
	TotalSize     int     `json:"totalSize"`
}

// TaskPushNotificationConfig associates a push config with a task.
type TaskPushNotificationConfig struct {
	TaskID                 string                 `json:"taskId"`
	PushNotificationConfig PushNotificationConfig `json:"pushNotificationConfig"`
}

// GetTaskPushNotificationConfigParams addresses one config of a task.
type GetTaskPushNotificationConfigParams struct {
	ID                       string         `json:"id"`
	PushNotificationConfigID string         `json:"pushNotificationConfigId,omitempty"`
	Metadata                 map[string]any `json:"metadata,omitempty"`
}

// ListTaskPushNotificationConfigParams addresses all configs of a task.
type ListTaskPushNotificationConfigParams struct {
	ID       string         `json:"id"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// DeleteTaskPushNotificationConfigParams addresses one config for removal.
type DeleteTaskPushNotificationConfigParams struct {
	ID                       string         `json:"id"`
	PushNotificationConfigID string         `json:"pushNotificationConfigId"`
	Metadata                 map[string]any `json:"metadata,omitempty"`
}
