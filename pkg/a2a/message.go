package a2a

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"
)

// Role identifies the author of a Message.
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

/*
Message represents all non‑artifact communication between client & agent.
A message is immutable after emission; task and context ids are filled in
by the server when the client leaves them blank.
*/
type Message struct {
	MessageID        string         `json:"messageId"`
	Role             Role           `json:"role"`
	Parts            []Part         `json:"parts"`
	TaskID           string         `json:"taskId,omitempty"`
	ContextID        string         `json:"contextId,omitempty"`
	ReferenceTaskIDs []string       `json:"referenceTaskIds,omitempty"`
	Extensions       []string       `json:"extensions,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

func (msg *Message) EventKind() string { return "message" }

func (msg *Message) MarshalJSON() ([]byte, error) {
	type alias Message
	return json.Marshal(struct {
		Kind string `json:"kind"`
		*alias
	}{Kind: msg.EventKind(), alias: (*alias)(msg)})
}

func NewMessage(role Role, parts ...Part) *Message {
	return &Message{
		MessageID: uuid.NewString(),
		Role:      role,
		Parts:     parts,
	}
}

func NewUserMessage(text string) *Message {
	return NewMessage(RoleUser, NewTextPart(text))
}

func NewAgentMessage(text string) *Message {
	return NewMessage(RoleAgent, NewTextPart(text))
}

func NewFileMessage(role Role, file *FileContent) *Message {
	return NewMessage(role, Part{Kind: PartKindFile, File: file})
}

func NewDataMessage(role Role, data map[string]any) *Message {
	return NewMessage(role, Part{Kind: PartKindData, Data: data})
}

// String concatenates the text parts, which is what most callers mean by
// "the content of the message".
func (msg *Message) String() string {
	var sb strings.Builder

	for _, part := range msg.Parts {
		sb.WriteString(part.Text)
	}

	return sb.String()
}
