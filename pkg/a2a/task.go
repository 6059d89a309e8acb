package a2a

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/theapemachine/a2a-sdk/pkg/errors"
)

/*
Task is the authoritative record of a long-running exchange.  Its id and
context id are immutable after creation, its history strictly grows, and
once the status reaches a terminal state no further transitions are
accepted.
*/
type Task struct {
	ID        string         `json:"id"`
	ContextID string         `json:"contextId"`
	Status    TaskStatus     `json:"status"`
	History   []Message      `json:"history,omitempty"`
	Artifacts []Artifact     `json:"artifacts,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func (task *Task) EventKind() string { return "task" }

func (task *Task) MarshalJSON() ([]byte, error) {
	type alias Task
	return json.Marshal(struct {
		Kind string `json:"kind"`
		*alias
	}{Kind: task.EventKind(), alias: (*alias)(task)})
}

/*
NewTask creates a submitted task seeded from the given message.  Missing
task and context ids are generated; the ids are written back into the
message so both sides agree on them.  A message with no parts, or whose
text parts are all empty, is rejected.
*/
func NewTask(message *Message) (*Task, *errors.RpcError) {
	if message == nil || len(message.Parts) == 0 {
		return nil, errors.ErrInvalidParams.WithMessagef("message has no parts")
	}

	for _, part := range message.Parts {
		if part.Kind == PartKindText && part.Text == "" {
			return nil, errors.ErrInvalidParams.WithMessagef("message has an empty text part")
		}
	}

	if message.TaskID == "" {
		message.TaskID = uuid.NewString()
	}

	if message.ContextID == "" {
		message.ContextID = uuid.NewString()
	}

	return &Task{
		ID:        message.TaskID,
		ContextID: message.ContextID,
		Status:    NewTaskStatus(TaskStateSubmitted, nil),
		History:   []Message{*message},
	}, nil
}

/*
Clone deep-copies the task through a JSON round trip so snapshots handed to
callers cannot alias the stored record.
*/
func (task *Task) Clone() *Task {
	buf, err := json.Marshal(task)
	if err != nil {
		copied := *task
		return &copied
	}

	var copied Task
	if err := json.Unmarshal(buf, &copied); err != nil {
		copied = *task
	}

	return &copied
}

// LastMessage returns the most recent history entry, or nil.
func (task *Task) LastMessage() *Message {
	if len(task.History) == 0 {
		return nil
	}

	return &task.History[len(task.History)-1]
}

// TrimHistory caps the history at the length the client asked for, keeping
// the most recent messages. Zero or negative lengths leave it untouched.
func (task *Task) TrimHistory(historyLength *int) *Task {
	if historyLength == nil || *historyLength <= 0 {
		return task
	}

	if len(task.History) > *historyLength {
		task.History = task.History[len(task.History)-*historyLength:]
	}

	return task
}

func (task *Task) String() string {
	var sb strings.Builder

	// Styles
	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("212")).
		Bold(true)

	labelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("39")).
		Bold(true)

	valueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("252"))

	sectionStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("99")).
		Bold(true)

	// Indentation and box-drawing chars
	indent := "   "
	bullet := "│ "

	// Task Details Header
	sb.WriteString(headerStyle.Render("Task Details") + "\n")
	sb.WriteString(bullet + labelStyle.Render("ID: ") + valueStyle.Render(task.ID) + "\n")
	sb.WriteString(bullet + labelStyle.Render("Context ID: ") + valueStyle.Render(task.ContextID) + "\n")

	// Status Section
	sb.WriteString("\n" + sectionStyle.Render("Status") + "\n")
	sb.WriteString(bullet + labelStyle.Render("State: ") + valueStyle.Render(string(task.Status.State)) + "\n")
	if task.Status.Message != nil {
		sb.WriteString(bullet + labelStyle.Render("Message: ") + valueStyle.Render(task.Status.Message.String()) + "\n")
	}
	if task.Status.Timestamp != nil {
		sb.WriteString(bullet + labelStyle.Render("Timestamp: ") + valueStyle.Render(task.Status.Timestamp.Format(time.RFC3339)) + "\n")
	}

	// History Section
	if len(task.History) > 0 {
		sb.WriteString("\n" + sectionStyle.Render("History") + "\n")
		for i, message := range task.History {
			sb.WriteString(bullet + labelStyle.Render(fmt.Sprintf("Message %d", i+1)) + "\n")
			sb.WriteString(bullet + indent + labelStyle.Render("Role: ") + valueStyle.Render(string(message.Role)) + "\n")
			sb.WriteString(bullet + indent + labelStyle.Render("Content: ") + valueStyle.Render(message.String()) + "\n")
		}
	}

	// Artifacts Section
	if len(task.Artifacts) > 0 {
		sb.WriteString("\n" + sectionStyle.Render("Artifacts") + "\n")
		for i, artifact := range task.Artifacts {
			sb.WriteString(bullet + labelStyle.Render(fmt.Sprintf("Artifact %d", i+1)) + "\n")
			sb.WriteString(bullet + indent + labelStyle.Render("ID: ") + valueStyle.Render(artifact.ArtifactID) + "\n")
			if artifact.Name != "" {
				sb.WriteString(bullet + indent + labelStyle.Render("Name: ") + valueStyle.Render(artifact.Name) + "\n")
			}
			for j, part := range artifact.Parts {
				sb.WriteString(bullet + indent + labelStyle.Render(fmt.Sprintf("Part %d: ", j+1)) + valueStyle.Render(part.Text) + "\n")
			}
		}
	}

	// Metadata Section
	if len(task.Metadata) > 0 {
		sb.WriteString("\n" + sectionStyle.Render("Metadata") + "\n")
		keys := make([]string, 0, len(task.Metadata))
		for k := range task.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			sb.WriteString(bullet + labelStyle.Render(k+": ") + valueStyle.Render(fmt.Sprintf("%v", task.Metadata[k])) + "\n")
		}
	}

	return sb.String()
}
