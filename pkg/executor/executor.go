package executor

import (
	"context"

	"github.com/google/uuid"
	"github.com/theapemachine/a2a-sdk/pkg/a2a"
	"github.com/theapemachine/a2a-sdk/pkg/errors"
	"github.com/theapemachine/a2a-sdk/pkg/eventqueue"
)

/*
AgentExecutor is the contract agent logic implements.  Execute reads the
request from reqCtx and writes events to the queue until the work reaches
a final state; returning an error fails the queue so every consumer sees
the failure after draining.  Cancel asks a running execution to stop and
should emit a canceled status update on the same queue.
*/
type AgentExecutor interface {
	Execute(ctx context.Context, reqCtx *RequestContext, queue *eventqueue.Queue) error
	Cancel(ctx context.Context, reqCtx *RequestContext, queue *eventqueue.Queue) error
}

// inputBuffer bounds how many follow-up messages can wait for a producer
// that has not picked them up yet.
const inputBuffer = 16

/*
RequestContext carries everything one execution needs: the triggering
message, the task as currently persisted, sibling tasks from the same
context, the send configuration, and the transport call envelope.  It
stays alive for as long as the producer runs, which can span several
client calls when the agent pauses for input.
*/
type RequestContext struct {
	TaskID        string
	ContextID     string
	Message       *a2a.Message
	CurrentTask   *a2a.Task
	RelatedTasks  []*a2a.Task
	Configuration *a2a.MessageSendConfiguration
	CallContext   *a2a.ServerCallContext

	input chan *a2a.Message
}

/*
NewRequestContext validates the send params and pins the task and context
ids, generating fresh ones when the message does not name them.  The ids
are written back onto the message so every event downstream agrees on
them.
*/
func NewRequestContext(
	params *a2a.MessageSendParams,
	callCtx *a2a.ServerCallContext,
	task *a2a.Task,
	related []*a2a.Task,
) (*RequestContext, *errors.RpcError) {
	if params == nil || params.Message == nil {
		return nil, errors.ErrInvalidParams.WithMessagef("message is required")
	}

	msg := params.Message
	taskID := msg.TaskID
	contextID := msg.ContextID

	if task != nil {
		// An existing task pins both ids regardless of what the message says.
		taskID = task.ID
		contextID = task.ContextID
	}

	if taskID == "" {
		taskID = uuid.NewString()
	}

	if contextID == "" {
		contextID = uuid.NewString()
	}

	msg.TaskID = taskID
	msg.ContextID = contextID

	return &RequestContext{
		TaskID:        taskID,
		ContextID:     contextID,
		Message:       msg,
		CurrentTask:   task,
		RelatedTasks:  related,
		Configuration: params.Configuration,
		CallContext:   callCtx,
		input:         make(chan *a2a.Message, inputBuffer),
	}, nil
}

// Input exposes follow-up messages delivered while this execution runs.
// Executors that pause for more input select on it.
func (rc *RequestContext) Input() <-chan *a2a.Message {
	return rc.input
}

/*
DeliverInput hands a follow-up message to the running execution without
blocking the caller.  It reports false when the buffer is full, meaning
the producer stopped reading.
*/
func (rc *RequestContext) DeliverInput(msg *a2a.Message) bool {
	select {
	case rc.input <- msg:
		return true
	default:
		return false
	}
}

// UserInput returns the text of the triggering message, which is what most
// agent implementations prompt on.
func (rc *RequestContext) UserInput() string {
	if rc.Message == nil {
		return ""
	}

	return rc.Message.String()
}

// RequestedExtensions lists the extension URIs the client asked for on
// this call.
func (rc *RequestContext) RequestedExtensions() []string {
	if rc.CallContext == nil {
		return nil
	}

	uris := make([]string, 0, len(rc.CallContext.RequestedExtensions))
	for uri := range rc.CallContext.RequestedExtensions {
		uris = append(uris, uri)
	}

	return uris
}
