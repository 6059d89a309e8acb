package handler

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/theapemachine/a2a-sdk/pkg/a2a"
	"github.com/theapemachine/a2a-sdk/pkg/eventqueue"
	"github.com/theapemachine/a2a-sdk/pkg/executor"
	"github.com/theapemachine/a2a-sdk/pkg/push"
	"github.com/theapemachine/a2a-sdk/pkg/stores"
)

/*
RequestHandler is the transport-agnostic core of the server.  Every
adapter, whether JSON-RPC, REST, gRPC or stdio, translates its wire frames
into calls on this type, which owns the task store, the queue registry,
the running executions, and the push notification plumbing.
*/
type RequestHandler struct {
	card          a2a.AgentCard
	agent         executor.AgentExecutor
	taskStore     stores.TaskStore
	queues        *eventqueue.Manager
	pushStore     push.ConfigStore
	pushSender    *push.Sender
	ownerResolver push.OwnerResolver
	extendedCard  *a2a.AgentCard
	cardModifier  func(a2a.AgentCard, *a2a.ServerCallContext) a2a.AgentCard

	mu      sync.Mutex
	running map[string]*execution
}

// execution tracks one live producer so follow-up calls on the same task
// reach the running agent instead of spawning a second one.
type execution struct {
	reqCtx *executor.RequestContext
	queue  *eventqueue.Queue
}

type Option func(*RequestHandler)

func WithTaskStore(store stores.TaskStore) Option {
	return func(h *RequestHandler) { h.taskStore = store }
}

func WithQueueManager(queues *eventqueue.Manager) Option {
	return func(h *RequestHandler) { h.queues = queues }
}

func WithPushConfigStore(store push.ConfigStore) Option {
	return func(h *RequestHandler) { h.pushStore = store }
}

func WithPushSender(sender *push.Sender) Option {
	return func(h *RequestHandler) { h.pushSender = sender }
}

func WithOwnerResolver(resolver push.OwnerResolver) Option {
	return func(h *RequestHandler) { h.ownerResolver = resolver }
}

// WithExtendedCard sets the card returned to authenticated callers.
func WithExtendedCard(card *a2a.AgentCard) Option {
	return func(h *RequestHandler) { h.extendedCard = card }
}

// WithCardModifier installs a per-caller card producer, which wins over a
// static extended card.
func WithCardModifier(fn func(a2a.AgentCard, *a2a.ServerCallContext) a2a.AgentCard) Option {
	return func(h *RequestHandler) { h.cardModifier = fn }
}

func New(card a2a.AgentCard, agent executor.AgentExecutor, opts ...Option) *RequestHandler {
	h := &RequestHandler{
		card:          card,
		agent:         agent,
		taskStore:     stores.NewInMemoryTaskStore(),
		queues:        eventqueue.NewManager(),
		ownerResolver: push.DefaultOwnerResolver,
		running:       make(map[string]*execution),
	}

	for _, opt := range opts {
		opt(h)
	}

	if h.pushStore != nil && h.pushSender == nil {
		h.pushSender = push.NewSender(h.pushStore)
	}

	return h
}

// Card returns the public card this handler serves.
func (h *RequestHandler) Card() a2a.AgentCard {
	return h.card
}

func (h *RequestHandler) runningExecution(taskID string) *execution {
	if taskID == "" {
		return nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	return h.running[taskID]
}

func (h *RequestHandler) register(exec *execution) {
	h.mu.Lock()
	h.running[exec.reqCtx.TaskID] = exec
	h.mu.Unlock()
}

// finish runs when a producer returns: the task can no longer receive
// input, and its queue entry is retired so taps fall back to the store.
func (h *RequestHandler) finish(taskID string) {
	h.mu.Lock()
	delete(h.running, taskID)
	h.mu.Unlock()

	if err := h.queues.Close(taskID); err != nil {
		log.Debug("queue already retired", "task_id", taskID)
	}
}

/*
execute runs the producer side of one send call.  A clean return closes
the queue; an error or panic fails it so every consumer surfaces the
failure after draining.
*/
func (h *RequestHandler) execute(ctx context.Context, reqCtx *executor.RequestContext, queue *eventqueue.Queue) {
	defer h.finish(reqCtx.TaskID)

	defer func() {
		if r := recover(); r != nil {
			log.Error("agent execution panicked", "task_id", reqCtx.TaskID, "panic", r)
			queue.Fail(fmt.Errorf("agent execution panicked: %v", r))
		}
	}()

	if err := h.agent.Execute(ctx, reqCtx, queue); err != nil {
		log.Error("agent execution failed", "task_id", reqCtx.TaskID, "error", err)
		queue.Fail(err)
		return
	}

	queue.Close()
}

func (h *RequestHandler) notify(ctx context.Context, call *a2a.ServerCallContext, task *a2a.Task) {
	if h.pushSender == nil || !push.ShouldNotify(task) {
		return
	}

	h.pushSender.Notify(ctx, h.ownerResolver(call), task)
}

// modalitiesCompatible reports whether the server can produce any output
// mode the client accepts.  Either side being unconstrained is compatible.
func modalitiesCompatible(serverModes, clientModes []string) bool {
	if len(serverModes) == 0 || len(clientModes) == 0 {
		return true
	}

	for _, clientMode := range clientModes {
		for _, serverMode := range serverModes {
			if strings.EqualFold(clientMode, serverMode) {
				return true
			}
		}
	}

	return false
}

func eventState(event a2a.Event) (a2a.TaskState, bool) {
	switch ev := event.(type) {
	case *a2a.Task:
		return ev.Status.State, true
	case *a2a.TaskStatusUpdateEvent:
		return ev.Status.State, true
	}

	return "", false
}

func taskIDOf(event a2a.Event) string {
	switch ev := event.(type) {
	case *a2a.Task:
		return ev.ID
	case *a2a.Message:
		return ev.TaskID
	case *a2a.TaskStatusUpdateEvent:
		return ev.TaskID
	case *a2a.TaskArtifactUpdateEvent:
		return ev.TaskID
	}

	return ""
}

// trimmed applies the send configuration's history cap to a returned
// snapshot.
func trimmed(task *a2a.Task, params *a2a.MessageSendParams) *a2a.Task {
	if params.Configuration != nil {
		task.TrimHistory(params.Configuration.HistoryLength)
	}

	return task
}
