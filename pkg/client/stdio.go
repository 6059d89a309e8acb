package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/theapemachine/a2a-sdk/pkg/a2a"
	"github.com/theapemachine/a2a-sdk/pkg/jsonrpc"
)

// stdioKillDelay is how long Close waits for the agent process to exit
// gracefully before killing it.
const stdioKillDelay = 2 * time.Second

// errStdioClosed reports calls cut short by the agent process going away.
var errStdioClosed = stderrors.New("stdio transport closed")

// stdioFrame is one line of the agent's output.  Streaming responses
// share the request id across frames and finish with an EndOfStream frame
// or an error envelope.
type stdioFrame struct {
	jsonrpc.RPCResponse
	EndOfStream bool `json:"eos,omitempty"`
}

// stdioCall is one in-flight request.  The reader feeds frames until the
// caller stops listening.
type stdioCall struct {
	frames chan *stdioFrame
	done   chan struct{}
}

/*
stdioTransport speaks newline-delimited JSON-RPC with an agent running as
a child process, the counterpart of the stdio server.  Writes are
serialized line by line; a single reader goroutine routes response frames
to in-flight calls by request id.
*/
type stdioTransport struct {
	card    *a2a.AgentCard
	config  *Config
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	writeMu sync.Mutex
	nextID  atomic.Int64

	mu      sync.Mutex
	pending map[string]*stdioCall

	readerDone chan struct{}
	closeOnce  sync.Once
	closeErr   error
}

// NewStdioTransport spawns the agent process and attaches to its stdin
// and stdout.  The child's stderr passes through so its logs stay visible.
func NewStdioTransport(card *a2a.AgentCard, config *Config, command string, args ...string) (Transport, error) {
	cmd := exec.Command(command, args...)
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()

	if err != nil {
		return nil, err
	}

	stdout, err := cmd.StdoutPipe()

	if err != nil {
		return nil, err
	}

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	transport := newStdioPipes(card, config, stdin, stdout)
	transport.cmd = cmd

	return transport, nil
}

// newStdioPipes attaches to an already-connected pipe pair.
func newStdioPipes(card *a2a.AgentCard, config *Config, stdin io.WriteCloser, stdout io.Reader) *stdioTransport {
	if config == nil {
		config = DefaultConfig()
	}

	transport := &stdioTransport{
		card:       card,
		config:     config,
		stdin:      stdin,
		pending:    make(map[string]*stdioCall),
		readerDone: make(chan struct{}),
	}

	go transport.read(stdout)

	return transport
}

/*
read consumes the agent's output line by line until the pipe closes.
Closing readerDone afterwards releases every call still waiting, so a
crashed agent fails calls instead of hanging them.
*/
func (t *stdioTransport) read(stdout io.Reader) {
	defer close(t.readerDone)

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())

		if len(line) == 0 {
			continue
		}

		frame := new(stdioFrame)

		if err := json.Unmarshal(line, frame); err != nil {
			log.Debug("discarding unparseable stdio line", "error", err)
			continue
		}

		t.dispatch(frame)
	}
}

func (t *stdioTransport) dispatch(frame *stdioFrame) {
	id := string(frame.ID)

	t.mu.Lock()
	call, ok := t.pending[id]
	t.mu.Unlock()

	if !ok {
		log.Debug("dropping stdio frame for unknown call", "id", id)
		return
	}

	select {
	case call.frames <- frame:
	case <-call.done:
	}
}

func (t *stdioTransport) register(id string) *stdioCall {
	call := &stdioCall{
		frames: make(chan *stdioFrame, 8),
		done:   make(chan struct{}),
	}

	t.mu.Lock()
	t.pending[id] = call
	t.mu.Unlock()

	return call
}

func (t *stdioTransport) release(id string, call *stdioCall) {
	t.mu.Lock()
	delete(t.pending, id)
	t.mu.Unlock()

	close(call.done)
}

func (t *stdioTransport) write(req *jsonrpc.RPCRequest) error {
	buf, err := json.Marshal(req)

	if err != nil {
		return err
	}

	buf = append(buf, '\n')

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if _, err := t.stdin.Write(buf); err != nil {
		return asCallError(err)
	}

	return nil
}

func (t *stdioTransport) call(ctx context.Context, method string, params, out any) error {
	ctx, cancel := t.config.callContext(ctx)
	defer cancel()

	req, err := jsonrpc.NewRequest(t.nextID.Add(1), method, params)

	if err != nil {
		return err
	}

	call := t.register(string(req.ID))
	defer t.release(string(req.ID), call)

	if err := t.write(req); err != nil {
		return err
	}

	select {
	case frame := <-call.frames:
		if frame.Error != nil {
			return frame.Error
		}

		if out == nil {
			return nil
		}

		if err := frame.DecodeResult(out); err != nil {
			return &JSONError{Err: err}
		}

		return nil
	case <-t.readerDone:
		return errStdioClosed
	case <-ctx.Done():
		return asCallError(ctx.Err())
	}
}

func (t *stdioTransport) stream(ctx context.Context, method string, params any) (<-chan StreamResult, error) {
	req, err := jsonrpc.NewRequest(t.nextID.Add(1), method, params)

	if err != nil {
		return nil, err
	}

	call := t.register(string(req.ID))

	if err := t.write(req); err != nil {
		t.release(string(req.ID), call)
		return nil, err
	}

	frames := make(chan StreamResult)

	go func() {
		defer close(frames)
		defer t.release(string(req.ID), call)

		for {
			select {
			case frame := <-call.frames:
				if frame.EndOfStream {
					return
				}

				if frame.Error != nil {
					emit(ctx, frames, StreamResult{Err: frame.Error})
					return
				}

				var res a2a.StreamResponse

				if err := json.Unmarshal(frame.Result, &res); err != nil {
					emit(ctx, frames, StreamResult{Err: &JSONError{Err: err}})
					return
				}

				if !emit(ctx, frames, StreamResult{Event: res.Event}) {
					return
				}
			case <-t.readerDone:
				emit(ctx, frames, StreamResult{Err: errStdioClosed})
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return frames, nil
}

func (t *stdioTransport) SendMessage(ctx context.Context, params *a2a.MessageSendParams) (a2a.Event, error) {
	var res a2a.StreamResponse

	if err := t.call(ctx, a2a.MethodMessageSend, params, &res); err != nil {
		return nil, err
	}

	return res.Event, nil
}

func (t *stdioTransport) SendMessageStream(ctx context.Context, params *a2a.MessageSendParams) (<-chan StreamResult, error) {
	return t.stream(ctx, a2a.MethodMessageStream, params)
}

func (t *stdioTransport) GetTask(ctx context.Context, params *a2a.TaskQueryParams) (*a2a.Task, error) {
	task := new(a2a.Task)

	if err := t.call(ctx, a2a.MethodTasksGet, params, task); err != nil {
		return nil, err
	}

	return task, nil
}

func (t *stdioTransport) ListTasks(ctx context.Context, params *a2a.ListTasksParams) (*a2a.ListTasksResult, error) {
	result := new(a2a.ListTasksResult)

	if err := t.call(ctx, a2a.MethodTasksList, params, result); err != nil {
		return nil, err
	}

	return result, nil
}

func (t *stdioTransport) CancelTask(ctx context.Context, params *a2a.TaskIDParams) (*a2a.Task, error) {
	task := new(a2a.Task)

	if err := t.call(ctx, a2a.MethodTasksCancel, params, task); err != nil {
		return nil, err
	}

	return task, nil
}

func (t *stdioTransport) Subscribe(ctx context.Context, params *a2a.TaskIDParams) (<-chan StreamResult, error) {
	return t.stream(ctx, a2a.MethodTasksResubscribe, params)
}

func (t *stdioTransport) SetTaskCallback(ctx context.Context, config *a2a.TaskPushNotificationConfig) (*a2a.TaskPushNotificationConfig, error) {
	out := new(a2a.TaskPushNotificationConfig)

	if err := t.call(ctx, a2a.MethodPushConfigSet, config, out); err != nil {
		return nil, err
	}

	return out, nil
}

func (t *stdioTransport) GetTaskCallback(ctx context.Context, params *a2a.GetTaskPushNotificationConfigParams) (*a2a.TaskPushNotificationConfig, error) {
	out := new(a2a.TaskPushNotificationConfig)

	if err := t.call(ctx, a2a.MethodPushConfigGet, params, out); err != nil {
		return nil, err
	}

	return out, nil
}

func (t *stdioTransport) ListTaskCallbacks(ctx context.Context, params *a2a.ListTaskPushNotificationConfigParams) ([]*a2a.TaskPushNotificationConfig, error) {
	var out []*a2a.TaskPushNotificationConfig

	if err := t.call(ctx, a2a.MethodPushConfigList, params, &out); err != nil {
		return nil, err
	}

	return out, nil
}

func (t *stdioTransport) DeleteTaskCallback(ctx context.Context, params *a2a.DeleteTaskPushNotificationConfigParams) error {
	return t.call(ctx, a2a.MethodPushConfigDelete, params, nil)
}

func (t *stdioTransport) GetExtendedCard(ctx context.Context) (*a2a.AgentCard, error) {
	card := new(a2a.AgentCard)

	if err := t.call(ctx, a2a.MethodAgentExtendedCard, nil, card); err != nil {
		return nil, err
	}

	return card, nil
}

/*
Close shuts the agent process down: close stdin so it can exit on its
own, send SIGTERM, and kill it if it is still around after the grace
period.
*/
func (t *stdioTransport) Close() error {
	t.closeOnce.Do(func() {
		t.closeErr = t.shutdown()
	})

	return t.closeErr
}

func (t *stdioTransport) shutdown() error {
	err := t.stdin.Close()

	if t.cmd != nil {
		_ = t.cmd.Process.Signal(syscall.SIGTERM)
	}

	select {
	case <-t.readerDone:
	case <-time.After(stdioKillDelay):
		if t.cmd != nil {
			_ = t.cmd.Process.Kill()
		}

		<-t.readerDone
	}

	if t.cmd != nil {
		_ = t.cmd.Wait()
	}

	return err
}
