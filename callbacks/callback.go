package callbacks

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/effective-security/mcpagent/pkg/llms"
	"github.com/effective-security/mcpagent/pkg/llmutils"
	"github.com/effective-security/x/slices"
	"github.com/effective-security/xlog"
)

// Callback receives agent lifecycle events.
// Implementations must be safe for concurrent use.
type Callback interface {
	// OnChatStart is called before the chat step calls the model
	OnChatStart(ctx context.Context, agent, model string, payload []llms.Message)
	// OnChatEnd is called with the message produced by the chat step
	OnChatEnd(ctx context.Context, agent, model string, resp *llms.ContentResponse)
	// OnChatError is called when the model call failed
	OnChatError(ctx context.Context, agent, model string, err error)
	// OnRoute is called when the run moves from one step to another
	OnRoute(ctx context.Context, agent, from, to string)
	OnToolStart(ctx context.Context, agent string, call llms.ToolCall)
	OnToolEnd(ctx context.Context, agent string, call llms.ToolCall, output string)
	OnToolError(ctx context.Context, agent string, call llms.ToolCall, err error)
	OnToolNotFound(ctx context.Context, agent string, call llms.ToolCall)
}

// ensure that the callbacks implement the correct interfaces
var (
	_ Callback = (*Noop)(nil)
	_ Callback = (*Printer)(nil)
	_ Callback = (*PackageLogger)(nil)
	_ Callback = (*Fanout)(nil)
	_ Callback = (*Scratchpad)(nil)
)

// Mode defines the mode for callback printing
type Mode int

const (
	// ModeDefault is the default mode for callback printing
	ModeDefault Mode = iota
	// ModeVerbose is the verbose mode for callback printing
	ModeVerbose
)

// Fanout is a callback handler that forwards the events to multiple callbacks.
type Fanout struct {
	callbacks []Callback
}

func NewFanout(callbacks ...Callback) *Fanout {
	return &Fanout{callbacks: callbacks}
}

func (l *Fanout) Add(callback Callback) {
	l.callbacks = append(l.callbacks, callback)
}

func (l *Fanout) OnChatStart(ctx context.Context, agent, model string, payload []llms.Message) {
	for _, callback := range l.callbacks {
		callback.OnChatStart(ctx, agent, model, payload)
	}
}

func (l *Fanout) OnChatEnd(ctx context.Context, agent, model string, resp *llms.ContentResponse) {
	for _, callback := range l.callbacks {
		callback.OnChatEnd(ctx, agent, model, resp)
	}
}

func (l *Fanout) OnChatError(ctx context.Context, agent, model string, err error) {
	for _, callback := range l.callbacks {
		callback.OnChatError(ctx, agent, model, err)
	}
}

func (l *Fanout) OnRoute(ctx context.Context, agent, from, to string) {
	for _, callback := range l.callbacks {
		callback.OnRoute(ctx, agent, from, to)
	}
}

func (l *Fanout) OnToolStart(ctx context.Context, agent string, call llms.ToolCall) {
	for _, callback := range l.callbacks {
		callback.OnToolStart(ctx, agent, call)
	}
}

func (l *Fanout) OnToolEnd(ctx context.Context, agent string, call llms.ToolCall, output string) {
	for _, callback := range l.callbacks {
		callback.OnToolEnd(ctx, agent, call, output)
	}
}

func (l *Fanout) OnToolError(ctx context.Context, agent string, call llms.ToolCall, err error) {
	for _, callback := range l.callbacks {
		callback.OnToolError(ctx, agent, call, err)
	}
}

func (l *Fanout) OnToolNotFound(ctx context.Context, agent string, call llms.ToolCall) {
	for _, callback := range l.callbacks {
		callback.OnToolNotFound(ctx, agent, call)
	}
}

// Noop does nothing.
type Noop struct{}

func NewNoop() *Noop {
	return &Noop{}
}

func (l *Noop) OnChatStart(context.Context, string, string, []llms.Message)      {}
func (l *Noop) OnChatEnd(context.Context, string, string, *llms.ContentResponse) {}
func (l *Noop) OnChatError(context.Context, string, string, error)               {}
func (l *Noop) OnRoute(context.Context, string, string, string)                  {}
func (l *Noop) OnToolStart(context.Context, string, llms.ToolCall)               {}
func (l *Noop) OnToolEnd(context.Context, string, llms.ToolCall, string)         {}
func (l *Noop) OnToolError(context.Context, string, llms.ToolCall, error)        {}
func (l *Noop) OnToolNotFound(context.Context, string, llms.ToolCall)            {}

// Printer is a callback handler that prints to the Writer.
type Printer struct {
	Out  io.Writer
	Mode Mode

	lock sync.Mutex
}

func NewPrinter(out io.Writer, mode Mode) *Printer {
	return &Printer{Out: out, Mode: mode}
}

func (l *Printer) OnChatStart(_ context.Context, agent, model string, payload []llms.Message) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Chat Start: %s: %s model, %d messages\n", agent, model, len(payload))
	if l.Mode == ModeVerbose {
		if q := llmutils.FindLastUserQuestion(payload); q != "" {
			fmt.Fprintf(l.Out, "Question: %s\n", q)
		}
	}
}

func (l *Printer) OnChatEnd(_ context.Context, agent, model string, resp *llms.ContentResponse) {
	l.lock.Lock()
	defer l.lock.Unlock()
	msg := resp.Message()
	fmt.Fprintf(l.Out, "Chat End: %s: %s model, %d tool calls\n", agent, model, len(msg.ToolCalls()))
	if l.Mode == ModeVerbose {
		if text := msg.Text(); text != "" {
			fmt.Fprintln(l.Out, text)
		}
	}
}

func (l *Printer) OnChatError(_ context.Context, agent, model string, err error) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Chat Error: %s: %s model: %s\n", agent, model, err.Error())
}

func (l *Printer) OnRoute(_ context.Context, agent, from, to string) {
	if l.Mode != ModeVerbose {
		return
	}
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Route: %s: %s -> %s\n", agent, from, to)
}

func (l *Printer) OnToolStart(_ context.Context, agent string, call llms.ToolCall) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Tool Start: %s (%s)\n", call.Name(), agent)
	fmt.Fprintf(l.Out, "Input: %s\n", call.Arguments())
}

func (l *Printer) OnToolEnd(_ context.Context, agent string, call llms.ToolCall, output string) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Tool End: %s (%s)\n", call.Name(), agent)
	if l.Mode == ModeVerbose {
		fmt.Fprintf(l.Out, "Output: %s\n", output)
	}
}

func (l *Printer) OnToolError(_ context.Context, agent string, call llms.ToolCall, err error) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Tool Error: %s (%s): %s\n", call.Name(), agent, err.Error())
}

func (l *Printer) OnToolNotFound(_ context.Context, agent string, call llms.ToolCall) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Tool Not Found: %s (%s)\n", call.Name(), agent)
}

// PackageLogger is a callback handler that prints to the logger.
type PackageLogger struct {
	logger *xlog.PackageLogger
}

func NewPackageLogger(logger *xlog.PackageLogger) *PackageLogger {
	return &PackageLogger{logger: logger}
}

func (l *PackageLogger) OnChatStart(ctx context.Context, agent, model string, payload []llms.Message) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "chat_start",
		"agent", agent,
		"model", model,
		"messages", len(payload),
		"question", slices.StringUpto(llmutils.FindLastUserQuestion(payload), 64),
	)
}

func (l *PackageLogger) OnChatEnd(ctx context.Context, agent, model string, resp *llms.ContentResponse) {
	msg := resp.Message()
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "chat_end",
		"agent", agent,
		"model", model,
		"tool_calls", len(msg.ToolCalls()),
	)
}

func (l *PackageLogger) OnChatError(ctx context.Context, agent, model string, err error) {
	l.logger.ContextKV(ctx, xlog.ERROR,
		"event", "chat_error",
		"agent", agent,
		"model", model,
		"err", err.Error(),
	)
}

func (l *PackageLogger) OnRoute(ctx context.Context, agent, from, to string) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "route",
		"agent", agent,
		"from", from,
		"to", to,
	)
}

func (l *PackageLogger) OnToolStart(ctx context.Context, agent string, call llms.ToolCall) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "tool_start",
		"agent", agent,
		"tool", call.Name(),
		"call_id", call.ID,
		"input", call.Arguments(),
	)
}

func (l *PackageLogger) OnToolEnd(ctx context.Context, agent string, call llms.ToolCall, output string) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "tool_end",
		"agent", agent,
		"tool", call.Name(),
		"call_id", call.ID,
		"output", output,
	)
}

func (l *PackageLogger) OnToolError(ctx context.Context, agent string, call llms.ToolCall, err error) {
	l.logger.ContextKV(ctx, xlog.ERROR,
		"event", "tool_error",
		"agent", agent,
		"tool", call.Name(),
		"call_id", call.ID,
		"err", err.Error(),
	)
}

func (l *PackageLogger) OnToolNotFound(ctx context.Context, agent string, call llms.ToolCall) {
	l.logger.ContextKV(ctx, xlog.WARNING,
		"event", "tool_not_found",
		"agent", agent,
		"tool", call.Name(),
		"call_id", call.ID,
	)
}
