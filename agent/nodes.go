package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpagent/graph"
	"github.com/effective-security/mcpagent/mcpclient"
	"github.com/effective-security/mcpagent/mcpconfig"
	"github.com/effective-security/mcpagent/pkg/llms"
	"github.com/effective-security/mcpagent/pkg/llmutils"
	"github.com/effective-security/mcpagent/pkg/metricskey"
	"github.com/effective-security/xlog"
)

// ChatNode asks the model for the next message.
// The tools of the configured MCP servers and the caller actions
// are offered to the model.
func (a *Agent) ChatNode(ctx context.Context, state State) (State, error) {
	var msg llms.Message
	err := a.withSession(ctx, state.MCPConfig, func(sess *mcpclient.MultiSession) error {
		var err error
		msg, err = a.chat(ctx, state, sess)
		return err
	})
	if err != nil {
		return State{}, err
	}
	return State{Messages: []llms.Message{msg}}, nil
}

// ToolNode executes the pending tool calls of the last model message
// and appends a tool message for every call, in the order of the calls.
func (a *Agent) ToolNode(ctx context.Context, state State) (State, error) {
	calls := state.PendingToolCalls()
	if len(calls) == 0 {
		return State{}, nil
	}

	var msgs []llms.Message
	err := a.withSession(ctx, state.MCPConfig, func(sess *mcpclient.MultiSession) error {
		var err error
		msgs, err = a.callTools(ctx, calls, sess)
		return err
	})
	if err != nil {
		return State{}, err
	}
	return State{Messages: msgs}, nil
}

// ReactNode opens the MCP sessions once, and calls the model and the tools
// until the model answers without tool calls or requests a caller action.
func (a *Agent) ReactNode(ctx context.Context, state State) (State, error) {
	var added []llms.Message
	err := a.withSession(ctx, state.MCPConfig, func(sess *mcpclient.MultiSession) error {
		current := state
		for step := 0; ; step++ {
			if step >= a.recursionLimit {
				return errors.WithMessagef(graph.ErrRecursionLimit, "limit %d, node %q", a.recursionLimit, ReactNodeName)
			}
			msg, err := a.chat(ctx, current, sess)
			if err != nil {
				return err
			}
			added = append(added, msg)
			current = Reduce(current, State{Messages: []llms.Message{msg}})

			next := a.route(ctx, ReactNodeName, current)
			if next == graph.END {
				return nil
			}

			results, err := a.callTools(ctx, current.PendingToolCalls(), sess)
			if err != nil {
				return err
			}
			added = append(added, results...)
			current = Reduce(current, State{Messages: results})
		}
	})
	if err != nil {
		return State{}, err
	}
	return State{Messages: added}, nil
}

// RouteAfterChat returns graph.END when the last model message has no tool calls,
// or when any of the calls names a caller action, and ToolNodeName otherwise.
func RouteAfterChat(state State) string {
	calls := state.PendingToolCalls()
	if len(calls) == 0 {
		return graph.END
	}
	for _, call := range calls {
		if state.FindAction(call.Name()) != nil {
			return graph.END
		}
	}
	return ToolNodeName
}

func (a *Agent) routeAfterChat(ctx context.Context, state State) (string, error) {
	return a.route(ctx, ChatNodeName, state), nil
}

func (a *Agent) route(ctx context.Context, from string, state State) string {
	next := RouteAfterChat(state)
	if next == graph.END {
		for _, call := range state.PendingToolCalls() {
			if state.FindAction(call.Name()) != nil {
				metricskey.StatsAgentActionsRequested.IncrCounter(1, a.name, call.Name())
				logger.ContextKV(ctx, xlog.DEBUG,
					"status", "action_requested",
					"agent", a.name,
					"action", call.Name(),
					"call_id", call.ID)
			}
		}
	}
	a.callbacks.OnRoute(ctx, a.name, from, next)
	return next
}

// withSession opens the sessions for the configuration and closes them
// when fn returns. The default configuration is used when cfg is empty.
func (a *Agent) withSession(ctx context.Context, cfg mcpconfig.Config, fn func(sess *mcpclient.MultiSession) error) (err error) {
	if len(cfg) == 0 {
		cfg = mcpconfig.Default()
	}
	prepared, err := mcpconfig.Prepare(ctx, cfg, a.httpClient)
	if err != nil {
		return err
	}
	sess, err := mcpclient.OpenAll(ctx, a.opener, prepared)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			logger.ContextKV(ctx, xlog.WARNING,
				"reason", "close_session",
				"agent", a.name,
				"err", cerr.Error())
		}
	}()
	return fn(sess)
}

func (a *Agent) chat(ctx context.Context, state State, sess *mcpclient.MultiSession) (llms.Message, error) {
	mcpTools, err := sess.ListTools(ctx)
	if err != nil {
		return llms.Message{}, err
	}

	tools := make([]llms.Tool, 0, len(mcpTools)+len(state.Actions))
	for _, t := range mcpTools {
		tools = append(tools, llms.FunctionTool(t.Name, t.Description, t.Parameters))
	}
	for _, act := range state.Actions {
		tools = append(tools, llms.FunctionTool(act.Name, act.Description, act.Parameters))
	}

	system, err := a.systemPrompt(state, mcpclient.ToolNames(mcpTools))
	if err != nil {
		return llms.Message{}, errors.WithMessage(err, "unable to render system prompt")
	}

	payload := make([]llms.Message, 0, len(state.Messages)+1)
	payload = append(payload, llms.SystemMessage(system))
	payload = append(payload, state.Messages...)

	opts := make([]llms.CallOption, 0, len(a.callOptions)+1)
	opts = append(opts, a.callOptions...)
	if len(tools) > 0 {
		opts = append(opts, llms.WithTools(tools))
	}

	a.callbacks.OnChatStart(ctx, a.name, a.modelName, payload)
	metricskey.StatsLLMMessagesSent.IncrCounter(float64(len(payload)), a.name, a.modelName)

	started := time.Now()
	resp, err := a.model.GenerateContent(ctx, payload, opts...)
	if err != nil {
		metricskey.StatsLLMCallsFailed.IncrCounter(1, a.name, a.modelName)
		a.callbacks.OnChatError(ctx, a.name, a.modelName, err)
		return llms.Message{}, errors.WithMessagef(err, "model %q", a.modelName)
	}
	metricskey.PerfLLMCall.MeasureSince(started, a.name, a.modelName)
	metricskey.StatsLLMCallsSucceeded.IncrCounter(1, a.name, a.modelName)

	in, out, total := llmutils.CountTokens(resp)
	metricskey.StatsLLMInputTokens.IncrCounter(float64(in), a.name, a.modelName)
	metricskey.StatsLLMOutputTokens.IncrCounter(float64(out), a.name, a.modelName)
	metricskey.StatsLLMTotalTokens.IncrCounter(float64(total), a.name, a.modelName)

	a.callbacks.OnChatEnd(ctx, a.name, a.modelName, resp)

	msg := resp.Message()
	logger.ContextKV(ctx, xlog.DEBUG,
		"agent", a.name,
		"model", a.modelName,
		"tools", len(tools),
		"tool_calls", len(msg.ToolCalls()),
		"elapsed", time.Since(started).String())
	return msg, nil
}

// callTools runs the calls sequentially. A tool that is not advertised,
// or arguments that cannot be parsed, produce a result message for the model,
// session failures are returned.
func (a *Agent) callTools(ctx context.Context, calls []llms.ToolCall, sess *mcpclient.MultiSession) ([]llms.Message, error) {
	msgs := make([]llms.Message, 0, len(calls))
	for _, call := range calls {
		content, err := a.callTool(ctx, call, sess)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, llms.MessageFromToolResponse(llms.RoleTool, llms.ToolCallResponse{
			ToolCallID: call.ID,
			Name:       call.Name(),
			Content:    content,
		}))
	}
	return msgs, nil
}

func (a *Agent) callTool(ctx context.Context, call llms.ToolCall, sess *mcpclient.MultiSession) (string, error) {
	name := call.Name()
	if _, err := sess.FindTool(ctx, name); err != nil {
		if !errors.Is(err, mcpclient.ErrToolNotFound) {
			return "", err
		}
		metricskey.StatsToolCallsNotFound.IncrCounter(1, name)
		a.callbacks.OnToolNotFound(ctx, a.name, call)

		tools, lerr := sess.ListTools(ctx)
		if lerr != nil {
			return "", lerr
		}
		return ToolNotFoundMessage(name, mcpclient.ToolNames(tools)), nil
	}

	a.callbacks.OnToolStart(ctx, a.name, call)

	args, err := llmutils.ParseArguments(call.Arguments())
	if err != nil {
		metricskey.StatsToolCallsFailed.IncrCounter(1, name)
		a.callbacks.OnToolError(ctx, a.name, call, err)
		return fmt.Sprintf("Error: invalid arguments for tool %q: %s", name, err.Error()), nil
	}

	started := time.Now()
	output, err := sess.CallTool(ctx, name, args)
	if err != nil {
		metricskey.StatsToolCallsFailed.IncrCounter(1, name)
		a.callbacks.OnToolError(ctx, a.name, call, err)
		return "", errors.WithMessagef(err, "tool %q", name)
	}
	metricskey.PerfToolCall.MeasureSince(started, name)
	metricskey.StatsToolCallsSucceeded.IncrCounter(1, name)
	a.callbacks.OnToolEnd(ctx, a.name, call, output)
	return output, nil
}

// ToolNotFoundMessage returns the tool result for a call of an unknown tool
func ToolNotFoundMessage(name string, available []string) string {
	return fmt.Sprintf("Tool %q not found, use one of: %s", name, strings.Join(available, ", "))
}
