package callbacks_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpagent/callbacks"
	"github.com/effective-security/mcpagent/pkg/llms"
	"github.com/effective-security/xlog"
	"github.com/stretchr/testify/assert"
)

var weatherCall = llms.ToolCall{
	ID:           "call_1",
	Type:         "function",
	FunctionCall: &llms.FunctionCall{Name: "get_weather", Arguments: `{"location":"Paris"}`},
}

func emitAll(cb callbacks.Callback) {
	ctx := context.Background()
	resp := &llms.ContentResponse{
		Choices: []*llms.ContentChoice{
			{Content: "test output"},
		},
	}
	cb.OnChatStart(ctx, "test-agent", "gpt-4o", []llms.Message{llms.HumanMessage("test input")})
	cb.OnChatEnd(ctx, "test-agent", "gpt-4o", resp)
	cb.OnChatError(ctx, "test-agent", "gpt-4o", errors.New("test error"))
	cb.OnRoute(ctx, "test-agent", "chat_node", "tool_node")
	cb.OnToolStart(ctx, "test-agent", weatherCall)
	cb.OnToolEnd(ctx, "test-agent", weatherCall, "The weather for Paris is 70 degrees.")
	cb.OnToolError(ctx, "test-agent", weatherCall, errors.New("test error"))
	cb.OnToolNotFound(ctx, "test-agent", weatherCall)
}

func TestPrinter(t *testing.T) {
	var buf bytes.Buffer
	emitAll(callbacks.NewPrinter(&buf, callbacks.ModeVerbose))

	res := buf.String()
	assert.Contains(t, res, "Chat Start: test-agent: gpt-4o model, 1 messages")
	assert.Contains(t, res, "Question: test input")
	assert.Contains(t, res, "Chat End: test-agent: gpt-4o model, 0 tool calls")
	assert.Contains(t, res, "test output")
	assert.Contains(t, res, "Chat Error: test-agent: gpt-4o model: test error")
	assert.Contains(t, res, "Route: test-agent: chat_node -> tool_node")
	assert.Contains(t, res, "Tool Start: get_weather (test-agent)")
	assert.Contains(t, res, `Input: {"location":"Paris"}`)
	assert.Contains(t, res, "Output: The weather for Paris is 70 degrees.")
	assert.Contains(t, res, "Tool Error: get_weather (test-agent): test error")
	assert.Contains(t, res, "Tool Not Found: get_weather")

	buf.Reset()
	emitAll(callbacks.NewPrinter(&buf, callbacks.ModeDefault))
	res = buf.String()
	assert.NotContains(t, res, "Route:")
	assert.NotContains(t, res, "Question:")
	assert.NotContains(t, res, "Output:")
}

func TestFanout(t *testing.T) {
	var buf1, buf2 bytes.Buffer
	fan := callbacks.NewFanout(callbacks.NewPrinter(&buf1, callbacks.ModeDefault))
	fan.Add(callbacks.NewPrinter(&buf2, callbacks.ModeDefault))
	fan.Add(callbacks.NewNoop())
	fan.Add(callbacks.NewPackageLogger(xlog.NewPackageLogger("github.com/effective-security/mcpagent", "callbacks_test")))

	emitAll(fan)
	assert.NotEmpty(t, buf1.String())
	assert.Equal(t, buf1.String(), buf2.String())
}
