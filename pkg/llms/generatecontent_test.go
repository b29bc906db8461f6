package llms_test

import (
	"encoding/json"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpagent/pkg/llms"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextParts(t *testing.T) {
	t.Parallel()
	mc := llms.MessageFromTextParts(llms.RoleHuman, "a", "b", "c")
	assert.Equal(t, llms.RoleHuman, mc.Role)
	assert.Len(t, mc.Parts, 3)
	assert.Equal(t, "a\nb\nc", mc.Text())
}

func Test_Message_JSON(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		msg  llms.Message
		js   string
	}{
		{
			"text",
			llms.HumanMessage("What's the weather in Paris?"),
			`{"role":"human","text":"What's the weather in Paris?"}`,
		},
		{
			"multi text",
			llms.MessageFromTextParts(llms.RoleAI, "a", "b"),
			`{"role":"ai","parts":[{"type":"text","text":"a"},{"type":"text","text":"b"}]}`,
		},
		{
			"tool call",
			llms.MessageFromToolCalls(llms.RoleAI, llms.ToolCall{
				ID:           "call_1",
				Type:         "function",
				FunctionCall: &llms.FunctionCall{Name: "get_weather", Arguments: `{"location":"Paris"}`},
			}),
			`{"role":"ai","parts":[{"type":"tool_call","tool_call":{"id":"call_1","type":"function","function":{"name":"get_weather","arguments":"{\"location\":\"Paris\"}"}}}]}`,
		},
		{
			"tool response",
			llms.MessageFromToolResponse(llms.RoleTool, llms.ToolCallResponse{
				ToolCallID: "call_1",
				Name:       "get_weather",
				Content:    "The weather for Paris is 70 degrees.",
			}),
			`{"role":"tool","parts":[{"type":"tool_response","tool_response":{"tool_call_id":"call_1","name":"get_weather","content":"The weather for Paris is 70 degrees."}}]}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			js, err := json.Marshal(tt.msg)
			require.NoError(t, err)
			assert.Equal(t, tt.js, string(js))

			var msg llms.Message
			require.NoError(t, json.Unmarshal(js, &msg))
			assert.Equal(t, tt.msg, msg)
		})
	}
}

func Test_Message_UnmarshalAliases(t *testing.T) {
	t.Parallel()

	var msg llms.Message
	require.NoError(t, json.Unmarshal([]byte(`{"role":"user","text":"hi"}`), &msg))
	assert.Equal(t, llms.HumanMessage("hi"), msg)

	require.NoError(t, json.Unmarshal([]byte(`{"role":"assistant","text":"hello"}`), &msg))
	assert.Equal(t, llms.AIMessage("hello"), msg)

	err := json.Unmarshal([]byte(`{"role":"robot","text":"beep"}`), &msg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, llms.ErrUnexpectedRole))

	err = json.Unmarshal([]byte(`{"role":"ai","parts":[{"type":"image"}]}`), &msg)
	assert.EqualError(t, err, `unknown part type: "image"`)
}

func Test_ContentResponse_Message(t *testing.T) {
	t.Parallel()

	var nilResp *llms.ContentResponse
	assert.Empty(t, nilResp.Message().Parts)

	resp := &llms.ContentResponse{
		Choices: []*llms.ContentChoice{
			{Content: "Let me check."},
			{ToolCalls: []llms.ToolCall{
				{ID: "1", Type: "function", FunctionCall: &llms.FunctionCall{Name: "add", Arguments: `{"a":1,"b":2}`}},
				{ID: "2", Type: "function", FunctionCall: &llms.FunctionCall{Name: "multiply", Arguments: `{"a":3,"b":4}`}},
			}},
		},
	}
	msg := resp.Message()
	assert.Equal(t, llms.RoleAI, msg.Role)
	assert.Equal(t, "Let me check.", msg.Text())
	calls := msg.ToolCalls()
	require.Len(t, calls, 2)
	assert.Equal(t, "add", calls[0].Name())
	assert.Equal(t, "multiply", calls[1].Name())
	assert.Equal(t, `{"a":3,"b":4}`, calls[1].Arguments())
	assert.Empty(t, msg.ToolResponses())
}

func Test_LastMessage(t *testing.T) {
	t.Parallel()
	history := []llms.Message{
		llms.SystemMessage("sys"),
		llms.HumanMessage("q1"),
		llms.AIMessage("a1"),
		llms.HumanMessage("q2"),
	}
	m, ok := llms.LastMessage(history, llms.RoleAI)
	require.True(t, ok)
	assert.Equal(t, "a1", m.Text())

	m, ok = llms.LastMessage(history, llms.RoleHuman)
	require.True(t, ok)
	assert.Equal(t, "q2", m.Text())

	_, ok = llms.LastMessage(history, llms.RoleTool)
	assert.False(t, ok)
}

func Test_ProviderCapabilities(t *testing.T) {
	t.Parallel()
	assert.True(t, llms.ProviderOpenAI.Supports(llms.CapabilityFunctionCalling))
	assert.True(t, llms.ProviderAnthropic.Supports(llms.CapabilityFunctionCalling|llms.CapabilityMultiToolCalling))
	assert.False(t, llms.ProviderType("UNKNOWN").Supports(llms.CapabilityFunctionCalling))
	assert.False(t, llms.ProviderOpenAI.Supports(0))
}

func Test_CallOptions(t *testing.T) {
	t.Parallel()
	tool := llms.FunctionTool("add", "Add numbers", nil)
	opts := llms.NewCallOptions(llms.CallOptions{Model: "m1", MaxTokens: 10},
		llms.WithModel("m2"),
		llms.WithTemperature(0.5),
		llms.WithTools([]llms.Tool{tool}),
		llms.WithToolChoice("auto"),
		llms.WithStopWords([]string{"STOP"}),
		llms.WithTopP(0.9),
	)
	assert.Equal(t, "m2", opts.Model)
	assert.Equal(t, 10, opts.MaxTokens)
	assert.Equal(t, 0.5, opts.Temperature)
	assert.Equal(t, "auto", opts.ToolChoice)
	assert.Equal(t, []string{"STOP"}, opts.StopWords)
	assert.Equal(t, 0.9, opts.TopP)
	require.Len(t, opts.Tools, 1)
	assert.Equal(t, llms.ToolTypeFunction, opts.Tools[0].Type)
	assert.Equal(t, "add", opts.Tools[0].Function.Name)
}
