package bedrock

import (
	"encoding/json"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpagent/pkg/llms"
	"github.com/effective-security/mcpagent/pkg/schema"
)

// Messages API body, as accepted by Anthropic models on Bedrock.
type anthropicInput struct {
	AnthropicVersion string              `json:"anthropic_version"`
	MaxTokens        int                 `json:"max_tokens"`
	System           string              `json:"system,omitempty"`
	Messages         []*anthropicMessage `json:"messages"`
	Temperature      float64             `json:"temperature,omitempty"`
	TopP             float64             `json:"top_p,omitempty"`
	StopSequences    []string            `json:"stop_sequences,omitempty"`
	Tools            []anthropicTool     `json:"tools,omitempty"`
}

type anthropicMessage struct {
	// user or assistant
	Role    string             `json:"role"`
	Content []anthropicContent `json:"content"`
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
	// tool_use
	ID    string `json:"id,omitempty"`
	Name  string `json:"name,omitempty"`
	Input any    `json:"input,omitempty"`
	// tool_result
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
}

type anthropicTool struct {
	Name        string               `json:"name"`
	Description string               `json:"description,omitempty"`
	InputSchema anthropicInputSchema `json:"input_schema"`
}

type anthropicInputSchema struct {
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties,omitempty"`
	Required   []string       `json:"required,omitempty"`
}

type anthropicOutput struct {
	Type       string             `json:"type"`
	Role       string             `json:"role"`
	Content    []anthropicContent `json:"content"`
	StopReason string             `json:"stop_reason"`
	Usage      struct {
		InputTokens  int64 `json:"input_tokens"`
		OutputTokens int64 `json:"output_tokens"`
	} `json:"usage"`
}

func toTools(tools []llms.Tool) []anthropicTool {
	var res []anthropicTool
	for _, tool := range tools {
		if tool.Function == nil {
			continue
		}
		t := anthropicTool{
			Name:        tool.Function.Name,
			Description: tool.Function.Description,
			InputSchema: anthropicInputSchema{
				Type:       "object",
				Properties: schema.Properties(tool.Function.Parameters),
			},
		}
		if tool.Function.Parameters != nil {
			t.InputSchema.Required = tool.Function.Parameters.Required
		}
		res = append(res, t)
	}
	return res
}

// processMessages returns the conversation and the system prompt.
// Messages of the same role are merged, so tool results of one
// assistant turn are sent in one user message.
func processMessages(messages []llms.Message) ([]*anthropicMessage, string, error) {
	var system []string
	res := make([]*anthropicMessage, 0, len(messages))

	add := func(role string, content ...anthropicContent) {
		if len(content) == 0 {
			return
		}
		if n := len(res); n > 0 && res[n-1].Role == role {
			res[n-1].Content = append(res[n-1].Content, content...)
			return
		}
		res = append(res, &anthropicMessage{Role: role, Content: content})
	}

	for _, msg := range messages {
		switch msg.Role {
		case llms.RoleSystem:
			system = append(system, msg.Text())

		case llms.RoleHuman:
			add("user", textContent(msg)...)

		case llms.RoleAI:
			content := textContent(msg)
			for _, tc := range msg.ToolCalls() {
				input := map[string]any{}
				if args := tc.Arguments(); args != "" {
					if err := json.Unmarshal([]byte(args), &input); err != nil {
						return nil, "", errors.Wrapf(err, "bedrock: invalid arguments of tool call %q", tc.ID)
					}
				}
				content = append(content, anthropicContent{
					Type:  anthropicContentTypeToolUse,
					ID:    tc.ID,
					Name:  tc.Name(),
					Input: input,
				})
			}
			add("assistant", content...)

		case llms.RoleTool:
			responses := msg.ToolResponses()
			if len(responses) == 0 {
				return nil, "", errors.New("bedrock: tool message without tool response")
			}
			for _, tr := range responses {
				add("user", anthropicContent{
					Type:      anthropicContentTypeToolResult,
					ToolUseID: tr.ToolCallID,
					Content:   tr.Content,
				})
			}

		default:
			return nil, "", errors.Newf("bedrock: unsupported role %q", msg.Role)
		}
	}
	return res, strings.Join(system, "\n"), nil
}

func textContent(msg llms.Message) []anthropicContent {
	var res []anthropicContent
	for _, p := range msg.Parts {
		if tc, ok := p.(llms.TextContent); ok && tc.Text != "" {
			res = append(res, anthropicContent{Type: anthropicContentTypeText, Text: tc.Text})
		}
	}
	return res
}

func convertOutput(output *anthropicOutput) (*llms.ContentResponse, error) {
	switch output.StopReason {
	case anthropicStopReasonEndTurn, anthropicStopReasonToolUse, anthropicStopReasonStopSeq, "":
	case anthropicStopReasonMaxTokens:
		return nil, errors.New("bedrock: completed due to max_tokens, try increasing max tokens")
	default:
		return nil, errors.Newf("bedrock: completed due to %s", output.StopReason)
	}
	if len(output.Content) == 0 {
		return nil, errors.WithMessage(llms.ErrEmptyResponse, "bedrock")
	}

	choice := &llms.ContentChoice{
		StopReason: output.StopReason,
		GenerationInfo: map[string]any{
			"InputTokens":  output.Usage.InputTokens,
			"OutputTokens": output.Usage.OutputTokens,
			"TotalTokens":  output.Usage.InputTokens + output.Usage.OutputTokens,
		},
	}

	var text strings.Builder
	for _, c := range output.Content {
		switch c.Type {
		case anthropicContentTypeText:
			text.WriteString(c.Text)
		case anthropicContentTypeToolUse:
			args, err := json.Marshal(c.Input)
			if err != nil {
				return nil, errors.Wrap(err, "bedrock: failed to marshal tool arguments")
			}
			choice.ToolCalls = append(choice.ToolCalls, llms.ToolCall{
				ID:   c.ID,
				Type: llms.ToolTypeFunction,
				FunctionCall: &llms.FunctionCall{
					Name:      c.Name,
					Arguments: string(args),
				},
			})
		}
	}
	choice.Content = text.String()

	return &llms.ContentResponse{Choices: []*llms.ContentChoice{choice}}, nil
}
