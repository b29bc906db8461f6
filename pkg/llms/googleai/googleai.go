// Package googleai implements llms.Model for Gemini models,
// served by Gemini API or Vertex AI.
package googleai

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpagent/pkg/llms"
	"github.com/effective-security/mcpagent/pkg/llms/googleai/internal/genaiutils"
	"github.com/effective-security/xlog"
	"github.com/google/uuid"
	"google.golang.org/genai"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpagent/pkg/llms", "googleai")

var (
	ErrMissingAPIKey         = errors.New("googleai: missing API key, set it in the GOOGLE_API_KEY environment variable")
	ErrUnknownPartInResponse = errors.New("googleai: unknown part type in generation response")
	ErrUnsupportedRole       = errors.New("googleai: unsupported role")
)

const (
	RoleModel = "model"
	RoleUser  = "user"
)

// GoogleAI is a type that represents a Google AI API client.
type GoogleAI struct {
	client *genai.Client
	opts   Options
}

var _ llms.Model = (*GoogleAI)(nil)

// New creates a new GoogleAI client.
func New(ctx context.Context, opts ...Option) (*GoogleAI, error) {
	clientOptions := DefaultOptions()
	for _, opt := range opts {
		opt(&clientOptions)
	}
	clientOptions.EnsureAuthPresent()

	if clientOptions.Backend == genai.BackendGeminiAPI && clientOptions.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	cfg := &genai.ClientConfig{
		Project:     clientOptions.CloudProject,
		Location:    clientOptions.CloudLocation,
		APIKey:      clientOptions.APIKey,
		Credentials: clientOptions.Credentials,
		HTTPClient:  clientOptions.HTTPClient,
		Backend:     clientOptions.Backend,
	}
	if clientOptions.BaseURL != "" {
		cfg.HTTPOptions.BaseURL = clientOptions.BaseURL
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "googleai: failed to create client")
	}
	return &GoogleAI{
		client: client,
		opts:   clientOptions,
	}, nil
}

// GetName implements the Model interface.
func (g *GoogleAI) GetName() string {
	return g.opts.DefaultModel
}

// GetProviderType implements the Model interface.
func (g *GoogleAI) GetProviderType() llms.ProviderType {
	return llms.ProviderGoogleAI
}

// GenerateContent implements the [llms.Model] interface.
func (g *GoogleAI) GenerateContent(ctx context.Context, messages []llms.Message, options ...llms.CallOption) (*llms.ContentResponse, error) {
	opts := llms.NewCallOptions(llms.CallOptions{
		Model:       g.opts.DefaultModel,
		MaxTokens:   g.opts.DefaultMaxTokens,
		Temperature: g.opts.DefaultTemperature,
		TopP:        g.opts.DefaultTopP,
	}, options...)

	callCfg := &genai.GenerateContentConfig{
		StopSequences:   opts.StopWords,
		CandidateCount:  1,
		MaxOutputTokens: int32(opts.MaxTokens),
		Temperature:     genaiutils.Float32Ptr(float32(opts.Temperature)),
		TopP:            genaiutils.Float32Ptr(float32(opts.TopP)),
		SafetySettings:  safetySettings(g.opts.HarmThreshold),
	}

	var err error
	if callCfg.Tools, err = genaiutils.ConvertTools(opts.Tools); err != nil {
		return nil, err
	}
	if len(callCfg.Tools) > 0 {
		callCfg.ToolConfig = genaiutils.ConvertToolChoice(opts.ToolChoice)
	}

	system, history, err := ConvertMessages(messages)
	if err != nil {
		return nil, err
	}
	callCfg.SystemInstruction = system

	resp, err := g.client.Models.GenerateContent(ctx, opts.Model, history, callCfg)
	if err != nil {
		return nil, errors.Wrap(err, "googleai: failed to generate content")
	}

	logger.ContextKV(ctx, xlog.DEBUG,
		"model", opts.Model,
		"candidates", len(resp.Candidates))

	if len(resp.Candidates) == 0 {
		return nil, errors.WithMessage(llms.ErrEmptyResponse, "googleai")
	}
	return ConvertCandidates(resp.Candidates, resp.UsageMetadata)
}

func safetySettings(threshold genai.HarmBlockThreshold) []*genai.SafetySetting {
	categories := []genai.HarmCategory{
		genai.HarmCategoryDangerousContent,
		genai.HarmCategoryHarassment,
		genai.HarmCategoryHateSpeech,
		genai.HarmCategorySexuallyExplicit,
	}
	res := make([]*genai.SafetySetting, 0, len(categories))
	for _, c := range categories {
		res = append(res, &genai.SafetySetting{Category: c, Threshold: threshold})
	}
	return res
}

// ConvertMessages returns the system instruction and the conversation history.
// Consecutive tool results are folded into one user content,
// as Gemini expects all function responses of a turn together.
func ConvertMessages(messages []llms.Message) (*genai.Content, []*genai.Content, error) {
	var system []*genai.Part
	history := make([]*genai.Content, 0, len(messages))

	for _, msg := range messages {
		switch msg.Role {
		case llms.RoleSystem:
			system = append(system, &genai.Part{Text: msg.Text()})

		case llms.RoleHuman:
			history = append(history, &genai.Content{
				Role:  RoleUser,
				Parts: textParts(msg),
			})

		case llms.RoleAI:
			parts := textParts(msg)
			for _, tc := range msg.ToolCalls() {
				args := map[string]any{}
				if a := tc.Arguments(); a != "" {
					if err := json.Unmarshal([]byte(a), &args); err != nil {
						return nil, nil, errors.Wrapf(err, "googleai: invalid arguments of tool call %q", tc.ID)
					}
				}
				parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{
					ID:   tc.ID,
					Name: tc.Name(),
					Args: args,
				}})
			}
			history = append(history, &genai.Content{Role: RoleModel, Parts: parts})

		case llms.RoleTool:
			var parts []*genai.Part
			for _, tr := range msg.ToolResponses() {
				parts = append(parts, &genai.Part{FunctionResponse: &genai.FunctionResponse{
					ID:       tr.ToolCallID,
					Name:     tr.Name,
					Response: map[string]any{"output": tr.Content},
				}})
			}
			if len(parts) == 0 {
				return nil, nil, errors.New("googleai: tool message without tool response")
			}
			if n := len(history); n > 0 && isFunctionResponses(history[n-1]) {
				history[n-1].Parts = append(history[n-1].Parts, parts...)
				continue
			}
			history = append(history, &genai.Content{Role: RoleUser, Parts: parts})

		default:
			return nil, nil, errors.WithMessagef(ErrUnsupportedRole, "%q", msg.Role)
		}
	}

	var sys *genai.Content
	if len(system) > 0 {
		sys = &genai.Content{Parts: system}
	}
	return sys, history, nil
}

func textParts(msg llms.Message) []*genai.Part {
	var parts []*genai.Part
	for _, p := range msg.Parts {
		if tc, ok := p.(llms.TextContent); ok && tc.Text != "" {
			parts = append(parts, &genai.Part{Text: tc.Text})
		}
	}
	return parts
}

func isFunctionResponses(c *genai.Content) bool {
	if c.Role != RoleUser || len(c.Parts) == 0 {
		return false
	}
	for _, p := range c.Parts {
		if p.FunctionResponse == nil {
			return false
		}
	}
	return true
}

// ConvertCandidates converts a sequence of genai.Candidate to a response.
// Function calls without ID are assigned a generated one.
func ConvertCandidates(candidates []*genai.Candidate, usage *genai.GenerateContentResponseUsageMetadata) (*llms.ContentResponse, error) {
	var res llms.ContentResponse

	for _, candidate := range candidates {
		var text strings.Builder
		var toolCalls []llms.ToolCall

		if candidate.Content != nil {
			for _, part := range candidate.Content.Parts {
				switch {
				case part.FunctionCall != nil:
					args, err := json.Marshal(part.FunctionCall.Args)
					if err != nil {
						return nil, errors.Wrap(err, "googleai: failed to marshal tool arguments")
					}
					id := part.FunctionCall.ID
					if id == "" {
						id = "call_" + uuid.NewString()
					}
					toolCalls = append(toolCalls, llms.ToolCall{
						ID:   id,
						Type: llms.ToolTypeFunction,
						FunctionCall: &llms.FunctionCall{
							Name:      part.FunctionCall.Name,
							Arguments: string(args),
						},
					})
				case part.Thought:
					// reasoning is not part of the answer
				case part.Text != "":
					text.WriteString(part.Text)
				default:
					return nil, ErrUnknownPartInResponse
				}
			}
		}

		info := map[string]any{}
		if usage != nil {
			info["InputTokens"] = int64(usage.PromptTokenCount)
			info["OutputTokens"] = int64(usage.CandidatesTokenCount + usage.ToolUsePromptTokenCount + usage.ThoughtsTokenCount)
			info["TotalTokens"] = int64(usage.TotalTokenCount)
		}

		res.Choices = append(res.Choices, &llms.ContentChoice{
			Content:        text.String(),
			StopReason:     string(candidate.FinishReason),
			GenerationInfo: info,
			ToolCalls:      toolCalls,
		})
	}
	return &res, nil
}
