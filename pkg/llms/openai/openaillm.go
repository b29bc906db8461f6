package openai

import (
	"context"
	"encoding/json"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpagent/pkg/llms"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/param"
	"github.com/openai/openai-go/v3/shared"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpagent/pkg/llms", "openai")

var (
	ErrMissingToken     = errors.New("openai: missing API key, set it in the OPENAI_API_KEY environment variable")
	ErrMissingBaseURL   = errors.New("openai: base URL is required for Azure")
	ErrUnsupportedTool  = errors.New("openai: unsupported tool type")
	ErrUnsupportedRole  = errors.New("openai: unsupported message role")
	ErrInvalidToolParts = errors.New("openai: tool message must have exactly one tool response")
)

// LLM is an OpenAI compatible chat model
type LLM struct {
	client  openai.Client
	model   string
	apiType APIType
}

var _ llms.Model = (*LLM)(nil)

// New returns a new OpenAI LLM.
func New(opts ...Option) (*LLM, error) {
	o := &options{
		token:        os.Getenv(tokenEnvVarName),
		model:        os.Getenv(modelEnvVarName),
		baseURL:      os.Getenv(baseURLEnvVarName),
		organization: os.Getenv(organizationEnvVarName),
		apiType:      APITypeOpenAI,
		maxRetries:   DefaultMaxRetries,
	}
	for _, opt := range opts {
		opt(o)
	}

	if o.token == "" {
		return nil, ErrMissingToken
	}

	model := values.StringsCoalesce(o.model, DefaultChatModel)
	reqOpts := []option.RequestOption{
		option.WithAPIKey(o.token),
		option.WithMaxRetries(o.maxRetries),
	}

	switch o.apiType {
	case APITypeAzure:
		if o.baseURL == "" {
			return nil, ErrMissingBaseURL
		}
		// /openai/deployments/{deployment}/chat/completions?api-version={version}
		reqOpts = append(reqOpts,
			option.WithBaseURL(strings.TrimSuffix(o.baseURL, "/")+"/openai/deployments/"+model+"/"),
			option.WithQuery("api-version", values.StringsCoalesce(o.apiVersion, DefaultAPIVersion)),
			option.WithHeader("api-key", o.token),
		)
	case APITypeOpenAI, "":
		reqOpts = append(reqOpts, option.WithBaseURL(values.StringsCoalesce(o.baseURL, DefaultBaseURL)))
		if o.organization != "" {
			reqOpts = append(reqOpts, option.WithOrganization(o.organization))
		}
	default:
		return nil, errors.Errorf("openai: unsupported API type: %s", o.apiType)
	}
	if o.httpClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(o.httpClient))
	}

	return &LLM{
		client:  openai.NewClient(reqOpts...),
		model:   model,
		apiType: o.apiType,
	}, nil
}

// GetProviderType implements the Model interface.
func (o *LLM) GetProviderType() llms.ProviderType {
	if o.apiType == APITypeAzure {
		return llms.ProviderAzure
	}
	return llms.ProviderOpenAI
}

// GetName returns the default model name
func (o *LLM) GetName() string {
	return o.model
}

// GenerateContent implements the Model interface.
func (o *LLM) GenerateContent(ctx context.Context, messages []llms.Message, options ...llms.CallOption) (*llms.ContentResponse, error) {
	opts := llms.NewCallOptions(llms.CallOptions{Model: o.model}, options...)

	chatMsgs, err := ToChatMessages(messages)
	if err != nil {
		return nil, err
	}

	req := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(opts.Model),
		Messages: chatMsgs,
	}
	if opts.MaxTokens > 0 {
		req.MaxCompletionTokens = param.NewOpt(int64(opts.MaxTokens))
	}
	if opts.Temperature > 0 {
		req.Temperature = param.NewOpt(opts.Temperature)
	}
	if opts.TopP > 0 {
		req.TopP = param.NewOpt(opts.TopP)
	}
	if len(opts.StopWords) > 0 {
		req.Stop.OfStringArray = opts.StopWords
	}
	for _, tool := range opts.Tools {
		t, err := toolFromTool(tool)
		if err != nil {
			return nil, err
		}
		req.Tools = append(req.Tools, t)
	}
	if len(req.Tools) > 0 {
		req.ToolChoice = toolChoice(opts.ToolChoice)
	}

	result, err := o.client.Chat.Completions.New(ctx, req)
	if err != nil {
		return nil, errors.Wrap(err, "openai: failed to create chat completion")
	}
	if len(result.Choices) == 0 {
		return nil, llms.ErrEmptyResponse
	}

	logger.ContextKV(ctx, xlog.DEBUG,
		"id", result.ID,
		"model", result.Model,
		"choices", len(result.Choices),
		"tokens", result.Usage.TotalTokens,
	)

	choices := make([]*llms.ContentChoice, len(result.Choices))
	for i, c := range result.Choices {
		choices[i] = &llms.ContentChoice{
			Content:    c.Message.Content,
			StopReason: c.FinishReason,
			GenerationInfo: map[string]any{
				"InputTokens":  result.Usage.PromptTokens,
				"OutputTokens": result.Usage.CompletionTokens,
				"TotalTokens":  result.Usage.TotalTokens,
				"ID":           result.ID,
				"Index":        i,
			},
		}
		for _, tool := range c.Message.ToolCalls {
			if tool.Type != llms.ToolTypeFunction {
				continue
			}
			choices[i].ToolCalls = append(choices[i].ToolCalls, llms.ToolCall{
				ID:   tool.ID,
				Type: tool.Type,
				FunctionCall: &llms.FunctionCall{
					Name:      tool.Function.Name,
					Arguments: tool.Function.Arguments,
				},
			})
		}
	}
	return &llms.ContentResponse{Choices: choices}, nil
}

// ToChatMessages converts messages to the OpenAI chat format.
func ToChatMessages(messages []llms.Message) ([]openai.ChatCompletionMessageParamUnion, error) {
	chatMsgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, mc := range messages {
		switch mc.Role {
		case llms.RoleSystem:
			chatMsgs = append(chatMsgs, openai.SystemMessage(mc.Text()))
		case llms.RoleHuman:
			chatMsgs = append(chatMsgs, openai.UserMessage(mc.Text()))
		case llms.RoleAI:
			var msg openai.ChatCompletionAssistantMessageParam
			if text := mc.Text(); text != "" {
				msg.Content.OfString = param.NewOpt(text)
			}
			for _, tc := range mc.ToolCalls() {
				msg.ToolCalls = append(msg.ToolCalls, openai.ChatCompletionMessageToolCallUnionParam{
					OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
						ID: tc.ID,
						Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
							Name:      tc.Name(),
							Arguments: tc.Arguments(),
						},
					},
				})
			}
			chatMsgs = append(chatMsgs, openai.ChatCompletionMessageParamUnion{OfAssistant: &msg})
		case llms.RoleTool:
			responses := mc.ToolResponses()
			if len(responses) != 1 || len(mc.Parts) != 1 {
				return nil, errors.WithMessagef(ErrInvalidToolParts, "got %d parts", len(mc.Parts))
			}
			chatMsgs = append(chatMsgs, openai.ToolMessage(responses[0].Content, responses[0].ToolCallID))
		default:
			return nil, errors.WithMessagef(ErrUnsupportedRole, "%q", mc.Role)
		}
	}
	return chatMsgs, nil
}

// toolFromTool converts an llms.Tool to a function tool.
func toolFromTool(t llms.Tool) (openai.ChatCompletionToolUnionParam, error) {
	if t.Type != llms.ToolTypeFunction || t.Function == nil {
		return openai.ChatCompletionToolUnionParam{}, errors.WithMessagef(ErrUnsupportedTool, "%q", t.Type)
	}
	params, err := functionParameters(t.Function.Parameters)
	if err != nil {
		return openai.ChatCompletionToolUnionParam{}, errors.WithMessagef(err, "tool %q", t.Function.Name)
	}
	def := shared.FunctionDefinitionParam{
		Name:       t.Function.Name,
		Parameters: params,
	}
	if t.Function.Description != "" {
		def.Description = param.NewOpt(t.Function.Description)
	}
	return openai.ChatCompletionFunctionTool(def), nil
}

func functionParameters(s *jsonschema.Schema) (shared.FunctionParameters, error) {
	if s == nil {
		return shared.FunctionParameters{"type": "object", "properties": map[string]any{}}, nil
	}
	js, err := json.Marshal(s)
	if err != nil {
		return nil, errors.Wrap(err, "openai: failed to encode parameters")
	}
	var res shared.FunctionParameters
	if err := json.Unmarshal(js, &res); err != nil {
		return nil, errors.Wrap(err, "openai: failed to decode parameters")
	}
	return res, nil
}

// toolChoice accepts "none", "auto", "required" or llms.ToolChoice naming a function.
func toolChoice(choice any) openai.ChatCompletionToolChoiceOptionUnionParam {
	var tc *llms.ToolChoice
	switch c := choice.(type) {
	case string:
		if c != "" {
			return openai.ChatCompletionToolChoiceOptionUnionParam{OfAuto: param.NewOpt(c)}
		}
	case llms.ToolChoice:
		tc = &c
	case *llms.ToolChoice:
		tc = c
	}
	if tc != nil && tc.Function != nil {
		return openai.ToolChoiceOptionFunctionToolChoice(openai.ChatCompletionNamedToolChoiceFunctionParam{
			Name: tc.Function.Name,
		})
	}
	return openai.ChatCompletionToolChoiceOptionUnionParam{}
}
