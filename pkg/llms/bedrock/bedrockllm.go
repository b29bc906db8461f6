// Package bedrock implements llms.Model for Anthropic models served by Amazon Bedrock.
package bedrock

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpagent/pkg/llms"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpagent/pkg/llms", "bedrock")

// ErrUnsupportedProvider is returned for models of providers other than Anthropic.
var ErrUnsupportedProvider = errors.New("bedrock: unsupported provider")

// InvokeModelAPI is the part of bedrockruntime.Client used by the LLM.
type InvokeModelAPI interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// LLM is a Bedrock LLM implementation.
type LLM struct {
	modelID   string
	maxTokens int
	client    InvokeModelAPI
}

var _ llms.Model = (*LLM)(nil)

// New creates a new Bedrock LLM implementation.
// Without WithClient, the client is created from the default AWS config.
func New(ctx context.Context, opts ...Option) (*LLM, error) {
	o := &options{
		modelID:   DefaultModel,
		maxTokens: DefaultMaxTokens,
	}
	for _, opt := range opts {
		opt(o)
	}

	if provider := getProvider(o.modelID); provider != "anthropic" {
		return nil, errors.WithMessagef(ErrUnsupportedProvider, "%q", provider)
	}

	if o.client == nil {
		var loadOpts []func(*config.LoadOptions) error
		if o.region != "" {
			loadOpts = append(loadOpts, config.WithRegion(o.region))
		}
		cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			return nil, errors.Wrap(err, "bedrock: failed to load AWS config")
		}
		o.client = bedrockruntime.NewFromConfig(cfg)
	}

	return &LLM{
		modelID:   o.modelID,
		maxTokens: o.maxTokens,
		client:    o.client,
	}, nil
}

// GetName implements the Model interface.
func (l *LLM) GetName() string {
	return l.modelID
}

// GetProviderType implements the Model interface.
func (l *LLM) GetProviderType() llms.ProviderType {
	return llms.ProviderBedrock
}

// GenerateContent implements llms.Model.
func (l *LLM) GenerateContent(ctx context.Context, messages []llms.Message, options ...llms.CallOption) (*llms.ContentResponse, error) {
	opts := llms.NewCallOptions(llms.CallOptions{
		Model:     l.modelID,
		MaxTokens: l.maxTokens,
	}, options...)

	msgs, system, err := processMessages(messages)
	if err != nil {
		return nil, err
	}

	input := anthropicInput{
		AnthropicVersion: anthropicBedrockVersion,
		MaxTokens:        opts.MaxTokens,
		System:           system,
		Messages:         msgs,
		Temperature:      opts.Temperature,
		TopP:             opts.TopP,
		StopSequences:    opts.StopWords,
		Tools:            toTools(opts.Tools),
	}
	if input.MaxTokens <= 0 {
		input.MaxTokens = DefaultMaxTokens
	}

	body, err := json.Marshal(input)
	if err != nil {
		return nil, errors.Wrap(err, "bedrock: failed to marshal request")
	}

	resp, err := l.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(opts.Model),
		Accept:      aws.String("application/json"),
		ContentType: aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return nil, errors.Wrap(err, "bedrock: failed to invoke model")
	}

	var output anthropicOutput
	if err = json.Unmarshal(resp.Body, &output); err != nil {
		return nil, errors.Wrap(err, "bedrock: failed to unmarshal response")
	}

	logger.ContextKV(ctx, xlog.DEBUG,
		"model", opts.Model,
		"stop_reason", output.StopReason,
		"input_tokens", output.Usage.InputTokens,
		"output_tokens", output.Usage.OutputTokens)

	return convertOutput(&output)
}

// getProvider returns the model provider of the model ID
// or inference profile, like "us.anthropic.claude-3-5-haiku-20241022-v1:0".
func getProvider(modelID string) string {
	parts := strings.Split(modelID, ".")
	if len(parts) >= 2 && len(parts[0]) == 2 && strings.ToLower(parts[0]) == parts[0] {
		// region prefix of inference profile
		return parts[1]
	}
	return parts[0]
}
