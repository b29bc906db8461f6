package bedrock

// Anthropic models served by Bedrock, direct IDs and US inference profiles.
const (
	ModelAnthropicClaude3Haiku   = "anthropic.claude-3-haiku-20240307-v1:0"
	ModelAnthropicClaude35Sonnet = "anthropic.claude-3-5-sonnet-20240620-v1:0"
	ModelAnthropicClaude35Haiku  = "us.anthropic.claude-3-5-haiku-20241022-v1:0"
	ModelAnthropicClaude37Sonnet = "us.anthropic.claude-3-7-sonnet-20250219-v1:0"
	ModelAnthropicClaudeSonnet4  = "us.anthropic.claude-sonnet-4-20250514-v1:0"
	ModelAnthropicClaudeSonnet45 = "us.anthropic.claude-sonnet-4-5-20250929-v1:0"
)

const (
	DefaultModel     = ModelAnthropicClaude35Haiku
	DefaultMaxTokens = 2048
)

const (
	anthropicBedrockVersion = "bedrock-2023-05-31"

	anthropicStopReasonEndTurn   = "end_turn"
	anthropicStopReasonToolUse   = "tool_use"
	anthropicStopReasonStopSeq   = "stop_sequence"
	anthropicStopReasonMaxTokens = "max_tokens"

	anthropicContentTypeText       = "text"
	anthropicContentTypeToolUse    = "tool_use"
	anthropicContentTypeToolResult = "tool_result"
)

type options struct {
	modelID   string
	maxTokens int
	region    string
	client    InvokeModelAPI
}

// Option is an option for the Bedrock LLM.
type Option func(*options)

// WithModel sets the model ID or inference profile to use.
func WithModel(modelID string) Option {
	return func(o *options) {
		o.modelID = modelID
	}
}

// WithMaxTokens sets the default number of tokens to generate.
func WithMaxTokens(maxTokens int) Option {
	return func(o *options) {
		o.maxTokens = maxTokens
	}
}

// WithRegion sets the AWS region, when the client is created from the default config.
func WithRegion(region string) Option {
	return func(o *options) {
		o.region = region
	}
}

// WithClient sets the Bedrock runtime client to use.
func WithClient(client InvokeModelAPI) Option {
	return func(o *options) {
		o.client = client
	}
}
