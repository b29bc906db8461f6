package agent

import (
	"net/http"

	"github.com/effective-security/mcpagent/callbacks"
	"github.com/effective-security/mcpagent/mcpclient"
	"github.com/effective-security/mcpagent/pkg/llms"
	"github.com/effective-security/mcpagent/pkg/prompts"
	"github.com/effective-security/mcpagent/store"
)

// Option configures the agent
type Option func(*Agent)

// WithName sets the agent name used in logs and metrics
func WithName(name string) Option {
	return func(a *Agent) {
		a.name = name
	}
}

// WithModelName sets the model name used in logs and metrics
func WithModelName(name string) Option {
	return func(a *Agent) {
		a.modelName = name
	}
}

// WithSystemPrompt sets the system prompt template
func WithSystemPrompt(p prompts.PromptTemplate) Option {
	return func(a *Agent) {
		a.prompt = p
	}
}

// WithOpener sets the MCP session opener
func WithOpener(opener mcpclient.Opener) Option {
	return func(a *Agent) {
		a.opener = opener
	}
}

// WithHTTPClient sets the HTTP client for token exchange and SSE servers
func WithHTTPClient(client *http.Client) Option {
	return func(a *Agent) {
		a.httpClient = client
	}
}

// WithCheckpointer enables checkpoints and Resume
func WithCheckpointer(cp store.Checkpointer) Option {
	return func(a *Agent) {
		a.checkpointer = cp
	}
}

// WithInterruptBeforeTools pauses the run before the tool node,
// the run is continued with Resume.
func WithInterruptBeforeTools() Option {
	return func(a *Agent) {
		a.interruptBeforeTools = true
	}
}

// WithRecursionLimit sets the max number of steps per run
func WithRecursionLimit(limit int) Option {
	return func(a *Agent) {
		a.recursionLimit = limit
	}
}

// WithCallback adds the callback
func WithCallback(cb callbacks.Callback) Option {
	return func(a *Agent) {
		a.callbacks.Add(cb)
	}
}

// WithCallOptions sets options for every model call
func WithCallOptions(opts ...llms.CallOption) Option {
	return func(a *Agent) {
		a.callOptions = append(a.callOptions, opts...)
	}
}
