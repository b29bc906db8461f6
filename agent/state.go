package agent

import (
	"slices"

	"github.com/effective-security/mcpagent/mcpconfig"
	"github.com/effective-security/mcpagent/pkg/llms"
	"github.com/invopop/jsonschema"
)

// Action is a tool implemented by the caller.
// When the model requests an action, the run ends and the caller
// is expected to perform it.
type Action struct {
	Name        string             `json:"name" yaml:"name" validate:"required,min=1,max=64"`
	Description string             `json:"description,omitempty" yaml:"description,omitempty"`
	Parameters  *jsonschema.Schema `json:"parameters,omitempty" yaml:"parameters,omitempty"`
}

// State is the conversation state threaded through the graph
type State struct {
	Messages []llms.Message `json:"messages"`
	Actions  []Action       `json:"actions,omitempty"`
	// Language is the preferred language of the answers
	Language string `json:"language,omitempty"`
	// MCPConfig is the tool servers configuration,
	// the default configuration is used when empty
	MCPConfig mcpconfig.Config `json:"mcp_config,omitempty"`
}

// Reduce merges a node update into the state:
// messages are appended, other fields are replaced when set.
func Reduce(state, update State) State {
	res := state
	res.Messages = append(slices.Clip(state.Messages), update.Messages...)
	if len(update.Actions) > 0 {
		res.Actions = update.Actions
	}
	if update.Language != "" {
		res.Language = update.Language
	}
	if len(update.MCPConfig) > 0 {
		res.MCPConfig = update.MCPConfig
	}
	return res
}

// LastMessage returns the last message of the conversation
func (s State) LastMessage() (llms.Message, bool) {
	if len(s.Messages) == 0 {
		return llms.Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}

// PendingToolCalls returns the tool calls of the last message,
// if it was produced by the model
func (s State) PendingToolCalls() []llms.ToolCall {
	last, ok := s.LastMessage()
	if !ok || last.Role != llms.RoleAI {
		return nil
	}
	return last.ToolCalls()
}

// FindAction returns the action with the name
func (s State) FindAction(name string) *Action {
	for i := range s.Actions {
		if s.Actions[i].Name == name {
			return &s.Actions[i]
		}
	}
	return nil
}
