package agent

import (
	"github.com/effective-security/mcpagent/pkg/prompts"
)

// DefaultSystemPrompt is the jinja2 template of the system instruction.
// The template receives `language`, `tools` and `actions` values.
const DefaultSystemPrompt = `You are a helpful assistant.{% if tools %} Use the tools when they help to answer the question: {{ tools | join(", ") }}.{% endif %}{% if actions %} The user interface can perform these actions for the user: {{ actions | join(", ") }}.{% endif %}{% if language %} Always respond in {{ language }}.{% endif %}`

// DefaultPrompt returns the default system prompt template
func DefaultPrompt() prompts.PromptTemplate {
	return prompts.PromptTemplate{
		Template:       DefaultSystemPrompt,
		TemplateFormat: prompts.TemplateFormatJinja2,
	}
}

func (a *Agent) systemPrompt(state State, toolNames []string) (string, error) {
	actions := make([]string, 0, len(state.Actions))
	for _, act := range state.Actions {
		actions = append(actions, act.Name)
	}
	return a.prompt.Format(map[string]any{
		"language": state.Language,
		"tools":    toolNames,
		"actions":  actions,
	})
}
