package main

import (
	"context"
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpagent/agent"
	"github.com/effective-security/mcpagent/callbacks"
	"github.com/effective-security/mcpagent/mcpconfig"
	"github.com/effective-security/mcpagent/pkg/llmfactory"
	"github.com/effective-security/mcpagent/pkg/llms"
	"github.com/effective-security/mcpagent/pkg/prompts"
	"github.com/effective-security/mcpagent/store"
	"github.com/effective-security/x/configloader"
	"github.com/go-playground/validator/v10"
)

// Store types
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// Config is the configuration of the agent
type Config struct {
	// LLM specifies the model providers
	LLM llmfactory.Config `json:"llm" yaml:"llm"`
	// Model is the preferred model, the default model of the default provider is used when empty
	Model string `json:"model,omitempty" yaml:"model,omitempty"`

	// MCPConfig specifies the tool servers, the math server is used when empty
	MCPConfig     mcpconfig.Config `json:"mcp_config,omitempty" yaml:"mcp_config,omitempty"`
	// MCPConfigFile is loaded when MCPConfig is empty
	MCPConfigFile string           `json:"mcp_config_file,omitempty" yaml:"mcp_config_file,omitempty"`
	Actions       []agent.Action   `json:"actions,omitempty" yaml:"actions,omitempty" validate:"dive"`
	Language      string           `json:"language,omitempty" yaml:"language,omitempty"`

	// SystemPrompt is jinja2 template with tools, actions and language variables
	SystemPrompt string `json:"system_prompt,omitempty" yaml:"system_prompt,omitempty"`
	// React runs the model and tools in a single step
	React                bool `json:"react,omitempty" yaml:"react,omitempty"`
	RecursionLimit       int  `json:"recursion_limit,omitempty" yaml:"recursion_limit,omitempty" validate:"gte=0"`
	InterruptBeforeTools bool `json:"interrupt_before_tools,omitempty" yaml:"interrupt_before_tools,omitempty"`

	Store  StoreConfig `json:"store" yaml:"store"`
	Listen string      `json:"listen,omitempty" yaml:"listen,omitempty"`
}

// StoreConfig specifies the checkpointer
type StoreConfig struct {
	Type   string `json:"type,omitempty" yaml:"type,omitempty" validate:"omitempty,oneof=memory redis"`
	URL    string `json:"url,omitempty" yaml:"url,omitempty" validate:"required_if=Type redis"`
	Prefix string `json:"prefix,omitempty" yaml:"prefix,omitempty"`
}

var validate = validator.New()

// LoadConfig returns the configuration from the file,
// environment variables in the file are expanded.
// Empty file name returns the defaults.
func LoadConfig(file string) (*Config, error) {
	cfg := new(Config)
	if file != "" {
		if err := configloader.UnmarshalAndExpand(file, cfg); err != nil {
			return nil, errors.WithMessagef(err, "unable to load config %q", file)
		}
	}

	if cfg.Store.Type == "" {
		cfg.Store.Type = StoreMemory
	}
	if cfg.Listen == "" {
		cfg.Listen = ":8080"
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	if len(cfg.MCPConfig) > 0 {
		if err := cfg.MCPConfig.Validate(); err != nil {
			return nil, err
		}
	} else if cfg.MCPConfigFile != "" {
		mcpCfg, err := mcpconfig.Load(cfg.MCPConfigFile)
		if err != nil {
			return nil, err
		}
		cfg.MCPConfig = mcpCfg
	}
	return cfg, nil
}

// ToolServers returns the configured tool servers, or the default
func (c *Config) ToolServers() mcpconfig.Config {
	if len(c.MCPConfig) == 0 {
		return mcpconfig.Default()
	}
	return c.MCPConfig
}

// NewState returns the state for the question
func (c *Config) NewState(question string) agent.State {
	return agent.State{
		Messages:  []llms.Message{llms.HumanMessage(question)},
		Actions:   c.Actions,
		Language:  c.Language,
		MCPConfig: c.ToolServers(),
	}
}

// NewModel is the model constructor, tests replace it
var NewModel = func(cfg *Config) (llms.Model, error) {
	f := llmfactory.New(&cfg.LLM)
	if cfg.Model != "" {
		return f.ModelByName(cfg.Model)
	}
	return f.DefaultModel()
}

// NewCheckpointer returns the configured store
func (c *Config) NewCheckpointer(ctx context.Context) (store.Checkpointer, error) {
	switch c.Store.Type {
	case StoreRedis:
		return store.NewRedisStoreFromURL(ctx, c.Store.URL, c.Store.Prefix)
	default:
		return store.NewMemoryStore(), nil
	}
}

// NewAgent returns the agent for the configuration
func (c *Config) NewAgent(ctx context.Context, opts ...agent.Option) (*agent.Agent, error) {
	model, err := NewModel(c)
	if err != nil {
		return nil, err
	}
	cp, err := c.NewCheckpointer(ctx)
	if err != nil {
		return nil, err
	}

	options := []agent.Option{
		agent.WithCheckpointer(cp),
		agent.WithHTTPClient(http.DefaultClient),
		agent.WithCallback(callbacks.NewPackageLogger(logger)),
	}
	if c.Model != "" {
		options = append(options, agent.WithModelName(c.Model))
	}
	if c.SystemPrompt != "" {
		options = append(options, agent.WithSystemPrompt(prompts.PromptTemplate{
			Template:       c.SystemPrompt,
			TemplateFormat: prompts.TemplateFormatJinja2,
		}))
	}
	if c.RecursionLimit > 0 {
		options = append(options, agent.WithRecursionLimit(c.RecursionLimit))
	}
	if c.InterruptBeforeTools {
		options = append(options, agent.WithInterruptBeforeTools())
	}
	options = append(options, opts...)

	if c.React {
		return agent.NewReact(model, options...)
	}
	return agent.New(model, options...)
}
