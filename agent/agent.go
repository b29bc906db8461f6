package agent

import (
	"context"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpagent/callbacks"
	"github.com/effective-security/mcpagent/chatmodel"
	"github.com/effective-security/mcpagent/graph"
	"github.com/effective-security/mcpagent/mcpclient"
	"github.com/effective-security/mcpagent/pkg/llms"
	"github.com/effective-security/mcpagent/pkg/metricskey"
	"github.com/effective-security/mcpagent/pkg/prompts"
	"github.com/effective-security/mcpagent/store"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
	"github.com/go-playground/validator/v10"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpagent", "agent")

// Node names
const (
	ChatNodeName  = "chat_node"
	ToolNodeName  = "tool_node"
	ReactNodeName = "react_node"
)

// DefaultName is the agent name used when not configured
const DefaultName = "mcpagent"

// ErrNoModel is returned when the agent is created without a model
var ErrNoModel = errors.New("model is required")

// ErrToolsNotSupported is returned when the model provider has no tool calling
var ErrToolsNotSupported = errors.New("model does not support tool calling")

var validate = validator.New()

// Agent is a compiled tool calling agent
type Agent struct {
	name      string
	model     llms.Model
	modelName string
	prompt    prompts.PromptTemplate

	opener               mcpclient.Opener
	httpClient           *http.Client
	checkpointer         store.Checkpointer
	interruptBeforeTools bool
	recursionLimit       int
	callbacks            *callbacks.Fanout
	callOptions          []llms.CallOption

	runnable *graph.Runnable[State]
}

type namedModel interface {
	GetName() string
}

func newAgent(model llms.Model, opts ...Option) (*Agent, error) {
	if model == nil {
		return nil, ErrNoModel
	}
	if pt := model.GetProviderType(); !pt.Supports(llms.CapabilityFunctionCalling) {
		return nil, errors.WithMessagef(ErrToolsNotSupported, "provider %q", pt)
	}
	a := &Agent{
		name:           DefaultName,
		model:          model,
		prompt:         DefaultPrompt(),
		recursionLimit: graph.DefaultRecursionLimit,
		callbacks:      callbacks.NewFanout(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.modelName == "" {
		if nm, ok := model.(namedModel); ok {
			a.modelName = nm.GetName()
		}
	}
	a.modelName = values.StringsCoalesce(a.modelName, string(model.GetProviderType()))
	if a.httpClient == nil {
		a.httpClient = http.DefaultClient
	}
	if a.opener == nil {
		a.opener = mcpclient.NewOpener(mcpclient.WithHTTPClient(a.httpClient))
	}
	return a, nil
}

func (a *Agent) compileOptions() []graph.Option {
	opts := []graph.Option{graph.WithRecursionLimit(a.recursionLimit)}
	if a.checkpointer != nil {
		opts = append(opts, graph.WithCheckpointer(a.checkpointer))
	}
	if a.interruptBeforeTools {
		opts = append(opts, graph.WithInterruptBefore(ToolNodeName))
	}
	return opts
}

// New returns the agent running chat_node -> tool_node -> chat_node graph,
// where the tool node is entered for every model message with tool calls
// that do not name a caller action.
func New(model llms.Model, opts ...Option) (*Agent, error) {
	a, err := newAgent(model, opts...)
	if err != nil {
		return nil, err
	}

	g := graph.New(Reduce).
		AddNode(ChatNodeName, a.ChatNode).
		AddNode(ToolNodeName, a.ToolNode).
		SetEntryPoint(ChatNodeName).
		AddConditionalEdges(ChatNodeName, a.routeAfterChat, map[string]string{
			ToolNodeName: ToolNodeName,
			graph.END:    graph.END,
		}).
		AddEdge(ToolNodeName, ChatNodeName)

	a.runnable, err = g.Compile(a.compileOptions()...)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// NewReact returns the agent with a single node that opens the MCP sessions
// once and loops the model and tool calls until the model answers.
func NewReact(model llms.Model, opts ...Option) (*Agent, error) {
	a, err := newAgent(model, opts...)
	if err != nil {
		return nil, err
	}
	// the loop runs inside one step
	a.interruptBeforeTools = false

	g := graph.New(Reduce).
		AddNode(ReactNodeName, a.ReactNode).
		SetEntryPoint(ReactNodeName).
		AddEdge(ReactNodeName, graph.END)

	a.runnable, err = g.Compile(graph.WithCheckpointer(a.checkpointer))
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Name returns the agent name
func (a *Agent) Name() string {
	return a.name
}

// Invoke runs a turn of the conversation and returns the updated state.
// With a checkpointer, the thread can be resumed after an interrupt.
func (a *Agent) Invoke(ctx context.Context, state State, threadID string) (State, error) {
	if err := a.validateState(state); err != nil {
		return state, err
	}
	ctx = a.withChatContext(ctx, threadID)

	started := time.Now()
	metricskey.StatsAgentInvocations.IncrCounter(1, a.name)
	defer metricskey.PerfAgentInvoke.MeasureSince(started, a.name)

	logger.ContextKV(ctx, xlog.DEBUG,
		"status", "invoke",
		"agent", a.name,
		"thread", threadID,
		"messages", len(state.Messages))

	res, err := a.runnable.Invoke(ctx, state, threadID)
	if err != nil && !errors.Is(err, graph.ErrInterrupted) {
		logger.ContextKV(ctx, xlog.ERROR,
			"agent", a.name,
			"thread", threadID,
			"err", err.Error())
	}
	return res, err
}

// Resume continues an interrupted run of the thread
func (a *Agent) Resume(ctx context.Context, threadID string) (State, error) {
	ctx = a.withChatContext(ctx, threadID)
	metricskey.StatsAgentInvocations.IncrCounter(1, a.name)
	return a.runnable.Resume(ctx, threadID)
}

// GetState returns the last saved state of the thread,
// and the name of the next node, or graph.END if the run is complete.
func (a *Agent) GetState(ctx context.Context, threadID string) (State, string, error) {
	state, cp, err := a.runnable.GetState(ctx, threadID)
	if err != nil {
		return state, "", err
	}
	return state, cp.Next, nil
}

func (a *Agent) validateState(state State) error {
	if len(state.MCPConfig) > 0 {
		if err := state.MCPConfig.Validate(); err != nil {
			return err
		}
	}
	for i := range state.Actions {
		if err := validate.Struct(&state.Actions[i]); err != nil {
			return errors.Wrapf(err, "invalid action at %d", i)
		}
	}
	return nil
}

func (a *Agent) withChatContext(ctx context.Context, threadID string) context.Context {
	if chatmodel.GetChatContext(ctx) != nil {
		return ctx
	}
	return chatmodel.WithChatContext(ctx, chatmodel.NewChatContext(chatmodel.DefaultTenantID, threadID, nil))
}
