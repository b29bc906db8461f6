package metricskey

import "github.com/effective-security/metrics"

// Stats
var (
	StatsAgentActionsRequested = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_agent_actions_requested",
		Help:         "stats_agent_actions_requested provides total caller actions requested by the model",
		RequiredTags: []string{"agent", "action"},
	}

	// StatsAgentInvocations is base for counter metric for agent graph runs
	StatsAgentInvocations = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_agent_invocations",
		Help:         "stats_agent_invocations provides total agent invocations",
		RequiredTags: []string{"agent"},
	}

	StatsLLMCallsFailed = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_llm_calls_failed",
		Help:         "stats_llm_calls_failed provides total LLM calls failed",
		RequiredTags: []string{"agent", "model"},
	}

	StatsLLMCallsSucceeded = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_llm_calls_succeeded",
		Help:         "stats_llm_calls_succeeded provides total LLM calls succeeded",
		RequiredTags: []string{"agent", "model"},
	}

	StatsLLMInputTokens = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_llm_input_tokens",
		Help:         "stats_llm_input_tokens provides total input tokens sent to LLM",
		RequiredTags: []string{"agent", "model"},
	}

	// StatsLLMMessagesSent is base for counter metric for total messages sent to LLM
	StatsLLMMessagesSent = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_llm_messages_sent",
		Help:         "stats_llm_messages_sent provides total messages sent to LLM",
		RequiredTags: []string{"agent", "model"},
	}

	StatsLLMOutputTokens = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_llm_output_tokens",
		Help:         "stats_llm_output_tokens provides total output tokens received from LLM",
		RequiredTags: []string{"agent", "model"},
	}

	StatsLLMTotalTokens = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_llm_total_tokens",
		Help:         "stats_llm_total_tokens provides total tokens sent and received from LLM",
		RequiredTags: []string{"agent", "model"},
	}

	StatsMCPSessionsFailed = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_mcp_sessions_failed",
		Help:         "stats_mcp_sessions_failed provides total MCP sessions failed to open",
		RequiredTags: []string{"server", "transport"},
	}

	StatsMCPSessionsOpened = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_mcp_sessions_opened",
		Help:         "stats_mcp_sessions_opened provides total MCP sessions opened",
		RequiredTags: []string{"server", "transport"},
	}

	StatsMCPTokenExchangesFailed = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_mcp_token_exchanges_failed",
		Help:         "stats_mcp_token_exchanges_failed provides total bearer token exchanges failed",
		RequiredTags: []string{"server"},
	}

	StatsMCPTokenExchangesSucceeded = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_mcp_token_exchanges_succeeded",
		Help:         "stats_mcp_token_exchanges_succeeded provides total bearer token exchanges succeeded",
		RequiredTags: []string{"server"},
	}

	StatsToolCallsFailed = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_calls_failed",
		Help:         "stats_tool_calls_failed provides total tool calls failed",
		RequiredTags: []string{"tool"},
	}

	StatsToolCallsNotFound = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_calls_not_found",
		Help:         "stats_tool_calls_not_found provides total tool calls not found",
		RequiredTags: []string{"tool"},
	}

	StatsToolCallsSucceeded = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_calls_succeeded",
		Help:         "stats_tool_calls_succeeded provides total tool calls succeeded",
		RequiredTags: []string{"tool"},
	}
)

// Perf
var (
	PerfAgentInvoke = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_agent_invoke",
		Help:         "perf_agent_invoke provides duration of agent invocation",
		RequiredTags: []string{"agent"},
	}

	PerfLLMCall = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_llm_call",
		Help:         "perf_llm_call provides duration of LLM call",
		RequiredTags: []string{"agent", "model"},
	}

	PerfMCPSessionOpen = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_mcp_session_open",
		Help:         "perf_mcp_session_open provides duration of MCP session open",
		RequiredTags: []string{"server", "transport"},
	}

	// PerfToolCall measures a single tool call over an MCP session
	PerfToolCall = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_tool_call",
		Help:         "perf_tool_call provides duration of tool call",
		RequiredTags: []string{"tool"},
	}
)

// Metrics returns slice of metrics from this repo
// keep sorted by name
var Metrics = []*metrics.Describe{
	&PerfAgentInvoke,
	&PerfLLMCall,
	&PerfMCPSessionOpen,
	&PerfToolCall,
	&StatsAgentActionsRequested,
	&StatsAgentInvocations,
	&StatsLLMCallsFailed,
	&StatsLLMCallsSucceeded,
	&StatsLLMInputTokens,
	&StatsLLMMessagesSent,
	&StatsLLMOutputTokens,
	&StatsLLMTotalTokens,
	&StatsMCPSessionsFailed,
	&StatsMCPSessionsOpened,
	&StatsMCPTokenExchangesFailed,
	&StatsMCPTokenExchangesSucceeded,
	&StatsToolCallsFailed,
	&StatsToolCallsNotFound,
	&StatsToolCallsSucceeded,
}
