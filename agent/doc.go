// Package agent implements a tool calling chat agent.
//
// The agent runs a graph with two nodes: the chat node asks the model for
// the next message, offering the tools advertised by the configured MCP
// servers together with the actions supplied by the caller, and the tool
// node executes the tool calls of the last model message. The run ends when
// the model answers without tool calls, or when it requests a caller action.
//
// Every node that needs MCP servers opens its own short-lived session and
// closes it before returning, so no server handle outlives a step.
package agent
