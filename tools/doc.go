// Package tools defines the tools served by the bundled MCP servers.
// A tool can be called directly with JSON input, or registered
// with an MCP server that exposes it to the agents.
package tools
