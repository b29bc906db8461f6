// Package mcpconfig describes how the agent reaches MCP tool servers:
// either a local command spoken to over its standard streams (stdio),
// or a remote SSE endpoint, optionally protected by basic auth that is
// exchanged for a bearer token before the session is opened.
package mcpconfig
