// Package mcpclient opens short-lived sessions to MCP tool servers,
// lists their tools and invokes them by name.
package mcpclient
