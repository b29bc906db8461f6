// Package llms provides the provider-neutral contract for chat models:
// messages with text, tool calls and tool results, call options with tool
// definitions, and the Model interface the provider subpackages implement.
//
// The openai and anthropic subpackages map these types to the provider APIs.
package llms
