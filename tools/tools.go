package tools

import (
	"context"
	"encoding/json"

	"github.com/bububa/ljson"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpagent/pkg/llmutils"
	mcp "github.com/metoro-io/mcp-golang"
)

// ErrFailedUnmarshalInput is returned when the tool input does not match its schema
var ErrFailedUnmarshalInput = errors.New("failed to unmarshal input: check the schema and try again")

// McpServerRegistrator is implemented by MCP servers, see mcp.Server
type McpServerRegistrator interface {
	RegisterTool(name string, description string, handler any) error
}

// ITool is a tool served to the agents by an MCP server.
type ITool interface {
	// Name is the name advertised in tools/list, unique within the server
	Name() string
	// Description is advertised to the model with the tool
	Description() string
	// Parameters returns the JSON schema of the input
	Parameters() any

	// Call executes the tool with JSON input and returns JSON output.
	// ErrFailedUnmarshalInput is returned when the input does not match the schema.
	Call(context.Context, string) (string, error)
}

type Tool[I any, O any] interface {
	ITool
	Run(context.Context, *I) (*O, error)
}

// IMCPTool is a tool that can be registered with an MCP server.
type IMCPTool interface {
	ITool
	RegisterMCP(registrator McpServerRegistrator) error
}

type MCPTool[I any] interface {
	IMCPTool
	RunMCP(context.Context, *I) (*mcp.ToolResponse, error)
}

// RegisterAll registers the tools with the server, in the order of the list.
func RegisterAll(registrator McpServerRegistrator, list ...IMCPTool) error {
	for _, t := range list {
		if err := t.RegisterMCP(registrator); err != nil {
			return errors.Wrapf(err, "failed to register tool %q", t.Name())
		}
	}
	return nil
}

// Names returns the names of the tools
func Names[T ITool](list ...T) []string {
	names := make([]string, 0, len(list))
	for _, t := range list {
		names = append(names, t.Name())
	}
	return names
}

// ParseInput decodes the JSON input of a tool call
func ParseInput[I any](input string) (*I, error) {
	var req I
	bs := llmutils.CleanJSON(llmutils.BytesTrimBackticks([]byte(input)))
	if err := json.Unmarshal(bs, &req); err != nil {
		if err = ljson.Unmarshal(bs, &req); err != nil {
			return nil, errors.WithStack(ErrFailedUnmarshalInput)
		}
	}
	return &req, nil
}
