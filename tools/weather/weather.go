// Package weather provides a demo weather tool
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpagent/pkg/schema"
	"github.com/effective-security/mcpagent/tools"
	mcp "github.com/metoro-io/mcp-golang"
)

const ToolName = "get_weather"

// Request is the tool input
type Request struct {
	Location string `json:"location" yaml:"location" jsonschema:"required,title=Location,description=The city to get the weather for."`
}

// Report is the tool output
type Report struct {
	Location    string `json:"location" yaml:"location"`
	Temperature int    `json:"temperature" yaml:"temperature"`
	Unit        string `json:"unit" yaml:"unit"`
}

func (r *Report) String() string {
	return fmt.Sprintf("The weather for %s is %d degrees.", r.Location, r.Temperature)
}

// Forecast returns the report for the location.
// The temperature is always 70 degrees.
func Forecast(location string) *Report {
	return &Report{
		Location:    location,
		Temperature: 70,
		Unit:        "fahrenheit",
	}
}

// Tool returns the weather for a location
type Tool struct{}

var _ tools.Tool[Request, Report] = (*Tool)(nil)
var _ tools.MCPTool[Request] = (*Tool)(nil)

func New() *Tool {
	return &Tool{}
}

func (t *Tool) Name() string {
	return ToolName
}

func (t *Tool) Description() string {
	return "Get the weather for a location."
}

func (t *Tool) Parameters() any {
	sc, err := schema.For[Request]()
	if err != nil {
		return nil
	}
	return sc.Parameters
}

func (t *Tool) Run(_ context.Context, req *Request) (*Report, error) {
	location := strings.TrimSpace(req.Location)
	if location == "" {
		return nil, errors.New("invalid request: empty location")
	}
	return Forecast(location), nil
}

func (t *Tool) Call(ctx context.Context, input string) (string, error) {
	req, err := tools.ParseInput[Request](input)
	if err != nil {
		return "", err
	}
	out, err := t.Run(ctx, req)
	if err != nil {
		return "", err
	}
	bs, err := json.Marshal(out)
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal output")
	}
	return string(bs), nil
}

func (t *Tool) RegisterMCP(registrator tools.McpServerRegistrator) error {
	return registrator.RegisterTool(ToolName, t.Description(), t.RunMCP)
}

func (t *Tool) RunMCP(ctx context.Context, req *Request) (*mcp.ToolResponse, error) {
	out, err := t.Run(ctx, req)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResponse(mcp.NewTextContent(out.String())), nil
}
