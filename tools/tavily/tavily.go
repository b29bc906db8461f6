// Package tavily provides the web search tool on Tavily API
package tavily

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	tavilygo "github.com/diverged/tavily-go"
	tavilyModels "github.com/diverged/tavily-go/models"
	"github.com/effective-security/mcpagent/pkg/schema"
	"github.com/effective-security/mcpagent/tools"
	mcp "github.com/metoro-io/mcp-golang"
)

const ToolName = "web_search"

// APIKeyEnvName is the environment variable with the Tavily API key
const APIKeyEnvName = "TAVILY_API_KEY"

// DefaultMaxResults is the number of results when the request does not limit it
const DefaultMaxResults = 5

// SearchRequest is the tool input
type SearchRequest struct {
	Query      string `json:"query" yaml:"query" jsonschema:"required,title=Query,description=The query to search the web for."`
	MaxResults int    `json:"max_results,omitempty" yaml:"max_results,omitempty" jsonschema:"title=Max Results,description=The maximum number of results to return."`
}

// SearchResult is the tool output
type SearchResult struct {
	Results []tavilyModels.SearchResult `json:"results" yaml:"results"`
	Answer  string                      `json:"answer,omitempty" yaml:"answer,omitempty"`
}

func (r *SearchResult) String() string {
	var buf strings.Builder
	if r.Answer != "" {
		fmt.Fprintf(&buf, "Answer: %s\n", r.Answer)
	}
	for i, res := range r.Results {
		fmt.Fprintf(&buf, "%d. %s (%s)\n   %s\n", i+1, res.Title, res.URL, res.Content)
	}
	return buf.String()
}

// Tool searches the web
type Tool struct {
	apiKey     string
	baseURL    string
	depth      string
	httpClient *http.Client
}

var _ tools.Tool[SearchRequest, SearchResult] = (*Tool)(nil)
var _ tools.MCPTool[SearchRequest] = (*Tool)(nil)

// Option configures the tool
type Option func(*Tool)

// WithAPIKey overrides the key from TAVILY_API_KEY
func WithAPIKey(key string) Option {
	return func(t *Tool) {
		t.apiKey = key
	}
}

func WithBaseURL(baseURL string) Option {
	return func(t *Tool) {
		t.baseURL = baseURL
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(t *Tool) {
		t.httpClient = client
	}
}

// WithAdvancedSearch selects the advanced search depth, basic by default
func WithAdvancedSearch() Option {
	return func(t *Tool) {
		t.depth = "advanced"
	}
}

// New returns the tool, the API key is required
func New(opts ...Option) (*Tool, error) {
	t := &Tool{
		apiKey:     os.Getenv(APIKeyEnvName),
		depth:      "basic",
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.apiKey == "" {
		return nil, errors.Errorf("%s is not set", APIKeyEnvName)
	}
	return t, nil
}

func (t *Tool) Name() string {
	return ToolName
}

func (t *Tool) Description() string {
	return "Search the web for current information. Returns a short answer and the top results."
}

func (t *Tool) Parameters() any {
	sc, err := schema.For[SearchRequest]()
	if err != nil {
		return nil
	}
	return sc.Parameters
}

func (t *Tool) Run(_ context.Context, req *SearchRequest) (*SearchResult, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, errors.New("invalid request: empty query")
	}
	maxResults := req.MaxResults
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}

	client := tavilygo.NewClient(t.apiKey)
	if t.baseURL != "" {
		client.BaseURL = t.baseURL
	}
	if t.httpClient != nil {
		client.HTTPClient = t.httpClient
	}

	resp, err := tavilygo.Search(client, tavilyModels.SearchRequest{
		Query:         query,
		SearchDepth:   t.depth,
		IncludeAnswer: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to search")
	}

	res := &SearchResult{
		Results: resp.Results,
		Answer:  resp.Answer,
	}
	if len(res.Results) > maxResults {
		res.Results = res.Results[:maxResults]
	}
	return res, nil
}

func (t *Tool) Call(ctx context.Context, input string) (string, error) {
	req, err := tools.ParseInput[SearchRequest](input)
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

func (t *Tool) RunMCP(ctx context.Context, req *SearchRequest) (*mcp.ToolResponse, error) {
	out, err := t.Run(ctx, req)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResponse(mcp.NewTextContent(out.String())), nil
}
