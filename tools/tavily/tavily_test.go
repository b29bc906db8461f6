package tavily_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/cockroachdb/errors"
	tavilyModels "github.com/diverged/tavily-go/models"
	"github.com/effective-security/mcpagent/tools"
	"github.com/effective-security/mcpagent/tools/tavily"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func toJSONIndent(t *testing.T, v any) string {
	js, err := json.MarshalIndent(v, "", "\t")
	require.NoError(t, err)
	return string(js)
}

func searchServer(t *testing.T, depth string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)

		var req tavilyModels.SearchRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "capital of France", req.Query)
		assert.Equal(t, depth, req.SearchDepth)
		assert.True(t, req.IncludeAnswer)

		_ = json.NewEncoder(w).Encode(tavily.SearchResult{
			Answer: "Paris",
			Results: []tavilyModels.SearchResult{
				{Title: "Paris", URL: "https://en.wikipedia.org/wiki/Paris", Content: "Paris is the capital of France.", Score: 0.98},
				{Title: "France", URL: "https://en.wikipedia.org/wiki/France", Content: "Its capital is Paris.", Score: 0.75},
			},
		})
	}))
}

func TestTool(t *testing.T) {
	server := searchServer(t, "basic")
	defer server.Close()
	ctx := context.Background()

	tool, err := tavily.New(
		tavily.WithAPIKey("testkey"),
		tavily.WithBaseURL(server.URL),
		tavily.WithHTTPClient(server.Client()),
	)
	require.NoError(t, err)
	assert.Equal(t, "web_search", tool.Name())
	assert.Contains(t, tool.Description(), "Search the web")

	assert.Equal(t, `{
	"properties": {
		"query": {
			"type": "string",
			"title": "Query",
			"description": "The query to search the web for."
		},
		"max_results": {
			"type": "integer",
			"title": "Max Results",
			"description": "The maximum number of results to return."
		}
	},
	"type": "object",
	"required": [
		"query"
	]
}`, toJSONIndent(t, tool.Parameters()))

	_, err = tool.Call(ctx, "plain string")
	assert.True(t, errors.Is(err, tools.ErrFailedUnmarshalInput))

	_, err = tool.Run(ctx, &tavily.SearchRequest{Query: "  "})
	assert.EqualError(t, err, "invalid request: empty query")

	res, err := tool.Run(ctx, &tavily.SearchRequest{Query: "capital of France"})
	require.NoError(t, err)
	exp := `Answer: Paris
1. Paris (https://en.wikipedia.org/wiki/Paris)
   Paris is the capital of France.
2. France (https://en.wikipedia.org/wiki/France)
   Its capital is Paris.
`
	assert.Equal(t, exp, res.String())

	mcpResp, err := tool.RunMCP(ctx, &tavily.SearchRequest{Query: "capital of France"})
	require.NoError(t, err)
	require.Len(t, mcpResp.Content, 1)
	assert.Equal(t, exp, mcpResp.Content[0].TextContent.Text)

	js, err := tool.Call(ctx, `{"query":"capital of France","max_results":1}`)
	require.NoError(t, err)
	assert.Equal(t, `{"results":[{"title":"Paris","url":"https://en.wikipedia.org/wiki/Paris","content":"Paris is the capital of France.","score":0.98}],"answer":"Paris"}`, js)
}

func TestTool_Advanced(t *testing.T) {
	server := searchServer(t, "advanced")
	defer server.Close()

	t.Setenv(tavily.APIKeyEnvName, "envkey")
	tool, err := tavily.New(tavily.WithBaseURL(server.URL), tavily.WithAdvancedSearch())
	require.NoError(t, err)

	res, err := tool.Run(context.Background(), &tavily.SearchRequest{Query: "capital of France"})
	require.NoError(t, err)
	assert.Len(t, res.Results, 2)
}

func TestNew_NoKey(t *testing.T) {
	t.Setenv(tavily.APIKeyEnvName, "")
	_, err := tavily.New()
	assert.EqualError(t, err, "TAVILY_API_KEY is not set")
}

func TestTool_Real(t *testing.T) {
	if os.Getenv(tavily.APIKeyEnvName) == "" || os.Getenv("MCPAGENT_REAL_TESTS") == "" {
		t.Skip("set MCPAGENT_REAL_TESTS and TAVILY_API_KEY to run")
	}

	tool, err := tavily.New()
	require.NoError(t, err)

	resp, err := tool.Call(context.Background(), toJSONIndent(t, &tavily.SearchRequest{Query: "What is capital of France"}))
	require.NoError(t, err)
	assert.Contains(t, resp, "Paris")
}
