package mcpclient_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpagent/mcpclient"
	"github.com/effective-security/mcpagent/mcpconfig"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer() *mcpsdk.Server {
	server := mcpsdk.NewServer(&mcpsdk.Implementation{Name: "test-server", Version: "test"}, nil)
	server.AddTool(&mcpsdk.Tool{
		Name:        "get_weather",
		Description: "Get the weather for a location",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"location": map[string]any{"type": "string"},
			},
			"required": []any{"location"},
		},
	}, func(_ context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
		var args struct {
			Location string `json:"location"`
		}
		if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
			return nil, err
		}
		return &mcpsdk.CallToolResult{
			Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: fmt.Sprintf("The weather for %s is 70 degrees.", args.Location)}},
		}, nil
	})
	server.AddTool(&mcpsdk.Tool{
		Name:        "fail",
		Description: "Always fails",
		InputSchema: map[string]any{"type": "object", "properties": map[string]any{}},
	}, func(_ context.Context, _ *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
		return &mcpsdk.CallToolResult{
			IsError: true,
			Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: "service unavailable"}},
		}, nil
	})
	return server
}

// inMemoryOpener connects every Open call to a fresh in-memory server
func inMemoryOpener(t *testing.T) *mcpclient.SDKOpener {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})

	return mcpclient.NewOpener(mcpclient.WithTransportBuilder(func(context.Context, *mcpconfig.Connection) (mcpsdk.Transport, error) {
		serverTransport, clientTransport := mcpsdk.NewInMemoryTransports()
		server := newTestServer()
		wg.Add(1)
		go func() {
			defer wg.Done()
			session, err := server.Connect(ctx, serverTransport, nil)
			if err != nil {
				return
			}
			<-ctx.Done()
			_ = session.Close()
		}()
		return clientTransport, nil
	}))
}

func TestSDKOpener(t *testing.T) {
	opener := inMemoryOpener(t)
	ctx := context.Background()

	session, err := opener.Open(ctx, "weather", &mcpconfig.Connection{Transport: "stdio", Command: "weatherserver"})
	require.NoError(t, err)
	defer session.Close()

	tools, err := session.ListTools(ctx)
	require.NoError(t, err)
	require.Len(t, tools, 2)
	assert.Equal(t, []string{"fail", "get_weather"}, sortedNames(tools))
	for _, tool := range tools {
		assert.Equal(t, "weather", tool.Server)
		require.NotNil(t, tool.Parameters)
		assert.Equal(t, "object", tool.Parameters.Type)
	}

	res, err := session.CallTool(ctx, "get_weather", map[string]any{"location": "Paris"})
	require.NoError(t, err)
	assert.Equal(t, "The weather for Paris is 70 degrees.", res)

	res, err = session.CallTool(ctx, "fail", nil)
	require.NoError(t, err)
	assert.Equal(t, "Error: service unavailable", res)

	_, err = session.CallTool(ctx, "missing", nil)
	assert.Error(t, err)
}

func TestSDKOpener_InvalidConnection(t *testing.T) {
	t.Parallel()
	opener := mcpclient.NewOpener()

	_, err := opener.Open(context.Background(), "broken", &mcpconfig.Connection{Transport: "stdio"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, mcpconfig.ErrInvalidConnection))
	assert.Contains(t, err.Error(), `server "broken"`)

	_, err = opener.Open(context.Background(), "missing", &mcpconfig.Connection{Transport: "stdio", Command: "/nonexistent/mcp-server-binary"})
	assert.Error(t, err)
}

func TestSDKOpener_SSEHeaders(t *testing.T) {
	t.Parallel()

	var lock sync.Mutex
	var authorization []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lock.Lock()
		authorization = append(authorization, r.Header.Get("Authorization"))
		lock.Unlock()
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	opener := mcpclient.NewOpener(mcpclient.WithHTTPClient(srv.Client()))
	_, err := opener.Open(context.Background(), "remote", &mcpconfig.Connection{
		Transport: "sse",
		URL:       srv.URL + "/sse",
		Headers:   map[string]string{"Authorization": "Bearer token-123"},
	})
	require.Error(t, err)

	lock.Lock()
	defer lock.Unlock()
	require.NotEmpty(t, authorization)
	assert.Equal(t, "Bearer token-123", authorization[0])
}

func TestWithHeaders(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(r.Header.Get("Authorization") + "|" + r.Header.Get("X-Client")))
	}))
	defer srv.Close()

	base := srv.Client()
	assert.Same(t, base, mcpclient.WithHeaders(base, nil))

	client := mcpclient.WithHeaders(base, map[string]string{
		"Authorization": "Bearer abc",
		"X-Client":      "mcpagent",
	})
	assert.NotSame(t, base, client)

	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	req.Header.Set("X-Client", "overridden")
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "Bearer abc|mcpagent", string(body))
	// the original request is not modified
	assert.Equal(t, "overridden", req.Header.Get("X-Client"))
	assert.Empty(t, req.Header.Get("Authorization"))
}

func TestResultText(t *testing.T) {
	t.Parallel()

	assert.Empty(t, mcpclient.ResultText(nil))
	assert.Equal(t, "a\nb", mcpclient.ResultText(&mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: "a"}, &mcpsdk.TextContent{Text: "b"}},
	}))
	assert.Equal(t, "Error: boom", mcpclient.ResultText(&mcpsdk.CallToolResult{
		IsError: true,
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: "boom"}},
	}))
}
