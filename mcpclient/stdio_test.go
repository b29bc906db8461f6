package mcpclient_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/effective-security/mcpagent/mcpclient"
	"github.com/effective-security/mcpagent/mcpconfig"
	"github.com/effective-security/mcpagent/tools"
	"github.com/effective-security/mcpagent/tools/math"
	"github.com/effective-security/mcpagent/tools/stdioserver"
	"github.com/effective-security/mcpagent/tools/weather"
	"github.com/effective-security/xlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stdioServerEnv makes the test binary run as the named tool server
const stdioServerEnv = "MCPAGENT_TEST_STDIO_SERVER"

func TestMain(m *testing.M) {
	if name := os.Getenv(stdioServerEnv); name != "" {
		os.Exit(serveStdio(name))
	}
	os.Exit(m.Run())
}

func serveStdio(name string) int {
	xlog.SetFormatter(xlog.NewStringFormatter(os.Stderr))
	xlog.SetGlobalLogLevel(xlog.WARNING)

	var list []tools.IMCPTool
	switch name {
	case "weather":
		list = []tools.IMCPTool{weather.New()}
	case "math":
		list = math.All()
	default:
		fmt.Fprintf(os.Stderr, "unknown server: %s\n", name)
		return 2
	}
	if err := stdioserver.Serve(context.Background(), name, os.Stdin, os.Stdout, list...); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %+v\n", err)
		return 1
	}
	return 0
}

func stdioConnection(t *testing.T, name string) *mcpconfig.Connection {
	exe, err := os.Executable()
	require.NoError(t, err)
	return &mcpconfig.Connection{
		Transport: mcpconfig.TransportStdio,
		Command:   exe,
		Args:      []string{"-test.run=^$"},
		Env:       map[string]string{stdioServerEnv: name},
	}
}

func TestSDKOpener_StdioServers(t *testing.T) {
	if testing.Short() {
		t.Skip("starts tool server processes")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg := mcpconfig.Config{
		"weather": stdioConnection(t, "weather"),
		"math":    stdioConnection(t, "math"),
	}
	sess, err := mcpclient.OpenAll(ctx, mcpclient.NewOpener(), cfg)
	require.NoError(t, err)
	defer func() {
		assert.NoError(t, sess.Close())
	}()

	list, err := sess.ListTools(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t,
		[]string{weather.ToolName, math.AddToolName, math.SubtractToolName, math.MultiplyToolName, math.DivideToolName},
		mcpclient.ToolNames(list))
	for _, tool := range list {
		require.NotNil(t, tool.Parameters, tool.Name)
		switch tool.Name {
		case weather.ToolName:
			assert.Equal(t, "weather", tool.Server)
			assert.Equal(t, []string{"location"}, tool.Parameters.Required)
		case math.AddToolName:
			assert.Equal(t, "math", tool.Server)
			assert.Equal(t, []string{"a", "b"}, tool.Parameters.Required)
		}
	}

	res, err := sess.CallTool(ctx, weather.ToolName, map[string]any{"location": "Paris"})
	require.NoError(t, err)
	assert.Equal(t, "The weather for Paris is 70 degrees.", res)

	res, err = sess.CallTool(ctx, math.AddToolName, map[string]any{"a": 2, "b": 3})
	require.NoError(t, err)
	assert.Equal(t, "5", res)
}
