package mcpclient

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpagent/mcpconfig"
	"github.com/effective-security/mcpagent/pkg/metricskey"
	"github.com/effective-security/mcpagent/pkg/schema"
	"github.com/effective-security/xlog"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// ClientName is reported to the servers during initialization
const ClientName = "mcpagent"

// Version is reported to the servers during initialization
var Version = "dev"

// TransportBuilder returns the SDK transport for the connection
type TransportBuilder func(ctx context.Context, conn *mcpconfig.Connection) (mcpsdk.Transport, error)

// SDKOpener opens sessions with the official MCP SDK
type SDKOpener struct {
	httpClient *http.Client
	builder    TransportBuilder
}

// OpenerOption configures SDKOpener
type OpenerOption func(*SDKOpener)

// WithHTTPClient specifies the base HTTP client for SSE connections
func WithHTTPClient(client *http.Client) OpenerOption {
	return func(o *SDKOpener) {
		o.httpClient = client
	}
}

// WithTransportBuilder replaces the transport builder
func WithTransportBuilder(builder TransportBuilder) OpenerOption {
	return func(o *SDKOpener) {
		o.builder = builder
	}
}

// NewOpener returns an Opener backed by the official MCP SDK
func NewOpener(opts ...OpenerOption) *SDKOpener {
	o := &SDKOpener{
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.builder == nil {
		o.builder = o.buildTransport
	}
	return o
}

// Open connects to the server and performs the initialization handshake
func (o *SDKOpener) Open(ctx context.Context, name string, conn *mcpconfig.Connection) (Session, error) {
	if err := conn.Validate(); err != nil {
		return nil, errors.WithMessagef(err, "server %q", name)
	}

	started := time.Now()
	transport, err := o.builder(ctx, conn)
	if err != nil {
		metricskey.StatsMCPSessionsFailed.IncrCounter(1, name, conn.Transport)
		return nil, errors.WithMessagef(err, "server %q", name)
	}

	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: ClientName, Version: Version}, nil)
	cs, err := client.Connect(ctx, transport, nil)
	if err != nil {
		metricskey.StatsMCPSessionsFailed.IncrCounter(1, name, conn.Transport)
		logger.ContextKV(ctx, xlog.ERROR,
			"reason", "connect",
			"server", name,
			"transport", conn.Transport,
			"err", err.Error())
		return nil, errors.Wrapf(err, "failed to connect to %q", name)
	}
	metricskey.PerfMCPSessionOpen.MeasureSince(started, name, conn.Transport)
	metricskey.StatsMCPSessionsOpened.IncrCounter(1, name, conn.Transport)

	logger.ContextKV(ctx, xlog.DEBUG,
		"status", "connected",
		"server", name,
		"transport", conn.Transport,
		"elapsed", time.Since(started).String())

	return &sdkSession{name: name, session: cs}, nil
}

func (o *SDKOpener) buildTransport(ctx context.Context, conn *mcpconfig.Connection) (mcpsdk.Transport, error) {
	switch conn.Transport {
	case mcpconfig.TransportStdio:
		// #nosec G204 -- the command comes from the tool server configuration
		cmd := exec.CommandContext(ctx, conn.Command, conn.Args...)
		if len(conn.Env) > 0 {
			cmd.Env = os.Environ()
			for k, v := range conn.Env {
				cmd.Env = append(cmd.Env, k+"="+v)
			}
		}
		return &mcpsdk.CommandTransport{Command: cmd}, nil
	case mcpconfig.TransportSSE:
		return &mcpsdk.SSEClientTransport{
			Endpoint:   conn.URL,
			HTTPClient: WithHeaders(o.httpClient, conn.Headers),
		}, nil
	}
	return nil, errors.WithMessagef(mcpconfig.ErrInvalidConnection, "unsupported transport: %q", conn.Transport)
}

// WithHeaders returns a copy of the client that sets the headers on every request
func WithHeaders(client *http.Client, headers map[string]string) *http.Client {
	if client == nil {
		client = http.DefaultClient
	}
	if len(headers) == 0 {
		return client
	}
	base := client.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	cp := *client
	cp.Transport = &headerRoundTripper{base: base, headers: headers}
	return &cp
}

type headerRoundTripper struct {
	base    http.RoundTripper
	headers map[string]string
}

func (t *headerRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	for k, v := range t.headers {
		r.Header.Set(k, v)
	}
	return t.base.RoundTrip(r)
}

type sdkSession struct {
	name    string
	session *mcpsdk.ClientSession
}

func (s *sdkSession) ListTools(ctx context.Context) ([]Tool, error) {
	var res []Tool
	for tool, err := range s.session.Tools(ctx, nil) {
		if err != nil {
			return nil, errors.Wrapf(err, "failed to list tools of %q", s.name)
		}
		if tool == nil {
			continue
		}
		params, err := schema.FromAny(tool.InputSchema)
		if err != nil {
			logger.ContextKV(ctx, xlog.WARNING,
				"reason", "input_schema",
				"server", s.name,
				"tool", tool.Name,
				"err", err.Error())
			params = schema.EmptyObject()
		}
		res = append(res, Tool{
			Server:      s.name,
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  params,
		})
	}
	return res, nil
}

func (s *sdkSession) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	if args == nil {
		args = map[string]any{}
	}
	result, err := s.session.CallTool(ctx, &mcpsdk.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		return "", errors.Wrapf(err, "failed to call %q on %q", name, s.name)
	}
	return ResultText(result), nil
}

func (s *sdkSession) Close() error {
	return s.session.Close()
}

// ResultText flattens the result content into text,
// error results are prefixed with "Error: "
func ResultText(result *mcpsdk.CallToolResult) string {
	if result == nil {
		return ""
	}
	var parts []string
	for _, c := range result.Content {
		switch v := c.(type) {
		case *mcpsdk.TextContent:
			parts = append(parts, v.Text)
		default:
			js, err := json.Marshal(c)
			if err == nil {
				parts = append(parts, string(js))
			}
		}
	}
	text := strings.Join(parts, "\n")
	if result.IsError {
		return "Error: " + text
	}
	return text
}
