package mcpclient

import (
	"context"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpagent/mcpconfig"
	"github.com/effective-security/xlog"
)

type namedSession struct {
	name    string
	session Session
}

// MultiSession combines sessions of several servers.
// Tools are routed to the first server, in name order, that advertises them.
type MultiSession struct {
	sessions []namedSession

	lock   sync.Mutex
	tools  []Tool
	listed bool
}

// OpenAll opens a session for every configured server in name order.
// If any server fails to open, the sessions already opened are closed.
func OpenAll(ctx context.Context, opener Opener, cfg mcpconfig.Config) (*MultiSession, error) {
	ms := &MultiSession{}
	for _, name := range cfg.Names() {
		s, err := opener.Open(ctx, name, cfg[name])
		if err != nil {
			_ = ms.Close()
			return nil, err
		}
		ms.sessions = append(ms.sessions, namedSession{name: name, session: s})
	}
	return ms, nil
}

// Servers returns the names of the servers in the session
func (m *MultiSession) Servers() []string {
	names := make([]string, 0, len(m.sessions))
	for _, s := range m.sessions {
		names = append(names, s.name)
	}
	return names
}

// ListTools returns the tools of all servers, in server name order
func (m *MultiSession) ListTools(ctx context.Context) ([]Tool, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.listTools(ctx)
}

func (m *MultiSession) listTools(ctx context.Context) ([]Tool, error) {
	if m.listed {
		return m.tools, nil
	}

	var all []Tool
	for _, s := range m.sessions {
		tools, err := s.session.ListTools(ctx)
		if err != nil {
			return nil, err
		}
		for _, t := range tools {
			if t.Server == "" {
				t.Server = s.name
			}
			all = append(all, t)
		}
	}
	m.tools = all
	m.listed = true
	return all, nil
}

// FindTool returns the first tool with the name
func (m *MultiSession) FindTool(ctx context.Context, name string) (*Tool, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.findTool(ctx, name)
}

func (m *MultiSession) findTool(ctx context.Context, name string) (*Tool, error) {
	tools, err := m.listTools(ctx)
	if err != nil {
		return nil, err
	}
	for i := range tools {
		if tools[i].Name == name {
			return &tools[i], nil
		}
	}
	return nil, errors.WithMessagef(ErrToolNotFound, "%q, use one of: %s", name, strings.Join(ToolNames(tools), ", "))
}

// CallTool invokes the first tool with the name
func (m *MultiSession) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	m.lock.Lock()
	tool, err := m.findTool(ctx, name)
	m.lock.Unlock()
	if err != nil {
		return "", err
	}

	for _, s := range m.sessions {
		if s.name == tool.Server {
			logger.ContextKV(ctx, xlog.DEBUG,
				"status", "call_tool",
				"server", s.name,
				"tool", name)
			return s.session.CallTool(ctx, name, args)
		}
	}
	return "", errors.WithMessagef(ErrToolNotFound, "%q: server %q is not connected", name, tool.Server)
}

// Close closes all sessions
func (m *MultiSession) Close() error {
	var errs []error
	for _, s := range m.sessions {
		if err := s.session.Close(); err != nil {
			logger.KV(xlog.WARNING,
				"reason", "close",
				"server", s.name,
				"err", err.Error())
			errs = append(errs, errors.Wrapf(err, "failed to close %q", s.name))
		}
	}
	m.sessions = nil
	return errors.Join(errs...)
}

// ToolNames returns the names of the tools
func ToolNames(tools []Tool) []string {
	names := make([]string, 0, len(tools))
	for _, t := range tools {
		names = append(names, t.Name)
	}
	return names
}
