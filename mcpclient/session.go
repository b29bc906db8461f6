package mcpclient

//go:generate mockgen -source=session.go -destination=../mocks/mockmcpclient/session_mock.gen.go -package mockmcpclient

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpagent/mcpconfig"
	"github.com/effective-security/xlog"
	"github.com/invopop/jsonschema"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpagent", "mcpclient")

// ErrToolNotFound is returned when no server advertises the requested tool
var ErrToolNotFound = errors.New("tool not found")

// Tool describes a tool advertised by a server
type Tool struct {
	// Server is the name of the server in the configuration
	Server      string             `json:"server" yaml:"server" toml:"server"`
	Name        string             `json:"name" yaml:"name" toml:"name"`
	Description string             `json:"description,omitempty" yaml:"description,omitempty" toml:"description,omitempty"`
	Parameters  *jsonschema.Schema `json:"parameters,omitempty" yaml:"-" toml:"-"`
}

// Session is a connection to one or more tool servers.
// A session must be closed by the caller that opened it.
type Session interface {
	// ListTools returns the tools advertised by the server
	ListTools(ctx context.Context) ([]Tool, error)
	// CallTool invokes the tool and returns its text result.
	// A tool that reports an error returns the text prefixed with "Error:".
	CallTool(ctx context.Context, name string, args map[string]any) (string, error)
	// Close terminates the session
	Close() error
}

// Opener opens a session for a server connection
type Opener interface {
	Open(ctx context.Context, name string, conn *mcpconfig.Connection) (Session, error)
}

// OpenerFunc is an adapter to allow the use of ordinary functions as Opener
type OpenerFunc func(ctx context.Context, name string, conn *mcpconfig.Connection) (Session, error)

// Open calls f(ctx, name, conn)
func (f OpenerFunc) Open(ctx context.Context, name string, conn *mcpconfig.Connection) (Session, error) {
	return f(ctx, name, conn)
}
