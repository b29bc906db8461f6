package mcpconfig

import (
	"maps"
	"net/http"
	"net/url"
	"os"
	"slices"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/x/configloader"
	"github.com/go-playground/validator/v10"
)

// Transport kinds
const (
	TransportStdio = "stdio"
	TransportSSE   = "sse"
)

// AuthTypeBasic is the only supported auth type,
// the credentials are exchanged for a bearer token.
const AuthTypeBasic = "basic"

// MathServerEnvName is the env variable to override the command of the default math server
const MathServerEnvName = "MCPAGENT_MATH_SERVER"

// DefaultMathServer is the command of the default math server
const DefaultMathServer = "mathserver"

var (
	// ErrInvalidConnection is returned when a connection descriptor is incomplete
	ErrInvalidConnection = errors.New("invalid connection")
	// ErrTokenExchange is returned when the bearer token could not be obtained
	ErrTokenExchange = errors.New("token exchange failed")
)

var validate = validator.New()

// Auth specifies credentials for SSE connection
type Auth struct {
	Type     string `json:"type" yaml:"type" toml:"type" validate:"required,oneof=basic"`
	Username string `json:"username" yaml:"username" toml:"username" validate:"required"`
	Password string `json:"password" yaml:"password" toml:"password" validate:"required"`
}

// Connection describes a single tool server
type Connection struct {
	Transport string `json:"transport" yaml:"transport" toml:"transport" validate:"required,oneof=stdio sse"`

	// stdio
	Command string            `json:"command,omitempty" yaml:"command,omitempty" toml:"command,omitempty" validate:"required_if=Transport stdio,excluded_if=Transport sse"`
	Args    []string          `json:"args,omitempty" yaml:"args,omitempty" toml:"args,omitempty" validate:"excluded_if=Transport sse"`
	Env     map[string]string `json:"env,omitempty" yaml:"env,omitempty" toml:"env,omitempty" validate:"excluded_if=Transport sse"`

	// sse
	URL     string            `json:"url,omitempty" yaml:"url,omitempty" toml:"url,omitempty" validate:"required_if=Transport sse,excluded_if=Transport stdio"`
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty" toml:"headers,omitempty" validate:"excluded_if=Transport stdio"`
	Auth    *Auth             `json:"auth,omitempty" yaml:"auth,omitempty" toml:"auth,omitempty"`
}

// Validate returns an error if the connection is not
// a complete descriptor of exactly one transport kind.
func (c *Connection) Validate() error {
	if c == nil {
		return errors.WithMessage(ErrInvalidConnection, "empty connection")
	}
	if err := validate.Struct(c); err != nil {
		return errors.WithMessage(ErrInvalidConnection, err.Error())
	}
	if c.Transport == TransportStdio && c.Auth != nil {
		return errors.WithMessage(ErrInvalidConnection, "auth is not supported by stdio transport")
	}
	if c.Transport == TransportSSE {
		u, err := url.Parse(c.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return errors.WithMessagef(ErrInvalidConnection, "invalid URL: %q", c.URL)
		}
	}
	return nil
}

// Clone returns a deep copy of the connection
func (c *Connection) Clone() *Connection {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Args = slices.Clone(c.Args)
	cp.Env = maps.Clone(c.Env)
	cp.Headers = maps.Clone(c.Headers)
	if c.Auth != nil {
		auth := *c.Auth
		cp.Auth = &auth
	}
	return &cp
}

// Config maps server names to connections
type Config map[string]*Connection

// Default returns the configuration used when none is provided:
// a single math server started as a local command.
func Default() Config {
	cmd := os.Getenv(MathServerEnvName)
	if cmd == "" {
		cmd = DefaultMathServer
	}
	return Config{
		"math": {
			Transport: TransportStdio,
			Command:   cmd,
			Args:      []string{},
		},
	}
}

// Names returns sorted server names
func (c Config) Names() []string {
	return slices.Sorted(maps.Keys(c))
}

// Validate returns an error if any of the connections is invalid
func (c Config) Validate() error {
	for _, name := range c.Names() {
		if err := validate.Var(name, "min=1,max=50"); err != nil {
			return errors.WithMessagef(ErrInvalidConnection, "server name %q must be 1 to 50 characters", name)
		}
		if err := c[name].Validate(); err != nil {
			return errors.WithMessagef(err, "server %q", name)
		}
	}
	return nil
}

// Clone returns a deep copy of the configuration
func (c Config) Clone() Config {
	if c == nil {
		return nil
	}
	cp := make(Config, len(c))
	for name, conn := range c {
		cp[name] = conn.Clone()
	}
	return cp
}

// Redacted returns a copy with credentials and bearer tokens masked
func (c Config) Redacted() Config {
	cp := c.Clone()
	for _, conn := range cp {
		if conn == nil {
			continue
		}
		if conn.Auth != nil {
			conn.Auth.Password = redacted
		}
		for k := range conn.Headers {
			if isSecretHeader(k) {
				conn.Headers[k] = redacted
			}
		}
	}
	return cp
}

const redacted = "***"

func isSecretHeader(name string) bool {
	switch http.CanonicalHeaderKey(name) {
	case "Authorization", "Proxy-Authorization", "X-Api-Key", "Cookie":
		return true
	}
	return false
}

// Load returns configuration from YAML or JSON file,
// environment variables in the file are expanded.
func Load(file string) (Config, error) {
	cfg := Config{}
	if err := configloader.UnmarshalAndExpand(file, &cfg); err != nil {
		return nil, errors.WithMessagef(err, "unable to load MCP config %q", file)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
