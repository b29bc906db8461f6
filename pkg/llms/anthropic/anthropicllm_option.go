package anthropic

import (
	"net/http"
	"os"
	"time"

	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	TokenEnvVarName = "ANTHROPIC_API_KEY" //nolint:gosec

	DefaultMaxTokens      = 4096
	DefaultBaseURL        = "https://api.anthropic.com"
	DefaultMaxRetries     = 2
	DefaultRequestTimeout = 5 * time.Minute
)

// Options of the Anthropic client
type Options struct {
	Token          string
	Model          string
	MaxTokens      int64
	BaseURL        string
	HTTPClient     option.HTTPClient
	MaxRetries     int
	RequestTimeout time.Duration
	// Headers are added to every request, for example anthropic-beta
	Headers map[string]string
}

func defaultOptions() *Options {
	return &Options{
		Token:          os.Getenv(TokenEnvVarName),
		MaxTokens:      DefaultMaxTokens,
		BaseURL:        DefaultBaseURL,
		HTTPClient:     http.DefaultClient,
		MaxRetries:     DefaultMaxRetries,
		RequestTimeout: DefaultRequestTimeout,
	}
}

type Option func(*Options)

// WithToken passes the Anthropic API token to the client. If not set, the token
// is read from the ANTHROPIC_API_KEY environment variable.
func WithToken(token string) Option {
	return func(opts *Options) {
		opts.Token = token
	}
}

// WithModel passes the Anthropic model to the client.
func WithModel(model string) Option {
	return func(opts *Options) {
		opts.Model = model
	}
}

// WithMaxTokens sets the completion limit, when not set by the call options.
func WithMaxTokens(n int64) Option {
	return func(opts *Options) {
		if n > 0 {
			opts.MaxTokens = n
		}
	}
}

// WithBaseURL passes the Anthropic base URL to the client.
func WithBaseURL(baseURL string) Option {
	return func(opts *Options) {
		opts.BaseURL = baseURL
	}
}

// WithHTTPClient sets the HTTP client, http.DefaultClient by default.
func WithHTTPClient(client option.HTTPClient) Option {
	return func(opts *Options) {
		opts.HTTPClient = client
	}
}

// WithMaxRetries sets the number of retries of the SDK client.
func WithMaxRetries(n int) Option {
	return func(opts *Options) {
		opts.MaxRetries = n
	}
}

// WithRequestTimeout limits a single request, retries included.
func WithRequestTimeout(d time.Duration) Option {
	return func(opts *Options) {
		opts.RequestTimeout = d
	}
}

// WithHeader adds the header to every request.
func WithHeader(key, value string) Option {
	return func(opts *Options) {
		if opts.Headers == nil {
			opts.Headers = map[string]string{}
		}
		opts.Headers[key] = value
	}
}

// WithAnthropicBetaHeader enables beta features listed in the value.
func WithAnthropicBetaHeader(value string) Option {
	return WithHeader("anthropic-beta", value)
}
