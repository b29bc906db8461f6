package mcpconfig

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpagent/pkg/metricskey"
	"github.com/effective-security/x/slices"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpagent", "mcpconfig")

// TokenTimeout is the timeout of the token exchange request
const TokenTimeout = 5 * time.Second

type tokenResponse struct {
	AccessToken string `json:"access_token"`
}

// GetBearerToken exchanges basic credentials for a bearer token
// with a single form-encoded POST to <baseURL>/token.
func GetBearerToken(ctx context.Context, client *http.Client, baseURL, username, password string) (string, error) {
	if client == nil {
		client = http.DefaultClient
	}

	ctx, cancel := context.WithTimeout(ctx, TokenTimeout)
	defer cancel()

	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)

	tokenURL := strings.TrimSuffix(baseURL, "/") + "/token"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", errors.WithMessagef(ErrTokenExchange, "invalid request: %s", err.Error())
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return "", errors.WithMessagef(ErrTokenExchange, "%s: %s", tokenURL, err.Error())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", errors.WithMessagef(ErrTokenExchange, "failed to read response: %s", err.Error())
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", errors.WithMessagef(ErrTokenExchange, "%s returned %d: %s",
			tokenURL, resp.StatusCode, slices.StringUpto(strings.TrimSpace(string(body)), 128))
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", errors.WithMessagef(ErrTokenExchange, "invalid response: %s", err.Error())
	}
	if tr.AccessToken == "" {
		return "", errors.WithMessage(ErrTokenExchange, "access_token is missing in response")
	}
	return tr.AccessToken, nil
}

// BaseURL returns the URL with its last path segment removed,
// for example http://host/mcp/sse returns http://host/mcp
func BaseURL(u string) string {
	idx := strings.LastIndex(u, "/")
	if idx < 0 {
		return u
	}
	return u[:idx]
}

// Prepare returns a copy of the configuration where every SSE connection
// with basic auth is replaced with a connection carrying
// `Authorization: Bearer <token>` header. Headers already present
// on the connection take precedence, header names are canonicalized.
// The input is not modified.
func Prepare(ctx context.Context, cfg Config, client *http.Client) (Config, error) {
	res := make(Config, len(cfg))
	for _, name := range cfg.Names() {
		conn := cfg[name]
		if conn == nil || conn.Transport != TransportSSE || conn.Auth == nil || conn.Auth.Type != AuthTypeBasic {
			res[name] = conn.Clone()
			continue
		}

		token, err := GetBearerToken(ctx, client, BaseURL(conn.URL), conn.Auth.Username, conn.Auth.Password)
		if err != nil {
			metricskey.StatsMCPTokenExchangesFailed.IncrCounter(1, name)
			logger.ContextKV(ctx, xlog.ERROR,
				"reason", "token_exchange",
				"server", name,
				"err", err.Error())
			return nil, errors.WithMessagef(err, "server %q", name)
		}
		metricskey.StatsMCPTokenExchangesSucceeded.IncrCounter(1, name)

		headers := map[string]string{
			"Authorization": "Bearer " + token,
		}
		for k, v := range conn.Headers {
			headers[http.CanonicalHeaderKey(k)] = v
		}

		res[name] = &Connection{
			Transport: TransportSSE,
			URL:       conn.URL,
			Headers:   headers,
		}

		logger.ContextKV(ctx, xlog.DEBUG,
			"status", "token_exchanged",
			"server", name)
	}
	return res, nil
}
