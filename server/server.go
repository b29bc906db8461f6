// Package server exposes the agent over HTTP.
//
//	POST /v1/agent/invoke         runs a turn of the conversation
//	POST /v1/threads/:id/resume   continues a run interrupted before the tool step
//	GET  /v1/threads/:id          returns the last saved state of the thread
//	GET  /healthz
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpagent/agent"
	"github.com/effective-security/mcpagent/chatmodel"
	"github.com/effective-security/mcpagent/graph"
	"github.com/effective-security/mcpagent/mcpconfig"
	"github.com/effective-security/mcpagent/pkg/llms"
	"github.com/effective-security/mcpagent/store"
	"github.com/effective-security/xlog"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpagent", "server")

// Runner runs turns of the conversation, implemented by *agent.Agent
type Runner interface {
	Name() string
	Invoke(ctx context.Context, state agent.State, threadID string) (agent.State, error)
	Resume(ctx context.Context, threadID string) (agent.State, error)
	GetState(ctx context.Context, threadID string) (agent.State, string, error)
}

var _ Runner = (*agent.Agent)(nil)

// InvokeRequest is the body of the invoke request
type InvokeRequest struct {
	// ThreadID identifies the conversation, a new ID is assigned when empty
	ThreadID  string           `json:"thread_id,omitempty"`
	Messages  []llms.Message   `json:"messages" binding:"required,min=1"`
	Actions   []agent.Action   `json:"actions,omitempty"`
	Language  string           `json:"language,omitempty"`
	MCPConfig mcpconfig.Config `json:"mcp_config,omitempty"`
}

// StateResponse is the state of the thread after the turn
type StateResponse struct {
	ThreadID string `json:"thread_id"`
	// Next is the node to run on resume, or __end__
	Next        string      `json:"next"`
	Interrupted bool        `json:"interrupted,omitempty"`
	State       agent.State `json:"state"`
}

// ErrorResponse is returned on failure
type ErrorResponse struct {
	Error string `json:"error"`
}

// Server is the HTTP entry point of the agent
type Server struct {
	runner  Runner
	engine  *gin.Engine
	timeout time.Duration
}

// Option configures the server
type Option func(*Server)

// WithTimeout limits the duration of a turn
func WithTimeout(timeout time.Duration) Option {
	return func(s *Server) {
		s.timeout = timeout
	}
}

// New returns the server for the runner
func New(runner Runner, opts ...Option) *Server {
	s := &Server{
		runner:  runner,
		timeout: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}

	e := gin.New()
	e.Use(gin.Recovery(), accessLog())
	e.GET("/healthz", s.health)

	v1 := e.Group("/v1")
	{
		v1.POST("/agent/invoke", s.invoke)
		v1.GET("/threads/:id", s.getThread)
		v1.POST("/threads/:id/resume", s.resume)
	}
	s.engine = e
	return s
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.engine
}

// ListenAndServe serves on the address until ctx is done
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.KV(xlog.NOTICE, "status", "listening", "addr", addr, "agent", s.runner.Name())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.WithStack(err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logger.KV(xlog.NOTICE, "status", "shutting_down", "addr", addr)
	return errors.WithStack(srv.Shutdown(shutdownCtx))
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "agent": s.runner.Name()})
}

func (s *Server) invoke(c *gin.Context) {
	var req InvokeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request: " + err.Error()})
		return
	}
	if req.ThreadID == "" {
		req.ThreadID = chatmodel.NewChatID()
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.timeout)
	defer cancel()

	state, err := s.runner.Invoke(ctx, agent.State{
		Messages:  req.Messages,
		Actions:   req.Actions,
		Language:  req.Language,
		MCPConfig: req.MCPConfig,
	}, req.ThreadID)
	s.respond(c, req.ThreadID, state, err)
}

func (s *Server) resume(c *gin.Context) {
	threadID := c.Param("id")

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.timeout)
	defer cancel()

	state, err := s.runner.Resume(ctx, threadID)
	s.respond(c, threadID, state, err)
}

func (s *Server) getThread(c *gin.Context) {
	threadID := c.Param("id")
	state, next, err := s.runner.GetState(c.Request.Context(), threadID)
	if err != nil {
		s.fail(c, threadID, err)
		return
	}
	c.JSON(http.StatusOK, StateResponse{
		ThreadID: threadID,
		Next:     next,
		State:    state,
	})
}

func (s *Server) respond(c *gin.Context, threadID string, state agent.State, err error) {
	res := StateResponse{
		ThreadID: threadID,
		Next:     graph.END,
		State:    state,
	}
	if errors.Is(err, graph.ErrInterrupted) {
		res.Interrupted = true
		res.Next = agent.ToolNodeName
		c.JSON(http.StatusOK, res)
		return
	}
	if err != nil {
		s.fail(c, threadID, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) fail(c *gin.Context, threadID string, err error) {
	status := statusCode(err)
	if status >= http.StatusInternalServerError {
		logger.ContextKV(c.Request.Context(), xlog.ERROR,
			"thread", threadID,
			"path", c.FullPath(),
			"err", err.Error())
	}
	c.JSON(status, ErrorResponse{Error: err.Error()})
}

func statusCode(err error) int {
	var verr validator.ValidationErrors
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, mcpconfig.ErrInvalidConnection), errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, mcpconfig.ErrTokenExchange):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()
		logger.ContextKV(c.Request.Context(), xlog.DEBUG,
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"elapsed", time.Since(started).String())
	}
}
