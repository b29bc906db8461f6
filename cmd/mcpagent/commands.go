package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpagent/agent"
	"github.com/effective-security/mcpagent/callbacks"
	"github.com/effective-security/mcpagent/chatmodel"
	"github.com/effective-security/mcpagent/encoding"
	"github.com/effective-security/mcpagent/graph"
	"github.com/effective-security/mcpagent/mcpclient"
	"github.com/effective-security/mcpagent/mcpconfig"
	"github.com/effective-security/mcpagent/pkg/llmutils"
	"github.com/effective-security/mcpagent/server"
	"github.com/effective-security/mcpagent/store"
	"github.com/effective-security/xlog"
	"github.com/spf13/cobra"
)

func (c *cli) serveCmd() *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the agent over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts := []agent.Option{agent.WithOpener(c.opener)}
			if c.checkpointer != nil {
				opts = append(opts, agent.WithCheckpointer(c.checkpointer))
			}
			a, err := c.cfg.NewAgent(cmd.Context(), opts...)
			if err != nil {
				return err
			}
			if listen == "" {
				listen = c.cfg.Listen
			}
			return server.New(a).ListenAndServe(cmd.Context(), listen)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "address to listen, overrides the config")
	return cmd
}

type askFlags struct {
	threadID   string
	verbose    bool
	transcript bool
}

func (c *cli) askCmd() *cobra.Command {
	var flags askFlags
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a single question and print the answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.ask(cmd, strings.Join(args, " "), flags)
		},
	}
	cmd.Flags().StringVar(&flags.threadID, "thread", "", "thread ID to continue, a new one is assigned when empty")
	cmd.Flags().BoolVarP(&flags.verbose, "verbose", "v", false, "print the run trace")
	cmd.Flags().BoolVar(&flags.transcript, "transcript", false, "print all messages of the conversation")
	return cmd
}

func (c *cli) resumeCmd() *cobra.Command {
	var flags askFlags
	cmd := &cobra.Command{
		Use:   "resume <thread>",
		Short: "Continue a run interrupted before the tool step",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags.threadID = args[0]
			return c.ask(cmd, "", flags)
		},
	}
	cmd.Flags().BoolVarP(&flags.verbose, "verbose", "v", false, "print the run trace")
	cmd.Flags().BoolVar(&flags.transcript, "transcript", false, "print all messages of the conversation")
	return cmd
}

// ask invokes the agent with the question, or resumes the thread when question is empty
func (c *cli) ask(cmd *cobra.Command, question string, flags askFlags) error {
	threadID := flags.threadID
	if threadID == "" {
		threadID = chatmodel.NewChatID()
	}
	ctx := chatmodel.WithChatContext(cmd.Context(),
		chatmodel.NewChatContext(chatmodel.DefaultTenantID, threadID, nil))

	opts := []agent.Option{agent.WithOpener(c.opener)}
	if c.checkpointer != nil {
		opts = append(opts, agent.WithCheckpointer(c.checkpointer))
	}
	var pad *callbacks.Scratchpad
	if flags.verbose {
		pad = callbacks.NewScratchpad(callbacks.ModeVerbose)
		pad.StartRun(ctx)
		opts = append(opts, agent.WithCallback(pad))
	}

	a, err := c.cfg.NewAgent(ctx, opts...)
	if err != nil {
		return err
	}

	var state agent.State
	if question == "" {
		state, err = a.Resume(ctx, threadID)
	} else {
		state, err = c.threadState(ctx, a, flags.threadID, question)
		if err != nil {
			return err
		}
		state, err = a.Invoke(ctx, state, threadID)
	}

	if pad != nil {
		if _, trace := pad.EndRun(ctx); len(trace) > 0 {
			_, _ = c.out.Write(trace)
			fmt.Fprintln(c.out)
		}
	}

	interrupted := errors.Is(err, graph.ErrInterrupted)
	if err != nil && !interrupted {
		return err
	}

	if flags.transcript {
		llmutils.PrintMessages(c.out, state.Messages)
	} else {
		printAnswer(c, state)
	}
	if interrupted {
		fmt.Fprintf(c.out, "Interrupted before %s, continue with: mcpagent resume %s\n", agent.ToolNodeName, threadID)
	}
	return nil
}

// threadState returns the state for the question. When the thread has a saved
// state, the question is appended to its messages.
func (c *cli) threadState(ctx context.Context, a *agent.Agent, threadID, question string) (agent.State, error) {
	state := c.cfg.NewState(question)
	if threadID == "" {
		return state, nil
	}

	prev, next, err := a.GetState(ctx, threadID)
	if errors.Is(err, store.ErrNotFound) {
		logger.ContextKV(ctx, xlog.NOTICE,
			"status", "new_thread",
			"thread", threadID,
			"store", c.cfg.Store.Type)
		return state, nil
	}
	if err != nil {
		return state, err
	}
	if next != graph.END {
		return state, errors.Errorf("thread %q is interrupted before %s, continue with: mcpagent resume %s", threadID, next, threadID)
	}

	state.Messages = append(prev.Messages, state.Messages...)
	return state, nil
}

func printAnswer(c *cli, state agent.State) {
	last, ok := state.LastMessage()
	if !ok {
		return
	}
	if text := last.Text(); text != "" {
		fmt.Fprintln(c.out, text)
	}
	for _, call := range state.PendingToolCalls() {
		if state.FindAction(call.Name()) != nil {
			fmt.Fprintf(c.out, "Action: %s %s\n", call.Name(), call.Arguments())
		} else {
			fmt.Fprintf(c.out, "Tool call: %s %s\n", call.Name(), call.Arguments())
		}
	}
}

type toolList struct {
	Tools []mcpclient.Tool `json:"tools" yaml:"tools" toml:"tools"`
}

func (c *cli) toolsCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List tools of the configured MCP servers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := encoding.ParseFormat(format)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			cfg, err := mcpconfig.Prepare(ctx, c.cfg.ToolServers(), http.DefaultClient)
			if err != nil {
				return err
			}
			sess, err := mcpclient.OpenAll(ctx, c.opener, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = sess.Close() }()

			tools, err := sess.ListTools(ctx)
			if err != nil {
				return err
			}
			return encoding.Write(c.out, f, toolList{Tools: tools})
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "json", "output format: json|yaml|toml")
	return cmd
}

func (c *cli) mcpConfigCmd() *cobra.Command {
	var (
		format  string
		prepare bool
	)
	cmd := &cobra.Command{
		Use:   "mcp-config",
		Short: "Print the MCP servers configuration, credentials are redacted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := encoding.ParseFormat(format)
			if err != nil {
				return err
			}
			cfg := c.cfg.ToolServers()
			if prepare {
				cfg, err = mcpconfig.Prepare(cmd.Context(), cfg, http.DefaultClient)
				if err != nil {
					return err
				}
			}
			return encoding.Write(c.out, f, cfg.Redacted())
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "yaml", "output format: json|yaml|toml")
	cmd.Flags().BoolVar(&prepare, "prepare", false, "exchange basic auth credentials for bearer tokens")
	return cmd
}
