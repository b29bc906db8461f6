// Command mcpagent runs the MCP tool calling agent,
// as HTTP server or for a single question.
package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpagent/mcpclient"
	"github.com/effective-security/mcpagent/store"
	"github.com/effective-security/xlog"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpagent", "cmd")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	xlog.SetFormatter(xlog.NewStringFormatter(os.Stderr))

	if err := newCLI(os.Stdout).rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		stop()
		os.Exit(1)
	}
}

type cli struct {
	out io.Writer

	configFile string
	logLevel   string
	envFile    string

	cfg *Config
	// opener for tool servers, tests replace it
	opener mcpclient.Opener
	// checkpointer overrides the configured store when set
	checkpointer store.Checkpointer
}

func newCLI(out io.Writer) *cli {
	return &cli{
		out:    out,
		opener: mcpclient.NewOpener(mcpclient.WithHTTPClient(http.DefaultClient)),
	}
}

func (c *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "mcpagent",
		Short:         "Chat agent calling tools of MCP servers",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.init()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&c.configFile, "config", "c", os.Getenv("MCPAGENT_CONFIG"), "configuration file")
	flags.StringVar(&c.logLevel, "log-level", "warning", "log level: debug|info|notice|warning|error")
	flags.StringVar(&c.envFile, "env-file", ".env", "file with environment variables, ignored when missing")

	root.AddCommand(
		c.serveCmd(),
		c.askCmd(),
		c.resumeCmd(),
		c.toolsCmd(),
		c.mcpConfigCmd(),
	)
	return root
}

func (c *cli) init() error {
	if c.envFile != "" {
		if err := godotenv.Load(c.envFile); err != nil && !os.IsNotExist(err) {
			return errors.Wrapf(err, "unable to load %q", c.envFile)
		}
	}

	level, err := parseLogLevel(c.logLevel)
	if err != nil {
		return err
	}
	xlog.SetGlobalLogLevel(level)

	c.cfg, err = LoadConfig(c.configFile)
	if err != nil {
		return err
	}
	logger.KV(xlog.DEBUG,
		"config", c.configFile,
		"servers", c.cfg.ToolServers().Names(),
		"store", c.cfg.Store.Type)
	return nil
}

func parseLogLevel(s string) (xlog.LogLevel, error) {
	switch strings.ToLower(s) {
	case "trace":
		return xlog.TRACE, nil
	case "debug":
		return xlog.DEBUG, nil
	case "info":
		return xlog.INFO, nil
	case "notice":
		return xlog.NOTICE, nil
	case "warning", "warn", "":
		return xlog.WARNING, nil
	case "error":
		return xlog.ERROR, nil
	case "critical":
		return xlog.CRITICAL, nil
	}
	return xlog.WARNING, errors.Errorf("unsupported log level: %s", s)
}
