// Command searchserver is the MCP server over stdio with web_search tool,
// backed by Tavily. TAVILY_API_KEY is read from the environment or .env file.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/effective-security/mcpagent/tools/stdioserver"
	"github.com/effective-security/mcpagent/tools/tavily"
	"github.com/effective-security/xlog"
	"github.com/joho/godotenv"
)

func main() {
	xlog.SetFormatter(xlog.NewStringFormatter(os.Stderr))
	xlog.SetGlobalLogLevel(xlog.WARNING)

	// .env is optional
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	search, err := tavily.New()
	if err == nil {
		err = stdioserver.Serve(ctx, "search", os.Stdin, os.Stdout, search)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %+v\n", err)
		os.Exit(1)
	}
}
