// Command weatherserver is the MCP server over stdio with get_weather tool.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/effective-security/mcpagent/tools/stdioserver"
	"github.com/effective-security/mcpagent/tools/weather"
	"github.com/effective-security/xlog"
)

func main() {
	xlog.SetFormatter(xlog.NewStringFormatter(os.Stderr))
	xlog.SetGlobalLogLevel(xlog.WARNING)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := stdioserver.Serve(ctx, "weather", os.Stdin, os.Stdout, weather.New()); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %+v\n", err)
		os.Exit(1)
	}
}
