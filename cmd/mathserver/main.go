// Command mathserver is the MCP server over stdio with add, subtract,
// multiply and divide tools.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/effective-security/mcpagent/tools/math"
	"github.com/effective-security/mcpagent/tools/stdioserver"
	"github.com/effective-security/xlog"
)

func main() {
	// stdout carries the protocol
	xlog.SetFormatter(xlog.NewStringFormatter(os.Stderr))
	xlog.SetGlobalLogLevel(xlog.WARNING)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := stdioserver.Serve(ctx, "math", os.Stdin, os.Stdout, math.All()...); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %+v\n", err)
		os.Exit(1)
	}
}
