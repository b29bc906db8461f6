// Package stdioserver runs MCP tool servers over standard streams
package stdioserver

import (
	"context"
	"io"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpagent/tools"
	"github.com/effective-security/xlog"
	mcp "github.com/metoro-io/mcp-golang"
	"github.com/metoro-io/mcp-golang/transport/stdio"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpagent", "stdioserver")

// Serve registers the tools and serves MCP requests from in to out,
// until ctx is done or in is closed by the client.
func Serve(ctx context.Context, name string, in io.Reader, out io.Writer, list ...tools.IMCPTool) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	reader := &eofReader{r: in, onEOF: cancel}
	server := mcp.NewServer(stdio.NewStdioServerTransportWithIO(reader, out))

	if err := tools.RegisterAll(server, list...); err != nil {
		return err
	}

	if err := server.Serve(); err != nil {
		return errors.Wrapf(err, "failed to serve %q", name)
	}

	logger.KV(xlog.INFO, "status", "serving", "server", name, "tools", tools.Names(list...))
	<-ctx.Done()
	logger.KV(xlog.INFO, "status", "stopped", "server", name)
	return nil
}

// eofReader calls onEOF once, when the reader is closed by the peer
type eofReader struct {
	r     io.Reader
	onEOF func()
	once  sync.Once
}

func (e *eofReader) Read(p []byte) (int, error) {
	n, err := e.r.Read(p)
	if err != nil {
		e.once.Do(e.onEOF)
	}
	return n, err
}
