// Package mcp exposes the edge interpreter as Model Context Protocol tools.
package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/sanonone/edgelite/pkg/engine"
)

// Version is reported to MCP clients.
const Version = "0.1.0"

func NewMCPServer(eng *engine.Engine) *mcp.Server {
	service := NewService(eng)

	s := mcp.NewServer(&mcp.Implementation{
		Name:    "edgelite",
		Version: Version,
	}, nil)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "invoke",
		Description: "Run an instruction program (set, append, asign, delete, dc, dc_ns, dc_nt, dump, return) against a root node and commit its writes.",
	}, service.Invoke)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "resolve_path",
		Description: "Evaluate a path expression over the graph without modifying it and return every node it reaches.",
	}, service.ResolvePath)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "dump_node",
		Description: "Render the subgraph reachable from a node as indented JSON.",
	}, service.DumpNode)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "list",
		Description: "Build a table by fanning out over dimension codes from a root, with attribute columns per row.",
	}, service.List)

	return s
}

// ServeStdio serves the tools over stdin/stdout until ctx is cancelled or
// the client disconnects.
func ServeStdio(ctx context.Context, eng *engine.Engine) error {
	return NewMCPServer(eng).Run(ctx, &mcp.StdioTransport{})
}
