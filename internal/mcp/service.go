package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/sanonone/edgelite/pkg/edge"
	"github.com/sanonone/edgelite/pkg/engine"
	"github.com/sanonone/edgelite/pkg/path"
)

// Service implements the MCP tools on top of an Engine. Every call runs in
// its own session.
type Service struct {
	engine *engine.Engine
}

func NewService(eng *engine.Engine) *Service {
	return &Service{engine: eng}
}

// --- Tool Handlers ---

func (s *Service) Invoke(ctx context.Context, req *mcp.CallToolRequest, args InvokeArgs) (*mcp.CallToolResult, InvokeResult, error) {
	if args.Root == "" {
		return nil, InvokeResult{}, fmt.Errorf("root is required")
	}
	sess := s.engine.NewSession()
	result, err := sess.Invoke(ctx, args.Root, args.IncV)
	if err != nil {
		return nil, InvokeResult{}, err
	}
	if args.DryRun {
		return nil, InvokeResult{Result: result}, nil
	}
	if err := sess.Commit(ctx); err != nil {
		return nil, InvokeResult{}, err
	}
	return nil, InvokeResult{Result: result, Committed: true}, nil
}

func (s *Service) ResolvePath(ctx context.Context, req *mcp.CallToolRequest, args ResolvePathArgs) (*mcp.CallToolResult, ResolvePathResult, error) {
	p, err := path.Parse(args.Path)
	if err != nil {
		return nil, ResolvePathResult{}, err
	}
	if p.Root == "" {
		p.Root = args.Root
	}
	if p.Root == "" {
		return nil, ResolvePathResult{}, fmt.Errorf("path %q needs a root", args.Path)
	}

	points, err := s.engine.NewSession().Get(ctx, p)
	if err != nil {
		return nil, ResolvePathResult{}, err
	}
	if points == nil {
		points = []string{}
	}
	return nil, ResolvePathResult{Points: points}, nil
}

func (s *Service) DumpNode(ctx context.Context, req *mcp.CallToolRequest, args DumpNodeArgs) (*mcp.CallToolResult, DumpNodeResult, error) {
	tree, err := s.engine.NewSession().Dump(ctx, args.Node)
	if err != nil {
		return nil, DumpNodeResult{}, err
	}
	return nil, DumpNodeResult{Tree: tree}, nil
}

func (s *Service) List(ctx context.Context, req *mcp.CallToolRequest, args ListArgs) (*mcp.CallToolResult, ListResult, error) {
	rows, err := s.engine.NewSession().List(ctx, args.Root, args.Dimensions, args.Attrs)
	if err != nil {
		return nil, ListResult{}, err
	}
	if rows == nil {
		rows = []edge.Record{}
	}
	return nil, ListResult{Rows: rows}, nil
}
