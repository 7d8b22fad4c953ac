package engine

import (
	"context"

	"github.com/sanonone/edgelite/pkg/edge"
	"github.com/sanonone/edgelite/pkg/gateway"
	"github.com/sanonone/edgelite/pkg/path"
)

// Session is one unit of work: a gateway with its own staging cache plus
// the resolver and interpreter bound to it. Writes become durable on
// Commit; a session dropped without committing discards them.
type Session struct {
	gw       *gateway.Gateway
	resolver *path.Resolver
	interp   *Interpreter
	opts     Options
}

func newSession(gw *gateway.Gateway, opts Options) *Session {
	resolver := path.NewResolver(gw)
	return &Session{
		gw:       gw,
		resolver: resolver,
		interp:   NewInterpreter(gw, resolver, TreeRenderer{}, opts.MaxSteps, opts.Logger),
		opts:     opts,
	}
}

// Gateway exposes the session's mutation gateway.
func (s *Session) Gateway() *gateway.Gateway { return s.gw }

// Resolver exposes the session's path resolver.
func (s *Session) Resolver() *path.Resolver { return s.resolver }

// Invoke compiles and runs incs with root as the run root. Writes stay
// staged until Commit.
func (s *Session) Invoke(ctx context.Context, root string, incs []Inc) (string, error) {
	prog, err := Compile(incs)
	if err != nil {
		return "", err
	}
	return s.interp.Run(ctx, root, prog)
}

// Commit flushes staged writes.
func (s *Session) Commit(ctx context.Context) error {
	return s.gw.Commit(ctx)
}

// Get evaluates p over frontiers.
func (s *Session) Get(ctx context.Context, p path.Path) ([]string, error) {
	return s.resolver.Get(ctx, p)
}

// Resolve descends raw from current, creating missing edges.
func (s *Session) Resolve(ctx context.Context, raw, current string) (string, error) {
	return s.resolver.ResolveString(ctx, raw, current)
}

// List aggregates a table from the durable graph.
func (s *Session) List(ctx context.Context, root string, dimensions, attrs []string) ([]edge.Record, error) {
	return s.gw.GetList(ctx, root, dimensions, attrs)
}

// Dump renders the durable subgraph reachable from node.
func (s *Session) Dump(ctx context.Context, node string) (string, error) {
	return s.interp.renderer.Render(ctx, s.gw, node)
}

// Divide returns an independent session over the same store.
func (s *Session) Divide() *Session {
	return newSession(s.gw.Divide(), s.opts)
}
