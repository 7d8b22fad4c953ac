package path

import (
	"context"
	"errors"
	"fmt"

	"github.com/sanonone/edgelite/pkg/gateway"
)

// ErrNotWritable is returned by Set and Append for paths that do not end
// in a forward step.
var ErrNotWritable = errors.New("path does not end in a forward step")

// Resolver evaluates paths through a session's gateway.
type Resolver struct {
	gw *gateway.Gateway
}

// NewResolver returns a resolver over gw.
func NewResolver(gw *gateway.Gateway) *Resolver {
	return &Resolver{gw: gw}
}

// Get evaluates p over a frontier. Each step replaces the frontier with the
// union of its neighbors under the step's code, in first-seen order. An
// empty frontier propagates to the end.
func (r *Resolver) Get(ctx context.Context, p Path) ([]string, error) {
	frontier := []string{p.Root}
	for _, step := range p.Steps {
		seen := make(map[string]struct{})
		var next []string
		for _, node := range frontier {
			var (
				points []string
				err    error
			)
			if step.Dir == Forward {
				points, err = r.gw.GetTargetV(ctx, node, step.Code)
			} else {
				points, err = r.gw.GetSourceV(ctx, step.Code, node)
			}
			if err != nil {
				return nil, err
			}
			for _, pt := range points {
				if _, dup := seen[pt]; dup {
					continue
				}
				seen[pt] = struct{}{}
				next = append(next, pt)
			}
		}
		frontier = next
		if len(frontier) == 0 {
			return nil, nil
		}
	}
	return frontier, nil
}

// Resolve descends from root one point at a time, creating every missing
// edge on the way, and returns the point reached.
func (r *Resolver) Resolve(ctx context.Context, root string, steps []Step) (string, error) {
	point := root
	for _, step := range steps {
		var err error
		if step.Dir == Forward {
			point, err = r.GetTargetAnyway(ctx, point, step.Code)
		} else {
			point, err = r.GetSourceAnyway(ctx, step.Code, point)
		}
		if err != nil {
			return "", err
		}
	}
	return point, nil
}

// ResolveString parses raw and resolves it. An empty root in raw is
// replaced by current.
func (r *Resolver) ResolveString(ctx context.Context, raw, current string) (string, error) {
	p, err := Parse(raw)
	if err != nil {
		return "", err
	}
	root := p.Root
	if root == "" {
		root = current
	}
	return r.Resolve(ctx, root, p.Steps)
}

// GetTargetAnyway returns the first target under (source, code), creating
// an edge to a fresh node when there is none.
func (r *Resolver) GetTargetAnyway(ctx context.Context, source, code string) (string, error) {
	target, ok, err := r.gw.LookupTarget(ctx, source, code)
	if err != nil || ok {
		return target, err
	}
	target = r.gw.NewID()
	if _, err := r.gw.AppendTarget(ctx, source, code, target); err != nil {
		return "", err
	}
	return target, nil
}

// GetSourceAnyway returns the first source of (code, target), creating an
// edge from a fresh node when there is none.
func (r *Resolver) GetSourceAnyway(ctx context.Context, code, target string) (string, error) {
	source, ok, err := r.gw.LookupSource(ctx, code, target)
	if err != nil || ok {
		return source, err
	}
	source = r.gw.NewID()
	if _, err := r.gw.InsertEdge(ctx, source, code, 0, target); err != nil {
		return "", err
	}
	return source, nil
}

// SetTarget makes target the only edge under (source, code).
func (r *Resolver) SetTarget(ctx context.Context, source, code, target string) error {
	_, err := r.gw.SetTarget(ctx, source, code, target)
	return err
}

// Set replaces the targets under the last step of p with items, on every
// node the rest of p evaluates to.
func (r *Resolver) Set(ctx context.Context, p Path, items []string) error {
	return r.write(ctx, p, items, true)
}

// Append adds items under the last step of p on every node the rest of p
// evaluates to.
func (r *Resolver) Append(ctx context.Context, p Path, items []string) error {
	return r.write(ctx, p, items, false)
}

func (r *Resolver) write(ctx context.Context, p Path, items []string, overwrite bool) error {
	if len(p.Steps) == 0 || p.Steps[len(p.Steps)-1].Dir != Forward {
		return fmt.Errorf("%w: %q", ErrNotWritable, p.String())
	}
	code := p.Steps[len(p.Steps)-1].Code
	nodes, err := r.Get(ctx, p.Parent())
	if err != nil {
		return err
	}
	for _, node := range nodes {
		if overwrite {
			if err := r.gw.ClearTargets(ctx, node, code); err != nil {
				return err
			}
		}
		for _, item := range items {
			if _, err := r.gw.AppendTarget(ctx, node, code, item); err != nil {
				return err
			}
		}
	}
	return nil
}
