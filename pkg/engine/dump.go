package engine

import (
	"context"
	"encoding/json"

	"github.com/sanonone/edgelite/pkg/edge"
)

// Outgoer lists the durable edges leaving a node.
type Outgoer interface {
	Outgoing(ctx context.Context, source string) ([]edge.Edge, error)
}

// Renderer turns the subgraph reachable from root into text.
type Renderer interface {
	Render(ctx context.Context, src Outgoer, root string) (string, error)
}

// IDKey is the object key holding the node identifier in tree dumps.
const IDKey = "$id"

// TreeRenderer renders a node as indented JSON. A node with outgoing edges
// becomes an object keyed by code, each code holding the list of rendered
// targets in order; a node without edges, one already rendered, or one past
// MaxDepth is rendered as its bare identifier.
type TreeRenderer struct {
	// MaxDepth limits the descent. Zero means unlimited.
	MaxDepth int
	Indent   string
}

func (r TreeRenderer) Render(ctx context.Context, src Outgoer, root string) (string, error) {
	v, err := r.node(ctx, src, root, 0, make(map[string]bool))
	if err != nil {
		return "", err
	}
	indent := r.Indent
	if indent == "" {
		indent = "  "
	}
	b, err := json.MarshalIndent(v, "", indent)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r TreeRenderer) node(ctx context.Context, src Outgoer, id string, depth int, seen map[string]bool) (any, error) {
	if seen[id] || (r.MaxDepth > 0 && depth >= r.MaxDepth) {
		return id, nil
	}
	seen[id] = true

	edges, err := src.Outgoing(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(edges) == 0 {
		return id, nil
	}

	children := make(map[string][]any)
	for _, e := range edges {
		child, err := r.node(ctx, src, e.Target, depth+1, seen)
		if err != nil {
			return nil, err
		}
		children[e.Code] = append(children[e.Code], child)
	}
	out := make(map[string]any, len(children)+1)
	out[IDKey] = id
	for code, list := range children {
		out[code] = list
	}
	return out, nil
}
