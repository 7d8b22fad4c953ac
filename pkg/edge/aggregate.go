package edge

import (
	"context"
	"errors"
	"maps"
)

// PointColumn is the record column holding the node a row ended on.
const PointColumn = "$point"

// Record is one row produced by Aggregate.
type Record map[string]any

// Aggregate builds a table out of the durable graph.
//
// Starting at root, every dimension is followed forward in order, fanning
// out over all targets; each resulting row records the node reached under
// each dimension. Each row then gets one column per attribute holding the
// first target of (point, attr), or nil when there is none.
func Aggregate(ctx context.Context, s Store, root string, dimensions, attrs []string) ([]Record, error) {
	type partial struct {
		point string
		rec   Record
	}

	rows := []partial{{point: root, rec: Record{}}}
	for _, dim := range dimensions {
		var next []partial
		for _, p := range rows {
			targets, err := s.SelectTargetsOrdered(ctx, p.point, dim)
			if err != nil {
				return nil, err
			}
			for _, t := range targets {
				rec := maps.Clone(p.rec)
				rec[dim] = t.Point
				next = append(next, partial{point: t.Point, rec: rec})
			}
		}
		rows = next
	}

	out := make([]Record, 0, len(rows))
	for _, p := range rows {
		p.rec[PointColumn] = p.point
		for _, attr := range attrs {
			r, err := s.SelectTarget(ctx, p.point, attr)
			switch {
			case err == nil:
				p.rec[attr] = r.Point
			case errors.Is(err, ErrNotFound):
				p.rec[attr] = nil
			default:
				return nil, err
			}
		}
		out = append(out, p.rec)
	}
	return out, nil
}
