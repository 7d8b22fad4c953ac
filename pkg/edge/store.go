package edge

import "context"

// Store is the durable edge table.
//
// Ordered lookups return rows by ascending no, ties broken by ascending id.
// Point lookups return the first row of the same order, or ErrNotFound.
// Every other failure is reported as a *StoreError.
type Store interface {
	Insert(ctx context.Context, e Edge) error
	InsertBatch(ctx context.Context, edges []Edge) error

	// ApplyBatch deletes every edge under b.Resets, then inserts b.Inserts,
	// as one atomic write.
	ApplyBatch(ctx context.Context, b Batch) error

	SelectTarget(ctx context.Context, source, code string) (Row, error)
	SelectSource(ctx context.Context, code, target string) (Row, error)
	SelectTargetsOrdered(ctx context.Context, source, code string) ([]Row, error)
	SelectSourcesOrdered(ctx context.Context, code, target string) ([]Row, error)

	// SelectOutgoing returns every edge leaving source ordered by code, no, id.
	SelectOutgoing(ctx context.Context, source string) ([]Edge, error)

	DeleteBySourceCode(ctx context.Context, source, code string) error
	// DeleteByPoint removes every edge whose source or target is point.
	DeleteByPoint(ctx context.Context, point string) error
	DeleteByCode(ctx context.Context, code string) error
	// DeleteCodeWithoutSource removes edges labeled code whose source is not
	// the target of any edge labeled sourceCode.
	DeleteCodeWithoutSource(ctx context.Context, code, sourceCode string) error
	// DeleteCodeWithoutTarget removes edges labeled code whose target is not
	// the source of any edge labeled targetCode.
	DeleteCodeWithoutTarget(ctx context.Context, code, targetCode string) error

	Close() error
}

// FirstRow returns the first row of an ordered result or ErrNotFound.
func FirstRow(rows []Row) (Row, error) {
	if len(rows) == 0 {
		return Row{}, ErrNotFound
	}
	return rows[0], nil
}

// Points projects rows onto their point column.
func Points(rows []Row) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.Point
	}
	return out
}
