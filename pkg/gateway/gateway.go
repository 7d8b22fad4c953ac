// Package gateway combines a session's staging cache with the shared edge
// store.
//
// Every write is classified first: edges carrying the sigil live only in
// the cache, everything else is staged and flushed by Commit. Reads consult
// the cache and fall back to the store, loading the whole (source, code)
// list on first touch so the cached view of a key is always complete.
//
// A Gateway belongs to one session and must not be used concurrently. Use
// Divide to obtain an independent session over the same store.
package gateway

import (
	"cmp"
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/sanonone/edgelite/pkg/edge"
	"github.com/sanonone/edgelite/pkg/metrics"
	"github.com/sanonone/edgelite/pkg/staging"
)

// Gateway is the mutation gateway of one session.
type Gateway struct {
	store  edge.Store
	cache  *staging.Cache
	newID  edge.IDGenerator
	logger *slog.Logger
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithIDGenerator replaces the default uuid based generator.
func WithIDGenerator(gen edge.IDGenerator) Option {
	return func(g *Gateway) { g.newID = gen }
}

// WithLogger sets the logger used for debug traces.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) { g.logger = l }
}

// New returns a gateway with an empty cache in front of store.
func New(store edge.Store, opts ...Option) *Gateway {
	g := &Gateway{
		store:  store,
		cache:  staging.New(),
		newID:  edge.NewID,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Divide returns a new session sharing the store but never the cache.
func (g *Gateway) Divide() *Gateway {
	return &Gateway{
		store:  g.store,
		cache:  staging.New(),
		newID:  g.newID,
		logger: g.logger,
	}
}

// NewID returns a fresh identifier from the session's generator.
func (g *Gateway) NewID() string {
	return g.newID()
}

// Pending returns what the next Commit would flush.
func (g *Gateway) Pending() edge.Batch {
	return g.cache.Pending()
}

// CacheLen reports the number of temporary and durable cache entries.
func (g *Gateway) CacheLen() (temp, durable int) {
	return g.cache.Len()
}

// InsertEdge stages one edge with an explicit ordering number.
func (g *Gateway) InsertEdge(ctx context.Context, source, code string, no uint64, target string) (string, error) {
	e := edge.Edge{ID: g.newID(), Source: source, Code: code, Target: target, No: no}
	g.cache.Insert(e, true)
	g.logger.Debug("insert_edge", "edge", e.String(), "temp", e.Temp())
	return e.ID, nil
}

// SetTarget makes target the only edge under (source, code). A temporary
// target on a durable key only shadows the key inside this session: the
// durable rows are left in the store.
func (g *Gateway) SetTarget(ctx context.Context, source, code, target string) (string, error) {
	e := edge.Edge{ID: g.newID(), Source: source, Code: code, Target: target}
	if e.Temp() && !edge.IsTemp(source, code) {
		if err := g.ensureLoaded(ctx, source, code); err != nil {
			return "", err
		}
		g.cache.Shadow(e)
	} else {
		g.cache.Replace(e)
	}
	g.logger.Debug("set_target", "edge", e.String(), "temp", e.Temp())
	return e.ID, nil
}

// ClearTargets removes every edge under (source, code). Like SetTarget the
// durable deletion is deferred to the next commit.
func (g *Gateway) ClearTargets(ctx context.Context, source, code string) error {
	g.cache.Reset(source, code)
	g.logger.Debug("clear_targets", "source", source, "code", code)
	return nil
}

// AppendTarget adds target at the end of the list under (source, code).
func (g *Gateway) AppendTarget(ctx context.Context, source, code, target string) (string, error) {
	if err := g.ensureLoaded(ctx, source, code); err != nil {
		return "", err
	}
	var no uint64
	if max, ok := g.cache.MaxNo(source, code); ok {
		no = max + 1
	}
	e := edge.Edge{ID: g.newID(), Source: source, Code: code, Target: target, No: no}
	g.cache.Insert(e, true)
	g.logger.Debug("append_target", "edge", e.String(), "temp", e.Temp())
	return e.ID, nil
}

// LookupTarget returns the first target under (source, code). The boolean
// is false when no edge matches.
func (g *Gateway) LookupTarget(ctx context.Context, source, code string) (string, bool, error) {
	if edge.IsTemp(source, code) || g.cache.Loaded(source, code) {
		metrics.CacheLookupsTotal.WithLabelValues("hit").Inc()
	} else {
		metrics.CacheLookupsTotal.WithLabelValues("miss").Inc()
		if err := g.ensureLoaded(ctx, source, code); err != nil {
			return "", false, err
		}
	}
	en, ok := g.cache.First(source, code)
	if !ok {
		return "", false, nil
	}
	return en.Target, true, nil
}

// LookupSource returns the first source pointing at target through code.
func (g *Gateway) LookupSource(ctx context.Context, code, target string) (string, bool, error) {
	if edge.IsTemp(code, target) || g.cache.LoadedRev(code, target) {
		metrics.CacheLookupsTotal.WithLabelValues("hit").Inc()
	} else {
		metrics.CacheLookupsTotal.WithLabelValues("miss").Inc()
		if err := g.ensureLoadedRev(ctx, code, target); err != nil {
			return "", false, err
		}
	}
	en, ok := g.cache.FirstSource(code, target)
	if !ok {
		return "", false, nil
	}
	return en.Source, true, nil
}

// GetTarget is LookupTarget reporting a miss as edge.ErrNotFound.
func (g *Gateway) GetTarget(ctx context.Context, source, code string) (string, error) {
	target, ok, err := g.LookupTarget(ctx, source, code)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", edge.ErrNotFound
	}
	return target, nil
}

// GetSource is LookupSource reporting a miss as edge.ErrNotFound.
func (g *Gateway) GetSource(ctx context.Context, code, target string) (string, error) {
	source, ok, err := g.LookupSource(ctx, code, target)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", edge.ErrNotFound
	}
	return source, nil
}

// GetTargetV returns every target under (source, code) in list order.
// Temporary keys are answered by the cache. Durable keys are committed and
// re-read from the store, merged with any temporary edges under the key by
// (no, id).
func (g *Gateway) GetTargetV(ctx context.Context, source, code string) ([]string, error) {
	if edge.IsTemp(source, code) {
		return entryTargets(g.cache.Targets(source, code)), nil
	}
	if err := g.Commit(ctx); err != nil {
		return nil, err
	}
	done := observe("select_targets_ordered")
	rows, err := g.store.SelectTargetsOrdered(ctx, source, code)
	done()
	if err != nil {
		return nil, edge.WrapStore("select_targets_ordered", err)
	}
	rows = slices.DeleteFunc(rows, func(r edge.Row) bool { return g.cache.Hidden(r.ID) })
	for _, en := range g.cache.Targets(source, code) {
		rows = append(rows, edge.Row{ID: en.ID, No: en.No, Point: en.Target})
	}
	return edge.Points(sortRows(rows)), nil
}

// GetSourceV returns every source pointing at target through code.
func (g *Gateway) GetSourceV(ctx context.Context, code, target string) ([]string, error) {
	if edge.IsTemp(code, target) {
		return entrySources(g.cache.Sources(code, target)), nil
	}
	if err := g.Commit(ctx); err != nil {
		return nil, err
	}
	done := observe("select_sources_ordered")
	rows, err := g.store.SelectSourcesOrdered(ctx, code, target)
	done()
	if err != nil {
		return nil, edge.WrapStore("select_sources_ordered", err)
	}
	rows = slices.DeleteFunc(rows, func(r edge.Row) bool { return g.cache.Hidden(r.ID) })
	for _, en := range g.cache.Sources(code, target) {
		rows = append(rows, edge.Row{ID: en.ID, No: en.No, Point: en.Source})
	}
	return edge.Points(sortRows(rows)), nil
}

// GetList commits and aggregates a table from the durable graph.
func (g *Gateway) GetList(ctx context.Context, root string, dimensions, attrs []string) ([]edge.Record, error) {
	if err := g.Commit(ctx); err != nil {
		return nil, err
	}
	defer observe("aggregate")()
	records, err := edge.Aggregate(ctx, g.store, root, dimensions, attrs)
	return records, edge.WrapStore("aggregate", err)
}

// Outgoing commits and returns every durable edge leaving source.
func (g *Gateway) Outgoing(ctx context.Context, source string) ([]edge.Edge, error) {
	if err := g.Commit(ctx); err != nil {
		return nil, err
	}
	defer observe("select_outgoing")()
	edges, err := g.store.SelectOutgoing(ctx, source)
	return edges, edge.WrapStore("select_outgoing", err)
}

// Commit flushes every staged durable edge as one batch and drops the
// durable part of the cache. Temporary edges stay valid for the rest of the
// session. On failure the cache is left untouched.
func (g *Gateway) Commit(ctx context.Context) error {
	b := g.cache.Pending()
	if !b.Empty() {
		done := observe("apply_batch")
		err := g.store.ApplyBatch(ctx, b)
		done()
		if err != nil {
			return edge.WrapStore("apply_batch", err)
		}
		metrics.CommitsTotal.Inc()
		metrics.CommittedEdgesTotal.Add(float64(len(b.Inserts)))
		g.logger.Debug("commit", "resets", len(b.Resets), "inserts", len(b.Inserts))
	}
	g.cache.ClearDurable()
	return nil
}

// Delete removes every edge touching point.
func (g *Gateway) Delete(ctx context.Context, point string) error {
	if err := g.Commit(ctx); err != nil {
		return err
	}
	g.logger.Debug("delete", "point", point)
	done := observe("delete_by_point")
	err := g.store.DeleteByPoint(ctx, point)
	done()
	if err != nil {
		return edge.WrapStore("delete_by_point", err)
	}
	g.cache.PurgeTemp(func(e edge.Edge) bool {
		return e.Source == point || e.Target == point
	})
	return nil
}

// DeleteCode removes every edge labeled code.
func (g *Gateway) DeleteCode(ctx context.Context, code string) error {
	if err := g.Commit(ctx); err != nil {
		return err
	}
	g.logger.Debug("delete_code", "code", code)
	done := observe("delete_by_code")
	err := g.store.DeleteByCode(ctx, code)
	done()
	if err != nil {
		return edge.WrapStore("delete_by_code", err)
	}
	g.cache.PurgeTemp(func(e edge.Edge) bool { return e.Code == code })
	return nil
}

// DeleteCodeWithoutSource removes edges labeled code whose source is not
// reached by any edge labeled sourceCode.
func (g *Gateway) DeleteCodeWithoutSource(ctx context.Context, code, sourceCode string) error {
	if err := g.Commit(ctx); err != nil {
		return err
	}
	g.logger.Debug("delete_code_without_source", "code", code, "source_code", sourceCode)
	done := observe("delete_code_without_source")
	err := g.store.DeleteCodeWithoutSource(ctx, code, sourceCode)
	done()
	if err != nil {
		return edge.WrapStore("delete_code_without_source", err)
	}
	return g.purgeTempWithout(code, func(e edge.Edge) (bool, error) {
		return g.hasSource(ctx, sourceCode, e.Source)
	})
}

// DeleteCodeWithoutTarget removes edges labeled code whose target has no
// outgoing edge labeled targetCode.
func (g *Gateway) DeleteCodeWithoutTarget(ctx context.Context, code, targetCode string) error {
	if err := g.Commit(ctx); err != nil {
		return err
	}
	g.logger.Debug("delete_code_without_target", "code", code, "target_code", targetCode)
	done := observe("delete_code_without_target")
	err := g.store.DeleteCodeWithoutTarget(ctx, code, targetCode)
	done()
	if err != nil {
		return edge.WrapStore("delete_code_without_target", err)
	}
	return g.purgeTempWithout(code, func(e edge.Edge) (bool, error) {
		return g.hasTarget(ctx, e.Target, targetCode)
	})
}

func (g *Gateway) purgeTempWithout(code string, hasNeighbor func(edge.Edge) (bool, error)) error {
	var lookupErr error
	g.cache.PurgeTemp(func(e edge.Edge) bool {
		if lookupErr != nil || e.Code != code {
			return false
		}
		ok, err := hasNeighbor(e)
		if err != nil {
			lookupErr = err
			return false
		}
		return !ok
	})
	return lookupErr
}

func (g *Gateway) hasSource(ctx context.Context, code, target string) (bool, error) {
	if len(g.cache.Sources(code, target)) > 0 {
		return true, nil
	}
	_, err := g.store.SelectSource(ctx, code, target)
	return found(err, "select_source")
}

func (g *Gateway) hasTarget(ctx context.Context, source, code string) (bool, error) {
	if len(g.cache.Targets(source, code)) > 0 {
		return true, nil
	}
	_, err := g.store.SelectTarget(ctx, source, code)
	return found(err, "select_target")
}

func found(err error, op string) (bool, error) {
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, edge.ErrNotFound):
		return false, nil
	default:
		return false, edge.WrapStore(op, err)
	}
}

func (g *Gateway) ensureLoaded(ctx context.Context, source, code string) error {
	if edge.IsTemp(source, code) || g.cache.Loaded(source, code) {
		return nil
	}
	done := observe("select_targets_ordered")
	rows, err := g.store.SelectTargetsOrdered(ctx, source, code)
	done()
	if err != nil {
		return edge.WrapStore("select_targets_ordered", err)
	}
	g.cache.Load(source, code, rows)
	return nil
}

func (g *Gateway) ensureLoadedRev(ctx context.Context, code, target string) error {
	if edge.IsTemp(code, target) || g.cache.LoadedRev(code, target) {
		return nil
	}
	done := observe("select_sources_ordered")
	rows, err := g.store.SelectSourcesOrdered(ctx, code, target)
	done()
	if err != nil {
		return edge.WrapStore("select_sources_ordered", err)
	}
	g.cache.LoadRev(code, target, rows)
	return nil
}

func entryTargets(entries []staging.Entry) []string {
	out := make([]string, 0, len(entries))
	for _, en := range entries {
		out = append(out, en.Target)
	}
	return out
}

func entrySources(entries []staging.Entry) []string {
	out := make([]string, 0, len(entries))
	for _, en := range entries {
		out = append(out, en.Source)
	}
	return out
}

// sortRows orders rows by (no, id), the order of every ordered lookup.
func sortRows(rows []edge.Row) []edge.Row {
	slices.SortStableFunc(rows, func(a, b edge.Row) int {
		if c := cmp.Compare(a.No, b.No); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return rows
}

func observe(op string) func() {
	start := time.Now()
	return func() {
		metrics.StoreOperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
}
