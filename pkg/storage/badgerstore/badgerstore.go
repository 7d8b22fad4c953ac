// Package badgerstore keeps edges in an embedded BadgerDB.
//
// Each edge is stored once under its id and indexed three times:
//
//	e:<id>                               -> JSON edge
//	f:<source>\x00<code>\x00<no><id>     -> target
//	r:<code>\x00<target>\x00<no><id>     -> source
//	t:<target>\x00<id>                   -> (empty)
//
// no is encoded as 8 big-endian bytes, so a prefix scan over f: or r:
// yields rows ordered by no and then id.
package badgerstore

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"

	"github.com/sanonone/edgelite/pkg/edge"
)

// Config holds configuration for a BadgerDB backed store.
type Config struct {
	// Path is the directory for BadgerDB files. Ignored when InMemory.
	Path string

	// InMemory enables in-memory mode (no disk persistence).
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// Logger receives BadgerDB's own log lines. Nil disables them.
	Logger *slog.Logger

	// GCDiscardRatio is the minimum ratio of discardable data before a
	// value log GC pass rewrites a file.
	GCDiscardRatio float64
}

// DefaultConfig returns a durable configuration rooted at path.
func DefaultConfig(path string) Config {
	return Config{
		Path:           path,
		SyncWrites:     true,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryConfig returns a configuration for tests.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Store is the BadgerDB backend.
type Store struct {
	db  *badger.DB
	cfg Config
}

var _ edge.Store = (*Store)(nil)

// Open opens the database described by cfg.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return &Store{db: db, cfg: cfg}, nil
}

const sep = 0x00

func u64(n uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], n)
	return b[:]
}

func prefix(tag byte, parts ...string) []byte {
	b := []byte{tag, ':'}
	for _, p := range parts {
		b = append(b, p...)
		b = append(b, sep)
	}
	return b
}

func edgeKey(id string) []byte {
	return append([]byte("e:"), id...)
}

func fwdKey(e edge.Edge) []byte {
	return append(append(prefix('f', e.Source, e.Code), u64(e.No)...), e.ID...)
}

func revKey(e edge.Edge) []byte {
	return append(append(prefix('r', e.Code, e.Target), u64(e.No)...), e.ID...)
}

func tgtKey(e edge.Edge) []byte {
	return append(prefix('t', e.Target), e.ID...)
}

// splitOrdered splits the <no><id> suffix of an f: or r: key.
func splitOrdered(suffix []byte) (uint64, string, error) {
	if len(suffix) < 8 {
		return 0, "", fmt.Errorf("corrupt index key suffix %q", suffix)
	}
	return binary.BigEndian.Uint64(suffix[:8]), string(suffix[8:]), nil
}

func scan(txn *badger.Txn, p []byte, fn func(key, val []byte) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = p
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Seek(p); it.ValidForPrefix(p); it.Next() {
		item := it.Item()
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if err := fn(item.KeyCopy(nil), val); err != nil {
			return err
		}
	}
	return nil
}

func exists(txn *badger.Txn, p []byte) bool {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = p
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()
	it.Seek(p)
	return it.ValidForPrefix(p)
}

func orderedRows(txn *badger.Txn, p []byte) ([]edge.Row, error) {
	rows := []edge.Row{}
	err := scan(txn, p, func(key, val []byte) error {
		no, id, err := splitOrdered(key[len(p):])
		if err != nil {
			return err
		}
		rows = append(rows, edge.Row{ID: id, No: no, Point: string(val)})
		return nil
	})
	return rows, err
}

// edgesByCode lists every edge labeled code through the r: index.
func edgesByCode(txn *badger.Txn, code string) ([]edge.Edge, error) {
	p := prefix('r', code)
	var out []edge.Edge
	err := scan(txn, p, func(key, val []byte) error {
		rest := key[len(p):]
		i := bytes.IndexByte(rest, sep)
		if i < 0 {
			return fmt.Errorf("corrupt index key %q", key)
		}
		no, id, err := splitOrdered(rest[i+1:])
		if err != nil {
			return err
		}
		out = append(out, edge.Edge{ID: id, Source: string(val), Code: code, Target: string(rest[:i]), No: no})
		return nil
	})
	return out, err
}

func outgoing(txn *badger.Txn, source string) ([]edge.Edge, error) {
	p := prefix('f', source)
	var out []edge.Edge
	err := scan(txn, p, func(key, val []byte) error {
		rest := key[len(p):]
		i := bytes.IndexByte(rest, sep)
		if i < 0 {
			return fmt.Errorf("corrupt index key %q", key)
		}
		no, id, err := splitOrdered(rest[i+1:])
		if err != nil {
			return err
		}
		out = append(out, edge.Edge{ID: id, Source: source, Code: string(rest[:i]), Target: string(val), No: no})
		return nil
	})
	return out, err
}

func incoming(txn *badger.Txn, target string) ([]edge.Edge, error) {
	p := prefix('t', target)
	var ids []string
	if err := scan(txn, p, func(key, _ []byte) error {
		ids = append(ids, string(key[len(p):]))
		return nil
	}); err != nil {
		return nil, err
	}
	out := make([]edge.Edge, 0, len(ids))
	for _, id := range ids {
		e, err := load(txn, id)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func load(txn *badger.Txn, id string) (edge.Edge, error) {
	var e edge.Edge
	item, err := txn.Get(edgeKey(id))
	if err != nil {
		return e, err
	}
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &e)
	})
	return e, err
}

func put(txn *badger.Txn, e edge.Edge) error {
	if old, err := load(txn, e.ID); err == nil {
		if err := remove(txn, old); err != nil {
			return err
		}
	} else if !errors.Is(err, badger.ErrKeyNotFound) {
		return err
	}
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	for _, kv := range [][2][]byte{
		{edgeKey(e.ID), data},
		{fwdKey(e), []byte(e.Target)},
		{revKey(e), []byte(e.Source)},
		{tgtKey(e), nil},
	} {
		if err := txn.Set(kv[0], kv[1]); err != nil {
			return err
		}
	}
	return nil
}

func remove(txn *badger.Txn, e edge.Edge) error {
	for _, k := range [][]byte{edgeKey(e.ID), fwdKey(e), revKey(e), tgtKey(e)} {
		if err := txn.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

func removeAll(txn *badger.Txn, edges []edge.Edge) error {
	for _, e := range edges {
		if err := remove(txn, e); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) update(op string, fn func(txn *badger.Txn) error) error {
	return edge.WrapStore(op, s.db.Update(fn))
}

func (s *Store) view(op string, fn func(txn *badger.Txn) error) error {
	return edge.WrapStore(op, s.db.View(fn))
}

func (s *Store) Insert(ctx context.Context, e edge.Edge) error {
	return s.update("insert", func(txn *badger.Txn) error {
		return put(txn, e)
	})
}

func (s *Store) InsertBatch(ctx context.Context, edges []edge.Edge) error {
	return s.ApplyBatch(ctx, edge.Batch{Inserts: edges})
}

func (s *Store) ApplyBatch(ctx context.Context, b edge.Batch) error {
	if b.Empty() {
		return nil
	}
	return s.update("apply_batch", func(txn *badger.Txn) error {
		for _, k := range b.Resets {
			rows, err := orderedRows(txn, prefix('f', k.Source, k.Code))
			if err != nil {
				return err
			}
			for _, r := range rows {
				if err := remove(txn, edge.Edge{ID: r.ID, Source: k.Source, Code: k.Code, Target: r.Point, No: r.No}); err != nil {
					return err
				}
			}
		}
		for _, e := range b.Inserts {
			if err := put(txn, e); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) SelectTarget(ctx context.Context, source, code string) (edge.Row, error) {
	rows, err := s.SelectTargetsOrdered(ctx, source, code)
	if err != nil {
		return edge.Row{}, err
	}
	return edge.FirstRow(rows)
}

func (s *Store) SelectSource(ctx context.Context, code, target string) (edge.Row, error) {
	rows, err := s.SelectSourcesOrdered(ctx, code, target)
	if err != nil {
		return edge.Row{}, err
	}
	return edge.FirstRow(rows)
}

func (s *Store) SelectTargetsOrdered(ctx context.Context, source, code string) ([]edge.Row, error) {
	var rows []edge.Row
	err := s.view("select_targets_ordered", func(txn *badger.Txn) error {
		var err error
		rows, err = orderedRows(txn, prefix('f', source, code))
		return err
	})
	return rows, err
}

func (s *Store) SelectSourcesOrdered(ctx context.Context, code, target string) ([]edge.Row, error) {
	var rows []edge.Row
	err := s.view("select_sources_ordered", func(txn *badger.Txn) error {
		var err error
		rows, err = orderedRows(txn, prefix('r', code, target))
		return err
	})
	return rows, err
}

func (s *Store) SelectOutgoing(ctx context.Context, source string) ([]edge.Edge, error) {
	var out []edge.Edge
	err := s.view("select_outgoing", func(txn *badger.Txn) error {
		var err error
		out, err = outgoing(txn, source)
		return err
	})
	return out, err
}

func (s *Store) DeleteBySourceCode(ctx context.Context, source, code string) error {
	return s.ApplyBatch(ctx, edge.Batch{Resets: []edge.Key{{Source: source, Code: code}}})
}

func (s *Store) DeleteByPoint(ctx context.Context, point string) error {
	return s.update("delete_by_point", func(txn *badger.Txn) error {
		out, err := outgoing(txn, point)
		if err != nil {
			return err
		}
		in, err := incoming(txn, point)
		if err != nil {
			return err
		}
		seen := make(map[string]bool, len(out))
		for _, e := range out {
			seen[e.ID] = true
		}
		for _, e := range in {
			if !seen[e.ID] {
				out = append(out, e)
			}
		}
		return removeAll(txn, out)
	})
}

func (s *Store) DeleteByCode(ctx context.Context, code string) error {
	return s.update("delete_by_code", func(txn *badger.Txn) error {
		edges, err := edgesByCode(txn, code)
		if err != nil {
			return err
		}
		return removeAll(txn, edges)
	})
}

func (s *Store) DeleteCodeWithoutSource(ctx context.Context, code, sourceCode string) error {
	return s.update("delete_code_without_source", func(txn *badger.Txn) error {
		edges, err := edgesByCode(txn, code)
		if err != nil {
			return err
		}
		var dels []edge.Edge
		for _, e := range edges {
			if !exists(txn, prefix('r', sourceCode, e.Source)) {
				dels = append(dels, e)
			}
		}
		return removeAll(txn, dels)
	})
}

func (s *Store) DeleteCodeWithoutTarget(ctx context.Context, code, targetCode string) error {
	return s.update("delete_code_without_target", func(txn *badger.Txn) error {
		edges, err := edgesByCode(txn, code)
		if err != nil {
			return err
		}
		var dels []edge.Edge
		for _, e := range edges {
			if !exists(txn, prefix('f', e.Target, targetCode)) {
				dels = append(dels, e)
			}
		}
		return removeAll(txn, dels)
	})
}

// Compact runs one value log GC pass.
func (s *Store) Compact() error {
	if s.cfg.InMemory {
		return nil
	}
	ratio := s.cfg.GCDiscardRatio
	if ratio <= 0 || ratio >= 1 {
		ratio = 0.5
	}
	err := s.db.RunValueLogGC(ratio)
	if err == nil {
		slog.Debug("badger value log GC completed")
		return nil
	}
	// ErrNoRewrite means no GC was needed
	if errors.Is(err, badger.ErrNoRewrite) {
		return nil
	}
	return edge.WrapStore("compact", err)
}

func (s *Store) Close() error {
	return s.db.Close()
}
