// Package memstore is an edge.Store kept in ordered in-memory trees.
//
// Opened with a path, every write is first appended to a persistence.Log as
// one frame and replayed on the next Open, so a committed batch survives a
// restart as a unit.
package memstore

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/tidwall/btree"

	"github.com/sanonone/edgelite/pkg/edge"
	"github.com/sanonone/edgelite/pkg/persistence"
)

const (
	cmdPut = "PUT"
	cmdDel = "DEL"
)

// Store is the in-memory backend.
type Store struct {
	mu   sync.RWMutex
	fwd  *btree.BTreeG[edge.Edge]
	rev  *btree.BTreeG[edge.Edge]
	byID map[string]edge.Edge

	log *persistence.Log
}

var _ edge.Store = (*Store)(nil)

// New returns an empty, volatile store.
func New() *Store {
	opts := btree.Options{NoLocks: true}
	return &Store{
		fwd:  btree.NewBTreeGOptions(edge.Less, opts),
		rev:  btree.NewBTreeGOptions(edge.LessReverse, opts),
		byID: make(map[string]edge.Edge),
	}
}

// Open returns a store backed by the log at path, replaying its contents.
func Open(path string, syncWrites bool) (*Store, error) {
	l, err := persistence.OpenLog(path, syncWrites)
	if err != nil {
		return nil, err
	}
	s := New()
	n, err := l.Replay(s.replay)
	if err != nil {
		_ = l.Close()
		return nil, fmt.Errorf("replay %s: %w", path, err)
	}
	s.log = l
	slog.Info("Edge log replayed", "path", path, "frames", n, "edges", len(s.byID))
	return s, nil
}

func (s *Store) replay(cmds []*persistence.Command) error {
	for _, cmd := range cmds {
		switch cmd.Name {
		case cmdPut:
			if len(cmd.Args) != 5 {
				return fmt.Errorf("PUT: expected 5 arguments, got %d", len(cmd.Args))
			}
			no, err := strconv.ParseUint(string(cmd.Args[4]), 10, 64)
			if err != nil {
				return fmt.Errorf("PUT: bad no: %w", err)
			}
			s.put(edge.Edge{
				ID:     string(cmd.Args[0]),
				Source: string(cmd.Args[1]),
				Code:   string(cmd.Args[2]),
				Target: string(cmd.Args[3]),
				No:     no,
			})
		case cmdDel:
			if len(cmd.Args) != 1 {
				return fmt.Errorf("DEL: expected 1 argument, got %d", len(cmd.Args))
			}
			if e, ok := s.byID[string(cmd.Args[0])]; ok {
				s.del(e)
			}
		default:
			return fmt.Errorf("unknown log command %q", cmd.Name)
		}
	}
	return nil
}

func putCommand(e edge.Edge) string {
	return persistence.FormatCommand(cmdPut,
		[]byte(e.ID), []byte(e.Source), []byte(e.Code), []byte(e.Target),
		[]byte(strconv.FormatUint(e.No, 10)))
}

func delCommand(e edge.Edge) string {
	return persistence.FormatCommand(cmdDel, []byte(e.ID))
}

func (s *Store) put(e edge.Edge) {
	if old, ok := s.byID[e.ID]; ok {
		s.del(old)
	}
	s.fwd.Set(e)
	s.rev.Set(e)
	s.byID[e.ID] = e
}

func (s *Store) del(e edge.Edge) {
	s.fwd.Delete(e)
	s.rev.Delete(e)
	delete(s.byID, e.ID)
}

// apply logs and then performs the deletions followed by the insertions.
// Callers hold the write lock.
func (s *Store) apply(op string, dels, puts []edge.Edge) error {
	if len(dels) == 0 && len(puts) == 0 {
		return nil
	}
	if s.log != nil {
		cmds := make([]string, 0, len(dels)+len(puts))
		for _, e := range dels {
			cmds = append(cmds, delCommand(e))
		}
		for _, e := range puts {
			cmds = append(cmds, putCommand(e))
		}
		if err := s.log.Append(cmds...); err != nil {
			return edge.WrapStore(op, err)
		}
	}
	for _, e := range dels {
		s.del(e)
	}
	for _, e := range puts {
		s.put(e)
	}
	return nil
}

func (s *Store) Insert(ctx context.Context, e edge.Edge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.apply("insert", nil, []edge.Edge{e})
}

func (s *Store) InsertBatch(ctx context.Context, edges []edge.Edge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.apply("insert_batch", nil, edges)
}

func (s *Store) ApplyBatch(ctx context.Context, b edge.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var dels []edge.Edge
	for _, k := range b.Resets {
		dels = append(dels, s.targets(k.Source, k.Code)...)
	}
	return s.apply("apply_batch", dels, b.Inserts)
}

func (s *Store) targets(source, code string) []edge.Edge {
	var out []edge.Edge
	s.fwd.Ascend(edge.Edge{Source: source, Code: code}, func(e edge.Edge) bool {
		if e.Source != source || e.Code != code {
			return false
		}
		out = append(out, e)
		return true
	})
	return out
}

func (s *Store) sources(code, target string) []edge.Edge {
	var out []edge.Edge
	s.rev.Ascend(edge.Edge{Code: code, Target: target}, func(e edge.Edge) bool {
		if e.Code != code || e.Target != target {
			return false
		}
		out = append(out, e)
		return true
	})
	return out
}

func (s *Store) byCode(code string) []edge.Edge {
	var out []edge.Edge
	s.rev.Ascend(edge.Edge{Code: code}, func(e edge.Edge) bool {
		if e.Code != code {
			return false
		}
		out = append(out, e)
		return true
	})
	return out
}

func (s *Store) outgoing(source string) []edge.Edge {
	var out []edge.Edge
	s.fwd.Ascend(edge.Edge{Source: source}, func(e edge.Edge) bool {
		if e.Source != source {
			return false
		}
		out = append(out, e)
		return true
	})
	return out
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
	s.mu.RLock()
	defer s.mu.RUnlock()

	edges := s.targets(source, code)
	rows := make([]edge.Row, len(edges))
	for i, e := range edges {
		rows[i] = edge.Row{ID: e.ID, No: e.No, Point: e.Target}
	}
	return rows, nil
}

func (s *Store) SelectSourcesOrdered(ctx context.Context, code, target string) ([]edge.Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	edges := s.sources(code, target)
	rows := make([]edge.Row, len(edges))
	for i, e := range edges {
		rows[i] = edge.Row{ID: e.ID, No: e.No, Point: e.Source}
	}
	return rows, nil
}

func (s *Store) SelectOutgoing(ctx context.Context, source string) ([]edge.Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.outgoing(source), nil
}

func (s *Store) DeleteBySourceCode(ctx context.Context, source, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.apply("delete_by_source_code", s.targets(source, code), nil)
}

func (s *Store) DeleteByPoint(ctx context.Context, point string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dels := s.outgoing(point)
	s.rev.Scan(func(e edge.Edge) bool {
		if e.Target == point && e.Source != point {
			dels = append(dels, e)
		}
		return true
	})
	return s.apply("delete_by_point", dels, nil)
}

func (s *Store) DeleteByCode(ctx context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.apply("delete_by_code", s.byCode(code), nil)
}

func (s *Store) DeleteCodeWithoutSource(ctx context.Context, code, sourceCode string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var dels []edge.Edge
	for _, e := range s.byCode(code) {
		if len(s.sources(sourceCode, e.Source)) == 0 {
			dels = append(dels, e)
		}
	}
	return s.apply("delete_code_without_source", dels, nil)
}

func (s *Store) DeleteCodeWithoutTarget(ctx context.Context, code, targetCode string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var dels []edge.Edge
	for _, e := range s.byCode(code) {
		if len(s.targets(e.Target, targetCode)) == 0 {
			dels = append(dels, e)
		}
	}
	return s.apply("delete_code_without_target", dels, nil)
}

// Len returns the number of stored edges.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// LogSize returns the size of the backing log, or zero for a volatile store.
func (s *Store) LogSize() (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.log == nil {
		return 0, nil
	}
	return s.log.Size()
}

// Compact rewrites the log so it holds only the live edges.
func (s *Store) Compact() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.log == nil {
		return nil
	}
	cmds := make([]string, 0, len(s.byID))
	s.fwd.Scan(func(e edge.Edge) bool {
		cmds = append(cmds, putCommand(e))
		return true
	})
	if err := s.log.Rewrite(cmds); err != nil {
		return edge.WrapStore("compact", err)
	}
	slog.Info("Edge log compacted", "path", s.log.Path(), "edges", len(cmds))
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.log == nil {
		return nil
	}
	err := s.log.Close()
	s.log = nil
	return err
}
