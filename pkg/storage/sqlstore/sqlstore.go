// Package sqlstore keeps edges in a relational table through database/sql
// and the pure Go modernc.org/sqlite driver.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/sanonone/edgelite/pkg/edge"
)

// MemoryDSN opens a private in-memory database.
const MemoryDSN = ":memory:"

const schema = `
CREATE TABLE IF NOT EXISTS edge_t (
	id     TEXT PRIMARY KEY,
	source TEXT NOT NULL,
	code   TEXT NOT NULL,
	target TEXT NOT NULL,
	no     INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS edge_t_source_code ON edge_t (source, code, no, id);
CREATE INDEX IF NOT EXISTS edge_t_code_target ON edge_t (code, target, no, id);
CREATE INDEX IF NOT EXISTS edge_t_target ON edge_t (target);
`

const (
	insertSQL = `INSERT INTO edge_t (id, source, code, target, no) VALUES (?, ?, ?, ?, ?)`

	selectTargetsSQL = `SELECT id, no, target FROM edge_t WHERE source = ? AND code = ? ORDER BY no, id`
	selectSourcesSQL = `SELECT id, no, source FROM edge_t WHERE code = ? AND target = ? ORDER BY no, id`
	selectOutSQL     = `SELECT id, source, code, target, no FROM edge_t WHERE source = ? ORDER BY code, no, id`

	deleteSourceCodeSQL = `DELETE FROM edge_t WHERE source = ? AND code = ?`
	deletePointSQL      = `DELETE FROM edge_t WHERE source = ? OR target = ?`
	deleteCodeSQL       = `DELETE FROM edge_t WHERE code = ?`

	deleteWithoutSourceSQL = `DELETE FROM edge_t WHERE code = ? AND NOT EXISTS (
	SELECT 1 FROM edge_t p WHERE p.code = ? AND p.target = edge_t.source)`
	deleteWithoutTargetSQL = `DELETE FROM edge_t WHERE code = ? AND NOT EXISTS (
	SELECT 1 FROM edge_t c WHERE c.source = edge_t.target AND c.code = ?)`
)

// Store is the SQLite backend.
type Store struct {
	db *sql.DB
}

var _ edge.Store = (*Store)(nil)

// Open opens (creating if needed) the database at dsn and ensures the
// edge table exists.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dsn, err)
	}
	if dsn == MemoryDSN {
		// every connection would get its own empty database
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(4)
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set WAL mode: %w", err)
		}
		if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set busy timeout: %w", err)
		}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// DB exposes the underlying handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Insert(ctx context.Context, e edge.Edge) error {
	_, err := s.db.ExecContext(ctx, insertSQL, e.ID, e.Source, e.Code, e.Target, int64(e.No))
	return edge.WrapStore("insert", err)
}

func (s *Store) InsertBatch(ctx context.Context, edges []edge.Edge) error {
	return s.ApplyBatch(ctx, edge.Batch{Inserts: edges})
}

func (s *Store) ApplyBatch(ctx context.Context, b edge.Batch) error {
	if b.Empty() {
		return nil
	}
	return edge.WrapStore("apply_batch", s.withTx(ctx, func(tx *sql.Tx) error {
		for _, k := range b.Resets {
			if _, err := tx.ExecContext(ctx, deleteSourceCodeSQL, k.Source, k.Code); err != nil {
				return err
			}
		}
		if len(b.Inserts) == 0 {
			return nil
		}
		stmt, err := tx.PrepareContext(ctx, insertSQL)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, e := range b.Inserts {
			if _, err := stmt.ExecContext(ctx, e.ID, e.Source, e.Code, e.Target, int64(e.No)); err != nil {
				return err
			}
		}
		return nil
	}))
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *Store) selectRows(ctx context.Context, op, query string, a, b string) ([]edge.Row, error) {
	rows, err := s.db.QueryContext(ctx, query, a, b)
	if err != nil {
		return nil, edge.WrapStore(op, err)
	}
	defer rows.Close()

	out := []edge.Row{}
	for rows.Next() {
		var (
			r  edge.Row
			no int64
		)
		if err := rows.Scan(&r.ID, &no, &r.Point); err != nil {
			return nil, edge.WrapStore(op, err)
		}
		r.No = uint64(no)
		out = append(out, r)
	}
	return out, edge.WrapStore(op, rows.Err())
}

func (s *Store) SelectTarget(ctx context.Context, source, code string) (edge.Row, error) {
	rows, err := s.selectRows(ctx, "select_target", selectTargetsSQL+" LIMIT 1", source, code)
	if err != nil {
		return edge.Row{}, err
	}
	return edge.FirstRow(rows)
}

func (s *Store) SelectSource(ctx context.Context, code, target string) (edge.Row, error) {
	rows, err := s.selectRows(ctx, "select_source", selectSourcesSQL+" LIMIT 1", code, target)
	if err != nil {
		return edge.Row{}, err
	}
	return edge.FirstRow(rows)
}

func (s *Store) SelectTargetsOrdered(ctx context.Context, source, code string) ([]edge.Row, error) {
	return s.selectRows(ctx, "select_targets_ordered", selectTargetsSQL, source, code)
}

func (s *Store) SelectSourcesOrdered(ctx context.Context, code, target string) ([]edge.Row, error) {
	return s.selectRows(ctx, "select_sources_ordered", selectSourcesSQL, code, target)
}

func (s *Store) SelectOutgoing(ctx context.Context, source string) ([]edge.Edge, error) {
	rows, err := s.db.QueryContext(ctx, selectOutSQL, source)
	if err != nil {
		return nil, edge.WrapStore("select_outgoing", err)
	}
	defer rows.Close()

	var out []edge.Edge
	for rows.Next() {
		var (
			e  edge.Edge
			no int64
		)
		if err := rows.Scan(&e.ID, &e.Source, &e.Code, &e.Target, &no); err != nil {
			return nil, edge.WrapStore("select_outgoing", err)
		}
		e.No = uint64(no)
		out = append(out, e)
	}
	return out, edge.WrapStore("select_outgoing", rows.Err())
}

func (s *Store) exec(ctx context.Context, op, query string, args ...any) error {
	_, err := s.db.ExecContext(ctx, query, args...)
	return edge.WrapStore(op, err)
}

func (s *Store) DeleteBySourceCode(ctx context.Context, source, code string) error {
	return s.exec(ctx, "delete_by_source_code", deleteSourceCodeSQL, source, code)
}

func (s *Store) DeleteByPoint(ctx context.Context, point string) error {
	return s.exec(ctx, "delete_by_point", deletePointSQL, point, point)
}

func (s *Store) DeleteByCode(ctx context.Context, code string) error {
	return s.exec(ctx, "delete_by_code", deleteCodeSQL, code)
}

func (s *Store) DeleteCodeWithoutSource(ctx context.Context, code, sourceCode string) error {
	return s.exec(ctx, "delete_code_without_source", deleteWithoutSourceSQL, code, sourceCode)
}

func (s *Store) DeleteCodeWithoutTarget(ctx context.Context, code, targetCode string) error {
	return s.exec(ctx, "delete_code_without_target", deleteWithoutTargetSQL, code, targetCode)
}

func (s *Store) Close() error {
	return s.db.Close()
}
