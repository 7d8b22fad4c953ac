// Package engine provides the embedded interface for edgelite.
//
// It opens the configured edge store, hands out sessions (one staging cache
// each) and runs instruction programs against them. An Engine is safe for
// concurrent use; a Session is not.
//
// Basic usage:
//
//	opts := engine.DefaultOptions("./data")
//	db, err := engine.Open(opts)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	s := db.NewSession()
//	result, err := s.Invoke(ctx, "root", []engine.Inc{{Source: "x", Code: "append", Target: "y"}})
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sanonone/edgelite/pkg/edge"
	"github.com/sanonone/edgelite/pkg/gateway"
	"github.com/sanonone/edgelite/pkg/storage/badgerstore"
	"github.com/sanonone/edgelite/pkg/storage/memstore"
	"github.com/sanonone/edgelite/pkg/storage/sqlstore"
)

// Backend selects the edge store implementation.
type Backend string

const (
	BackendMemory Backend = "memory"
	BackendSQLite Backend = "sqlite"
	BackendBadger Backend = "badger"
)

// Options configures the Engine.
type Options struct {
	// DataDir holds the store files. An empty DataDir keeps everything in
	// memory and nothing survives Close.
	DataDir string

	// Backend is the store implementation (default: memory).
	Backend Backend

	// SyncWrites fsyncs every committed batch before Commit returns.
	SyncWrites bool

	// MaxSteps bounds the number of instructions one Invoke may execute.
	// Zero disables the limit.
	MaxSteps int

	// CompactPercentage triggers a rewrite of the memory backend's log when
	// it has grown by this percentage since the last rewrite. Zero disables
	// it. Badger runs value log GC on the same schedule instead.
	CompactPercentage int

	// MaintenanceInterval defines how often compaction is considered.
	MaintenanceInterval time.Duration

	// Logger receives debug traces from sessions. Defaults to slog.Default().
	Logger *slog.Logger

	// IDGenerator overrides the uuid based identifier generator.
	IDGenerator edge.IDGenerator
}

// DefaultOptions returns a standard configuration.
//
// Defaults:
//   - Backend: memory, logged to <dataDir>/edges.log
//   - SyncWrites: true
//   - MaxSteps: 10000
//   - Compaction: at 100% log growth, checked every 30s
func DefaultOptions(dataDir string) Options {
	return Options{
		DataDir:             dataDir,
		Backend:             BackendMemory,
		SyncWrites:          true,
		MaxSteps:            10000,
		CompactPercentage:   100,
		MaintenanceInterval: 30 * time.Second,
	}
}

const (
	logFilename    = "edges.log"
	sqliteFilename = "edges.db"
	badgerDirname  = "badger"
)

// Engine owns the edge store shared by all sessions.
type Engine struct {
	store edge.Store
	opts  Options

	logBaseSize int64

	closed    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// Open creates DataDir if needed, opens the store selected by opts.Backend
// and starts background maintenance.
func Open(opts Options) (*Engine, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	store, err := openStore(opts)
	if err != nil {
		return nil, err
	}
	return newEngine(store, opts), nil
}

// OpenWithStore wraps an already opened store. The Engine takes ownership
// and closes it on Close.
func OpenWithStore(store edge.Store, opts Options) *Engine {
	return newEngine(store, opts)
}

func newEngine(store edge.Store, opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.IDGenerator == nil {
		opts.IDGenerator = edge.NewID
	}
	e := &Engine{
		store:  store,
		opts:   opts,
		closed: make(chan struct{}),
	}
	if ls, ok := store.(logSizer); ok {
		e.logBaseSize, _ = ls.LogSize()
	}
	if _, ok := store.(compactor); ok && opts.MaintenanceInterval > 0 {
		e.wg.Add(1)
		go e.backgroundTasks()
	}
	return e
}

func openStore(opts Options) (edge.Store, error) {
	if opts.DataDir != "" {
		if err := os.MkdirAll(opts.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	switch opts.Backend {
	case BackendMemory, "":
		if opts.DataDir == "" {
			return memstore.New(), nil
		}
		return memstore.Open(filepath.Join(opts.DataDir, logFilename), opts.SyncWrites)
	case BackendSQLite:
		dsn := sqlstore.MemoryDSN
		if opts.DataDir != "" {
			dsn = filepath.Join(opts.DataDir, sqliteFilename)
		}
		return sqlstore.Open(context.Background(), dsn)
	case BackendBadger:
		cfg := badgerstore.InMemoryConfig()
		if opts.DataDir != "" {
			cfg = badgerstore.DefaultConfig(filepath.Join(opts.DataDir, badgerDirname))
		}
		cfg.SyncWrites = opts.SyncWrites
		cfg.Logger = opts.Logger.With("component", "badger")
		return badgerstore.Open(cfg)
	default:
		return nil, fmt.Errorf("unknown backend %q", opts.Backend)
	}
}

// Store returns the shared edge store.
func (e *Engine) Store() edge.Store {
	return e.store
}

// Options returns the options the engine was opened with.
func (e *Engine) Options() Options {
	return e.opts
}

// NewSession returns a session with an empty staging cache.
func (e *Engine) NewSession() *Session {
	gw := gateway.New(e.store,
		gateway.WithIDGenerator(e.opts.IDGenerator),
		gateway.WithLogger(e.opts.Logger),
	)
	return newSession(gw, e.opts)
}

// Close stops background maintenance and closes the store. Uncommitted
// writes of open sessions are lost.
func (e *Engine) Close() error {
	var err error
	e.closeOnce.Do(func() {
		close(e.closed)
		e.wg.Wait()
		err = e.store.Close()
	})
	return err
}

type compactor interface {
	Compact() error
}

type logSizer interface {
	LogSize() (int64, error)
}

func (e *Engine) backgroundTasks() {
	defer e.wg.Done()
	ticker := time.NewTicker(e.opts.MaintenanceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.closed:
			return
		case <-ticker.C:
			if err := e.checkMaintenance(); err != nil {
				slog.Error("Background compaction failed", "error", err)
			}
		}
	}
}

// checkMaintenance compacts the store when its log has outgrown the
// configured percentage. Stores without a log are compacted every time.
func (e *Engine) checkMaintenance() error {
	c, ok := e.store.(compactor)
	if !ok || e.opts.CompactPercentage <= 0 {
		return nil
	}
	ls, ok := e.store.(logSizer)
	if !ok {
		return c.Compact()
	}

	size, err := ls.LogSize()
	if err != nil {
		return err
	}
	threshold := e.logBaseSize + e.logBaseSize*int64(e.opts.CompactPercentage)/100
	// Min threshold 1MB to avoid rewriting tiny files constantly
	if threshold < 1024*1024 {
		threshold = 1024 * 1024
	}
	if size <= threshold {
		return nil
	}
	if err := c.Compact(); err != nil {
		return err
	}
	e.logBaseSize, err = ls.LogSize()
	return err
}
