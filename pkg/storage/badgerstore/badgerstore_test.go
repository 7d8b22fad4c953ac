package badgerstore

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/sanonone/edgelite/pkg/edge"
	"github.com/sanonone/edgelite/pkg/edge/edgetest"
)

func TestConformance(t *testing.T) {
	edgetest.Run(t, func(t *testing.T) edge.Store {
		s, err := Open(InMemoryConfig())
		if err != nil {
			t.Fatal(err)
		}
		return s
	})
}

func TestReopen(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig(t.TempDir())
	cfg.SyncWrites = false

	s, err := Open(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.InsertBatch(ctx, []edge.Edge{
		{ID: "1", Source: "a", Code: "c", Target: "x", No: 0},
		{ID: "2", Source: "a", Code: "c", Target: "y", No: 1},
	}); err != nil {
		t.Fatal(err)
	}
	if err := s.Compact(); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s, err = Open(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	rows, err := s.SelectSourcesOrdered(ctx, "c", "y")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]edge.Row{{ID: "2", No: 1, Point: "a"}}, rows); diff != "" {
		t.Errorf("after reopen (-want +got):\n%s", diff)
	}
}

func TestInsertSameIDReplacesIndexes(t *testing.T) {
	ctx := context.Background()
	s, err := Open(InMemoryConfig())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if err := s.Insert(ctx, edge.Edge{ID: "1", Source: "a", Code: "c", Target: "old"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Insert(ctx, edge.Edge{ID: "1", Source: "a", Code: "c", Target: "new"}); err != nil {
		t.Fatal(err)
	}
	rows, err := s.SelectTargetsOrdered(ctx, "a", "c")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"new"}, edge.Points(rows)); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
	if _, err := s.SelectSource(ctx, "c", "old"); err != edge.ErrNotFound {
		t.Errorf("stale reverse index entry: %v", err)
	}
}
