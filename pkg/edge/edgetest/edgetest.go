// Package edgetest holds the conformance suite every edge.Store backend
// must pass.
package edgetest

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/sanonone/edgelite/pkg/edge"
)

// Opener returns a fresh, empty store. The suite closes it.
type Opener func(t *testing.T) edge.Store

// Run executes the whole suite against stores produced by open.
func Run(t *testing.T, open Opener) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s edge.Store)
	}{
		{"OrderedTargets", testOrderedTargets},
		{"PointLookupTieBreak", testPointLookupTieBreak},
		{"NotFound", testNotFound},
		{"Sources", testSources},
		{"ApplyBatchResets", testApplyBatchResets},
		{"EmptyBatch", testEmptyBatch},
		{"Outgoing", testOutgoing},
		{"DeleteBySourceCode", testDeleteBySourceCode},
		{"DeleteByPoint", testDeleteByPoint},
		{"DeleteByCode", testDeleteByCode},
		{"DeleteCodeWithoutSource", testDeleteCodeWithoutSource},
		{"DeleteCodeWithoutTarget", testDeleteCodeWithoutTarget},
		{"Aggregate", testAggregate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := open(t)
			defer s.Close()
			tt.fn(t, s)
		})
	}
}

func mustInsert(t *testing.T, s edge.Store, edges ...edge.Edge) {
	t.Helper()
	if err := s.InsertBatch(context.Background(), edges); err != nil {
		t.Fatalf("InsertBatch: %v", err)
	}
}

func targets(t *testing.T, s edge.Store, source, code string) []string {
	t.Helper()
	rows, err := s.SelectTargetsOrdered(context.Background(), source, code)
	if err != nil {
		t.Fatalf("SelectTargetsOrdered(%s, %s): %v", source, code, err)
	}
	return edge.Points(rows)
}

func testOrderedTargets(t *testing.T, s edge.Store) {
	ctx := context.Background()
	for _, e := range []edge.Edge{
		{ID: "3", Source: "a", Code: "c", Target: "z", No: 2},
		{ID: "1", Source: "a", Code: "c", Target: "x", No: 0},
		{ID: "2", Source: "a", Code: "c", Target: "y", No: 1},
		{ID: "4", Source: "a", Code: "d", Target: "w", No: 0},
	} {
		if err := s.Insert(ctx, e); err != nil {
			t.Fatalf("Insert(%v): %v", e, err)
		}
	}

	rows, err := s.SelectTargetsOrdered(ctx, "a", "c")
	if err != nil {
		t.Fatal(err)
	}
	want := []edge.Row{{ID: "1", No: 0, Point: "x"}, {ID: "2", No: 1, Point: "y"}, {ID: "3", No: 2, Point: "z"}}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Errorf("SelectTargetsOrdered mismatch (-want +got):\n%s", diff)
	}
}

func testPointLookupTieBreak(t *testing.T, s edge.Store) {
	ctx := context.Background()
	mustInsert(t, s,
		edge.Edge{ID: "id-b", Source: "a", Code: "c", Target: "second", No: 0},
		edge.Edge{ID: "id-a", Source: "a", Code: "c", Target: "first", No: 0},
		edge.Edge{ID: "id-0", Source: "a", Code: "c", Target: "later", No: 1},
	)

	row, err := s.SelectTarget(ctx, "a", "c")
	if err != nil {
		t.Fatal(err)
	}
	if row.Point != "first" {
		t.Errorf("SelectTarget tie-break: got %q, want %q", row.Point, "first")
	}

	mustInsert(t, s,
		edge.Edge{ID: "id-y", Source: "late", Code: "k", Target: "t", No: 3},
		edge.Edge{ID: "id-z", Source: "early", Code: "k", Target: "t", No: 0},
	)
	row, err = s.SelectSource(ctx, "k", "t")
	if err != nil {
		t.Fatal(err)
	}
	if row.Point != "early" {
		t.Errorf("SelectSource: got %q, want %q", row.Point, "early")
	}
}

func testNotFound(t *testing.T, s edge.Store) {
	ctx := context.Background()
	if _, err := s.SelectTarget(ctx, "nobody", "c"); !errors.Is(err, edge.ErrNotFound) {
		t.Errorf("SelectTarget on empty store: got %v, want ErrNotFound", err)
	}
	if _, err := s.SelectSource(ctx, "c", "nobody"); !errors.Is(err, edge.ErrNotFound) {
		t.Errorf("SelectSource on empty store: got %v, want ErrNotFound", err)
	}
	rows, err := s.SelectTargetsOrdered(ctx, "nobody", "c")
	if err != nil || len(rows) != 0 {
		t.Errorf("SelectTargetsOrdered on empty store: got %v, %v", rows, err)
	}
}

func testSources(t *testing.T, s edge.Store) {
	mustInsert(t, s,
		edge.Edge{ID: "1", Source: "p1", Code: "child", Target: "c", No: 0},
		edge.Edge{ID: "2", Source: "p2", Code: "child", Target: "c", No: 0},
		edge.Edge{ID: "3", Source: "p3", Code: "other", Target: "c", No: 0},
	)
	rows, err := s.SelectSourcesOrdered(context.Background(), "child", "c")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"p1", "p2"}, edge.Points(rows)); diff != "" {
		t.Errorf("SelectSourcesOrdered mismatch (-want +got):\n%s", diff)
	}
}

func testApplyBatchResets(t *testing.T, s edge.Store) {
	mustInsert(t, s,
		edge.Edge{ID: "1", Source: "a", Code: "c", Target: "x", No: 0},
		edge.Edge{ID: "2", Source: "a", Code: "c", Target: "y", No: 1},
		edge.Edge{ID: "3", Source: "a", Code: "keep", Target: "k", No: 0},
	)
	err := s.ApplyBatch(context.Background(), edge.Batch{
		Resets:  []edge.Key{{Source: "a", Code: "c"}},
		Inserts: []edge.Edge{{ID: "4", Source: "a", Code: "c", Target: "z", No: 0}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"z"}, targets(t, s, "a", "c")); diff != "" {
		t.Errorf("after reset (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"k"}, targets(t, s, "a", "keep")); diff != "" {
		t.Errorf("unrelated key touched (-want +got):\n%s", diff)
	}
}

func testEmptyBatch(t *testing.T, s edge.Store) {
	if err := s.ApplyBatch(context.Background(), edge.Batch{}); err != nil {
		t.Fatalf("empty batch: %v", err)
	}
	if err := s.InsertBatch(context.Background(), nil); err != nil {
		t.Fatalf("empty insert batch: %v", err)
	}
}

func testOutgoing(t *testing.T, s edge.Store) {
	mustInsert(t, s,
		edge.Edge{ID: "1", Source: "n", Code: "b", Target: "b1", No: 1},
		edge.Edge{ID: "2", Source: "n", Code: "a", Target: "a0", No: 0},
		edge.Edge{ID: "3", Source: "n", Code: "b", Target: "b0", No: 0},
		edge.Edge{ID: "4", Source: "m", Code: "a", Target: "n", No: 0},
	)
	out, err := s.SelectOutgoing(context.Background(), "n")
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for _, e := range out {
		got = append(got, e.Code+"="+e.Target)
	}
	if diff := cmp.Diff([]string{"a=a0", "b=b0", "b=b1"}, got); diff != "" {
		t.Errorf("SelectOutgoing mismatch (-want +got):\n%s", diff)
	}
}

func testDeleteBySourceCode(t *testing.T, s edge.Store) {
	mustInsert(t, s,
		edge.Edge{ID: "1", Source: "a", Code: "c", Target: "x", No: 0},
		edge.Edge{ID: "2", Source: "a", Code: "d", Target: "y", No: 0},
	)
	if err := s.DeleteBySourceCode(context.Background(), "a", "c"); err != nil {
		t.Fatal(err)
	}
	if got := targets(t, s, "a", "c"); len(got) != 0 {
		t.Errorf("expected (a, c) to be empty, got %v", got)
	}
	if diff := cmp.Diff([]string{"y"}, targets(t, s, "a", "d")); diff != "" {
		t.Errorf("(a, d) mismatch (-want +got):\n%s", diff)
	}
}

func testDeleteByPoint(t *testing.T, s edge.Store) {
	mustInsert(t, s,
		edge.Edge{ID: "1", Source: "p", Code: "c", Target: "x", No: 0},
		edge.Edge{ID: "2", Source: "y", Code: "c", Target: "p", No: 0},
		edge.Edge{ID: "3", Source: "y", Code: "c", Target: "z", No: 1},
	)
	if err := s.DeleteByPoint(context.Background(), "p"); err != nil {
		t.Fatal(err)
	}
	if got := targets(t, s, "p", "c"); len(got) != 0 {
		t.Errorf("outgoing edges of p survived: %v", got)
	}
	if diff := cmp.Diff([]string{"z"}, targets(t, s, "y", "c")); diff != "" {
		t.Errorf("incoming edge of p survived (-want +got):\n%s", diff)
	}
}

func testDeleteByCode(t *testing.T, s edge.Store) {
	mustInsert(t, s,
		edge.Edge{ID: "1", Source: "a", Code: "gone", Target: "x", No: 0},
		edge.Edge{ID: "2", Source: "b", Code: "gone", Target: "y", No: 0},
		edge.Edge{ID: "3", Source: "a", Code: "stay", Target: "z", No: 0},
	)
	if err := s.DeleteByCode(context.Background(), "gone"); err != nil {
		t.Fatal(err)
	}
	if got := targets(t, s, "a", "gone"); len(got) != 0 {
		t.Errorf("(a, gone) survived: %v", got)
	}
	if got := targets(t, s, "b", "gone"); len(got) != 0 {
		t.Errorf("(b, gone) survived: %v", got)
	}
	if diff := cmp.Diff([]string{"z"}, targets(t, s, "a", "stay")); diff != "" {
		t.Errorf("(a, stay) mismatch (-want +got):\n%s", diff)
	}
}

func testDeleteCodeWithoutSource(t *testing.T, s edge.Store) {
	mustInsert(t, s,
		edge.Edge{ID: "1", Source: "root", Code: "item", Target: "n1", No: 0},
		edge.Edge{ID: "2", Source: "n1", Code: "name", Target: "kept", No: 0},
		edge.Edge{ID: "3", Source: "n2", Code: "name", Target: "orphan", No: 0},
	)
	if err := s.DeleteCodeWithoutSource(context.Background(), "name", "item"); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"kept"}, targets(t, s, "n1", "name")); diff != "" {
		t.Errorf("(n1, name) mismatch (-want +got):\n%s", diff)
	}
	if got := targets(t, s, "n2", "name"); len(got) != 0 {
		t.Errorf("orphan edge survived: %v", got)
	}
	if diff := cmp.Diff([]string{"n1"}, targets(t, s, "root", "item")); diff != "" {
		t.Errorf("(root, item) mismatch (-want +got):\n%s", diff)
	}
}

func testDeleteCodeWithoutTarget(t *testing.T, s edge.Store) {
	mustInsert(t, s,
		edge.Edge{ID: "1", Source: "n1", Code: "owner", Target: "p1", No: 0},
		edge.Edge{ID: "2", Source: "p1", Code: "id", Target: "1", No: 0},
		edge.Edge{ID: "3", Source: "n2", Code: "owner", Target: "p2", No: 0},
	)
	if err := s.DeleteCodeWithoutTarget(context.Background(), "owner", "id"); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"p1"}, targets(t, s, "n1", "owner")); diff != "" {
		t.Errorf("(n1, owner) mismatch (-want +got):\n%s", diff)
	}
	if got := targets(t, s, "n2", "owner"); len(got) != 0 {
		t.Errorf("dangling edge survived: %v", got)
	}
}

func testAggregate(t *testing.T, s edge.Store) {
	mustInsert(t, s,
		edge.Edge{ID: "1", Source: "root", Code: "row", Target: "r1", No: 0},
		edge.Edge{ID: "2", Source: "root", Code: "row", Target: "r2", No: 1},
		edge.Edge{ID: "3", Source: "r1", Code: "name", Target: "alpha", No: 0},
	)
	got, err := edge.Aggregate(context.Background(), s, "root", []string{"row"}, []string{"name"})
	if err != nil {
		t.Fatal(err)
	}
	want := []edge.Record{
		{"row": "r1", edge.PointColumn: "r1", "name": "alpha"},
		{"row": "r2", edge.PointColumn: "r2", "name": nil},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Aggregate mismatch (-want +got):\n%s", diff)
	}
}
