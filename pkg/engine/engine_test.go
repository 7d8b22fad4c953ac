package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/sanonone/edgelite/pkg/edge"
	"github.com/sanonone/edgelite/pkg/path"
)

func openMemory(t *testing.T) *Engine {
	t.Helper()
	opts := DefaultOptions("")
	opts.MaintenanceInterval = 0
	db, err := Open(opts)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestInvokeAppendThenReturn(t *testing.T) {
	ctx := context.Background()
	db := openMemory(t)
	s := db.NewSession()

	result, err := s.Invoke(ctx, "R", []Inc{
		{Source: "x", Code: "append", Target: "y"},
		{Source: "", Code: "return", Target: "done"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if result != "done" {
		t.Errorf("result = %q, want done", result)
	}
	got, err := s.Gateway().GetTargetV(ctx, "R", "x")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"y"}, got); diff != "" {
		t.Errorf("R->x mismatch (-want +got):\n%s", diff)
	}
}

func TestInvokeRunsOffTheEnd(t *testing.T) {
	tests := []struct {
		name    string
		program []Inc
		want    string
	}{
		{"no dump", []Inc{
			{Source: "name", Code: "set", Target: "a"},
			{Source: "name", Code: "set", Target: "b"},
		}, ""},
		{"last dump wins", []Inc{
			{Source: "name", Code: "set", Target: "a"},
			{Source: "", Code: "dump", Target: "nobody"},
			{Source: "", Code: "dump", Target: "R"},
			{Source: "name", Code: "set", Target: "b"},
		}, `"name"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := openMemory(t)
			result, err := db.NewSession().Invoke(context.Background(), "R", tt.program)
			if err != nil {
				t.Fatal(err)
			}
			if tt.want == "" {
				if result != "" {
					t.Errorf("result = %q, want empty", result)
				}
				return
			}
			if !strings.Contains(result, tt.want) || !strings.Contains(result, `"a"`) || strings.Contains(result, `"b"`) {
				t.Errorf("result = %q, want the dump of R taken before the last set", result)
			}
		})
	}
}

func TestUnknownOpcodeFailsBeforeRunning(t *testing.T) {
	ctx := context.Background()
	db := openMemory(t)
	s := db.NewSession()

	_, err := s.Invoke(ctx, "R", []Inc{
		{Source: "x", Code: "append", Target: "y"},
		{Source: "x", Code: "jmp", Target: "0"},
	})
	if !errors.Is(err, ErrUnknownOpcode) {
		t.Fatalf("error = %v, want ErrUnknownOpcode", err)
	}
	if _, err := s.Gateway().GetTarget(ctx, "R", "x"); !errors.Is(err, edge.ErrNotFound) {
		t.Errorf("first instruction ran despite the compile error: %v", err)
	}
}

func TestUnknownOpcodeFromPath(t *testing.T) {
	ctx := context.Background()
	db := openMemory(t)
	s := db.NewSession()

	_, err := s.Invoke(ctx, "R", []Inc{
		{Source: "op", Code: "set", Target: "bogus"},
		{Source: "", Code: "->op", Target: ""},
	})
	if !errors.Is(err, ErrUnknownOpcode) {
		t.Fatalf("error = %v, want ErrUnknownOpcode", err)
	}
}

func TestStepLimit(t *testing.T) {
	opts := DefaultOptions("")
	opts.MaxSteps = 1
	db, err := Open(opts)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	_, err = db.NewSession().Invoke(context.Background(), "R", []Inc{
		{Source: "a", Code: "set", Target: "1"},
		{Source: "b", Code: "set", Target: "2"},
	})
	if !errors.Is(err, ErrStepLimit) {
		t.Errorf("error = %v, want ErrStepLimit", err)
	}
}

func TestAsignBindsVariable(t *testing.T) {
	ctx := context.Background()
	db := openMemory(t)
	s := db.NewSession()

	result, err := s.Invoke(ctx, "R", []Inc{
		{Source: "who", Code: "asign", Target: "alice"},
		{Source: "owner", Code: "set", Target: "->$who"},
		{Source: "", Code: "return", Target: "->$who"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if result != "alice" {
		t.Errorf("result = %q, want alice", result)
	}
	if err := s.Commit(ctx); err != nil {
		t.Fatal(err)
	}

	fresh := db.NewSession()
	if got, err := fresh.Gateway().GetTarget(ctx, "R", "owner"); err != nil || got != "alice" {
		t.Errorf("R->owner = %q, %v; want alice", got, err)
	}
	if _, err := fresh.Gateway().GetTarget(ctx, "R", "$who"); !errors.Is(err, edge.ErrNotFound) {
		t.Errorf("variable binding leaked: %v", err)
	}
}

func TestPathOperandsAutovivify(t *testing.T) {
	ctx := context.Background()
	db := openMemory(t)
	s := db.NewSession()

	_, err := s.Invoke(ctx, "R", []Inc{
		{Source: "->profile->name", Code: "return", Target: ""},
	})
	if err != nil {
		t.Fatal(err)
	}
	points, err := s.Get(ctx, path.MustParse("R->profile->name"))
	if err != nil {
		t.Fatal(err)
	}
	if len(points) != 1 {
		t.Errorf("autovivified path has %d leaves, want 1", len(points))
	}
}

func TestDumpRendersSubgraph(t *testing.T) {
	ctx := context.Background()
	db := openMemory(t)
	s := db.NewSession()

	result, err := s.Invoke(ctx, "doc", []Inc{
		{Source: "title", Code: "set", Target: "hello"},
		{Source: "tag", Code: "append", Target: "a"},
		{Source: "tag", Code: "append", Target: "b"},
		{Source: "self", Code: "set", Target: "doc"},
		{Source: "", Code: "dump", Target: "doc"},
	})
	if err != nil {
		t.Fatal(err)
	}

	var got map[string]any
	if err := json.Unmarshal([]byte(result), &got); err != nil {
		t.Fatalf("dump is not JSON: %v\n%s", err, result)
	}
	want := map[string]any{
		IDKey:   "doc",
		"title": []any{"hello"},
		"tag":   []any{"a", "b"},
		"self":  []any{"doc"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("dump mismatch (-want +got):\n%s", diff)
	}
}

func TestConditionalDeleteOpcodes(t *testing.T) {
	ctx := context.Background()
	db := openMemory(t)
	s := db.NewSession()

	_, err := s.Invoke(ctx, "shop", []Inc{
		{Source: "item", Code: "append", Target: "i1"},
		{Source: "$code", Code: "set", Target: "price"},
		{Source: "$source_code", Code: "set", Target: "item"},
	})
	if err != nil {
		t.Fatal(err)
	}
	gw := s.Gateway()
	gw.AppendTarget(ctx, "i1", "price", "10")
	gw.AppendTarget(ctx, "ghost", "price", "99")

	if _, err := s.Invoke(ctx, "shop", []Inc{{Code: "dc_ns", Target: "shop"}}); err != nil {
		t.Fatal(err)
	}
	if got, _ := gw.GetTargetV(ctx, "ghost", "price"); len(got) != 0 {
		t.Errorf("orphan price survived: %v", got)
	}
	if got, _ := gw.GetTargetV(ctx, "i1", "price"); len(got) != 1 {
		t.Errorf("reachable price removed: %v", got)
	}
}

func TestDeleteOpcodes(t *testing.T) {
	ctx := context.Background()
	db := openMemory(t)
	s := db.NewSession()

	_, err := s.Invoke(ctx, "R", []Inc{
		{Source: "a", Code: "append", Target: "n1"},
		{Source: "b", Code: "append", Target: "n2"},
		{Source: "c", Code: "append", Target: "n3"},
		{Code: "delete", Target: "n1"},
		{Code: "dc", Target: "b"},
	})
	if err != nil {
		t.Fatal(err)
	}
	rows, err := s.List(ctx, "R", nil, []string{"a", "b", "c"})
	if err != nil {
		t.Fatal(err)
	}
	want := []edge.Record{{edge.PointColumn: "R", "a": nil, "b": nil, "c": "n3"}}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Errorf("List mismatch (-want +got):\n%s", diff)
	}
}

func TestBackendsPersistAcrossReopen(t *testing.T) {
	for _, backend := range []Backend{BackendMemory, BackendSQLite, BackendBadger} {
		t.Run(string(backend), func(t *testing.T) {
			ctx := context.Background()
			opts := DefaultOptions(t.TempDir())
			opts.Backend = backend
			opts.MaintenanceInterval = 0

			db, err := Open(opts)
			if err != nil {
				t.Fatal(err)
			}
			s := db.NewSession()
			if _, err := s.Invoke(ctx, "R", []Inc{
				{Source: "x", Code: "append", Target: "1"},
				{Source: "x", Code: "append", Target: "2"},
				{Source: "tmp", Code: "asign", Target: "gone"},
			}); err != nil {
				t.Fatal(err)
			}
			if err := s.Commit(ctx); err != nil {
				t.Fatal(err)
			}
			// staged but never committed
			if _, err := s.Invoke(ctx, "R", []Inc{{Source: "x", Code: "append", Target: "3"}}); err != nil {
				t.Fatal(err)
			}
			if err := db.Close(); err != nil {
				t.Fatal(err)
			}

			db, err = Open(opts)
			if err != nil {
				t.Fatal(err)
			}
			defer db.Close()

			got, err := db.NewSession().Get(ctx, path.MustParse("R->x"))
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff([]string{"1", "2"}, got); diff != "" {
				t.Errorf("after reopen (-want +got):\n%s", diff)
			}
		})
	}
}

func TestBadgerBackendLogsThroughEngineLogger(t *testing.T) {
	var buf bytes.Buffer
	opts := DefaultOptions(t.TempDir())
	opts.Backend = BackendBadger
	opts.MaintenanceInterval = 0
	opts.Logger = slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	db, err := Open(opts)
	if err != nil {
		t.Fatal(err)
	}
	if err := db.Close(); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "component=badger") {
		t.Errorf("badger output did not reach the engine logger:\n%s", buf.String())
	}
}

func TestLoadProgram(t *testing.T) {
	src := `
- {source: x, code: append, target: y}
- source: ""
  code: return
  target: done
`
	incs, err := LoadProgram(strings.NewReader(src))
	if err != nil {
		t.Fatal(err)
	}
	want := []Inc{{Source: "x", Code: "append", Target: "y"}, {Code: "return", Target: "done"}}
	if diff := cmp.Diff(want, incs); diff != "" {
		t.Errorf("LoadProgram mismatch (-want +got):\n%s", diff)
	}

	if _, err := LoadProgram(strings.NewReader(`[{"source": "x", "opcode": "set"}]`)); err == nil {
		t.Error("unknown field accepted")
	}
}

func TestCompileLeavesPathCodesUnresolved(t *testing.T) {
	prog, err := Compile([]Inc{{Code: "set"}, {Code: "->op"}})
	if err != nil {
		t.Fatal(err)
	}
	if prog[0].op != OpSet || prog[1].op != opUnresolved {
		t.Errorf("opcodes = %v, %v", prog[0].op, prog[1].op)
	}
}

func TestOpcodeNames(t *testing.T) {
	for name, op := range opcodeNames {
		if got := op.String(); got != name {
			t.Errorf("%d.String() = %q, want %q", int(op), got, name)
		}
		parsed, err := ParseOpcode(op.String())
		if err != nil || parsed != op {
			t.Errorf("ParseOpcode(%q) = %v, %v", name, parsed, err)
		}
	}
	if got := opUnresolved.String(); got != "unresolved" {
		t.Errorf("opUnresolved.String() = %q", got)
	}
	if got := Opcode(99).String(); got != "Opcode(99)" {
		t.Errorf("out of range String() = %q", got)
	}
}
