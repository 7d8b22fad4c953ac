package staging

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/sanonone/edgelite/pkg/edge"
)

func targetsOf(entries []Entry) []string {
	var out []string
	for _, en := range entries {
		out = append(out, en.Target)
	}
	return out
}

func TestInsertClassifiesNamespaces(t *testing.T) {
	c := New()
	c.Insert(edge.Edge{ID: "1", Source: "a", Code: "c", Target: "x"}, true)
	tmp := c.Insert(edge.Edge{ID: "2", Source: "a", Code: "$v", Target: "y"}, true)

	if !tmp.Temp || tmp.Staged {
		t.Errorf("temporary entry flags: temp=%v staged=%v", tmp.Temp, tmp.Staged)
	}
	temp, durable := c.Len()
	if temp != 1 || durable != 1 {
		t.Errorf("Len() = %d, %d; want 1, 1", temp, durable)
	}

	b := c.Pending()
	if len(b.Inserts) != 1 || b.Inserts[0].ID != "1" {
		t.Errorf("Pending inserts = %v, want only the durable edge", b.Inserts)
	}
}

func TestFirstUsesLowestNo(t *testing.T) {
	c := New()
	c.Insert(edge.Edge{ID: "b", Source: "a", Code: "c", Target: "late", No: 4}, false)
	c.Insert(edge.Edge{ID: "z", Source: "a", Code: "c", Target: "early", No: 1}, false)
	c.Insert(edge.Edge{ID: "a", Source: "a", Code: "c", Target: "tie", No: 4}, false)

	en, ok := c.First("a", "c")
	if !ok || en.Target != "early" {
		t.Errorf("First = %v, %v; want early", en, ok)
	}
	if diff := cmp.Diff([]string{"early", "tie", "late"}, targetsOf(c.Targets("a", "c"))); diff != "" {
		t.Errorf("Targets mismatch (-want +got):\n%s", diff)
	}
	if max, _ := c.MaxNo("a", "c"); max != 4 {
		t.Errorf("MaxNo = %d, want 4", max)
	}
	if _, ok := c.First("a", "missing"); ok {
		t.Error("First on a missing key reported a hit")
	}
}

func TestReplaceSchedulesReset(t *testing.T) {
	c := New()
	c.Load("a", "c", []edge.Row{{ID: "1", No: 0, Point: "x"}, {ID: "2", No: 1, Point: "y"}})
	c.Replace(edge.Edge{ID: "3", Source: "a", Code: "c", Target: "z"})

	if diff := cmp.Diff([]string{"z"}, targetsOf(c.Targets("a", "c"))); diff != "" {
		t.Errorf("Targets after Replace (-want +got):\n%s", diff)
	}
	b := c.Pending()
	if diff := cmp.Diff([]edge.Key{{Source: "a", Code: "c"}}, b.Resets); diff != "" {
		t.Errorf("Resets mismatch (-want +got):\n%s", diff)
	}

	// Reverse rows of a reset key are logically gone.
	c.LoadRev("c", "x", []edge.Row{{ID: "1", No: 0, Point: "a"}})
	if _, ok := c.FirstSource("c", "x"); ok {
		t.Error("reverse load resurrected a reset row")
	}
}

func TestLoadSkipsCachedRows(t *testing.T) {
	c := New()
	c.LoadRev("c", "x", []edge.Row{{ID: "1", No: 0, Point: "a"}})
	c.Load("a", "c", []edge.Row{{ID: "1", No: 0, Point: "x"}, {ID: "2", No: 1, Point: "y"}})

	if got := len(c.Targets("a", "c")); got != 2 {
		t.Errorf("got %d entries, want 2 (no duplicates)", got)
	}
	if !c.Loaded("a", "c") || !c.LoadedRev("c", "x") {
		t.Error("load bookkeeping not recorded")
	}
}

func TestClearDurableKeepsTemporaryEntries(t *testing.T) {
	c := New()
	c.Insert(edge.Edge{ID: "1", Source: "a", Code: "c", Target: "x"}, true)
	c.Insert(edge.Edge{ID: "2", Source: "$a", Code: "c", Target: "x"}, false)
	c.Load("a", "d", nil)

	c.ClearDurable()

	temp, durable := c.Len()
	if temp != 1 || durable != 0 {
		t.Errorf("Len() = %d, %d; want 1, 0", temp, durable)
	}
	if c.Loaded("a", "d") {
		t.Error("load bookkeeping survived ClearDurable")
	}
	if !c.Pending().Empty() {
		t.Error("Pending not empty after ClearDurable")
	}
}

func TestPurgeTemp(t *testing.T) {
	c := New()
	c.Insert(edge.Edge{ID: "1", Source: "p", Code: "$c", Target: "x"}, false)
	c.Insert(edge.Edge{ID: "2", Source: "q", Code: "$c", Target: "p"}, false)
	c.Insert(edge.Edge{ID: "3", Source: "q", Code: "$c", Target: "z"}, false)

	n := c.PurgeTemp(func(e edge.Edge) bool { return e.Source == "p" || e.Target == "p" })
	if n != 2 {
		t.Errorf("PurgeTemp removed %d, want 2", n)
	}
	if diff := cmp.Diff([]string{"z"}, targetsOf(c.Targets("q", "$c"))); diff != "" {
		t.Errorf("Targets mismatch (-want +got):\n%s", diff)
	}
}

func TestResetEmptiesDurableKey(t *testing.T) {
	c := New()
	c.Load("a", "c", []edge.Row{{ID: "1", No: 0, Point: "x"}})
	c.Reset("a", "c")

	if got := c.Targets("a", "c"); len(got) != 0 {
		t.Errorf("Targets after Reset = %v", got)
	}
	if !c.Loaded("a", "c") {
		t.Error("reset key must count as loaded")
	}
	b := c.Pending()
	if len(b.Resets) != 1 || len(b.Inserts) != 0 {
		t.Errorf("Pending = %+v, want one reset and no inserts", b)
	}

	c.Reset("$a", "c")
	if len(c.Pending().Resets) != 1 {
		t.Error("temporary key scheduled a durable reset")
	}
}

func TestShadowHidesWithoutReset(t *testing.T) {
	c := New()
	c.Load("a", "c", []edge.Row{{ID: "1", No: 0, Point: "x"}})
	c.Shadow(edge.Edge{ID: "2", Source: "a", Code: "c", Target: "$y"})

	if diff := cmp.Diff([]string{"$y"}, targetsOf(c.Targets("a", "c"))); diff != "" {
		t.Errorf("Targets after Shadow (-want +got):\n%s", diff)
	}
	if b := c.Pending(); len(b.Resets) != 0 || len(b.Inserts) != 0 {
		t.Errorf("Pending = %+v, want nothing to flush", b)
	}

	// the hidden row stays hidden across commits
	c.ClearDurable()
	c.Load("a", "c", []edge.Row{{ID: "1", No: 0, Point: "x"}, {ID: "3", No: 1, Point: "z"}})
	if diff := cmp.Diff([]string{"$y", "z"}, targetsOf(c.Targets("a", "c"))); diff != "" {
		t.Errorf("Targets after reload (-want +got):\n%s", diff)
	}
	c.LoadRev("c", "x", []edge.Row{{ID: "1", No: 0, Point: "a"}})
	if _, ok := c.FirstSource("c", "x"); ok {
		t.Error("reverse load resurrected a shadowed row")
	}
}
