// Package staging implements the per-session write buffer and read-through
// cache that sits in front of the edge store.
//
// The cache holds two disjoint kinds of entries. Temporary entries (any
// operand carries the sigil) are authoritative and never reach the store.
// Durable entries are either rows loaded from the store or staged writes
// waiting for the next commit. A Cache is owned by exactly one session and
// is not safe for concurrent use.
package staging

import (
	"sort"

	"github.com/tidwall/btree"

	"github.com/sanonone/edgelite/pkg/edge"
)

// Entry is one cached edge.
type Entry struct {
	edge.Edge
	// Temp marks the temporary namespace.
	Temp bool
	// Staged marks a durable edge not yet written to the store.
	Staged bool
}

// RevKey identifies the sources pointing at target through code.
type RevKey struct {
	Code   string
	Target string
}

// Cache is the staging cache of one session.
type Cache struct {
	fwd *btree.BTreeG[Entry]
	rev *btree.BTreeG[Entry]

	// ids of durable entries, used to skip rows that are already cached
	ids map[string]struct{}

	loaded    map[edge.Key]bool
	loadedRev map[RevKey]bool
	resets    map[edge.Key]bool

	// durable ids shadowed by a temporary set; they survive commits
	hidden map[string]struct{}
}

// New returns an empty cache.
func New() *Cache {
	opts := btree.Options{NoLocks: true}
	return &Cache{
		fwd: btree.NewBTreeGOptions(func(a, b Entry) bool {
			return edge.Less(a.Edge, b.Edge)
		}, opts),
		rev: btree.NewBTreeGOptions(func(a, b Entry) bool {
			return edge.LessReverse(a.Edge, b.Edge)
		}, opts),
		ids:       make(map[string]struct{}),
		loaded:    make(map[edge.Key]bool),
		loadedRev: make(map[RevKey]bool),
		resets:    make(map[edge.Key]bool),
		hidden:    make(map[string]struct{}),
	}
}

// Insert adds e. Temporary edges are never staged.
func (c *Cache) Insert(e edge.Edge, staged bool) Entry {
	en := Entry{Edge: e, Temp: e.Temp()}
	en.Staged = staged && !en.Temp
	c.fwd.Set(en)
	c.rev.Set(en)
	if !en.Temp {
		c.ids[e.ID] = struct{}{}
	}
	return en
}

func (c *Cache) remove(en Entry) {
	c.fwd.Delete(en)
	c.rev.Delete(en)
	if !en.Temp {
		delete(c.ids, en.ID)
	}
}

// Has reports whether a durable edge with the given id is cached.
func (c *Cache) Has(id string) bool {
	_, ok := c.ids[id]
	return ok
}

// Load records the full durable row set of (source, code). Rows that are
// already cached are skipped.
func (c *Cache) Load(source, code string, rows []edge.Row) {
	for _, r := range rows {
		if c.Has(r.ID) || c.Hidden(r.ID) {
			continue
		}
		c.Insert(edge.Edge{ID: r.ID, Source: source, Code: code, Target: r.Point, No: r.No}, false)
	}
	c.loaded[edge.Key{Source: source, Code: code}] = true
}

// Loaded reports whether the cache holds the complete durable view of
// (source, code), either because it was loaded or because it was reset.
func (c *Cache) Loaded(source, code string) bool {
	return c.loaded[edge.Key{Source: source, Code: code}]
}

// LoadRev records the durable sources of (code, target). Rows belonging to
// a reset key are logically deleted and skipped.
func (c *Cache) LoadRev(code, target string, rows []edge.Row) {
	for _, r := range rows {
		if c.Has(r.ID) || c.Hidden(r.ID) || c.resets[edge.Key{Source: r.Point, Code: code}] {
			continue
		}
		c.Insert(edge.Edge{ID: r.ID, Source: r.Point, Code: code, Target: target, No: r.No}, false)
	}
	c.loadedRev[RevKey{Code: code, Target: target}] = true
}

// LoadedRev reports whether the durable sources of (code, target) are cached.
func (c *Cache) LoadedRev(code, target string) bool {
	return c.loadedRev[RevKey{Code: code, Target: target}]
}

// Targets returns the entries under (source, code) ordered by no, id.
func (c *Cache) Targets(source, code string) []Entry {
	var out []Entry
	c.fwd.Ascend(Entry{Edge: edge.Edge{Source: source, Code: code}}, func(en Entry) bool {
		if en.Source != source || en.Code != code {
			return false
		}
		out = append(out, en)
		return true
	})
	return out
}

// Sources returns the entries pointing at target through code ordered by no, id.
func (c *Cache) Sources(code, target string) []Entry {
	var out []Entry
	c.rev.Ascend(Entry{Edge: edge.Edge{Code: code, Target: target}}, func(en Entry) bool {
		if en.Code != code || en.Target != target {
			return false
		}
		out = append(out, en)
		return true
	})
	return out
}

// First returns the lowest entry under (source, code).
func (c *Cache) First(source, code string) (Entry, bool) {
	var (
		found Entry
		ok    bool
	)
	c.fwd.Ascend(Entry{Edge: edge.Edge{Source: source, Code: code}}, func(en Entry) bool {
		if en.Source == source && en.Code == code {
			found, ok = en, true
		}
		return false
	})
	return found, ok
}

// FirstSource returns the lowest entry pointing at target through code.
func (c *Cache) FirstSource(code, target string) (Entry, bool) {
	var (
		found Entry
		ok    bool
	)
	c.rev.Ascend(Entry{Edge: edge.Edge{Code: code, Target: target}}, func(en Entry) bool {
		if en.Code == code && en.Target == target {
			found, ok = en, true
		}
		return false
	})
	return found, ok
}

// MaxNo returns the highest no cached under (source, code).
func (c *Cache) MaxNo(source, code string) (uint64, bool) {
	entries := c.Targets(source, code)
	if len(entries) == 0 {
		return 0, false
	}
	max := entries[0].No
	for _, en := range entries[1:] {
		if en.No > max {
			max = en.No
		}
	}
	return max, true
}

// Reset drops every entry under (source, code). For durable keys the store
// rows are scheduled for deletion at commit.
func (c *Cache) Reset(source, code string) {
	for _, en := range c.Targets(source, code) {
		c.remove(en)
	}
	if !edge.IsTemp(source, code) {
		key := edge.Key{Source: source, Code: code}
		c.resets[key] = true
		c.loaded[key] = true
	}
}

// Replace resets e's key and stores e as its only entry.
func (c *Cache) Replace(e edge.Edge) Entry {
	c.Reset(e.Source, e.Code)
	return c.Insert(e, true)
}

// Shadow makes the temporary edge e the only entry of its durable key for
// the rest of the session without scheduling a reset: the cached durable
// rows are hidden, not deleted. The key must be loaded first.
func (c *Cache) Shadow(e edge.Edge) Entry {
	for _, en := range c.Targets(e.Source, e.Code) {
		if !en.Temp && !en.Staged {
			c.hidden[en.ID] = struct{}{}
		}
		c.remove(en)
	}
	return c.Insert(e, false)
}

// Hidden reports whether the durable edge id is shadowed.
func (c *Cache) Hidden(id string) bool {
	_, ok := c.hidden[id]
	return ok
}

// Pending returns the batch a commit must flush.
func (c *Cache) Pending() edge.Batch {
	var b edge.Batch
	for key := range c.resets {
		b.Resets = append(b.Resets, key)
	}
	sort.Slice(b.Resets, func(i, j int) bool {
		if b.Resets[i].Source != b.Resets[j].Source {
			return b.Resets[i].Source < b.Resets[j].Source
		}
		return b.Resets[i].Code < b.Resets[j].Code
	})
	c.fwd.Scan(func(en Entry) bool {
		if en.Staged {
			b.Inserts = append(b.Inserts, en.Edge)
		}
		return true
	})
	return b
}

// ClearDurable forgets every durable entry and all load bookkeeping.
// Temporary entries are kept for the rest of the session.
func (c *Cache) ClearDurable() {
	var drop []Entry
	c.fwd.Scan(func(en Entry) bool {
		if !en.Temp {
			drop = append(drop, en)
		}
		return true
	})
	for _, en := range drop {
		c.remove(en)
	}
	c.ids = make(map[string]struct{})
	c.loaded = make(map[edge.Key]bool)
	c.loadedRev = make(map[RevKey]bool)
	c.resets = make(map[edge.Key]bool)
}

// PurgeTemp removes the temporary entries matching pred and returns how
// many were removed.
func (c *Cache) PurgeTemp(pred func(edge.Edge) bool) int {
	var drop []Entry
	c.fwd.Scan(func(en Entry) bool {
		if en.Temp && pred(en.Edge) {
			drop = append(drop, en)
		}
		return true
	})
	for _, en := range drop {
		c.remove(en)
	}
	return len(drop)
}

// Len returns the number of temporary and durable entries.
func (c *Cache) Len() (temp, durable int) {
	c.fwd.Scan(func(en Entry) bool {
		if en.Temp {
			temp++
		} else {
			durable++
		}
		return true
	})
	return temp, durable
}
