// Package edge defines the data model shared by every layer of edgelite.
//
// The only persisted unit is the Edge: a directed, labeled relationship
// between two node identifiers. Nodes have no table of their own; a node
// exists as long as some edge references it. Several edges may share the
// same (source, code) pair, in which case No orders them like a list.
//
// This file holds the model types and the ephemeral-sigil helpers. The
// backing store contract lives in store.go.
package edge

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Sigil marks an operand as temporary. An edge whose source, code or target
// starts with it never reaches the backing store.
const Sigil = '$'

// Edge is one row of the edge table.
type Edge struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Code   string `json:"code"`
	Target string `json:"target"`
	No     uint64 `json:"no"`
}

func (e Edge) String() string {
	return fmt.Sprintf("%s->%s=%s#%d", e.Source, e.Code, e.Target, e.No)
}

// Key returns the (source, code) pair the edge is listed under.
func (e Edge) Key() Key {
	return Key{Source: e.Source, Code: e.Code}
}

// Temp reports whether the edge belongs to the temporary namespace.
func (e Edge) Temp() bool {
	return IsTemp(e.Source, e.Code, e.Target)
}

// Row is the projection returned by point and ordered lookups.
// Point is the target for forward reads and the source for backward reads.
type Row struct {
	ID    string
	No    uint64
	Point string
}

// Key identifies an ordered list of edges.
type Key struct {
	Source string
	Code   string
}

// Batch is the unit flushed on commit. Resets are applied first: every
// durable edge under a reset key is removed before Inserts are written.
type Batch struct {
	Resets  []Key
	Inserts []Edge
}

// Empty reports whether applying the batch would be a no-op.
func (b Batch) Empty() bool {
	return len(b.Resets) == 0 && len(b.Inserts) == 0
}

// IsTemp reports whether any of the given operands carries the sigil.
// Empty operands are ignored so the same helper serves key lookups.
func IsTemp(operands ...string) bool {
	for _, op := range operands {
		if op != "" && op[0] == Sigil {
			return true
		}
	}
	return false
}

// Variable turns a name into a temporary code, leaving names that are
// already temporary untouched.
func Variable(name string) string {
	if strings.HasPrefix(name, string(Sigil)) {
		return name
	}
	return string(Sigil) + name
}

// IDGenerator produces globally unique identifiers.
type IDGenerator func() string

// NewID is the default IDGenerator.
func NewID() string {
	return uuid.NewString()
}

// Less orders edges by (source, code, no, id). It is the order in which
// ordered lookups return rows.
func Less(a, b Edge) bool {
	if a.Source != b.Source {
		return a.Source < b.Source
	}
	if a.Code != b.Code {
		return a.Code < b.Code
	}
	if a.No != b.No {
		return a.No < b.No
	}
	return a.ID < b.ID
}

// LessReverse orders edges by (code, target, no, id), the order used for
// backward lookups.
func LessReverse(a, b Edge) bool {
	if a.Code != b.Code {
		return a.Code < b.Code
	}
	if a.Target != b.Target {
		return a.Target < b.Target
	}
	if a.No != b.No {
		return a.No < b.No
	}
	return a.ID < b.ID
}
