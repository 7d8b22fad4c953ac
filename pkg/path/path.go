// Package path parses and evaluates directional path expressions.
//
// A path is written as a root followed by steps, each step being an arrow
// and a label with no separator in between:
//
//	order->item->product   forward twice from "order"
//	->child                forward once from the caller's current root
//	c1<-child              every node with a "child" edge pointing at c1
package path

import (
	"errors"
	"fmt"
	"strings"
)

// Direction of one step.
type Direction int

const (
	Forward Direction = iota
	Backward
)

// Arrow tokens.
const (
	ArrowForward  = "->"
	ArrowBackward = "<-"
)

func (d Direction) String() string {
	if d == Backward {
		return ArrowBackward
	}
	return ArrowForward
}

// ErrSyntax is returned for malformed path expressions.
var ErrSyntax = errors.New("path syntax error")

// Step follows edges labeled Code in direction Dir.
type Step struct {
	Dir  Direction `json:"dir"`
	Code string    `json:"code"`
}

// Path is a root plus an ordered list of steps. An empty root stands for
// the current root of whoever evaluates the path.
type Path struct {
	Root  string `json:"root"`
	Steps []Step `json:"steps"`
}

// New builds a path from root and steps.
func New(root string, steps ...Step) Path {
	return Path{Root: root, Steps: steps}
}

// Fwd is shorthand for a forward step.
func Fwd(code string) Step { return Step{Dir: Forward, Code: code} }

// Bwd is shorthand for a backward step.
func Bwd(code string) Step { return Step{Dir: Backward, Code: code} }

func (p Path) String() string {
	var sb strings.Builder
	sb.WriteString(p.Root)
	for _, s := range p.Steps {
		sb.WriteString(s.Dir.String())
		sb.WriteString(s.Code)
	}
	return sb.String()
}

// Parent returns the path without its last step.
func (p Path) Parent() Path {
	if len(p.Steps) == 0 {
		return p
	}
	return Path{Root: p.Root, Steps: p.Steps[:len(p.Steps)-1]}
}

// IsPath reports whether s contains an arrow token and therefore denotes a
// path rather than a literal.
func IsPath(s string) bool {
	return strings.Contains(s, ArrowForward) || strings.Contains(s, ArrowBackward)
}

// nextArrow returns the index and direction of the first arrow in s, or -1.
func nextArrow(s string) (int, Direction) {
	f := strings.Index(s, ArrowForward)
	b := strings.Index(s, ArrowBackward)
	switch {
	case f < 0 && b < 0:
		return -1, Forward
	case b < 0 || (f >= 0 && f < b):
		return f, Forward
	default:
		return b, Backward
	}
}

// Parse tokenizes raw into a Path. Text before the first arrow is the
// root; every arrow must be followed by a non-empty label.
func Parse(raw string) (Path, error) {
	i, dir := nextArrow(raw)
	if i < 0 {
		return Path{Root: raw}, nil
	}
	p := Path{Root: raw[:i]}
	rest := raw[i+len(ArrowForward):]
	for {
		j, nextDir := nextArrow(rest)
		label := rest
		if j >= 0 {
			label = rest[:j]
		}
		if label == "" {
			return Path{}, fmt.Errorf("%w: empty label in %q", ErrSyntax, raw)
		}
		p.Steps = append(p.Steps, Step{Dir: dir, Code: label})
		if j < 0 {
			return p, nil
		}
		dir = nextDir
		rest = rest[j+len(ArrowForward):]
	}
}

// MustParse is Parse that panics on error. Intended for literals in tests
// and static tables.
func MustParse(raw string) Path {
	p, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return p
}
