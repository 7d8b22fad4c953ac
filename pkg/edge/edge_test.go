package edge

import (
	"errors"
	"io"
	"testing"
)

func TestIsTemp(t *testing.T) {
	tests := []struct {
		operands []string
		want     bool
	}{
		{[]string{"a", "b", "c"}, false},
		{[]string{"$a", "b", "c"}, true},
		{[]string{"a", "$b", "c"}, true},
		{[]string{"a", "b", "$c"}, true},
		{[]string{"a", "", "c"}, false},
		{[]string{"a$", "b"}, false},
		{nil, false},
	}
	for _, tt := range tests {
		if got := IsTemp(tt.operands...); got != tt.want {
			t.Errorf("IsTemp(%q) = %v, want %v", tt.operands, got, tt.want)
		}
	}
}

func TestVariable(t *testing.T) {
	if got := Variable("x"); got != "$x" {
		t.Errorf("Variable(x) = %q", got)
	}
	if got := Variable("$x"); got != "$x" {
		t.Errorf("Variable($x) = %q", got)
	}
}

func TestWrapStore(t *testing.T) {
	if WrapStore("op", nil) != nil {
		t.Error("nil error was wrapped")
	}
	if err := WrapStore("op", ErrNotFound); err != ErrNotFound {
		t.Errorf("ErrNotFound was wrapped: %v", err)
	}

	err := WrapStore("select", io.ErrUnexpectedEOF)
	if !IsStoreError(err) || !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("WrapStore lost the cause: %v", err)
	}
	if again := WrapStore("outer", err); again != err {
		t.Errorf("store error wrapped twice: %v", again)
	}
}

func TestEdgeOrdering(t *testing.T) {
	a := Edge{ID: "2", Source: "s", Code: "c", Target: "z", No: 0}
	b := Edge{ID: "1", Source: "s", Code: "c", Target: "a", No: 1}
	if !Less(a, b) {
		t.Error("Less must order by no before id")
	}
	c := Edge{ID: "1", Source: "s", Code: "c", Target: "z", No: 0}
	if !Less(c, a) || !LessReverse(c, a) {
		t.Error("ties on no must be broken by id")
	}
}
