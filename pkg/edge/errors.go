package edge

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by point lookups that match no edge.
var ErrNotFound = errors.New("edge not found")

// StoreError wraps any failure of the backing store.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("edge store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// WrapStore wraps err into a *StoreError. It returns nil for a nil error and
// passes ErrNotFound and existing store errors through unchanged.
func WrapStore(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) {
		return err
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}

// IsStoreError reports whether err originated in the backing store.
func IsStoreError(err error) bool {
	var se *StoreError
	return errors.As(err, &se)
}
