package reload

import (
	"errors"
	"fmt"
)

// ErrVanished marks a file that disappeared before it could be loaded.
var ErrVanished = errors.New("file vanished")

// LoadError reports a failed unit load. The runtime has already been rolled
// back when a LoadError is returned.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// PanicError wraps a panic raised while executing a unit.
type PanicError struct {
	Value interface{}
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic during load: %v", e.Value)
}
