package steering

import (
	"fmt"

	"github.com/pkg/errors"
)

// PersistenceError reports a failure to write or read a model artifact.
type PersistenceError struct {
	Path string
	Op   string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("model artifact %s: %s: %v", e.Path, e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// tryCatch runs fn and converts a panic raised by gomlx into an error.
func tryCatch(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = errors.WithStack(e)
				return
			}
			err = errors.Errorf("%v", r)
		}
	}()
	fn()
	return nil
}
