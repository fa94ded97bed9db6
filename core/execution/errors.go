package execution

import (
	"errors"
	"fmt"
)

// LaunchError reports that the engine could not be started at all:
// missing binary or image, or a runtime that refused the request. The
// run never happened, so no outcome exists.
type LaunchError struct {
	Backend string
	Err     error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launch via %s backend: %v", e.Backend, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// transient is implemented by errors worth retrying with backoff, such
// as a momentarily unreachable container daemon.
type transient interface {
	Transient() bool
}

// IsTransient reports whether err may resolve on its own, making a
// bounded retry reasonable. Input errors and engine failures are never
// transient.
func IsTransient(err error) bool {
	var t transient
	return errors.As(err, &t) && t.Transient()
}
