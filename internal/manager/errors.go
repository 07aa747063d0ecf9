package manager

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrAlreadyConstructed is returned by Construct once a backend exists or
	// the manager has left Uninitialized.
	ErrAlreadyConstructed = errors.New("backend already constructed")
	// ErrNotConstructed is returned by Start before a successful Construct.
	ErrNotConstructed = errors.New("backend not constructed")
	// ErrServiceUnavailable is matched by every error Acquire returns while
	// the backend is not Ready.
	ErrServiceUnavailable = errors.New("service unavailable")
	// ErrTooBusy is matched by admission timeouts.
	ErrTooBusy = errors.New("too busy")
)

// notReadyError reports the state that made Acquire fail (503).
type notReadyError struct{ state State }

func (e notReadyError) Error() string        { return fmt.Sprintf("backend not ready (state=%s)", e.state) }
func (e notReadyError) StatusCode() int      { return http.StatusServiceUnavailable }
func (e notReadyError) Is(target error) bool { return target == ErrServiceUnavailable }

// tooBusyError signals admission timeout for 429 mapping.
type tooBusyError struct{ limit int }

func (e tooBusyError) Error() string        { return fmt.Sprintf("too busy: %d requests in flight", e.limit) }
func (e tooBusyError) StatusCode() int      { return http.StatusTooManyRequests }
func (e tooBusyError) Is(target error) bool { return target == ErrTooBusy }

// IsTooBusy reports whether err indicates backpressure (return 429).
func IsTooBusy(err error) bool { return errors.Is(err, ErrTooBusy) }

// IsServiceUnavailable reports whether err indicates the backend is not Ready.
func IsServiceUnavailable(err error) bool { return errors.Is(err, ErrServiceUnavailable) }

// StartupError wraps the failure of backend start. The manager has already
// attempted cleanup and moved to Stopped when it is returned.
type StartupError struct {
	Kind string
	Err  error
}

func (e *StartupError) Error() string { return fmt.Sprintf("backend %s failed to start: %v", e.Kind, e.Err) }
func (e *StartupError) Unwrap() error { return e.Err }

// IsStartupError reports whether err is or wraps a *StartupError.
func IsStartupError(err error) bool {
	var se *StartupError
	return errors.As(err, &se)
}
