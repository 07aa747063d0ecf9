package backend

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// HTTPError is implemented by errors that carry the HTTP status the router
// should answer with.
type HTTPError interface {
	error
	StatusCode() int
}

// ErrUnknownKind is matched by every *UnknownKindError.
var ErrUnknownKind = errors.New("unknown backend kind")

// UnknownKindError reports a backend kind with no registered factory.
type UnknownKindError struct {
	Kind  string
	Known []string
}

func (e *UnknownKindError) Error() string {
	return fmt.Sprintf("unknown backend kind %q (known: %s)", e.Kind, strings.Join(e.Known, ", "))
}

func (e *UnknownKindError) Is(target error) bool { return target == ErrUnknownKind }

// ErrUnsupported is returned for capabilities a backend does not provide.
var ErrUnsupported error = statusError{status: http.StatusNotImplemented, msg: "capability not supported by this backend"}

// Unsupported returns an ErrUnsupported-matching error naming the capability.
func Unsupported(capability string) error {
	return fmt.Errorf("%s: %w", capability, ErrUnsupported)
}

// statusError is a plain message with an HTTP status.
type statusError struct {
	status int
	msg    string
}

func (e statusError) Error() string   { return e.msg }
func (e statusError) StatusCode() int { return e.status }

// NewStatusError returns an HTTPError with the given status and message.
func NewStatusError(status int, msg string) error { return statusError{status: status, msg: msg} }

// dependencyUnavailableError signals a missing external dependency (binary,
// native library) so the HTTP layer can return 503 instead of 500.
type dependencyUnavailableError struct{ msg string }

func (e dependencyUnavailableError) Error() string   { return e.msg }
func (e dependencyUnavailableError) StatusCode() int { return http.StatusServiceUnavailable }

// ErrDependencyUnavailable constructs a dependency-unavailable error.
func ErrDependencyUnavailable(msg string) error { return dependencyUnavailableError{msg: msg} }

// IsDependencyUnavailable reports whether err indicates a missing runtime dependency.
func IsDependencyUnavailable(err error) bool {
	var d dependencyUnavailableError
	return errors.As(err, &d)
}

// StatusOf returns the HTTP status for err: the StatusCode of the first
// HTTPError in its chain, else 500.
func StatusOf(err error) int {
	var he HTTPError
	if errors.As(err, &he) {
		if c := he.StatusCode(); c >= 400 && c <= 599 {
			return c
		}
	}
	return http.StatusInternalServerError
}
