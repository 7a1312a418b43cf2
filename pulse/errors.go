package pulse

import (
	"errors"
	"fmt"
	"net/http"
)

// TransportError indicates that a request could not be completed at the
// network level (DNS, connection refused, timeout).
type TransportError struct {
	Method string
	Path   string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("pulse: %s %s: %v", e.Method, e.Path, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// HTTPError is returned when the API responds with a status other than
// 200 or 201. Message is taken from the JSON error body when present,
// otherwise it holds the raw body text.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("pulse: http %d: %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err (or any error in its chain) is an
// HTTPError with status 404.
func IsNotFound(err error) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == http.StatusNotFound
	}
	return false
}

// InvalidObjectError is returned when an operation targets an object that
// is known locally to be unusable: it was deleted, it lost its board
// back-reference, or its column type is not supported.
type InvalidObjectError struct {
	Object string
	Reason string
}

func (e *InvalidObjectError) Error() string {
	return fmt.Sprintf("pulse: invalid %s: %s", e.Object, e.Reason)
}

// IsInvalidObject reports whether err is an InvalidObjectError.
func IsInvalidObject(err error) bool {
	var objErr *InvalidObjectError
	return errors.As(err, &objErr)
}

// InvalidArgumentError is returned when a caller-supplied value is out of
// range or of the wrong kind. It is always detected before any request.
type InvalidArgumentError struct {
	Argument string
	Reason   string
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("pulse: invalid argument %s: %s", e.Argument, e.Reason)
}

// IsInvalidArgument reports whether err is an InvalidArgumentError.
func IsInvalidArgument(err error) bool {
	var argErr *InvalidArgumentError
	return errors.As(err, &argErr)
}

func deletedError(object string) error {
	return &InvalidObjectError{
		Object: object,
		Reason: "this object no longer exists remotely",
	}
}
