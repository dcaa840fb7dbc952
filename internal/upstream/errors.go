package upstream

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies why an upstream call failed.
type Kind int

const (
	// KindNetwork covers connection errors, timeouts and cancelled contexts.
	KindNetwork Kind = iota + 1
	// KindStatus is a non-2xx response.
	KindStatus
	// KindDecode is a 2xx response whose body is not the expected JSON.
	KindDecode
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindStatus:
		return "status"
	case KindDecode:
		return "decode"
	default:
		return "unknown"
	}
}

// ErrUnauthorized matches any *Error carrying a 401 status.
var ErrUnauthorized = errors.New("upstream: unauthorized")

// Error describes a failed upstream call. Body holds the raw response body
// for diagnostics; it is never surfaced to tool callers.
type Error struct {
	Kind       Kind
	Method     string
	Endpoint   string
	StatusCode int
	Body       string
	Err        error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindStatus:
		return fmt.Sprintf("%s %s: server returned %d %s", e.Method, e.Endpoint, e.StatusCode, http.StatusText(e.StatusCode))
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s %s: %s error: %v", e.Method, e.Endpoint, e.Kind, e.Err)
		}
		return fmt.Sprintf("%s %s: %s error", e.Method, e.Endpoint, e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports a match against ErrUnauthorized for 401 responses.
func (e *Error) Is(target error) bool {
	return target == ErrUnauthorized && e.Kind == KindStatus && e.StatusCode == http.StatusUnauthorized
}

// KindOf returns the Kind of err, or 0 when err is not an *Error.
func KindOf(err error) Kind {
	var ue *Error
	if errors.As(err, &ue) {
		return ue.Kind
	}
	return 0
}
