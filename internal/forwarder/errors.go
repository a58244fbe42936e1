package forwarder

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoAvailableBackend is returned when the registry yields no eligible
// candidate. No network call is attempted in that case.
var ErrNoAvailableBackend = errors.New("no available backend")

// AttemptError records why one forward attempt against one backend failed.
// Either Err (timeout, connection failure) or StatusCode (a 5xx) is set.
type AttemptError struct {
	Backend    string
	StatusCode int
	Err        error
}

func (e *AttemptError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("backend %s: %v", e.Backend, e.Err)
	}
	return fmt.Sprintf("backend %s: status %d", e.Backend, e.StatusCode)
}

func (e *AttemptError) Unwrap() error {
	return e.Err
}

// AggregateError is returned when every attempted candidate failed. It
// carries the last failure per attempted backend.
type AggregateError struct {
	Attempts []*AttemptError
}

func (e *AggregateError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, a.Error())
	}
	return "all forward attempts failed: " + strings.Join(parts, "; ")
}

// TriedBackends lists the backends attempted, in order.
func (e *AggregateError) TriedBackends() []string {
	names := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		names = append(names, a.Backend)
	}
	return names
}
