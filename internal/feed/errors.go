package feed

import (
	"errors"
	"fmt"
)

// ErrNoUsableRelays is returned when no relay survives normalization
var ErrNoUsableRelays = errors.New("no usable relays")

// EventSourceError reports that every relay failed before producing
// anything. Cause aggregates the per-relay errors.
type EventSourceError struct {
	Cause error
}

func (e *EventSourceError) Error() string {
	return fmt.Sprintf("all relays failed: %v", e.Cause)
}

func (e *EventSourceError) Unwrap() error {
	return e.Cause
}
