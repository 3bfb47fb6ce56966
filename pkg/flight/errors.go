package flight

import (
	"errors"
	"fmt"
)

var (
	// ErrAborted is returned when the scan is stopped from outside the
	// controller. The shutdown cause is wrapped alongside it.
	ErrAborted = errors.New("flight: scan aborted")

	// ErrComplete is the shutdown cause recorded after a successful scan.
	ErrComplete = errors.New("flight: scan complete")
)

// FaultError is an actuator failure that ended the scan.
type FaultError struct {
	State State
	Op    string
	Err   error
}

// Error implements the error interface.
func (e *FaultError) Error() string {
	return fmt.Sprintf("flight: %s failed in %s: %v", e.Op, e.State, e.Err)
}

// Unwrap returns the underlying actuator error.
func (e *FaultError) Unwrap() error {
	return e.Err
}
