package drone

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned when a command is issued before Connect.
	ErrNotConnected = errors.New("drone: not connected")

	// ErrTimeout is returned when the drone does not answer in time.
	ErrTimeout = errors.New("drone: command timed out")

	// ErrStreamClosed is returned by frame sources once the video stream ended.
	ErrStreamClosed = errors.New("drone: video stream closed")

	// ErrStaleTelemetry is returned when the latest state packet is too old to trust.
	ErrStaleTelemetry = errors.New("drone: telemetry is stale")

	// ErrInvalidRotation is returned for rotations outside the SDK range.
	ErrInvalidRotation = errors.New("drone: rotation out of range")
)

// CommandError is a negative or unexpected reply to an SDK command.
type CommandError struct {
	Command string
	Reply   string
}

// Error implements the error interface.
func (e *CommandError) Error() string {
	return fmt.Sprintf("drone: %q rejected: %s", e.Command, e.Reply)
}
