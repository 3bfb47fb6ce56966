// Package drone provides the actuator surface of the scanning drone.
//
// Interfaces are kept small so consumers depend only on what they use: the
// frame feed needs a FrameSource, the flight controller needs a Pilot, a Mover
// and an Altimeter. Actuator composes all of them.
package drone

import (
	"context"

	"github.com/teslashibe/go-dronescan/pkg/frame"
)

// Connector opens and closes the link to the drone.
type Connector interface {
	Connect(ctx context.Context) error
	Close() error
}

// BatteryReader reports the remaining battery in percent.
type BatteryReader interface {
	Battery(ctx context.Context) (int, error)
}

// Streamer switches the onboard video stream.
type Streamer interface {
	StreamOn(ctx context.Context) error
	StreamOff(ctx context.Context) error
}

// FrameSource returns the newest decoded frame.
// A nil frame with a nil error means no frame has been decoded yet.
// ErrStreamClosed means the stream is gone for good.
type FrameSource interface {
	LatestFrame() (*frame.Frame, error)
}

// Altimeter reads the time-of-flight height above ground in centimeters.
type Altimeter interface {
	Height(ctx context.Context) (int, error)
}

// Pilot covers takeoff and landing.
type Pilot interface {
	Takeoff(ctx context.Context) error
	Land(ctx context.Context) error
}

// Mover issues velocity and rotation commands.
type Mover interface {
	SendVelocity(ctx context.Context, v Velocity) error

	// Rotate turns in place. Positive degrees turn counter-clockwise.
	Rotate(ctx context.Context, degrees int) error
}

// Actuator is the full drone capability used by a scan session.
type Actuator interface {
	Connector
	BatteryReader
	Streamer
	FrameSource
	Altimeter
	Pilot
	Mover
}

// VideoDecoder turns the drone's video stream into frames.
// Implementations live outside this package (see pkg/vision/cv).
type VideoDecoder interface {
	Start() error
	Latest() (*frame.Frame, error)
	Close() error
}

// Ensure Tello implements Actuator
var _ Actuator = (*Tello)(nil)
