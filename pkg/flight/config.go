package flight

import (
	"fmt"
	"time"
)

// Config tunes the scan pattern.
type Config struct {
	// DesiredHeight is the top of each vertical sweep, in cm.
	DesiredHeight int

	// TargetMarkerCount is how many distinct markers surround the object.
	TargetMarkerCount int

	// PollInterval paces every velocity loop.
	PollInterval time.Duration

	// SettleDelay is the pause after takeoff before the start height is read.
	SettleDelay time.Duration

	// Stick values in [-100, 100] used for each maneuver.
	ClimbSpeed   int
	DescendSpeed int
	SweepSpeed   int

	// RotationDegrees is applied counter-clockwise at a corner.
	RotationDegrees int

	// LandTimeout bounds the emergency landing issued on fault or abort.
	LandTimeout time.Duration
}

// DefaultConfig returns the parameters of a four-marker scan at two metres.
func DefaultConfig() Config {
	return Config{
		DesiredHeight:     200,
		TargetMarkerCount: 4,
		PollInterval:      10 * time.Millisecond,
		SettleDelay:       time.Second,
		ClimbSpeed:        30,
		DescendSpeed:      20,
		SweepSpeed:        20,
		RotationDegrees:   90,
		LandTimeout:       10 * time.Second,
	}
}

// Validate checks for values the controller cannot fly with.
func (c Config) Validate() error {
	switch {
	case c.DesiredHeight <= 0:
		return fmt.Errorf("desired height must be positive, got %d", c.DesiredHeight)
	case c.TargetMarkerCount <= 0:
		return fmt.Errorf("target marker count must be positive, got %d", c.TargetMarkerCount)
	case c.PollInterval <= 0:
		return fmt.Errorf("poll interval must be positive, got %v", c.PollInterval)
	case c.ClimbSpeed <= 0 || c.DescendSpeed <= 0 || c.SweepSpeed <= 0:
		return fmt.Errorf("speeds must be positive")
	case c.RotationDegrees < 1 || c.RotationDegrees > 360:
		return fmt.Errorf("rotation must be within 1..360 degrees, got %d", c.RotationDegrees)
	}
	return nil
}
