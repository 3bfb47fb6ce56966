package drone

import "fmt"

// MaxStick is the largest magnitude accepted by the rc command.
const MaxStick = 100

// Velocity is one remote-control stick setting, each axis in [-100, 100].
type Velocity struct {
	LeftRight   int // positive = right
	ForwardBack int // positive = forward
	UpDown      int // positive = up
	Yaw         int // positive = clockwise
}

// Hover is the all-zero stick setting.
var Hover = Velocity{}

func clampStick(v int) int {
	if v > MaxStick {
		return MaxStick
	}
	if v < -MaxStick {
		return -MaxStick
	}
	return v
}

// Clamp returns v with every axis limited to the stick range.
func (v Velocity) Clamp() Velocity {
	return Velocity{
		LeftRight:   clampStick(v.LeftRight),
		ForwardBack: clampStick(v.ForwardBack),
		UpDown:      clampStick(v.UpDown),
		Yaw:         clampStick(v.Yaw),
	}
}

// Command renders the SDK rc command for v.
func (v Velocity) Command() string {
	c := v.Clamp()
	return fmt.Sprintf("rc %d %d %d %d", c.LeftRight, c.ForwardBack, c.UpDown, c.Yaw)
}

// Right returns a pure rightward velocity.
func Right(speed int) Velocity { return Velocity{LeftRight: speed} }

// Up returns a pure vertical velocity; negative speeds descend.
func Up(speed int) Velocity { return Velocity{UpDown: speed} }
