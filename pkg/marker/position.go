package marker

import "fmt"

// Position is where the dominant marker's centroid sits relative to the
// vertical centre line of the frame.
type Position int

const (
	PositionUndefined Position = iota
	PositionLeft
	PositionRight
)

func (p Position) String() string {
	switch p {
	case PositionLeft:
		return "left"
	case PositionRight:
		return "right"
	default:
		return "undefined"
	}
}

// MarshalText renders the position by name.
func (p Position) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText parses a position name.
func (p *Position) UnmarshalText(b []byte) error {
	switch string(b) {
	case "left":
		*p = PositionLeft
	case "right":
		*p = PositionRight
	case "undefined", "":
		*p = PositionUndefined
	default:
		return fmt.Errorf("unknown marker position %q", b)
	}
	return nil
}

// PositionOf classifies centroid x against a frame of the given width.
// A centroid exactly on the centre line is undefined.
func PositionOf(cx float64, width int) Position {
	mid := float64(width) / 2
	switch {
	case cx < mid:
		return PositionLeft
	case cx > mid:
		return PositionRight
	default:
		return PositionUndefined
	}
}
