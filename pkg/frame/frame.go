// Package frame defines decoded video frames and the single-slot cell used to
// hand the newest frame from the video producer to the vision monitors.
//
// Frames are immutable once published: the producer never writes to Pix after
// Publish, and consumers treat it as read-only. Nothing is queued; a consumer
// that falls behind simply sees the next newer frame.
package frame

import "time"

// Frame is one decoded video frame in packed BGR8 layout.
type Frame struct {
	// Seq is assigned by the source, monotonically increasing per stream.
	Seq uint64

	// Timestamp is the capture time reported by the source.
	Timestamp time.Time

	Width    int
	Height   int
	Channels int

	// Pix holds Height rows of Width*Channels bytes.
	Pix []byte
}

// Empty reports whether the frame carries no pixels.
func (f *Frame) Empty() bool {
	return f == nil || f.Width <= 0 || f.Height <= 0 || len(f.Pix) == 0
}

// Valid reports whether the pixel buffer matches the declared geometry.
func (f *Frame) Valid() bool {
	if f.Empty() || f.Channels <= 0 {
		return false
	}
	return len(f.Pix) == f.Width*f.Height*f.Channels
}
