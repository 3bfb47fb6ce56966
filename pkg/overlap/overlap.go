// Package overlap measures frame-to-frame visual overlap and persists frames
// whose overlap falls inside the capture band.
package overlap

// Band is an inclusive overlap range in percent.
type Band struct {
	Min float64
	Max float64
}

// DefaultBand captures a frame once it shares 60-70% of its features with the
// previous one.
var DefaultBand = Band{Min: 60, Max: 70}

// Contains reports whether ratio lies inside the band, bounds included.
func (b Band) Contains(ratio float64) bool {
	return ratio >= b.Min && ratio <= b.Max
}

// Valid reports whether the band is a usable percentage range.
func (b Band) Valid() bool {
	return b.Min >= 0 && b.Max <= 100 && b.Min <= b.Max
}

// Ratio converts a match count into an overlap percentage of the current
// frame's keypoints. Zero keypoints yield 0; the result is clamped to [0,100].
func Ratio(matches, keypoints int) float64 {
	if keypoints <= 0 || matches <= 0 {
		return 0
	}
	r := float64(matches) / float64(keypoints) * 100
	if r > 100 {
		return 100
	}
	return r
}
