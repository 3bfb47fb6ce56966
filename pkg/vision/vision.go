// Package vision defines the black-box vision capabilities consumed by the
// overlap and marker monitors, and the geometry of marker observations.
package vision

import "github.com/teslashibe/go-dronescan/pkg/frame"

// KeypointSet is one frame's features and descriptors. It is owned by whoever
// called Detect and must be released once no longer needed.
type KeypointSet interface {
	// Len returns the number of keypoints.
	Len() int

	// Release frees any native memory held by the set.
	Release()
}

// FeatureDetector computes keypoints for a frame.
type FeatureDetector interface {
	Detect(f *frame.Frame) (KeypointSet, error)
}

// Matcher counts descriptor matches between the current and previous sets.
type Matcher interface {
	Match(current, previous KeypointSet) (int, error)
}

// MarkerDetector finds fiducial markers in a frame, in detection order.
type MarkerDetector interface {
	DetectMarkers(f *frame.Frame) ([]MarkerObservation, error)
}

// Encoder turns a frame into an image file payload.
type Encoder interface {
	Encode(f *frame.Frame) ([]byte, error)

	// Ext is the file extension produced, with leading dot.
	Ext() string
}
