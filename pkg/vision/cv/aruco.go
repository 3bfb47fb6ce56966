package cv

import (
	"fmt"
	"sync"

	"github.com/teslashibe/go-dronescan/pkg/frame"
	"github.com/teslashibe/go-dronescan/pkg/vision"
	"gocv.io/x/gocv"
)

// ArucoDetector finds ArUco markers from a predefined dictionary.
type ArucoDetector struct {
	mu       sync.Mutex
	detector gocv.ArucoDetector
}

// NewArucoDetector creates a detector for the 4x4, 50-id dictionary.
func NewArucoDetector() *ArucoDetector {
	return NewArucoDetectorWithDictionary(gocv.ArucoDict4x4_50)
}

// NewArucoDetectorWithDictionary creates a detector for another dictionary.
func NewArucoDetectorWithDictionary(dict gocv.ArucoDictionaryCode) *ArucoDetector {
	return &ArucoDetector{
		detector: gocv.NewArucoDetectorWithParams(
			gocv.GetPredefinedDictionary(dict),
			gocv.NewArucoDetectorParameters(),
		),
	}
}

// DetectMarkers returns the markers in f in detector order.
func (a *ArucoDetector) DetectMarkers(f *frame.Frame) ([]vision.MarkerObservation, error) {
	gray, err := toGray(f)
	if err != nil {
		return nil, fmt.Errorf("aruco: %w", err)
	}
	defer gray.Close()

	a.mu.Lock()
	corners, ids, _ := a.detector.DetectMarkers(gray)
	a.mu.Unlock()

	if len(ids) == 0 {
		return nil, nil
	}

	obs := make([]vision.MarkerObservation, 0, len(ids))
	for i, id := range ids {
		if i >= len(corners) {
			break
		}
		pts := make([]vision.Point, len(corners[i]))
		for j, c := range corners[i] {
			pts[j] = vision.Point{X: float64(c.X), Y: float64(c.Y)}
		}
		obs = append(obs, vision.MarkerObservation{ID: id, Corners: pts})
	}
	return obs, nil
}

// Close releases the detector.
func (a *ArucoDetector) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.detector.Close()
	return nil
}
