package cv

import (
	"fmt"
	"sync"

	"github.com/teslashibe/go-dronescan/pkg/frame"
	"github.com/teslashibe/go-dronescan/pkg/vision"
	"gocv.io/x/gocv"
)

// keypointSet holds ORB keypoints and their binary descriptors.
type keypointSet struct {
	keypoints   []gocv.KeyPoint
	descriptors gocv.Mat
}

func (k *keypointSet) Len() int { return len(k.keypoints) }

func (k *keypointSet) Release() {
	k.descriptors.Close()
}

// ORBDetector computes ORB features.
type ORBDetector struct {
	mu  sync.Mutex // ORB is not safe for concurrent use
	orb gocv.ORB
}

// NewORBDetector creates a detector with OpenCV's default ORB parameters.
func NewORBDetector() *ORBDetector {
	return &ORBDetector{orb: gocv.NewORB()}
}

// Detect returns the keypoints and descriptors of f.
func (d *ORBDetector) Detect(f *frame.Frame) (vision.KeypointSet, error) {
	gray, err := toGray(f)
	if err != nil {
		return nil, fmt.Errorf("orb: %w", err)
	}
	defer gray.Close()

	mask := gocv.NewMat()
	defer mask.Close()

	d.mu.Lock()
	kps, desc := d.orb.DetectAndCompute(gray, mask)
	d.mu.Unlock()

	return &keypointSet{keypoints: kps, descriptors: desc}, nil
}

// Close releases the ORB instance.
func (d *ORBDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.orb.Close()
}

// HammingMatcher is a brute-force matcher with cross-checking.
type HammingMatcher struct {
	mu sync.Mutex
	bf gocv.BFMatcher
}

// NewHammingMatcher creates a NORM_HAMMING matcher with cross-check enabled.
func NewHammingMatcher() *HammingMatcher {
	return &HammingMatcher{bf: gocv.NewBFMatcherWithParams(gocv.NormHamming, true)}
}

// Match counts cross-checked matches from current to previous.
func (m *HammingMatcher) Match(current, previous vision.KeypointSet) (int, error) {
	cur, ok := current.(*keypointSet)
	if !ok {
		return 0, fmt.Errorf("matcher: unexpected keypoint set %T", current)
	}
	prev, ok := previous.(*keypointSet)
	if !ok {
		return 0, fmt.Errorf("matcher: unexpected keypoint set %T", previous)
	}
	if cur.Len() == 0 || prev.Len() == 0 || cur.descriptors.Empty() || prev.descriptors.Empty() {
		return 0, nil
	}

	m.mu.Lock()
	// k=1 with cross-check leaves an empty list for rows without a mutual match.
	matches := m.bf.KnnMatch(cur.descriptors, prev.descriptors, 1)
	m.mu.Unlock()

	count := 0
	for _, row := range matches {
		if len(row) > 0 {
			count++
		}
	}
	return count, nil
}

// Close releases the matcher.
func (m *HammingMatcher) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bf.Close()
}
