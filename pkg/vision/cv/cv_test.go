package cv

import (
	"testing"

	"github.com/teslashibe/go-dronescan/pkg/frame"
)

func blankFrame(w, h int) *frame.Frame {
	return &frame.Frame{Seq: 1, Width: w, Height: h, Channels: 3, Pix: make([]byte, w*h*3)}
}

func TestORBDetector_BlankFrameHasNoKeypoints(t *testing.T) {
	det := NewORBDetector()
	defer det.Close()

	kps, err := det.Detect(blankFrame(64, 48))
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	defer kps.Release()

	if kps.Len() != 0 {
		t.Errorf("Len: got %d keypoints on a blank frame, want 0", kps.Len())
	}
}

func TestHammingMatcher_EmptySets(t *testing.T) {
	det := NewORBDetector()
	defer det.Close()
	m := NewHammingMatcher()
	defer m.Close()

	a, err := det.Detect(blankFrame(64, 48))
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	defer a.Release()
	b, err := det.Detect(blankFrame(64, 48))
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	defer b.Release()

	n, err := m.Match(a, b)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if n != 0 {
		t.Errorf("Match: got %d, want 0", n)
	}
}

func TestArucoDetector_BlankFrame(t *testing.T) {
	det := NewArucoDetector()
	defer det.Close()

	obs, err := det.DetectMarkers(blankFrame(64, 48))
	if err != nil {
		t.Fatalf("DetectMarkers: %v", err)
	}
	if len(obs) != 0 {
		t.Errorf("DetectMarkers: got %d markers on a blank frame", len(obs))
	}
}

func TestInvalidFrameRejected(t *testing.T) {
	det := NewORBDetector()
	defer det.Close()

	bad := &frame.Frame{Width: 10, Height: 10, Channels: 3, Pix: make([]byte, 7)}
	if _, err := det.Detect(bad); err == nil {
		t.Error("Detect: expected error for short pixel buffer")
	}
	if _, err := (JPEGEncoder{}).Encode(bad); err == nil {
		t.Error("Encode: expected error for short pixel buffer")
	}
}

func TestJPEGEncoder(t *testing.T) {
	data, err := JPEGEncoder{Quality: 80}.Encode(blankFrame(32, 32))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(data) < 2 || data[0] != 0xFF || data[1] != 0xD8 {
		t.Errorf("Encode: output does not start with a JPEG SOI marker")
	}
}
