package overlap

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/teslashibe/go-dronescan/pkg/capture"
	"github.com/teslashibe/go-dronescan/pkg/frame"
	"github.com/teslashibe/go-dronescan/pkg/vision"
)

func TestRatio(t *testing.T) {
	tests := []struct {
		name      string
		matches   int
		keypoints int
		want      float64
	}{
		{name: "in band", matches: 260, keypoints: 400, want: 65},
		{name: "zero keypoints", matches: 0, keypoints: 0, want: 0},
		{name: "matches without keypoints", matches: 12, keypoints: 0, want: 0},
		{name: "full", matches: 500, keypoints: 500, want: 100},
		{name: "clamped", matches: 600, keypoints: 500, want: 100},
		{name: "negative matches", matches: -3, keypoints: 10, want: 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Ratio(tc.matches, tc.keypoints)
			if math.Abs(got-tc.want) > 1e-9 {
				t.Errorf("Ratio(%d, %d): got %v, want %v", tc.matches, tc.keypoints, got, tc.want)
			}
		})
	}
}

func TestBand_Contains(t *testing.T) {
	tests := []struct {
		ratio float64
		want  bool
	}{
		{59.99, false},
		{60, true},
		{65, true},
		{70, true},
		{70.01, false},
	}
	for _, tc := range tests {
		if got := DefaultBand.Contains(tc.ratio); got != tc.want {
			t.Errorf("Contains(%v): got %v, want %v", tc.ratio, got, tc.want)
		}
	}

	if (Band{Min: 80, Max: 60}).Valid() {
		t.Error("inverted band should be invalid")
	}
}

type fakeSet struct {
	n        int
	released *int
	mu       *sync.Mutex
}

func (s fakeSet) Len() int { return s.n }

func (s fakeSet) Release() {
	s.mu.Lock()
	*s.released++
	s.mu.Unlock()
}

// scriptedVision returns keypoint and match counts keyed by frame Seq.
type scriptedVision struct {
	mu        sync.Mutex
	keypoints map[uint64]int
	matches   map[uint64]int
	failOn    map[uint64]bool
	released  int
	detected  int
}

func (v *scriptedVision) Detect(f *frame.Frame) (vision.KeypointSet, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.detected++
	if v.failOn[f.Seq] {
		return nil, errors.New("detector failed")
	}
	return fakeSet{n: v.keypoints[f.Seq], released: &v.released, mu: &v.mu}, nil
}

func (v *scriptedVision) Match(current, previous vision.KeypointSet) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	// The matches map is keyed by the current keypoint count.
	return v.matches[uint64(current.Len())], nil
}

func (v *scriptedVision) detectCalls() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.detected
}

func (v *scriptedVision) releasedCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.released
}

type recordingSaver struct {
	mu    sync.Mutex
	seqs  []uint64
	index int
}

func (s *recordingSaver) Save(f *frame.Frame) (capture.Capture, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index++
	s.seqs = append(s.seqs, f.Seq)
	return capture.Capture{Index: s.index, Seq: f.Seq}, nil
}

func testFrame(seq uint64) *frame.Frame {
	return &frame.Frame{Seq: seq, Width: 1, Height: 1, Channels: 3, Pix: []byte{0, 0, 0}}
}

func TestMonitor_Process(t *testing.T) {
	v := &scriptedVision{
		keypoints: map[uint64]int{1: 400, 2: 400, 3: 0, 4: 500},
		matches:   map[uint64]int{400: 260, 500: 100},
	}
	m := NewMonitor(frame.NewCell(), v, v, nil, DefaultBand)

	if _, ok := m.process(testFrame(1)); ok {
		t.Fatal("first frame should only seed")
	}

	ev, ok := m.process(testFrame(2))
	if !ok || !ev.Triggered || ev.RatioPercent != 65 {
		t.Errorf("frame 2: got %+v, %v; want triggered at 65%%", ev, ok)
	}

	ev, ok = m.process(testFrame(3))
	if !ok || ev.Triggered || ev.RatioPercent != 0 {
		t.Errorf("frame 3: got %+v, %v; want untriggered 0%%", ev, ok)
	}

	ev, ok = m.process(testFrame(4))
	if !ok || ev.Triggered || ev.RatioPercent != 20 {
		t.Errorf("frame 4: got %+v, %v; want untriggered 20%%", ev, ok)
	}

	// Each superseded set is released exactly once.
	if got := v.releasedCount(); got != 3 {
		t.Errorf("released: got %d, want 3", got)
	}
}

func TestMonitor_DetectorErrorSkipsFrame(t *testing.T) {
	v := &scriptedVision{
		keypoints: map[uint64]int{1: 400, 3: 400},
		matches:   map[uint64]int{400: 260},
		failOn:    map[uint64]bool{2: true},
	}
	m := NewMonitor(frame.NewCell(), v, v, nil, DefaultBand)

	m.process(testFrame(1))
	if _, ok := m.process(testFrame(2)); ok {
		t.Fatal("frame with detector error should be skipped")
	}
	if ev, ok := m.process(testFrame(3)); !ok || !ev.Triggered {
		t.Errorf("frame 3 should compare against frame 1: got %+v, %v", ev, ok)
	}
}

func TestMonitor_RunCapturesTriggeredFrames(t *testing.T) {
	v := &scriptedVision{
		keypoints: map[uint64]int{1: 400, 2: 400, 3: 500},
		matches:   map[uint64]int{400: 260, 500: 100},
	}
	cell := frame.NewCell()
	saver := &recordingSaver{}
	m := NewMonitor(cell, v, v, saver, DefaultBand)

	var mu sync.Mutex
	var events []Event
	m.OnEvent(func(ev Event) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	})
	captured := make(chan capture.Capture, 1)
	m.OnCapture(func(c capture.Capture, _ Event) { captured <- c })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	publishAndWait := func(seq uint64, wantEvents int) {
		t.Helper()
		cell.Publish(testFrame(seq))
		deadline := time.Now().Add(time.Second)
		for {
			mu.Lock()
			n := len(events)
			mu.Unlock()
			if n >= wantEvents {
				return
			}
			if time.Now().After(deadline) {
				t.Fatalf("frame %d: timed out waiting for %d events", seq, wantEvents)
			}
			time.Sleep(time.Millisecond)
		}
	}

	// Frame 1 only seeds, so it produces no event.
	cell.Publish(testFrame(1))
	deadline := time.Now().Add(time.Second)
	for v.detectCalls() < 1 {
		if time.Now().After(deadline) {
			t.Fatal("seed frame never processed")
		}
		time.Sleep(time.Millisecond)
	}
	publishAndWait(2, 1)
	publishAndWait(3, 2)

	select {
	case c := <-captured:
		if c.Seq != 2 {
			t.Errorf("captured seq: got %d, want 2", c.Seq)
		}
	case <-time.After(time.Second):
		t.Fatal("no capture")
	}

	if m.Triggers() != 1 || m.Captures() != 1 {
		t.Errorf("triggers=%d captures=%d, want 1 and 1", m.Triggers(), m.Captures())
	}
	if got := m.Latest(); got.Seq != 3 || got.Triggered {
		t.Errorf("Latest: got %+v", got)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

type failingSaver struct{}

func (failingSaver) Save(*frame.Frame) (capture.Capture, error) {
	return capture.Capture{}, errors.New("disk full")
}

func TestMonitor_FailedSaveStillCountsTrigger(t *testing.T) {
	m := NewMonitor(frame.NewCell(), nil, nil, failingSaver{}, DefaultBand)
	m.OnCapture(func(capture.Capture, Event) { t.Error("capture callback should not run for a failed save") })

	m.publish(Event{Seq: 2, RatioPercent: 65, Triggered: true}, testFrame(2))

	if got := m.Triggers(); got != 1 {
		t.Errorf("Triggers: got %d, want 1", got)
	}
	if got := m.Captures(); got != 0 {
		t.Errorf("Captures: got %d, want 0", got)
	}
	if got := m.Latest(); got.Seq != 2 {
		t.Errorf("Latest: got %+v", got)
	}
}
