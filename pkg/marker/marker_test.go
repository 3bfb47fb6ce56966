package marker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/teslashibe/go-dronescan/pkg/frame"
	"github.com/teslashibe/go-dronescan/pkg/vision"
)

func TestRegistry_OrderAndNoDuplicates(t *testing.T) {
	r := NewRegistry()
	for _, id := range []int{3, 7, 3, 12, 7, 5, 3} {
		r.Add(id)
	}
	if diff := cmp.Diff([]int{3, 7, 12, 5}, r.IDs()); diff != "" {
		t.Errorf("IDs mismatch (-want +got):\n%s", diff)
	}
	if r.Add(12) {
		t.Error("Add(12) reported a duplicate as new")
	}
	if !r.Contains(5) || r.Contains(99) {
		t.Error("Contains disagrees with Add history")
	}

	ids := r.IDs()
	ids[0] = 100
	if r.IDs()[0] != 3 {
		t.Error("IDs must return a copy")
	}
}

func TestPositionOf(t *testing.T) {
	tests := []struct {
		name  string
		cx    float64
		width int
		want  Position
	}{
		{name: "left", cx: 100, width: 960, want: PositionLeft},
		{name: "right", cx: 700, width: 960, want: PositionRight},
		{name: "centre", cx: 480, width: 960, want: PositionUndefined},
		{name: "odd width centre", cx: 480.5, width: 961, want: PositionUndefined},
		{name: "just left", cx: 479.9, width: 960, want: PositionLeft},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := PositionOf(tc.cx, tc.width); got != tc.want {
				t.Errorf("PositionOf(%v, %d): got %v, want %v", tc.cx, tc.width, got, tc.want)
			}
		})
	}
}

func TestPosition_Text(t *testing.T) {
	for _, p := range []Position{PositionUndefined, PositionLeft, PositionRight} {
		b, err := p.MarshalText()
		if err != nil {
			t.Fatal(err)
		}
		var got Position
		if err := got.UnmarshalText(b); err != nil || got != p {
			t.Errorf("round trip %v: got %v, %v", p, got, err)
		}
	}
}

// scriptedDetector returns fixed observations per frame Seq.
type scriptedDetector struct {
	mu   sync.Mutex
	obs  map[uint64][]vision.MarkerObservation
	fail map[uint64]bool
}

func (d *scriptedDetector) DetectMarkers(f *frame.Frame) ([]vision.MarkerObservation, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail[f.Seq] {
		return nil, errors.New("detector failed")
	}
	return d.obs[f.Seq], nil
}

func wideFrame(seq uint64) *frame.Frame {
	return &frame.Frame{Seq: seq, Width: 960, Height: 720, Channels: 3}
}

func TestMonitor_SelectsLargestAndRegisters(t *testing.T) {
	det := &scriptedDetector{obs: map[uint64][]vision.MarkerObservation{
		1: {vision.Square(3, 700, 300, 40)},
		2: {vision.Square(9, 800, 300, 10), vision.Square(7, 100, 300, 60)},
		3: nil,
		4: {vision.Square(7, 100, 300, 60), vision.Square(3, 900, 300, 60)},
	}}
	m := NewMonitor(frame.NewCell(), det)

	var registered []int
	m.OnRegister(func(id int, _ Snapshot) { registered = append(registered, id) })

	m.process(wideFrame(1))
	s := m.Snapshot()
	if s.MarkerID != 3 || s.Position != PositionRight || !s.HasMarker {
		t.Errorf("frame 1: got %+v", s)
	}

	m.process(wideFrame(2))
	want := Snapshot{FrameSeq: 2, MarkerID: 7, HasMarker: true, Position: PositionLeft, Registry: []int{3, 7}}
	if diff := cmp.Diff(want, m.Snapshot()); diff != "" {
		t.Errorf("frame 2 snapshot (-want +got):\n%s", diff)
	}

	// No detections leaves the snapshot alone.
	m.process(wideFrame(3))
	if diff := cmp.Diff(want, m.Snapshot()); diff != "" {
		t.Errorf("frame 3 snapshot changed (-want +got):\n%s", diff)
	}

	// Equal areas: the earlier detection wins and registry size is unchanged.
	m.process(wideFrame(4))
	s = m.Snapshot()
	if s.MarkerID != 7 || s.Size() != 2 {
		t.Errorf("frame 4: got %+v", s)
	}

	if diff := cmp.Diff([]int{3, 7}, registered); diff != "" {
		t.Errorf("registered callbacks (-want +got):\n%s", diff)
	}
	if first, ok := s.First(); !ok || first != 3 {
		t.Errorf("First: got %d, %v", first, ok)
	}
}

func TestMonitor_DetectorErrorKeepsSnapshot(t *testing.T) {
	det := &scriptedDetector{
		obs:  map[uint64][]vision.MarkerObservation{1: {vision.Square(4, 100, 100, 20)}},
		fail: map[uint64]bool{2: true},
	}
	m := NewMonitor(frame.NewCell(), det)
	m.process(wideFrame(1))
	m.process(wideFrame(2))

	if s := m.Snapshot(); s.FrameSeq != 1 || s.MarkerID != 4 {
		t.Errorf("snapshot after failed frame: got %+v", s)
	}
}

func TestMonitor_SnapshotIsCopy(t *testing.T) {
	det := &scriptedDetector{obs: map[uint64][]vision.MarkerObservation{1: {vision.Square(4, 100, 100, 20)}}}
	m := NewMonitor(frame.NewCell(), det)
	m.process(wideFrame(1))

	s := m.Snapshot()
	s.Registry[0] = 42
	if m.Snapshot().Registry[0] != 4 {
		t.Error("Snapshot must not expose internal registry storage")
	}
}

func TestMonitor_Run(t *testing.T) {
	det := &scriptedDetector{obs: map[uint64][]vision.MarkerObservation{
		1: {vision.Square(3, 100, 100, 20)},
		2: {vision.Square(8, 900, 100, 20)},
	}}
	cell := frame.NewCell()
	m := NewMonitor(cell, det)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	waitSeq := func(seq uint64) {
		t.Helper()
		deadline := time.Now().Add(time.Second)
		for m.Snapshot().FrameSeq != seq {
			if time.Now().After(deadline) {
				t.Fatalf("snapshot never reached seq %d", seq)
			}
			time.Sleep(time.Millisecond)
		}
	}

	cell.Publish(wideFrame(1))
	waitSeq(1)
	cell.Publish(wideFrame(2))
	waitSeq(2)

	if diff := cmp.Diff([]int{3, 8}, m.Snapshot().Registry); diff != "" {
		t.Errorf("registry (-want +got):\n%s", diff)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
}
