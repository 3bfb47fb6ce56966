package marker

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/teslashibe/go-dronescan/internal/log"
	"github.com/teslashibe/go-dronescan/pkg/frame"
	"github.com/teslashibe/go-dronescan/pkg/vision"
)

// Snapshot is everything the flight controller needs from one detection cycle,
// published as a unit so id, position and registry never disagree.
type Snapshot struct {
	FrameSeq  uint64   `json:"frame_seq"`
	MarkerID  int      `json:"marker_id"`
	HasMarker bool     `json:"has_marker"`
	Position  Position `json:"position"`
	Registry  []int    `json:"registry"`
}

// First returns the first marker ever registered.
func (s Snapshot) First() (int, bool) {
	if len(s.Registry) == 0 {
		return 0, false
	}
	return s.Registry[0], true
}

// Size returns the number of distinct markers registered.
func (s Snapshot) Size() int { return len(s.Registry) }

// Monitor runs marker detection on every new frame.
type Monitor struct {
	frames   *frame.Cell
	detector vision.MarkerDetector
	log      *slog.Logger

	// Owned by the Run goroutine.
	registry *Registry
	lastSeq  uint64

	mu         sync.RWMutex
	snapshot   Snapshot
	onRegister []func(id int, s Snapshot)
}

// NewMonitor creates a monitor reading from frames.
func NewMonitor(frames *frame.Cell, det vision.MarkerDetector) *Monitor {
	return &Monitor{
		frames:   frames,
		detector: det,
		log:      log.Component("marker"),
		registry: NewRegistry(),
	}
}

// OnRegister registers a callback run when a marker id is seen for the first
// time. Register before Run.
func (m *Monitor) OnRegister(fn func(id int, s Snapshot)) {
	m.mu.Lock()
	m.onRegister = append(m.onRegister, fn)
	m.mu.Unlock()
}

// Snapshot returns the latest published snapshot.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := m.snapshot
	s.Registry = append([]int(nil), s.Registry...)
	return s
}

// Run processes frames until ctx is done.
func (m *Monitor) Run(ctx context.Context) error {
	for {
		f, err := m.frames.Next(ctx, m.lastSeq)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
		m.lastSeq = f.Seq
		m.process(f)
	}
}

// process runs one detection cycle. Frames without markers leave the
// published snapshot untouched.
func (m *Monitor) process(f *frame.Frame) {
	obs, err := m.detector.DetectMarkers(f)
	if err != nil {
		m.log.Warn("marker detection failed, skipping frame", "seq", f.Seq, "error", err)
		return
	}
	idx := vision.SelectDominant(obs)
	if idx < 0 {
		return
	}

	dominant := obs[idx]
	added := m.registry.Add(dominant.ID)

	s := Snapshot{
		FrameSeq:  f.Seq,
		MarkerID:  dominant.ID,
		HasMarker: true,
		Position:  PositionOf(dominant.Centroid().X, f.Width),
		Registry:  m.registry.IDs(),
	}

	m.mu.Lock()
	m.snapshot = s
	callbacks := m.onRegister
	m.mu.Unlock()

	if !added {
		return
	}
	m.log.Info("marker registered", "id", dominant.ID, "count", len(s.Registry))
	for _, fn := range callbacks {
		fn(dominant.ID, s)
	}
}
