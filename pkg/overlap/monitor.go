package overlap

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-dronescan/internal/log"
	"github.com/teslashibe/go-dronescan/pkg/capture"
	"github.com/teslashibe/go-dronescan/pkg/frame"
	"github.com/teslashibe/go-dronescan/pkg/vision"
)

// Event is the overlap result for one frame.
type Event struct {
	Seq          uint64    `json:"seq"`
	RatioPercent float64   `json:"ratio_percent"`
	Triggered    bool      `json:"triggered"`
	Time         time.Time `json:"time"`
}

// Saver persists a triggered frame.
type Saver interface {
	Save(f *frame.Frame) (capture.Capture, error)
}

// Monitor compares each new frame with the one before it.
type Monitor struct {
	frames   *frame.Cell
	detector vision.FeatureDetector
	matcher  vision.Matcher
	saver    Saver
	band     Band
	log      *slog.Logger

	// previous is only touched by the Run goroutine.
	previous vision.KeypointSet
	lastSeq  uint64

	triggers atomic.Uint64
	captures atomic.Uint64

	mu      sync.RWMutex
	latest  Event
	onEvent []func(Event)
	onSave  []func(capture.Capture, Event)
}

// NewMonitor creates a monitor reading from frames. saver may be nil, in which
// case triggers are counted but nothing is written.
func NewMonitor(frames *frame.Cell, det vision.FeatureDetector, m vision.Matcher, saver Saver, band Band) *Monitor {
	return &Monitor{
		frames:   frames,
		detector: det,
		matcher:  m,
		saver:    saver,
		band:     band,
		log:      log.Component("overlap"),
	}
}

// OnEvent registers a callback run for every evaluated frame. Register before Run.
func (m *Monitor) OnEvent(fn func(Event)) {
	m.mu.Lock()
	m.onEvent = append(m.onEvent, fn)
	m.mu.Unlock()
}

// OnCapture registers a callback run after a frame is persisted. Register before Run.
func (m *Monitor) OnCapture(fn func(capture.Capture, Event)) {
	m.mu.Lock()
	m.onSave = append(m.onSave, fn)
	m.mu.Unlock()
}

// Triggers returns how many frames have fallen inside the band so far.
// Callers compare two readings to learn whether a trigger happened in between.
func (m *Monitor) Triggers() uint64 {
	return m.triggers.Load()
}

// Captures returns how many frames were persisted.
func (m *Monitor) Captures() uint64 {
	return m.captures.Load()
}

// Latest returns the most recent event.
func (m *Monitor) Latest() Event {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.latest
}

// Run processes frames until ctx is done.
func (m *Monitor) Run(ctx context.Context) error {
	defer m.release()

	for {
		f, err := m.frames.Next(ctx, m.lastSeq)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
		m.lastSeq = f.Seq

		ev, ok := m.process(f)
		if !ok {
			continue
		}
		m.publish(ev, f)
	}
}

// process evaluates one frame. It reports false for the seeding frame and for
// frames the vision backend could not handle.
func (m *Monitor) process(f *frame.Frame) (Event, bool) {
	current, err := m.detector.Detect(f)
	if err != nil {
		m.log.Warn("feature detection failed, skipping frame", "seq", f.Seq, "error", err)
		return Event{}, false
	}

	previous := m.previous
	m.previous = current
	if previous == nil {
		return Event{}, false
	}
	defer previous.Release()

	matches, err := m.matcher.Match(current, previous)
	if err != nil {
		m.log.Warn("matching failed, skipping frame", "seq", f.Seq, "error", err)
		return Event{}, false
	}

	ratio := Ratio(matches, current.Len())
	return Event{
		Seq:          f.Seq,
		RatioPercent: ratio,
		Triggered:    m.band.Contains(ratio),
		Time:         time.Now(),
	}, true
}

func (m *Monitor) publish(ev Event, f *frame.Frame) {
	m.mu.Lock()
	m.latest = ev
	onEvent := m.onEvent
	onSave := m.onSave
	m.mu.Unlock()

	for _, fn := range onEvent {
		fn(ev)
	}
	if !ev.Triggered {
		return
	}

	if m.saver != nil {
		c, err := m.saver.Save(f)
		if err != nil {
			m.log.Error("capture failed", "seq", f.Seq, "error", err)
		} else {
			m.captures.Add(1)
			m.log.Info("captured", "path", c.Path, "overlap", ev.RatioPercent)
			for _, fn := range onSave {
				fn(c, ev)
			}
		}
	}

	// Counted after the save attempt, successful or not: a failed write is
	// logged but still ends the sweep, so a full disk cannot keep the drone
	// flying sideways.
	m.triggers.Add(1)
}

func (m *Monitor) release() {
	if m.previous != nil {
		m.previous.Release()
		m.previous = nil
	}
}
