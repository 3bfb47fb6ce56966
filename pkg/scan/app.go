package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-dronescan/internal/log"
	"github.com/teslashibe/go-dronescan/pkg/capture"
	"github.com/teslashibe/go-dronescan/pkg/drone"
	"github.com/teslashibe/go-dronescan/pkg/feed"
	"github.com/teslashibe/go-dronescan/pkg/flight"
	"github.com/teslashibe/go-dronescan/pkg/frame"
	"github.com/teslashibe/go-dronescan/pkg/ledger"
	"github.com/teslashibe/go-dronescan/pkg/marker"
	"github.com/teslashibe/go-dronescan/pkg/overlap"
	"github.com/teslashibe/go-dronescan/pkg/shutdown"
	"github.com/teslashibe/go-dronescan/pkg/vision"
)

var (
	// ErrLowBattery is returned by Init when the battery is below the
	// configured minimum. Nothing has moved when it is returned.
	ErrLowBattery = errors.New("scan: battery below minimum")

	// ErrOperatorAbort is the shutdown cause recorded by Abort.
	ErrOperatorAbort = errors.New("scan: operator abort")

	// ErrNotInitialized is returned by Run before a successful Init.
	ErrNotInitialized = errors.New("scan: not initialized")
)

// Vision bundles the vision backends a session needs.
type Vision struct {
	Features vision.FeatureDetector
	Matcher  vision.Matcher
	Markers  vision.MarkerDetector
	Encoder  vision.Encoder
}

// Status is the dashboard view of a session.
type Status struct {
	SessionID string          `json:"session_id"`
	StartedAt time.Time       `json:"started_at"`
	Battery   int             `json:"battery"`
	Flight    flight.Status   `json:"flight"`
	Markers   marker.Snapshot `json:"markers"`
	Overlap   overlap.Event   `json:"overlap"`
	Captures  uint64          `json:"captures"`
	Triggers  uint64          `json:"triggers"`
	Shutdown  string          `json:"shutdown,omitempty"`
}

// App is one scan session.
// It manages all components and their lifecycle.
type App struct {
	config Config
	drone  drone.Actuator
	vision Vision
	sig    *shutdown.Signal
	log    *slog.Logger

	sessionID string
	startedAt time.Time
	battery   int

	frames     *frame.Cell
	store      *capture.Store
	ledger     *ledger.DB
	feed       *feed.Feed
	overlap    *overlap.Monitor
	markers    *marker.Monitor
	controller *flight.Controller

	mu          sync.Mutex
	observers   []func(flight.Transition)
	initialized bool
	closed      bool
}

// New creates a session with the given configuration.
func New(cfg Config, d drone.Actuator, v Vision) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if d == nil {
		return nil, &ConfigError{Field: "Drone", Message: "a drone actuator is required"}
	}
	if v.Features == nil || v.Matcher == nil || v.Markers == nil || v.Encoder == nil {
		return nil, &ConfigError{Field: "Vision", Message: "all vision backends are required"}
	}

	id := uuid.NewString()
	return &App{
		config:    cfg,
		drone:     d,
		vision:    v,
		sig:       shutdown.New(context.Background()),
		log:       log.With("component", "scan", "session", id),
		sessionID: id,
		frames:    frame.NewCell(),
	}, nil
}

// Init connects, runs the preflight checks and prepares every component.
// Call this after New() and before Run().
func (a *App) Init(ctx context.Context) error {
	a.log.Info("connecting", "drone", a.config.DroneIP)
	if err := a.drone.Connect(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	battery, err := a.drone.Battery(ctx)
	if err != nil {
		return fmt.Errorf("read battery: %w", err)
	}
	a.battery = battery
	if battery < a.config.MinBattery {
		a.log.Error("battery too low to scan", "battery", battery, "min", a.config.MinBattery)
		return fmt.Errorf("%w: %d%% < %d%%", ErrLowBattery, battery, a.config.MinBattery)
	}
	a.log.Info("battery ok", "battery", battery)

	store, err := capture.Open(a.config.CaptureDir, capture.DefaultPrefix, a.vision.Encoder)
	if err != nil {
		return fmt.Errorf("capture store: %w", err)
	}
	a.store = store
	a.log.Info("capture store ready", "dir", store.Dir(), "next_index", store.NextIndex())

	if a.config.LedgerPath != "" {
		db, err := ledger.Open(a.config.LedgerPath)
		if err != nil {
			return fmt.Errorf("ledger: %w", err)
		}
		a.ledger = db
	}

	if err := a.drone.StreamOn(ctx); err != nil {
		return fmt.Errorf("start video: %w", err)
	}

	a.startedAt = time.Now()
	if a.ledger != nil {
		err := a.ledger.StartSession(ledger.Session{
			ID:            a.sessionID,
			StartedAt:     a.startedAt,
			DroneAddr:     a.config.DroneIP,
			Battery:       battery,
			DesiredHeight: a.config.Flight.DesiredHeight,
			TargetMarkers: a.config.Flight.TargetMarkerCount,
			CaptureDir:    a.config.CaptureDir,
		})
		if err != nil {
			return err
		}
	}

	a.feed = feed.New(a.drone, a.frames, a.sig, a.config.FeedInterval)
	a.overlap = overlap.NewMonitor(a.frames, a.vision.Features, a.vision.Matcher, a.store, a.config.Band)
	a.markers = marker.NewMonitor(a.frames, a.vision.Markers)
	a.controller = flight.NewController(a.config.Flight, a.drone, a.overlap, a.markers, a.sig)
	a.wireLedger()

	a.mu.Lock()
	observers := a.observers
	a.initialized = true
	a.mu.Unlock()
	for _, fn := range observers {
		a.controller.OnTransition(fn)
	}
	return nil
}

// wireLedger records captures, first marker sightings and transitions.
// Ledger failures are logged; they never stop the flight.
func (a *App) wireLedger() {
	if a.ledger == nil {
		return
	}
	a.overlap.OnCapture(func(c capture.Capture, ev overlap.Event) {
		err := a.ledger.RecordCapture(a.sessionID, ledger.Capture{
			Index:          c.Index,
			Path:           c.Path,
			FrameSeq:       c.Seq,
			OverlapPercent: ev.RatioPercent,
			Bytes:          c.Bytes,
			At:             ev.Time,
		})
		if err != nil {
			a.log.Warn("ledger capture", "error", err)
		}
	})
	a.markers.OnRegister(func(id int, s marker.Snapshot) {
		if err := a.ledger.RecordMarker(a.sessionID, id, s.Position.String(), s.FrameSeq, time.Now()); err != nil {
			a.log.Warn("ledger marker", "error", err)
		}
	})
	a.controller.OnTransition(func(t flight.Transition) {
		if err := a.ledger.RecordTransition(a.sessionID, t.From.String(), t.To.String(), t.Height, t.Time); err != nil {
			a.log.Warn("ledger transition", "error", err)
		}
	})
}

// OnTransition registers an observer for flight transitions. Observers must
// not block. Register before Run.
func (a *App) OnTransition(fn func(flight.Transition)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.initialized {
		a.controller.OnTransition(fn)
		return
	}
	a.observers = append(a.observers, fn)
}

// Run flies the scan and blocks until every worker has stopped.
func (a *App) Run(ctx context.Context) error {
	a.mu.Lock()
	ready := a.initialized
	a.mu.Unlock()
	if !ready {
		return ErrNotInitialized
	}

	stop := context.AfterFunc(ctx, func() { a.sig.Trigger(context.Cause(ctx)) })
	defer stop()

	runCtx := a.sig.Context()
	workers := []struct {
		name string
		run  func(context.Context) error
	}{
		{"feed", a.feed.Run},
		{"overlap", a.overlap.Run},
		{"marker", a.markers.Run},
	}

	var wg sync.WaitGroup
	for _, w := range workers {
		w := w
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := w.run(runCtx); err != nil {
				a.log.Warn("worker stopped", "worker", w.name, "error", err)
			}
		}()
	}

	a.log.Info("scan running")
	err := a.controller.Run(runCtx)

	// Stops the workers; a no-op when the controller already set it.
	a.sig.Trigger(nil)
	wg.Wait()

	st := a.Status()
	a.log.Info("scan finished",
		"outcome", st.Flight.Outcome,
		"captures", st.Captures,
		"markers", st.Markers.Registry,
		"cause", a.sig.Cause())

	if a.ledger != nil {
		if lerr := a.ledger.FinishSession(a.sessionID, st.Flight.Outcome.String(), st.Flight.Error, time.Now()); lerr != nil {
			a.log.Warn("ledger finish", "error", lerr)
		}
		if sum, lerr := a.ledger.Summary(a.sessionID); lerr == nil {
			a.log.Info("session summary",
				"captures", sum.Captures,
				"mean_overlap", sum.MeanOverlap,
				"std_overlap", sum.StdOverlap)
		}
	}
	return err
}

// Abort stops the scan. The controller lands and Run returns an error
// wrapping flight.ErrAborted and ErrOperatorAbort.
func (a *App) Abort(reason string) {
	a.log.Warn("abort requested", "reason", reason)
	a.sig.Trigger(fmt.Errorf("%w: %s", ErrOperatorAbort, reason))
}

// Shutdown releases the drone link and the ledger. Safe to call more than once.
func (a *App) Shutdown() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	a.mu.Unlock()

	a.sig.Trigger(nil)
	if err := a.drone.Close(); err != nil {
		a.log.Warn("close drone", "error", err)
	}
	if a.ledger != nil {
		if err := a.ledger.Close(); err != nil {
			a.log.Warn("close ledger", "error", err)
		}
	}
}

// SessionID returns the session's UUID.
func (a *App) SessionID() string { return a.sessionID }

// Frames returns the shared latest-frame cell.
func (a *App) Frames() *frame.Cell { return a.frames }

// Ledger returns the session ledger, or nil when disabled.
func (a *App) Ledger() *ledger.DB { return a.ledger }

// Status returns a point-in-time view of the session.
func (a *App) Status() Status {
	st := Status{
		SessionID: a.sessionID,
		StartedAt: a.startedAt,
		Battery:   a.battery,
	}
	a.mu.Lock()
	ready := a.initialized
	a.mu.Unlock()
	if ready {
		st.Flight = a.controller.Status()
		st.Markers = a.markers.Snapshot()
		st.Overlap = a.overlap.Latest()
		st.Captures = a.overlap.Captures()
		st.Triggers = a.overlap.Triggers()
	}
	if cause := a.sig.Cause(); cause != nil {
		st.Shutdown = cause.Error()
	}
	return st
}
