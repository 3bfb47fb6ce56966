// Package flight flies the scan pattern: climb, sweep sideways until the
// camera has moved far enough for a new capture, descend, and at each corner
// decide from the marker snapshot whether to turn or finish.
package flight

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-dronescan/internal/log"
	"github.com/teslashibe/go-dronescan/pkg/drone"
	"github.com/teslashibe/go-dronescan/pkg/marker"
	"github.com/teslashibe/go-dronescan/pkg/shutdown"
)

// Drone is the subset of the actuator the controller commands.
type Drone interface {
	drone.Altimeter
	drone.Pilot
	drone.Mover
	drone.Streamer
}

// TriggerSource counts overlap triggers.
type TriggerSource interface {
	Triggers() uint64
}

// MarkerSource provides the latest marker snapshot.
type MarkerSource interface {
	Snapshot() marker.Snapshot
}

// Transition is reported every time the state changes.
type Transition struct {
	From   State     `json:"from"`
	To     State     `json:"to"`
	Height int       `json:"height"`
	Time   time.Time `json:"time"`
}

// Status is a point-in-time view of the controller.
type Status struct {
	State     State   `json:"state"`
	Height    int     `json:"height"`
	MinHeight int     `json:"min_height"`
	Rotations int     `json:"rotations"`
	Outcome   Outcome `json:"outcome"`
	Error     string  `json:"error,omitempty"`
}

// Controller is the scan state machine. It is the only writer of its state.
type Controller struct {
	cfg      Config
	drone    Drone
	triggers TriggerSource
	markers  MarkerSource
	sig      *shutdown.Signal
	log      *slog.Logger

	mu        sync.RWMutex
	status    Status
	observers []func(Transition)

	minHeight int
	// launched is set once takeoff has been sent; before that the
	// emergency path has nothing to land.
	launched bool
}

// NewController creates a controller in TAKEOFF.
func NewController(cfg Config, d Drone, triggers TriggerSource, markers MarkerSource, sig *shutdown.Signal) *Controller {
	return &Controller{
		cfg:      cfg,
		drone:    d,
		triggers: triggers,
		markers:  markers,
		sig:      sig,
		log:      log.Component("flight"),
		status:   Status{State: StateTakeoff},
	}
}

// OnTransition registers an observer. Observers run on the controller
// goroutine and must not block. Register before Run.
func (c *Controller) OnTransition(fn func(Transition)) {
	c.mu.Lock()
	c.observers = append(c.observers, fn)
	c.mu.Unlock()
}

// Status returns the current status.
func (c *Controller) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// Run flies until the scan completes, an actuator fails or the shutdown
// signal fires. It always leaves the controller in TERMINATED with the
// shutdown signal set.
//
// Returns nil on completion, a *FaultError on actuator failure and an error
// wrapping ErrAborted when stopped from outside.
func (c *Controller) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(c.sig.Context(), cancel)
	defer stop()

	state := StateTakeoff
	c.log.Info("scan started", "desired_height", c.cfg.DesiredHeight, "target_markers", c.cfg.TargetMarkerCount)

	for {
		if c.aborted(ctx) {
			return c.fail(state, c.abortErr(ctx))
		}
		next, err := c.step(ctx, state)
		if err != nil {
			return c.fail(state, err)
		}
		if next == StateTerminated {
			c.finish(OutcomeCompleted, nil)
			c.transition(state, next)
			c.sig.Trigger(ErrComplete)
			c.log.Info("scan complete", "rotations", c.Status().Rotations)
			return nil
		}
		if c.aborted(ctx) {
			return c.fail(next, c.abortErr(ctx))
		}
		c.transition(state, next)
		state = next
	}
}

// step executes one state and returns its successor.
func (c *Controller) step(ctx context.Context, state State) (State, error) {
	switch state {
	case StateTakeoff:
		c.launched = true
		if err := c.drone.Takeoff(ctx); err != nil {
			return state, c.fault(ctx, state, "takeoff", err)
		}
		if err := c.wait(ctx, c.cfg.SettleDelay); err != nil {
			return state, err
		}
		h, err := c.height(ctx, state)
		if err != nil {
			return state, err
		}
		c.minHeight = h
		c.setMinHeight(h)
		return StateAscend, nil

	case StateAscend:
		up := drone.Up(c.cfg.ClimbSpeed)
		err := c.fly(ctx, state, up, func() (bool, error) {
			h, err := c.height(ctx, state)
			return h >= c.cfg.DesiredHeight, err
		})
		return StateSweepOut, err

	case StateSweepOut, StateSweepBack:
		start := c.triggers.Triggers()
		err := c.fly(ctx, state, drone.Right(c.cfg.SweepSpeed), func() (bool, error) {
			return c.triggers.Triggers() > start, nil
		})
		if state == StateSweepOut {
			return StateDescend, err
		}
		return StateAscend, err

	case StateDescend:
		down := drone.Up(-c.cfg.DescendSpeed)
		err := c.fly(ctx, state, down, func() (bool, error) {
			h, err := c.height(ctx, state)
			return h <= c.minHeight, err
		})
		return StateRotateCheck, err

	case StateRotateCheck:
		snap := c.markers.Snapshot()
		rotate, done := Decide(snap, c.cfg.TargetMarkerCount)
		if rotate {
			c.log.Info("corner reached, rotating", "marker", snap.MarkerID, "registry", snap.Registry)
			if err := c.drone.Rotate(ctx, c.cfg.RotationDegrees); err != nil {
				return state, c.fault(ctx, state, "rotate", err)
			}
			c.mu.Lock()
			c.status.Rotations++
			c.mu.Unlock()
		}
		if !done {
			return StateSweepBack, nil
		}
		if err := c.drone.Land(ctx); err != nil {
			return state, c.fault(ctx, state, "land", err)
		}
		if err := c.drone.StreamOff(ctx); err != nil {
			return state, c.fault(ctx, state, "stream off", err)
		}
		return StateTerminated, nil
	}
	return state, fmt.Errorf("flight: no behaviour for state %s", state)
}

// Decide evaluates the corner rule for a marker snapshot: turn when the
// dominant marker sits left and more than one marker is known; finish when it
// sits left, is the first marker ever seen and all target markers are known.
func Decide(s marker.Snapshot, target int) (rotate, done bool) {
	left := s.HasMarker && s.Position == marker.PositionLeft
	first, ok := s.First()
	rotate = left && s.Size() > 1
	done = left && ok && s.MarkerID == first && s.Size() == target
	return rotate, done
}

// fly sends v every poll interval until done reports true, then hovers.
func (c *Controller) fly(ctx context.Context, state State, v drone.Velocity, done func() (bool, error)) error {
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if c.aborted(ctx) {
			return c.abortErr(ctx)
		}
		ok, err := done()
		if err != nil {
			return err
		}
		if ok {
			if err := c.drone.SendVelocity(ctx, drone.Hover); err != nil {
				return c.fault(ctx, state, "hover", err)
			}
			return nil
		}
		if err := c.drone.SendVelocity(ctx, v); err != nil {
			return c.fault(ctx, state, "send velocity", err)
		}

		select {
		case <-ctx.Done():
			return c.abortErr(ctx)
		case <-ticker.C:
		}
	}
}

func (c *Controller) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return c.abortErr(ctx)
	case <-t.C:
		return nil
	}
}

// height reads the altimeter and folds the reading into the running minimum.
func (c *Controller) height(ctx context.Context, state State) (int, error) {
	h, err := c.drone.Height(ctx)
	if err != nil {
		return 0, c.fault(ctx, state, "read height", err)
	}
	if h < c.minHeight {
		c.minHeight = h
	}
	c.mu.Lock()
	c.status.Height = h
	c.status.MinHeight = c.minHeight
	c.mu.Unlock()
	return h, nil
}

func (c *Controller) setMinHeight(h int) {
	c.mu.Lock()
	c.status.MinHeight = h
	c.mu.Unlock()
}

func (c *Controller) fault(ctx context.Context, state State, op string, err error) error {
	if c.aborted(ctx) {
		// The command was interrupted by shutdown, not refused by the drone.
		return c.abortErr(ctx)
	}
	return &FaultError{State: state, Op: op, Err: err}
}

func (c *Controller) aborted(ctx context.Context) bool {
	return c.sig.IsSet() || ctx.Err() != nil
}

func (c *Controller) abortErr(ctx context.Context) error {
	cause := c.sig.Cause()
	if cause == nil {
		cause = context.Cause(ctx)
	}
	return fmt.Errorf("%w: %w", ErrAborted, cause)
}

// fail runs the emergency path: hover, land, stop video, set shutdown.
// A scan stopped before takeoff only stops the video.
func (c *Controller) fail(state State, err error) error {
	outcome := OutcomeFaulted
	if errors.Is(err, ErrAborted) {
		outcome = OutcomeAborted
		c.log.Warn("scan aborted", "state", state, "cause", err)
	} else {
		c.log.Error("scan faulted", "state", state, "error", err)
	}

	c.sig.Trigger(err)
	c.emergencyLand()
	c.finish(outcome, err)
	c.transition(state, StateTerminated)
	return err
}

// emergencyLand uses its own context: the scan context is already cancelled.
func (c *Controller) emergencyLand() {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.LandTimeout)
	defer cancel()

	if c.launched {
		if err := c.drone.SendVelocity(ctx, drone.Hover); err != nil {
			c.log.Warn("emergency hover failed", "error", err)
		}
		if err := c.drone.Land(ctx); err != nil {
			c.log.Error("emergency land failed", "error", err)
		} else {
			c.log.Info("emergency land complete")
		}
	}
	if err := c.drone.StreamOff(ctx); err != nil {
		c.log.Warn("stream off failed", "error", err)
	}
}

func (c *Controller) transition(from, to State) {
	c.mu.Lock()
	c.status.State = to
	t := Transition{From: from, To: to, Height: c.status.Height, Time: time.Now()}
	observers := c.observers
	c.mu.Unlock()

	if from != to {
		c.log.Info("transition", "from", from, "to", to, "height", t.Height)
	}
	for _, fn := range observers {
		fn(t)
	}
}

func (c *Controller) finish(o Outcome, err error) {
	c.mu.Lock()
	c.status.Outcome = o
	if err != nil {
		c.status.Error = err.Error()
	}
	c.mu.Unlock()
}
