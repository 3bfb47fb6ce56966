// Package feed moves decoded video frames from the drone into the shared
// latest-frame cell.
package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/teslashibe/go-dronescan/internal/log"
	"github.com/teslashibe/go-dronescan/pkg/drone"
	"github.com/teslashibe/go-dronescan/pkg/frame"
	"github.com/teslashibe/go-dronescan/pkg/shutdown"
)

// DefaultInterval polls a little faster than the Tello's 30 fps stream.
const DefaultInterval = 15 * time.Millisecond

// Feed polls a frame source and publishes each new frame.
type Feed struct {
	src      drone.FrameSource
	cell     *frame.Cell
	sig      *shutdown.Signal
	interval time.Duration
	log      *slog.Logger

	published uint64
}

// New creates a feed. A non-positive interval selects DefaultInterval.
func New(src drone.FrameSource, cell *frame.Cell, sig *shutdown.Signal, interval time.Duration) *Feed {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Feed{
		src:      src,
		cell:     cell,
		sig:      sig,
		interval: interval,
		log:      log.Component("feed"),
	}
}

// Run publishes frames until ctx is done or the source fails. A source error
// ends the stream for everyone: the shutdown signal is set with the error.
func (f *Feed) Run(ctx context.Context) error {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	var lastSeq uint64
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-f.sig.Done():
			return nil
		case <-ticker.C:
		}

		fr, err := f.src.LatestFrame()
		if err != nil {
			err = fmt.Errorf("video stream: %w", err)
			if errors.Is(err, drone.ErrStreamClosed) {
				f.log.Warn("video stream terminated", "error", err)
			} else {
				f.log.Error("video stream failed", "error", err)
			}
			f.sig.Trigger(err)
			return err
		}

		// No frame yet, an empty frame or one already published: keep polling.
		if fr == nil || fr.Empty() || !fr.Valid() || fr.Seq <= lastSeq {
			continue
		}
		lastSeq = fr.Seq
		f.cell.Publish(fr)
		f.published++
		if f.published == 1 {
			f.log.Info("first frame", "width", fr.Width, "height", fr.Height)
		}
	}
}
