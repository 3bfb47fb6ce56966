package cv

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-dronescan/internal/log"
	"github.com/teslashibe/go-dronescan/pkg/drone"
	"github.com/teslashibe/go-dronescan/pkg/frame"
	"gocv.io/x/gocv"
)

// DefaultStreamURI is where a Tello pushes its H.264 stream after streamon.
const DefaultStreamURI = "udp://@0.0.0.0:11111?overrun_nonfatal=1&fifo_size=50000000&timeout=2000000"

// StreamDecoder reads an H.264 stream through OpenCV's FFmpeg backend and keeps
// only the newest decoded frame.
type StreamDecoder struct {
	uri string

	// MaxReadFailures is how many consecutive failed reads end the stream.
	MaxReadFailures int

	log *slog.Logger

	mu     sync.RWMutex
	latest *frame.Frame
	err    error
	seq    uint64

	started atomic.Bool
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
}

// NewStreamDecoder creates a decoder for uri (see DefaultStreamURI).
func NewStreamDecoder(uri string) *StreamDecoder {
	return &StreamDecoder{
		uri:             uri,
		MaxReadFailures: 50,
		log:             log.Component("video"),
		stop:            make(chan struct{}),
		done:            make(chan struct{}),
	}
}

// Start opens the stream in the background; opening blocks until the first
// packets arrive, so it never runs on the caller's goroutine.
func (d *StreamDecoder) Start() error {
	if !d.started.CompareAndSwap(false, true) {
		return fmt.Errorf("video decoder already started")
	}
	go d.run()
	return nil
}

func (d *StreamDecoder) run() {
	defer close(d.done)

	capture, err := gocv.VideoCaptureFile(d.uri)
	if err != nil {
		d.fail(fmt.Errorf("%w: open %s: %v", drone.ErrStreamClosed, d.uri, err))
		return
	}
	defer capture.Close()

	img := gocv.NewMat()
	defer img.Close()

	failures := 0
	for {
		select {
		case <-d.stop:
			d.fail(drone.ErrStreamClosed)
			return
		default:
		}

		if ok := capture.Read(&img); !ok || img.Empty() {
			failures++
			if failures >= d.MaxReadFailures {
				d.fail(fmt.Errorf("%w: %d consecutive empty reads", drone.ErrStreamClosed, failures))
				return
			}
			time.Sleep(10 * time.Millisecond)
			continue
		}
		failures = 0

		f := &frame.Frame{
			Timestamp: time.Now(),
			Width:     img.Cols(),
			Height:    img.Rows(),
			Channels:  img.Channels(),
			Pix:       img.ToBytes(),
		}

		d.mu.Lock()
		d.seq++
		f.Seq = d.seq
		d.latest = f
		d.mu.Unlock()
	}
}

func (d *StreamDecoder) fail(err error) {
	d.mu.Lock()
	if d.err == nil {
		d.err = err
	}
	d.mu.Unlock()
	d.log.Info("video stream stopped", "reason", err)
}

// Latest implements drone.VideoDecoder.
func (d *StreamDecoder) Latest() (*frame.Frame, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.err != nil {
		return nil, d.err
	}
	return d.latest, nil
}

// Close asks the reader to stop and waits briefly for it. A read blocked in
// FFmpeg is bounded by the URI timeout option.
func (d *StreamDecoder) Close() error {
	d.once.Do(func() { close(d.stop) })
	if !d.started.Load() {
		return nil
	}
	select {
	case <-d.done:
	case <-time.After(3 * time.Second):
		return fmt.Errorf("video decoder did not stop within 3s")
	}
	return nil
}

// Ensure StreamDecoder implements drone.VideoDecoder
var _ drone.VideoDecoder = (*StreamDecoder)(nil)
