// scan flies a Tello around an object and captures an overlapping image set
// for photogrammetry, stopping once it is back at the first marker.
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/teslashibe/go-dronescan/internal/log"
	"github.com/teslashibe/go-dronescan/pkg/drone"
	"github.com/teslashibe/go-dronescan/pkg/flight"
	"github.com/teslashibe/go-dronescan/pkg/scan"
	"github.com/teslashibe/go-dronescan/pkg/vision/cv"
	"github.com/teslashibe/go-dronescan/pkg/web"
)

func main() {
	cfg := parseFlags()
	log.Init(cfg.LogLevel)

	orb := cv.NewORBDetector()
	defer orb.Close()
	matcher := cv.NewHammingMatcher()
	defer matcher.Close()
	aruco := cv.NewArucoDetector()
	defer aruco.Close()
	encoder := cv.JPEGEncoder{Quality: 95}

	telloCfg := drone.DefaultTelloConfig()
	telloCfg.IP = cfg.DroneIP
	tello := drone.NewTello(telloCfg, func() drone.VideoDecoder {
		return cv.NewStreamDecoder(cv.DefaultStreamURI)
	})

	app, err := scan.New(cfg, tello, scan.Vision{
		Features: orb,
		Matcher:  matcher,
		Markers:  aruco,
		Encoder:  encoder,
	})
	if err != nil {
		log.Error("configuration error", "error", err)
		os.Exit(2)
	}
	defer app.Shutdown()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	initCtx, initCancel := context.WithTimeout(ctx, 30*time.Second)
	err = app.Init(initCtx)
	initCancel()
	if err != nil {
		log.Error("initialization failed", "error", err)
		app.Shutdown()
		if errors.Is(err, scan.ErrLowBattery) {
			os.Exit(3)
		}
		os.Exit(1)
	}

	var wg sync.WaitGroup
	webCtx, stopWeb := context.WithCancel(context.Background())
	if cfg.DashboardPort != "" {
		// Preview frames are encoded at a lower quality than captures.
		dash := web.NewServer(cfg.DashboardPort, app, app.Frames(), cv.JPEGEncoder{Quality: 70})
		app.OnTransition(func(flight.Transition) { dash.NotifyStatus() })
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := dash.Run(webCtx); err != nil {
				log.Warn("dashboard stopped", "error", err)
			}
		}()
	}

	runErr := app.Run(ctx)
	stopWeb()
	wg.Wait()

	if runErr != nil {
		var fault *flight.FaultError
		switch {
		case errors.As(runErr, &fault):
			log.Error("scan faulted", "state", fault.State, "op", fault.Op, "error", fault.Err)
		case errors.Is(runErr, flight.ErrAborted):
			log.Warn("scan aborted", "error", runErr)
		default:
			log.Error("scan failed", "error", runErr)
		}
		app.Shutdown()
		os.Exit(1)
	}
	log.Info("scan complete", "session", app.SessionID(), "dir", cfg.CaptureDir)
}

// parseFlags parses command line flags and returns configuration.
// Environment values become the flag defaults, so explicit flags win.
func parseFlags() scan.Config {
	cfg := scan.DefaultConfig()
	cfg.LoadEnvConfig()

	droneIP := flag.String("drone-ip", cfg.DroneIP, "Tello address (DRONE_IP)")
	height := flag.Int("height", cfg.Flight.DesiredHeight, "scan height in cm (SCAN_HEIGHT_CM)")
	overlapMin := flag.Float64("overlap-min", cfg.Band.Min, "lower capture overlap percent (SCAN_OVERLAP_MIN)")
	overlapMax := flag.Float64("overlap-max", cfg.Band.Max, "upper capture overlap percent (SCAN_OVERLAP_MAX)")
	markers := flag.Int("markers", cfg.Flight.TargetMarkerCount, "distinct markers around the object (SCAN_MARKERS)")
	poll := flag.Duration("poll", cfg.Flight.PollInterval, "flight control polling interval (SCAN_POLL_MS)")
	minBattery := flag.Int("min-battery", cfg.MinBattery, "minimum battery percent to start (SCAN_MIN_BATTERY)")
	dir := flag.String("dir", cfg.CaptureDir, "capture directory (SCAN_DIR)")
	ledger := flag.String("ledger", cfg.LedgerPath, "sqlite session ledger, empty to disable (SCAN_LEDGER)")
	port := flag.Int("port", portNumber(cfg.DashboardPort), "dashboard port, 0 to disable (SCAN_DASHBOARD_PORT)")
	level := flag.String("log-level", cfg.LogLevel, "debug, info, warn or error (LOG_LEVEL)")
	flag.Parse()

	cfg.DroneIP = *droneIP
	cfg.Flight.DesiredHeight = *height
	cfg.Band.Min, cfg.Band.Max = *overlapMin, *overlapMax
	cfg.Flight.TargetMarkerCount = *markers
	cfg.Flight.PollInterval = *poll
	cfg.MinBattery = *minBattery
	cfg.CaptureDir = *dir
	cfg.LedgerPath = *ledger
	cfg.LogLevel = *level
	cfg.DashboardPort = ""
	if *port > 0 {
		cfg.DashboardPort = strconv.Itoa(*port)
	}
	return cfg
}

func portNumber(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
