// reconstruct runs the photogrammetry batch tool on a finished scan folder.
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/teslashibe/go-dronescan/internal/config"
	"github.com/teslashibe/go-dronescan/internal/log"
	"github.com/teslashibe/go-dronescan/pkg/reconstruct"
	"github.com/teslashibe/go-dronescan/pkg/scan"
)

func main() {
	r := reconstruct.DefaultRunner()

	images := flag.String("images", config.String("SCAN_DIR", scan.DefaultCaptureDir), "folder of captured images")
	output := flag.String("output", "model", "output folder for the project")
	binary := flag.String("tool", config.String("METASHAPE_BIN", r.Binary), "batch tool executable")
	script := flag.String("script", r.Script, "workflow script passed with -r")
	minImages := flag.Int("min-images", r.MinImages, "refuse to run with fewer images")
	level := flag.String("log-level", config.String("LOG_LEVEL", "info"), "debug, info, warn or error")
	flag.Parse()
	log.Init(*level)

	r.Binary, r.Script, r.MinImages = *binary, *script, *minImages
	r.Output = os.Stdout

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	res, err := r.Run(ctx, *images, *output)
	if err != nil {
		log.Error("reconstruction failed", "error", err)
		if errors.Is(err, reconstruct.ErrTooFewImages) {
			os.Exit(2)
		}
		os.Exit(1)
	}
	log.Info("project written", "project", res.Project, "images", res.Images, "duration", res.Duration)
}
