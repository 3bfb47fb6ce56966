// Package reconstruct hands a capture folder to the external photogrammetry
// batch tool. The scan itself never calls it; cmd/reconstruct does, after the
// drone has landed.
package reconstruct

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/teslashibe/go-dronescan/internal/log"
)

// ProjectFile is the project the workflow script saves into the output folder.
const ProjectFile = "project.psx"

var (
	// ErrTooFewImages is returned when the folder cannot yield an alignment.
	ErrTooFewImages = errors.New("reconstruct: not enough images")

	// ErrNoProject is returned when the tool exits cleanly without a project.
	ErrNoProject = errors.New("reconstruct: tool produced no project file")
)

var imageExts = map[string]bool{".jpg": true, ".jpeg": true, ".tif": true, ".tiff": true}

// FindImages lists the image files directly inside dir, sorted by name.
// Extensions match case-insensitively.
func FindImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if imageExts[strings.ToLower(filepath.Ext(e.Name()))] {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}

// Runner invokes "<Binary> -r <Script> <images> <output>".
type Runner struct {
	Binary    string
	Script    string
	MinImages int

	// Output receives the tool's stdout and stderr; nil discards them.
	Output io.Writer
}

// DefaultRunner runs Metashape's auto workflow script from the working directory.
func DefaultRunner() Runner {
	return Runner{
		Binary:    "metashape",
		Script:    "auto_workflow.py",
		MinImages: 2,
	}
}

// Result describes a finished reconstruction.
type Result struct {
	Project  string
	Images   int
	Duration time.Duration
}

// Run reconstructs imageDir into outputDir. It blocks until the tool exits or
// ctx is cancelled, which kills the tool.
func (r Runner) Run(ctx context.Context, imageDir, outputDir string) (Result, error) {
	images, err := FindImages(imageDir)
	if err != nil {
		return Result{}, err
	}
	if len(images) < r.MinImages {
		return Result{}, fmt.Errorf("%w: found %d in %s, need %d", ErrTooFewImages, len(images), imageDir, r.MinImages)
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return Result{}, fmt.Errorf("create output dir: %w", err)
	}

	logger := log.Component("reconstruct")
	logger.Info("starting reconstruction", "binary", r.Binary, "images", len(images), "output", outputDir)

	cmd := exec.CommandContext(ctx, r.Binary, "-r", r.Script, imageDir, outputDir)
	out := r.Output
	if out == nil {
		out = io.Discard
	}
	cmd.Stdout = out
	cmd.Stderr = out

	start := time.Now()
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return Result{}, fmt.Errorf("reconstruction cancelled: %w", ctx.Err())
		}
		return Result{}, fmt.Errorf("run %s: %w", r.Binary, err)
	}

	project := filepath.Join(outputDir, ProjectFile)
	if _, err := os.Stat(project); err != nil {
		return Result{}, fmt.Errorf("%w: %s", ErrNoProject, project)
	}

	res := Result{Project: project, Images: len(images), Duration: time.Since(start)}
	logger.Info("reconstruction finished", "project", project, "duration", res.Duration.Round(time.Second))
	return res, nil
}
