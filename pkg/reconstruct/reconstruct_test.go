package reconstruct

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func writeFiles(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, n := range names {
		if err := os.WriteFile(filepath.Join(dir, n), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestFindImages(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "overlap_image_2.jpg", "overlap_image_1.jpg", "b.JPEG", "c.tif", "d.TIFF", "notes.txt", "e.png")
	if err := os.Mkdir(filepath.Join(dir, "sub.jpg"), 0755); err != nil {
		t.Fatal(err)
	}

	got, err := FindImages(dir)
	if err != nil {
		t.Fatalf("FindImages: %v", err)
	}
	var names []string
	for _, p := range got {
		names = append(names, filepath.Base(p))
	}
	want := []string{"b.JPEG", "c.tif", "d.TIFF", "overlap_image_1.jpg", "overlap_image_2.jpg"}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Errorf("FindImages (-want +got):\n%s", diff)
	}
}

// fakeTool writes a shell script that mimics the batch tool's argument contract.
func fakeTool(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script fake tool needs a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "fake-metashape")
	script := "#!/bin/sh\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunner_Run(t *testing.T) {
	images := t.TempDir()
	writeFiles(t, images, "overlap_image_1.jpg", "overlap_image_2.jpg", "overlap_image_3.jpg")
	output := filepath.Join(t.TempDir(), "model")

	var buf bytes.Buffer
	r := DefaultRunner()
	r.Binary = fakeTool(t, `echo "args: $1 $2"; touch "$4/project.psx"`)
	r.Output = &buf

	res, err := r.Run(context.Background(), images, output)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Images != 3 || res.Project != filepath.Join(output, ProjectFile) {
		t.Errorf("Run: got %+v", res)
	}
	if !strings.Contains(buf.String(), "args: -r auto_workflow.py") {
		t.Errorf("tool output: %q", buf.String())
	}
}

func TestRunner_NoProject(t *testing.T) {
	images := t.TempDir()
	writeFiles(t, images, "a.jpg", "b.jpg")

	r := DefaultRunner()
	r.Binary = fakeTool(t, "exit 0")

	if _, err := r.Run(context.Background(), images, t.TempDir()); !errors.Is(err, ErrNoProject) {
		t.Errorf("Run: got %v, want ErrNoProject", err)
	}
}

func TestRunner_ToolFailure(t *testing.T) {
	images := t.TempDir()
	writeFiles(t, images, "a.jpg", "b.jpg")

	r := DefaultRunner()
	r.Binary = fakeTool(t, "exit 3")

	_, err := r.Run(context.Background(), images, t.TempDir())
	if err == nil || errors.Is(err, ErrNoProject) {
		t.Errorf("Run: got %v, want exit status error", err)
	}
}

func TestRunner_TooFewImages(t *testing.T) {
	images := t.TempDir()
	writeFiles(t, images, "only.jpg")

	r := DefaultRunner()
	if _, err := r.Run(context.Background(), images, t.TempDir()); !errors.Is(err, ErrTooFewImages) {
		t.Errorf("Run: got %v, want ErrTooFewImages", err)
	}
}
