// Package capture persists overlap-triggered frames as numbered image files.
//
// Files are named <prefix><n><ext>, for example overlap_image_12.jpg. The
// counter resumes from the highest index already present, and files are
// created exclusively, so an existing capture is never overwritten.
package capture

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"sync"

	"github.com/teslashibe/go-dronescan/pkg/frame"
	"github.com/teslashibe/go-dronescan/pkg/vision"
)

// DefaultPrefix matches the file names expected by the reconstruction workflow.
const DefaultPrefix = "overlap_image_"

// maxCollisions bounds how far Save skips past files created behind its back.
const maxCollisions = 1000

// Capture describes one persisted image.
type Capture struct {
	Index int
	Path  string
	Seq   uint64
	Bytes int
}

// Store writes captures into a directory.
type Store struct {
	dir     string
	prefix  string
	encoder vision.Encoder

	mu   sync.Mutex
	next int
}

// Open prepares dir (creating it if needed) and seeds the counter.
func Open(dir, prefix string, enc vision.Encoder) (*Store, error) {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create capture dir: %w", err)
	}

	last, err := LastIndex(dir, prefix, enc.Ext())
	if err != nil {
		return nil, err
	}

	return &Store{
		dir:     dir,
		prefix:  prefix,
		encoder: enc,
		next:    last + 1,
	}, nil
}

// LastIndex returns the highest index among files named <prefix><n><ext> in
// dir, or 0 when there are none.
func LastIndex(dir, prefix, ext string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("scan capture dir: %w", err)
	}

	pattern := regexp.MustCompile("^" + regexp.QuoteMeta(prefix) + `(\d+)` + regexp.QuoteMeta(ext) + "$")
	maxIndex := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := pattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if n > maxIndex {
			maxIndex = n
		}
	}
	return maxIndex, nil
}

// Dir returns the capture directory.
func (s *Store) Dir() string { return s.dir }

// NextIndex returns the index the next Save will try first.
func (s *Store) NextIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}

// Save encodes f and writes it under the next free index.
func (s *Store) Save(f *frame.Frame) (Capture, error) {
	data, err := s.encoder.Encode(f)
	if err != nil {
		return Capture{}, fmt.Errorf("encode capture: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for attempt := 0; attempt < maxCollisions; attempt++ {
		idx := s.next
		path := filepath.Join(s.dir, s.prefix+strconv.Itoa(idx)+s.encoder.Ext())

		file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if errors.Is(err, fs.ErrExist) {
			s.next++
			continue
		}
		if err != nil {
			return Capture{}, fmt.Errorf("create capture: %w", err)
		}

		_, werr := file.Write(data)
		cerr := file.Close()
		if werr != nil || cerr != nil {
			os.Remove(path)
			return Capture{}, fmt.Errorf("write capture %s: %w", path, errors.Join(werr, cerr))
		}

		s.next++
		return Capture{Index: idx, Path: path, Seq: f.Seq, Bytes: len(data)}, nil
	}
	return Capture{}, fmt.Errorf("no free capture index after %d attempts", maxCollisions)
}
