// Package ledger records scan sessions in a local sqlite database: one row per
// session plus its captures, first marker sightings and state transitions.
package ledger

import (
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"gonum.org/v1/gonum/stat"
	_ "modernc.org/sqlite"
)

// schema.sql creates the sessions, captures, marker_sightings and transitions
// tables. Every statement is idempotent.
//
//go:embed schema.sql
var schemaSQL string

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA foreign_keys=ON",
}

// ErrUnknownSession is returned when a session id has no row.
var ErrUnknownSession = errors.New("ledger: unknown session")

// DB is the scan ledger.
type DB struct {
	*sql.DB
}

// Open opens or creates the ledger at path.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	// Writers come from several monitors; a single connection serialises them.
	db.SetMaxOpenConns(1)

	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", p, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply ledger schema: %w", err)
	}
	return &DB{db}, nil
}

// Session is the metadata stored when a scan starts.
type Session struct {
	ID            string
	StartedAt     time.Time
	DroneAddr     string
	Battery       int
	DesiredHeight int
	TargetMarkers int
	CaptureDir    string
}

// StartSession inserts a session row.
func (db *DB) StartSession(s Session) error {
	_, err := db.Exec(`
		INSERT INTO sessions (id, started_at, drone_addr, battery, desired_height, target_markers, capture_dir)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, s.ID, s.StartedAt.UTC(), s.DroneAddr, s.Battery, s.DesiredHeight, s.TargetMarkers, s.CaptureDir)
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	return nil
}

// FinishSession stamps the end time and outcome. errText may be empty.
func (db *DB) FinishSession(id, outcome, errText string, at time.Time) error {
	res, err := db.Exec(`
		UPDATE sessions SET finished_at = ?, outcome = ?, error = NULLIF(?, '')
		WHERE id = ?
	`, at.UTC(), outcome, errText, id)
	if err != nil {
		return fmt.Errorf("failed to finish session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	return nil
}

// Capture is one persisted image.
type Capture struct {
	Index          int
	Path           string
	FrameSeq       uint64
	OverlapPercent float64
	Bytes          int
	At             time.Time
}

// RecordCapture stores a capture for session.
func (db *DB) RecordCapture(session string, c Capture) error {
	_, err := db.Exec(`
		INSERT INTO captures (session_id, image_index, path, frame_seq, overlap_percent, bytes, captured_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, session, c.Index, c.Path, int64(c.FrameSeq), c.OverlapPercent, c.Bytes, c.At.UTC())
	if err != nil {
		return fmt.Errorf("failed to record capture: %w", err)
	}
	return nil
}

// RecordMarker stores the first sighting of a marker. Repeat sightings of the
// same id are ignored.
func (db *DB) RecordMarker(session string, markerID int, position string, frameSeq uint64, at time.Time) error {
	_, err := db.Exec(`
		INSERT OR IGNORE INTO marker_sightings (session_id, marker_id, position, frame_seq, seen_at)
		VALUES (?, ?, ?, ?, ?)
	`, session, markerID, position, int64(frameSeq), at.UTC())
	if err != nil {
		return fmt.Errorf("failed to record marker: %w", err)
	}
	return nil
}

// RecordTransition stores a flight state change.
func (db *DB) RecordTransition(session, from, to string, heightCM int, at time.Time) error {
	_, err := db.Exec(`
		INSERT INTO transitions (session_id, from_state, to_state, height_cm, at)
		VALUES (?, ?, ?, ?, ?)
	`, session, from, to, heightCM, at.UTC())
	if err != nil {
		return fmt.Errorf("failed to record transition: %w", err)
	}
	return nil
}

// Markers returns the session's marker ids in first-seen order.
func (db *DB) Markers(session string) ([]int, error) {
	rows, err := db.Query(`
		SELECT marker_id FROM marker_sightings WHERE session_id = ? ORDER BY rowid
	`, session)
	if err != nil {
		return nil, fmt.Errorf("failed to query markers: %w", err)
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Transitions returns the session's "FROM>TO" pairs in order.
func (db *DB) Transitions(session string) ([]string, error) {
	rows, err := db.Query(`
		SELECT from_state, to_state FROM transitions WHERE session_id = ? ORDER BY id
	`, session)
	if err != nil {
		return nil, fmt.Errorf("failed to query transitions: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var from, to string
		if err := rows.Scan(&from, &to); err != nil {
			return nil, err
		}
		out = append(out, from+">"+to)
	}
	return out, rows.Err()
}

// Summary aggregates one session.
type Summary struct {
	SessionID   string
	Outcome     string
	Captures    int
	Markers     int
	Transitions int
	MeanOverlap float64
	StdOverlap  float64
	MinOverlap  float64
	MaxOverlap  float64
}

// Summary computes capture statistics for a session.
func (db *DB) Summary(session string) (Summary, error) {
	s := Summary{SessionID: session}

	var outcome sql.NullString
	err := db.QueryRow(`SELECT outcome FROM sessions WHERE id = ?`, session).Scan(&outcome)
	if errors.Is(err, sql.ErrNoRows) {
		return s, fmt.Errorf("%w: %s", ErrUnknownSession, session)
	}
	if err != nil {
		return s, fmt.Errorf("failed to load session: %w", err)
	}
	s.Outcome = outcome.String

	rows, err := db.Query(`SELECT overlap_percent FROM captures WHERE session_id = ? ORDER BY image_index`, session)
	if err != nil {
		return s, fmt.Errorf("failed to query captures: %w", err)
	}
	var overlaps []float64
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return s, err
		}
		overlaps = append(overlaps, v)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return s, err
	}

	s.Captures = len(overlaps)
	switch len(overlaps) {
	case 0:
	case 1:
		s.MeanOverlap = overlaps[0]
		s.MinOverlap, s.MaxOverlap = overlaps[0], overlaps[0]
	default:
		s.MeanOverlap, s.StdOverlap = stat.MeanStdDev(overlaps, nil)
		s.MinOverlap, s.MaxOverlap = overlaps[0], overlaps[0]
		for _, v := range overlaps[1:] {
			s.MinOverlap = min(s.MinOverlap, v)
			s.MaxOverlap = max(s.MaxOverlap, v)
		}
	}

	if err := db.QueryRow(`SELECT COUNT(*) FROM marker_sightings WHERE session_id = ?`, session).Scan(&s.Markers); err != nil {
		return s, fmt.Errorf("failed to count markers: %w", err)
	}
	if err := db.QueryRow(`SELECT COUNT(*) FROM transitions WHERE session_id = ?`, session).Scan(&s.Transitions); err != nil {
		return s, fmt.Errorf("failed to count transitions: %w", err)
	}
	return s, nil
}
