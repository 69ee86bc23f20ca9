package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrSessionNotFound is returned when a session id has no row.
var ErrSessionNotFound = errors.New("session not found")

// SessionRow is one scan_sessions row.
type SessionRow struct {
	ID                string     `json:"session_id"`
	Platform          string     `json:"platform"`
	StartedAt         time.Time  `json:"started_at"`
	StoppedAt         *time.Time `json:"stopped_at,omitempty"`
	TuningJSON        string     `json:"tuning"`
	Frames            int64      `json:"frames"`
	Emitted           int64      `json:"emitted"`
	DroppedBusy       int64      `json:"dropped_busy"`
	AcquisitionErrors int64      `json:"acquisition_errors"`
	StopError         string     `json:"stop_error,omitempty"`
}

// FrameRow is one frame_stats row.
type FrameRow struct {
	Seq        int64         `json:"seq"`
	CapturedAt time.Time     `json:"captured_at"`
	Outcome    string        `json:"outcome"`
	InRange    int           `json:"in_range"`
	Output     int           `json:"output"`
	Step       int           `json:"step"`
	NextStride int           `json:"next_stride"`
	Duration   time.Duration `json:"duration_ns"`
	Tuned      bool          `json:"tuned"`
}

const sessionColumns = `session_id, platform, started_unix_nanos, stopped_unix_nanos, tuning_json,
	frames, emitted, dropped_busy, acquisition_errors, stop_error`

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(s scanner) (SessionRow, error) {
	var (
		row     SessionRow
		started int64
		stopped sql.NullInt64
		stopErr sql.NullString
	)
	err := s.Scan(&row.ID, &row.Platform, &started, &stopped, &row.TuningJSON,
		&row.Frames, &row.Emitted, &row.DroppedBusy, &row.AcquisitionErrors, &stopErr)
	if err != nil {
		return SessionRow{}, err
	}
	row.StartedAt = time.Unix(0, started).UTC()
	if stopped.Valid {
		t := time.Unix(0, stopped.Int64).UTC()
		row.StoppedAt = &t
	}
	row.StopError = stopErr.String
	return row, nil
}

// Sessions returns the most recent sessions, newest first. limit <= 0
// returns all of them.
func (db *DB) Sessions(limit int) ([]SessionRow, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.Query(`SELECT `+sessionColumns+` FROM scan_sessions
		ORDER BY started_unix_nanos DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionRow
	for rows.Next() {
		row, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// Session returns a single session by id.
func (db *DB) Session(id string) (SessionRow, error) {
	row, err := scanSession(db.QueryRow(`SELECT `+sessionColumns+` FROM scan_sessions WHERE session_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return SessionRow{}, fmt.Errorf("%s: %w", id, ErrSessionNotFound)
	}
	if err != nil {
		return SessionRow{}, fmt.Errorf("query session %s: %w", id, err)
	}
	return row, nil
}

// LatestSessionID returns the id of the most recently started session.
func (db *DB) LatestSessionID() (string, error) {
	var id string
	err := db.QueryRow(`SELECT session_id FROM scan_sessions ORDER BY started_unix_nanos DESC LIMIT 1`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrSessionNotFound
	}
	if err != nil {
		return "", fmt.Errorf("query latest session: %w", err)
	}
	return id, nil
}

// FrameStats returns the frame rows of a session ordered by sequence.
func (db *DB) FrameStats(sessionID string) ([]FrameRow, error) {
	rows, err := db.Query(`SELECT seq, captured_unix_nanos, outcome, in_range, output, step,
		next_stride, duration_micros, tuned
		FROM frame_stats WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query frames: %w", err)
	}
	defer rows.Close()

	var out []FrameRow
	for rows.Next() {
		var (
			f        FrameRow
			captured int64
			micros   int64
		)
		if err := rows.Scan(&f.Seq, &captured, &f.Outcome, &f.InRange, &f.Output, &f.Step,
			&f.NextStride, &micros, &f.Tuned); err != nil {
			return nil, fmt.Errorf("scan frame: %w", err)
		}
		f.CapturedAt = time.Unix(0, captured).UTC()
		f.Duration = time.Duration(micros) * time.Microsecond
		out = append(out, f)
	}
	return out, rows.Err()
}

// OutcomeCounts tallies frame outcomes for a session.
func (db *DB) OutcomeCounts(sessionID string) (map[string]int, error) {
	rows, err := db.Query(`SELECT outcome, COUNT(*) FROM frame_stats WHERE session_id = ? GROUP BY outcome`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()
	out := make(map[string]int)
	for rows.Next() {
		var (
			k string
			n int
		)
		if err := rows.Scan(&k, &n); err != nil {
			return nil, err
		}
		out[k] = n
	}
	return out, rows.Err()
}
