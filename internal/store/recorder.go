package store

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/banshee-data/footscan/internal/monitoring"
	"github.com/banshee-data/footscan/internal/scan/session"
)

// DefaultRecorderBuffer is the number of queued writes before frame rows
// start being dropped.
const DefaultRecorderBuffer = 256

// Recorder writes session and frame rows on its own goroutine so the
// scan worker never waits on disk. It implements session.Recorder.
type Recorder struct {
	db *DB
	ch chan func() error

	mu     sync.Mutex
	closed bool
	done   chan struct{}

	written atomic.Uint64
	dropped atomic.Uint64
	failed  atomic.Uint64
}

var _ session.Recorder = (*Recorder)(nil)

// NewRecorder starts a recorder over db. buffer <= 0 selects
// DefaultRecorderBuffer.
func NewRecorder(db *DB, buffer int) *Recorder {
	if buffer <= 0 {
		buffer = DefaultRecorderBuffer
	}
	r := &Recorder{
		db:   db,
		ch:   make(chan func() error, buffer),
		done: make(chan struct{}),
	}
	go r.loop()
	return r
}

func (r *Recorder) loop() {
	defer close(r.done)
	for op := range r.ch {
		if err := op(); err != nil {
			r.failed.Add(1)
			monitoring.Logf("[store] write failed: %v", err)
			continue
		}
		r.written.Add(1)
	}
}

// enqueue blocks when wait is set; otherwise a full queue drops the op.
func (r *Recorder) enqueue(op func() error, wait bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		r.dropped.Add(1)
		return
	}
	if wait {
		r.ch <- op
		return
	}
	select {
	case r.ch <- op:
	default:
		r.dropped.Add(1)
	}
}

// BeginSession inserts the session row.
func (r *Recorder) BeginSession(info session.Info) {
	r.enqueue(func() error { return r.db.InsertSession(info) }, true)
}

// RecordFrame queues one frame row, dropping it if the queue is full.
func (r *Recorder) RecordFrame(rec session.FrameRecord) {
	r.enqueue(func() error { return r.db.InsertFrame(rec) }, false)
}

// EndSession closes the session row with its summary counters.
func (r *Recorder) EndSession(sum session.Summary) {
	r.enqueue(func() error { return r.db.FinishSession(sum) }, true)
}

// Close flushes queued writes and stops the writer goroutine. Calls after
// Close are dropped.
func (r *Recorder) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		<-r.done
		return
	}
	r.closed = true
	close(r.ch)
	r.mu.Unlock()
	<-r.done
}

// RecorderStats reports writer counters.
type RecorderStats struct {
	Written uint64
	Dropped uint64
	Failed  uint64
}

// Stats returns a snapshot of the writer counters.
func (r *Recorder) Stats() RecorderStats {
	return RecorderStats{
		Written: r.written.Load(),
		Dropped: r.dropped.Load(),
		Failed:  r.failed.Load(),
	}
}

// InsertSession writes the opening row of a session.
func (db *DB) InsertSession(info session.Info) error {
	tj, err := json.Marshal(info.Tuning)
	if err != nil {
		return fmt.Errorf("encode tuning: %w", err)
	}
	_, err = db.Exec(`INSERT INTO scan_sessions (session_id, platform, started_unix_nanos, tuning_json)
		VALUES (?, ?, ?, ?)`,
		info.ID, info.Platform, info.StartedAt.UnixNano(), string(tj))
	if err != nil {
		return fmt.Errorf("insert session %s: %w", info.ID, err)
	}
	return nil
}

// InsertFrame writes one frame_stats row.
func (db *DB) InsertFrame(rec session.FrameRecord) error {
	_, err := db.Exec(`INSERT OR REPLACE INTO frame_stats
		(session_id, seq, captured_unix_nanos, outcome, in_range, output, step, next_stride, duration_micros, tuned)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.SessionID, int64(rec.Seq), rec.CapturedAt.UnixNano(), string(rec.Outcome),
		rec.InRange, rec.Output, rec.Step, rec.NextStride, rec.Duration.Microseconds(), rec.Tuned)
	if err != nil {
		return fmt.Errorf("insert frame %s/%d: %w", rec.SessionID, rec.Seq, err)
	}
	return nil
}

// FinishSession stores the stop time and counters of a session.
func (db *DB) FinishSession(sum session.Summary) error {
	var stopErr any
	if sum.Err != nil {
		stopErr = sum.Err.Error()
	}
	res, err := db.Exec(`UPDATE scan_sessions
		SET stopped_unix_nanos = ?, frames = ?, emitted = ?, dropped_busy = ?, acquisition_errors = ?, stop_error = ?
		WHERE session_id = ?`,
		sum.StoppedAt.UnixNano(), int64(sum.Frames), int64(sum.Emitted),
		int64(sum.DroppedBusy), int64(sum.AcquisitionFailures), stopErr, sum.ID)
	if err != nil {
		return fmt.Errorf("finish session %s: %w", sum.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finish session %s: %w", sum.ID, ErrSessionNotFound)
	}
	return nil
}
