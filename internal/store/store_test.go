package store

import (
	"compress/gzip"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/footscan/internal/monitoring"
	"github.com/banshee-data/footscan/internal/scan/pipeline"
	"github.com/banshee-data/footscan/internal/scan/session"
	"github.com/banshee-data/footscan/internal/scan/tuning"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	t.Cleanup(monitoring.Mute())
	db, err := Open(filepath.Join(t.TempDir(), "scan.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func seedSession(t *testing.T, db *DB, id string, started time.Time, frames int) {
	t.Helper()
	require.NoError(t, db.InsertSession(session.Info{
		ID: id, Platform: "synthetic", StartedAt: started, Tuning: tuning.Default(),
	}))
	for i := 1; i <= frames; i++ {
		out := session.OutcomeEmitted
		if i%5 == 0 {
			out = session.OutcomeTracking
		}
		require.NoError(t, db.InsertFrame(session.FrameRecord{
			SessionID:  id,
			Seq:        uint64(i),
			CapturedAt: started.Add(time.Duration(i) * 66 * time.Millisecond),
			Outcome:    out,
			InRange:    1000 + i,
			Output:     800 + i,
			Step:       4,
			NextStride: 4 + i%2,
			Duration:   time.Duration(i) * time.Millisecond,
			Tuned:      i == 1,
		}))
	}
}

func TestMigrations(t *testing.T) {
	db := openTestDB(t)

	v, dirty, err := db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(2), v)
	assert.False(t, dirty)

	// Re-running up is a no-op.
	require.NoError(t, db.MigrateUp())

	require.NoError(t, db.MigrateDown())
	v, _, err = db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(1), v)

	var n int
	err = db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='frame_stats'`).Scan(&n)
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, db.MigrateUp())
	v, _, err = db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(2), v)
}

func TestOpenRawHasNoSchema(t *testing.T) {
	t.Cleanup(monitoring.Mute())
	db, err := OpenRaw(filepath.Join(t.TempDir(), "raw.db"))
	require.NoError(t, err)
	defer db.Close()

	v, dirty, err := db.MigrateVersion()
	require.NoError(t, err)
	assert.Zero(t, v)
	assert.False(t, dirty)
}

func TestSessionRoundTrip(t *testing.T) {
	db := openTestDB(t)
	seedSession(t, db, "a", t0, 10)

	row, err := db.Session("a")
	require.NoError(t, err)
	assert.Equal(t, "synthetic", row.Platform)
	assert.True(t, row.StartedAt.Equal(t0))
	assert.Nil(t, row.StoppedAt)
	assert.Contains(t, row.TuningJSON, `"MaxPoints":50000`)

	require.NoError(t, db.FinishSession(session.Summary{
		ID: "a", StoppedAt: t0.Add(time.Minute), Frames: 10, Emitted: 8,
		DroppedBusy: 3, AcquisitionFailures: 1, Err: errors.New("source stop"),
	}))
	row, err = db.Session("a")
	require.NoError(t, err)
	require.NotNil(t, row.StoppedAt)
	assert.True(t, row.StoppedAt.Equal(t0.Add(time.Minute)))
	assert.EqualValues(t, 10, row.Frames)
	assert.EqualValues(t, 8, row.Emitted)
	assert.EqualValues(t, 3, row.DroppedBusy)
	assert.EqualValues(t, 1, row.AcquisitionErrors)
	assert.Equal(t, "source stop", row.StopError)
}

func TestSessionNotFound(t *testing.T) {
	db := openTestDB(t)

	_, err := db.Session("missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = db.LatestSessionID()
	assert.ErrorIs(t, err, ErrSessionNotFound)
	err = db.FinishSession(session.Summary{ID: "missing", StoppedAt: t0})
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionsNewestFirst(t *testing.T) {
	db := openTestDB(t)
	seedSession(t, db, "old", t0, 0)
	seedSession(t, db, "new", t0.Add(time.Hour), 0)
	seedSession(t, db, "mid", t0.Add(time.Minute), 0)

	rows, err := db.Sessions(0)
	require.NoError(t, err)
	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}
	assert.Equal(t, []string{"new", "mid", "old"}, ids)

	rows, err = db.Sessions(2)
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	latest, err := db.LatestSessionID()
	require.NoError(t, err)
	assert.Equal(t, "new", latest)
}

func TestFrameStats(t *testing.T) {
	db := openTestDB(t)
	seedSession(t, db, "a", t0, 10)
	seedSession(t, db, "b", t0.Add(time.Hour), 3)

	frames, err := db.FrameStats("a")
	require.NoError(t, err)
	require.Len(t, frames, 10)
	for i, f := range frames {
		assert.EqualValues(t, i+1, f.Seq)
	}
	assert.Equal(t, 3*time.Millisecond, frames[2].Duration)
	assert.True(t, frames[0].Tuned)
	assert.False(t, frames[1].Tuned)
	assert.Equal(t, 801, frames[0].Output)

	counts, err := db.OutcomeCounts("a")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"emitted": 8, "tracking": 2}, counts)

	// Frames cascade with their session.
	_, err = db.Exec(`DELETE FROM scan_sessions WHERE session_id = 'a'`)
	require.NoError(t, err)
	frames, err = db.FrameStats("a")
	require.NoError(t, err)
	assert.Empty(t, frames)
}

func TestRecorderFlushesOnClose(t *testing.T) {
	db := openTestDB(t)
	rec := NewRecorder(db, 0)

	rec.BeginSession(session.Info{ID: "r", Platform: "synthetic", StartedAt: t0, Tuning: tuning.Default()})
	for i := 1; i <= 20; i++ {
		rec.RecordFrame(session.FrameRecord{SessionID: "r", Seq: uint64(i), CapturedAt: t0, Outcome: session.OutcomeEmitted})
	}
	rec.EndSession(session.Summary{ID: "r", StoppedAt: t0.Add(time.Second), Frames: 20, Emitted: 20})
	rec.Close()

	st := rec.Stats()
	assert.EqualValues(t, 22, st.Written)
	assert.Zero(t, st.Dropped)
	assert.Zero(t, st.Failed)

	frames, err := db.FrameStats("r")
	require.NoError(t, err)
	assert.Len(t, frames, 20)
	row, err := db.Session("r")
	require.NoError(t, err)
	assert.EqualValues(t, 20, row.Emitted)

	// Writes after Close are dropped, not panics.
	rec.RecordFrame(session.FrameRecord{SessionID: "r", Seq: 99})
	rec.Close()
	assert.EqualValues(t, 1, rec.Stats().Dropped)
}

func TestRecorderCountsFailedWrites(t *testing.T) {
	db := openTestDB(t)
	rec := NewRecorder(db, 4)

	// No session row: the foreign key rejects the frame.
	rec.RecordFrame(session.FrameRecord{SessionID: "orphan", Seq: 1, CapturedAt: t0, Outcome: session.OutcomeEmitted})
	rec.Close()

	assert.EqualValues(t, 1, rec.Stats().Failed)
	assert.Zero(t, rec.Stats().Written)
}

func TestRecorderWithSyntheticSession(t *testing.T) {
	db := openTestDB(t)
	rec := NewRecorder(db, 0)

	p := pipeline.New(pipeline.Config{})
	cfg := session.DefaultSyntheticConfig()
	cfg.Width, cfg.Height = 128, 96
	cfg.Fx, cfg.Fy = 106, 106
	cfg.FPS = 200
	src := session.NewSynthetic(cfg, nil)
	s := session.New(session.Config{Source: src, Pipeline: p, Recorder: rec})

	info, err := s.Start(t.Context())
	require.NoError(t, err)
	require.Eventually(t, func() bool { return s.Pipeline().Stats().Processed >= 3 }, 5*time.Second, 10*time.Millisecond)
	sum, err := s.Stop()
	require.NoError(t, err)
	rec.Close()

	row, err := db.Session(info.ID)
	require.NoError(t, err)
	require.NotNil(t, row.StoppedAt)
	assert.EqualValues(t, sum.Emitted, row.Emitted)

	frames, err := db.FrameStats(info.ID)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(frames), 3)
}

func TestSessionsHandler(t *testing.T) {
	db := openTestDB(t)
	seedSession(t, db, "a", t0, 2)

	w := httptest.NewRecorder()
	db.handleSessions(w, httptest.NewRequest(http.MethodGet, "/debug/sessions?limit=5", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var rows []SessionRow
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "a", rows[0].ID)

	w = httptest.NewRecorder()
	db.handleSessions(w, httptest.NewRequest(http.MethodGet, "/debug/sessions?limit=x", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestFramesChartHandler(t *testing.T) {
	db := openTestDB(t)

	w := httptest.NewRecorder()
	db.handleFramesChart(w, httptest.NewRequest(http.MethodGet, "/debug/frames", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	seedSession(t, db, "chart-session", t0, 6)
	w = httptest.NewRecorder()
	db.handleFramesChart(w, httptest.NewRequest(http.MethodGet, "/debug/frames", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/html; charset=utf-8", w.Header().Get("Content-Type"))
	body := w.Body.String()
	assert.Contains(t, body, "Frame timing")
	assert.Contains(t, body, "chart-session")
	assert.Contains(t, body, echartsAssetsHost)
}

func TestBackupHandler(t *testing.T) {
	db := openTestDB(t)
	seedSession(t, db, "a", t0, 3)

	w := httptest.NewRecorder()
	db.handleBackup(w, httptest.NewRequest(http.MethodGet, "/debug/backup", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "gzip", w.Header().Get("Content-Encoding"))
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Disposition"), "attachment; filename=footscan-backup-"))

	gz, err := gzip.NewReader(w.Body)
	require.NoError(t, err)
	raw, err := io.ReadAll(gz)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "restored.db")
	require.NoError(t, os.WriteFile(path, raw, 0o644))
	restored, err := Open(path)
	require.NoError(t, err)
	defer restored.Close()
	frames, err := restored.FrameStats("a")
	require.NoError(t, err)
	assert.Len(t, frames, 3)
}

func TestRenderReport(t *testing.T) {
	db := openTestDB(t)
	dir := t.TempDir()

	_, err := db.RenderReport("", dir)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	seedSession(t, db, "empty", t0, 0)
	_, err = db.RenderReport("empty", dir)
	assert.Error(t, err)

	seedSession(t, db, "rep", t0.Add(time.Hour), 12)
	files, err := db.RenderReport("", filepath.Join(dir, "out"))
	require.NoError(t, err)
	for _, f := range []string{files.Latency, files.Points} {
		info, err := os.Stat(f)
		require.NoError(t, err, f)
		assert.Positive(t, info.Size())
		assert.Contains(t, filepath.Base(f), "rep_")
	}
}
