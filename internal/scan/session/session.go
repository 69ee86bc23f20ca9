// Package session owns the scan lifecycle: it starts a depth Source, moves
// captures from the acquisition loop to a single pipeline worker, and fans
// results out to sinks.
package session

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/footscan/internal/scan/pipeline"
	"github.com/banshee-data/footscan/internal/scan/preview"
	"github.com/banshee-data/footscan/internal/scan/tuning"
	"github.com/banshee-data/footscan/internal/timeutil"
)

var (
	// ErrStartFailed wraps the source error when a scan cannot start. The
	// session does not retry.
	ErrStartFailed = errors.New("scan start failed")
	// ErrAlreadyRunning is returned by Start while a scan is active.
	ErrAlreadyRunning = errors.New("scan already running")
)

// PointSink receives encoded clouds in capture order.
type PointSink interface {
	PublishPoints(seq uint64, buf []byte)
}

// PreviewSink receives throttled JPEG preview frames.
type PreviewSink interface {
	PublishPreview(seq uint64, jpeg []byte)
}

// Recorder persists per-session and per-frame statistics.
type Recorder interface {
	BeginSession(info Info)
	RecordFrame(rec FrameRecord)
	EndSession(sum Summary)
}

// Info describes a started session.
type Info struct {
	ID        string
	Platform  string
	StartedAt time.Time
	Tuning    tuning.State
}

// Outcome classifies what happened to one capture.
type Outcome string

const (
	OutcomeEmitted   Outcome = "emitted"
	OutcomeMalformed Outcome = "malformed"
	OutcomeTracking  Outcome = "tracking"
	OutcomeRaw       Outcome = "raw"
)

// FrameRecord is the per-frame statistics row handed to the Recorder.
type FrameRecord struct {
	SessionID  string
	Seq        uint64
	CapturedAt time.Time
	Outcome    Outcome
	InRange    int
	Output     int
	Step       int
	NextStride int
	Duration   time.Duration
	Tuned      bool
}

// Summary closes a session record.
type Summary struct {
	ID                  string
	StoppedAt           time.Time
	Frames              uint64
	Emitted             uint64
	DroppedBusy         uint64
	AcquisitionFailures uint64
	Err                 error
}

// Config wires a Session.
type Config struct {
	Source   Source
	Pipeline *pipeline.Pipeline
	Clock    timeutil.Clock
	Points   PointSink   // optional
	Preview  PreviewSink // optional
	Recorder Recorder    // optional

	// PreviewMaxWidth bounds preview JPEG width; zero uses the preview
	// package default.
	PreviewMaxWidth int
}

// Session runs at most one scan at a time.
type Session struct {
	cfg Config

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	info    Info
	w       *worker

	frames      atomic.Uint64
	emitted     atomic.Uint64
	acqFailures atomic.Uint64
}

// New returns an idle Session.
func New(cfg Config) *Session {
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	if cfg.Pipeline == nil {
		cfg.Pipeline = pipeline.New(pipeline.Config{Clock: cfg.Clock})
	}
	if cfg.PreviewMaxWidth == 0 {
		cfg.PreviewMaxWidth = preview.DefaultMaxWidth
	}
	return &Session{cfg: cfg}
}

// Pipeline returns the pipeline the session drives.
func (s *Session) Pipeline() *pipeline.Pipeline { return s.cfg.Pipeline }

// Platform names the configured source platform.
func (s *Session) Platform() string { return s.cfg.Source.Platform() }

// Running reports whether a scan is active.
func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Start begins a scan. A source that fails to start is reported once as
// ErrStartFailed; the caller decides whether to try again.
func (s *Session) Start(ctx context.Context) (Info, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return s.info, ErrAlreadyRunning
	}

	runCtx, cancel := context.WithCancel(context.Background())
	if err := s.cfg.Source.Start(ctx); err != nil {
		cancel()
		opsf("start %s: %v", s.cfg.Source.Platform(), err)
		return Info{}, fmt.Errorf("%w: %w", ErrStartFailed, err)
	}

	s.cfg.Pipeline.Reset()
	s.frames.Store(0)
	s.emitted.Store(0)
	s.acqFailures.Store(0)

	s.info = Info{
		ID:        uuid.NewString(),
		Platform:  s.cfg.Source.Platform(),
		StartedAt: s.cfg.Clock.Now(),
		Tuning:    s.cfg.Pipeline.Tuning().Load(),
	}
	if s.cfg.Recorder != nil {
		s.cfg.Recorder.BeginSession(s.info)
	}

	s.w = newWorker(s.handle)
	s.cancel = cancel
	s.running = true
	s.wg.Add(2)
	go s.w.run(runCtx, &s.wg)
	go s.acquire(runCtx)

	diagf("session %s started on %s", s.info.ID, s.info.Platform)
	return s.info, nil
}

// Stop ends the active scan. It waits for the in-flight frame to finish,
// releases every outstanding capture, then stops the source. Stopping an
// idle session is a no-op.
func (s *Session) Stop() (Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return Summary{}, nil
	}

	s.cancel()
	s.wg.Wait()
	err := s.cfg.Source.Stop()
	if err != nil {
		opsf("stop %s: %v", s.info.Platform, err)
	}
	s.running = false

	sum := Summary{
		ID:                  s.info.ID,
		StoppedAt:           s.cfg.Clock.Now(),
		Frames:              s.frames.Load(),
		Emitted:             s.emitted.Load(),
		DroppedBusy:         s.w.dropped.Load(),
		AcquisitionFailures: s.acqFailures.Load(),
		Err:                 err,
	}
	if s.cfg.Recorder != nil {
		s.cfg.Recorder.EndSession(sum)
	}
	diagf("session %s stopped: frames=%d emitted=%d busy_drops=%d acq_failures=%d",
		sum.ID, sum.Frames, sum.Emitted, sum.DroppedBusy, sum.AcquisitionFailures)
	return sum, err
}

// acquire pulls captures from the source, applies plane detections to the
// ground model and offers each capture to the worker.
func (s *Session) acquire(ctx context.Context) {
	defer s.wg.Done()
	model := s.cfg.Pipeline.Ground()
	for {
		c, err := s.cfg.Source.Next(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, ErrSourceClosed) {
				return
			}
			s.acqFailures.Add(1)
			opsf("acquire: %v", err)
			continue
		}
		if c == nil {
			continue
		}
		if len(c.Planes) > 0 && model.Observe(c.Planes) {
			tracef("ground plane updated (%d updates)", model.Updates())
		}
		if c.Frame == nil && c.RawCloud == nil {
			c.release()
			s.acqFailures.Add(1)
			continue
		}
		if !s.w.submit(ctx, c) {
			tracef("worker busy, dropped capture")
		}
	}
}

// handle runs on the worker goroutine. The capture is released by the
// worker after handle returns.
func (s *Session) handle(c *Capture) {
	s.frames.Add(1)
	p := s.cfg.Pipeline

	if c.Frame == nil {
		res := p.ProcessRawCloud(s.frames.Load(), c.RawCloud, p.Tuning().Load().MaxPoints)
		s.emit(res)
		s.record(FrameRecord{Seq: res.Seq, CapturedAt: s.cfg.Clock.Now(), Outcome: OutcomeRaw}, res)
		if res.PreviewDue && c.Preview != nil {
			s.sendPreview(res.Seq, c.Preview)
		}
		return
	}

	res, err := p.Process(c.Frame)
	rec := FrameRecord{Seq: c.Frame.Seq, CapturedAt: c.Frame.CapturedAt}
	switch {
	case errors.Is(err, pipeline.ErrTrackingDegraded):
		rec.Outcome = OutcomeTracking
		s.record(rec, nil)
		return
	case err != nil:
		rec.Outcome = OutcomeMalformed
		s.record(rec, nil)
		return
	}

	s.emit(res)
	rec.Outcome = OutcomeEmitted
	s.record(rec, res)

	if res.PreviewDue {
		var img image.Image = c.Preview
		if img == nil {
			st := p.Tuning().Load()
			img = preview.DepthImage(c.Frame.Depth, st.MinDepthM, st.MaxDepthM)
		}
		s.sendPreview(res.Seq, img)
	}
}

func (s *Session) emit(res *pipeline.Result) {
	s.emitted.Add(1)
	if s.cfg.Points != nil {
		s.cfg.Points.PublishPoints(res.Seq, res.Buffer)
	}
}

func (s *Session) sendPreview(seq uint64, img image.Image) {
	if s.cfg.Preview == nil {
		return
	}
	buf, err := preview.EncodeJPEG(img, s.cfg.PreviewMaxWidth)
	if err != nil {
		opsf("preview %d: %v", seq, err)
		return
	}
	s.cfg.Preview.PublishPreview(seq, buf)
}

func (s *Session) record(rec FrameRecord, res *pipeline.Result) {
	if s.cfg.Recorder == nil {
		return
	}
	rec.SessionID = s.info.ID
	if res != nil {
		rec.InRange = res.InRange
		rec.Output = res.Output
		rec.Step = res.Step
		rec.NextStride = res.NextStride
		rec.Duration = res.Duration
		rec.Tuned = res.Tuned
	}
	s.cfg.Recorder.RecordFrame(rec)
}
