// Package pipeline runs one depth frame through projection, ground removal,
// auto-tuning, clustering and serialisation, then feeds the quality
// controller. It is driven by a single worker; see package session.
package pipeline

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/footscan/internal/scan/autotune"
	"github.com/banshee-data/footscan/internal/scan/geometry"
	"github.com/banshee-data/footscan/internal/scan/ground"
	"github.com/banshee-data/footscan/internal/scan/pointbuf"
	"github.com/banshee-data/footscan/internal/scan/preview"
	"github.com/banshee-data/footscan/internal/scan/quality"
	"github.com/banshee-data/footscan/internal/scan/tuning"
	"github.com/banshee-data/footscan/internal/scan/voxel"
	"github.com/banshee-data/footscan/internal/timeutil"
)

var (
	// ErrMalformedFrame marks a frame with missing or inconsistent depth,
	// intrinsics or pose. The frame is dropped.
	ErrMalformedFrame = errors.New("malformed frame")
	// ErrTrackingDegraded marks a frame skipped because tracking was not
	// normal while strict tracking is enabled.
	ErrTrackingDegraded = errors.New("tracking degraded")
)

// Result describes one processed frame.
type Result struct {
	Seq uint64
	// Buffer is the encoded cloud (see package pointbuf). It is freshly
	// allocated for each frame and owned by the caller.
	Buffer []byte

	Sampled     int // pixels visited
	InRange     int // points surviving the depth window
	AfterGround int // points surviving ground removal
	Output      int // points in Buffer

	Step          int // sampling step used for this frame
	NextStride    int // stride chosen for the next frame
	Duration      time.Duration
	PreviewDue    bool
	Tuned         bool
	Band          autotune.Band // valid when Tuned
	TuningVersion uint64
}

// Stats are cumulative pipeline counters.
type Stats struct {
	Processed        uint64
	DroppedMalformed uint64
	SkippedTracking  uint64
	RawClouds        uint64
	GroundSkipped    uint64 // frames processed with ground removal on but no plane
	AutoTuneRuns     uint64
}

// Config wires a Pipeline to its shared state.
type Config struct {
	Tuning *tuning.Store
	Ground *ground.Model
	Clock  timeutil.Clock
}

// Pipeline processes frames one at a time. Process and ProcessRawCloud
// serialise on an internal mutex, so frames are handled strictly in call
// order.
type Pipeline struct {
	tuning *tuning.Store
	ground *ground.Model
	clock  timeutil.Clock

	quality  *quality.Controller
	tuner    *autotune.Tuner
	throttle *preview.Throttle
	cluster  *voxel.Clusterer
	gfilter  *ground.PlaneFilter

	mu     sync.Mutex
	points []geometry.WorldPoint
	depths []float64

	processed        atomic.Uint64
	droppedMalformed atomic.Uint64
	skippedTracking  atomic.Uint64
	rawClouds        atomic.Uint64
	groundSkipped    atomic.Uint64
	autoTuneRuns     atomic.Uint64
}

// New returns a Pipeline. Nil fields in cfg get fresh defaults.
func New(cfg Config) *Pipeline {
	if cfg.Tuning == nil {
		cfg.Tuning = tuning.NewStore(tuning.Default())
	}
	if cfg.Ground == nil {
		cfg.Ground = ground.NewModel()
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	return &Pipeline{
		tuning:   cfg.Tuning,
		ground:   cfg.Ground,
		clock:    cfg.Clock,
		quality:  quality.NewController(cfg.Clock),
		tuner:    autotune.NewTuner(),
		throttle: preview.NewThrottle(),
		cluster:  voxel.NewClusterer(),
		gfilter:  ground.NewPlaneFilter(),
	}
}

// Tuning returns the store the pipeline reads and writes.
func (p *Pipeline) Tuning() *tuning.Store { return p.tuning }

// Ground returns the ground model the pipeline classifies against.
func (p *Pipeline) Ground() *ground.Model { return p.ground }

// Validate checks that a frame can be unprojected.
func Validate(f *geometry.Frame) error {
	if f == nil {
		return fmt.Errorf("%w: nil frame", ErrMalformedFrame)
	}
	if !f.Depth.Valid() {
		return fmt.Errorf("%w: depth image missing or size mismatch", ErrMalformedFrame)
	}
	if !f.Camera.Intrinsics.Valid() {
		return fmt.Errorf("%w: unusable intrinsics %+v", ErrMalformedFrame, f.Camera.Intrinsics)
	}
	if !geometry.IsValidTransformMatrix(f.Camera.Pose) {
		return fmt.Errorf("%w: pose is not a rigid transform", ErrMalformedFrame)
	}
	return nil
}

// Process runs the full per-frame sequence. A non-nil error means the
// frame produced no output; the error wraps ErrMalformedFrame or
// ErrTrackingDegraded. Errors are never fatal to the pipeline.
func (p *Pipeline) Process(f *geometry.Frame) (*Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	start := p.clock.Now()
	if err := Validate(f); err != nil {
		p.droppedMalformed.Add(1)
		opsf("drop frame: %v", err)
		return nil, err
	}

	st := p.tuning.Load()
	if st.TrackingOnlyNormal && f.Camera.Tracking != geometry.TrackingNormal {
		p.skippedTracking.Add(1)
		tracef("skip frame %d: tracking %s", f.Seq, f.Camera.Tracking)
		return nil, fmt.Errorf("%w: %s", ErrTrackingDegraded, f.Camera.Tracking)
	}

	res := &Result{Seq: f.Seq}

	// Project over the strided grid with the depth window applied inline.
	img := f.Depth
	res.Step = geometry.EffectiveStep(img.Width, img.Height, st.SampleStride, st.MaxPoints)
	res.Sampled = geometry.SampledCount(img.Width, img.Height, res.Step)
	proj := geometry.NewProjector(f.Camera, st.MinDepthM, st.MaxDepthM)
	p.points, p.depths = proj.Sample(img, res.Step, p.points[:0], p.depths[:0])
	res.InRange = len(p.points)

	// Ground removal against a single plane snapshot.
	pts, depths := p.points, p.depths
	if st.RemoveGround {
		plane := p.ground.Snapshot()
		if plane == nil {
			p.groundSkipped.Add(1)
		}
		pts, depths = p.gfilter.Filter(plane, st.GroundEpsM, pts, depths)
	}
	res.AfterGround = len(pts)

	if st.AutoTune {
		if band, ok := p.tuner.Maybe(start, depths); ok {
			res.Tuned, res.Band = true, band
			p.autoTuneRuns.Add(1)
			p.tuning.Update(band.Apply)
			diagf("frame %d auto-tune: band=%s min=%.3f max=%.3f cell=%.3f eps=%.3f",
				f.Seq, band.Name, band.MinDepthM, band.MaxDepthM, band.ClusterCellM, band.GroundEpsM)
		}
	}

	if st.ClusterFoot {
		pts = p.cluster.Largest(pts, st.ClusterCellM)
	}
	res.Output = len(pts)
	res.Buffer = pointbuf.Encode(nil, pts)

	res.NextStride = p.quality.Next(st.TargetFPS, st.SampleStride)
	after := p.tuning.Update(func(s *tuning.State) { s.SampleStride = res.NextStride })
	if res.NextStride != st.SampleStride {
		diagf("frame %d stride %d -> %d (dt=%v)", f.Seq, st.SampleStride, res.NextStride, p.quality.LastInterval())
	}
	res.TuningVersion = after.Version

	res.PreviewDue = p.throttle.Allow(start, st.TargetFPS)
	res.Duration = p.clock.Since(start)
	p.processed.Add(1)

	tracef("frame %d step=%d sampled=%d range=%d ground=%d out=%d took=%v",
		f.Seq, res.Step, res.Sampled, res.InRange, res.AfterGround, res.Output, res.Duration)
	return res, nil
}

// ProcessRawCloud serialises a cloud the device has already unprojected
// (feature points in world space), thinned by an integer stride to at
// most maxPoints. pts is compacted in place. No segmentation runs on this
// path.
func (p *Pipeline) ProcessRawCloud(seq uint64, pts []geometry.WorldPoint, maxPoints int) *Result {
	p.mu.Lock()
	defer p.mu.Unlock()

	start := p.clock.Now()
	res := &Result{Seq: seq, Sampled: len(pts), Step: pointbuf.DecimationStride(len(pts), maxPoints)}
	pts = pointbuf.Decimate(pts, maxPoints)
	res.InRange, res.AfterGround, res.Output = len(pts), len(pts), len(pts)
	res.Buffer = pointbuf.Encode(nil, pts)
	res.PreviewDue = p.throttle.Allow(start, p.tuning.Load().TargetFPS)
	res.Duration = p.clock.Since(start)
	p.rawClouds.Add(1)
	tracef("raw cloud %d: %d -> %d points (stride %d)", seq, res.Sampled, res.Output, res.Step)
	return res
}

// Stats returns a snapshot of the cumulative counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Processed:        p.processed.Load(),
		DroppedMalformed: p.droppedMalformed.Load(),
		SkippedTracking:  p.skippedTracking.Load(),
		RawClouds:        p.rawClouds.Load(),
		GroundSkipped:    p.groundSkipped.Load(),
		AutoTuneRuns:     p.autoTuneRuns.Load(),
	}
}

// Reset clears per-session controller state so the next frame starts
// fresh (first quality call primes, first auto-tune runs).
func (p *Pipeline) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.quality.Reset()
	p.tuner.Reset()
	p.throttle.Reset()
}
