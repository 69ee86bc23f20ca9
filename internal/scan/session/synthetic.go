package session

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/footscan/internal/scan/geometry"
	"github.com/banshee-data/footscan/internal/scan/ground"
	"github.com/banshee-data/footscan/internal/timeutil"
)

// SyntheticConfig shapes the scene rendered by Synthetic.
type SyntheticConfig struct {
	Width, Height int
	Fx, Fy        float64
	FPS           float64
	HeightM       float64 // camera height above the floor
	NoiseM        float64 // per-sample depth noise (std dev)
	Specks        int     // isolated floating returns per frame
	Seed          uint64
	Tracking      geometry.TrackingStatus
	// FailStart makes Start fail, as a device without depth permission would.
	FailStart bool
	// FailConfigure makes the capability probe report no depth support.
	FailConfigure bool
}

// DefaultSyntheticConfig resembles a phone LiDAR depth map held 30cm over
// a foot.
func DefaultSyntheticConfig() SyntheticConfig {
	return SyntheticConfig{
		Width: 256, Height: 192,
		Fx: 212, Fy: 212,
		FPS:     15,
		HeightM: 0.30,
		NoiseM:  0.0005,
		Specks:  12,
		Seed:    1,
	}
}

var (
	errSyntheticStart     = errors.New("synthetic: depth permission denied")
	errSyntheticConfigure = errors.New("synthetic: depth not supported")
)

// Synthetic renders a downward-looking camera over a flat floor (world
// y=0, +Y up) with a half-ellipsoid "foot" and a few stray returns. It
// reports the floor as a tracked horizontal plane on its first capture.
type Synthetic struct {
	cfg   SyntheticConfig
	clock timeutil.Clock

	mu      sync.Mutex
	ticker  timeutil.Ticker
	rng     *rand.Rand
	seq     uint64
	started bool

	outstanding atomic.Int64
	released    atomic.Uint64
}

// NewSynthetic returns a Synthetic source paced by clock.
func NewSynthetic(cfg SyntheticConfig, clock timeutil.Clock) *Synthetic {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Synthetic{cfg: cfg, clock: clock}
}

func (s *Synthetic) Platform() string { return "synthetic" }

func (s *Synthetic) Configure(context.Context) error {
	if s.cfg.FailConfigure {
		return errSyntheticConfigure
	}
	return nil
}

func (s *Synthetic) Start(ctx context.Context) error {
	if err := s.Configure(ctx); err != nil {
		return err
	}
	if s.cfg.FailStart {
		return errSyntheticStart
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	fps := s.cfg.FPS
	if fps <= 0 {
		fps = 15
	}
	s.ticker = s.clock.NewTicker(time.Duration(float64(time.Second) / fps))
	s.rng = rand.New(rand.NewPCG(s.cfg.Seed, s.cfg.Seed^0x9e3779b97f4a7c15))
	s.seq = 0
	s.started = true
	return nil
}

func (s *Synthetic) Next(ctx context.Context) (*Capture, error) {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil, ErrSourceClosed
	}
	tick := s.ticker.C()
	s.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-tick:
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return nil, ErrSourceClosed
	}
	s.seq++
	c := &Capture{Frame: s.render()}
	if s.seq == 1 {
		c.Planes = []ground.Observation{{
			Origin:    r3.Vec{},
			Normal:    ground.Up,
			Alignment: ground.AlignmentHorizontal,
			Tracked:   true,
		}}
	}
	s.outstanding.Add(1)
	c.Release = func() {
		s.outstanding.Add(-1)
		s.released.Add(1)
	}
	return c, nil
}

func (s *Synthetic) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ticker != nil {
		s.ticker.Stop()
	}
	s.started = false
	return nil
}

// Outstanding is the number of captures handed out but not yet released.
func (s *Synthetic) Outstanding() int64 { return s.outstanding.Load() }

// Released is the total number of released captures.
func (s *Synthetic) Released() uint64 { return s.released.Load() }

// SyntheticPose is the camera-to-world transform of the synthetic camera:
// optical axis pointing down (-Y), image rows along +Z, at heightM.
func SyntheticPose(heightM float64) [16]float64 {
	return [16]float64{
		1, 0, 0, 0,
		0, 0, -1, heightM,
		0, 1, 0, 0,
		0, 0, 0, 1,
	}
}

// footHeight is the height of the half-ellipsoid foot at world (x, z).
func footHeight(x, z float64) float64 {
	const a, b, h = 0.045, 0.11, 0.06
	r := (x*x)/(a*a) + (z*z)/(b*b)
	if r >= 1 {
		return 0
	}
	return h * math.Sqrt(1-r)
}

// render must be called with s.mu held.
func (s *Synthetic) render() *geometry.Frame {
	w, h := s.cfg.Width, s.cfg.Height
	in := geometry.Intrinsics{Fx: s.cfg.Fx, Fy: s.cfg.Fy, Cx: float64(w) / 2, Cy: float64(h) / 2}
	img := &geometry.DepthImage{Width: w, Height: h, Meters: make([]float32, w*h)}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			// Ray through the pixel at unit depth. The floor and foot are
			// heightfields in world y, and world y = height - depth, so
			// solve depth by a short fixed-point iteration.
			rx := (float64(x) - in.Cx) / in.Fx
			rz := (float64(y) - in.Cy) / in.Fy
			d := s.cfg.HeightM
			for i := 0; i < 4; i++ {
				d = s.cfg.HeightM - footHeight(rx*d, rz*d)
			}
			d += s.rng.NormFloat64() * s.cfg.NoiseM
			img.Meters[y*w+x] = float32(d)
		}
	}
	for i := 0; i < s.cfg.Specks; i++ {
		img.Meters[s.rng.IntN(w*h)] = float32(0.05 + 0.05*s.rng.Float64())
	}

	return &geometry.Frame{
		Seq:        s.seq,
		CapturedAt: s.clock.Now(),
		Camera: geometry.CameraFrame{
			Intrinsics: in,
			Pose:       SyntheticPose(s.cfg.HeightM),
			Tracking:   s.cfg.Tracking,
		},
		Depth: img,
	}
}
