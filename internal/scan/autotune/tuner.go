// Package autotune picks segmentation thresholds from how far the scanned
// object sits from the camera.
package autotune

import (
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/footscan/internal/scan/tuning"
)

// Interval is the minimum spacing between two auto-tune runs.
const Interval = 500 * time.Millisecond

// Band is one row of the distance-banded threshold table.
type Band struct {
	Name         string
	UpToM        float64 // inclusive upper bound on the median depth
	MinDepthM    float64
	MaxDepthM    float64
	ClusterCellM float64
	GroundEpsM   float64
}

// Bands is the threshold table, ordered by distance. The last row is the
// fallback for anything farther.
var Bands = []Band{
	{Name: "near", UpToM: 0.25, MinDepthM: 0.03, MaxDepthM: 0.50, ClusterCellM: 0.007, GroundEpsM: 0.008},
	{Name: "mid", UpToM: 0.35, MinDepthM: 0.025, MaxDepthM: 0.55, ClusterCellM: 0.009, GroundEpsM: 0.007},
	{Name: "far", MinDepthM: 0.02, MaxDepthM: 0.60, ClusterCellM: 0.012, GroundEpsM: 0.006},
}

// BandFor returns the band a median depth falls into.
func BandFor(median float64) Band {
	for _, b := range Bands[:len(Bands)-1] {
		if median <= b.UpToM {
			return b
		}
	}
	return Bands[len(Bands)-1]
}

// Apply writes the band's thresholds into st. Other fields are untouched.
func (b Band) Apply(st *tuning.State) {
	st.MinDepthM = b.MinDepthM
	st.MaxDepthM = b.MaxDepthM
	st.ClusterCellM = b.ClusterCellM
	st.GroundEpsM = b.GroundEpsM
}

// Median returns the 0.5 empirical quantile of xs. xs is not modified;
// scratch is reused for the sorted copy when large enough. ok is false for
// empty input.
func Median(xs, scratch []float64) (m float64, sorted []float64, ok bool) {
	if len(xs) == 0 {
		return 0, scratch, false
	}
	sorted = append(scratch[:0], xs...)
	sort.Float64s(sorted)
	return stat.Quantile(0.5, stat.Empirical, sorted, nil), sorted, true
}

// Tuner rate-limits auto-tune runs. It is safe for concurrent use, though
// the pipeline calls it from a single worker.
type Tuner struct {
	mu      sync.Mutex
	last    time.Time
	ran     bool
	scratch []float64
	runs    uint64
	median  float64
}

// NewTuner returns a Tuner that will run on its first call.
func NewTuner() *Tuner {
	return &Tuner{}
}

// Maybe runs the auto-tuner if at least Interval has elapsed since the
// previous run (the first call always runs). depths are the camera-space
// depths of the frame's accepted, non-ground points. Empty depths leave the
// cadence untouched and report no change.
func (t *Tuner) Maybe(now time.Time, depths []float64) (Band, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.ran && now.Sub(t.last) < Interval {
		return Band{}, false
	}
	m, sorted, ok := Median(depths, t.scratch)
	t.scratch = sorted
	if !ok {
		return Band{}, false
	}
	t.ran = true
	t.last = now
	t.runs++
	t.median = m
	return BandFor(m), true
}

// Stats reports how many times the tuner has run and the last median.
func (t *Tuner) Stats() (runs uint64, lastMedian float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.runs, t.median
}

// Reset forgets the last run so the next call runs immediately.
func (t *Tuner) Reset() {
	t.mu.Lock()
	t.ran = false
	t.mu.Unlock()
}
