// Package ground tracks the plane the scanned object rests on and removes
// points that belong to it.
//
// The plane comes from the device's plane detection. The most recent
// tracked, horizontal, upward-facing plane wins; there is no smoothing
// across detections. Until a plane is seen, classification reports Unknown
// and ground removal passes every point through.
package ground

import (
	"math"
	"sync/atomic"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/footscan/internal/scan/geometry"
)

// Class is the result of classifying one point against the ground plane.
type Class int

const (
	Unknown Class = iota
	Ground
	NonGround
)

func (c Class) String() string {
	switch c {
	case Ground:
		return "ground"
	case NonGround:
		return "non_ground"
	default:
		return "unknown"
	}
}

// Alignment is the orientation reported by plane detection.
type Alignment int

const (
	AlignmentHorizontal Alignment = iota
	AlignmentVertical
)

// Up is the world up axis of gravity-aligned AR tracking frames.
var Up = r3.Vec{X: 0, Y: 1, Z: 0}

// Plane is a point on the ground and its unit normal.
type Plane struct {
	Origin r3.Vec
	Normal r3.Vec
}

// Distance returns the signed distance of p above the plane.
func (pl *Plane) Distance(p geometry.WorldPoint) float64 {
	return r3.Dot(pl.Normal, r3.Sub(vec(p), pl.Origin))
}

// Classify labels p as ground when its signed distance is at most eps.
// Points below the plane are ground too.
func (pl *Plane) Classify(p geometry.WorldPoint, eps float64) Class {
	if pl == nil {
		return Unknown
	}
	if pl.Distance(p) <= eps {
		return Ground
	}
	return NonGround
}

// Observation is one plane reported by the detection collaborator.
type Observation struct {
	Origin    r3.Vec
	Normal    r3.Vec
	Alignment Alignment
	Tracked   bool
}

// usable reports whether an observation can replace the ground plane.
func (o Observation) usable() bool {
	if !o.Tracked || o.Alignment != AlignmentHorizontal {
		return false
	}
	n := r3.Norm(o.Normal)
	if n == 0 || math.IsNaN(n) {
		return false
	}
	return r3.Dot(o.Normal, Up) > 0
}

// Model holds the current ground plane as an atomically swapped snapshot.
// One goroutine (the acquisition loop) writes; the frame worker reads the
// whole plane once per frame via Snapshot.
type Model struct {
	plane   atomic.Pointer[Plane]
	updates atomic.Uint64
}

// NewModel returns a model with no plane observed yet.
func NewModel() *Model {
	return &Model{}
}

// Snapshot returns the current plane, or nil if none has been observed.
// The returned plane must not be modified.
func (m *Model) Snapshot() *Plane {
	return m.plane.Load()
}

// Set replaces the plane. The normal is normalized before it is stored.
func (m *Model) Set(origin, normal r3.Vec) {
	m.plane.Store(&Plane{Origin: origin, Normal: r3.Unit(normal)})
	m.updates.Add(1)
}

// Observe applies a batch of plane detections. The last usable observation
// in the batch wins. It reports whether the plane changed.
func (m *Model) Observe(obs []Observation) bool {
	var chosen *Observation
	for i := range obs {
		if obs[i].usable() {
			chosen = &obs[i]
		}
	}
	if chosen == nil {
		return false
	}
	m.Set(chosen.Origin, chosen.Normal)
	return true
}

// Classify labels p against the current plane.
func (m *Model) Classify(p geometry.WorldPoint, eps float64) Class {
	return m.Snapshot().Classify(p, eps)
}

// Updates returns how many times the plane has been replaced.
func (m *Model) Updates() uint64 {
	return m.updates.Load()
}

// Reset forgets the plane, e.g. when a new scan session starts.
func (m *Model) Reset() {
	m.plane.Store(nil)
}

func vec(p geometry.WorldPoint) r3.Vec {
	return r3.Vec{X: p.X, Y: p.Y, Z: p.Z}
}
