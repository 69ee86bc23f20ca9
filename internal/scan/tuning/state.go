// Package tuning holds the mutable segmentation parameters shared by the
// host configuration path, the quality controller and the auto-tuner.
//
// Readers take one snapshot per frame with Store.Load; writers replace the
// whole snapshot, so a frame never observes a half-applied update.
package tuning

import (
	"sync"
	"sync/atomic"
)

// State is one immutable tuning snapshot.
type State struct {
	MinDepthM    float64
	MaxDepthM    float64
	ClusterCellM float64
	GroundEpsM   float64
	SampleStride int
	TargetFPS    float64
	MaxPoints    int

	RemoveGround       bool
	ClusterFoot        bool
	TrackingOnlyNormal bool
	AutoTune           bool

	// Version increments on every Store.Update.
	Version uint64
}

// Default returns the starting tuning values.
func Default() State {
	return State{
		MinDepthM:    0.02,
		MaxDepthM:    0.60,
		ClusterCellM: 0.012,
		GroundEpsM:   0.006,
		SampleStride: 4,
		TargetFPS:    15,
		MaxPoints:    50000,

		RemoveGround:       true,
		ClusterFoot:        true,
		TrackingOnlyNormal: false,
		AutoTune:           true,
	}
}

// Store publishes tuning snapshots. Loads are lock-free; updates are
// serialised by a writer mutex and swap in a fresh copy.
type Store struct {
	mu  sync.Mutex
	cur atomic.Pointer[State]
}

// NewStore returns a Store seeded with initial.
func NewStore(initial State) *Store {
	s := &Store{}
	st := initial
	s.cur.Store(&st)
	return s
}

// Load returns the current snapshot by value.
func (s *Store) Load() State {
	return *s.cur.Load()
}

// Update applies fn to a copy of the current snapshot, bumps Version and
// publishes the result, which is also returned.
func (s *Store) Update(fn func(*State)) State {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := *s.cur.Load()
	fn(&next)
	next.Version = s.cur.Load().Version + 1
	s.cur.Store(&next)
	return next
}

// Replace publishes st wholesale, keeping the version sequence monotonic.
func (s *Store) Replace(st State) State {
	return s.Update(func(cur *State) {
		v := cur.Version
		*cur = st
		cur.Version = v
	})
}
