package ground

import "github.com/banshee-data/footscan/internal/scan/geometry"

// PlaneFilter removes ground returns from a frame's candidate points.
// Statistics accumulate across frames until ResetStats.
type PlaneFilter struct {
	pointsProcessed int64
	pointsKept      int64
	pointsGround    int64
	framesSkipped   int64
}

// NewPlaneFilter constructs an empty filter.
func NewPlaneFilter() *PlaneFilter {
	return &PlaneFilter{}
}

// Filter compacts pts and depths in place, keeping only non-ground points.
// The two slices are kept index-aligned. With a nil plane the input is
// returned unchanged (fail open).
func (f *PlaneFilter) Filter(plane *Plane, eps float64, pts []geometry.WorldPoint, depths []float64) ([]geometry.WorldPoint, []float64) {
	if plane == nil {
		f.framesSkipped++
		return pts, depths
	}

	writeIdx := 0
	for readIdx := range pts {
		f.pointsProcessed++
		if plane.Classify(pts[readIdx], eps) == Ground {
			f.pointsGround++
			continue
		}
		f.pointsKept++
		pts[writeIdx] = pts[readIdx]
		if depths != nil {
			depths[writeIdx] = depths[readIdx]
		}
		writeIdx++
	}

	if depths != nil {
		depths = depths[:writeIdx]
	}
	return pts[:writeIdx], depths
}

// Stats returns accumulated counters.
func (f *PlaneFilter) Stats() (processed, kept, ground, skippedFrames int64) {
	return f.pointsProcessed, f.pointsKept, f.pointsGround, f.framesSkipped
}

// ResetStats clears accumulated statistics counters.
func (f *PlaneFilter) ResetStats() {
	*f = PlaneFilter{}
}
