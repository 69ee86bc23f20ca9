package geometry

import "math"

// MaxSampleStride is the coarsest sampling stride the quality controller
// will choose on its own.
const MaxSampleStride = 16

// Projector unprojects depth samples of one frame into world space.
// It is a value type built once per frame from that frame's camera and
// the tuning snapshot's depth range; it holds no state between frames.
type Projector struct {
	in       Intrinsics
	pose     [16]float64
	minDepth float64
	maxDepth float64
}

// NewProjector binds a camera snapshot to a depth acceptance window.
func NewProjector(cam CameraFrame, minDepthM, maxDepthM float64) Projector {
	return Projector{
		in:       cam.Intrinsics,
		pose:     cam.Pose,
		minDepth: minDepthM,
		maxDepth: maxDepthM,
	}
}

// InRange reports whether z is a usable depth: finite, positive and within
// [minDepth, maxDepth]. Both window edges are inclusive.
func (p Projector) InRange(z float64) bool {
	if math.IsNaN(z) || math.IsInf(z, 0) || z <= 0 {
		return false
	}
	return z >= p.minDepth && z <= p.maxDepth
}

// CameraPoint unprojects pixel (x, y) at depth z into camera space.
func (p Projector) CameraPoint(x, y int, z float64) (xc, yc, zc float64) {
	xc = (float64(x) - p.in.Cx) * z / p.in.Fx
	yc = (float64(y) - p.in.Cy) * z / p.in.Fy
	zc = z
	return
}

// Project converts one depth sample to a world point. camZ is the
// camera-space depth of the sample (used by the auto-tuner). ok is false
// when the sample is rejected by the depth window.
func (p Projector) Project(x, y int, z float32) (pt WorldPoint, camZ float64, ok bool) {
	zf := float64(z)
	if !p.InRange(zf) {
		return WorldPoint{}, 0, false
	}
	xc, yc, zc := p.CameraPoint(x, y, zf)
	wx, wy, wz := ApplyPose(xc, yc, zc, p.pose)
	return WorldPoint{X: wx, Y: wy, Z: wz}, zc, true
}

// Sample walks the depth image every step pixels in both axes and appends
// the world points and their camera depths to dst and depths. The two
// returned slices stay index-aligned.
func (p Projector) Sample(img *DepthImage, step int, dst []WorldPoint, depths []float64) ([]WorldPoint, []float64) {
	if step < 1 {
		step = 1
	}
	for y := 0; y < img.Height; y += step {
		row := img.Meters[y*img.Width : (y+1)*img.Width]
		for x := 0; x < img.Width; x += step {
			pt, camZ, ok := p.Project(x, y, row[x])
			if !ok {
				continue
			}
			dst = append(dst, pt)
			depths = append(depths, camZ)
		}
	}
	return dst, depths
}

// SampledCount is the number of pixels visited at the given step.
func SampledCount(width, height, step int) int {
	if step < 1 {
		step = 1
	}
	return ceilDiv(width, step) * ceilDiv(height, step)
}

// EffectiveStep returns the sampling step for a frame: the controller's
// stride, escalated until the visited pixel count fits maxPoints. A
// non-positive maxPoints disables the budget.
func EffectiveStep(width, height, stride, maxPoints int) int {
	step := stride
	if step < 1 {
		step = 1
	}
	if maxPoints <= 0 {
		return step
	}
	for SampledCount(width, height, step) > maxPoints {
		step++
	}
	return step
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
