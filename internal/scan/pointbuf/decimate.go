package pointbuf

import "github.com/banshee-data/footscan/internal/scan/geometry"

// DecimationStride returns the integer stride that brings n points within
// maxPoints. maxPoints <= 0 disables decimation.
func DecimationStride(n, maxPoints int) int {
	if maxPoints <= 0 || n <= maxPoints {
		return 1
	}
	return (n + maxPoints - 1) / maxPoints
}

// Decimate keeps every stride-th point of pts, compacting in place, so at
// most maxPoints remain.
func Decimate(pts []geometry.WorldPoint, maxPoints int) []geometry.WorldPoint {
	stride := DecimationStride(len(pts), maxPoints)
	if stride == 1 {
		return pts
	}
	w := 0
	for r := 0; r < len(pts); r += stride {
		pts[w] = pts[r]
		w++
	}
	return pts[:w]
}

// FromXYZC converts a device feature-point buffer laid out as repeated
// (x, y, z, confidence) float32 quadruples. Confidence is dropped; a
// trailing partial quadruple is ignored.
func FromXYZC(raw []float32, dst []geometry.WorldPoint) []geometry.WorldPoint {
	dst = dst[:0]
	for i := 0; i+4 <= len(raw); i += 4 {
		dst = append(dst, geometry.WorldPoint{
			X: float64(raw[i]),
			Y: float64(raw[i+1]),
			Z: float64(raw[i+2]),
		})
	}
	return dst
}
