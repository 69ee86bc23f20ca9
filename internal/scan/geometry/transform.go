package geometry

import "math"

// IdentityPose is a 4x4 identity transform in row-major order.
var IdentityPose = [16]float64{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1}

// MatrixValidationTolerance bounds the allowed deviation of det(R) from 1.
const MatrixValidationTolerance = 0.01

// ApplyPose applies a 4x4 row-major transform T to point (x,y,z).
func ApplyPose(x, y, z float64, T [16]float64) (wx, wy, wz float64) {
	wx = T[0]*x + T[1]*y + T[2]*z + T[3]
	wy = T[4]*x + T[5]*y + T[6]*z + T[7]
	wz = T[8]*x + T[9]*y + T[10]*z + T[11]
	return
}

// IsValidTransformMatrix checks if a 4x4 matrix is a rigid transform:
// a proper rotation block (det ≈ 1), finite entries and a last row of
// [0 0 0 1].
func IsValidTransformMatrix(T [16]float64) bool {
	for _, v := range T {
		if !isFinite(v) {
			return false
		}
	}

	r00, r01, r02 := T[0], T[1], T[2]
	r10, r11, r12 := T[4], T[5], T[6]
	r20, r21, r22 := T[8], T[9], T[10]

	det := r00*(r11*r22-r12*r21) - r01*(r10*r22-r12*r20) + r02*(r10*r21-r11*r20)
	if math.Abs(det-1.0) > MatrixValidationTolerance {
		return false
	}

	if T[12] != 0 || T[13] != 0 || T[14] != 0 || math.Abs(T[15]-1.0) > 0.001 {
		return false
	}
	return true
}

// PoseFromColumnMajor converts a column-major 4x4 (simd_float4x4 and
// OpenGL layout, as delivered by ARKit and ARCore) into row-major order.
func PoseFromColumnMajor(m [16]float64) [16]float64 {
	var out [16]float64
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			out[r*4+c] = m[c*4+r]
		}
	}
	return out
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
