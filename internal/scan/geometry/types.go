// Package geometry owns the numeric core of the scanner: depth images,
// camera intrinsics, rigid poses and unprojection into world space.
//
// Coordinate convention: camera space has +X right, +Y down (image rows),
// +Z forward along the optical axis. World space is whatever frame the
// device tracking reports; ARKit and ARCore are both gravity aligned with
// +Y up.
package geometry

import "time"

// WorldPoint is a point in the stable world frame (meters).
type WorldPoint struct {
	X, Y, Z float64
}

// TrackingStatus reports how much the device trusts the camera pose.
type TrackingStatus int

const (
	TrackingNormal TrackingStatus = iota
	TrackingLimited
	TrackingNotAvailable
)

// String returns the lower-case name of the status.
func (s TrackingStatus) String() string {
	switch s {
	case TrackingNormal:
		return "normal"
	case TrackingLimited:
		return "limited"
	case TrackingNotAvailable:
		return "not_available"
	default:
		return "unknown"
	}
}

// Intrinsics are pinhole camera parameters in pixels, expressed at the
// resolution of the depth image.
type Intrinsics struct {
	Fx, Fy float64
	Cx, Cy float64
}

// Valid reports whether the focal lengths allow unprojection.
func (in Intrinsics) Valid() bool {
	return in.Fx != 0 && in.Fy != 0 && isFinite(in.Fx) && isFinite(in.Fy) &&
		isFinite(in.Cx) && isFinite(in.Cy)
}

// CameraFrame is the immutable camera snapshot for one depth frame.
type CameraFrame struct {
	Intrinsics Intrinsics
	// Pose is the camera-to-world rigid transform, row-major 4x4.
	Pose     [16]float64
	Tracking TrackingStatus
}

// DepthImage is a row-major depth map in meters. A zero or non-finite
// sample means "no return".
type DepthImage struct {
	Width, Height int
	Meters        []float32
}

// At returns the depth at column x, row y. Callers stay within bounds.
func (d *DepthImage) At(x, y int) float32 {
	return d.Meters[y*d.Width+x]
}

// Valid reports whether the image dimensions agree with its sample buffer.
func (d *DepthImage) Valid() bool {
	return d != nil && d.Width > 0 && d.Height > 0 && len(d.Meters) == d.Width*d.Height
}

// Frame is one unit of pipeline input: a depth image and its camera.
type Frame struct {
	Seq        uint64
	CapturedAt time.Time
	Camera     CameraFrame
	Depth      *DepthImage
}
