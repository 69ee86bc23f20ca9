package geometry

// DepthFromMillimeters converts a 16-bit millimeter depth map into a meter
// DepthImage. Zero stays zero ("no return"). Conversion happens once, at the
// acquisition boundary, so the core only ever sees meters.
func DepthFromMillimeters(width, height int, mm []uint16) *DepthImage {
	out := &DepthImage{
		Width:  width,
		Height: height,
		Meters: make([]float32, len(mm)),
	}
	for i, v := range mm {
		out.Meters[i] = float32(v) / 1000
	}
	return out
}

// UniformDepth builds a width×height image with every sample set to z.
func UniformDepth(width, height int, z float32) *DepthImage {
	out := &DepthImage{Width: width, Height: height, Meters: make([]float32, width*height)}
	for i := range out.Meters {
		out.Meters[i] = z
	}
	return out
}
