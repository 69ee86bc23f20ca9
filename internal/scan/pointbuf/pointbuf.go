// Package pointbuf encodes segmented clouds into the wire buffer handed to
// consumers: a little-endian int32 point count followed by count triples of
// little-endian float32 x, y, z (4 + 12*N bytes).
package pointbuf

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/footscan/internal/scan/geometry"
)

const (
	HeaderSize = 4
	PointSize  = 12
)

// ErrShortBuffer is returned by Decode when the buffer is smaller than its
// header claims.
var ErrShortBuffer = errors.New("pointbuf: buffer shorter than declared point count")

// Size returns the encoded size of n points.
func Size(n int) int {
	return HeaderSize + PointSize*n
}

// Encode appends the encoding of pts to dst[:0] and returns it. An empty
// cloud still yields the 4-byte header.
func Encode(dst []byte, pts []geometry.WorldPoint) []byte {
	need := Size(len(pts))
	if cap(dst) < need {
		dst = make([]byte, need)
	}
	dst = dst[:need]

	binary.LittleEndian.PutUint32(dst[0:4], uint32(int32(len(pts))))
	off := HeaderSize
	for _, p := range pts {
		binary.LittleEndian.PutUint32(dst[off:], math.Float32bits(float32(p.X)))
		binary.LittleEndian.PutUint32(dst[off+4:], math.Float32bits(float32(p.Y)))
		binary.LittleEndian.PutUint32(dst[off+8:], math.Float32bits(float32(p.Z)))
		off += PointSize
	}
	return dst
}

// Count reads the point count from an encoded buffer.
func Count(buf []byte) (int, error) {
	if len(buf) < HeaderSize {
		return 0, fmt.Errorf("pointbuf: %d-byte buffer has no header", len(buf))
	}
	n := int32(binary.LittleEndian.Uint32(buf))
	if n < 0 {
		return 0, fmt.Errorf("pointbuf: negative point count %d", n)
	}
	return int(n), nil
}

// Decode parses an encoded buffer. Trailing bytes beyond the declared
// count are ignored.
func Decode(buf []byte) ([]geometry.WorldPoint, error) {
	n, err := Count(buf)
	if err != nil {
		return nil, err
	}
	if len(buf) < Size(n) {
		return nil, fmt.Errorf("%w: have %d bytes, need %d", ErrShortBuffer, len(buf), Size(n))
	}
	pts := make([]geometry.WorldPoint, n)
	off := HeaderSize
	for i := range pts {
		pts[i] = geometry.WorldPoint{
			X: float64(math.Float32frombits(binary.LittleEndian.Uint32(buf[off:]))),
			Y: float64(math.Float32frombits(binary.LittleEndian.Uint32(buf[off+4:]))),
			Z: float64(math.Float32frombits(binary.LittleEndian.Uint32(buf[off+8:]))),
		}
		off += PointSize
	}
	return pts, nil
}
