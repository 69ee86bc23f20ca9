// Package voxel isolates the scanned object by keeping only the largest
// 26-connected group of occupied voxels.
package voxel

import (
	"math"

	"github.com/banshee-data/footscan/internal/scan/geometry"
)

// Key is the integer cell index of a point: floor(p / cellSize) per axis.
type Key struct {
	X, Y, Z int32
}

// KeyOf returns the voxel containing p for the given cell size.
func KeyOf(p geometry.WorldPoint, cellSize float64) Key {
	return Key{
		X: int32(math.Floor(p.X / cellSize)),
		Y: int32(math.Floor(p.Y / cellSize)),
		Z: int32(math.Floor(p.Z / cellSize)),
	}
}

// Adjacent reports whether a and b differ by at most one in every axis.
// A key is adjacent to itself.
func Adjacent(a, b Key) bool {
	return abs32(a.X-b.X) <= 1 && abs32(a.Y-b.Y) <= 1 && abs32(a.Z-b.Z) <= 1
}

// neighborOffsets are the 26 cube neighbours, excluding the centre.
var neighborOffsets = func() [26]Key {
	var out [26]Key
	i := 0
	for dx := int32(-1); dx <= 1; dx++ {
		for dy := int32(-1); dy <= 1; dy++ {
			for dz := int32(-1); dz <= 1; dz++ {
				if dx == 0 && dy == 0 && dz == 0 {
					continue
				}
				out[i] = Key{dx, dy, dz}
				i++
			}
		}
	}
	return out
}()

func (k Key) add(o Key) Key {
	return Key{k.X + o.X, k.Y + o.Y, k.Z + o.Z}
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}
