package voxel

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/banshee-data/footscan/internal/scan/geometry"
)

func blob(cx, cy, cz float64, n int, spacing float64) []geometry.WorldPoint {
	var pts []geometry.WorldPoint
	for i := 0; i < n; i++ {
		pts = append(pts, geometry.WorldPoint{X: cx + float64(i)*spacing, Y: cy, Z: cz})
	}
	return pts
}

func TestKeyOf_FloorsNegativeCoordinates(t *testing.T) {
	got := KeyOf(geometry.WorldPoint{X: -0.001, Y: 0.011, Z: 0.012}, 0.012)
	want := Key{X: -1, Y: 0, Z: 1}
	if got != want {
		t.Errorf("KeyOf = %+v, want %+v", got, want)
	}
}

func TestAdjacent(t *testing.T) {
	tests := []struct {
		name string
		a, b Key
		want bool
	}{
		{"self", Key{1, 2, 3}, Key{1, 2, 3}, true},
		{"face", Key{0, 0, 0}, Key{1, 0, 0}, true},
		{"corner", Key{0, 0, 0}, Key{-1, 1, -1}, true},
		{"two away", Key{0, 0, 0}, Key{2, 0, 0}, false},
		{"one axis far", Key{0, 0, 0}, Key{1, 1, 2}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Adjacent(tt.a, tt.b); got != tt.want {
				t.Errorf("Adjacent(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestNeighborOffsets_AreAllAdjacentAndDistinct(t *testing.T) {
	seen := make(map[Key]bool)
	for _, off := range neighborOffsets {
		if off == (Key{}) {
			t.Fatal("centre included in neighbour offsets")
		}
		if !Adjacent(Key{}, off) {
			t.Errorf("offset %v not adjacent", off)
		}
		seen[off] = true
	}
	if len(seen) != 26 {
		t.Errorf("got %d distinct offsets, want 26", len(seen))
	}
}

func TestLargest_KeepsBiggerBlob(t *testing.T) {
	cell := 0.012
	// Ten points one cell apart form one chain of ten voxels; the far
	// group covers three.
	big := blob(0.0005, 0.0005, 0.0005, 10, cell)
	small := blob(1.0005, 1.0005, 1.0005, 3, cell)

	pts := append(append([]geometry.WorldPoint{}, small...), big...)
	got := NewClusterer().Largest(pts, cell)

	if diff := cmp.Diff(big, got); diff != "" {
		t.Errorf("Largest mismatch (-want +got):\n%s", diff)
	}
}

func TestLargest_DiagonalNeighboursConnect(t *testing.T) {
	cell := 0.01
	pts := []geometry.WorldPoint{
		{X: 0.005, Y: 0.005, Z: 0.005},
		{X: 0.015, Y: 0.015, Z: 0.015}, // corner-adjacent
		{X: 0.025, Y: 0.025, Z: 0.025}, // corner-adjacent
		{X: 0.5, Y: 0.5, Z: 0.5},
	}
	got := NewClusterer().Largest(pts, cell)
	if len(got) != 3 {
		t.Fatalf("got %d points, want 3 (diagonal chain)", len(got))
	}
}

func TestLargest_CountsVoxelsNotPoints(t *testing.T) {
	cell := 0.01
	// Many points in one voxel lose to two occupied voxels.
	var dense []geometry.WorldPoint
	for i := 0; i < 50; i++ {
		dense = append(dense, geometry.WorldPoint{X: 0.001, Y: 0.001, Z: 0.001})
	}
	spread := []geometry.WorldPoint{
		{X: 1.001, Y: 0.001, Z: 0.001},
		{X: 1.011, Y: 0.001, Z: 0.001},
	}
	pts := append(append([]geometry.WorldPoint{}, dense...), spread...)
	got := NewClusterer().Largest(pts, cell)
	if diff := cmp.Diff(spread, got); diff != "" {
		t.Errorf("Largest mismatch (-want +got):\n%s", diff)
	}
}

func TestLargest_TieGoesToFirstSeen(t *testing.T) {
	cell := 0.01
	a := []geometry.WorldPoint{{X: 0.001, Y: 0.001, Z: 0.001}}
	b := []geometry.WorldPoint{{X: 0.501, Y: 0.001, Z: 0.001}}

	ab := NewClusterer().Largest(append(append([]geometry.WorldPoint{}, a...), b...), cell)
	if diff := cmp.Diff(a, ab); diff != "" {
		t.Errorf("a-first tie (-want +got):\n%s", diff)
	}
	ba := NewClusterer().Largest(append(append([]geometry.WorldPoint{}, b...), a...), cell)
	if diff := cmp.Diff(b, ba); diff != "" {
		t.Errorf("b-first tie (-want +got):\n%s", diff)
	}
}

func TestLargest_IdentityCases(t *testing.T) {
	pts := blob(0, 0, 0, 3, 1.0)
	c := NewClusterer()

	if got := c.Largest(nil, 0.01); len(got) != 0 {
		t.Errorf("empty input returned %d points", len(got))
	}
	if got := c.Largest(pts, 0); len(got) != 3 {
		t.Errorf("cell 0 returned %d points, want 3", len(got))
	}
	if got := c.Largest(pts, -1); len(got) != 3 {
		t.Errorf("negative cell returned %d points, want 3", len(got))
	}
}

func TestLargest_Idempotent(t *testing.T) {
	cell := 0.012
	pts := append(blob(0.0005, 0.0005, 0.0005, 8, cell), blob(0.5, 0.5, 0.5, 4, cell)...)
	c := NewClusterer()

	once := append([]geometry.WorldPoint(nil), c.Largest(pts, cell)...)
	twice := c.Largest(append([]geometry.WorldPoint(nil), once...), cell)
	if diff := cmp.Diff(once, twice); diff != "" {
		t.Errorf("second pass changed output (-once +twice):\n%s", diff)
	}
}

func TestLargest_OutputIsSubsequence(t *testing.T) {
	cell := 0.012
	in := append(blob(0.0005, 0.0005, 0.0005, 6, cell), blob(0.8, 0.8, 0.8, 2, cell)...)
	orig := append([]geometry.WorldPoint(nil), in...)
	out := NewClusterer().Largest(in, cell)

	j := 0
	for _, p := range orig {
		if j < len(out) && out[j] == p {
			j++
		}
	}
	if j != len(out) {
		t.Errorf("output is not an order-preserving subsequence of input")
	}
}

func TestClusterer_ReuseAcrossFrames(t *testing.T) {
	cell := 0.012
	c := NewClusterer()
	first := c.Largest(blob(0.0005, 0.0005, 0.0005, 5, cell), cell)
	if len(first) != 5 {
		t.Fatalf("first frame kept %d, want 5", len(first))
	}
	second := c.Largest(blob(2.0005, 2.0005, 2.0005, 2, cell), cell)
	if len(second) != 2 {
		t.Errorf("second frame kept %d, want 2 (stale scratch state?)", len(second))
	}
}

func TestComponents(t *testing.T) {
	cell := 0.01
	pts := []geometry.WorldPoint{
		{X: 0.001, Y: 0.001, Z: 0.001},
		{X: 0.002, Y: 0.002, Z: 0.002},
		{X: 0.011, Y: 0.001, Z: 0.001},
		{X: 0.5, Y: 0.5, Z: 0.5},
	}
	got := NewClusterer().Components(pts, cell)
	want := []Component{{Voxels: 2, Points: 3}, {Voxels: 1, Points: 1}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Components mismatch (-want +got):\n%s", diff)
	}
}
