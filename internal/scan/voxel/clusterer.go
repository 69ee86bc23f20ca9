package voxel

import "github.com/banshee-data/footscan/internal/scan/geometry"

// Component summarises one connected group of occupied voxels.
type Component struct {
	Voxels int
	Points int
}

// Clusterer finds connected voxel components. It keeps its scratch
// buffers between calls, so one Clusterer must not be used from more than
// one goroutine at a time.
type Clusterer struct {
	index      map[Key]int32 // voxel key -> voxel id (first-seen order)
	keys       []Key         // voxel id -> key
	pointVoxel []int32       // point index -> voxel id
	label      []int32       // voxel id -> component id, -1 = unvisited
	queue      []int32
	comps      []Component
}

// NewClusterer returns a Clusterer with empty scratch state.
func NewClusterer() *Clusterer {
	return &Clusterer{index: make(map[Key]int32)}
}

// Largest keeps the points whose voxel belongs to the component with the
// most occupied voxels. pts is compacted in place and the kept prefix is
// returned; relative order is preserved.
//
// A non-positive cellSize or empty input returns pts unchanged.
//
// Ties between equally sized components go to the component containing
// the earliest point of pts, so the result is stable for a given input
// order.
func (c *Clusterer) Largest(pts []geometry.WorldPoint, cellSize float64) []geometry.WorldPoint {
	if len(pts) == 0 || cellSize <= 0 {
		return pts
	}

	c.build(pts, cellSize)
	best := c.labelComponents()
	if best < 0 {
		return pts[:0]
	}

	writeIdx := 0
	for readIdx, vid := range c.pointVoxel {
		if c.label[vid] != best {
			continue
		}
		pts[writeIdx] = pts[readIdx]
		writeIdx++
	}
	return pts[:writeIdx]
}

// Components returns every connected component of pts in discovery order.
// pts is not modified.
func (c *Clusterer) Components(pts []geometry.WorldPoint, cellSize float64) []Component {
	if len(pts) == 0 || cellSize <= 0 {
		return nil
	}
	c.build(pts, cellSize)
	c.labelComponents()
	for _, vid := range c.pointVoxel {
		c.comps[c.label[vid]].Points++
	}
	out := make([]Component, len(c.comps))
	copy(out, c.comps)
	return out
}

// build hashes every point into a voxel and assigns voxel ids in the order
// voxels are first seen.
func (c *Clusterer) build(pts []geometry.WorldPoint, cellSize float64) {
	clear(c.index)
	c.keys = c.keys[:0]
	c.pointVoxel = c.pointVoxel[:0]

	for _, p := range pts {
		k := KeyOf(p, cellSize)
		vid, ok := c.index[k]
		if !ok {
			vid = int32(len(c.keys))
			c.index[k] = vid
			c.keys = append(c.keys, k)
		}
		c.pointVoxel = append(c.pointVoxel, vid)
	}
}

// labelComponents labels every voxel with a component id using an
// explicit-queue breadth-first search and returns the id of the largest
// component, or -1 if there are no voxels.
func (c *Clusterer) labelComponents() int32 {
	n := len(c.keys)
	if cap(c.label) < n {
		c.label = make([]int32, n)
	}
	c.label = c.label[:n]
	for i := range c.label {
		c.label[i] = -1
	}
	c.comps = c.comps[:0]

	best := int32(-1)
	bestSize := 0
	for seed := 0; seed < n; seed++ {
		if c.label[seed] >= 0 {
			continue
		}
		id := int32(len(c.comps))
		size := c.flood(int32(seed), id)
		c.comps = append(c.comps, Component{Voxels: size})
		if size > bestSize {
			best, bestSize = id, size
		}
	}
	return best
}

// flood labels the component reachable from seed and returns its voxel count.
func (c *Clusterer) flood(seed, id int32) int {
	c.queue = append(c.queue[:0], seed)
	c.label[seed] = id
	size := 0

	for head := 0; head < len(c.queue); head++ {
		vid := c.queue[head]
		size++
		k := c.keys[vid]
		for _, off := range neighborOffsets {
			nid, ok := c.index[k.add(off)]
			if !ok || c.label[nid] >= 0 {
				continue
			}
			c.label[nid] = id
			c.queue = append(c.queue, nid)
		}
	}
	return size
}

// LargestComponent is a convenience wrapper for one-off calls.
func LargestComponent(pts []geometry.WorldPoint, cellSize float64) []geometry.WorldPoint {
	return NewClusterer().Largest(pts, cellSize)
}
