package mesh

import (
	"fmt"
	"sort"
)

// GlobalMesh is the serial description a partitioner starts from: every
// point's coordinates, an ownership map, and the halo requirements each
// rank's stencils impose.
type GlobalMesh struct {
	NDim   int
	Coords [][]float64 // Indexed by global point index
	Owner  []int       // Owning rank per global point

	// Halo[rank] lists the global indices rank needs read-only copies of.
	// Entries owned by rank itself are rejected at build time.
	Halo map[int][]int
}

// NewLinearMesh lays nGlobal points on the x axis, ownership split into
// contiguous balanced ranges, embedding them in nDim dimensions. Useful
// for building well-understood multi-rank test partitions.
func NewLinearMesh(nGlobal, nRanks, nDim int) (gm *GlobalMesh) {
	gm = &GlobalMesh{
		NDim:   nDim,
		Coords: make([][]float64, nGlobal),
		Owner:  make([]int, nGlobal),
		Halo:   make(map[int][]int),
	}
	pm := NewRangeSplit(nRanks, nGlobal)
	for g := 0; g < nGlobal; g++ {
		x := make([]float64, nDim)
		x[0] = float64(g)
		gm.Coords[g] = x
		gm.Owner[g] = pm.Bucket(g)
	}
	return
}

// RequireHalo records that rank needs a halo copy of global point g
func (gm *GlobalMesh) RequireHalo(rank, g int) {
	gm.Halo[rank] = append(gm.Halo[rank], g)
}

// Partition builds the per-rank topologies. Owned points are numbered
// first in ascending global order, halo points follow in ascending global
// order, so both sides of every exchange derive identical buffer layouts.
func (gm *GlobalMesh) Partition(size int) (topos []*Topology, err error) {
	var (
		nGlobal = len(gm.Coords)
	)
	if len(gm.Owner) != nGlobal {
		return nil, fmt.Errorf("owner map has %d entries, want %d", len(gm.Owner), nGlobal)
	}
	for g, r := range gm.Owner {
		if r < 0 || r >= size {
			return nil, fmt.Errorf("point %d owned by rank %d, outside [0,%d)", g, r, size)
		}
	}
	topos = make([]*Topology, size)
	for rank := 0; rank < size; rank++ {
		t := &Topology{
			Rank:      rank,
			Size:      size,
			NDim:      gm.NDim,
			SendIndex: make(map[int][]int),
			RecvIndex: make(map[int][]int),
		}
		// Owned points in ascending global order
		local := make(map[int]int) // global -> local on this rank
		for g := 0; g < nGlobal; g++ {
			if gm.Owner[g] == rank {
				local[g] = len(t.GlobalIndex)
				t.GlobalIndex = append(t.GlobalIndex, g)
				t.Coords = append(t.Coords, gm.Coords[g])
			}
		}
		t.NPointDomain = len(t.GlobalIndex)

		// Halo points in ascending global order
		halo := append([]int(nil), gm.Halo[rank]...)
		sort.Ints(halo)
		for _, g := range halo {
			if g < 0 || g >= nGlobal {
				return nil, fmt.Errorf("rank %d requires halo of point %d, outside [0,%d)",
					rank, g, nGlobal)
			}
			if gm.Owner[g] == rank {
				return nil, fmt.Errorf("rank %d requires halo of point %d it already owns", rank, g)
			}
			if _, dup := local[g]; dup {
				return nil, fmt.Errorf("rank %d requires halo of point %d twice", rank, g)
			}
			local[g] = len(t.GlobalIndex)
			t.GlobalIndex = append(t.GlobalIndex, g)
			t.Coords = append(t.Coords, gm.Coords[g])
			nbr := gm.Owner[g]
			t.RecvIndex[nbr] = append(t.RecvIndex[nbr], local[g])
		}
		t.NPoint = len(t.GlobalIndex)
		topos[rank] = t
	}

	// Send lists mirror the receivers' halo requirements, in the same
	// ascending global order the receivers used
	for rank := 0; rank < size; rank++ {
		halo := append([]int(nil), gm.Halo[rank]...)
		sort.Ints(halo)
		for _, g := range halo {
			owner := gm.Owner[g]
			src := topos[owner]
			li, ok := lookupLocal(src, g)
			if !ok {
				return nil, fmt.Errorf("rank %d owns point %d but has no local copy", owner, g)
			}
			src.SendIndex[rank] = append(src.SendIndex[rank], li)
		}
	}

	for _, t := range topos {
		if err = t.Validate(); err != nil {
			return nil, err
		}
	}
	return
}

func lookupLocal(t *Topology, g int) (int, bool) {
	// Owned points are sorted by global index, binary search them
	n := t.NPointDomain
	i := sort.Search(n, func(i int) bool { return t.GlobalIndex[i] >= g })
	if i < n && t.GlobalIndex[i] == g {
		return i, true
	}
	return 0, false
}

// RangeSplit partitions [0,MaxIndex) into ParallelDegree near-equal
// contiguous buckets, maximum imbalance of one
type RangeSplit struct {
	MaxIndex       int
	ParallelDegree int
	Ranges         [][2]int
}

func NewRangeSplit(parallelDegree, maxIndex int) (rs *RangeSplit) {
	rs = &RangeSplit{
		MaxIndex:       maxIndex,
		ParallelDegree: parallelDegree,
		Ranges:         make([][2]int, parallelDegree),
	}
	for n := 0; n < parallelDegree; n++ {
		rs.Ranges[n] = rs.split1D(n)
	}
	return
}

func (rs *RangeSplit) split1D(n int) [2]int {
	var (
		base = rs.MaxIndex / rs.ParallelDegree
		rem  = rs.MaxIndex % rs.ParallelDegree
	)
	// The first rem buckets carry one extra index
	min := n*base + n
	if n >= rem {
		min = n*base + rem
	}
	max := min + base
	if n < rem {
		max++
	}
	return [2]int{min, max}
}

// Range returns the [min,max) index range of bucket n
func (rs *RangeSplit) Range(n int) (min, max int) {
	return rs.Ranges[n][0], rs.Ranges[n][1]
}

// Dimension returns the number of indices in bucket n
func (rs *RangeSplit) Dimension(n int) int {
	return rs.Ranges[n][1] - rs.Ranges[n][0]
}

// Bucket returns the bucket containing index k
func (rs *RangeSplit) Bucket(k int) (n int) {
	// Initial guess, then walk, two tries at most
	n = rs.ParallelDegree * k / rs.MaxIndex
	for !(rs.Ranges[n][0] <= k && k < rs.Ranges[n][1]) {
		if rs.Ranges[n][0] > k {
			n--
		} else {
			n++
		}
		if n < 0 || n == rs.ParallelDegree {
			panic(fmt.Sprintf("index %d outside partition range [0,%d)", k, rs.MaxIndex))
		}
	}
	return
}
