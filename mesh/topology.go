// Package mesh holds the per-rank view of a partitioned unstructured point
// cloud: ownership, halo index maps, boundary markers and periodic pairs.
// It carries no physics; solvers read it to drive communication and
// reductions.
package mesh

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// Vertex is one entry of a marker's ordered vertex list
type Vertex struct {
	Point  int       // Local point index
	Normal []float64 // Outward unit normal, length NDim
	Area   float64
}

// Marker is a named boundary or interface grouping of vertices
type Marker struct {
	Name     string
	Vertices []Vertex
}

// PeriodicPair relates a donor marker to a receiver marker through a
// rigid-body transform. Vector quantities crossing the pair must be
// rotated into the receiver's frame.
type PeriodicPair struct {
	Index          int
	DonorMarker    int
	ReceiverMarker int
	Rotation       *mat.Dense // NDim x NDim
	Translation    []float64  // length NDim

	// Donor/Receiver map neighbor rank to the local point indices
	// exchanged for this pair, in matching global-index order
	Donor    map[int][]int
	Receiver map[int][]int
}

// RotateVector applies only the rotational part of the transform, as
// needed for velocities, gradient rows and other frame-attached vectors
func (pp *PeriodicPair) RotateVector(v []float64) (w []float64) {
	var (
		nDim = len(v)
	)
	w = make([]float64, nDim)
	for i := 0; i < nDim; i++ {
		for j := 0; j < nDim; j++ {
			w[i] += pp.Rotation.At(i, j) * v[j]
		}
	}
	return
}

// TransformPoint applies the full rigid transform, rotation then
// translation, as needed for coordinates
func (pp *PeriodicPair) TransformPoint(x []float64) (y []float64) {
	y = pp.RotateVector(x)
	for i := range y {
		y[i] += pp.Translation[i]
	}
	return
}

// Topology is one rank's partition: the owned points come first in local
// numbering, the halo copies of neighbor-owned points follow. Exactly one
// rank owns each point; a local index at or beyond NPointDomain is a halo
// copy and is written only by the communication engine.
type Topology struct {
	Rank, Size int
	NDim       int

	NPoint       int // Owned plus halo
	NPointDomain int // Owned only

	GlobalIndex []int       // Length NPoint
	Coords      [][]float64 // Length NPoint, each length NDim

	// SendIndex[nbr] lists the local indices of owned points whose values
	// neighbor nbr holds as halo copies. RecvIndex[nbr] lists the local
	// halo indices filled from nbr. Both sides order by global index at
	// partition-build time, so buffer layouts agree without negotiation.
	SendIndex map[int][]int
	RecvIndex map[int][]int

	Markers       []Marker
	PeriodicPairs []PeriodicPair
}

// Neighbors returns the ranks this rank exchanges halo data with, in
// ascending order. A neighbor with only a one-sided relationship (send
// only or receive only) is still included.
func (t *Topology) Neighbors() (nbrs []int) {
	seen := make(map[int]bool)
	for r := range t.SendIndex {
		seen[r] = true
	}
	for r := range t.RecvIndex {
		seen[r] = true
	}
	for r := range seen {
		nbrs = append(nbrs, r)
	}
	sort.Ints(nbrs)
	return
}

// IsHalo reports whether local point i is a halo copy
func (t *Topology) IsHalo(i int) bool {
	return i >= t.NPointDomain
}

// Validate cross-checks the local index maps against the ownership
// invariants. It cannot see the remote side; count symmetry between rank
// pairs is verified at exchange time by buffer length checks.
func (t *Topology) Validate() error {
	if t.NPointDomain > t.NPoint {
		return fmt.Errorf("rank %d: owned points %d exceed total points %d",
			t.Rank, t.NPointDomain, t.NPoint)
	}
	if len(t.GlobalIndex) != t.NPoint {
		return fmt.Errorf("rank %d: global index list has %d entries, want %d",
			t.Rank, len(t.GlobalIndex), t.NPoint)
	}
	for nbr, idx := range t.SendIndex {
		if nbr < 0 || nbr >= t.Size || nbr == t.Rank {
			return fmt.Errorf("rank %d: invalid send neighbor %d", t.Rank, nbr)
		}
		for _, i := range idx {
			if i < 0 || i >= t.NPointDomain {
				return fmt.Errorf("rank %d: send index %d to rank %d is not an owned point",
					t.Rank, i, nbr)
			}
		}
	}
	for nbr, idx := range t.RecvIndex {
		if nbr < 0 || nbr >= t.Size || nbr == t.Rank {
			return fmt.Errorf("rank %d: invalid recv neighbor %d", t.Rank, nbr)
		}
		for _, i := range idx {
			if i < t.NPointDomain || i >= t.NPoint {
				return fmt.Errorf("rank %d: recv index %d from rank %d is not a halo point",
					t.Rank, i, nbr)
			}
		}
	}
	for _, m := range t.Markers {
		for iv, v := range m.Vertices {
			if v.Point < 0 || v.Point >= t.NPoint {
				return fmt.Errorf("rank %d: marker %q vertex %d references point %d out of range",
					t.Rank, m.Name, iv, v.Point)
			}
			if len(v.Normal) != t.NDim {
				return fmt.Errorf("rank %d: marker %q vertex %d normal has %d components, want %d",
					t.Rank, m.Name, iv, len(v.Normal), t.NDim)
			}
		}
	}
	return nil
}
