// Package Transport1D is a first-order upwind solver for linear scalar
// transport on a partitioned 1-D point set. It is deliberately small:
// its job is to drive the base solver facade end-to-end across ranks,
// not to be interesting physics.
package Transport1D

import (
	"fmt"
	"math"

	"github.com/notargets/gofvm/comm"
	"github.com/notargets/gofvm/config"
	"github.com/notargets/gofvm/mesh"
	"github.com/notargets/gofvm/solver"
)

// Transport solves du/dt + Speed * du/dx = 0 with a fixed inflow value
// on the left boundary, marching to the trivial steady state. Explicit
// local time stepping scaled by each point's adapted CFL.
type Transport struct {
	*solver.BaseNodes

	base *solver.Solver

	Speed  float64
	Inflow float64

	upwind []int // Local index of each owned point's upwind neighbor, -1 at inflow
	update []float64
}

// BuildTopologies constructs the partitioned 1-D case: nGlobal points at
// unit spacing, contiguous balanced ownership, and a halo copy of each
// rank's upwind boundary point. The inflow marker sits on the rank
// owning global point 0.
func BuildTopologies(nGlobal, size int) (topos []*mesh.Topology, err error) {
	gm := mesh.NewLinearMesh(nGlobal, size, 1)
	rs := mesh.NewRangeSplit(size, nGlobal)
	for r := 0; r < size; r++ {
		min, _ := rs.Range(r)
		if min > 0 {
			gm.RequireHalo(r, min-1)
		}
	}
	if topos, err = gm.Partition(size); err != nil {
		return nil, err
	}
	topos[gm.Owner[0]].Markers = append(topos[gm.Owner[0]].Markers, mesh.Marker{
		Name:     "inflow",
		Vertices: []mesh.Vertex{{Point: 0, Normal: []float64{-1}, Area: 1}},
	})
	return
}

// New builds one rank's solver over an already partitioned topology
func New(trans comm.Transport, topo *mesh.Topology, cfg *config.Parameters,
	speed, inflow float64) (c *Transport, err error) {
	if speed <= 0 {
		return nil, fmt.Errorf("transport speed %g must be positive (upwind is leftward)", speed)
	}
	c = &Transport{
		BaseNodes: solver.NewNodes(topo.NPoint, 1, topo.NDim, cfg.CFL),
		base:      solver.New("Transport1D", trans, topo, cfg, 1),
		Speed:     speed,
		Inflow:    inflow,
		upwind:    make([]int, topo.NPointDomain),
		update:    make([]float64, topo.NPointDomain),
	}
	c.base.RegisterNodes(c)

	// Resolve each owned point's upwind neighbor in local numbering;
	// it is either another owned point or a halo copy
	local := make(map[int]int)
	for i, g := range topo.GlobalIndex {
		local[g] = i
	}
	for i := 0; i < topo.NPointDomain; i++ {
		g := topo.GlobalIndex[i]
		if g == 0 {
			c.upwind[i] = -1
			continue
		}
		j, ok := local[g-1]
		if !ok {
			return nil, fmt.Errorf("rank %d: upwind neighbor of global point %d "+
				"is neither owned nor halo", topo.Rank, g)
		}
		c.upwind[i] = j
	}
	return
}

func (c *Transport) Base() *solver.Solver { return c.base }

// ExactSolution at steady state is the inflow value everywhere
func (c *Transport) ExactSolution(coord []float64) []float64 {
	return []float64{c.Inflow}
}

// ApplyBoundaryCondition pins the inflow vertex to the inflow value
func (c *Transport) ApplyBoundaryCondition(topo *mesh.Topology, cfg *config.Parameters, marker int) {
	m := topo.Markers[marker]
	if m.Name != "inflow" {
		return
	}
	for _, v := range m.Vertices {
		c.SetSolution(v.Point, []float64{c.Inflow})
	}
}

// AssembleResiduals computes the point-implicit upwind update for every
// owned point, unconditionally stable in the local CFL so the adapted
// CFL can climb freely. Halo solution values were refreshed at the end
// of the last iteration.
func (c *Transport) AssembleResiduals(topo *mesh.Topology, cfg *config.Parameters) {
	const dx = 1.0
	for i := 0; i < topo.NPointDomain; i++ {
		if c.upwind[i] < 0 {
			c.update[i] = 0 // Inflow value is imposed, not evolved
			continue
		}
		u := c.Solution(i)[0]
		uw := c.Solution(c.upwind[i])[0]
		nu := c.LocalCFL(i) * c.Speed / dx
		c.update[i] = (uw - u) * nu / (1 + nu)
	}
}

// UpdateSolution applies the updates under a change-limiting
// under-relaxation and feeds the residual accumulators
func (c *Transport) UpdateSolution(topo *mesh.Topology, cfg *config.Parameters) {
	const allowableChange = 0.2
	for i := 0; i < topo.NPointDomain; i++ {
		du := c.update[i]
		ur := 1.0
		if mag := math.Abs(du); mag > 0 {
			limit := allowableChange * (math.Abs(c.Solution(i)[0]) + 0.1*math.Abs(c.Inflow))
			if limit < mag {
				ur = limit / mag
			}
		}
		c.SetUnderRelaxation(i, ur)
		du *= ur
		c.SetSolution(i, []float64{c.Solution(i)[0] + du})
		c.base.AddResRMS(0, du*du)
		c.base.AddResMax(0, math.Abs(du), topo.GlobalIndex[i], topo.Coords[i])
	}
}
