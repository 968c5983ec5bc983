package solver

import (
	"math"

	"github.com/notargets/gofvm/config"
	"github.com/notargets/gofvm/mesh"
)

// AdaptCFLNumber reacts to the under-relaxation feedback of the
// nonlinear iteration just finished, one multigrid level at a time. A
// point whose step went through essentially unlimited grows its local
// CFL by the configured up-factor; a heavily limited point shrinks by
// the down-factor; the result is clamped to the configured bounds. The
// per-level min/max/avg trackers are reduced process-wide.
//
// topos and solvers are indexed by multigrid level and must have equal
// length. Adaptation only mutates the per-point CFL state; time-step
// computation happens elsewhere, reading that state.
func AdaptCFLNumber(topos []*mesh.Topology, solvers []*Solver, cfg *config.Parameters) {
	if !cfg.CFLAdapt.Enabled {
		return
	}
	for level, s := range solvers {
		s.adaptCFL(topos[level], cfg)
	}
}

func (s *Solver) adaptCFL(topo *mesh.Topology, cfg *config.Parameters) {
	var (
		a     = cfg.CFLAdapt
		nodes = s.GetNodes()
		min   = math.Inf(1)
		max   = math.Inf(-1)
		sum   float64
	)
	for i := 0; i < topo.NPointDomain; i++ {
		cfl := nodes.LocalCFL(i)
		ur := nodes.UnderRelaxation(i)
		switch {
		case ur <= a.LimitFactor:
			cfl *= a.FactorDown
		case ur >= a.AcceptFactor:
			cfl *= a.FactorUp
		}
		if cfl < a.CFLMin {
			cfl = a.CFLMin
		}
		if cfl > a.CFLMax {
			cfl = a.CFLMax
		}
		nodes.SetLocalCFL(i, cfl)
		if cfl < min {
			min = cfl
		}
		if cfl > max {
			max = cfl
		}
		sum += cfl
	}
	s.minCFL = s.trans.AllreduceMin(min)
	s.maxCFL = s.trans.AllreduceMax(max)
	red := s.trans.AllreduceSum([]float64{sum, float64(topo.NPointDomain)})
	if red[1] > 0 {
		s.avgCFL = red[0] / red[1]
	}
}
