package solver

import (
	"fmt"
	"math"

	"github.com/notargets/gofvm/config"
	"github.com/notargets/gofvm/mesh"
)

// ExactSolutionProvider is implemented by solvers with a known exact or
// manufactured solution, enabling discretization-error measurement
type ExactSolutionProvider interface {
	ExactSolution(coord []float64) []float64
}

// VerificationError computes the per-variable global RMS error of the
// current solution against prov's exact solution over owned points.
// Collective; every rank must call it.
func (s *Solver) VerificationError(topo *mesh.Topology, cfg *config.Parameters,
	prov ExactSolutionProvider) ([]float64, error) {
	var (
		nVar  = s.nVar
		nodes = s.GetNodes()
	)
	sums := make([]float64, nVar+1)
	for i := 0; i < topo.NPointDomain; i++ {
		sol := nodes.Solution(i)
		exact := prov.ExactSolution(topo.Coords[i])
		for iVar := 0; iVar < nVar; iVar++ {
			e := sol[iVar] - exact[iVar]
			sums[iVar] += e * e
		}
	}
	sums[nVar] = float64(topo.NPointDomain)
	red := s.trans.AllreduceSum(sums)
	total := red[nVar]
	if total == 0 {
		return nil, fmt.Errorf("rank %d solver %q: verification over zero owned points",
			s.Rank(), s.Name)
	}
	errs := make([]float64, nVar)
	for iVar := 0; iVar < nVar; iVar++ {
		errs[iVar] = math.Sqrt(red[iVar] / total)
	}
	return errs, nil
}
