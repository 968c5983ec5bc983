package solver

import (
	"fmt"
	"math"

	"github.com/notargets/gofvm/comm"
	"github.com/notargets/gofvm/config"
	"github.com/notargets/gofvm/mesh"
)

// ResetResiduals zeroes the nonlinear-iteration accumulators. Call at
// the start of every nonlinear iteration, before residual assembly. The
// BGS accumulators are deliberately untouched; they reset only in
// UpdateSolutionBGS.
func (s *Solver) ResetResiduals() {
	for iVar := 0; iVar < s.nVar; iVar++ {
		s.residRMS[iVar] = 0
		s.residMax[iVar] = 0
		s.pointMax[iVar] = 0
		for iDim := range s.pointMaxCoord[iVar] {
			s.pointMaxCoord[iVar][iDim] = 0
		}
	}
}

// SetResRMS overwrites the running sum of squares for one variable
func (s *Solver) SetResRMS(iVar int, val float64) { s.residRMS[iVar] = val }

// AddResRMS accumulates into the sum of squares for one variable. The
// accumulation is additive, so call order across points is irrelevant.
func (s *Solver) AddResRMS(iVar int, val float64) { s.residRMS[iVar] += val }

// AddResMax records val as the new worst-case update for iVar if it
// exceeds the current one, remembering the owning point's global index
// and coordinates for diagnostics
func (s *Solver) AddResMax(iVar int, val float64, globalPoint int, coord []float64) {
	if val > s.residMax[iVar] {
		s.residMax[iVar] = val
		s.pointMax[iVar] = globalPoint
		copy(s.pointMaxCoord[iVar], coord)
	}
}

// SetResidualRMS finalizes the iteration's residuals: the per-variable
// sums of squares and the owned point count are sum-reduced across all
// ranks, RMS values replace the local sums, and the max residuals are
// reduced with their locations, ties resolving to the lowest global
// point index. Every rank must call it; it is a collective
// synchronization point.
//
// A non-finite accumulated residual is numerical divergence and comes
// back as an error naming the rank, variable and worst point. The
// caller decides whether to abort the run.
func (s *Solver) SetResidualRMS(topo *mesh.Topology, cfg *config.Parameters) error {
	var (
		nVar = s.nVar
	)
	sums := make([]float64, nVar+1)
	copy(sums, s.residRMS)
	sums[nVar] = float64(topo.NPointDomain)
	red := s.trans.AllreduceSum(sums)

	total := red[nVar]
	if total == 0 {
		return fmt.Errorf("rank %d solver %q: residual finalization over zero owned points",
			s.Rank(), s.Name)
	}
	for iVar := 0; iVar < nVar; iVar++ {
		sum := red[iVar]
		if math.IsNaN(sum) || math.IsInf(sum, 0) {
			return fmt.Errorf("rank %d solver %q: non-finite residual for variable %d "+
				"(worst local update %g at global point %d, coord %v); calculation diverged",
				s.Rank(), s.Name, iVar, s.residMax[iVar], s.pointMax[iVar],
				s.pointMaxCoord[iVar])
		}
		s.residRMS[iVar] = math.Sqrt(sum / total)
	}

	locs := make([]comm.MaxLoc, nVar)
	for iVar := 0; iVar < nVar; iVar++ {
		locs[iVar] = comm.MaxLoc{
			Value: s.residMax[iVar],
			Index: s.pointMax[iVar],
			Coord: s.pointMaxCoord[iVar],
		}
	}
	out := s.trans.AllreduceMaxLoc(locs)
	for iVar := 0; iVar < nVar; iVar++ {
		s.residMax[iVar] = out[iVar].Value
		s.pointMax[iVar] = out[iVar].Index
		copy(s.pointMaxCoord[iVar], out[iVar].Coord)
	}
	return nil
}

// ResRMS returns the finalized RMS residual for one variable
func (s *Solver) ResRMS(iVar int) float64 { return s.residRMS[iVar] }

// ResRMSLog10 is the log10 of the finalized RMS residual, the usual
// convergence-history quantity. A zero residual reports -inf.
func (s *Solver) ResRMSLog10(iVar int) float64 { return math.Log10(s.residRMS[iVar]) }

// ResMax returns the finalized max residual for one variable
func (s *Solver) ResMax(iVar int) float64 { return s.residMax[iVar] }

// PointMax returns the global index and coordinates of the point that
// produced the max residual for one variable
func (s *Solver) PointMax(iVar int) (int, []float64) {
	return s.pointMax[iVar], s.pointMaxCoord[iVar]
}

// BGS variants mirror the nonlinear-iteration accumulators but are keyed
// to the outer multizone coupling iteration.

func (s *Solver) SetResBGS(iVar int, val float64) { s.residBGS[iVar] = val }
func (s *Solver) AddResBGS(iVar int, val float64) { s.residBGS[iVar] += val }

func (s *Solver) AddResMaxBGS(iVar int, val float64, globalPoint int, coord []float64) {
	if val > s.residMaxBGS[iVar] {
		s.residMaxBGS[iVar] = val
		s.pointMaxBGS[iVar] = globalPoint
		copy(s.pointMaxCoordBGS[iVar], coord)
	}
}

// ComputeResidualMultizone accumulates, per variable, how far the
// solution has moved since the last UpdateSolutionBGS snapshot. Skips
// halo points; their owners account for them.
func (s *Solver) ComputeResidualMultizone(topo *mesh.Topology, cfg *config.Parameters) {
	nodes := s.GetNodes()
	for iVar := 0; iVar < s.nVar; iVar++ {
		s.residBGS[iVar] = 0
		s.residMaxBGS[iVar] = 0
		s.pointMaxBGS[iVar] = 0
	}
	for i := 0; i < topo.NPointDomain; i++ {
		sol := nodes.Solution(i)
		ref := nodes.BGSSolution(i)
		for iVar := 0; iVar < s.nVar; iVar++ {
			r := math.Abs(sol[iVar] - ref[iVar])
			s.AddResBGS(iVar, r*r)
			s.AddResMaxBGS(iVar, r, topo.GlobalIndex[i], topo.Coords[i])
		}
	}
}

// SetResidualBGS finalizes the BGS residuals across ranks, exactly as
// SetResidualRMS does for the inner iteration
func (s *Solver) SetResidualBGS(topo *mesh.Topology, cfg *config.Parameters) error {
	var (
		nVar = s.nVar
	)
	sums := make([]float64, nVar+1)
	copy(sums, s.residBGS)
	sums[nVar] = float64(topo.NPointDomain)
	red := s.trans.AllreduceSum(sums)

	total := red[nVar]
	if total == 0 {
		return fmt.Errorf("rank %d solver %q: BGS residual finalization over zero owned points",
			s.Rank(), s.Name)
	}
	for iVar := 0; iVar < nVar; iVar++ {
		sum := red[iVar]
		if math.IsNaN(sum) || math.IsInf(sum, 0) {
			return fmt.Errorf("rank %d solver %q: non-finite BGS residual for variable %d "+
				"(worst local update %g at global point %d); calculation diverged",
				s.Rank(), s.Name, iVar, s.residMaxBGS[iVar], s.pointMaxBGS[iVar])
		}
		s.residBGS[iVar] = math.Sqrt(sum / total)
	}

	locs := make([]comm.MaxLoc, nVar)
	for iVar := 0; iVar < nVar; iVar++ {
		locs[iVar] = comm.MaxLoc{
			Value: s.residMaxBGS[iVar],
			Index: s.pointMaxBGS[iVar],
			Coord: s.pointMaxCoordBGS[iVar],
		}
	}
	out := s.trans.AllreduceMaxLoc(locs)
	for iVar := 0; iVar < nVar; iVar++ {
		s.residMaxBGS[iVar] = out[iVar].Value
		s.pointMaxBGS[iVar] = out[iVar].Index
		copy(s.pointMaxCoordBGS[iVar], out[iVar].Coord)
	}
	return nil
}

func (s *Solver) ResBGS(iVar int) float64    { return s.residBGS[iVar] }
func (s *Solver) ResMaxBGS(iVar int) float64 { return s.residMaxBGS[iVar] }

// UpdateSolutionBGS snapshots the current solution as the reference for
// the next outer coupling iteration and clears the BGS accumulators.
// This is the only place they reset.
func (s *Solver) UpdateSolutionBGS(topo *mesh.Topology, cfg *config.Parameters) {
	nodes := s.GetNodes()
	for i := 0; i < topo.NPoint; i++ {
		nodes.SetBGSSolution(i, nodes.Solution(i))
	}
	for iVar := 0; iVar < s.nVar; iVar++ {
		s.residBGS[iVar] = 0
		s.residMaxBGS[iVar] = 0
		s.pointMaxBGS[iVar] = 0
		for iDim := range s.pointMaxCoordBGS[iVar] {
			s.pointMaxCoordBGS[iVar][iDim] = 0
		}
	}
}
