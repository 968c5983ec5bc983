package solver

import (
	"fmt"
	"math"

	"github.com/james-bowman/sparse"

	"github.com/notargets/gofvm/comm"
	"github.com/notargets/gofvm/config"
	"github.com/notargets/gofvm/mesh"
)

// Solver is the base type every physics solver builds on. It owns the
// linear-system containers, the residual and CFL bookkeeping, and the
// halo-exchange engine; the physics supplies node storage through
// RegisterNodes and per-iteration behavior through the capability
// interfaces in hooks.go.
type Solver struct {
	Name    string
	MGLevel int

	trans comm.Transport

	nVar, nDim           int
	nPoint, nPointDomain int

	// Implicit linear system containers. Assembly and Krylov solves
	// happen outside this package; the facade owns the storage.
	LinSysSol []float64
	LinSysRes []float64
	LinSysAux []float64
	Jacobian  *sparse.DOK

	// Nonlinear-iteration residual accumulators. Until SetResidualRMS
	// runs, residRMS holds per-variable sums of squares; afterwards it
	// holds the globally reduced RMS values.
	residRMS      []float64
	residMax      []float64
	pointMax      []int
	pointMaxCoord [][]float64

	// BGS accumulators for outer multizone coupling iterations. These
	// persist across inner iterations and reset only in
	// UpdateSolutionBGS.
	residBGS         []float64
	residMaxBGS      []float64
	pointMaxBGS      []int
	pointMaxCoordBGS [][]float64

	// Process-wide CFL trackers, valid after AdaptCFLNumber
	minCFL, maxCFL, avgCFL float64

	// In-flight exchanges, at most one per key
	pending map[pendingKey]*exchange

	nodes Nodes
}

type pendingKey struct {
	kind CommKind
	pair int // Periodic pair index, -1 for ordinary halo exchange
}

// New constructs the facade for one rank of a partitioned run. The
// transport carries this rank's identity; nothing here touches ambient
// process-global state.
func New(name string, trans comm.Transport, topo *mesh.Topology,
	cfg *config.Parameters, nVar int) (s *Solver) {
	var (
		n = topo.NPoint * nVar
	)
	s = &Solver{
		Name:             name,
		trans:            trans,
		nVar:             nVar,
		nDim:             topo.NDim,
		nPoint:           topo.NPoint,
		nPointDomain:     topo.NPointDomain,
		LinSysSol:        make([]float64, n),
		LinSysRes:        make([]float64, n),
		LinSysAux:        make([]float64, n),
		Jacobian:         sparse.NewDOK(n, n),
		residRMS:         make([]float64, nVar),
		residMax:         make([]float64, nVar),
		pointMax:         make([]int, nVar),
		pointMaxCoord:    makeCoordTable(nVar, topo.NDim),
		residBGS:         make([]float64, nVar),
		residMaxBGS:      make([]float64, nVar),
		pointMaxBGS:      make([]int, nVar),
		pointMaxCoordBGS: makeCoordTable(nVar, topo.NDim),
		pending:          make(map[pendingKey]*exchange),
	}
	s.ResetCFLAdapt()
	return
}

func makeCoordTable(nVar, nDim int) (c [][]float64) {
	c = make([][]float64, nVar)
	for i := range c {
		c[i] = make([]float64, nDim)
	}
	return
}

func (s *Solver) Rank() int                 { return s.trans.Rank() }
func (s *Solver) NVar() int                 { return s.nVar }
func (s *Solver) NDim() int                 { return s.nDim }
func (s *Solver) NPoint() int               { return s.nPoint }
func (s *Solver) NPointDomain() int         { return s.nPointDomain }
func (s *Solver) Transport() comm.Transport { return s.trans }

// RegisterNodes binds the physics solver's node storage to the facade.
// It must be called exactly once, at construction of the derived solver.
func (s *Solver) RegisterNodes(nodes Nodes) {
	if s.nodes != nil {
		panic(fmt.Sprintf("solver %q: node storage registered twice", s.Name))
	}
	if nodes == nil {
		panic(fmt.Sprintf("solver %q: node storage must not be nil", s.Name))
	}
	s.nodes = nodes
}

// GetNodes returns the registered node storage. Failure to register is a
// programming error caught here, at first use.
func (s *Solver) GetNodes() Nodes {
	if s.nodes == nil {
		panic(fmt.Sprintf("solver %q: node storage was never registered; "+
			"call RegisterNodes in the derived solver's constructor", s.Name))
	}
	return s.nodes
}

// MinCFL, MaxCFL and AvgCFL report the process-wide local CFL range
// computed by the last AdaptCFLNumber call
func (s *Solver) MinCFL() float64 { return s.minCFL }
func (s *Solver) MaxCFL() float64 { return s.maxCFL }
func (s *Solver) AvgCFL() float64 { return s.avgCFL }

// ResetCFLAdapt clears the CFL trackers ahead of a fresh run or restart.
// Per-point CFL values are untouched; calling it repeatedly is a no-op
// beyond the first call.
func (s *Solver) ResetCFLAdapt() {
	s.minCFL = math.Inf(1)
	s.maxCFL = 0
	s.avgCFL = 0
}
