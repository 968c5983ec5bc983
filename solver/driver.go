package solver

import (
	"fmt"

	"github.com/notargets/gofvm/config"
	"github.com/notargets/gofvm/mesh"
)

// Physics is a concrete solver as the driver sees it: the facade plus
// whatever capability interfaces the type also implements
type Physics interface {
	Base() *Solver
}

// Driver advances one rank's solver through nonlinear iterations:
// preprocessing, boundary conditions, residual assembly, halo exchange
// of the configured kinds, solution update, residual finalization and
// CFL adaptation, until convergence or the iteration cap.
type Driver struct {
	Topo    *mesh.Topology
	Cfg     *config.Parameters
	Physics Physics

	kinds []CommKind
}

func NewDriver(topo *mesh.Topology, cfg *config.Parameters, phys Physics) (d *Driver, err error) {
	d = &Driver{Topo: topo, Cfg: cfg, Physics: phys}
	for _, name := range cfg.CommKinds {
		k, err := ParseCommKind(name)
		if err != nil {
			return nil, err
		}
		d.kinds = append(d.kinds, k)
	}
	if _, ok := phys.(ResidualContributor); !ok {
		return nil, fmt.Errorf("solver %q assembles no residuals; nothing to advance",
			phys.Base().Name)
	}
	if _, ok := phys.(SolutionUpdater); !ok {
		return nil, fmt.Errorf("solver %q cannot update its solution", phys.Base().Name)
	}
	return
}

// Iterate runs one nonlinear iteration and returns the finalized log10
// RMS residual of variable 0
func (d *Driver) Iterate(iter int) (resLog10 float64, err error) {
	var (
		s    = d.Physics.Base()
		topo = d.Topo
		cfg  = d.Cfg
	)
	s.ResetResiduals()
	if p, ok := d.Physics.(Preprocessor); ok {
		p.Preprocessing(topo, cfg, iter)
	}
	if bc, ok := d.Physics.(BoundaryConditionHandler); ok {
		for im := range topo.Markers {
			bc.ApplyBoundaryCondition(topo, cfg, im)
		}
	}
	d.Physics.(ResidualContributor).AssembleResiduals(topo, cfg)
	if ls, ok := d.Physics.(LinearSolveHandler); ok {
		ls.SolveLinearSystem(topo, cfg)
	}
	d.Physics.(SolutionUpdater).UpdateSolution(topo, cfg)

	// Updated owned values move to the neighbors' halo copies before
	// anyone reads them next iteration
	for _, k := range d.kinds {
		s.InitiateComms(topo, cfg, k)
		s.CompleteComms(topo, cfg, k)
	}
	for ip := range topo.PeriodicPairs {
		for _, k := range d.kinds {
			s.InitiatePeriodicComms(topo, cfg, ip, k)
			s.CompletePeriodicComms(topo, cfg, ip, k)
		}
	}

	if err = s.SetResidualRMS(topo, cfg); err != nil {
		return 0, err
	}
	if cfg.Multizone {
		s.ComputeResidualMultizone(topo, cfg)
		if err = s.SetResidualBGS(topo, cfg); err != nil {
			return 0, err
		}
	}
	AdaptCFLNumber([]*mesh.Topology{topo}, []*Solver{s}, cfg)
	if p, ok := d.Physics.(Postprocessor); ok {
		p.Postprocessing(topo, cfg, iter)
	}
	return s.ResRMSLog10(0), nil
}

// Run iterates to convergence or the configured cap. History lines go
// to stdout on rank 0 when Verbose is set.
func (d *Driver) Run() (converged bool, iters int, err error) {
	var (
		s = d.Physics.Base()
	)
	for iter := 0; iter < d.Cfg.MaxIterations; iter++ {
		resLog10, err := d.Iterate(iter)
		if err != nil {
			return false, iter, err
		}
		if d.Cfg.Verbose && s.Rank() == 0 {
			pt, _ := s.PointMax(0)
			fmt.Printf("iter %5d  log10(res) %10.6f  max at point %d  CFL [%.3g, %.3g, avg %.3g]\n",
				iter, resLog10, pt, s.MinCFL(), s.MaxCFL(), s.AvgCFL())
		}
		if resLog10 < d.Cfg.ConvergenceTol {
			return true, iter + 1, nil
		}
	}
	return false, d.Cfg.MaxIterations, nil
}
