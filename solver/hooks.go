package solver

import (
	"github.com/notargets/gofvm/config"
	"github.com/notargets/gofvm/mesh"
)

// Physics-specific behavior plugs into the iteration driver through
// small capability interfaces. A concrete solver implements only what it
// needs; the driver probes with type assertions instead of dispatching
// through a wall of overridable no-ops.

// ResidualContributor assembles the spatial residual for the iteration.
// Mandatory for any solver the driver can advance.
type ResidualContributor interface {
	AssembleResiduals(topo *mesh.Topology, cfg *config.Parameters)
}

// SolutionUpdater applies the assembled residuals to the solution,
// setting each point's under-relaxation factor as it goes. Mandatory.
type SolutionUpdater interface {
	UpdateSolution(topo *mesh.Topology, cfg *config.Parameters)
}

// Preprocessor runs before residual assembly each iteration
type Preprocessor interface {
	Preprocessing(topo *mesh.Topology, cfg *config.Parameters, iter int)
}

// Postprocessor runs after residual finalization each iteration
type Postprocessor interface {
	Postprocessing(topo *mesh.Topology, cfg *config.Parameters, iter int)
}

// BoundaryConditionHandler imposes a boundary condition on one marker.
// The driver calls it once per marker per iteration, before assembly.
type BoundaryConditionHandler interface {
	ApplyBoundaryCondition(topo *mesh.Topology, cfg *config.Parameters, marker int)
}

// LinearSolveHandler performs the implicit linear solve on the facade's
// containers. Solvers without one are treated as explicit.
type LinearSolveHandler interface {
	SolveLinearSystem(topo *mesh.Topology, cfg *config.Parameters)
}
