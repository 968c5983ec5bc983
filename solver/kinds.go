// Package solver implements the base abstraction physics solvers build
// on: the halo-exchange engine for point-to-point and periodic
// communication, residual/convergence aggregation across ranks, CFL
// adaptation, and the linear-system containers every implicit solver
// needs.
package solver

import "fmt"

// CommKind selects which per-point quantity an exchange call moves. The
// buffer stride for a kind is fixed for the duration of one call and is
// derived identically on both sides, so no negotiation happens on the
// wire.
type CommKind int

const (
	CommSolution CommKind = iota
	CommSolutionOld
	CommUndividedLaplacian
	CommSolutionLimiter
	CommMaxEigenvalue
	CommSensor
	CommSolutionGradient
	CommGridVelocity

	numCommKinds
)

var kindNames = [numCommKinds]string{
	"Solution",
	"SolutionOld",
	"UndividedLaplacian",
	"SolutionLimiter",
	"MaxEigenvalue",
	"Sensor",
	"SolutionGradient",
	"GridVelocity",
}

func (k CommKind) String() string {
	if k < 0 || k >= numCommKinds {
		return fmt.Sprintf("CommKind(%d)", int(k))
	}
	return kindNames[k]
}

// ParseCommKind resolves a configured kind name
func ParseCommKind(name string) (CommKind, error) {
	for k, n := range kindNames {
		if n == name {
			return CommKind(k), nil
		}
	}
	return 0, fmt.Errorf("unknown communication kind %q", name)
}

// Stride returns the number of scalars moved per point for this kind
func (k CommKind) Stride(nVar, nDim int) int {
	switch k {
	case CommSolution, CommSolutionOld, CommUndividedLaplacian, CommSolutionLimiter:
		return nVar
	case CommMaxEigenvalue, CommSensor:
		return 1
	case CommSolutionGradient:
		return nVar * nDim
	case CommGridVelocity:
		return nDim
	}
	panic(fmt.Sprintf("stride requested for unknown communication kind %d", int(k)))
}
