package solver

import (
	"fmt"

	"github.com/james-bowman/sparse"
)

// SmoothJacobi runs nSweeps point-Jacobi sweeps of Jacobian * LinSysSol
// = LinSysRes, using LinSysAux as the sweep scratch vector. It is the
// facade's built-in smoother; a real Krylov solve is an external
// collaborator that operates on the same containers.
func (s *Solver) SmoothJacobi(nSweeps int) {
	var (
		n   = len(s.LinSysSol)
		csr = s.Jacobian.ToCSR()
	)
	diag := make([]float64, n)
	csr.DoNonZero(func(i, j int, v float64) {
		if i == j {
			diag[i] = v
		}
	})
	for i := 0; i < n; i++ {
		if diag[i] == 0 {
			panic(fmt.Sprintf("rank %d solver %q: zero diagonal at row %d of the Jacobian",
				s.Rank(), s.Name, i))
		}
	}
	for sweep := 0; sweep < nSweeps; sweep++ {
		copy(s.LinSysAux, s.LinSysRes)
		csr.DoNonZero(func(i, j int, v float64) {
			if i != j {
				s.LinSysAux[i] -= v * s.LinSysSol[j]
			}
		})
		for i := 0; i < n; i++ {
			s.LinSysSol[i] = s.LinSysAux[i] / diag[i]
		}
	}
}

// ZeroLinearSystem clears the containers ahead of a fresh assembly
func (s *Solver) ZeroLinearSystem() {
	for i := range s.LinSysSol {
		s.LinSysSol[i] = 0
		s.LinSysRes[i] = 0
		s.LinSysAux[i] = 0
	}
	n := len(s.LinSysSol)
	s.Jacobian = sparse.NewDOK(n, n)
}
