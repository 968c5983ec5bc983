package solver

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/notargets/gofvm/comm"
	"github.com/notargets/gofvm/config"
	"github.com/notargets/gofvm/mesh"
)

func TestSmoothJacobi(t *testing.T) {
	gm := mesh.NewLinearMesh(3, 1, 1)
	topos, _ := gm.Partition(1)
	cfg := config.Defaults()
	trans := comm.NewCluster(1)
	s := newTestSolver(trans[0], topos[0], cfg, 1)

	// Diagonally dominant 3x3 system with known solution {1, 2, 3}
	s.Jacobian.Set(0, 0, 4)
	s.Jacobian.Set(0, 1, -1)
	s.Jacobian.Set(1, 0, -1)
	s.Jacobian.Set(1, 1, 4)
	s.Jacobian.Set(1, 2, -1)
	s.Jacobian.Set(2, 1, -1)
	s.Jacobian.Set(2, 2, 4)
	s.LinSysRes[0] = 4*1 - 2
	s.LinSysRes[1] = -1 + 4*2 - 3
	s.LinSysRes[2] = -2 + 4*3

	s.SmoothJacobi(200)
	assert.InDelta(t, 1.0, s.LinSysSol[0], 1e-10)
	assert.InDelta(t, 2.0, s.LinSysSol[1], 1e-10)
	assert.InDelta(t, 3.0, s.LinSysSol[2], 1e-10)

	// A zero diagonal is an assembly bug and fatal
	s.ZeroLinearSystem()
	s.Jacobian.Set(0, 1, 1)
	assert.Panics(t, func() { s.SmoothJacobi(1) })
}
