package solver

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/notargets/gofvm/comm"
	"github.com/notargets/gofvm/config"
	"github.com/notargets/gofvm/mesh"
)

// runRanks executes body once per rank on its own goroutine and joins
func runRanks(size int, body func(rank int, tr comm.Transport)) {
	trans := comm.NewCluster(size)
	var wg sync.WaitGroup
	for rank := 0; rank < size; rank++ {
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()
			body(rank, trans[rank])
		}(rank)
	}
	wg.Wait()
}

func newTestSolver(tr comm.Transport, topo *mesh.Topology, cfg *config.Parameters, nVar int) *Solver {
	s := New("test", tr, topo, cfg, nVar)
	s.RegisterNodes(NewNodes(topo.NPoint, nVar, topo.NDim, cfg.CFL))
	return s
}

// The end-to-end scenario: 2 ranks, 10 points split 5/5, stride-1
// quantity, owned values 1..5 and 6..10, the points either side of the
// cut mutually halo. After one exchange each side holds the other's
// boundary value.
func TestHaloExchangeEndToEnd(t *testing.T) {
	gm := mesh.NewLinearMesh(10, 2, 1)
	gm.RequireHalo(0, 5)
	gm.RequireHalo(1, 4)
	topos, err := gm.Partition(2)
	assert.NoError(t, err)
	cfg := config.Defaults()

	runRanks(2, func(rank int, tr comm.Transport) {
		topo := topos[rank]
		s := newTestSolver(tr, topo, cfg, 1)
		nodes := s.GetNodes()
		for i := 0; i < topo.NPointDomain; i++ {
			nodes.SetMaxEigenvalue(i, float64(topo.GlobalIndex[i]+1))
		}
		s.InitiateComms(topo, cfg, CommMaxEigenvalue)
		s.CompleteComms(topo, cfg, CommMaxEigenvalue)

		// Local index 5 is the halo slot on both ranks
		if rank == 0 {
			assert.Equal(t, 6.0, nodes.MaxEigenvalue(5))
		} else {
			assert.Equal(t, 5.0, nodes.MaxEigenvalue(5))
		}
	})
}

// Scalar and vector kinds arrive bit-identical through an ordinary
// (non-periodic) exchange
func TestHaloExchangeAllKinds(t *testing.T) {
	const (
		nVar = 3
		nDim = 2
	)
	gm := mesh.NewLinearMesh(8, 2, nDim)
	gm.RequireHalo(0, 4)
	gm.RequireHalo(1, 3)
	topos, err := gm.Partition(2)
	assert.NoError(t, err)
	cfg := config.Defaults()

	kinds := []CommKind{
		CommSolution, CommSolutionOld, CommUndividedLaplacian, CommSolutionLimiter,
		CommMaxEigenvalue, CommSensor, CommSolutionGradient, CommGridVelocity,
	}

	// A distinct fill per (point, kind, slot) so any indexing slip shows
	fill := func(g, kind, slot int) float64 {
		return float64(1000*g + 100*kind + slot)
	}
	runRanks(2, func(rank int, tr comm.Transport) {
		topo := topos[rank]
		s := newTestSolver(tr, topo, cfg, nVar)
		nodes := s.GetNodes()
		for i := 0; i < topo.NPointDomain; i++ {
			g := topo.GlobalIndex[i]
			for iVar := 0; iVar < nVar; iVar++ {
				nodes.Solution(i)[iVar] = fill(g, 0, iVar)
				nodes.SolutionOld(i)[iVar] = fill(g, 1, iVar)
				nodes.UndividedLaplacian(i)[iVar] = fill(g, 2, iVar)
				nodes.Limiter(i)[iVar] = fill(g, 3, iVar)
				for iDim := 0; iDim < nDim; iDim++ {
					nodes.Gradient(i, iVar)[iDim] = fill(g, 6, iVar*nDim+iDim)
				}
			}
			nodes.SetMaxEigenvalue(i, fill(g, 4, 0))
			nodes.SetSensor(i, fill(g, 5, 0))
			for iDim := 0; iDim < nDim; iDim++ {
				nodes.GridVelocity(i)[iDim] = fill(g, 7, iDim)
			}
		}
		for _, k := range kinds {
			s.InitiateComms(topo, cfg, k)
			s.CompleteComms(topo, cfg, k)
		}

		// Every halo copy now equals what its owner holds
		for i := topo.NPointDomain; i < topo.NPoint; i++ {
			g := topo.GlobalIndex[i]
			for iVar := 0; iVar < nVar; iVar++ {
				assert.Equal(t, fill(g, 0, iVar), nodes.Solution(i)[iVar])
				assert.Equal(t, fill(g, 1, iVar), nodes.SolutionOld(i)[iVar])
				assert.Equal(t, fill(g, 2, iVar), nodes.UndividedLaplacian(i)[iVar])
				assert.Equal(t, fill(g, 3, iVar), nodes.Limiter(i)[iVar])
				for iDim := 0; iDim < nDim; iDim++ {
					assert.Equal(t, fill(g, 6, iVar*nDim+iDim), nodes.Gradient(i, iVar)[iDim])
				}
			}
			assert.Equal(t, fill(g, 4, 0), nodes.MaxEigenvalue(i))
			assert.Equal(t, fill(g, 5, 0), nodes.Sensor(i))
			for iDim := 0; iDim < nDim; iDim++ {
				assert.Equal(t, fill(g, 7, iDim), nodes.GridVelocity(i)[iDim])
			}
		}
	})
}

// A partition with zero halo points completes the exchange through the
// zero-length message path without error
func TestHaloExchangeZeroHalo(t *testing.T) {
	{ // Single rank, no neighbors at all
		gm := mesh.NewLinearMesh(5, 1, 1)
		topos, err := gm.Partition(1)
		assert.NoError(t, err)
		cfg := config.Defaults()
		runRanks(1, func(rank int, tr comm.Transport) {
			s := newTestSolver(tr, topos[0], cfg, 1)
			s.InitiateComms(topos[0], cfg, CommSolution)
			s.CompleteComms(topos[0], cfg, CommSolution)
		})
	}
	{ // One-sided: rank 1 needs rank 0's point but not vice versa. The
		// counterpart messages are zero-length, not skipped.
		gm := mesh.NewLinearMesh(6, 2, 1)
		gm.RequireHalo(1, 2)
		topos, err := gm.Partition(2)
		assert.NoError(t, err)
		cfg := config.Defaults()
		runRanks(2, func(rank int, tr comm.Transport) {
			topo := topos[rank]
			s := newTestSolver(tr, topo, cfg, 1)
			nodes := s.GetNodes()
			for i := 0; i < topo.NPointDomain; i++ {
				nodes.Solution(i)[0] = float64(topo.GlobalIndex[i])
			}
			s.InitiateComms(topo, cfg, CommSolution)
			s.CompleteComms(topo, cfg, CommSolution)
			if rank == 1 {
				assert.Equal(t, 2.0, nodes.Solution(topo.NPointDomain)[0])
			}
		})
	}
}

func TestCommProtocolMisuse(t *testing.T) {
	gm := mesh.NewLinearMesh(4, 1, 1)
	topos, _ := gm.Partition(1)
	cfg := config.Defaults()
	trans := comm.NewCluster(1)
	topo := topos[0]

	{ // Completing without initiating
		s := newTestSolver(trans[0], topo, cfg, 1)
		assert.Panics(t, func() {
			s.CompleteComms(topo, cfg, CommSolution)
		})
	}
	{ // Double-initiating the same kind
		s := newTestSolver(trans[0], topo, cfg, 1)
		s.InitiateComms(topo, cfg, CommSolution)
		assert.Panics(t, func() {
			s.InitiateComms(topo, cfg, CommSolution)
		})
	}
	{ // A different kind is a different stream and is fine
		s := newTestSolver(trans[0], topo, cfg, 1)
		s.InitiateComms(topo, cfg, CommSolution)
		s.InitiateComms(topo, cfg, CommSensor)
		s.CompleteComms(topo, cfg, CommSensor)
		s.CompleteComms(topo, cfg, CommSolution)
	}
	{ // Complete clears the in-flight state; the next cycle is legal
		s := newTestSolver(trans[0], topo, cfg, 1)
		s.InitiateComms(topo, cfg, CommSolution)
		s.CompleteComms(topo, cfg, CommSolution)
		s.InitiateComms(topo, cfg, CommSolution)
		s.CompleteComms(topo, cfg, CommSolution)
	}
}

// A receive list inconsistent with what the sender packed is partition
// corruption and fatal
func TestCommBufferSizeMismatch(t *testing.T) {
	gm := mesh.NewLinearMesh(6, 2, 1)
	gm.RequireHalo(0, 3)
	gm.RequireHalo(1, 2)
	topos, err := gm.Partition(2)
	assert.NoError(t, err)
	cfg := config.Defaults()

	// Corrupt rank 1's view: it expects two halo points from rank 0
	// while rank 0 only packs one
	topos[1].NPoint++
	topos[1].GlobalIndex = append(topos[1].GlobalIndex, 1)
	topos[1].Coords = append(topos[1].Coords, []float64{1})
	topos[1].RecvIndex[0] = append(topos[1].RecvIndex[0], topos[1].NPoint-1)

	panicked := make([]bool, 2)
	runRanks(2, func(rank int, tr comm.Transport) {
		topo := topos[rank]
		s := newTestSolver(tr, topo, cfg, 1)
		defer func() {
			if r := recover(); r != nil {
				panicked[rank] = true
			}
		}()
		s.InitiateComms(topo, cfg, CommSolution)
		s.CompleteComms(topo, cfg, CommSolution)
	})
	assert.False(t, panicked[0])
	assert.True(t, panicked[1])
}

func TestGetNodesUnregistered(t *testing.T) {
	gm := mesh.NewLinearMesh(4, 1, 1)
	topos, _ := gm.Partition(1)
	trans := comm.NewCluster(1)
	s := New("bare", trans[0], topos[0], config.Defaults(), 1)

	// Construction succeeds; the failure surfaces at first use
	assert.Panics(t, func() { s.GetNodes() })
	assert.Panics(t, func() {
		s.InitiateComms(topos[0], config.Defaults(), CommSolution)
	})

	s.RegisterNodes(NewNodes(topos[0].NPoint, 1, 1, 1))
	assert.NotNil(t, s.GetNodes())
	assert.Panics(t, func() {
		s.RegisterNodes(NewNodes(topos[0].NPoint, 1, 1, 1))
	})
}
