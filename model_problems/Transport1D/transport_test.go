package Transport1D

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/notargets/gofvm/comm"
	"github.com/notargets/gofvm/config"
	"github.com/notargets/gofvm/solver"
)

// The same case must reach the same steady state whatever the rank
// count: inflow value everywhere, halo copies included
func TestTransportSteadyState(t *testing.T) {
	const (
		nGlobal = 24
		inflow  = 1.0
	)
	for _, size := range []int{1, 2, 4} {
		topos, err := BuildTopologies(nGlobal, size)
		assert.NoError(t, err)

		cfg := config.Defaults()
		cfg.NRanks = size
		cfg.MaxIterations = 5000
		cfg.ConvergenceTol = -10

		trans := comm.NewCluster(size)
		var (
			wg    sync.WaitGroup
			convs = make([]bool, size)
			sols  = make([]*Transport, size)
			verrs = make([][]float64, size)
		)
		for rank := 0; rank < size; rank++ {
			wg.Add(1)
			go func(rank int) {
				defer wg.Done()
				c, err := New(trans[rank], topos[rank], cfg, 1.0, inflow)
				assert.NoError(t, err)
				sols[rank] = c
				d, err := solver.NewDriver(topos[rank], cfg, c)
				assert.NoError(t, err)
				conv, _, err := d.Run()
				assert.NoError(t, err)
				convs[rank] = conv
				verrs[rank], err = c.Base().VerificationError(topos[rank], cfg, c)
				assert.NoError(t, err)
			}(rank)
		}
		wg.Wait()

		for rank := 0; rank < size; rank++ {
			assert.True(t, convs[rank], "size %d rank %d did not converge", size, rank)
			topo := topos[rank]
			for i := 0; i < topo.NPoint; i++ {
				assert.InDelta(t, inflow, sols[rank].Solution(i)[0], 1e-4,
					"size %d rank %d point %d", size, rank, i)
			}
			// The steady exact solution is the inflow value everywhere
			assert.InDelta(t, 0.0, verrs[rank][0], 1e-4)
		}
	}
}

// Local CFL numbers grow toward the cap while the solution converges
// smoothly; the trackers reflect the configured bounds
func TestTransportCFLAdaptation(t *testing.T) {
	const size = 2
	topos, err := BuildTopologies(16, size)
	assert.NoError(t, err)

	cfg := config.Defaults()
	cfg.NRanks = size
	cfg.MaxIterations = 400
	cfg.ConvergenceTol = -12
	cfg.CFLAdapt.CFLMax = 2.0

	trans := comm.NewCluster(size)
	var (
		wg   sync.WaitGroup
		sols = make([]*Transport, size)
	)
	for rank := 0; rank < size; rank++ {
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()
			c, err := New(trans[rank], topos[rank], cfg, 1.0, 1.0)
			assert.NoError(t, err)
			sols[rank] = c
			d, err := solver.NewDriver(topos[rank], cfg, c)
			assert.NoError(t, err)
			_, _, err = d.Run()
			assert.NoError(t, err)
		}(rank)
	}
	wg.Wait()

	for rank := 0; rank < size; rank++ {
		s := sols[rank].Base()
		assert.LessOrEqual(t, s.MaxCFL(), cfg.CFLAdapt.CFLMax)
		assert.GreaterOrEqual(t, s.MinCFL(), cfg.CFLAdapt.CFLMin)
		// Near steady state every step is accepted unlimited, so the
		// CFL has climbed to the cap
		assert.Equal(t, cfg.CFLAdapt.CFLMax, s.MaxCFL())
	}
}

func TestBuildTopologies(t *testing.T) {
	topos, err := BuildTopologies(10, 3)
	assert.NoError(t, err)
	assert.Len(t, topos, 3)

	// Every rank except the first carries exactly one halo point, the
	// upwind neighbor of its first owned point
	assert.Equal(t, topos[0].NPoint, topos[0].NPointDomain)
	for rank := 1; rank < 3; rank++ {
		topo := topos[rank]
		assert.Equal(t, topo.NPointDomain+1, topo.NPoint)
		assert.Equal(t, topo.GlobalIndex[0]-1, topo.GlobalIndex[topo.NPointDomain])
	}

	// The inflow marker lives on the rank owning global point 0
	assert.Len(t, topos[0].Markers, 1)
	assert.Equal(t, "inflow", topos[0].Markers[0].Name)
}
