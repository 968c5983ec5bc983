package comm

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

// runRanks executes body once per rank, each on its own goroutine, and
// joins before returning
func runRanks(trans []*ChannelTransport, body func(t *ChannelTransport)) {
	var wg sync.WaitGroup
	for _, tr := range trans {
		wg.Add(1)
		go func(tr *ChannelTransport) {
			defer wg.Done()
			body(tr)
		}(tr)
	}
	wg.Wait()
}

func TestPointToPoint(t *testing.T) {
	trans := NewCluster(2)
	runRanks(trans, func(tr *ChannelTransport) {
		switch tr.Rank() {
		case 0:
			tr.Send(1, 7, []float64{1, 2, 3})
			got := tr.Recv(1, 7)
			assert.Equal(t, []float64{4, 5}, got)
		case 1:
			tr.Send(0, 7, []float64{4, 5})
			got := tr.Recv(0, 7)
			assert.Equal(t, []float64{1, 2, 3}, got)
		}
	})

	{ // Zero-length messages match like any other
		trans := NewCluster(2)
		runRanks(trans, func(tr *ChannelTransport) {
			other := 1 - tr.Rank()
			tr.Send(other, 3, nil)
			got := tr.Recv(other, 3)
			assert.Len(t, got, 0)
		})
	}

	{ // Send to self is legal; periodic pairs on one rank rely on it
		trans := NewCluster(1)
		trans[0].Send(0, 9, []float64{42})
		assert.Equal(t, []float64{42}, trans[0].Recv(0, 9))
	}

	{ // Buffer reuse after Send must not corrupt the message
		trans := NewCluster(2)
		runRanks(trans, func(tr *ChannelTransport) {
			if tr.Rank() == 0 {
				buf := []float64{1, 1}
				tr.Send(1, 0, buf)
				buf[0] = -99
				tr.Send(1, 0, []float64{2, 2})
			} else {
				assert.Equal(t, []float64{1, 1}, tr.Recv(0, 0))
				assert.Equal(t, []float64{2, 2}, tr.Recv(0, 0))
			}
		})
	}
}

func TestStreamOrdering(t *testing.T) {
	// Messages on one (source, dest, tag) stream arrive in send order
	trans := NewCluster(2)
	runRanks(trans, func(tr *ChannelTransport) {
		if tr.Rank() == 0 {
			for i := 0; i < mailboxDepth; i++ {
				tr.Send(1, 0, []float64{float64(i)})
			}
		} else {
			for i := 0; i < mailboxDepth; i++ {
				got := tr.Recv(0, 0)
				assert.Equal(t, float64(i), got[0])
			}
		}
	})
}

func TestCollectives(t *testing.T) {
	const size = 4
	trans := NewCluster(size)

	runRanks(trans, func(tr *ChannelTransport) {
		rank := float64(tr.Rank())
		sum := tr.AllreduceSum([]float64{rank, 1})
		assert.Equal(t, []float64{0 + 1 + 2 + 3, size}, sum)

		assert.Equal(t, 0.0, tr.AllreduceMin(rank))
		assert.Equal(t, 3.0, tr.AllreduceMax(rank))

		tr.Barrier()

		// Back-to-back collectives must not interleave
		again := tr.AllreduceSum([]float64{1})
		assert.Equal(t, []float64{size}, again)
	})
}

func TestAllreduceMaxLoc(t *testing.T) {
	const size = 3
	trans := NewCluster(size)
	runRanks(trans, func(tr *ChannelTransport) {
		// Entry 0: rank 1 has the strict maximum.
		// Entry 1: ranks 0 and 2 tie on value; the lower global index wins.
		in := []MaxLoc{
			{Value: float64(tr.Rank()), Index: 100 + tr.Rank(), Coord: []float64{float64(tr.Rank()), 0}},
			{Value: 5, Index: 50, Coord: []float64{1, 2}},
		}
		if tr.Rank() == 1 {
			in[0].Value = 10
			in[1] = MaxLoc{Value: 4, Index: 1, Coord: []float64{9, 9}}
		}
		if tr.Rank() == 2 {
			in[1].Index = 40
		}
		out := tr.AllreduceMaxLoc(in)
		assert.Equal(t, 10.0, out[0].Value)
		assert.Equal(t, 101, out[0].Index)
		assert.Equal(t, []float64{1, 0}, out[0].Coord)

		assert.Equal(t, 5.0, out[1].Value)
		assert.Equal(t, 40, out[1].Index) // Tie resolves to the lowest index
	})
}
