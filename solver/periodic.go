package solver

import (
	"fmt"
	"sort"

	"github.com/notargets/gofvm/config"
	"github.com/notargets/gofvm/mesh"
)

// InitiatePeriodicComms launches the exchange for one periodic marker
// pair. Donor-side values are packed with the pair's rigid rotation
// already applied to vector-valued kinds, so the receiver unpacks values
// in its own frame. The transform comes from the pair index passed in,
// never inferred from the data.
//
// A rank holding neither donor nor receiver vertices of the pair
// participates with no messages at all; a rank holding only one side
// still posts its zero-length counterpart so send/receive pairing stays
// symmetric.
func (s *Solver) InitiatePeriodicComms(topo *mesh.Topology, cfg *config.Parameters,
	pairIdx int, kind CommKind) {
	var (
		pair   = s.periodicPair(topo, pairIdx)
		key    = pendingKey{kind: kind, pair: pairIdx}
		stride = kind.Stride(s.nVar, s.nDim)
		nodes  = s.GetNodes()
	)
	if _, busy := s.pending[key]; busy {
		panic(fmt.Sprintf("rank %d solver %q: periodic %v exchange for pair %d "+
			"initiated while a previous one is still in flight",
			s.Rank(), s.Name, kind, pairIdx))
	}
	ex := &exchange{
		recvs:  make(map[int]chan []float64),
		counts: make(map[int]int),
	}
	for _, nbr := range periodicNeighbors(pair) {
		donorIdx := pair.Donor[nbr]
		buf := make([]float64, len(donorIdx)*stride)
		for n, ip := range donorIdx {
			s.pack(nodes, kind, ip, buf[n*stride:(n+1)*stride], pair)
		}
		ex.sends.Add(1)
		go func(nbr int, buf []float64) {
			defer ex.sends.Done()
			s.trans.Send(nbr, periodicTag(pairIdx, kind), buf)
		}(nbr, buf)

		ch := make(chan []float64, 1)
		go func(nbr int) {
			ch <- s.trans.Recv(nbr, periodicTag(pairIdx, kind))
		}(nbr)
		ex.recvs[nbr] = ch
		ex.counts[nbr] = len(pair.Receiver[nbr])
	}
	s.pending[key] = ex
}

// CompletePeriodicComms waits out the transfers of the matching
// InitiatePeriodicComms call and unpacks into the receiver-side points.
// Rotation already happened at pack time.
func (s *Solver) CompletePeriodicComms(topo *mesh.Topology, cfg *config.Parameters,
	pairIdx int, kind CommKind) {
	var (
		pair   = s.periodicPair(topo, pairIdx)
		key    = pendingKey{kind: kind, pair: pairIdx}
		stride = kind.Stride(s.nVar, s.nDim)
		nodes  = s.GetNodes()
	)
	ex, ok := s.pending[key]
	if !ok {
		panic(fmt.Sprintf("rank %d solver %q: completing a periodic %v exchange "+
			"for pair %d that was never initiated", s.Rank(), s.Name, kind, pairIdx))
	}
	for nbr, ch := range ex.recvs {
		buf := <-ch
		want := ex.counts[nbr] * stride
		if len(buf) != want {
			panic(fmt.Sprintf("rank %d solver %q: periodic %v buffer from rank %d "+
				"has %d values, pair %d expects %d; partition data is corrupted",
				s.Rank(), s.Name, kind, nbr, len(buf), pairIdx, want))
		}
		for n, ip := range pair.Receiver[nbr] {
			s.unpack(nodes, kind, ip, buf[n*stride:(n+1)*stride], pair)
		}
	}
	ex.sends.Wait()
	delete(s.pending, key)
}

func (s *Solver) periodicPair(topo *mesh.Topology, pairIdx int) *mesh.PeriodicPair {
	if pairIdx < 0 || pairIdx >= len(topo.PeriodicPairs) {
		panic(fmt.Sprintf("rank %d solver %q: periodic pair index %d outside [0,%d)",
			s.Rank(), s.Name, pairIdx, len(topo.PeriodicPairs)))
	}
	return &topo.PeriodicPairs[pairIdx]
}

// periodicNeighbors returns the ranks this rank exchanges pair data
// with, in ascending order. Unlike ordinary halo neighbors, a rank can
// be its own periodic neighbor when both markers of the pair live on it.
func periodicNeighbors(pair *mesh.PeriodicPair) (nbrs []int) {
	seen := make(map[int]bool)
	for r := range pair.Donor {
		seen[r] = true
	}
	for r := range pair.Receiver {
		seen[r] = true
	}
	for r := range seen {
		nbrs = append(nbrs, r)
	}
	sort.Ints(nbrs)
	return
}
