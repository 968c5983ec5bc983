package solver

import (
	"fmt"
	"sync"

	"github.com/notargets/gofvm/config"
	"github.com/notargets/gofvm/mesh"
)

// Point-to-point tags: one stream per kind, periodic pairs get their own
// tag space so a periodic exchange never collides with an ordinary halo
// exchange of the same kind.
const periodicTagBase = 1 << 10

func p2pTag(kind CommKind) int { return int(kind) }

func periodicTag(pairIdx int, kind CommKind) int {
	return periodicTagBase + pairIdx*int(numCommKinds) + int(kind)
}

// exchange tracks one in-flight Initiate/Complete pair
type exchange struct {
	sends  sync.WaitGroup
	recvs  map[int]chan []float64 // Neighbor rank -> pending receive
	counts map[int]int            // Neighbor rank -> expected point count
}

// InitiateComms packs the requested quantity for every halo-shared point
// into per-neighbor buffers and launches the sends and receives. It does
// not block. Neighbors that share zero points for this rank still get a
// zero-length message; the handshake stays symmetric.
//
// At most one exchange per kind may be in flight; initiating a second
// before completing the first is a programming error and panics.
func (s *Solver) InitiateComms(topo *mesh.Topology, cfg *config.Parameters, kind CommKind) {
	var (
		key    = pendingKey{kind: kind, pair: -1}
		stride = kind.Stride(s.nVar, s.nDim)
		nodes  = s.GetNodes()
	)
	if _, busy := s.pending[key]; busy {
		panic(fmt.Sprintf("rank %d solver %q: %v exchange initiated while a previous "+
			"one is still in flight", s.Rank(), s.Name, kind))
	}
	ex := &exchange{
		recvs:  make(map[int]chan []float64),
		counts: make(map[int]int),
	}
	for _, nbr := range topo.Neighbors() {
		sendIdx := topo.SendIndex[nbr]
		buf := make([]float64, len(sendIdx)*stride)
		for n, ip := range sendIdx {
			s.pack(nodes, kind, ip, buf[n*stride:(n+1)*stride], nil)
		}
		ex.sends.Add(1)
		go func(nbr int, buf []float64) {
			defer ex.sends.Done()
			s.trans.Send(nbr, p2pTag(kind), buf)
		}(nbr, buf)

		ch := make(chan []float64, 1)
		go func(nbr int) {
			ch <- s.trans.Recv(nbr, p2pTag(kind))
		}(nbr)
		ex.recvs[nbr] = ch
		ex.counts[nbr] = len(topo.RecvIndex[nbr])
	}
	s.pending[key] = ex
}

// CompleteComms blocks until every transfer launched by the matching
// InitiateComms finishes, then unpacks each neighbor's buffer into halo
// storage using this rank's own recv index list. A neighbor's buffer is
// fully received before any of it is unpacked; no ordering is guaranteed
// between neighbors.
func (s *Solver) CompleteComms(topo *mesh.Topology, cfg *config.Parameters, kind CommKind) {
	var (
		key    = pendingKey{kind: kind, pair: -1}
		stride = kind.Stride(s.nVar, s.nDim)
		nodes  = s.GetNodes()
	)
	ex, ok := s.pending[key]
	if !ok {
		panic(fmt.Sprintf("rank %d solver %q: completing a %v exchange that was "+
			"never initiated", s.Rank(), s.Name, kind))
	}
	for nbr, ch := range ex.recvs {
		buf := <-ch
		want := ex.counts[nbr] * stride
		if len(buf) != want {
			panic(fmt.Sprintf("rank %d solver %q: %v buffer from rank %d has %d "+
				"values, topology expects %d; partition data is corrupted",
				s.Rank(), s.Name, kind, nbr, len(buf), want))
		}
		for n, ip := range topo.RecvIndex[nbr] {
			s.unpack(nodes, kind, ip, buf[n*stride:(n+1)*stride], nil)
		}
	}
	ex.sends.Wait()
	delete(s.pending, key)
}

// pack loads one point's quantity into buf. For periodic exchanges the
// pair's rotation is applied here, during packing, so receivers unpack
// values already expressed in their local frame.
func (s *Solver) pack(nodes Nodes, kind CommKind, i int, buf []float64, pair *mesh.PeriodicPair) {
	switch kind {
	case CommSolution:
		copy(buf, nodes.Solution(i))
	case CommSolutionOld:
		copy(buf, nodes.SolutionOld(i))
	case CommUndividedLaplacian:
		copy(buf, nodes.UndividedLaplacian(i))
	case CommSolutionLimiter:
		copy(buf, nodes.Limiter(i))
	case CommMaxEigenvalue:
		buf[0] = nodes.MaxEigenvalue(i)
	case CommSensor:
		buf[0] = nodes.Sensor(i)
	case CommSolutionGradient:
		for iVar := 0; iVar < s.nVar; iVar++ {
			row := nodes.Gradient(i, iVar)
			if pair != nil {
				row = pair.RotateVector(row)
			}
			copy(buf[iVar*s.nDim:(iVar+1)*s.nDim], row)
		}
	case CommGridVelocity:
		v := nodes.GridVelocity(i)
		if pair != nil {
			v = pair.RotateVector(v)
		}
		copy(buf, v)
	default:
		panic(fmt.Sprintf("rank %d solver %q: pack of unknown communication kind %d",
			s.Rank(), s.Name, int(kind)))
	}
}

func (s *Solver) unpack(nodes Nodes, kind CommKind, i int, buf []float64, pair *mesh.PeriodicPair) {
	switch kind {
	case CommSolution:
		nodes.SetSolution(i, buf)
	case CommSolutionOld:
		nodes.SetSolutionOld(i, buf)
	case CommUndividedLaplacian:
		nodes.SetUndividedLaplacian(i, buf)
	case CommSolutionLimiter:
		nodes.SetLimiter(i, buf)
	case CommMaxEigenvalue:
		nodes.SetMaxEigenvalue(i, buf[0])
	case CommSensor:
		nodes.SetSensor(i, buf[0])
	case CommSolutionGradient:
		for iVar := 0; iVar < s.nVar; iVar++ {
			nodes.SetGradient(i, iVar, buf[iVar*s.nDim:(iVar+1)*s.nDim])
		}
	case CommGridVelocity:
		nodes.SetGridVelocity(i, buf)
	default:
		panic(fmt.Sprintf("rank %d solver %q: unpack of unknown communication kind %d",
			s.Rank(), s.Name, int(kind)))
	}
}
