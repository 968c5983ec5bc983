// Package comm provides an MPI-like, rank-addressed message transport for
// partitioned solvers. Calls are blocking in the MPI tradition; callers
// achieve non-blocking behavior with goroutines. The in-process
// ChannelTransport lets a multi-rank run or test execute inside a single
// process with one goroutine per rank.
package comm

// Transport is the point-to-point and collective surface a solver rank
// communicates through. Rank identity is carried by the handle, not by
// ambient process state, so engines built on it are testable without a
// live multi-process environment.
//
// The transport is assumed reliable and ordered per (source, dest, tag)
// stream. Message loss or a hung peer is a fault of the layer beneath,
// not handled here.
type Transport interface {
	Rank() int
	Size() int

	// Send delivers data to dest under tag. It may block until the
	// destination's mailbox accepts the message. Zero-length messages
	// are valid and participate in matching like any other.
	Send(dest, tag int, data []float64)

	// Recv blocks until a message from source under tag arrives and
	// returns its payload.
	Recv(source, tag int) []float64

	// Barrier blocks until every rank has entered it.
	Barrier()

	// AllreduceSum element-wise sums vals across all ranks; every rank
	// receives the full result. All ranks must pass equal-length slices.
	AllreduceSum(vals []float64) []float64

	AllreduceMin(v float64) float64
	AllreduceMax(v float64) float64

	// AllreduceMaxLoc resolves, per entry, the maximum value across
	// ranks together with its location. Cross-rank ties resolve to the
	// lowest global index, making the result deterministic regardless
	// of rank count or arrival order.
	AllreduceMaxLoc(in []MaxLoc) []MaxLoc
}

// MaxLoc is one entry of a max-with-location reduction: the candidate
// value, the global index of the point it occurred at, and that point's
// coordinates for diagnostics.
type MaxLoc struct {
	Value float64
	Index int
	Coord []float64
}

// takes reports whether candidate b replaces a under the max-with-
// lowest-index rule
func takes(a, b MaxLoc) bool {
	if b.Value != a.Value {
		return b.Value > a.Value
	}
	return b.Index < a.Index
}
