package comm

import (
	"fmt"
	"sync"
)

// Reserved tags for collective operations. Solver point-to-point tags
// must be non-negative.
const (
	tagReduce = -1 - iota
	tagBcast
	tagBarrier
)

// mailboxDepth bounds in-flight messages per (source, dest, tag) stream.
// The exchange protocol allows one outstanding message per stream, so
// this never backs up in correct use.
const mailboxDepth = 8

type boxKey struct {
	src, dst, tag int
}

// Cluster is the shared state behind a set of ChannelTransports: one
// FIFO mailbox per (source, dest, tag) stream, created on first use.
type Cluster struct {
	size  int
	mu    sync.Mutex
	boxes map[boxKey]chan []float64
}

// NewCluster creates an in-process cluster of size ranks and returns one
// transport handle per rank. Each rank's goroutine uses its own handle;
// handles must not be shared across goroutines.
func NewCluster(size int) (trans []*ChannelTransport) {
	if size < 1 {
		panic(fmt.Sprintf("cluster size %d must be at least 1", size))
	}
	c := &Cluster{
		size:  size,
		boxes: make(map[boxKey]chan []float64),
	}
	trans = make([]*ChannelTransport, size)
	for rank := 0; rank < size; rank++ {
		trans[rank] = &ChannelTransport{rank: rank, cluster: c}
	}
	return
}

func (c *Cluster) box(k boxKey) chan []float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.boxes[k]
	if !ok {
		b = make(chan []float64, mailboxDepth)
		c.boxes[k] = b
	}
	return b
}

// ChannelTransport is one rank's handle on an in-process Cluster
type ChannelTransport struct {
	rank    int
	cluster *Cluster
}

func (t *ChannelTransport) Rank() int { return t.rank }
func (t *ChannelTransport) Size() int { return t.cluster.size }

func (t *ChannelTransport) Send(dest, tag int, data []float64) {
	if dest < 0 || dest >= t.cluster.size {
		panic(fmt.Sprintf("rank %d: send to rank %d outside cluster of size %d",
			t.rank, dest, t.cluster.size))
	}
	// Copy so the sender may reuse its buffer immediately
	msg := make([]float64, len(data))
	copy(msg, data)
	t.cluster.box(boxKey{t.rank, dest, tag}) <- msg
}

func (t *ChannelTransport) Recv(source, tag int) []float64 {
	if source < 0 || source >= t.cluster.size {
		panic(fmt.Sprintf("rank %d: recv from rank %d outside cluster of size %d",
			t.rank, source, t.cluster.size))
	}
	return <-t.cluster.box(boxKey{source, t.rank, tag})
}

// Collectives are built from the point-to-point streams: gather to rank
// 0, combine, broadcast. Every rank issues collectives in the same
// program order, and each stream is FIFO, so back-to-back collectives
// cannot interleave.

func (t *ChannelTransport) Barrier() {
	t.fanInOut(tagBarrier, nil, func(bufs [][]float64) []float64 { return nil })
}

func (t *ChannelTransport) AllreduceSum(vals []float64) []float64 {
	return t.fanInOut(tagReduce, vals, func(bufs [][]float64) []float64 {
		out := make([]float64, len(vals))
		copy(out, vals)
		for _, b := range bufs {
			if len(b) != len(out) {
				panic(fmt.Sprintf("allreduce length mismatch: got %d, want %d", len(b), len(out)))
			}
			for i, v := range b {
				out[i] += v
			}
		}
		return out
	})
}

func (t *ChannelTransport) AllreduceMin(v float64) float64 {
	out := t.fanInOut(tagReduce, []float64{v}, func(bufs [][]float64) []float64 {
		m := v
		for _, b := range bufs {
			if b[0] < m {
				m = b[0]
			}
		}
		return []float64{m}
	})
	return out[0]
}

func (t *ChannelTransport) AllreduceMax(v float64) float64 {
	out := t.fanInOut(tagReduce, []float64{v}, func(bufs [][]float64) []float64 {
		m := v
		for _, b := range bufs {
			if b[0] > m {
				m = b[0]
			}
		}
		return []float64{m}
	})
	return out[0]
}

func (t *ChannelTransport) AllreduceMaxLoc(in []MaxLoc) []MaxLoc {
	enc := encodeMaxLoc(in)
	out := t.fanInOut(tagReduce, enc, func(bufs [][]float64) []float64 {
		acc := decodeMaxLoc(enc)
		for _, b := range bufs {
			cand := decodeMaxLoc(b)
			if len(cand) != len(acc) {
				panic(fmt.Sprintf("maxloc length mismatch: got %d, want %d", len(cand), len(acc)))
			}
			for i := range acc {
				if takes(acc[i], cand[i]) {
					acc[i] = cand[i]
				}
			}
		}
		return encodeMaxLoc(acc)
	})
	return decodeMaxLoc(out)
}

// fanInOut runs one collective: rank 0 receives every other rank's
// payload, combines, and broadcasts the result back.
func (t *ChannelTransport) fanInOut(tag int, payload []float64,
	combine func(bufs [][]float64) []float64) []float64 {
	var (
		size = t.cluster.size
	)
	if t.rank != 0 {
		t.Send(0, tag, payload)
		return t.Recv(0, tagBcast)
	}
	bufs := make([][]float64, 0, size-1)
	for src := 1; src < size; src++ {
		bufs = append(bufs, t.Recv(src, tag))
	}
	result := combine(bufs)
	for dst := 1; dst < size; dst++ {
		t.Send(dst, tagBcast, result)
	}
	return result
}

// Wire layout per entry: value, global index, coordinate count, coords
func encodeMaxLoc(in []MaxLoc) (enc []float64) {
	for _, e := range in {
		enc = append(enc, e.Value, float64(e.Index), float64(len(e.Coord)))
		enc = append(enc, e.Coord...)
	}
	return
}

func decodeMaxLoc(enc []float64) (out []MaxLoc) {
	for i := 0; i < len(enc); {
		e := MaxLoc{Value: enc[i], Index: int(enc[i+1])}
		nc := int(enc[i+2])
		i += 3
		e.Coord = append([]float64(nil), enc[i:i+nc]...)
		i += nc
		out = append(out, e)
	}
	return
}
