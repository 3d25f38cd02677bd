package audio

import "sync/atomic"

// Chunker accumulates callback frames into fixed-size chunks. Write is meant to
// be called from a single real-time callback goroutine: it never blocks and
// allocates only one chunk-sized slice per emitted chunk.
type Chunker struct {
	size    int
	acc     []int16
	sink    Sink
	seq     uint64
	stopped atomic.Bool
	emitted atomic.Uint64
}

// NewChunker creates a chunker emitting chunks of size samples into sink.
func NewChunker(size int, sink Sink) *Chunker {
	if size <= 0 {
		size = 1
	}
	return &Chunker{
		size: size,
		acc:  make([]int16, 0, size),
		sink: sink,
	}
}

// Write appends samples and emits one chunk for each full accumulator. Once the
// sink rejects a chunk the chunker latches off and ignores further input.
func (c *Chunker) Write(samples []int16) {
	if c.stopped.Load() {
		return
	}
	for len(samples) > 0 {
		n := c.size - len(c.acc)
		if n > len(samples) {
			n = len(samples)
		}
		c.acc = append(c.acc, samples[:n]...)
		samples = samples[n:]
		if len(c.acc) < c.size {
			return
		}

		out := make([]int16, c.size)
		copy(out, c.acc)
		c.acc = c.acc[:0]
		if !c.sink.Enqueue(Chunk{Seq: c.seq, Samples: out}) {
			c.stopped.Store(true)
			return
		}
		c.seq++
		c.emitted.Add(1)
	}
}

// Stopped reports whether the sink has rejected a chunk.
func (c *Chunker) Stopped() bool { return c.stopped.Load() }

// Emitted returns the number of chunks accepted by the sink.
func (c *Chunker) Emitted() uint64 { return c.emitted.Load() }

// Pending returns the number of samples waiting for a full chunk.
func (c *Chunker) Pending() int { return len(c.acc) }
