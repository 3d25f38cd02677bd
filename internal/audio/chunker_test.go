package audio

import (
	"testing"
	"time"
)

type recordingSink struct {
	chunks []Chunk
	limit  int
}

func (s *recordingSink) Enqueue(c Chunk) bool {
	if s.limit > 0 && len(s.chunks) >= s.limit {
		return false
	}
	s.chunks = append(s.chunks, c)
	return true
}

func ramp(from, n int) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(from + i)
	}
	return out
}

func TestDefaultFormatChunkSize(t *testing.T) {
	if got := DefaultFormat.ChunkSamples(); got != 24000 {
		t.Fatalf("expected 24000 samples per chunk, got %d", got)
	}
	stereo := Format{SampleRate: 8000, Channels: 2, ChunkDuration: time.Second}
	if got := stereo.ChunkSamples(); got != 16000 {
		t.Fatalf("expected 16000 interleaved samples, got %d", got)
	}
	if err := (Format{SampleRate: 16000, Channels: 1}).Validate(); err == nil {
		t.Fatal("expected zero duration to be rejected")
	}
}

func TestChunkerAccumulatesAcrossWrites(t *testing.T) {
	sink := &recordingSink{}
	c := NewChunker(4, sink)

	c.Write(ramp(0, 3))
	if len(sink.chunks) != 0 {
		t.Fatalf("expected no chunk yet, got %d", len(sink.chunks))
	}
	if c.Pending() != 3 {
		t.Fatalf("expected 3 pending samples, got %d", c.Pending())
	}
	c.Write(ramp(3, 2))
	if len(sink.chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(sink.chunks))
	}
	want := []int16{0, 1, 2, 3}
	for i, s := range sink.chunks[0].Samples {
		if s != want[i] {
			t.Fatalf("sample %d: expected %d, got %d", i, want[i], s)
		}
	}
	if c.Pending() != 1 {
		t.Fatalf("expected leftover sample, got %d", c.Pending())
	}
}

func TestChunkerEmitsSeveralChunksPerWrite(t *testing.T) {
	sink := &recordingSink{}
	c := NewChunker(4, sink)
	c.Write(ramp(0, 10))

	if len(sink.chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(sink.chunks))
	}
	for i, chunk := range sink.chunks {
		if chunk.Seq != uint64(i) {
			t.Fatalf("chunk %d has seq %d", i, chunk.Seq)
		}
		if len(chunk.Samples) != 4 {
			t.Fatalf("chunk %d has %d samples", i, len(chunk.Samples))
		}
		if chunk.Samples[0] != int16(i*4) {
			t.Fatalf("chunk %d starts at %d", i, chunk.Samples[0])
		}
	}
	if c.Emitted() != 2 {
		t.Fatalf("expected 2 emitted, got %d", c.Emitted())
	}
}

func TestChunkerDoesNotAliasInput(t *testing.T) {
	sink := &recordingSink{}
	c := NewChunker(2, sink)
	in := []int16{7, 8}
	c.Write(in)
	in[0] = 0
	if sink.chunks[0].Samples[0] != 7 {
		t.Fatal("emitted chunk must not share memory with callback input")
	}
}

func TestChunkerLatchesOffWhenSinkRejects(t *testing.T) {
	sink := &recordingSink{limit: 1}
	c := NewChunker(2, sink)
	c.Write(ramp(0, 6))
	if !c.Stopped() {
		t.Fatal("expected chunker to stop after rejected send")
	}
	if len(sink.chunks) != 1 {
		t.Fatalf("expected 1 accepted chunk, got %d", len(sink.chunks))
	}
	sink.limit = 0
	c.Write(ramp(0, 4))
	if len(sink.chunks) != 1 {
		t.Fatal("stopped chunker must ignore further input")
	}
}
