// Package audio defines the capture contract: fixed-size PCM chunks, the
// callback-side chunker and the device source/stream interfaces.
package audio

import (
	"errors"
	"fmt"
	"time"
)

// Format describes the capture configuration.
type Format struct {
	SampleRate    int
	Channels      int
	ChunkDuration time.Duration
}

// DefaultFormat is 16 kHz mono with 1.5 second chunks.
var DefaultFormat = Format{SampleRate: 16000, Channels: 1, ChunkDuration: 1500 * time.Millisecond}

// ChunkSamples is the number of interleaved int16 samples in one chunk.
func (f Format) ChunkSamples() int {
	return int(int64(f.SampleRate) * f.ChunkDuration.Milliseconds() / 1000 * int64(f.Channels))
}

// Validate reports formats that cannot produce a chunk.
func (f Format) Validate() error {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return fmt.Errorf("invalid format %d Hz x %d channels", f.SampleRate, f.Channels)
	}
	if f.ChunkSamples() <= 0 {
		return fmt.Errorf("chunk duration %s too short", f.ChunkDuration)
	}
	return nil
}

// Chunk is one fixed-length block of signed 16-bit samples. Seq is the
// position of the chunk in its session, starting at zero.
type Chunk struct {
	Seq     uint64
	Samples []int16
}

// Sink receives emitted chunks. Enqueue must not block; false means the
// consumer is gone.
type Sink interface {
	Enqueue(Chunk) bool
}

// Source opens capture streams on an input device.
type Source interface {
	Open(format Format, sink Sink) (Stream, error)
}

// Stream is a live capture stream. Done is closed once the stream has
// terminated, either through Close or because of a device fault reported by
// Err.
type Stream interface {
	Start() error
	Close() error
	Done() <-chan struct{}
	Err() error
}

// ErrNoInputDevice is wrapped by DeviceError when no default input exists.
var ErrNoInputDevice = errors.New("no input device available")

// DeviceError reports a failure to open or run the input device.
type DeviceError struct {
	Op  string
	Err error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("audio device %s: %v", e.Op, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }
