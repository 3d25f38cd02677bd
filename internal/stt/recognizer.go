// Package stt turns queued audio chunks into transcript fragments, either with
// an in-process recognizer or through a long-lived recognizer process.
package stt

import (
	"context"
	"fmt"

	"github.com/loqalabs/whisperlite/internal/audio"
)

// TranscriptResult captures recognizer output for one chunk.
type TranscriptResult struct {
	Text     string
	Segments int
}

// Recognizer abstracts in-process STT backends. Transcribe is called for one
// chunk at a time, in chunk order.
type Recognizer interface {
	Transcribe(ctx context.Context, chunk audio.Chunk) (TranscriptResult, error)
	Close() error
}

// RecognizerFunc adapts a function to Recognizer.
type RecognizerFunc func(ctx context.Context, chunk audio.Chunk) (TranscriptResult, error)

func (f RecognizerFunc) Transcribe(ctx context.Context, chunk audio.Chunk) (TranscriptResult, error) {
	return f(ctx, chunk)
}

func (f RecognizerFunc) Close() error { return nil }

// ChunkSource is the consumer side of the chunk queue.
type ChunkSource interface {
	Dequeue(ctx context.Context) (audio.Chunk, bool)
	Detach()
}

// Sink receives recognized fragments in output order.
type Sink interface {
	Push(text string)
}

// Transcriber drives recognition for one recording session. Start wires the
// transcriber to its chunk source and sink; Done is closed when the
// transcriber has stopped on its own (end of stream or recognizer exit) or
// after Close.
type Transcriber interface {
	Start(chunks ChunkSource, sink Sink) error
	Close() error
	Done() <-chan struct{}
}

// ProcessSpawnError reports a recognizer process that failed to launch.
type ProcessSpawnError struct {
	Command string
	Err     error
}

func (e *ProcessSpawnError) Error() string {
	return fmt.Sprintf("spawn recognizer %q: %v", e.Command, e.Err)
}

func (e *ProcessSpawnError) Unwrap() error { return e.Err }

// RecognitionError reports an in-process model load or inference failure.
type RecognitionError struct {
	Op  string
	Err error
}

func (e *RecognitionError) Error() string {
	return fmt.Sprintf("recognition %s: %v", e.Op, e.Err)
}

func (e *RecognitionError) Unwrap() error { return e.Err }
