package stt

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
)

// LocalTranscriber runs an in-process Recognizer on a single worker goroutine.
// Each chunk is recognized before the next one is dequeued, so fragments come
// out in chunk order.
type LocalTranscriber struct {
	rec    Recognizer
	log    *slog.Logger
	ins    *instruments
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	chunks  ChunkSource
	started bool
	closed  bool
}

func NewLocalTranscriber(rec Recognizer, log *slog.Logger) *LocalTranscriber {
	ctx, cancel := context.WithCancel(context.Background())
	log = log.With(slog.String("component", "stt-local"))
	return &LocalTranscriber{
		rec:    rec,
		log:    log,
		ins:    newInstruments("local", log),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

func (t *LocalTranscriber) Start(chunks ChunkSource, sink Sink) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return errors.New("transcriber closed")
	}
	if t.started {
		return errors.New("transcriber already started")
	}
	t.started = true
	t.chunks = chunks
	go t.run(chunks, sink)
	return nil
}

func (t *LocalTranscriber) run(chunks ChunkSource, sink Sink) {
	defer close(t.done)
	for {
		chunk, ok := chunks.Dequeue(t.ctx)
		if !ok {
			t.log.Debug("chunk stream ended")
			return
		}
		t.ins.chunk()
		result, err := t.rec.Transcribe(t.ctx, chunk)
		if err != nil {
			if t.ctx.Err() != nil {
				return
			}
			t.ins.failure()
			t.log.Warn("chunk recognition failed", slog.Uint64("seq", chunk.Seq), slogError(err))
			continue
		}
		text := strings.TrimSpace(result.Text)
		if text == "" {
			continue
		}
		t.ins.fragment()
		sink.Push(text)
	}
}

// Close stops the worker, detaches from the queue and releases the model.
func (t *LocalTranscriber) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	started := t.started
	chunks := t.chunks
	t.mu.Unlock()

	t.cancel()
	if started {
		chunks.Detach()
		<-t.done
	} else {
		close(t.done)
	}
	if err := t.rec.Close(); err != nil {
		return &RecognitionError{Op: "release model", Err: err}
	}
	return nil
}

func (t *LocalTranscriber) Done() <-chan struct{} { return t.done }
