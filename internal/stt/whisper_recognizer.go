//go:build whisper

package stt

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"sync"

	whisper "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
	"github.com/loqalabs/whisperlite/internal/audio"
)

type whisperRecognizer struct {
	cfg   WhisperConfig
	model whisper.Model
	mu    sync.Mutex
	pcm   []float32
}

// NewWhisperRecognizer loads a ggml model through whisper.cpp.
func NewWhisperRecognizer(cfg WhisperConfig) (Recognizer, error) {
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, &RecognitionError{Op: "load model", Err: err}
	}
	model, err := whisper.New(cfg.ModelPath)
	if err != nil {
		return nil, &RecognitionError{Op: "load model", Err: err}
	}
	return &whisperRecognizer{cfg: cfg, model: model}, nil
}

func (r *whisperRecognizer) Transcribe(ctx context.Context, chunk audio.Chunk) (TranscriptResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return TranscriptResult{}, err
	}
	wctx, err := r.model.NewContext()
	if err != nil {
		return TranscriptResult{}, &RecognitionError{Op: "create state", Err: err}
	}
	if r.cfg.Language != "" {
		if err := wctx.SetLanguage(r.cfg.Language); err != nil {
			return TranscriptResult{}, &RecognitionError{Op: "set language", Err: err}
		}
	}
	if r.cfg.Threads > 0 {
		wctx.SetThreads(uint(r.cfg.Threads))
	}

	r.pcm = normalizeSamples(r.pcm, chunk.Samples, r.cfg.Channels)
	if err := wctx.Process(r.pcm, nil, nil, nil); err != nil {
		return TranscriptResult{}, &RecognitionError{Op: "process", Err: err}
	}

	var text strings.Builder
	segments := 0
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return TranscriptResult{}, &RecognitionError{Op: "read segment", Err: err}
		}
		text.WriteString(segment.Text)
		segments++
	}
	return TranscriptResult{Text: strings.TrimSpace(text.String()), Segments: segments}, nil
}

func (r *whisperRecognizer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.model.Close()
}
