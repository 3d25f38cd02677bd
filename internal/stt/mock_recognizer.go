package stt

import (
	"context"
	"fmt"

	"github.com/loqalabs/whisperlite/internal/audio"
)

type mockRecognizer struct{}

func NewMockRecognizer() Recognizer {
	return &mockRecognizer{}
}

func (m *mockRecognizer) Transcribe(_ context.Context, chunk audio.Chunk) (TranscriptResult, error) {
	return TranscriptResult{
		Text:     fmt.Sprintf("[chunk %d samples=%d]", chunk.Seq, len(chunk.Samples)),
		Segments: 1,
	}, nil
}

func (m *mockRecognizer) Close() error { return nil }
