//go:build !whisper

package stt

import (
	"errors"
	"testing"

	"github.com/loqalabs/whisperlite/internal/config"
)

func TestWhisperModeWithoutBackend(t *testing.T) {
	cfg := config.Default().STT
	cfg.Mode = "whisper"
	factory, err := NewFactory(cfg, 1, newLogger())
	if err != nil {
		t.Fatalf("factory: %v", err)
	}
	_, err = factory("")
	var recErr *RecognitionError
	if !errors.As(err, &recErr) {
		t.Fatalf("expected RecognitionError, got %v", err)
	}
}
