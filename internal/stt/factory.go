package stt

import (
	"fmt"
	"log/slog"

	"github.com/loqalabs/whisperlite/internal/config"
)

// WhisperConfig configures the in-process whisper.cpp recognizer.
type WhisperConfig struct {
	ModelPath string
	Language  string
	Threads   int
	Channels  int
}

// Factory creates a transcriber for one recording session. An empty
// modelPath selects the configured default.
type Factory func(modelPath string) (Transcriber, error)

// NewFactory selects the recognition backend from cfg.Mode.
func NewFactory(cfg config.STTConfig, channels int, log *slog.Logger) (Factory, error) {
	model := func(modelPath string) string {
		if modelPath == "" {
			return cfg.ModelPath
		}
		return modelPath
	}

	switch cfg.Mode {
	case "process":
		args, err := ParseCommand(cfg.Command)
		if err != nil {
			return nil, err
		}
		return func(modelPath string) (Transcriber, error) {
			return NewProcessTranscriber(ProcessConfig{
				Args:      args,
				ModelPath: model(modelPath),
				ModelFlag: cfg.ModelFlag,
			}, log)
		}, nil
	case "whisper":
		return func(modelPath string) (Transcriber, error) {
			rec, err := NewWhisperRecognizer(WhisperConfig{
				ModelPath: model(modelPath),
				Language:  cfg.Language,
				Threads:   cfg.Threads,
				Channels:  channels,
			})
			if err != nil {
				return nil, err
			}
			return NewLocalTranscriber(rec, log), nil
		}, nil
	case "mock":
		return func(string) (Transcriber, error) {
			return NewLocalTranscriber(NewMockRecognizer(), log), nil
		}, nil
	default:
		return nil, fmt.Errorf("unsupported stt mode %q", cfg.Mode)
	}
}
