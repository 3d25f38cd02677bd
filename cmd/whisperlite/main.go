package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/loqalabs/whisperlite/internal/audio/portaudio"
	"github.com/loqalabs/whisperlite/internal/batch"
	"github.com/loqalabs/whisperlite/internal/config"
	"github.com/loqalabs/whisperlite/internal/runtime"
)

var version = "0.1.0-dev"

func main() {
	var (
		configPath     string
		showVersion    bool
		saveTranscript bool
		format         string
		outputDir      string
	)

	flag.StringVar(&configPath, "config", "whisperlite.yaml", "Path to configuration file")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.BoolVar(&saveTranscript, "save-transcript", false, "Read timed segments as JSON from stdin, save them and print the file path")
	flag.StringVar(&format, "format", "txt", "Batch output format: txt, json or srt")
	flag.StringVar(&outputDir, "output-dir", "", "Batch output directory (defaults to transcript.output_dir)")
	flag.Parse()

	if showVersion {
		fmt.Println(version)
		return
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}

	if saveTranscript {
		// stdout carries only the saved path.
		logger := newLogger(os.Stderr, cfg.Telemetry.LogLevel)
		if err := runBatch(cfg, logger, format, outputDir); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		return
	}

	logger := newLogger(os.Stdout, cfg.Telemetry.LogLevel)
	source := portaudio.NewSource(cfg.Audio.FramesPerBuffer,
		time.Duration(cfg.Audio.StallTimeoutMS)*time.Millisecond, logger)
	rt := runtime.New(cfg, logger, source)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rt.Start(ctx); err != nil {
		logger.Error("runtime exited with error", slog.String("error", err.Error()))
		time.Sleep(1 * time.Second)
		os.Exit(1)
	}

	logger.Info("shutdown complete")
}

// loadConfig tolerates a missing default config file, but not a missing file
// named explicitly with --config.
func loadConfig(path string) (config.Config, error) {
	explicit := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "config" {
			explicit = true
		}
	})
	if !explicit {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			path = ""
		}
	}
	return config.Load(path)
}

func runBatch(cfg config.Config, logger *slog.Logger, format, outputDir string) error {
	ctx := context.Background()
	shutdown, _, err := runtime.SetupTelemetry(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(sctx); err != nil {
			logger.Warn("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}()

	if outputDir == "" {
		outputDir = cfg.Transcript.OutputDir
	}
	path, err := batch.Run(ctx, batch.Options{
		Format:    format,
		OutputDir: outputDir,
		Username:  cfg.Transcript.Username,
	}, os.Stdin, os.Stdout)
	if err != nil {
		return err
	}
	logger.Debug("batch transcript saved", slog.String("path", path))
	return nil
}

func newLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
}
