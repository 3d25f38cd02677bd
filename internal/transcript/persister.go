package transcript

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// DefaultInterval is how often the persister rewrites the transcript file.
const DefaultInterval = 5 * time.Second

// Snapshotter provides the text to persist.
type Snapshotter interface {
	FullText() string
}

// Persister periodically overwrites a fixed file with the current transcript.
// It runs regardless of recording state.
type Persister struct {
	source    Snapshotter
	path      string
	interval  time.Duration
	log       *slog.Logger
	writeFile func(path string, data []byte) error
	flushes   metric.Int64Counter
	failures  metric.Int64Counter
}

func NewPersister(source Snapshotter, path string, interval time.Duration, log *slog.Logger) *Persister {
	if interval <= 0 {
		interval = DefaultInterval
	}
	p := &Persister{
		source:    source,
		path:      path,
		interval:  interval,
		log:       log.With(slog.String("component", "transcript-persister")),
		writeFile: writeFileAtomic,
	}
	meter := otel.Meter("github.com/loqalabs/whisperlite/transcript")
	var err error
	if p.flushes, err = meter.Int64Counter("whisperlite.transcript.flushes", metric.WithDescription("Transcript file rewrites")); err != nil {
		p.log.Warn("failed to create flush counter", slogError(err))
	}
	if p.failures, err = meter.Int64Counter("whisperlite.transcript.flush_failures", metric.WithDescription("Failed transcript file rewrites")); err != nil {
		p.log.Warn("failed to create flush failure counter", slogError(err))
	}
	return p
}

// Path returns the target file.
func (p *Persister) Path() string { return p.path }

// Run flushes on every tick until ctx is cancelled. Write failures are logged
// and do not stop the loop.
func (p *Persister) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.log.Info("transcript persister started", slog.String("path", p.path), slog.Duration("interval", p.interval))
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.Flush(); err != nil {
				p.log.Warn("failed to write transcript", slog.String("path", p.path), slogError(err))
			}
		}
	}
}

// Flush writes the current snapshot once.
func (p *Persister) Flush() error {
	text := p.source.FullText()
	if err := p.writeFile(p.path, []byte(text)); err != nil {
		if p.failures != nil {
			p.failures.Add(context.Background(), 1)
		}
		return err
	}
	if p.flushes != nil {
		p.flushes.Add(context.Background(), 1)
	}
	return nil
}

// writeFileAtomic replaces path through a rename so readers never observe a
// partially written transcript.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create transcript dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".whisperlite-*.tmp")
	if err != nil {
		return fmt.Errorf("temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod transcript: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write transcript: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close transcript: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace transcript: %w", err)
	}
	return nil
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
