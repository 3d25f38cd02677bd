package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loqalabs/whisperlite/internal/audio"
	"github.com/loqalabs/whisperlite/internal/bus"
	"github.com/loqalabs/whisperlite/internal/commands"
	"github.com/loqalabs/whisperlite/internal/config"
	"github.com/loqalabs/whisperlite/internal/eventstore"
	"github.com/loqalabs/whisperlite/internal/natsserver"
	"github.com/loqalabs/whisperlite/internal/recorder"
	"github.com/loqalabs/whisperlite/internal/stt"
	"github.com/loqalabs/whisperlite/internal/transcript"
)

type Runtime struct {
	cfg        config.Config
	logger     *slog.Logger
	source     audio.Source
	httpServer *http.Server
	ready      atomic.Bool
	wg         sync.WaitGroup

	// addr is the bound HTTP address once the listener is up.
	addr atomic.Value
}

// New creates a runtime that captures from source.
func New(cfg config.Config, logger *slog.Logger, source audio.Source) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
		source: source,
	}
}

// Addr returns the bound HTTP address, or "" before the listener is up.
func (r *Runtime) Addr() string {
	if v, ok := r.addr.Load().(string); ok {
		return v
	}
	return ""
}

// Ready reports whether the command surface is serving.
func (r *Runtime) Ready() bool { return r.ready.Load() }

// Start wires every component and serves until ctx is cancelled. On the way
// out the active session is stopped and the transcript flushed once more.
func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricsHandler, err := SetupTelemetry(ctx, r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	shutdownCtx := func() (context.Context, context.CancelFunc) {
		return context.WithTimeout(context.Background(), 10*time.Second)
	}
	defer func() {
		sctx, done := shutdownCtx()
		defer done()
		if err := shutdownTelemetry(sctx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}()

	store, err := eventstore.Open(ctx, r.cfg.EventStore, r.logger)
	if err != nil {
		return fmt.Errorf("failed to open event store: %w", err)
	}
	defer store.Close()
	if err := store.Ensure(); err != nil {
		return fmt.Errorf("event store: %w", err)
	}

	var publisher recorder.Publisher
	var busClient *bus.Client
	if r.cfg.Bus.Enabled {
		embedded, err := natsserver.Start(r.cfg.Bus, r.logger)
		if err != nil {
			return fmt.Errorf("failed to start embedded bus: %w", err)
		}
		defer embedded.Shutdown()

		busCfg := r.cfg.Bus
		if url := embedded.ClientURL(); url != "" {
			busCfg.Servers = []string{url}
		}
		busClient, err = bus.Connect(ctx, busCfg, r.logger)
		if err != nil {
			return fmt.Errorf("failed to connect to bus: %w", err)
		}
		defer busClient.Close()
		publisher = busClient
	}

	factory, err := stt.NewFactory(r.cfg.STT, r.cfg.Audio.Channels, r.logger)
	if err != nil {
		return fmt.Errorf("failed to configure stt: %w", err)
	}

	buffer := transcript.NewBuffer(r.cfg.Transcript.Separator)
	persister := transcript.NewPersister(buffer, r.cfg.Transcript.PersistPath,
		time.Duration(r.cfg.Transcript.PersistIntervalMS)*time.Millisecond, r.logger)
	persistCtx, stopPersister := context.WithCancel(context.Background())
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		persister.Run(persistCtx)
	}()

	controller := recorder.NewController(recorder.Options{
		Source: r.source,
		Format: audio.Format{
			SampleRate:    r.cfg.Audio.SampleRate,
			Channels:      r.cfg.Audio.Channels,
			ChunkDuration: time.Duration(r.cfg.Audio.ChunkDurationMS) * time.Millisecond,
		},
		Transcribers:     factory,
		Transcript:       buffer,
		DefaultModelPath: r.cfg.STT.ModelPath,
		ArchiveDir:       r.cfg.Audio.ArchiveDir,
		Journal:          store,
		Publisher:        publisher,
		Logger:           r.logger,
	})
	svc := commands.NewService(controller, buffer, r.cfg.Transcript, r.logger).WithHistory(store)

	mux := newMux(svc, r.logger)
	mux.HandleFunc("GET /healthz", r.handleHealth)
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, req *http.Request) {
		r.handleReady(w, req, busClient)
	})
	if metricsHandler != nil {
		mux.Handle("GET /metrics", metricsHandler)
	}

	addr := net.JoinHostPort(r.cfg.HTTP.Bind, fmt.Sprint(r.cfg.HTTP.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		stopPersister()
		r.wg.Wait()
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	r.addr.Store(ln.Addr().String())
	r.httpServer = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()

	r.ready.Store(true)
	r.logger.Info("runtime started", slog.String("addr", ln.Addr().String()), slog.String("stt_mode", r.cfg.STT.Mode))

	<-ctx.Done()
	r.ready.Store(false)
	r.logger.Info("runtime stopping")

	sctx, done := shutdownCtx()
	defer done()
	if err := r.httpServer.Shutdown(sctx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	if err := controller.Close(); err != nil {
		r.logger.Error("recorder shutdown error", slog.String("error", err.Error()))
	}
	stopPersister()
	r.wg.Wait()
	if err := persister.Flush(); err != nil {
		r.logger.Error("final transcript flush failed", slog.String("error", err.Error()))
	}

	return nil
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request, busClient *bus.Client) {
	if r.ready.Load() && (!r.cfg.Bus.Enabled || busClient.Healthy()) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}
