// Package recorder owns the recording session lifecycle: it wires one audio
// stream, one chunk queue and one transcriber together and tears them down
// again, with every transition serialized under a single lock.
package recorder

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/loqalabs/whisperlite/internal/audio"
	"github.com/loqalabs/whisperlite/internal/eventstore"
	"github.com/loqalabs/whisperlite/internal/protocol"
	"github.com/loqalabs/whisperlite/internal/queue"
	"github.com/loqalabs/whisperlite/internal/stt"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// State is the controller state.
type State int

const (
	Idle State = iota
	Recording
)

func (s State) String() string {
	if s == Recording {
		return protocol.StateRecording
	}
	return protocol.StateIdle
}

// StateError reports a command that is invalid in the current state.
type StateError struct {
	Op    string
	State State
}

func (e *StateError) Error() string {
	if e.State == Recording {
		return "recorder " + e.Op + ": already recording"
	}
	return "recorder " + e.Op + ": not recording"
}

var (
	ErrAlreadyRecording = &StateError{Op: "start", State: Recording}
	ErrNotRecording     = &StateError{Op: "stop", State: Idle}
)

// Session end reasons.
const (
	ReasonStopped           = "stopped"
	ReasonDeviceError       = "device_error"
	ReasonTranscriberExited = "transcriber_exited"
	ReasonShutdown          = "shutdown"
	ReasonStartFailed       = "start_failed"
)

// SessionInfo describes a recording session.
type SessionInfo struct {
	ID        string    `json:"id"`
	ModelPath string    `json:"model_path"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at,omitempty"`
	EndReason string    `json:"end_reason,omitempty"`
}

// Journal records session history.
type Journal interface {
	BeginSession(ctx context.Context, sessionID, modelPath string) error
	AppendFragment(ctx context.Context, f eventstore.Fragment) error
	EndSession(ctx context.Context, sessionID, reason string) error
}

// Publisher broadcasts fragments and state changes.
type Publisher interface {
	PublishFragment(protocol.Fragment) error
	PublishSessionState(protocol.SessionState) error
}

// Options wires a Controller.
type Options struct {
	Source       audio.Source
	Format       audio.Format
	Transcribers stt.Factory
	// Transcript receives every fragment in order.
	Transcript stt.Sink
	// DefaultModelPath is used when Start is called without a model path.
	DefaultModelPath string
	// ArchiveDir enables a per-session WAV copy of the captured audio.
	ArchiveDir string
	Journal    Journal
	Publisher  Publisher
	Logger     *slog.Logger
}

// Controller is the recording state machine.
type Controller struct {
	opts   Options
	log    *slog.Logger
	tracer trace.Tracer
	clock  func() time.Time

	mu   sync.Mutex
	sess *session

	active   atomic.Int64
	started  metric.Int64Counter
	failed   metric.Int64Counter
	activeGa metric.Int64ObservableGauge
}

func NewController(opts Options) *Controller {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	c := &Controller{
		opts:   opts,
		log:    log.With(slog.String("component", "recorder")),
		tracer: otel.Tracer("github.com/loqalabs/whisperlite/recorder"),
		clock:  time.Now,
	}
	if err := c.initMetrics(); err != nil {
		c.log.Warn("failed to initialize metrics", slogError(err))
	}
	return c
}

func (c *Controller) initMetrics() error {
	meter := otel.Meter("github.com/loqalabs/whisperlite/recorder")
	var err error
	if c.started, err = meter.Int64Counter("whisperlite.sessions.started", metric.WithDescription("Recording sessions started")); err != nil {
		return err
	}
	if c.failed, err = meter.Int64Counter("whisperlite.sessions.failed", metric.WithDescription("Recording sessions that failed to start")); err != nil {
		return err
	}
	if c.activeGa, err = meter.Int64ObservableGauge("whisperlite.sessions.active", metric.WithDescription("Recording sessions in progress")); err != nil {
		return err
	}
	_, err = meter.RegisterCallback(func(ctx context.Context, obs metric.Observer) error {
		obs.ObserveInt64(c.activeGa, c.active.Load())
		return nil
	}, c.activeGa)
	return err
}

// State reports whether a session is active.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return Idle
	}
	return Recording
}

// Session returns the active session, if any.
func (c *Controller) Session() (SessionInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return SessionInfo{}, false
	}
	return c.sess.info, true
}

// Start begins a recording session. The session is journaled before the
// transcriber runs so its first fragments have a row to attach to. Once the
// transcriber is running, the audio stream is opened; if that fails the
// transcriber is closed again, the journal entry is ended and the controller
// stays Idle.
func (c *Controller) Start(ctx context.Context, modelPath string) (SessionInfo, error) {
	ctx, span := c.tracer.Start(ctx, "recorder.start")
	defer span.End()

	info, err := c.start(ctx, modelPath)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return SessionInfo{}, err
	}
	span.SetAttributes(attribute.String("session.id", info.ID), attribute.String("stt.model_path", info.ModelPath))
	return info, nil
}

func (c *Controller) start(ctx context.Context, modelPath string) (SessionInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess != nil {
		return SessionInfo{}, ErrAlreadyRecording
	}
	if modelPath == "" {
		modelPath = c.opts.DefaultModelPath
	}

	info := SessionInfo{ID: uuid.NewString(), ModelPath: modelPath, StartedAt: c.clock().UTC()}
	log := c.log.With(slog.String("session_id", info.ID))

	tr, err := c.opts.Transcribers(modelPath)
	if err != nil {
		c.add(c.failed)
		return SessionInfo{}, err
	}

	s := &session{
		info:        info,
		queue:       queue.New[audio.Chunk](),
		transcriber: tr,
		stopped:     make(chan struct{}),
		log:         log,
	}
	if c.opts.Journal != nil {
		if err := c.opts.Journal.BeginSession(ctx, info.ID, modelPath); err != nil {
			log.Warn("journal session start failed", slogError(err))
		}
	}

	var chunks stt.ChunkSource = s.queue
	if c.opts.ArchiveDir != "" {
		arch, err := audio.CreateArchive(c.opts.ArchiveDir, info.ID, c.opts.Format)
		if err != nil {
			log.Warn("audio archive disabled for session", slogError(err))
		} else {
			s.archive = arch
			chunks = &archiveTee{chunks: s.queue, archive: arch, log: log}
		}
	}

	sink := &fragmentSink{
		sessionID:  info.ID,
		transcript: c.opts.Transcript,
		journal:    c.opts.Journal,
		publisher:  c.opts.Publisher,
		clock:      c.clock,
		log:        log,
	}
	if err := tr.Start(chunks, sink); err != nil {
		s.release()
		c.add(c.failed)
		c.endJournal(s, ReasonStartFailed)
		return SessionInfo{}, err
	}

	stream, err := c.opts.Source.Open(c.opts.Format, s.queue)
	if err == nil {
		if err = stream.Start(); err != nil {
			stream.Close()
		}
	}
	if err != nil {
		s.release()
		c.add(c.failed)
		c.endJournal(s, ReasonDeviceError)
		var devErr *audio.DeviceError
		if !errors.As(err, &devErr) {
			err = &audio.DeviceError{Op: "start", Err: err}
		}
		log.Warn("recording start failed", slogError(err))
		return SessionInfo{}, err
	}
	s.stream = stream

	c.sess = s
	c.active.Add(1)
	c.add(c.started)
	c.publishState(s, protocol.StateRecording, "")
	log.Info("recording started", slog.String("model_path", modelPath))

	go c.monitor(s)
	return info, nil
}

// Stop ends the active session. Queued and in-flight chunks are dropped.
func (c *Controller) Stop() (SessionInfo, error) {
	_, span := c.tracer.Start(context.Background(), "recorder.stop")
	defer span.End()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		span.SetStatus(codes.Error, ErrNotRecording.Error())
		return SessionInfo{}, ErrNotRecording
	}
	info := c.teardown(c.sess, ReasonStopped)
	span.SetAttributes(attribute.String("session.id", info.ID))
	return info, nil
}

// Close stops any active session. It is used on host shutdown.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess != nil {
		c.teardown(c.sess, ReasonShutdown)
	}
	return nil
}

// monitor ends the session when its stream faults or its transcriber exits.
func (c *Controller) monitor(s *session) {
	var reason string
	select {
	case <-s.stopped:
		return
	case <-s.stream.Done():
		reason = ReasonDeviceError
		if err := s.stream.Err(); err != nil {
			s.log.Warn("audio stream ended", slogError(err))
		}
	case <-s.transcriber.Done():
		reason = ReasonTranscriberExited
		s.log.Warn("transcriber exited during session")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess != s {
		return
	}
	c.teardown(s, reason)
}

// teardown must be called with c.mu held.
func (c *Controller) teardown(s *session, reason string) SessionInfo {
	close(s.stopped)
	if err := s.stream.Close(); err != nil {
		s.log.Debug("audio stream close", slogError(err))
	}
	s.release()

	c.sess = nil
	c.active.Add(-1)
	s.info.EndedAt = c.clock().UTC()
	s.info.EndReason = reason
	c.endJournal(s, reason)
	c.publishState(s, protocol.StateIdle, reason)
	s.log.Info("recording stopped", slog.String("reason", reason))
	return s.info
}

func (c *Controller) endJournal(s *session, reason string) {
	if c.opts.Journal == nil {
		return
	}
	if err := c.opts.Journal.EndSession(context.Background(), s.info.ID, reason); err != nil {
		s.log.Warn("journal session end failed", slogError(err))
	}
}

func (c *Controller) publishState(s *session, state, reason string) {
	if c.opts.Publisher == nil {
		return
	}
	err := c.opts.Publisher.PublishSessionState(protocol.SessionState{
		SessionID: s.info.ID,
		State:     state,
		ModelPath: s.info.ModelPath,
		Reason:    reason,
		Timestamp: c.clock().UTC(),
	})
	if err != nil {
		s.log.Debug("publish session state failed", slogError(err))
	}
}

func (c *Controller) add(counter metric.Int64Counter) {
	if counter != nil {
		counter.Add(context.Background(), 1)
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
