// Package commands is the host-facing command surface. Every command
// reports its outcome as a Result; none of them return Go errors.
package commands

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/loqalabs/whisperlite/internal/config"
	"github.com/loqalabs/whisperlite/internal/eventstore"
	"github.com/loqalabs/whisperlite/internal/output"
	"github.com/loqalabs/whisperlite/internal/recorder"
)

// Result is the reply to one host command.
type Result struct {
	Success    bool                  `json:"success"`
	Message    string                `json:"message,omitempty"`
	Transcript *string               `json:"transcript,omitempty"`
	Path       string                `json:"path,omitempty"`
	Error      string                `json:"error,omitempty"`
	State      string                `json:"state,omitempty"`
	Session    *recorder.SessionInfo `json:"session,omitempty"`
	Sessions   []eventstore.Session  `json:"sessions,omitempty"`
	Fragments  []eventstore.Fragment `json:"fragments,omitempty"`
}

// Recorder is the session controller driven by the commands.
type Recorder interface {
	Start(ctx context.Context, modelPath string) (recorder.SessionInfo, error)
	Stop() (recorder.SessionInfo, error)
	State() recorder.State
	Session() (recorder.SessionInfo, bool)
}

// Transcript is the shared fragment buffer.
type Transcript interface {
	FullText() string
	Clear() []string
}

// History is the journal of past sessions.
type History interface {
	ListSessions(ctx context.Context, limit int) ([]eventstore.Session, error)
	ListFragments(ctx context.Context, sessionID string, limit int) ([]eventstore.Fragment, error)
}

var errNoHistory = errors.New("session history unavailable")

// Service maps host commands onto the recorder and transcript.
type Service struct {
	rec        Recorder
	transcript Transcript
	history    History
	outputDir  string
	username   string
	clock      func() time.Time
	log        *slog.Logger
}

func NewService(rec Recorder, transcript Transcript, cfg config.TranscriptConfig, log *slog.Logger) *Service {
	return &Service{
		rec:        rec,
		transcript: transcript,
		outputDir:  cfg.OutputDir,
		username:   output.Username(cfg.Username),
		clock:      time.Now,
		log:        log.With(slog.String("component", "commands")),
	}
}

// WithHistory lets the service answer session history queries.
func (s *Service) WithHistory(h History) *Service {
	s.history = h
	return s
}

func failure(err error) Result {
	return Result{Success: false, Error: err.Error()}
}

// Start begins recording with the given model, or the configured default
// when modelPath is empty.
func (s *Service) Start(ctx context.Context, modelPath string) Result {
	info, err := s.rec.Start(ctx, modelPath)
	if err != nil {
		s.log.Warn("start command failed", slogError(err))
		return failure(err)
	}
	return Result{Success: true, Message: "Recording started", State: recorder.Recording.String(), Session: &info}
}

func (s *Service) Stop() Result {
	info, err := s.rec.Stop()
	if err != nil {
		s.log.Warn("stop command failed", slogError(err))
		return failure(err)
	}
	return Result{Success: true, Message: "Recording stopped", State: recorder.Idle.String(), Session: &info}
}

// Status reports the recorder state and the active session, if any.
func (s *Service) Status() Result {
	res := Result{Success: true, State: s.rec.State().String()}
	if info, ok := s.rec.Session(); ok {
		res.Session = &info
	}
	return res
}

func (s *Service) GetTranscript() Result {
	text := s.transcript.FullText()
	return Result{Success: true, Transcript: &text}
}

// SaveTranscript writes the current transcript with a header to the output
// directory. The buffer is left as is.
func (s *Service) SaveTranscript() Result {
	path, err := output.Save(s.transcript.FullText(), s.username, s.clock(), s.outputDir)
	if err != nil {
		s.log.Error("save transcript failed", slogError(err))
		return failure(err)
	}
	s.log.Info("transcript saved", slog.String("path", path))
	return Result{Success: true, Message: "Transcript saved", Path: path}
}

func (s *Service) ClearTranscript() Result {
	removed := s.transcript.Clear()
	s.log.Debug("transcript cleared", slog.Int("fragments", len(removed)))
	return Result{Success: true, Message: "Transcript cleared"}
}

// Sessions lists up to limit journaled sessions, newest first.
func (s *Service) Sessions(ctx context.Context, limit int) Result {
	if s.history == nil {
		return failure(errNoHistory)
	}
	sessions, err := s.history.ListSessions(ctx, limit)
	if err != nil {
		s.log.Warn("list sessions failed", slogError(err))
		return failure(err)
	}
	return Result{Success: true, Sessions: sessions}
}

// SessionFragments lists the journaled fragments of one session in order.
func (s *Service) SessionFragments(ctx context.Context, sessionID string, limit int) Result {
	if s.history == nil {
		return failure(errNoHistory)
	}
	fragments, err := s.history.ListFragments(ctx, sessionID, limit)
	if err != nil {
		s.log.Warn("list fragments failed", slog.String("session_id", sessionID), slogError(err))
		return failure(err)
	}
	return Result{Success: true, Fragments: fragments}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
