package commands

import (
	"context"
	"errors"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/loqalabs/whisperlite/internal/config"
	"github.com/loqalabs/whisperlite/internal/eventstore"
	"github.com/loqalabs/whisperlite/internal/recorder"
	"github.com/loqalabs/whisperlite/internal/transcript"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeRecorder struct {
	sess   *recorder.SessionInfo
	models []string
}

func (f *fakeRecorder) Start(_ context.Context, modelPath string) (recorder.SessionInfo, error) {
	if f.sess != nil {
		return recorder.SessionInfo{}, recorder.ErrAlreadyRecording
	}
	f.models = append(f.models, modelPath)
	f.sess = &recorder.SessionInfo{ID: "s1", ModelPath: modelPath}
	return *f.sess, nil
}

func (f *fakeRecorder) Stop() (recorder.SessionInfo, error) {
	if f.sess == nil {
		return recorder.SessionInfo{}, recorder.ErrNotRecording
	}
	info := *f.sess
	f.sess = nil
	return info, nil
}

func (f *fakeRecorder) State() recorder.State {
	if f.sess != nil {
		return recorder.Recording
	}
	return recorder.Idle
}

func (f *fakeRecorder) Session() (recorder.SessionInfo, bool) {
	if f.sess == nil {
		return recorder.SessionInfo{}, false
	}
	return *f.sess, true
}

func newService(t *testing.T) (*Service, *fakeRecorder, *transcript.Buffer) {
	t.Helper()
	rec := &fakeRecorder{}
	buf := transcript.NewBuffer(" ")
	cfg := config.TranscriptConfig{OutputDir: t.TempDir(), Username: "tester"}
	svc := NewService(rec, buf, cfg, newLogger())
	svc.clock = func() time.Time { return time.Date(2024, 1, 1, 12, 0, 0, 0, time.Local) }
	return svc, rec, buf
}

func TestStartStop(t *testing.T) {
	svc, rec, _ := newService(t)

	res := svc.Start(context.Background(), "models/ggml-base.en.bin")
	if !res.Success || res.State != "recording" || res.Session == nil || res.Session.ModelPath != "models/ggml-base.en.bin" {
		t.Fatalf("unexpected start result %+v", res)
	}
	if res := svc.Start(context.Background(), "other"); res.Success || !strings.Contains(res.Error, "already recording") {
		t.Fatalf("expected double start to fail, got %+v", res)
	}
	if len(rec.models) != 1 {
		t.Fatal("double start reached the recorder twice")
	}
	if res := svc.Status(); res.State != "recording" || res.Session == nil {
		t.Fatalf("unexpected status %+v", res)
	}

	if res := svc.Stop(); !res.Success || res.State != "idle" {
		t.Fatalf("unexpected stop result %+v", res)
	}
	if res := svc.Stop(); res.Success || !strings.Contains(res.Error, "not recording") {
		t.Fatalf("expected stop while idle to fail, got %+v", res)
	}
	if res := svc.Status(); res.State != "idle" || res.Session != nil {
		t.Fatalf("unexpected status %+v", res)
	}
}

func TestClearThenGetIsEmpty(t *testing.T) {
	svc, _, buf := newService(t)
	buf.Push("hello")
	buf.Push("world")

	res := svc.GetTranscript()
	if !res.Success || res.Transcript == nil || *res.Transcript != "hello world" {
		t.Fatalf("unexpected transcript %+v", res)
	}
	if res := svc.ClearTranscript(); !res.Success {
		t.Fatalf("clear failed: %+v", res)
	}
	res = svc.GetTranscript()
	if res.Transcript == nil || *res.Transcript != "" {
		t.Fatalf("expected empty transcript, got %+v", res)
	}

	// An empty transcript is still present in the wire form.
	data, err := json.Marshal(res)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), `"transcript":""`) {
		t.Fatalf("expected transcript field in %s", data)
	}
}

func TestSaveTranscript(t *testing.T) {
	svc, _, buf := newService(t)
	buf.Push("hello")

	res := svc.SaveTranscript()
	if !res.Success {
		t.Fatalf("save failed: %+v", res)
	}
	if filepath.Base(res.Path) != "tester_20240101_1200.txt" {
		t.Fatalf("unexpected path %s", res.Path)
	}
	data, err := os.ReadFile(res.Path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "WhisperLite Transcript - Generated on 2024-01-01 12:00\n\nhello" {
		t.Fatalf("unexpected content %q", data)
	}
	if buf.FullText() != "hello" {
		t.Fatal("save must not clear the buffer")
	}
}

func TestSaveTranscriptFailure(t *testing.T) {
	svc, _, _ := newService(t)
	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	svc.outputDir = blocker
	res := svc.SaveTranscript()
	if res.Success || res.Error == "" || res.Path != "" {
		t.Fatalf("expected failure result, got %+v", res)
	}
}

type fakeHistory struct {
	err    error
	limits []int
}

func (h *fakeHistory) ListSessions(_ context.Context, limit int) ([]eventstore.Session, error) {
	h.limits = append(h.limits, limit)
	if h.err != nil {
		return nil, h.err
	}
	return []eventstore.Session{{ID: "s2", EndReason: "stopped", Fragments: 1}, {ID: "s1"}}, nil
}

func (h *fakeHistory) ListFragments(_ context.Context, sessionID string, limit int) ([]eventstore.Fragment, error) {
	h.limits = append(h.limits, limit)
	if h.err != nil {
		return nil, h.err
	}
	return []eventstore.Fragment{{SessionID: sessionID, Sequence: 0, Text: "hello"}}, nil
}

func TestSessionHistory(t *testing.T) {
	svc, _, _ := newService(t)
	if res := svc.Sessions(context.Background(), 0); res.Success || res.Error == "" {
		t.Fatalf("expected failure without history, got %+v", res)
	}

	history := &fakeHistory{}
	svc.WithHistory(history)
	res := svc.Sessions(context.Background(), 5)
	if !res.Success || len(res.Sessions) != 2 || res.Sessions[0].ID != "s2" {
		t.Fatalf("unexpected sessions %+v", res)
	}
	res = svc.SessionFragments(context.Background(), "s2", 0)
	if !res.Success || len(res.Fragments) != 1 || res.Fragments[0].SessionID != "s2" {
		t.Fatalf("unexpected fragments %+v", res)
	}
	if len(history.limits) != 2 || history.limits[0] != 5 || history.limits[1] != 0 {
		t.Fatalf("limits not passed through: %v", history.limits)
	}

	history.err = errors.New("disk gone")
	if res := svc.Sessions(context.Background(), 0); res.Success || res.Error != "disk gone" {
		t.Fatalf("expected store error in result, got %+v", res)
	}
	if res := svc.SessionFragments(context.Background(), "s2", 0); res.Success || res.Error != "disk gone" {
		t.Fatalf("expected store error in result, got %+v", res)
	}
}
