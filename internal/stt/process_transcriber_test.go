package stt

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/loqalabs/whisperlite/internal/audio"
	"github.com/loqalabs/whisperlite/internal/queue"
)

const helperChunk = 8

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// TestHelperProcess is not a real test: it is the recognizer child launched by
// the process transcriber tests.
func TestHelperProcess(t *testing.T) {
	mode := os.Getenv("WHISPERLITE_HELPER_MODE")
	if mode == "" {
		return
	}
	defer os.Exit(0)

	switch mode {
	case "index":
		// One line per chunk: the value of its first sample.
		buf := make([]byte, helperChunk*2)
		for {
			if _, err := io.ReadFull(os.Stdin, buf); err != nil {
				return
			}
			fmt.Println(int16(binary.LittleEndian.Uint16(buf)))
		}
	case "args":
		args := os.Args
		for i, a := range args {
			if a == "--" {
				args = args[i+1:]
				break
			}
		}
		fmt.Println(strings.Join(args, " "))
		io.Copy(io.Discard, os.Stdin)
	case "blank":
		fmt.Print("\n   \nfirst\r\n\nsecond\n")
		io.Copy(io.Discard, os.Stdin)
	case "exit":
		fmt.Fprintln(os.Stderr, "model not found")
		os.Exit(3)
	case "hang":
		fmt.Fprintln(os.Stderr, "loading model")
		for {
			time.Sleep(time.Hour)
		}
	}
}

func helperConfig(mode string) ProcessConfig {
	return ProcessConfig{
		Args: []string{os.Args[0], "-test.run=^TestHelperProcess$", "--"},
		Env:  []string{"WHISPERLITE_HELPER_MODE=" + mode},
	}
}

type collectSink struct {
	mu    sync.Mutex
	texts []string
}

func (s *collectSink) Push(text string) {
	s.mu.Lock()
	s.texts = append(s.texts, text)
	s.mu.Unlock()
}

func (s *collectSink) snapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.texts...)
}

func (s *collectSink) waitFor(t *testing.T, n int) []string {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if got := s.snapshot(); len(got) >= n {
			return got
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d fragments, got %v", n, s.snapshot())
	return nil
}

func constantChunk(seq int, n int) audio.Chunk {
	samples := make([]int16, n)
	for i := range samples {
		samples[i] = int16(seq)
	}
	return audio.Chunk{Seq: uint64(seq), Samples: samples}
}

func waitDone(t *testing.T, tr Transcriber) {
	t.Helper()
	select {
	case <-tr.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("transcriber did not finish")
	}
}

func TestProcessTranscriberPreservesChunkOrder(t *testing.T) {
	tr, err := NewProcessTranscriber(helperConfig("index"), newLogger())
	if err != nil {
		t.Fatalf("new transcriber: %v", err)
	}
	q := queue.New[audio.Chunk]()
	sink := &collectSink{}
	if err := tr.Start(q, sink); err != nil {
		t.Fatalf("start: %v", err)
	}
	const n = 50
	for i := 0; i < n; i++ {
		q.Enqueue(constantChunk(i, helperChunk))
	}
	q.Close()

	// Closing the queue closes stdin, the child drains and exits.
	waitDone(t, tr)
	got := sink.snapshot()
	if len(got) != n {
		t.Fatalf("expected %d fragments, got %d: %v", n, len(got), got)
	}
	for i, text := range got {
		if text != strconv.Itoa(i) {
			t.Fatalf("fragment %d: expected %d, got %q", i, i, text)
		}
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("close after exit: %v", err)
	}
}

func TestProcessTranscriberPassesModelPath(t *testing.T) {
	cfg := helperConfig("args")
	cfg.ModelPath = "/models/ggml-tiny.en.bin"
	cfg.ModelFlag = "--model"
	tr, err := NewProcessTranscriber(cfg, newLogger())
	if err != nil {
		t.Fatalf("new transcriber: %v", err)
	}
	sink := &collectSink{}
	if err := tr.Start(queue.New[audio.Chunk](), sink); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { tr.Close() })

	got := sink.waitFor(t, 1)
	if got[0] != "--model /models/ggml-tiny.en.bin" {
		t.Fatalf("unexpected argv %q", got[0])
	}
}

func TestProcessTranscriberPositionalModelPath(t *testing.T) {
	cfg := helperConfig("args")
	cfg.ModelPath = "model.bin"
	tr, _ := NewProcessTranscriber(cfg, newLogger())
	sink := &collectSink{}
	if err := tr.Start(queue.New[audio.Chunk](), sink); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { tr.Close() })
	if got := sink.waitFor(t, 1); got[0] != "model.bin" {
		t.Fatalf("unexpected argv %q", got[0])
	}
}

func TestProcessTranscriberSkipsBlankLines(t *testing.T) {
	tr, _ := NewProcessTranscriber(helperConfig("blank"), newLogger())
	sink := &collectSink{}
	if err := tr.Start(queue.New[audio.Chunk](), sink); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { tr.Close() })
	got := sink.waitFor(t, 2)
	if len(got) != 2 || got[0] != "first" || got[1] != "second" {
		t.Fatalf("unexpected fragments %q", got)
	}
}

func TestProcessTranscriberChildExitEndsSession(t *testing.T) {
	tr, _ := NewProcessTranscriber(helperConfig("exit"), newLogger())
	q := queue.New[audio.Chunk]()
	if err := tr.Start(q, &collectSink{}); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitDone(t, tr)
	if q.Enqueue(constantChunk(0, helperChunk)) {
		t.Fatal("capture side should see a rejected send once the recognizer exits")
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestProcessTranscriberCloseKillsChild(t *testing.T) {
	tr, _ := NewProcessTranscriber(helperConfig("hang"), newLogger())
	q := queue.New[audio.Chunk]()
	if err := tr.Start(q, &collectSink{}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if tr.Pid() == 0 {
		t.Fatal("expected a live process id")
	}
	for i := 0; i < 3; i++ {
		q.Enqueue(constantChunk(i, helperChunk))
	}

	closed := make(chan error, 1)
	go func() { closed <- tr.Close() }()
	select {
	case err := <-closed:
		if err != nil {
			t.Fatalf("close: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("close did not terminate the recognizer")
	}
	waitDone(t, tr)
	if err := tr.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestProcessTranscriberSpawnError(t *testing.T) {
	tr, err := NewProcessTranscriber(ProcessConfig{Args: []string{"/nonexistent/whisper-stream"}}, newLogger())
	if err != nil {
		t.Fatalf("new transcriber: %v", err)
	}
	err = tr.Start(queue.New[audio.Chunk](), &collectSink{})
	var spawnErr *ProcessSpawnError
	if !errors.As(err, &spawnErr) {
		t.Fatalf("expected ProcessSpawnError, got %v", err)
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("close unstarted: %v", err)
	}
	waitDone(t, tr)
}

func TestParseCommand(t *testing.T) {
	args, err := ParseCommand(`whisper-stream --threads 2 --prompt "hello world"`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := []string{"whisper-stream", "--threads", "2", "--prompt", "hello world"}
	if strings.Join(args, "|") != strings.Join(want, "|") {
		t.Fatalf("expected %v, got %v", want, args)
	}
	if _, err := ParseCommand("   "); err == nil {
		t.Fatal("expected error for empty command")
	}
}

func TestEncodePCMLittleEndian(t *testing.T) {
	buf := encodePCM(nil, []int16{1, -1, 0x1234})
	want := []byte{0x01, 0x00, 0xff, 0xff, 0x34, 0x12}
	if string(buf) != string(want) {
		t.Fatalf("expected % x, got % x", want, buf)
	}
	reused := encodePCM(buf, []int16{2})
	if len(reused) != 2 || reused[0] != 2 {
		t.Fatalf("unexpected reuse result % x", reused)
	}
}
