package stt

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/mattn/go-shellwords"
)

const maxLineBytes = 1 << 20

// ProcessConfig describes how to launch a streaming recognizer process.
type ProcessConfig struct {
	// Args is the command line; Args[0] is the executable.
	Args []string
	// ModelPath is appended after ModelFlag, or positionally when ModelFlag
	// is empty.
	ModelPath string
	ModelFlag string
	// Env entries are added to the inherited environment.
	Env []string
}

// ParseCommand splits a shell-style command line into argv.
func ParseCommand(command string) ([]string, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse stt command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("stt command is empty")
	}
	return args, nil
}

// ProcessTranscriber streams chunks to a long-lived recognizer process. A
// feeder goroutine writes each chunk as unframed little-endian int16 bytes to
// the child's stdin; a drainer goroutine turns every non-empty stdout line
// into a fragment. The two directions share no lock.
type ProcessTranscriber struct {
	cfg  ProcessConfig
	log  *slog.Logger
	ins  *instruments
	done chan struct{}

	mu      sync.Mutex
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	chunks  ChunkSource
	started bool
	closed  bool

	closing atomic.Bool
	feeder  sync.WaitGroup
	cancel  context.CancelFunc
}

func NewProcessTranscriber(cfg ProcessConfig, log *slog.Logger) (*ProcessTranscriber, error) {
	if len(cfg.Args) == 0 {
		return nil, fmt.Errorf("stt command empty")
	}
	log = log.With(slog.String("component", "stt-process"))
	return &ProcessTranscriber{
		cfg:  cfg,
		log:  log,
		ins:  newInstruments("process", log),
		done: make(chan struct{}),
	}, nil
}

func (t *ProcessTranscriber) argv() (string, []string) {
	args := append([]string{}, t.cfg.Args[1:]...)
	if t.cfg.ModelPath != "" {
		if t.cfg.ModelFlag != "" {
			args = append(args, t.cfg.ModelFlag)
		}
		args = append(args, t.cfg.ModelPath)
	}
	return t.cfg.Args[0], args
}

// Start launches the recognizer process and its feeder and drainer.
func (t *ProcessTranscriber) Start(chunks ChunkSource, sink Sink) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return errors.New("transcriber closed")
	}
	if t.started {
		return errors.New("transcriber already started")
	}

	base, args := t.argv()
	cmd := exec.Command(base, args...)
	if len(t.cfg.Env) > 0 {
		cmd.Env = append(os.Environ(), t.cfg.Env...)
	}
	cmd.Stderr = &stderrLogger{log: t.log}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return &ProcessSpawnError{Command: base, Err: err}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return &ProcessSpawnError{Command: base, Err: err}
	}
	if err := cmd.Start(); err != nil {
		return &ProcessSpawnError{Command: base, Err: err}
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.cmd = cmd
	t.stdin = stdin
	t.chunks = chunks
	t.cancel = cancel
	t.started = true
	t.log.Info("recognizer process started", slog.String("command", base), slog.Int("pid", cmd.Process.Pid))

	t.feeder.Add(1)
	go t.feed(ctx, chunks, stdin)
	go t.drain(stdout, sink)
	return nil
}

func (t *ProcessTranscriber) feed(ctx context.Context, chunks ChunkSource, stdin io.WriteCloser) {
	defer t.feeder.Done()
	defer stdin.Close()

	var buf []byte
	for {
		chunk, ok := chunks.Dequeue(ctx)
		if !ok {
			t.log.Debug("chunk stream ended, closing recognizer stdin")
			return
		}
		buf = encodePCM(buf, chunk.Samples)
		if _, err := stdin.Write(buf); err != nil {
			if !t.closing.Load() {
				t.log.Warn("recognizer stdin closed", slogError(err))
			}
			chunks.Detach()
			return
		}
		t.ins.chunk()
	}
}

func (t *ProcessTranscriber) drain(stdout io.Reader, sink Sink) {
	defer close(t.done)

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		t.ins.fragment()
		sink.Push(text)
	}
	if err := scanner.Err(); err != nil && !t.closing.Load() {
		t.log.Warn("recognizer stdout read failed", slogError(err))
	}

	// Reads are complete, so Wait may reap the child now.
	err := t.cmd.Wait()
	switch {
	case t.closing.Load():
		t.log.Debug("recognizer process stopped")
	case err != nil:
		t.log.Warn("recognizer process exited", slogError(err))
	default:
		t.log.Info("recognizer process exited")
	}
	// Stop the feeder so capture sees a rejected send.
	t.chunks.Detach()
	t.cancel()
}

// Close kills the recognizer process and waits for both directions to finish.
// Errors caused by the kill itself are expected and not reported.
func (t *ProcessTranscriber) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	started := t.started
	t.mu.Unlock()

	if !started {
		close(t.done)
		return nil
	}

	t.closing.Store(true)
	t.chunks.Detach()
	t.cancel()
	var killErr error
	if err := t.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		killErr = fmt.Errorf("kill recognizer: %w", err)
	}
	t.feeder.Wait()
	<-t.done
	return killErr
}

func (t *ProcessTranscriber) Done() <-chan struct{} { return t.done }

// Pid returns the recognizer process id, or 0 before Start.
func (t *ProcessTranscriber) Pid() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cmd == nil || t.cmd.Process == nil {
		return 0
	}
	return t.cmd.Process.Pid
}

// encodePCM writes samples as little-endian int16 into buf, reusing its
// capacity.
func encodePCM(buf []byte, samples []int16) []byte {
	n := len(samples) * 2
	if cap(buf) < n {
		buf = make([]byte, n)
	}
	buf = buf[:n]
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

type stderrLogger struct {
	log *slog.Logger
}

func (w *stderrLogger) Write(p []byte) (int, error) {
	for _, line := range bytes.Split(bytes.TrimRight(p, "\n"), []byte("\n")) {
		if s := strings.TrimSpace(string(line)); s != "" {
			w.log.Debug("recognizer stderr", slog.String("line", s))
		}
	}
	return len(p), nil
}
