// Package portaudio captures the default input device through PortAudio
// callback streams.
package portaudio

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gordonklaus/portaudio"
	"github.com/loqalabs/whisperlite/internal/audio"
)

// Source opens PortAudio input streams on the default device.
type Source struct {
	framesPerBuffer int
	stallTimeout    time.Duration
	log             *slog.Logger
}

// NewSource creates a Source. A zero stallTimeout disables stall detection.
func NewSource(framesPerBuffer int, stallTimeout time.Duration, log *slog.Logger) *Source {
	return &Source{
		framesPerBuffer: framesPerBuffer,
		stallTimeout:    stallTimeout,
		log:             log.With(slog.String("component", "portaudio")),
	}
}

func (s *Source) Open(format audio.Format, sink audio.Sink) (audio.Stream, error) {
	if err := format.Validate(); err != nil {
		return nil, &audio.DeviceError{Op: "configure", Err: err}
	}
	if err := portaudio.Initialize(); err != nil {
		return nil, &audio.DeviceError{Op: "initialize", Err: err}
	}

	dev, err := portaudio.DefaultInputDevice()
	if err != nil || dev == nil {
		portaudio.Terminate()
		if err == nil {
			err = audio.ErrNoInputDevice
		}
		return nil, &audio.DeviceError{Op: "open", Err: fmt.Errorf("%w: %v", audio.ErrNoInputDevice, err)}
	}
	if dev.MaxInputChannels < format.Channels {
		portaudio.Terminate()
		return nil, &audio.DeviceError{Op: "configure", Err: fmt.Errorf("device %q supports %d input channels, need %d", dev.Name, dev.MaxInputChannels, format.Channels)}
	}

	st := &stream{
		chunker: audio.NewChunker(format.ChunkSamples(), sink),
		stall:   s.stallTimeout,
		log:     s.log.With(slog.String("device", dev.Name)),
		done:    make(chan struct{}),
		quit:    make(chan struct{}),
	}

	params := portaudio.LowLatencyParameters(dev, nil)
	params.Input.Channels = format.Channels
	params.SampleRate = float64(format.SampleRate)
	params.FramesPerBuffer = s.framesPerBuffer

	if err := portaudio.IsFormatSupported(params, st.callback); err != nil {
		portaudio.Terminate()
		return nil, &audio.DeviceError{Op: "configure", Err: err}
	}
	pa, err := portaudio.OpenStream(params, st.callback)
	if err != nil {
		portaudio.Terminate()
		return nil, &audio.DeviceError{Op: "open", Err: err}
	}
	st.pa = pa
	st.log.Info("input stream opened",
		slog.Int("sample_rate", format.SampleRate),
		slog.Int("channels", format.Channels),
		slog.Int("chunk_samples", format.ChunkSamples()))
	return st, nil
}

type stream struct {
	pa      *portaudio.Stream
	chunker *audio.Chunker
	stall   time.Duration
	log     *slog.Logger

	lastCallback atomic.Int64
	overflows    atomic.Uint64

	mu        sync.Mutex
	err       error
	closed    bool
	done      chan struct{}
	doneOnce  sync.Once
	quit      chan struct{}
	watchdogs sync.WaitGroup
}

// callback runs on the PortAudio thread. It only touches atomics and the
// chunker.
func (s *stream) callback(in []int16, _ portaudio.StreamCallbackTimeInfo, flags portaudio.StreamCallbackFlags) {
	s.lastCallback.Store(time.Now().UnixNano())
	if flags&portaudio.InputOverflow != 0 {
		s.overflows.Add(1)
	}
	s.chunker.Write(in)
}

func (s *stream) Start() error {
	s.lastCallback.Store(time.Now().UnixNano())
	if err := s.pa.Start(); err != nil {
		return &audio.DeviceError{Op: "start", Err: err}
	}
	s.watchdogs.Add(1)
	go s.watch()
	return nil
}

// watch reports overflows and treats a stalled callback as a device fault.
func (s *stream) watch() {
	defer s.watchdogs.Done()
	interval := time.Second
	if s.stall > 0 && s.stall/2 < interval {
		interval = s.stall / 2
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var reported uint64
	for {
		select {
		case <-s.quit:
			return
		case <-ticker.C:
		}
		if n := s.overflows.Load(); n != reported {
			s.log.Warn("input overflow", slog.Uint64("total", n))
			reported = n
		}
		if s.chunker.Stopped() {
			s.fail(nil)
			return
		}
		if s.stall <= 0 {
			continue
		}
		since := time.Since(time.Unix(0, s.lastCallback.Load()))
		if since > s.stall {
			s.fail(fmt.Errorf("no audio callback for %s", since.Round(time.Millisecond)))
			return
		}
	}
}

func (s *stream) fail(err error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if err != nil && s.err == nil {
		s.err = &audio.DeviceError{Op: "capture", Err: err}
		s.log.Error("input stream failed", slog.String("error", err.Error()))
	}
	s.mu.Unlock()
	s.doneOnce.Do(func() { close(s.done) })
}

func (s *stream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.quit)
	s.watchdogs.Wait()

	var errs []error
	if err := s.pa.Stop(); err != nil {
		s.log.Debug("stop stream", slog.String("error", err.Error()))
	}
	if err := s.pa.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := portaudio.Terminate(); err != nil {
		errs = append(errs, err)
	}
	s.doneOnce.Do(func() { close(s.done) })
	s.log.Info("input stream closed", slog.Uint64("chunks", s.chunker.Emitted()))
	return errors.Join(errs...)
}

func (s *stream) Done() <-chan struct{} { return s.done }

func (s *stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
