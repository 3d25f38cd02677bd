package audio

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Archive writes a session's chunks to a 16-bit PCM WAV file. It is used from
// the recognizer side of the queue, never from the capture callback.
type Archive struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	enc    *wav.Encoder
	buf    *goaudio.IntBuffer
	closed bool
}

// CreateArchive creates <dir>/<name>.wav for the given format.
func CreateArchive(dir, name string, format Format) (*Archive, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create archive dir: %w", err)
	}
	path := filepath.Join(dir, name+".wav")
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create archive: %w", err)
	}
	return &Archive{
		path: path,
		file: file,
		enc:  wav.NewEncoder(file, format.SampleRate, 16, format.Channels, 1),
		buf: &goaudio.IntBuffer{
			Format:         &goaudio.Format{NumChannels: format.Channels, SampleRate: format.SampleRate},
			SourceBitDepth: 16,
		},
	}, nil
}

// Path returns the archive file path.
func (a *Archive) Path() string { return a.path }

// Write appends one chunk.
func (a *Archive) Write(chunk Chunk) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return fmt.Errorf("archive %s closed", a.path)
	}
	if cap(a.buf.Data) < len(chunk.Samples) {
		a.buf.Data = make([]int, len(chunk.Samples))
	}
	a.buf.Data = a.buf.Data[:len(chunk.Samples)]
	for i, s := range chunk.Samples {
		a.buf.Data[i] = int(s)
	}
	if err := a.enc.Write(a.buf); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	return nil
}

// Close finalizes the WAV header and closes the file.
func (a *Archive) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	if err := a.enc.Close(); err != nil {
		a.file.Close()
		return fmt.Errorf("close wav encoder: %w", err)
	}
	return a.file.Close()
}
