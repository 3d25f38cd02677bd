package recorder

import (
	"context"
	"log/slog"
	"time"

	"github.com/loqalabs/whisperlite/internal/audio"
	"github.com/loqalabs/whisperlite/internal/eventstore"
	"github.com/loqalabs/whisperlite/internal/protocol"
	"github.com/loqalabs/whisperlite/internal/queue"
	"github.com/loqalabs/whisperlite/internal/stt"
)

type session struct {
	info        SessionInfo
	queue       *queue.Queue[audio.Chunk]
	transcriber stt.Transcriber
	stream      audio.Stream
	archive     *audio.Archive
	stopped     chan struct{}
	log         *slog.Logger
}

// release closes the producer side of the queue, then the transcriber,
// then the archive.
func (s *session) release() {
	s.queue.Close()
	if err := s.transcriber.Close(); err != nil {
		s.log.Warn("transcriber close failed", slogError(err))
	}
	if s.archive != nil {
		if err := s.archive.Close(); err != nil {
			s.log.Warn("audio archive close failed", slogError(err))
		} else {
			s.log.Info("audio archive written", slog.String("path", s.archive.Path()))
		}
	}
}

// fragmentSink fans one fragment out to the transcript, the journal and the
// bus. Push is only called from the transcriber's delivery goroutine.
type fragmentSink struct {
	sessionID  string
	transcript stt.Sink
	journal    Journal
	publisher  Publisher
	clock      func() time.Time
	log        *slog.Logger
	seq        int
}

func (f *fragmentSink) Push(text string) {
	f.transcript.Push(text)
	seq := f.seq
	f.seq++
	now := f.clock().UTC()

	if f.journal != nil {
		err := f.journal.AppendFragment(context.Background(), eventstore.Fragment{
			SessionID: f.sessionID,
			Sequence:  seq,
			Text:      text,
			CreatedAt: now,
		})
		if err != nil {
			f.log.Warn("journal fragment failed", slog.Int("seq", seq), slogError(err))
		}
	}
	if f.publisher != nil {
		err := f.publisher.PublishFragment(protocol.Fragment{
			SessionID: f.sessionID,
			Sequence:  seq,
			Text:      text,
			Timestamp: now,
		})
		if err != nil {
			f.log.Debug("publish fragment failed", slogError(err))
		}
	}
}

// archiveTee copies every dequeued chunk into the session archive. It runs on
// the transcriber side of the queue.
type archiveTee struct {
	chunks  *queue.Queue[audio.Chunk]
	archive *audio.Archive
	log     *slog.Logger
	failed  bool
}

func (a *archiveTee) Dequeue(ctx context.Context) (audio.Chunk, bool) {
	chunk, ok := a.chunks.Dequeue(ctx)
	if ok && !a.failed {
		if err := a.archive.Write(chunk); err != nil {
			a.failed = true
			a.log.Warn("audio archive write failed", slogError(err))
		}
	}
	return chunk, ok
}

func (a *archiveTee) Detach() { a.chunks.Detach() }
