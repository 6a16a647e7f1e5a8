package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"
)

// FileSource replays a capture file through the handler. The file is a
// raw concatenation of framed messages, read in fixed-size chunks, so
// messages split across a chunk boundary are completed by the
// downstream framing. Ingress timestamps are stamped at read time.
type FileSource struct {
	cfg     FileConfig
	handler Handler
	logger  *slog.Logger

	f      *os.File
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewFileSource creates a capture replayer.
func NewFileSource(cfg FileConfig, handler Handler, logger *slog.Logger) *FileSource {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ChunkBytes < 1 {
		cfg.ChunkBytes = DefaultFileConfig().ChunkBytes
	}
	return &FileSource{
		cfg:     cfg,
		handler: handler,
		logger:  logger,
	}
}

// Start opens the capture and begins replaying it.
func (s *FileSource) Start(ctx context.Context) error {
	f, err := os.Open(s.cfg.Path)
	if err != nil {
		return fmt.Errorf("open capture: %w", err)
	}
	s.f = f
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go s.run()

	s.logger.Info("capture replay started",
		"path", s.cfg.Path,
		"chunk_bytes", s.cfg.ChunkBytes,
		"interval", s.cfg.Interval,
	)
	return nil
}

// Stop halts the replay.
func (s *FileSource) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	if s.f != nil {
		s.f.Close()
	}
	s.logger.Info("capture replay stopped")
	return nil
}

// run reads the capture chunk by chunk until EOF or cancellation. The
// handler runs on this goroutine and finishes with each chunk before
// the buffer is reused.
func (s *FileSource) run() {
	defer s.wg.Done()

	buf := make([]byte, s.cfg.ChunkBytes)
	var total int64
	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		n, err := s.f.Read(buf)
		if n > 0 {
			s.handler.HandlePayload(buf[:n], uint64(time.Now().UnixNano()))
			total += int64(n)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.logger.Info("capture replay complete", "bytes", total)
			} else {
				s.logger.Error("capture read failed", "error", err, "bytes", total)
			}
			return
		}

		if s.cfg.Interval > 0 {
			select {
			case <-s.ctx.Done():
				return
			case <-time.After(s.cfg.Interval):
			}
		}
	}
}
