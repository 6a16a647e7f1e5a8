package feed

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ReplaySource streams captured feed payloads over a WebSocket. Each
// binary message carries exactly one datagram as it was captured, so
// downstream framing behaves the same as on the live feed.
type ReplaySource struct {
	cfg     ReplayConfig
	handler Handler
	logger  *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.RWMutex
	conn      *websocket.Conn
	connected bool
	closed    bool
}

// NewReplaySource creates a replay source.
func NewReplaySource(cfg ReplayConfig, handler Handler, logger *slog.Logger) *ReplaySource {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReplaySource{cfg: cfg, handler: handler, logger: logger}
}

// Start launches the connect/read/reconnect loop. The first dial
// happens synchronously so a bad URL fails fast; later reconnects use
// exponential backoff.
func (s *ReplaySource) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrAlreadyClosed
	}
	s.mu.Unlock()

	var runCtx context.Context
	runCtx, s.cancel = context.WithCancel(ctx)

	if err := s.connect(runCtx); err != nil {
		s.cancel()
		return fmt.Errorf("replay dial %s: %w", s.cfg.URL, err)
	}

	s.wg.Add(1)
	go s.run(runCtx)

	s.logger.Info("replay feed connected", "url", s.cfg.URL)
	return nil
}

// Stop closes the connection and waits for the run loop to exit.
func (s *ReplaySource) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	conn := s.conn
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	if conn != nil {
		conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		conn.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("replay feed stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsConnected returns the current connection state.
func (s *ReplaySource) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

func (s *ReplaySource) connect(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, s.cfg.URL, nil)
	if err != nil {
		return err
	}

	conn.SetPingHandler(func(data string) error {
		return conn.WriteControl(
			websocket.PongMessage,
			[]byte(data),
			time.Now().Add(s.cfg.WriteTimeout),
		)
	})

	s.mu.Lock()
	s.conn = conn
	s.connected = true
	s.mu.Unlock()
	return nil
}

// run reads until the connection drops, then reconnects with
// exponential backoff until the context is cancelled.
func (s *ReplaySource) run(ctx context.Context) {
	defer s.wg.Done()

	wait := s.cfg.ReconnectBaseWait
	for {
		err := s.readLoop(ctx)

		s.mu.Lock()
		s.connected = false
		if s.conn != nil {
			s.conn.Close()
			s.conn = nil
		}
		s.mu.Unlock()

		if ctx.Err() != nil {
			return
		}
		s.logger.Warn("replay connection lost, reconnecting",
			"error", err,
			"wait", wait,
		)

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}

		if err := s.connect(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Warn("replay reconnect failed", "error", err, "wait", wait)
			wait *= 2
			if wait > s.cfg.ReconnectMaxWait {
				wait = s.cfg.ReconnectMaxWait
			}
			continue
		}

		s.logger.Info("replay feed reconnected", "url", s.cfg.URL)
		wait = s.cfg.ReconnectBaseWait
	}
}

func (s *ReplaySource) readLoop(ctx context.Context) error {
	s.mu.RLock()
	conn := s.conn
	s.mu.RUnlock()
	if conn == nil {
		return ErrNotConnected
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		msgType, data, err := conn.ReadMessage()
		ingress := uint64(time.Now().UnixNano())
		if err != nil {
			return err
		}
		if msgType != websocket.BinaryMessage {
			continue
		}
		s.handler.HandlePayload(data, ingress)
	}
}
