package feed

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"
)

// maxDatagram bounds one read; ITCH payloads never exceed a single
// MTU but the buffer leaves headroom for jumbo frames.
const maxDatagram = 9216

// UDPSource reads feed payloads from a UDP socket and hands each one
// to the handler from a single goroutine.
type UDPSource struct {
	cfg     UDPConfig
	handler Handler
	logger  *slog.Logger

	conn   *net.UDPConn
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewUDPSource creates a UDP source.
func NewUDPSource(cfg UDPConfig, handler Handler, logger *slog.Logger) *UDPSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &UDPSource{cfg: cfg, handler: handler, logger: logger}
}

// Start binds the socket and begins the read loop. Multicast group
// addresses join on the configured interface.
func (s *UDPSource) Start(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", s.cfg.ListenAddr, err)
	}

	var conn *net.UDPConn
	if addr.IP != nil && addr.IP.IsMulticast() {
		var ifi *net.Interface
		if s.cfg.Interface != "" {
			ifi, err = net.InterfaceByName(s.cfg.Interface)
			if err != nil {
				return fmt.Errorf("interface %s: %w", s.cfg.Interface, err)
			}
		}
		conn, err = net.ListenMulticastUDP("udp", ifi, addr)
	} else {
		conn, err = net.ListenUDP("udp", addr)
	}
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.ListenAddr, err)
	}

	if s.cfg.ReadBufferBytes > 0 {
		if err := conn.SetReadBuffer(s.cfg.ReadBufferBytes); err != nil {
			s.logger.Warn("set read buffer failed",
				"bytes", s.cfg.ReadBufferBytes,
				"error", err,
			)
		}
	}

	s.conn = conn
	var runCtx context.Context
	runCtx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go s.readLoop(runCtx)

	s.logger.Info("udp feed listening",
		"addr", s.cfg.ListenAddr,
		"interface", s.cfg.Interface,
	)
	return nil
}

// Stop closes the socket and waits for the read loop to exit.
func (s *UDPSource) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.conn != nil {
		s.conn.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("udp feed stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *UDPSource) readLoop(ctx context.Context) {
	defer s.wg.Done()

	buf := make([]byte, maxDatagram)
	for {
		n, _, err := s.conn.ReadFromUDP(buf)
		ingress := uint64(time.Now().UnixNano())
		if err != nil {
			if ctx.Err() != nil || strings.Contains(err.Error(), "use of closed") {
				return
			}
			s.logger.Warn("udp read failed", "error", err)
			continue
		}
		s.handler.HandlePayload(buf[:n], ingress)
	}
}
