package feed

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type capture struct {
	mu       sync.Mutex
	payloads [][]byte
	times    []uint64
}

func (c *capture) HandlePayload(payload []byte, ingressNs uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	buf := make([]byte, len(payload))
	copy(buf, payload)
	c.payloads = append(c.payloads, buf)
	c.times = append(c.times, ingressNs)
}

func (c *capture) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.payloads)
}

func (c *capture) payload(i int) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.payloads[i]
}

func wsURL(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func replayServer(t *testing.T, frames [][]byte) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		for _, f := range frames {
			if err := conn.WriteMessage(websocket.BinaryMessage, f); err != nil {
				return
			}
		}
		// Hold the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within deadline")
}

func TestReplayDeliversBinaryFrames(t *testing.T) {
	frames := [][]byte{
		{0x01, 0x02, 0x03},
		{0xAA, 0xBB},
	}
	srv := replayServer(t, frames)
	defer srv.Close()

	sink := &capture{}
	cfg := DefaultReplayConfig()
	cfg.URL = wsURL(t, srv)

	src := NewReplaySource(cfg, sink, slog.Default())
	if err := src.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer src.Stop(context.Background())

	waitFor(t, func() bool { return sink.count() == 2 })

	if got := sink.payload(0); string(got) != string(frames[0]) {
		t.Errorf("payload 0 = %x, want %x", got, frames[0])
	}
	if got := sink.payload(1); string(got) != string(frames[1]) {
		t.Errorf("payload 1 = %x, want %x", got, frames[1])
	}
}

func TestReplayIgnoresTextFrames(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteMessage(websocket.TextMessage, []byte(`{"status":"ok"}`))
		conn.WriteMessage(websocket.BinaryMessage, []byte{0x42})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	sink := &capture{}
	cfg := DefaultReplayConfig()
	cfg.URL = wsURL(t, srv)

	src := NewReplaySource(cfg, sink, slog.Default())
	if err := src.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer src.Stop(context.Background())

	waitFor(t, func() bool { return sink.count() == 1 })

	if got := sink.payload(0); len(got) != 1 || got[0] != 0x42 {
		t.Errorf("payload = %x, want 42", got)
	}
}

func TestReplayDialFailure(t *testing.T) {
	cfg := DefaultReplayConfig()
	cfg.URL = "ws://127.0.0.1:1/replay"

	src := NewReplaySource(cfg, &capture{}, slog.Default())
	if err := src.Start(context.Background()); err == nil {
		src.Stop(context.Background())
		t.Fatal("expected dial error")
	}
}

func TestReplayReconnects(t *testing.T) {
	var mu sync.Mutex
	dials := 0

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		dials++
		n := dials
		mu.Unlock()

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		if n == 1 {
			// Drop the first connection immediately after one frame.
			conn.WriteMessage(websocket.BinaryMessage, []byte{0x01})
			conn.Close()
			return
		}
		defer conn.Close()
		conn.WriteMessage(websocket.BinaryMessage, []byte{0x02})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	sink := &capture{}
	cfg := DefaultReplayConfig()
	cfg.URL = wsURL(t, srv)
	cfg.ReconnectBaseWait = 10 * time.Millisecond
	cfg.ReconnectMaxWait = 50 * time.Millisecond

	src := NewReplaySource(cfg, sink, slog.Default())
	if err := src.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer src.Stop(context.Background())

	waitFor(t, func() bool { return sink.count() >= 2 })

	mu.Lock()
	got := dials
	mu.Unlock()
	if got < 2 {
		t.Errorf("dials = %d, want >= 2", got)
	}
	if !src.IsConnected() {
		t.Error("IsConnected = false after reconnect")
	}
}

func TestReplayStopIsIdempotent(t *testing.T) {
	srv := replayServer(t, nil)
	defer srv.Close()

	cfg := DefaultReplayConfig()
	cfg.URL = wsURL(t, srv)

	src := NewReplaySource(cfg, &capture{}, slog.Default())
	if err := src.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := src.Stop(context.Background()); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := src.Stop(context.Background()); err != nil {
		t.Fatalf("second Stop failed: %v", err)
	}
	if err := src.Start(context.Background()); err != ErrAlreadyClosed {
		t.Errorf("Start after Stop = %v, want ErrAlreadyClosed", err)
	}
}
