// t2treplay generates a synthetic feed for engine testing. It emits
// framed packets over UDP, serves them to WebSocket replay clients, or
// writes them to a capture file.
//
// Usage:
//
//	t2treplay -mode udp -addr 239.1.1.1:26400 -rate 10000
//	t2treplay -mode ws -listen :9000
//	t2treplay -mode file -f capture.bin -n 100000
//	t2treplay -mode gen-symbols -f symbols.txt
//	t2treplay -mode gen-prices -f prices.txt
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

func main() {
	mode := flag.String("mode", "udp", "udp, ws, file, gen-symbols, or gen-prices")
	addr := flag.String("addr", "127.0.0.1:26400", "UDP destination (udp mode)")
	listen := flag.String("listen", ":9000", "WebSocket listen address (ws mode)")
	file := flag.String("f", "capture.bin", "output path (file mode)")
	symbols := flag.String("symbols", "AAPL,MSFT,GOOG,AMZN", "comma-separated symbol universe")
	rate := flag.Int("rate", 1000, "packets per second (udp and ws modes)")
	count := flag.Int("n", 0, "stop after this many packets (0 = unlimited; file mode writes 10000)")
	batch := flag.Int("batch", 4, "messages per packet")
	seed := flag.Int64("seed", 1, "random seed")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	if *rate < 1 {
		*rate = 1
	}
	gen := newGenerator(strings.Split(*symbols, ","), *batch, *seed)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	var err error
	switch *mode {
	case "udp":
		err = runUDP(ctx, *addr, gen, *rate, *count, logger)
	case "ws":
		err = runWS(ctx, *listen, gen, *rate, *count, logger)
	case "file":
		err = runFile(*file, gen, *count, logger)
	case "gen-symbols":
		err = genSymbols(*file, strings.Split(*symbols, ","), logger)
	case "gen-prices":
		err = genPrices(*file, strings.Split(*symbols, ","), *seed, logger)
	default:
		logger.Error("unknown mode", "mode", *mode)
		os.Exit(2)
	}
	if err != nil {
		logger.Error("replay failed", "error", err)
		os.Exit(1)
	}
}

func runUDP(ctx context.Context, addr string, gen *generator, rate, count int, logger *slog.Logger) error {
	conn, err := net.Dial("udp", addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	logger.Info("sending udp packets", "addr", addr, "rate", rate)

	ticker := time.NewTicker(time.Second / time.Duration(rate))
	defer ticker.Stop()

	sent := 0
	for count == 0 || sent < count {
		select {
		case <-ctx.Done():
			logger.Info("stopped", "packets", sent)
			return nil
		case <-ticker.C:
			if _, err := conn.Write(gen.nextPacket()); err != nil {
				return err
			}
			sent++
		}
	}
	logger.Info("done", "packets", sent)
	return nil
}

func runWS(ctx context.Context, listen string, gen *generator, rate, count int, logger *slog.Logger) error {
	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()
	mux.HandleFunc("/replay", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("upgrade failed", "error", err)
			return
		}
		defer conn.Close()
		logger.Info("replay client connected", "remote", r.RemoteAddr)

		ticker := time.NewTicker(time.Second / time.Duration(rate))
		defer ticker.Stop()

		sent := 0
		for count == 0 || sent < count {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := conn.WriteMessage(websocket.BinaryMessage, gen.nextPacket()); err != nil {
					logger.Info("replay client gone", "remote", r.RemoteAddr, "packets", sent)
					return
				}
				sent++
			}
		}
		logger.Info("replay complete", "remote", r.RemoteAddr, "packets", sent)
	})

	srv := &http.Server{Addr: listen, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("serving replay stream", "listen", listen, "path", "/replay")
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

func runFile(path string, gen *generator, count int, logger *slog.Logger) error {
	if count == 0 {
		count = 10000
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	for i := 0; i < count; i++ {
		if _, err := f.Write(gen.nextPacket()); err != nil {
			return err
		}
	}
	logger.Info("capture written", "path", path, "packets", count)
	return nil
}

// genSymbols writes a SYMBOL,INDEX universe file for the engine's
// symbol loader.
func genSymbols(path string, symbols []string, logger *slog.Logger) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	fmt.Fprintln(w, "# symbol universe, SYMBOL,INDEX")
	for i, s := range symbols {
		fmt.Fprintf(w, "%s,%d\n", strings.TrimSpace(s), i)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	logger.Info("symbol file written", "path", path, "symbols", len(symbols))
	return nil
}

// genPrices writes an INDEX,PRICE reference file with prices scattered
// around $150, matching the generator's price walk.
func genPrices(path string, symbols []string, seed int64, logger *slog.Logger) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	rng := rand.New(rand.NewSource(seed))
	w := bufio.NewWriter(f)
	fmt.Fprintln(w, "# reference prices, INDEX,PRICE")
	for i := range symbols {
		px := 1_500_000 + rng.Intn(2000) - 1000
		fmt.Fprintf(w, "%d,%d.%04d\n", i, px/10000, px%10000)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	logger.Info("price file written", "path", path, "prices", len(symbols))
	return nil
}

// generator produces framed feed packets with a realistic message mix:
// half adds, then deletes, executions, and trades against previously
// added orders.
type generator struct {
	rng     *rand.Rand
	symbols []string
	batch   int

	seq     uint32
	nextRef uint64
	live    []liveOrder
}

type liveOrder struct {
	ref    uint64
	symbol string
}

func newGenerator(symbols []string, batch int, seed int64) *generator {
	return &generator{
		rng:     rand.New(rand.NewSource(seed)),
		symbols: symbols,
		batch:   batch,
		seq:     1,
		nextRef: 1,
	}
}

func (g *generator) nextPacket() []byte {
	var pkt []byte
	for i := 0; i < g.batch; i++ {
		pkt = append(pkt, g.nextMessage()...)
	}
	return pkt
}

func (g *generator) nextMessage() []byte {
	roll := g.rng.Intn(100)
	switch {
	case roll < 50 || len(g.live) == 0:
		return g.addOrder()
	case roll < 80:
		return g.deleteOrder()
	case roll < 90:
		return g.executeOrder()
	default:
		return g.trade()
	}
}

func (g *generator) addOrder() []byte {
	symbol := g.symbols[g.rng.Intn(len(g.symbols))]
	ref := g.nextRef
	g.nextRef++
	g.live = append(g.live, liveOrder{ref: ref, symbol: symbol})

	msg := make([]byte, 36)
	g.header(msg, 'A')
	putU64(msg[11:19], ref)
	msg[19] = g.side()
	putU32(msg[20:24], uint32(1+g.rng.Intn(10))*100)
	putSymbol(msg[24:32], symbol)
	putU32(msg[32:36], g.price())
	return msg
}

func (g *generator) deleteOrder() []byte {
	i := g.rng.Intn(len(g.live))
	ref := g.live[i].ref
	g.live = append(g.live[:i], g.live[i+1:]...)

	msg := make([]byte, 19)
	g.header(msg, 'D')
	putU64(msg[11:19], ref)
	return msg
}

func (g *generator) executeOrder() []byte {
	ref := g.live[g.rng.Intn(len(g.live))].ref

	msg := make([]byte, 31)
	g.header(msg, 'E')
	putU64(msg[11:19], ref)
	putU32(msg[19:23], uint32(1+g.rng.Intn(5))*100)
	return msg
}

func (g *generator) trade() []byte {
	symbol := g.symbols[g.rng.Intn(len(g.symbols))]
	ref := g.nextRef
	g.nextRef++

	msg := make([]byte, 44)
	g.header(msg, 'P')
	putU64(msg[11:19], ref)
	msg[19] = g.side()
	putU32(msg[20:24], uint32(1+g.rng.Intn(10))*100)
	putSymbol(msg[24:32], symbol)
	putU32(msg[32:36], g.price())
	putU64(msg[36:44], ref)
	return msg
}

// header writes the type byte, sequence, and 48-bit timestamp.
func (g *generator) header(msg []byte, typ byte) {
	msg[0] = typ
	putU32(msg[1:5], g.seq)
	g.seq++

	ts := uint64(time.Now().UnixNano()) & 0xFFFFFFFFFFFF
	msg[5] = byte(ts >> 40)
	msg[6] = byte(ts >> 32)
	msg[7] = byte(ts >> 24)
	msg[8] = byte(ts >> 16)
	msg[9] = byte(ts >> 8)
	msg[10] = byte(ts)
}

func (g *generator) side() byte {
	if g.rng.Intn(2) == 0 {
		return 'B'
	}
	return 'S'
}

// price walks around $150 in 1/10000 dollar units.
func (g *generator) price() uint32 {
	return 1_500_000 + uint32(g.rng.Intn(2000)) - 1000
}

func putU32(b []byte, v uint32) {
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}

func putU64(b []byte, v uint64) {
	b[0] = byte(v >> 56)
	b[1] = byte(v >> 48)
	b[2] = byte(v >> 40)
	b[3] = byte(v >> 32)
	b[4] = byte(v >> 24)
	b[5] = byte(v >> 16)
	b[6] = byte(v >> 8)
	b[7] = byte(v)
}

func putSymbol(b []byte, s string) {
	for i := 0; i < 8; i++ {
		if i < len(s) {
			b[i] = s[i]
		} else {
			b[i] = ' '
		}
	}
}
