package pipeline

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/tick2trade/internal/book"
	"github.com/rickgao/tick2trade/internal/itch"
	"github.com/rickgao/tick2trade/internal/model"
	"github.com/rickgao/tick2trade/internal/ring"
	"github.com/rickgao/tick2trade/internal/risk"
	"github.com/rickgao/tick2trade/internal/symtab"
	"github.com/rickgao/tick2trade/internal/telemetry"
)

// Config sizes the pipeline and sets its initial operating state.
type Config struct {
	RingLen         int
	SymtabCapacity  int
	SeqCheck        bool
	ExpectedSeq     uint32
	SeqGapThreshold uint32
	BinWidthNs      uint64
	Risk            risk.Params
}

// DefaultConfig mirrors the original deployment's reset state.
func DefaultConfig() Config {
	return Config{
		RingLen:         ring.DefaultLen,
		SymtabCapacity:  model.MaxSymbols,
		SeqCheck:        true,
		ExpectedSeq:     1,
		SeqGapThreshold: 100,
		BinWidthNs:      telemetry.DefaultBinWidthNs,
		Risk:            risk.DefaultParams(),
	}
}

// Pipeline owns all data-path state. Process must be called from a
// single goroutine; the load and control methods may be called from
// any goroutine.
type Pipeline struct {
	counters  telemetry.Counters
	histogram *telemetry.LatencyHistogram

	splitter *itch.Splitter
	decoder  *itch.Decoder
	symbols  *symtab.Table
	book     *book.Book
	refs     *risk.RefPriceTable
	gate     *risk.Gate
	ring     *ring.Ring

	commands chan func(*Pipeline)
	now      func() uint64
	logger   *slog.Logger

	runID   string
	started time.Time
}

// New assembles a pipeline. A nil logger falls back to slog.Default.
func New(cfg Config, logger *slog.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pipeline{
		histogram: telemetry.NewLatencyHistogram(cfg.BinWidthNs),
		commands:  make(chan func(*Pipeline), 64),
		now:       func() uint64 { return uint64(time.Now().UnixNano()) },
		logger:    logger,
		runID:     uuid.NewString(),
		started:   time.Now(),
	}

	var err error
	p.symbols, err = symtab.New(cfg.SymtabCapacity)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	p.ring, err = ring.New(cfg.RingLen, &p.counters)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	p.refs = risk.NewRefPriceTable()
	p.gate = risk.NewGate(cfg.Risk, p.refs, &p.counters)
	p.book = book.New(&p.counters, func() uint64 { return p.now() })
	p.decoder = itch.NewDecoder(p.symbols, &p.counters, func() uint64 { return p.now() })
	p.splitter = itch.NewSplitter(&p.counters, cfg.SeqCheck, cfg.ExpectedSeq,
		cfg.SeqGapThreshold, p.handleFrame)

	logger.Info("pipeline assembled",
		"run_id", p.runID,
		"ring_len", cfg.RingLen,
		"symtab_capacity", cfg.SymtabCapacity,
		"seq_check", cfg.SeqCheck,
		"bin_width_ns", cfg.BinWidthNs,
	)
	return p, nil
}

// Process feeds one UDP payload through the data path. Queued control
// commands are applied first, at the packet boundary.
func (p *Pipeline) Process(payload []byte, ingressTS uint64) {
	for {
		select {
		case cmd := <-p.commands:
			cmd(p)
		default:
			p.splitter.Process(payload, ingressTS)
			return
		}
	}
}

func (p *Pipeline) handleFrame(f itch.Frame) {
	m := p.decoder.Decode(f)
	ev, ok := p.book.Apply(&m)
	if !ok {
		return
	}
	rec := p.gate.Evaluate(&ev, p.now())
	if p.ring.Publish(&rec) {
		p.histogram.Observe(rec.LatencyNs())
	}
}

// UpdateRiskParams queues a parameter swap for the next packet
// boundary.
func (p *Pipeline) UpdateRiskParams(params risk.Params) {
	p.enqueue(func(p *Pipeline) {
		p.gate.SetParams(params)
		p.logger.Info("risk parameters updated",
			"price_band_bps", params.PriceBandBps,
			"token_rate_per_ms", params.TokenRatePerMs,
			"position_limit", params.PositionLimit,
			"kill", params.Kill,
		)
	})
}

// Kill flips only the kill switch, leaving other limits in place.
func (p *Pipeline) Kill(on bool) {
	p.enqueue(func(p *Pipeline) {
		params := p.gate.Params()
		params.Kill = on
		p.gate.SetParams(params)
		p.logger.Warn("kill switch changed", "kill", on)
	})
}

// ClearStale drops the sequence-gap stale latch.
func (p *Pipeline) ClearStale() {
	p.enqueue(func(p *Pipeline) {
		p.splitter.ClearStale()
		p.logger.Info("stale latch cleared")
	})
}

// ResetSequence re-arms sequence tracking at the given value.
func (p *Pipeline) ResetSequence(seq uint32) {
	p.enqueue(func(p *Pipeline) {
		p.splitter.SetExpectedSeq(seq)
		p.logger.Info("sequence tracking reset", "expected_seq", seq)
	})
}

func (p *Pipeline) enqueue(cmd func(*Pipeline)) {
	p.commands <- cmd
}

// LoadSymbols replaces the symbol universe: the strings get dense
// indices in order, and the new table becomes visible atomically.
func (p *Pipeline) LoadSymbols(symbols []string) error {
	if err := p.symbols.LoadStrings(symbols); err != nil {
		return err
	}
	p.symbols.Commit()
	p.logger.Info("symbol table committed", "symbols", len(symbols))
	return nil
}

// SetRefPrice stores one reference price. Zero disables the
// price-band check for that symbol.
func (p *Pipeline) SetRefPrice(idx uint16, px model.Price) {
	p.refs.Set(idx, px)
}

// SymbolIndex resolves a ticker against the committed symbol table.
func (p *Pipeline) SymbolIndex(symbol string) (uint16, bool) {
	key, err := model.NewSymbolKey(symbol)
	if err != nil {
		return 0, false
	}
	return p.symbols.Lookup(key)
}

// Stats is a point-in-time view of the whole data path, tagged with
// the run ID so captures from different sessions stay attributable.
type Stats struct {
	RunID     string
	Uptime    time.Duration
	Counters  telemetry.Snapshot
	Latency   telemetry.LatencySnapshot
	RingDepth uint32
}

// Stats snapshots the counters, latency histogram, and ring depth.
func (p *Pipeline) Stats() Stats {
	return Stats{
		RunID:     p.runID,
		Uptime:    time.Since(p.started),
		Counters:  p.counters.Snapshot(),
		Latency:   p.histogram.Snapshot(),
		RingDepth: p.ring.Depth(),
	}
}

// RunID identifies this pipeline instance for logs and captures.
func (p *Pipeline) RunID() string { return p.runID }

// Ring exposes the publisher ring for the consumer side.
func (p *Pipeline) Ring() *ring.Ring { return p.ring }

// Counters exposes the telemetry counters.
func (p *Pipeline) Counters() *telemetry.Counters { return &p.counters }

// Histogram exposes the latency histogram.
func (p *Pipeline) Histogram() *telemetry.LatencyHistogram { return p.histogram }

// BookEntry returns a copy of one symbol's top-of-book.
func (p *Pipeline) BookEntry(idx uint16) book.Entry { return p.book.Entry(idx) }

// SetClock overrides the decision clock. Tests use a deterministic
// source; production keeps the wall clock.
func (p *Pipeline) SetClock(now func() uint64) { p.now = now }
