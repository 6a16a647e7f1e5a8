package pipeline

import (
	"encoding/binary"
	"sync"
	"testing"

	"github.com/rickgao/tick2trade/internal/model"
	"github.com/rickgao/tick2trade/internal/risk"
)

// addOrder builds a 36-byte Add Order message.
func addOrder(seq uint32, sym string, side byte, px, qty uint32) []byte {
	b := make([]byte, 36)
	b[0] = 'A'
	binary.BigEndian.PutUint32(b[1:5], seq)
	binary.BigEndian.PutUint64(b[11:19], uint64(seq))
	b[19] = side
	binary.BigEndian.PutUint32(b[20:24], qty)
	copy(b[24:32], "        ")
	copy(b[24:32], sym)
	binary.BigEndian.PutUint32(b[32:36], px)
	return b
}

// fakeClock hands out strictly increasing nanosecond timestamps.
type fakeClock struct {
	t    uint64
	step uint64
}

func (c *fakeClock) now() uint64 {
	c.t += c.step
	return c.t
}

func newTestPipeline(t *testing.T, cfg Config) (*Pipeline, *fakeClock) {
	t.Helper()
	p, err := New(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	clk := &fakeClock{t: 1_000_000, step: 100}
	p.SetClock(clk.now)
	return p, clk
}

func generousConfig() Config {
	cfg := DefaultConfig()
	cfg.Risk = risk.Params{
		PriceBandBps:     500,
		TokenRatePerMs:   1000,
		TokenBucketMax:   10000,
		PositionLimit:    1000000,
		StaleThresholdNs: 1_000_000_000,
	}
	return cfg
}

func drain(t *testing.T, p *Pipeline) []model.DecisionRecord {
	t.Helper()
	var recs []model.DecisionRecord
	for {
		rec, ok := p.Ring().Consume(true)
		if !ok {
			if p.Ring().Depth() != 0 {
				t.Fatal("record failed CRC verification")
			}
			return recs
		}
		recs = append(recs, rec)
	}
}

func TestKillSwitchPrecedence(t *testing.T) {
	p, clk := newTestPipeline(t, generousConfig())
	if err := p.LoadSymbols([]string{"AAPL"}); err != nil {
		t.Fatal(err)
	}
	p.SetRefPrice(0, 1500000)
	p.Kill(true)

	p.Process(addOrder(1, "AAPL", 'B', 1500000, 100), clk.now())

	recs := drain(t, p)
	if len(recs) != 1 {
		t.Fatalf("records = %d, want 1", len(recs))
	}
	r := recs[0]
	if r.Accepted() {
		t.Error("accepted with kill asserted")
	}
	if r.Flags&model.FlagKill == 0 {
		t.Errorf("flags = %#x, want kill bit", r.Flags)
	}
	if r.SymbolIndex != 0 || r.Price != 1500000 || r.Qty != 100 {
		t.Errorf("record = %+v", r)
	}
}

func TestPriceBandReject(t *testing.T) {
	p, clk := newTestPipeline(t, generousConfig())
	p.LoadSymbols([]string{"AAPL"})
	p.SetRefPrice(0, 1000000)

	// Ask side empty, so the mid is the bid itself: 1 100 000 is
	// 1000 bps off a 500 bps band.
	p.Process(addOrder(2, "AAPL", 'B', 1100000, 100), clk.now())

	recs := drain(t, p)
	if len(recs) != 1 {
		t.Fatalf("records = %d, want 1", len(recs))
	}
	if recs[0].Accepted() {
		t.Error("accepted outside the price band")
	}
	if recs[0].Flags&model.FlagPriceBand == 0 {
		t.Errorf("flags = %#x, want price-band bit", recs[0].Flags)
	}
}

func TestTokenExhaustion(t *testing.T) {
	cfg := generousConfig()
	cfg.Risk.TokenRatePerMs = 1
	cfg.Risk.TokenBucketMax = 3
	cfg.ExpectedSeq = 3 // the feed starts at seq 3, so no gap is latched
	p, clk := newTestPipeline(t, cfg)
	p.LoadSymbols([]string{"AAPL"})

	// Five adds inside a few microseconds of fake time.
	for seq := uint32(3); seq <= 7; seq++ {
		p.Process(addOrder(seq, "AAPL", 'B', 1500000, 100), clk.now())
	}

	recs := drain(t, p)
	if len(recs) != 5 {
		t.Fatalf("records = %d, want 5", len(recs))
	}
	for i, r := range recs[:3] {
		if !r.Accepted() {
			t.Errorf("record %d: flags = %#x, want accept", i, r.Flags)
		}
	}
	for i, r := range recs[3:] {
		if r.Flags&model.FlagToken == 0 {
			t.Errorf("record %d: flags = %#x, want token bit", i+3, r.Flags)
		}
	}
}

func TestSequenceGapStale(t *testing.T) {
	cfg := generousConfig()
	cfg.SeqGapThreshold = 10
	p, clk := newTestPipeline(t, cfg)
	p.LoadSymbols([]string{"AAPL"})

	for _, seq := range []uint32{1, 2, 5} {
		p.Process(addOrder(seq, "AAPL", 'B', 1500000, 100), clk.now())
	}
	if got := p.Counters().SeqGaps.Load(); got != 1 {
		t.Errorf("seq gaps = %d, want 1", got)
	}

	// Ten further in-order messages clear the latch.
	for seq := uint32(6); seq <= 15; seq++ {
		p.Process(addOrder(seq, "AAPL", 'B', 1500000, 100), clk.now())
	}

	recs := drain(t, p)
	if len(recs) != 13 {
		t.Fatalf("records = %d, want 13", len(recs))
	}
	for _, r := range recs[:2] {
		if r.Flags&model.FlagStale != 0 {
			t.Errorf("seq %d stale before the gap", r.Seq)
		}
	}
	for _, r := range recs[2:12] {
		if r.Flags&model.FlagStale == 0 {
			t.Errorf("seq %d not stale inside the latch window", r.Seq)
		}
	}
	if last := recs[12]; last.Flags&model.FlagStale != 0 {
		t.Errorf("seq %d still stale after ten in-order messages", last.Seq)
	}
}

func TestRingBackPressure(t *testing.T) {
	cfg := generousConfig()
	cfg.RingLen = 8
	p, clk := newTestPipeline(t, cfg)
	p.LoadSymbols([]string{"AAPL"})

	for seq := uint32(1); seq <= 12; seq++ {
		p.Process(addOrder(seq, "AAPL", 'B', 1500000, 100), clk.now())
	}

	if got := p.Ring().Depth(); got != 8 {
		t.Errorf("depth = %d, want 8", got)
	}
	if got := p.Counters().RingDrops.Load(); got != 4 {
		t.Errorf("ring drops = %d, want 4", got)
	}

	recs := drain(t, p)
	if len(recs) != 8 {
		t.Fatalf("records = %d, want 8", len(recs))
	}
	for i, r := range recs {
		if r.Seq != uint32(i+1) {
			t.Errorf("record %d: seq = %d, want %d", i, r.Seq, i+1)
		}
	}
}

func TestSymbolCommitAtomicity(t *testing.T) {
	p, clk := newTestPipeline(t, generousConfig())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.LoadSymbols([]string{"AAPL", "GOOGL", "AMZN", "MSFT"})
	}()

	for seq := uint32(1); seq <= 2000; seq++ {
		p.Process(addOrder(seq, "MSFT", 'B', 1500000, 100), clk.now())
	}
	wg.Wait()

	// Every published record resolved MSFT to exactly index 3;
	// lookups before the commit produced no record at all.
	recs := drain(t, p)
	for _, r := range recs {
		if r.SymbolIndex != 3 {
			t.Fatalf("seq %d: symbol index = %d, want 3", r.Seq, r.SymbolIndex)
		}
	}
	published := uint64(len(recs)) + p.Counters().RingDrops.Load()
	misses := p.Counters().UnknownSym.Load()
	if published+misses != 2000 {
		t.Errorf("records (%d) + misses (%d) != 2000", published, misses)
	}
}

func TestLatencyObservedOnPublish(t *testing.T) {
	p, clk := newTestPipeline(t, generousConfig())
	p.LoadSymbols([]string{"AAPL"})

	p.Process(addOrder(1, "AAPL", 'B', 1500000, 100), clk.now())

	s := p.Histogram().Snapshot()
	if s.Count != 1 {
		t.Errorf("histogram count = %d, want 1", s.Count)
	}
	recs := drain(t, p)
	if recs[0].TsDecision < recs[0].TsIngress {
		t.Error("decision timestamp precedes ingress")
	}
}

func TestReplayDeterminism(t *testing.T) {
	run := func() []model.DecisionRecord {
		p, _ := newTestPipeline(t, generousConfig())
		clk := &fakeClock{t: 1_000_000, step: 100}
		p.SetClock(clk.now)
		p.LoadSymbols([]string{"AAPL", "MSFT"})
		p.SetRefPrice(0, 1500000)

		feed := clk.now()
		for seq := uint32(1); seq <= 50; seq++ {
			sym := "AAPL"
			if seq%3 == 0 {
				sym = "MSFT"
			}
			p.Process(addOrder(seq, sym, 'B', 1500000+seq*100, 10*seq), feed)
		}
		return drain(t, p)
	}

	a, b := run(), run()
	if len(a) != len(b) {
		t.Fatalf("replay lengths differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("record %d differs:\n %+v\n %+v", i, a[i], b[i])
		}
	}
}

func TestClearStaleCommand(t *testing.T) {
	cfg := generousConfig()
	cfg.SeqGapThreshold = 1000
	p, clk := newTestPipeline(t, cfg)
	p.LoadSymbols([]string{"AAPL"})

	p.Process(addOrder(5, "AAPL", 'B', 1500000, 100), clk.now()) // gap from 1
	p.ClearStale()
	p.Process(addOrder(6, "AAPL", 'B', 1500000, 100), clk.now())

	recs := drain(t, p)
	if len(recs) != 2 {
		t.Fatalf("records = %d, want 2", len(recs))
	}
	if recs[0].Flags&model.FlagStale == 0 {
		t.Error("gap record not stale")
	}
	if recs[1].Flags&model.FlagStale != 0 {
		t.Error("record stale after operator clear")
	}
}

func TestRepeatedConfigIdempotent(t *testing.T) {
	p, clk := newTestPipeline(t, generousConfig())
	p.LoadSymbols([]string{"AAPL"})
	p.LoadSymbols([]string{"AAPL"})
	params := risk.DefaultParams()
	p.UpdateRiskParams(params)
	p.UpdateRiskParams(params)

	p.Process(addOrder(1, "AAPL", 'B', 1500000, 100), clk.now())
	recs := drain(t, p)
	if len(recs) != 1 || !recs[0].Accepted() {
		t.Fatalf("records = %+v, want one accept", recs)
	}
}

func TestStatsSnapshot(t *testing.T) {
	p, clk := newTestPipeline(t, generousConfig())
	p.LoadSymbols([]string{"AAPL"})

	p.Process(addOrder(1, "AAPL", 'B', 1500000, 100), clk.now())

	s := p.Stats()
	if s.RunID == "" {
		t.Error("run ID not set")
	}
	if s.Counters.RxPackets != 1 {
		t.Errorf("rx_packets = %d, want 1", s.Counters.RxPackets)
	}
	if s.Counters.Parsed != 1 {
		t.Errorf("parsed = %d, want 1", s.Counters.Parsed)
	}
	if s.RingDepth != 1 {
		t.Errorf("ring depth = %d, want 1", s.RingDepth)
	}
	if s.Latency.Count != 1 {
		t.Errorf("latency count = %d, want 1", s.Latency.Count)
	}

	p2, _ := newTestPipeline(t, generousConfig())
	if p2.RunID() == p.RunID() {
		t.Error("run IDs collide across instances")
	}
}
