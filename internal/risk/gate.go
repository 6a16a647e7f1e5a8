package risk

import (
	"github.com/rickgao/tick2trade/internal/model"
	"github.com/rickgao/tick2trade/internal/telemetry"
)

const nsPerMs = 1_000_000

// Gate evaluates the pre-trade checks. It is owned by the data-path
// thread; parameter updates go through SetParams between messages.
type Gate struct {
	params   Params
	refs     *RefPriceTable
	counters *telemetry.Counters

	tokens        uint32
	replenishBase uint64
}

// NewGate creates a gate with a full token bucket.
func NewGate(params Params, refs *RefPriceTable, counters *telemetry.Counters) *Gate {
	return &Gate{
		params:   params,
		refs:     refs,
		counters: counters,
		tokens:   uint32(params.TokenBucketMax),
	}
}

// SetParams swaps the operating limits. Shrinking the bucket max
// clamps the current token count.
func (g *Gate) SetParams(p Params) {
	g.params = p
	if g.tokens > uint32(p.TokenBucketMax) {
		g.tokens = uint32(p.TokenBucketMax)
	}
}

// Params returns the current limits.
func (g *Gate) Params() Params { return g.params }

// Tokens returns the current bucket level.
func (g *Gate) Tokens() uint32 { return g.tokens }

// Evaluate runs all checks against one book event and returns the
// decision record with ts_decision = now. Flag bits mark every failing
// check; the reject counters attribute the event to the
// highest-priority failure only. Tokens are consumed only on accept.
func (g *Gate) Evaluate(ev *model.BookEvent, now uint64) model.DecisionRecord {
	g.replenish(now)

	var flags uint8
	if g.params.Kill {
		flags |= model.FlagKill
	}
	if ev.Stale || now-ev.BookTS > uint64(g.params.StaleThresholdNs) {
		flags |= model.FlagStale
	}
	ref := g.refs.Get(ev.SymbolIndex)
	if !g.priceBandOK(ev.Mid(), ref) {
		flags |= model.FlagPriceBand
	}
	if g.tokens == 0 {
		flags |= model.FlagToken
	}
	if !g.positionOK(ev) {
		flags |= model.FlagPosition
	}

	if flags == 0 {
		flags = model.FlagAccept
		g.tokens--
		g.counters.Accepts.Add(1)
	} else {
		g.counters.Rejects[rejectReason(flags)].Add(1)
	}

	return model.DecisionRecord{
		Seq:         ev.Seq,
		TsIngress:   ev.IngressTS,
		TsDecision:  now,
		SymbolIndex: ev.SymbolIndex,
		Side:        ev.Side,
		Flags:       flags,
		Qty:         ev.EventQty(),
		Price:       ev.EventPrice(),
		RefPrice:    ref,
		Feature0:    uint32(ev.AskPx) - uint32(ev.BidPx),
		Feature1:    int32(ev.BidQty) - int32(ev.AskQty),
		Feature2:    uint32(ev.LastTradePx),
	}
}

// replenish credits the bucket for whole elapsed milliseconds and
// advances the base by exactly the credited time, so fractional
// milliseconds carry over.
func (g *Gate) replenish(now uint64) {
	if g.replenishBase == 0 {
		g.replenishBase = now
		return
	}
	if now <= g.replenishBase {
		return
	}
	elapsedMs := (now - g.replenishBase) / nsPerMs
	if elapsedMs == 0 {
		return
	}
	credit := elapsedMs * uint64(g.params.TokenRatePerMs)
	max := uint64(g.params.TokenBucketMax)
	if t := uint64(g.tokens) + credit; t < max {
		g.tokens = uint32(t)
	} else {
		g.tokens = uint32(max)
	}
	g.replenishBase += elapsedMs * nsPerMs
}

func (g *Gate) priceBandOK(mid, ref model.Price) bool {
	if ref == 0 || g.params.PriceBandBps == 0 {
		return true
	}
	var diff uint64
	if mid >= ref {
		diff = uint64(mid - ref)
	} else {
		diff = uint64(ref - mid)
	}
	return diff*10000 <= uint64(ref)*uint64(g.params.PriceBandBps)
}

func (g *Gate) positionOK(ev *model.BookEvent) bool {
	if g.params.PositionLimit < 0 {
		return false
	}
	limit := uint32(g.params.PositionLimit)
	return ev.BidQty <= limit && ev.AskQty <= limit
}

// rejectReason maps a nonzero flag set to the highest-priority reason.
func rejectReason(flags uint8) int {
	switch {
	case flags&model.FlagKill != 0:
		return telemetry.RejectKill
	case flags&model.FlagStale != 0:
		return telemetry.RejectStale
	case flags&model.FlagPriceBand != 0:
		return telemetry.RejectPriceBand
	case flags&model.FlagToken != 0:
		return telemetry.RejectToken
	}
	return telemetry.RejectPosition
}
