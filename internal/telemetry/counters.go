package telemetry

import "sync/atomic"

// Reject reasons, in gate priority order.
const (
	RejectKill = iota
	RejectStale
	RejectPriceBand
	RejectToken
	RejectPosition
	rejectReasons
)

// Counters holds the pipeline's monotonic event counters. The data-path
// thread increments; any thread may snapshot.
type Counters struct {
	RxPackets   atomic.Uint64
	RxBytes     atomic.Uint64
	CRCErrors   atomic.Uint64 // reported by the capture adapter
	Drops       atomic.Uint64 // intake drops (short payloads, desyncs)
	SeqGaps     atomic.Uint64
	SeqDupes    atomic.Uint64
	Parsed      atomic.Uint64
	UnknownSym  atomic.Uint64
	BookUpdates atomic.Uint64
	BankHits    atomic.Uint64 // back-to-back updates landing in the same bank
	Accepts     atomic.Uint64
	Rejects     [rejectReasons]atomic.Uint64
	Published   atomic.Uint64 // records handed to the ring
	RingDrops   atomic.Uint64 // ring-full drops
}

// Snapshot is a point-in-time copy of all counters.
type Snapshot struct {
	RxPackets   uint64
	RxBytes     uint64
	CRCErrors   uint64
	Drops       uint64
	SeqGaps     uint64
	SeqDupes    uint64
	Parsed      uint64
	UnknownSym  uint64
	BookUpdates uint64
	BankHits    uint64
	Accepts     uint64
	Rejects     [rejectReasons]uint64
	Published   uint64
	RingDrops   uint64

	Latency LatencySnapshot
}

// RejectTotal sums rejects across all reasons.
func (s *Snapshot) RejectTotal() uint64 {
	var total uint64
	for _, n := range s.Rejects {
		total += n
	}
	return total
}

// Snapshot copies the counters with atomic loads.
func (c *Counters) Snapshot() Snapshot {
	s := Snapshot{
		RxPackets:   c.RxPackets.Load(),
		RxBytes:     c.RxBytes.Load(),
		CRCErrors:   c.CRCErrors.Load(),
		Drops:       c.Drops.Load(),
		SeqGaps:     c.SeqGaps.Load(),
		SeqDupes:    c.SeqDupes.Load(),
		Parsed:      c.Parsed.Load(),
		UnknownSym:  c.UnknownSym.Load(),
		BookUpdates: c.BookUpdates.Load(),
		BankHits:    c.BankHits.Load(),
		Accepts:     c.Accepts.Load(),
		Published:   c.Published.Load(),
		RingDrops:   c.RingDrops.Load(),
	}
	for i := range c.Rejects {
		s.Rejects[i] = c.Rejects[i].Load()
	}
	return s
}

// RejectReasonName maps a reject reason index to its label.
func RejectReasonName(reason int) string {
	switch reason {
	case RejectKill:
		return "kill"
	case RejectStale:
		return "stale"
	case RejectPriceBand:
		return "price_band"
	case RejectToken:
		return "token"
	case RejectPosition:
		return "position"
	}
	return "unknown"
}
