package telemetry

import (
	"math"
	"sync/atomic"
)

// HistogramBins is the number of latency bins.
const HistogramBins = 256

// DefaultBinWidthNs is the bin width for the software target. Bins 0..254
// cover [0, 25.5µs); the top bin saturates and holds everything above.
const DefaultBinWidthNs = 100

// LatencyHistogram is a fixed 256-bin histogram of ingress-to-decision
// latency, with running min/max/sum for mean computation. Percentiles are
// derived off-line from the bin counts.
type LatencyHistogram struct {
	binWidth uint64
	bins     [HistogramBins]atomic.Uint64
	count    atomic.Uint64
	sum      atomic.Uint64
	min      atomic.Uint64
	max      atomic.Uint64
}

// NewLatencyHistogram creates a histogram with the given bin width in ns.
func NewLatencyHistogram(binWidthNs uint64) *LatencyHistogram {
	if binWidthNs == 0 {
		binWidthNs = DefaultBinWidthNs
	}
	h := &LatencyHistogram{binWidth: binWidthNs}
	h.min.Store(math.MaxUint64)
	return h
}

// Observe records one latency sample.
func (h *LatencyHistogram) Observe(latencyNs uint64) {
	bin := latencyNs / h.binWidth
	if bin >= HistogramBins {
		bin = HistogramBins - 1
	}
	h.bins[bin].Add(1)
	h.count.Add(1)
	h.sum.Add(latencyNs)

	for {
		cur := h.min.Load()
		if latencyNs >= cur || h.min.CompareAndSwap(cur, latencyNs) {
			break
		}
	}
	for {
		cur := h.max.Load()
		if latencyNs <= cur || h.max.CompareAndSwap(cur, latencyNs) {
			break
		}
	}
}

// BinWidthNs returns the configured bin width.
func (h *LatencyHistogram) BinWidthNs() uint64 { return h.binWidth }

// LatencySnapshot is a point-in-time copy of the histogram state.
type LatencySnapshot struct {
	BinWidthNs uint64
	Bins       [HistogramBins]uint64
	Count      uint64
	Sum        uint64
	Min        uint64 // MaxUint64 when no samples
	Max        uint64
}

// Snapshot copies the histogram.
func (h *LatencyHistogram) Snapshot() LatencySnapshot {
	s := LatencySnapshot{
		BinWidthNs: h.binWidth,
		Count:      h.count.Load(),
		Sum:        h.sum.Load(),
		Min:        h.min.Load(),
		Max:        h.max.Load(),
	}
	for i := range h.bins {
		s.Bins[i] = h.bins[i].Load()
	}
	return s
}

// Mean returns the average latency in ns, or 0 with no samples.
func (s *LatencySnapshot) Mean() float64 {
	if s.Count == 0 {
		return 0
	}
	return float64(s.Sum) / float64(s.Count)
}

// Percentile estimates the p-th percentile (0 < p <= 100) from the bin
// counts, returning the upper edge of the bin containing the rank.
func (s *LatencySnapshot) Percentile(p float64) uint64 {
	if s.Count == 0 {
		return 0
	}
	rank := uint64(p / 100 * float64(s.Count))
	if rank == 0 {
		rank = 1
	}
	var seen uint64
	for i, n := range s.Bins {
		seen += n
		if seen >= rank {
			return uint64(i+1) * s.BinWidthNs
		}
	}
	return uint64(HistogramBins) * s.BinWidthNs
}
