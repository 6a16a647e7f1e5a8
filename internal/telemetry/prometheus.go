package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector exposes the pipeline counters and latency histogram as
// Prometheus metrics. It reads snapshots on scrape, so the data path
// never touches the Prometheus client.
type Collector struct {
	counters *Counters
	latency  *LatencyHistogram

	rxPackets   *prometheus.Desc
	rxBytes     *prometheus.Desc
	crcErrors   *prometheus.Desc
	drops       *prometheus.Desc
	seqGaps     *prometheus.Desc
	seqDupes    *prometheus.Desc
	parsed      *prometheus.Desc
	unknownSym  *prometheus.Desc
	bookUpdates *prometheus.Desc
	bankHits    *prometheus.Desc
	accepts     *prometheus.Desc
	rejects     *prometheus.Desc
	published   *prometheus.Desc
	ringDrops   *prometheus.Desc
	latencyDesc *prometheus.Desc
}

// NewCollector wires the counters and histogram into a Prometheus collector.
func NewCollector(c *Counters, h *LatencyHistogram) *Collector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc("t2t_"+name, help, nil, nil)
	}
	return &Collector{
		counters:    c,
		latency:     h,
		rxPackets:   desc("rx_packets_total", "UDP packets received"),
		rxBytes:     desc("rx_bytes_total", "UDP payload bytes received"),
		crcErrors:   desc("crc_errors_total", "Frames dropped by the capture adapter for bad CRC"),
		drops:       desc("intake_drops_total", "Payloads dropped before parsing"),
		seqGaps:     desc("seq_gaps_total", "Sequence gaps observed"),
		seqDupes:    desc("seq_dupes_total", "Duplicate or stale sequence numbers observed"),
		parsed:      desc("messages_parsed_total", "Messages parsed"),
		unknownSym:  desc("unknown_symbol_total", "Book-affecting messages for symbols not in the table"),
		bookUpdates: desc("book_updates_total", "Top-of-book updates applied"),
		bankHits:    desc("bank_conflicts_total", "Back-to-back updates landing in the same bank"),
		accepts:     desc("accepts_total", "Decisions accepted by the risk gate"),
		rejects: prometheus.NewDesc("t2t_rejects_total",
			"Decisions rejected by the risk gate", []string{"reason"}, nil),
		published: desc("records_published_total", "Decision records handed to the ring"),
		ringDrops: desc("ring_drops_total", "Decision records dropped because the ring was full"),
		latencyDesc: prometheus.NewDesc("t2t_decision_latency_ns",
			"Ingress-to-decision latency in nanoseconds", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (col *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- col.rxPackets
	ch <- col.rxBytes
	ch <- col.crcErrors
	ch <- col.drops
	ch <- col.seqGaps
	ch <- col.seqDupes
	ch <- col.parsed
	ch <- col.unknownSym
	ch <- col.bookUpdates
	ch <- col.bankHits
	ch <- col.accepts
	ch <- col.rejects
	ch <- col.published
	ch <- col.ringDrops
	ch <- col.latencyDesc
}

// Collect implements prometheus.Collector.
func (col *Collector) Collect(ch chan<- prometheus.Metric) {
	s := col.counters.Snapshot()

	counter := func(d *prometheus.Desc, v uint64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v))
	}
	counter(col.rxPackets, s.RxPackets)
	counter(col.rxBytes, s.RxBytes)
	counter(col.crcErrors, s.CRCErrors)
	counter(col.drops, s.Drops)
	counter(col.seqGaps, s.SeqGaps)
	counter(col.seqDupes, s.SeqDupes)
	counter(col.parsed, s.Parsed)
	counter(col.unknownSym, s.UnknownSym)
	counter(col.bookUpdates, s.BookUpdates)
	counter(col.bankHits, s.BankHits)
	counter(col.accepts, s.Accepts)
	counter(col.published, s.Published)
	counter(col.ringDrops, s.RingDrops)

	for reason, n := range s.Rejects {
		ch <- prometheus.MustNewConstMetric(col.rejects, prometheus.CounterValue,
			float64(n), RejectReasonName(reason))
	}

	lat := col.latency.Snapshot()
	buckets := make(map[float64]uint64, HistogramBins)
	var cum uint64
	for i, n := range lat.Bins {
		cum += n
		buckets[float64(uint64(i+1)*lat.BinWidthNs)] = cum
	}
	ch <- prometheus.MustNewConstHistogram(col.latencyDesc, lat.Count, float64(lat.Sum), buckets)
}
