package config

import (
	"time"

	"github.com/rickgao/tick2trade/internal/ring"
	"github.com/rickgao/tick2trade/internal/telemetry"
)

// Default values for optional configuration fields. The risk and feed
// defaults mirror the original deployment's reset state.
const (
	DefaultListenAddr      = "239.1.1.1:26400"
	DefaultReadBufferBytes = 8 << 20

	DefaultExpectedSeq     = 1
	DefaultSeqGapThreshold = 100

	DefaultPriceBandBps     = 500
	DefaultTokenRatePerMs   = 1000
	DefaultTokenBucketMax   = 10000
	DefaultPositionLimit    = 1000000
	DefaultStaleThresholdNs = 100_000_000

	DefaultRingLen = ring.DefaultLen

	DefaultDBPort    = 5432
	DefaultDBSSLMode = "prefer"
	DefaultMaxConns  = 10
	DefaultMinConns  = 2

	DefaultRefDataPollInterval = 30 * time.Second

	DefaultSinkSubject       = "t2t.decisions"
	DefaultSinkBatchSize     = 1000
	DefaultSinkFlushInterval = 100 * time.Millisecond

	DefaultBinWidthNs = telemetry.DefaultBinWidthNs

	DefaultMetricsPort = 9090
	DefaultMetricsPath = "/metrics"
)

func (c *EngineConfig) applyDefaults() {
	// Feed defaults
	if c.Feed.ListenAddr == "" && c.Feed.ReplayURL == "" && c.Feed.CaptureFile == "" {
		c.Feed.ListenAddr = DefaultListenAddr
	}
	if c.Feed.ReadBufferBytes == 0 {
		c.Feed.ReadBufferBytes = DefaultReadBufferBytes
	}
	if c.Feed.ExpectedSeq == 0 {
		c.Feed.ExpectedSeq = DefaultExpectedSeq
	}
	if c.Feed.SeqGapThreshold == 0 {
		c.Feed.SeqGapThreshold = DefaultSeqGapThreshold
	}

	// Risk defaults
	if c.Risk.PriceBandBps == 0 {
		c.Risk.PriceBandBps = DefaultPriceBandBps
	}
	if c.Risk.TokenRatePerMs == 0 {
		c.Risk.TokenRatePerMs = DefaultTokenRatePerMs
	}
	if c.Risk.TokenBucketMax == 0 {
		c.Risk.TokenBucketMax = DefaultTokenBucketMax
	}
	if c.Risk.PositionLimit == 0 {
		c.Risk.PositionLimit = DefaultPositionLimit
	}
	if c.Risk.StaleThresholdNs == 0 {
		c.Risk.StaleThresholdNs = DefaultStaleThresholdNs
	}

	// Ring defaults
	if c.Ring.Len == 0 {
		c.Ring.Len = DefaultRingLen
	}

	// Database defaults
	applyDBDefaults(&c.Database.Postgres)

	// RefData defaults
	if c.RefData.PollInterval == 0 {
		c.RefData.PollInterval = DefaultRefDataPollInterval
	}

	// Sink defaults
	if c.Sink.Subject == "" {
		c.Sink.Subject = DefaultSinkSubject
	}
	if c.Sink.BatchSize == 0 {
		c.Sink.BatchSize = DefaultSinkBatchSize
	}
	if c.Sink.FlushInterval == 0 {
		c.Sink.FlushInterval = DefaultSinkFlushInterval
	}

	// Telemetry defaults
	if c.Telemetry.BinWidthNs == 0 {
		c.Telemetry.BinWidthNs = DefaultBinWidthNs
	}

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
