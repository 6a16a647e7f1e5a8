package config

import (
	"time"

	"github.com/rickgao/tick2trade/internal/pipeline"
	"github.com/rickgao/tick2trade/internal/risk"
)

// EngineConfig is the root configuration for an engine instance.
type EngineConfig struct {
	Instance  InstanceConfig  `yaml:"instance"`
	Feed      FeedConfig      `yaml:"feed"`
	Risk      RiskConfig      `yaml:"risk"`
	Ring      RingConfig      `yaml:"ring"`
	Symbols   SymbolsConfig   `yaml:"symbols"`
	Database  DatabaseConfig  `yaml:"database"`
	RefData   RefDataConfig   `yaml:"refdata"`
	Sink      SinkConfig      `yaml:"sink"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// InstanceConfig identifies this engine.
type InstanceConfig struct {
	ID string `yaml:"id"`
	AZ string `yaml:"az"`
}

// FeedConfig holds the market-data intake settings.
type FeedConfig struct {
	ListenAddr      string `yaml:"listen_addr"` // UDP host:port, multicast or unicast
	Interface       string `yaml:"interface"`   // multicast interface name, optional
	ReadBufferBytes int    `yaml:"read_buffer_bytes"`

	// ReplayURL streams captured payloads over WebSocket instead of
	// listening on UDP. Mutually exclusive with listen_addr.
	ReplayURL string `yaml:"replay_url"`

	// CaptureFile replays a local capture file instead of a live
	// source. Mutually exclusive with listen_addr and replay_url.
	CaptureFile     string        `yaml:"capture_file"`
	CaptureInterval time.Duration `yaml:"capture_interval"` // pause between chunks

	DisableSeqCheck bool   `yaml:"disable_seq_check"`
	ExpectedSeq     uint32 `yaml:"expected_seq"`
	SeqGapThreshold uint32 `yaml:"seq_gap_threshold"`
}

// RiskConfig holds the pre-trade gate limits.
type RiskConfig struct {
	PriceBandBps     uint16 `yaml:"price_band_bps"`
	TokenRatePerMs   uint16 `yaml:"token_rate_per_ms"`
	TokenBucketMax   uint16 `yaml:"token_bucket_max"`
	PositionLimit    int32  `yaml:"position_limit"`
	StaleThresholdNs uint32 `yaml:"stale_threshold_ns"`
	Kill             bool   `yaml:"kill"`
}

// RingConfig sizes the decision-record ring.
type RingConfig struct {
	Len int `yaml:"len"`
}

// SymbolsConfig selects the symbol universe. Static symbols are
// loaded at startup; file reads a SYMBOL,INDEX text file instead, and
// from_database loads the universe from Postgres.
type SymbolsConfig struct {
	Static       []string `yaml:"static"`
	File         string   `yaml:"file"`
	FromDatabase bool     `yaml:"from_database"`
}

// DatabaseConfig holds the Postgres connection for symbol and
// reference-price data.
type DatabaseConfig struct {
	Postgres DBConfig `yaml:"postgres"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// RefDataConfig holds the reference-price settings. PriceFile seeds
// prices from an INDEX,PRICE text file at startup; enabled turns on
// the periodic Postgres refresh.
type RefDataConfig struct {
	Enabled      bool          `yaml:"enabled"`
	PollInterval time.Duration `yaml:"poll_interval"`
	PriceFile    string        `yaml:"price_file"`
}

// SinkConfig holds the decision-record consumer settings.
type SinkConfig struct {
	NATSURL       string        `yaml:"nats_url"` // empty disables publishing
	Subject       string        `yaml:"subject"`
	CSVPath       string        `yaml:"csv_path"` // empty disables the CSV dump
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	VerifyCRC     bool          `yaml:"verify_crc"`
}

// TelemetryConfig holds latency-histogram settings.
type TelemetryConfig struct {
	BinWidthNs uint64 `yaml:"bin_width_ns"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}

// RiskParams converts the risk section to gate parameters.
func (c *EngineConfig) RiskParams() risk.Params {
	return risk.Params{
		PriceBandBps:     c.Risk.PriceBandBps,
		TokenRatePerMs:   c.Risk.TokenRatePerMs,
		TokenBucketMax:   c.Risk.TokenBucketMax,
		PositionLimit:    c.Risk.PositionLimit,
		StaleThresholdNs: c.Risk.StaleThresholdNs,
		Kill:             c.Risk.Kill,
	}
}

// PipelineConfig converts the feed, ring, and telemetry sections to
// the pipeline's configuration.
func (c *EngineConfig) PipelineConfig() pipeline.Config {
	cfg := pipeline.DefaultConfig()
	cfg.RingLen = c.Ring.Len
	cfg.SeqCheck = !c.Feed.DisableSeqCheck
	cfg.ExpectedSeq = c.Feed.ExpectedSeq
	cfg.SeqGapThreshold = c.Feed.SeqGapThreshold
	cfg.BinWidthNs = c.Telemetry.BinWidthNs
	cfg.Risk = c.RiskParams()
	return cfg
}
