package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rickgao/tick2trade/internal/config"
	"github.com/rickgao/tick2trade/internal/database"
	"github.com/rickgao/tick2trade/internal/feed"
	"github.com/rickgao/tick2trade/internal/pipeline"
	"github.com/rickgao/tick2trade/internal/refdata"
	"github.com/rickgao/tick2trade/internal/sink"
	"github.com/rickgao/tick2trade/internal/telemetry"
	"github.com/rickgao/tick2trade/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/engine.local.yaml", "path to config file")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("starting engine",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(2)
	}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"listen_addr", cfg.Feed.ListenAddr,
		"replay_url", cfg.Feed.ReplayURL,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Build the data path
	pipe, err := pipeline.New(cfg.PipelineConfig(), logger)
	if err != nil {
		logger.Error("failed to build pipeline", "error", err)
		os.Exit(1)
	}

	// Database, when the symbol universe or reference prices come
	// from Postgres.
	var pool *pgxpool.Pool
	if cfg.Symbols.FromDatabase || cfg.RefData.Enabled {
		logger.Info("connecting to database",
			"host", cfg.Database.Postgres.Host,
			"port", cfg.Database.Postgres.Port,
			"database", cfg.Database.Postgres.Name,
		)
		pool, err = database.Connect(ctx, cfg.Database.Postgres)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		logger.Info("database connected")
	}

	// Symbol universe
	switch {
	case cfg.Symbols.FromDatabase && !cfg.RefData.Enabled:
		symbols, err := database.LoadSymbols(ctx, pool)
		if err != nil {
			logger.Error("failed to load symbols", "error", err)
			os.Exit(1)
		}
		if err := pipe.LoadSymbols(symbols); err != nil {
			logger.Error("failed to commit symbols", "error", err)
			os.Exit(2)
		}
	case cfg.Symbols.File != "":
		symbols, err := refdata.LoadSymbolFile(cfg.Symbols.File)
		if err != nil {
			logger.Error("failed to load symbol file", "error", err)
			os.Exit(2)
		}
		if err := pipe.LoadSymbols(symbols); err != nil {
			logger.Error("failed to commit symbols", "error", err)
			os.Exit(2)
		}
		logger.Info("symbol universe loaded", "path", cfg.Symbols.File, "symbols", len(symbols))
	case len(cfg.Symbols.Static) > 0:
		if err := pipe.LoadSymbols(cfg.Symbols.Static); err != nil {
			logger.Error("failed to commit symbols", "error", err)
			os.Exit(2)
		}
	}

	// Seed reference prices from file before the feed starts.
	if cfg.RefData.PriceFile != "" {
		prices, err := refdata.LoadPriceFile(cfg.RefData.PriceFile)
		if err != nil {
			logger.Error("failed to load price file", "error", err)
			os.Exit(1)
		}
		for _, rp := range prices {
			pipe.SetRefPrice(rp.Index, rp.Price)
		}
		logger.Info("reference prices seeded", "path", cfg.RefData.PriceFile, "prices", len(prices))
	}

	// Reference-data poller; its initial refresh also loads symbols
	// when they come from the database.
	if cfg.RefData.Enabled {
		refCfg := refdata.DefaultConfig()
		if cfg.RefData.PollInterval > 0 {
			refCfg.Interval = cfg.RefData.PollInterval
		}
		refCfg.LoadSymbols = cfg.Symbols.FromDatabase

		poller := refdata.New(refCfg, refdata.NewDBStore(pool), pipe, logger)
		if err := poller.Start(ctx); err != nil {
			logger.Error("failed to start refdata poller", "error", err)
			os.Exit(1)
		}
		defer stopComponent(poller.Stop, "refdata poller", logger)
	}

	// Decision-record consumers
	var pubs []sink.Publisher
	if cfg.Sink.NATSURL != "" {
		np, err := sink.NewNATSPublisher(cfg.Sink.NATSURL, cfg.Sink.Subject)
		if err != nil {
			logger.Error("failed to connect to nats", "error", err)
			os.Exit(1)
		}
		pubs = append(pubs, np)
		logger.Info("nats publisher connected",
			"url", cfg.Sink.NATSURL,
			"subject", cfg.Sink.Subject,
		)
	}
	if cfg.Sink.CSVPath != "" {
		cp, err := sink.NewCSVPublisher(cfg.Sink.CSVPath)
		if err != nil {
			logger.Error("failed to open csv dump", "error", err)
			os.Exit(1)
		}
		pubs = append(pubs, cp)
	}

	drain := sink.New(sink.Config{
		BatchSize:     cfg.Sink.BatchSize,
		FlushInterval: cfg.Sink.FlushInterval,
		VerifyCRC:     cfg.Sink.VerifyCRC,
	}, pipe.Ring(), pubs, logger)
	if err := drain.Start(ctx); err != nil {
		logger.Error("failed to start sink", "error", err)
		os.Exit(1)
	}
	defer stopComponent(drain.Stop, "sink", logger)

	// Metrics and health endpoint
	registry := prometheus.NewRegistry()
	registry.MustRegister(telemetry.NewCollector(pipe.Counters(), pipe.Histogram()))

	mux := http.NewServeMux()
	mux.Handle(cfg.Metrics.Path, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", healthHandler(pipe, pool))
	mux.HandleFunc("/stats", statsHandler(pipe))

	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler: mux,
	}
	go func() {
		logger.Info("starting metrics server",
			"port", cfg.Metrics.Port,
			"path", cfg.Metrics.Path,
		)
		if err := metricsServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
		}
	}()

	// Feed source last, so everything downstream is ready.
	var source interface {
		Start(ctx context.Context) error
		Stop(ctx context.Context) error
	}
	switch {
	case cfg.Feed.ReplayURL != "":
		source = feed.NewReplaySource(feed.ReplayConfig{
			URL:               cfg.Feed.ReplayURL,
			ReconnectBaseWait: time.Second,
			ReconnectMaxWait:  60 * time.Second,
			WriteTimeout:      5 * time.Second,
		}, feed.HandlerFunc(pipe.Process), logger)
	case cfg.Feed.CaptureFile != "":
		fileCfg := feed.DefaultFileConfig()
		fileCfg.Path = cfg.Feed.CaptureFile
		fileCfg.Interval = cfg.Feed.CaptureInterval
		source = feed.NewFileSource(fileCfg, feed.HandlerFunc(pipe.Process), logger)
	default:
		source = feed.NewUDPSource(feed.UDPConfig{
			ListenAddr:      cfg.Feed.ListenAddr,
			Interface:       cfg.Feed.Interface,
			ReadBufferBytes: cfg.Feed.ReadBufferBytes,
		}, feed.HandlerFunc(pipe.Process), logger)
	}
	if err := source.Start(ctx); err != nil {
		logger.Error("failed to start feed source", "error", err)
		os.Exit(1)
	}
	defer stopComponent(source.Stop, "feed source", logger)

	logger.Info("engine running",
		"instance_id", cfg.Instance.ID,
		"run_id", pipe.RunID(),
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Metrics.Port),
	)

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	metricsServer.Shutdown(shutdownCtx)

	logger.Info("engine stopped")
}

// stopComponent runs a component's Stop with a bounded timeout.
func stopComponent(stop func(context.Context) error, name string, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := stop(ctx); err != nil {
		logger.Warn("component stop failed", "component", name, "error", err)
	}
}

// statsHandler serves a point-in-time pipeline snapshot.
func statsHandler(pipe *pipeline.Pipeline) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := pipe.Stats()
		out := struct {
			RunID       string  `json:"run_id"`
			UptimeSec   float64 `json:"uptime_sec"`
			RxPackets   uint64  `json:"rx_packets"`
			RxBytes     uint64  `json:"rx_bytes"`
			CRCErrors   uint64  `json:"crc_errors"`
			Drops       uint64  `json:"drops"`
			SeqGaps     uint64  `json:"seq_gaps"`
			SeqDupes    uint64  `json:"seq_dupes"`
			Parsed      uint64  `json:"parsed"`
			UnknownSym  uint64  `json:"unknown_symbols"`
			BookUpdates uint64  `json:"book_updates"`
			BankHits    uint64  `json:"bank_conflicts"`
			Accepts     uint64  `json:"accepts"`
			Rejects     uint64  `json:"rejects"`
			Published   uint64  `json:"published"`
			RingDrops   uint64  `json:"ring_drops"`
			RingDepth   uint32  `json:"ring_depth"`
			LatCount    uint64  `json:"latency_count"`
			LatMeanNs   float64 `json:"latency_mean_ns"`
			LatP50Ns    uint64  `json:"latency_p50_ns"`
			LatP99Ns    uint64  `json:"latency_p99_ns"`
			LatMaxNs    uint64  `json:"latency_max_ns"`
		}{
			RunID:       s.RunID,
			UptimeSec:   s.Uptime.Seconds(),
			RxPackets:   s.Counters.RxPackets,
			RxBytes:     s.Counters.RxBytes,
			CRCErrors:   s.Counters.CRCErrors,
			Drops:       s.Counters.Drops,
			SeqGaps:     s.Counters.SeqGaps,
			SeqDupes:    s.Counters.SeqDupes,
			Parsed:      s.Counters.Parsed,
			UnknownSym:  s.Counters.UnknownSym,
			BookUpdates: s.Counters.BookUpdates,
			BankHits:    s.Counters.BankHits,
			Accepts:     s.Counters.Accepts,
			Rejects:     s.Counters.RejectTotal(),
			Published:   s.Counters.Published,
			RingDrops:   s.Counters.RingDrops,
			RingDepth:   s.RingDepth,
			LatCount:    s.Latency.Count,
			LatMeanNs:   s.Latency.Mean(),
			LatP50Ns:    s.Latency.Percentile(50),
			LatP99Ns:    s.Latency.Percentile(99),
			LatMaxNs:    s.Latency.Max,
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(out)
	}
}

// healthHandler reports pipeline and database health.
func healthHandler(pipe *pipeline.Pipeline, pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string         `json:"status"`
			Components map[string]any `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]any),
		}

		if pool != nil {
			if err := pool.Ping(ctx); err != nil {
				health.Status = "degraded"
				health.Components["postgres"] = map[string]string{
					"status": "disconnected",
					"error":  err.Error(),
				}
			} else {
				health.Components["postgres"] = "connected"
			}
		}

		c := pipe.Counters()
		health.Components["pipeline"] = map[string]any{
			"rx_packets": c.RxPackets.Load(),
			"parsed":     c.Parsed.Load(),
			"accepts":    c.Accepts.Load(),
			"published":  c.Published.Load(),
			"ring_depth": pipe.Ring().Depth(),
		}
		if pipe.Ring().AlmostFull() {
			health.Status = "degraded"
			health.Components["ring"] = "almost full"
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(health)
	}
}
