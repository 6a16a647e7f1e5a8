package refdata

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rickgao/tick2trade/internal/database"
	"github.com/rickgao/tick2trade/internal/model"
)

// Engine is the pipeline surface the poller drives.
type Engine interface {
	LoadSymbols(symbols []string) error
	SymbolIndex(symbol string) (uint16, bool)
	SetRefPrice(idx uint16, px model.Price)
}

// Store provides the reference data to poll.
type Store interface {
	LoadSymbols(ctx context.Context) ([]string, error)
	LoadReferencePrices(ctx context.Context) ([]database.ReferencePrice, error)
}

// DBStore is the pgx-backed Store.
type DBStore struct {
	pool *pgxpool.Pool
}

// NewDBStore wraps a connection pool.
func NewDBStore(pool *pgxpool.Pool) *DBStore {
	return &DBStore{pool: pool}
}

func (s *DBStore) LoadSymbols(ctx context.Context) ([]string, error) {
	return database.LoadSymbols(ctx, s.pool)
}

func (s *DBStore) LoadReferencePrices(ctx context.Context) ([]database.ReferencePrice, error) {
	return database.LoadReferencePrices(ctx, s.pool)
}

// Config holds poller configuration.
type Config struct {
	Interval    time.Duration // refresh interval (default: 1m)
	Timeout     time.Duration // per-refresh query timeout (default: 10s)
	LoadSymbols bool          // refresh the symbol universe too
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval: time.Minute,
		Timeout:  10 * time.Second,
	}
}

// Poller periodically refreshes reference data from the database.
type Poller struct {
	cfg    Config
	store  Store
	engine Engine
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Poller.
func New(cfg Config, store Store, engine Engine, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		cfg:    cfg,
		store:  store,
		engine: engine,
		logger: logger,
	}
}

// Start runs one synchronous refresh, then begins the polling loop.
func (p *Poller) Start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(ctx)

	if err := p.refresh(); err != nil {
		p.cancel()
		return fmt.Errorf("initial refresh: %w", err)
	}

	p.wg.Add(1)
	go p.run()

	p.logger.Info("refdata poller started",
		"interval", p.cfg.Interval,
		"load_symbols", p.cfg.LoadSymbols,
	)
	return nil
}

// Stop gracefully shuts down the poller.
func (p *Poller) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("refdata poller stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run is the main polling loop.
func (p *Poller) run() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			if err := p.refresh(); err != nil {
				p.logger.Warn("refdata refresh failed", "error", err)
			}
		}
	}
}

// refresh reloads symbols (when configured) and reference prices.
func (p *Poller) refresh() error {
	start := time.Now()

	ctx, cancel := context.WithTimeout(p.ctx, p.cfg.Timeout)
	defer cancel()

	if p.cfg.LoadSymbols {
		symbols, err := p.store.LoadSymbols(ctx)
		if err != nil {
			return err
		}
		if err := p.engine.LoadSymbols(symbols); err != nil {
			return err
		}
	}

	prices, err := p.store.LoadReferencePrices(ctx)
	if err != nil {
		return err
	}

	applied, unknown := 0, 0
	for _, rp := range prices {
		idx, ok := p.engine.SymbolIndex(rp.Symbol)
		if !ok {
			unknown++
			continue
		}
		p.engine.SetRefPrice(idx, model.Price(rp.Price))
		applied++
	}

	p.logger.Info("refdata refreshed",
		"prices", applied,
		"unknown_symbols", unknown,
		"duration", time.Since(start),
	)
	return nil
}
