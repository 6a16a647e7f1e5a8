package sink

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/tick2trade/internal/model"
	"github.com/rickgao/tick2trade/internal/ring"
)

// Publisher delivers one flushed batch of records.
type Publisher interface {
	Publish(recs []model.DecisionRecord) error
	Close() error
}

// Sink consumes records from the ring and fans each batch out to the
// configured publishers.
type Sink struct {
	cfg    Config
	ring   *ring.Ring
	pubs   []Publisher
	logger *slog.Logger

	batch       []model.DecisionRecord
	batchMu     sync.Mutex
	flushTicker *time.Ticker

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	metrics Metrics
}

// New creates a sink draining r into pubs.
func New(cfg Config, r *ring.Ring, pubs []Publisher, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	return &Sink{
		cfg:    cfg,
		ring:   r,
		pubs:   pubs,
		logger: logger,
		batch:  make([]model.DecisionRecord, 0, cfg.BatchSize),
	}
}

// Start begins draining the ring.
func (s *Sink) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.flushTicker = time.NewTicker(s.cfg.FlushInterval)

	s.wg.Add(1)
	go s.consumeLoop()

	s.wg.Add(1)
	go s.flushLoop()

	s.logger.Info("sink started",
		"batch_size", s.cfg.BatchSize,
		"flush_interval", s.cfg.FlushInterval,
		"publishers", len(s.pubs),
	)
	return nil
}

// Stop drains remaining records, flushes, and closes the publishers.
func (s *Sink) Stop(ctx context.Context) error {
	s.logger.Info("stopping sink")

	if s.cancel != nil {
		s.cancel()
	}
	if s.flushTicker != nil {
		s.flushTicker.Stop()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("sink stop timed out")
	}

	// Whatever the loops left behind.
	s.drainOnce()
	s.flush()

	for _, p := range s.pubs {
		if err := p.Close(); err != nil {
			s.logger.Warn("publisher close failed", "error", err)
		}
	}

	s.logger.Info("sink stopped")
	return nil
}

// Stats returns current metrics.
func (s *Sink) Stats() Metrics {
	s.batchMu.Lock()
	defer s.batchMu.Unlock()
	return s.metrics
}

// consumeLoop pulls records off the ring and accumulates batches.
func (s *Sink) consumeLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
			if s.ring.Depth() == 0 {
				select {
				case <-s.ctx.Done():
					return
				case <-time.After(time.Millisecond):
					continue
				}
			}
			s.drainOnce()
		}
	}
}

// drainOnce consumes everything currently queued.
func (s *Sink) drainOnce() {
	for s.ring.Depth() > 0 {
		rec, ok := s.ring.Consume(s.cfg.VerifyCRC)
		if !ok {
			s.batchMu.Lock()
			s.metrics.CRCDrops++
			s.batchMu.Unlock()
			s.logger.Warn("corrupt slot retired")
			continue
		}
		s.handleRecord(rec)
	}
}

// flushLoop flushes on the configured interval.
func (s *Sink) flushLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.flushTicker.C:
			s.flush()
		}
	}
}

func (s *Sink) handleRecord(rec model.DecisionRecord) {
	s.batchMu.Lock()
	s.batch = append(s.batch, rec)
	shouldFlush := len(s.batch) >= s.cfg.BatchSize
	s.batchMu.Unlock()

	if shouldFlush {
		s.flush()
	}
}

// flush hands the current batch to every publisher.
func (s *Sink) flush() {
	s.batchMu.Lock()
	if len(s.batch) == 0 {
		s.batchMu.Unlock()
		return
	}
	batch := s.batch
	s.batch = make([]model.DecisionRecord, 0, s.cfg.BatchSize)
	s.batchMu.Unlock()

	start := time.Now()
	var errs atomic.Int64
	var g errgroup.Group
	for _, p := range s.pubs {
		g.Go(func() error {
			if err := p.Publish(batch); err != nil {
				s.logger.Error("publish failed", "error", err, "count", len(batch))
				errs.Add(1)
			}
			return nil
		})
	}
	g.Wait()

	s.batchMu.Lock()
	s.metrics.Delivered += int64(len(batch))
	s.metrics.Flushes++
	s.metrics.Errors += errs.Load()
	s.batchMu.Unlock()

	s.logger.Debug("flushed decisions",
		"count", len(batch),
		"duration", time.Since(start),
	)
}
