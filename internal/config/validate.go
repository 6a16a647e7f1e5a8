package config

import (
	"errors"
	"fmt"

	"github.com/rickgao/tick2trade/internal/model"
)

// Validate checks that all required fields are set and values are valid.
func (c *EngineConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	feeds := 0
	if c.Feed.ListenAddr != "" {
		feeds++
	}
	if c.Feed.ReplayURL != "" {
		feeds++
	}
	if c.Feed.CaptureFile != "" {
		feeds++
	}
	if feeds == 0 {
		return errors.New("feed.listen_addr, feed.replay_url, or feed.capture_file is required")
	}
	if feeds > 1 {
		return errors.New("feed.listen_addr, feed.replay_url, and feed.capture_file are mutually exclusive")
	}

	if n := c.Ring.Len; n < 2 || n&(n-1) != 0 {
		return fmt.Errorf("ring.len must be a power of two >= 2, got %d", n)
	}

	if len(c.Symbols.Static) > model.MaxSymbols {
		return fmt.Errorf("symbols.static holds %d symbols, capacity is %d",
			len(c.Symbols.Static), model.MaxSymbols)
	}
	for _, s := range c.Symbols.Static {
		if len(s) == 0 || len(s) > 8 {
			return fmt.Errorf("symbols.static entry %q must be 1-8 characters", s)
		}
	}
	sources := 0
	if len(c.Symbols.Static) > 0 {
		sources++
	}
	if c.Symbols.File != "" {
		sources++
	}
	if c.Symbols.FromDatabase {
		sources++
	}
	if sources > 1 {
		return errors.New("symbols.static, symbols.file, and symbols.from_database are mutually exclusive")
	}

	if c.Symbols.FromDatabase || c.RefData.Enabled {
		if err := c.Database.Postgres.validate("database.postgres"); err != nil {
			return err
		}
	}

	if c.Sink.NATSURL != "" && c.Sink.Subject == "" {
		return errors.New("sink.subject is required when sink.nats_url is set")
	}
	if c.Sink.BatchSize < 1 {
		return errors.New("sink.batch_size must be >= 1")
	}

	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
