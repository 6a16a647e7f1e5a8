package sink

import "time"

// Config configures the drain loop.
type Config struct {
	BatchSize     int           // flush when the batch reaches this size
	FlushInterval time.Duration // flush on this interval regardless of size
	VerifyCRC     bool          // re-check each slot's CRC on consume
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:     64,
		FlushInterval: 100 * time.Millisecond,
		VerifyCRC:     true,
	}
}

// Metrics counts drain activity.
type Metrics struct {
	Delivered int64 // records handed to publishers
	Flushes   int64
	CRCDrops  int64 // slots retired on CRC failure
	Errors    int64 // failed publisher flushes
}
