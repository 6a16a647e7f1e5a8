// Package sink drains decision records off the ring and delivers them
// downstream. A NATS publisher carries the raw 64-byte frames for
// execution consumers; an optional CSV dump writes a decoded copy for
// offline analysis. Both share one batching drain loop so the ring is
// read exactly once.
package sink
