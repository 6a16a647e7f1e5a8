// Package ring is the single-producer single-consumer queue of
// 64-byte decision records.
//
// Two monotonically increasing 32-bit counters carry all
// synchronization: the producer publishes a slot with a release store
// and the consumer retires it the same way. A full ring drops the
// newest record instead of blocking.
package ring
