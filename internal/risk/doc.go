// Package risk gates every book event through the pre-trade checks
// and produces the 64-byte decision record.
//
// Checks run in fixed priority order: kill, stale, price band, token
// bucket, position limit. All checks are evaluated on every event so
// the record's flag bits report each failing condition, while the
// reject counter attributes the event to the highest-priority one.
package risk
