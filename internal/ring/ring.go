package ring

import (
	"fmt"
	"sync/atomic"

	"github.com/rickgao/tick2trade/internal/model"
	"github.com/rickgao/tick2trade/internal/telemetry"
)

// DefaultLen matches the original deployment's ring sizing.
const DefaultLen = 65536

// DefaultAlmostFullMargin is the distance from full at which the
// watermark flag raises.
const DefaultAlmostFullMargin = 64

// Ring is the SPSC decision-record queue. Exactly one goroutine may
// call Publish and exactly one may call Consume.
type Ring struct {
	slots []([model.RecordSize]byte)
	mask  uint32

	producer atomic.Uint32
	consumer atomic.Uint32

	almostFullAt uint32
	counters     *telemetry.Counters
}

// New creates a ring with the given power-of-two capacity.
func New(capacity int, counters *telemetry.Counters) (*Ring, error) {
	if capacity <= 0 || capacity&(capacity-1) != 0 {
		return nil, fmt.Errorf("ring: capacity %d is not a power of two", capacity)
	}
	margin := DefaultAlmostFullMargin
	if margin >= capacity {
		margin = capacity / 2
	}
	return &Ring{
		slots:        make([]([model.RecordSize]byte), capacity),
		mask:         uint32(capacity - 1),
		almostFullAt: uint32(capacity - margin),
		counters:     counters,
	}, nil
}

// Len returns the ring capacity.
func (r *Ring) Len() int { return len(r.slots) }

// Publish encodes the record into the next slot. A full ring drops
// the record, counts the drop, and returns false.
func (r *Ring) Publish(rec *model.DecisionRecord) bool {
	p := r.producer.Load()
	c := r.consumer.Load()
	if p-c == uint32(len(r.slots)) {
		r.counters.RingDrops.Add(1)
		return false
	}
	rec.Encode(&r.slots[p&r.mask])
	r.producer.Store(p + 1)
	r.counters.Published.Add(1)
	return true
}

// Consume copies the oldest record out of the ring. It returns false
// when the ring is empty or when verify is set and the slot fails its
// CRC; a corrupt slot is still retired.
func (r *Ring) Consume(verify bool) (model.DecisionRecord, bool) {
	c := r.consumer.Load()
	p := r.producer.Load()
	if p == c {
		return model.DecisionRecord{}, false
	}
	slot := &r.slots[c&r.mask]
	ok := !verify || model.VerifyCRC(slot)
	var rec model.DecisionRecord
	if ok {
		rec = model.DecodeRecord(slot)
	}
	r.consumer.Store(c + 1)
	return rec, ok
}

// Depth returns the number of queued records.
func (r *Ring) Depth() uint32 {
	return r.producer.Load() - r.consumer.Load()
}

// AlmostFull reports whether the depth has crossed the watermark. It
// is advisory only and does not change publish behavior.
func (r *Ring) AlmostFull() bool {
	return r.Depth() >= r.almostFullAt
}
