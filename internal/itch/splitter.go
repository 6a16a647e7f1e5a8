package itch

import (
	"encoding/binary"

	"github.com/rickgao/tick2trade/internal/telemetry"
)

// Frame is one complete ITCH message as produced by the splitter.
// Body is the full message including the header and stays valid only
// until the next Process call.
type Frame struct {
	Type      byte
	Seq       uint32
	FeedTS    uint64 // 48-bit feed timestamp from the header
	IngressTS uint64 // arrival timestamp of the packet holding the first byte
	Stale     bool
	Body      []byte
}

// Splitter segments the concatenated payload stream into messages and
// tracks sequence numbers. It is owned by the data-path thread and is
// not safe for concurrent use.
type Splitter struct {
	counters *telemetry.Counters
	emit     func(Frame)

	carry   []byte
	carryTS uint64

	seqCheck     bool
	expectedSeq  uint32
	gapThreshold uint32
	stale        bool
	inOrderRun   uint32
}

// NewSplitter creates a splitter. expectedSeq is the first sequence
// number the feed is expected to deliver. When seqCheck is false the
// splitter never asserts the stale flag.
func NewSplitter(counters *telemetry.Counters, seqCheck bool, expectedSeq uint32, gapThreshold uint32, emit func(Frame)) *Splitter {
	return &Splitter{
		counters:     counters,
		emit:         emit,
		seqCheck:     seqCheck,
		expectedSeq:  expectedSeq,
		gapThreshold: gapThreshold,
		carry:        make([]byte, 0, 64),
	}
}

// ClearStale drops the stale latch, normally from the configuration
// channel after an operator intervention.
func (sp *Splitter) ClearStale() {
	sp.stale = false
	sp.inOrderRun = 0
}

// Stale reports the current latch state.
func (sp *Splitter) Stale() bool { return sp.stale }

// SetExpectedSeq resets sequence tracking to the given value.
func (sp *Splitter) SetExpectedSeq(seq uint32) {
	sp.expectedSeq = seq
	sp.inOrderRun = 0
}

// Process consumes one UDP payload. Messages split across packet
// boundaries are carried over; a message inherits the ingress
// timestamp of the packet that delivered its first byte.
func (sp *Splitter) Process(payload []byte, ingressTS uint64) {
	if len(payload) < MinHeaderLen && len(sp.carry) == 0 {
		sp.counters.Drops.Add(1)
		return
	}
	sp.counters.RxPackets.Add(1)
	sp.counters.RxBytes.Add(uint64(len(payload)))

	buf := payload
	carryLen := len(sp.carry)
	if carryLen > 0 {
		sp.carry = append(sp.carry, payload...)
		buf = sp.carry
	}

	off := 0
	for off < len(buf) {
		msgLen, ok := MessageLength(buf[off])
		if !ok {
			// Framing failure: drop the carry and the rest of this
			// packet, resume on the next packet boundary.
			sp.counters.Drops.Add(1)
			sp.carry = sp.carry[:0]
			return
		}
		if off+msgLen > len(buf) {
			break
		}
		msg := buf[off : off+msgLen]
		ts := ingressTS
		if off < carryLen {
			ts = sp.carryTS
		}
		sp.dispatch(msg, ts)
		off += msgLen
	}

	// Stash the incomplete tail, remembering which packet delivered
	// its first byte.
	rest := buf[off:]
	ts := ingressTS
	if off < carryLen {
		ts = sp.carryTS
	}
	if carryLen > 0 {
		copy(sp.carry, rest)
		sp.carry = sp.carry[:len(rest)]
	} else {
		sp.carry = append(sp.carry[:0], rest...)
	}
	sp.carryTS = ts
}

func (sp *Splitter) dispatch(msg []byte, ingressTS uint64) {
	seq := binary.BigEndian.Uint32(msg[1:5])

	if sp.seqCheck {
		switch {
		case seq > sp.expectedSeq:
			sp.counters.SeqGaps.Add(1)
			sp.stale = true
			sp.inOrderRun = 0
			sp.expectedSeq = seq + 1
		case seq < sp.expectedSeq:
			sp.counters.SeqDupes.Add(1)
			return
		default:
			sp.expectedSeq++
			if sp.stale {
				sp.inOrderRun++
				if sp.inOrderRun >= sp.gapThreshold {
					sp.stale = false
					sp.inOrderRun = 0
				}
			}
		}
	}

	sp.emit(Frame{
		Type:      msg[0],
		Seq:       seq,
		FeedTS:    be48(msg[5:11]),
		IngressTS: ingressTS,
		Stale:     sp.stale,
		Body:      msg,
	})
}

func be48(b []byte) uint64 {
	return uint64(b[0])<<40 | uint64(b[1])<<32 | uint64(b[2])<<24 |
		uint64(b[3])<<16 | uint64(b[4])<<8 | uint64(b[5])
}
