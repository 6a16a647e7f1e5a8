package itch

import (
	"encoding/binary"

	"github.com/rickgao/tick2trade/internal/model"
	"github.com/rickgao/tick2trade/internal/telemetry"
)

// SymbolLookup resolves an 8-byte symbol key to a dense index.
type SymbolLookup interface {
	Lookup(key model.SymbolKey) (uint16, bool)
}

// Decoder extracts typed fields from framed messages. Symbol-bearing
// messages are resolved through the lookup before the decoded record
// is emitted; reference-only messages leave the symbol unresolved.
type Decoder struct {
	symbols  SymbolLookup
	counters *telemetry.Counters
	now      func() uint64
}

// NewDecoder creates a decoder. now supplies the decode timestamp in
// nanoseconds.
func NewDecoder(symbols SymbolLookup, counters *telemetry.Counters, now func() uint64) *Decoder {
	return &Decoder{symbols: symbols, counters: counters, now: now}
}

// Decode parses one frame. The returned record is self-contained and
// does not alias the frame body.
func (d *Decoder) Decode(f Frame) model.DecodedMsg {
	m := model.DecodedMsg{
		IngressTS:     f.IngressTS,
		DecodeTS:      d.now(),
		Seq:           f.Seq,
		MsgType:       f.Type,
		BookAffecting: BookAffecting(f.Type),
		Stale:         f.Stale,
	}
	b := f.Body

	switch f.Type {
	case 'A', 'F':
		m.OrderID = binary.BigEndian.Uint64(b[11:19])
		m.Side = decodeSide(b[19])
		m.Qty = binary.BigEndian.Uint32(b[20:24])
		d.resolveSymbol(&m, b[24:32])
		m.Price = model.Price(binary.BigEndian.Uint32(b[32:36]))

	case 'E':
		m.OrderID = binary.BigEndian.Uint64(b[11:19])
		m.Qty = binary.BigEndian.Uint32(b[19:23])

	case 'C':
		m.OrderID = binary.BigEndian.Uint64(b[11:19])
		m.Qty = binary.BigEndian.Uint32(b[19:23])
		m.Price = model.Price(binary.BigEndian.Uint32(b[32:36]))

	case 'X':
		m.OrderID = binary.BigEndian.Uint64(b[11:19])
		m.Qty = binary.BigEndian.Uint32(b[19:23])

	case 'D':
		m.OrderID = binary.BigEndian.Uint64(b[11:19])

	case 'U':
		// The replacement order reference identifies the order from
		// here on; the original reference is not tracked.
		m.OrderID = binary.BigEndian.Uint64(b[19:27])
		m.Qty = binary.BigEndian.Uint32(b[27:31])
		m.Price = model.Price(binary.BigEndian.Uint32(b[31:35]))

	case 'P':
		m.OrderID = binary.BigEndian.Uint64(b[11:19])
		m.Side = decodeSide(b[19])
		m.Qty = binary.BigEndian.Uint32(b[20:24])
		d.resolveSymbol(&m, b[24:32])
		m.Price = model.Price(binary.BigEndian.Uint32(b[32:36]))

	case 'R':
		d.resolveSymbol(&m, b[11:19])
	}

	d.counters.Parsed.Add(1)
	return m
}

func (d *Decoder) resolveSymbol(m *model.DecodedMsg, raw []byte) {
	var key model.SymbolKey
	copy(key[:], raw)
	idx, ok := d.symbols.Lookup(key)
	if !ok {
		if m.BookAffecting {
			d.counters.UnknownSym.Add(1)
		}
		return
	}
	m.SymbolIndex = idx
	m.SymbolValid = true
}

func decodeSide(b byte) model.Side {
	if b == 'S' {
		return model.SideAsk
	}
	return model.SideBid
}
