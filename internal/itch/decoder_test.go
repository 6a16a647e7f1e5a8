package itch

import (
	"encoding/binary"
	"testing"

	"github.com/rickgao/tick2trade/internal/model"
	"github.com/rickgao/tick2trade/internal/telemetry"
)

type mapLookup map[model.SymbolKey]uint16

func (m mapLookup) Lookup(key model.SymbolKey) (uint16, bool) {
	idx, ok := m[key]
	return idx, ok
}

func testLookup(t *testing.T, symbols ...string) mapLookup {
	t.Helper()
	m := mapLookup{}
	for i, s := range symbols {
		key, err := model.NewSymbolKey(s)
		if err != nil {
			t.Fatalf("NewSymbolKey(%q): %v", s, err)
		}
		m[key] = uint16(i)
	}
	return m
}

func putSymbol(b []byte, s string) {
	copy(b, "        ")
	copy(b, s)
}

func frameFor(body []byte, seq uint32) Frame {
	binary.BigEndian.PutUint32(body[1:5], seq)
	return Frame{Type: body[0], Seq: seq, IngressTS: 100, Body: body}
}

func TestDecodeAddOrder(t *testing.T) {
	var c telemetry.Counters
	d := NewDecoder(testLookup(t, "AAPL"), &c, func() uint64 { return 250 })

	b := make([]byte, 36)
	b[0] = 'A'
	binary.BigEndian.PutUint64(b[11:19], 0xDEAD)
	b[19] = 'B'
	binary.BigEndian.PutUint32(b[20:24], 300)
	putSymbol(b[24:32], "AAPL")
	binary.BigEndian.PutUint32(b[32:36], 1502500)

	m := d.Decode(frameFor(b, 7))

	if m.MsgType != 'A' || m.Seq != 7 || m.IngressTS != 100 || m.DecodeTS != 250 {
		t.Errorf("envelope = %+v", m)
	}
	if m.OrderID != 0xDEAD {
		t.Errorf("order id = %#x, want 0xdead", m.OrderID)
	}
	if m.Side != model.SideBid {
		t.Errorf("side = %d, want bid", m.Side)
	}
	if m.Qty != 300 || m.Price != 1502500 {
		t.Errorf("qty/price = %d/%d, want 300/1502500", m.Qty, m.Price)
	}
	if !m.SymbolValid || m.SymbolIndex != 0 {
		t.Errorf("symbol = (%d, %v), want (0, true)", m.SymbolIndex, m.SymbolValid)
	}
	if !m.BookAffecting {
		t.Error("add order not book-affecting")
	}
	if c.Parsed.Load() != 1 {
		t.Errorf("parsed = %d, want 1", c.Parsed.Load())
	}
}

func TestDecodeAddWithMPID(t *testing.T) {
	var c telemetry.Counters
	d := NewDecoder(testLookup(t, "MSFT"), &c, func() uint64 { return 0 })

	b := make([]byte, 40)
	b[0] = 'F'
	b[19] = 'S'
	binary.BigEndian.PutUint32(b[20:24], 50)
	putSymbol(b[24:32], "MSFT")
	binary.BigEndian.PutUint32(b[32:36], 2000000)
	copy(b[36:40], "NSDQ")

	m := d.Decode(frameFor(b, 1))
	if m.Side != model.SideAsk || m.Qty != 50 || m.Price != 2000000 || !m.SymbolValid {
		t.Errorf("decoded = %+v", m)
	}
}

func TestDecodeReferenceOnlyTypes(t *testing.T) {
	var c telemetry.Counters
	d := NewDecoder(testLookup(t), &c, func() uint64 { return 0 })

	tests := []struct {
		typ      byte
		build    func() []byte
		wantID   uint64
		wantQty  uint32
		wantPx   model.Price
		affectng bool
	}{
		{'E', func() []byte {
			b := make([]byte, 31)
			b[0] = 'E'
			binary.BigEndian.PutUint64(b[11:19], 99)
			binary.BigEndian.PutUint32(b[19:23], 40)
			return b
		}, 99, 40, 0, true},
		{'C', func() []byte {
			b := make([]byte, 36)
			b[0] = 'C'
			binary.BigEndian.PutUint64(b[11:19], 99)
			binary.BigEndian.PutUint32(b[19:23], 25)
			b[31] = 'Y'
			binary.BigEndian.PutUint32(b[32:36], 1500000)
			return b
		}, 99, 25, 1500000, true},
		{'X', func() []byte {
			b := make([]byte, 23)
			b[0] = 'X'
			binary.BigEndian.PutUint64(b[11:19], 77)
			binary.BigEndian.PutUint32(b[19:23], 10)
			return b
		}, 77, 10, 0, true},
		{'D', func() []byte {
			b := make([]byte, 19)
			b[0] = 'D'
			binary.BigEndian.PutUint64(b[11:19], 55)
			return b
		}, 55, 0, 0, true},
		{'U', func() []byte {
			b := make([]byte, 35)
			b[0] = 'U'
			binary.BigEndian.PutUint64(b[11:19], 55) // original
			binary.BigEndian.PutUint64(b[19:27], 56) // replacement
			binary.BigEndian.PutUint32(b[27:31], 80)
			binary.BigEndian.PutUint32(b[31:35], 1499000)
			return b
		}, 56, 80, 1499000, true},
	}

	for _, tt := range tests {
		m := d.Decode(frameFor(tt.build(), 1))
		if m.SymbolValid {
			t.Errorf("%c: symbol resolved on a reference-only message", tt.typ)
		}
		if m.OrderID != tt.wantID || m.Qty != tt.wantQty || m.Price != tt.wantPx {
			t.Errorf("%c: got id=%d qty=%d px=%d, want id=%d qty=%d px=%d",
				tt.typ, m.OrderID, m.Qty, m.Price, tt.wantID, tt.wantQty, tt.wantPx)
		}
		if m.BookAffecting != tt.affectng {
			t.Errorf("%c: book-affecting = %v", tt.typ, m.BookAffecting)
		}
	}

	if c.UnknownSym.Load() != 0 {
		t.Errorf("unknown symbol counter moved on reference-only messages")
	}
}

func TestDecodeTrade(t *testing.T) {
	var c telemetry.Counters
	d := NewDecoder(testLookup(t, "GOOGL"), &c, func() uint64 { return 0 })

	b := make([]byte, 44)
	b[0] = 'P'
	binary.BigEndian.PutUint64(b[11:19], 123)
	b[19] = 'S'
	binary.BigEndian.PutUint32(b[20:24], 15)
	putSymbol(b[24:32], "GOOGL")
	binary.BigEndian.PutUint32(b[32:36], 2750000)
	binary.BigEndian.PutUint64(b[36:44], 9001) // match number

	m := d.Decode(frameFor(b, 1))
	if m.Side != model.SideAsk || m.Qty != 15 || m.Price != 2750000 || !m.SymbolValid {
		t.Errorf("decoded trade = %+v", m)
	}
}

func TestDecodeUnknownSymbolCountsOnce(t *testing.T) {
	var c telemetry.Counters
	d := NewDecoder(testLookup(t, "AAPL"), &c, func() uint64 { return 0 })

	b := make([]byte, 36)
	b[0] = 'A'
	b[19] = 'B'
	putSymbol(b[24:32], "ZZZZ")

	m := d.Decode(frameFor(b, 1))
	if m.SymbolValid {
		t.Error("unknown symbol resolved")
	}
	if c.UnknownSym.Load() != 1 {
		t.Errorf("unknown symbol counter = %d, want 1", c.UnknownSym.Load())
	}

	// Directory messages for unknown symbols are not book-affecting
	// and do not count.
	r := make([]byte, 39)
	r[0] = 'R'
	putSymbol(r[11:19], "ZZZZ")
	d.Decode(frameFor(r, 2))
	if c.UnknownSym.Load() != 1 {
		t.Errorf("unknown symbol counter = %d after directory message, want 1", c.UnknownSym.Load())
	}
}

func TestDecodeStalePropagated(t *testing.T) {
	var c telemetry.Counters
	d := NewDecoder(testLookup(t), &c, func() uint64 { return 0 })

	b := make([]byte, 12)
	b[0] = 'S'
	f := frameFor(b, 1)
	f.Stale = true
	if m := d.Decode(f); !m.Stale {
		t.Error("stale flag not propagated")
	}
}
