package book

import (
	"github.com/rickgao/tick2trade/internal/model"
	"github.com/rickgao/tick2trade/internal/telemetry"
)

// NumBanks partitions entries by the low bits of the symbol index.
// Single-threaded execution uses the banks only to count back-to-back
// updates landing in the same bank.
const NumBanks = 4

// Entry is one symbol's aggregate top-of-book.
type Entry struct {
	BidPx  model.Price
	BidQty uint32
	AskPx  model.Price
	AskQty uint32

	LastTradePx  model.Price
	LastTradeQty uint32

	LastUpdateTS uint64
	Valid        bool

	lastAddSide model.Side
}

// Book holds top-of-book entries for the full symbol universe. It is
// owned by the data-path thread.
type Book struct {
	entries  [model.MaxSymbols]Entry
	counters *telemetry.Counters
	now      func() uint64

	lastAddSym  uint16
	haveLastAdd bool

	prevBank uint16
	haveBank bool
}

// New creates an empty book. now supplies book_ts in nanoseconds.
func New(counters *telemetry.Counters, now func() uint64) *Book {
	return &Book{counters: counters, now: now}
}

// Entry returns a copy of one symbol's state.
func (b *Book) Entry(idx uint16) Entry {
	return b.entries[idx]
}

// Apply folds one decoded message into the book and, for
// book-affecting messages, emits the post-update event. The second
// return is false when the message does not produce an event: not
// book-affecting, symbol unresolved, or a reference-only message
// arriving before any Add established a target.
func (b *Book) Apply(m *model.DecodedMsg) (model.BookEvent, bool) {
	if !m.BookAffecting {
		return model.BookEvent{}, false
	}

	var idx uint16
	var side model.Side
	switch m.MsgType {
	case 'A', 'F', 'P':
		if !m.SymbolValid {
			return model.BookEvent{}, false
		}
		idx, side = m.SymbolIndex, m.Side
	default:
		// 'E','C','X','D','U' name an order, not a symbol. Aggregate
		// TOB resolves them against the most recent Add.
		if !b.haveLastAdd {
			return model.BookEvent{}, false
		}
		idx = b.lastAddSym
		side = b.entries[idx].lastAddSide
	}

	e := &b.entries[idx]
	switch m.MsgType {
	case 'A', 'F':
		b.applyAdd(e, side, m.Price, m.Qty)
		b.lastAddSym = idx
		b.haveLastAdd = true
	case 'E':
		reduceQty(e, side, m.Qty)
	case 'C':
		reduceQty(e, side, m.Qty)
		e.LastTradePx = m.Price
		e.LastTradeQty = m.Qty
	case 'X':
		reduceQty(e, side, m.Qty)
	case 'D':
		if side == model.SideBid {
			e.BidQty = 0
		} else {
			e.AskQty = 0
		}
	case 'U':
		if side == model.SideBid {
			e.BidPx, e.BidQty = m.Price, m.Qty
		} else {
			e.AskPx, e.AskQty = m.Price, m.Qty
		}
	case 'P':
		e.LastTradePx = m.Price
		e.LastTradeQty = m.Qty
	}
	e.LastUpdateTS = m.IngressTS
	e.Valid = true

	b.counters.BookUpdates.Add(1)
	bank := idx % NumBanks
	if b.haveBank && bank == b.prevBank {
		b.counters.BankHits.Add(1)
	}
	b.prevBank = bank
	b.haveBank = true

	return model.BookEvent{
		IngressTS:    m.IngressTS,
		BookTS:       b.now(),
		Seq:          m.Seq,
		MsgType:      m.MsgType,
		SymbolIndex:  idx,
		Side:         side,
		BidPx:        e.BidPx,
		BidQty:       e.BidQty,
		AskPx:        e.AskPx,
		AskQty:       e.AskQty,
		LastTradePx:  e.LastTradePx,
		LastTradeQty: e.LastTradeQty,
		Stale:        m.Stale,
	}, true
}

// applyAdd replaces a side only when it is empty or the new price
// improves on it.
func (b *Book) applyAdd(e *Entry, side model.Side, px model.Price, qty uint32) {
	if side == model.SideBid {
		if e.BidQty == 0 || px > e.BidPx {
			e.BidPx, e.BidQty = px, qty
		}
	} else {
		if e.AskQty == 0 || px < e.AskPx {
			e.AskPx, e.AskQty = px, qty
		}
	}
	e.lastAddSide = side
}

// reduceQty subtracts from a side's quantity, saturating at zero.
func reduceQty(e *Entry, side model.Side, qty uint32) {
	if side == model.SideBid {
		if qty >= e.BidQty {
			e.BidQty = 0
		} else {
			e.BidQty -= qty
		}
	} else {
		if qty >= e.AskQty {
			e.AskQty = 0
		} else {
			e.AskQty -= qty
		}
	}
}
