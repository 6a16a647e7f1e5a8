package model

import (
	"errors"
	"strings"
)

// MaxSymbols is the capacity of the symbol universe. Symbol indices are
// dense integers in [0, MaxSymbols).
const MaxSymbols = 1024

// PriceScale is the implied decimal scale of a Price (1e-4 per tick).
const PriceScale = 10000

// Price is an unsigned 32-bit fixed-point price with 4 implied decimals.
type Price uint32

// Float64 converts the fixed-point price to dollars for reporting.
func (p Price) Float64() float64 {
	return float64(p) / PriceScale
}

// PriceFromFloat converts a dollar value to fixed-point, rounding half-up.
func PriceFromFloat(v float64) Price {
	return Price(v*PriceScale + 0.5)
}

// Side identifies a book side.
type Side uint8

const (
	SideBid Side = 0
	SideAsk Side = 1
)

func (s Side) String() string {
	if s == SideBid {
		return "bid"
	}
	return "ask"
}

// Decision record flag bits.
const (
	FlagAccept    uint8 = 1 << 0
	FlagStale     uint8 = 1 << 1
	FlagPriceBand uint8 = 1 << 2
	FlagToken     uint8 = 1 << 3
	FlagPosition  uint8 = 1 << 4
	FlagKill      uint8 = 1 << 5
)

// ErrSymbolTooLong is returned for symbols longer than 8 characters.
var ErrSymbolTooLong = errors.New("symbol longer than 8 characters")

// SymbolKey is an exchange symbol, exactly 8 bytes, right-padded with
// ASCII space. Equality is byte identity.
type SymbolKey [8]byte

// NewSymbolKey builds a key from a ticker string, padding with spaces.
// Symbols longer than 8 characters are rejected.
func NewSymbolKey(s string) (SymbolKey, error) {
	var k SymbolKey
	if len(s) > 8 {
		return k, ErrSymbolTooLong
	}
	copy(k[:], s)
	for i := len(s); i < 8; i++ {
		k[i] = ' '
	}
	return k, nil
}

// String returns the ticker with trailing padding removed.
func (k SymbolKey) String() string {
	return strings.TrimRight(string(k[:]), " ")
}

// DecodedMsg is the typed result of parsing one feed message.
type DecodedMsg struct {
	IngressTS uint64 // packet arrival, ns
	DecodeTS  uint64 // decoder completion, ns
	Seq       uint32 // feed sequence number
	MsgType   byte

	SymbolIndex uint16
	SymbolValid bool // false when the message carries no symbol or lookup missed

	Side    Side
	Price   Price
	Qty     uint32
	OrderID uint64

	BookAffecting bool
	Stale         bool // sequence-gap latch state at framing time
}

// BookEvent is emitted after each book-affecting message, carrying the
// post-update top-of-book snapshot for the risk gate.
type BookEvent struct {
	IngressTS uint64
	BookTS    uint64
	Seq       uint32
	MsgType   byte

	SymbolIndex uint16
	Side        Side

	BidPx  Price
	BidQty uint32
	AskPx  Price
	AskQty uint32

	LastTradePx  Price
	LastTradeQty uint32

	Stale bool
}

// EventPrice returns the post-update top-of-book price on the event side.
func (e *BookEvent) EventPrice() Price {
	if e.Side == SideBid {
		return e.BidPx
	}
	return e.AskPx
}

// Mid returns the mid price: the average when both sides quote, the
// quoting side's price when only one does, zero when neither does.
// A side quotes only while its quantity is nonzero; the price field
// survives a full cancel and must not be read until the next
// price-bearing update. The sum is widened to 64 bits before halving.
func (e *BookEvent) Mid() Price {
	switch {
	case e.BidQty > 0 && e.AskQty > 0:
		return Price((uint64(e.BidPx) + uint64(e.AskPx)) / 2)
	case e.BidQty > 0:
		return e.BidPx
	case e.AskQty > 0:
		return e.AskPx
	}
	return 0
}

// EventQty returns the post-update top-of-book quantity on the event side.
func (e *BookEvent) EventQty() uint32 {
	if e.Side == SideBid {
		return e.BidQty
	}
	return e.AskQty
}
