package risk

import (
	"sync/atomic"

	"github.com/rickgao/tick2trade/internal/model"
)

// RefPriceTable is a flat array of reference prices indexed by symbol
// index. Zero disables the price-band check for that symbol. Writers
// and the data path share it through single-word atomics.
type RefPriceTable struct {
	prices [model.MaxSymbols]atomic.Uint32
}

// NewRefPriceTable creates an empty table.
func NewRefPriceTable() *RefPriceTable {
	return &RefPriceTable{}
}

// Set stores one reference price.
func (t *RefPriceTable) Set(idx uint16, px model.Price) {
	t.prices[idx].Store(uint32(px))
}

// Get loads one reference price.
func (t *RefPriceTable) Get(idx uint16) model.Price {
	return model.Price(t.prices[idx].Load())
}

// Clear zeroes the whole table.
func (t *RefPriceTable) Clear() {
	for i := range t.prices {
		t.prices[i].Store(0)
	}
}
