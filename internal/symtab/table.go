package symtab

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rickgao/tick2trade/internal/model"
)

// MaxProbes bounds the linear probe: a miss is decisive after this
// many slots.
const MaxProbes = 8

var (
	// ErrTableFull is returned when all slots on a key's probe path
	// are occupied.
	ErrTableFull = errors.New("symtab: probe path full")
)

type slot struct {
	key   model.SymbolKey
	index uint16
	used  bool
}

type buffer struct {
	slots []slot
	mask  uint32
}

func newBuffer(capacity uint32) *buffer {
	return &buffer{slots: make([]slot, capacity), mask: capacity - 1}
}

// hash folds the 8-byte key to 32 bits and mixes.
func hash(key model.SymbolKey) uint32 {
	hi := uint32(key[0])<<24 | uint32(key[1])<<16 | uint32(key[2])<<8 | uint32(key[3])
	lo := uint32(key[4])<<24 | uint32(key[5])<<16 | uint32(key[6])<<8 | uint32(key[7])
	h := hi ^ lo
	h ^= h >> 16
	h ^= h >> 8
	return h
}

func (b *buffer) lookup(key model.SymbolKey) (uint16, bool) {
	h := hash(key) & b.mask
	for i := uint32(0); i < MaxProbes; i++ {
		s := &b.slots[(h+i)&b.mask]
		if !s.used {
			return 0, false
		}
		if s.key == key {
			return s.index, true
		}
	}
	return 0, false
}

func (b *buffer) insert(key model.SymbolKey, index uint16) error {
	h := hash(key) & b.mask
	for i := uint32(0); i < MaxProbes; i++ {
		s := &b.slots[(h+i)&b.mask]
		if !s.used {
			s.key = key
			s.index = index
			s.used = true
			return nil
		}
		if s.key == key {
			s.index = index
			return nil
		}
	}
	return ErrTableFull
}

// Table is the double-buffered symbol map. Lookup is wait-free for
// the data path; Load and Commit serialize on an internal mutex.
type Table struct {
	capacity uint32
	active   atomic.Pointer[buffer]

	mu     sync.Mutex
	shadow *buffer
}

// New creates a table with the given power-of-two capacity.
func New(capacity int) (*Table, error) {
	if capacity <= 0 || capacity&(capacity-1) != 0 {
		return nil, fmt.Errorf("symtab: capacity %d is not a power of two", capacity)
	}
	t := &Table{
		capacity: uint32(capacity),
		shadow:   newBuffer(uint32(capacity)),
	}
	t.active.Store(newBuffer(uint32(capacity)))
	return t, nil
}

// Lookup resolves a key against the active buffer.
func (t *Table) Lookup(key model.SymbolKey) (uint16, bool) {
	return t.active.Load().lookup(key)
}

// Load inserts a key into the shadow buffer. The mapping is invisible
// to lookups until Commit.
func (t *Table) Load(key model.SymbolKey, index uint16) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.shadow.insert(key, index)
}

// LoadStrings assigns dense indices 0..n-1 to the given symbols in
// order. Keys longer than eight bytes reject the whole batch.
func (t *Table) LoadStrings(symbols []string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	keys := make([]model.SymbolKey, len(symbols))
	for i, s := range symbols {
		key, err := model.NewSymbolKey(s)
		if err != nil {
			return fmt.Errorf("symtab: symbol %q: %w", s, err)
		}
		keys[i] = key
	}
	for i, key := range keys {
		if err := t.shadow.insert(key, uint16(i)); err != nil {
			return fmt.Errorf("symtab: symbol %q: %w", symbols[i], err)
		}
	}
	return nil
}

// Commit publishes the shadow buffer as the active one. The new
// shadow starts empty, so the next load cycle rebuilds the full
// universe.
func (t *Table) Commit() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.active.Store(t.shadow)
	t.shadow = newBuffer(t.capacity)
}

// Len counts the occupied slots in the active buffer.
func (t *Table) Len() int {
	b := t.active.Load()
	n := 0
	for i := range b.slots {
		if b.slots[i].used {
			n++
		}
	}
	return n
}
