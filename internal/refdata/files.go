package refdata

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/rickgao/tick2trade/internal/model"
)

// IndexedPrice pairs a symbol index with a fixed-point reference price.
type IndexedPrice struct {
	Index uint16
	Price model.Price
}

// LoadSymbolFile reads a symbol universe from a text file, one
// SYMBOL,INDEX entry per line. Lines starting with '#' and blank lines
// are skipped. Indices must be dense, covering 0..N-1 with no
// duplicates, so the returned slice position is the symbol index.
func LoadSymbolFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	entries := make(map[int]string)
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		sym, idxStr, ok := strings.Cut(line, ",")
		if !ok {
			return nil, fmt.Errorf("%s:%d: expected SYMBOL,INDEX, got %q", path, lineNo, line)
		}
		sym = strings.TrimSpace(sym)
		if len(sym) == 0 || len(sym) > 8 {
			return nil, fmt.Errorf("%s:%d: symbol %q must be 1-8 characters", path, lineNo, sym)
		}
		idx, err := strconv.Atoi(strings.TrimSpace(idxStr))
		if err != nil || idx < 0 || idx >= model.MaxSymbols {
			return nil, fmt.Errorf("%s:%d: invalid index %q", path, lineNo, idxStr)
		}
		if prev, dup := entries[idx]; dup {
			return nil, fmt.Errorf("%s:%d: index %d already assigned to %q", path, lineNo, idx, prev)
		}
		entries[idx] = sym
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	symbols := make([]string, len(entries))
	for idx, sym := range entries {
		if idx >= len(entries) {
			return nil, fmt.Errorf("%s: index %d leaves a gap, universe has %d symbols", path, idx, len(entries))
		}
		symbols[idx] = sym
	}
	return symbols, nil
}

// LoadPriceFile reads reference prices from a text file, one
// INDEX,PRICE entry per line. PRICE is a decimal dollar value,
// converted to fixed point by multiplying by 10000 and rounding
// half-up. Lines starting with '#' and blank lines are skipped.
func LoadPriceFile(path string) ([]IndexedPrice, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var prices []IndexedPrice
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		idxStr, priceStr, ok := strings.Cut(line, ",")
		if !ok {
			return nil, fmt.Errorf("%s:%d: expected INDEX,PRICE, got %q", path, lineNo, line)
		}
		idx, err := strconv.Atoi(strings.TrimSpace(idxStr))
		if err != nil || idx < 0 || idx >= model.MaxSymbols {
			return nil, fmt.Errorf("%s:%d: invalid index %q", path, lineNo, idxStr)
		}
		px, err := parsePrice(strings.TrimSpace(priceStr))
		if err != nil {
			return nil, fmt.Errorf("%s:%d: invalid price %q: %w", path, lineNo, priceStr, err)
		}
		prices = append(prices, IndexedPrice{Index: uint16(idx), Price: px})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return prices, nil
}

// parsePrice converts a decimal dollar string to fixed point. The
// digits are parsed directly instead of going through a float, so
// values like 0.0001 stay exact. Rounding is half-up on the fifth
// decimal digit.
func parsePrice(s string) (model.Price, error) {
	intPart, fracPart, _ := strings.Cut(s, ".")
	if intPart == "" {
		intPart = "0"
	}

	whole, err := strconv.ParseUint(intPart, 10, 64)
	if err != nil {
		return 0, err
	}
	v := whole * model.PriceScale

	if fracPart != "" {
		for _, c := range fracPart {
			if c < '0' || c > '9' {
				return 0, fmt.Errorf("non-digit in fraction %q", fracPart)
			}
		}
		digits := fracPart
		roundUp := false
		if len(digits) > 4 {
			roundUp = digits[4] >= '5'
			digits = digits[:4]
		}
		for len(digits) < 4 {
			digits += "0"
		}
		frac, err := strconv.ParseUint(digits, 10, 64)
		if err != nil {
			return 0, err
		}
		v += frac
		if roundUp {
			v++
		}
	}

	if v > math.MaxUint32 {
		return 0, fmt.Errorf("price %s overflows fixed point", s)
	}
	return model.Price(v), nil
}
