package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ReferencePrice is one row of the reference_prices table. Price uses
// the feed's fixed-point convention (1/10000 dollar units).
type ReferencePrice struct {
	Symbol string
	Price  uint32
}

// LoadSymbols returns the active symbol universe ordered by symbol so
// repeated loads assign stable dense indices.
func LoadSymbols(ctx context.Context, pool *pgxpool.Pool) ([]string, error) {
	rows, err := pool.Query(ctx, `
		SELECT symbol
		FROM symbols
		WHERE active
		ORDER BY symbol
	`)
	if err != nil {
		return nil, fmt.Errorf("query symbols: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scan symbol: %w", err)
		}
		symbols = append(symbols, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate symbols: %w", err)
	}
	return symbols, nil
}

// LoadReferencePrices returns the current reference price per symbol.
func LoadReferencePrices(ctx context.Context, pool *pgxpool.Pool) ([]ReferencePrice, error) {
	rows, err := pool.Query(ctx, `
		SELECT symbol, price
		FROM reference_prices
	`)
	if err != nil {
		return nil, fmt.Errorf("query reference prices: %w", err)
	}
	defer rows.Close()

	var prices []ReferencePrice
	for rows.Next() {
		var rp ReferencePrice
		if err := rows.Scan(&rp.Symbol, &rp.Price); err != nil {
			return nil, fmt.Errorf("scan reference price: %w", err)
		}
		prices = append(prices, rp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reference prices: %w", err)
	}
	return prices, nil
}
