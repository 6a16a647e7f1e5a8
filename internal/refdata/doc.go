// Package refdata keeps the engine's symbol universe and reference
// prices in sync with the database. A poller refreshes the prices, and
// the symbols when configured to, on an interval; the first refresh runs synchronously inside Start so the
// engine never trades without reference data.
package refdata
