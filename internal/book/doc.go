// Package book maintains aggregate top-of-book state per symbol.
//
// Only the best bid and ask survive; orders joining behind top are
// ignored, and messages that reference an order without naming its
// symbol are applied to the most recently added symbol and side.
package book
