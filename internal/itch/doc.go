// Package itch frames and decodes the ITCH 5.0 message stream.
//
// The splitter segments concatenated UDP payloads into fixed-length
// messages using the static per-type length table, tracks the 32-bit
// sequence number, and latches a stale flag across gaps. The decoder
// extracts the typed fields each downstream stage needs and resolves
// symbol keys through the symbol table.
package itch
