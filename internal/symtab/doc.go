// Package symtab maps 8-byte symbol keys to dense indices.
//
// The table is open-addressed with linear probing, bounded to eight
// probes, and double-buffered: loads build a shadow copy off the data
// path, and a commit publishes it with a single atomic pointer swap.
// Lookups read the active copy without locks.
package symtab
