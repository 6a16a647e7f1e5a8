// Package pipeline assembles the data path: splitter, decoder, book,
// risk gate, and publisher ring.
//
// One goroutine feeds payloads through Process. Control-plane changes
// (risk parameters, kill switch, stale clear) are queued and drained
// at packet boundaries, so the data path never blocks on them. Symbol
// and reference-price loads go straight to their double-buffered and
// atomic stores.
package pipeline
