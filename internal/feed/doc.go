// Package feed delivers raw ITCH payloads to the data path.
//
// Three sources exist: a UDP listener for the live multicast feed, a
// WebSocket replay client for captured streams, and a capture-file
// replayer. Each stamps every payload at receipt (or read) and hands it
// to a single handler goroutine, which keeps the pipeline's
// single-producer contract.
package feed
