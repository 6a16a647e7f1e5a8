// Package model defines the core value types shared across the pipeline:
// fixed-point prices, padded symbol keys, decoded feed messages, book
// events, and the 64-byte decision record with its wire codec.
//
// All prices are unsigned 32-bit fixed-point with an implied 1e-4 scale
// ($150.2500 = 1502500). Arithmetic on the data path is integer-only;
// conversion to floating point happens at reporting boundaries.
package model
