// Package protocol owns the wire contract shared by the framing and
// command layers.
//
// Ownership boundary:
// - op-code and status-word tables
// - frame/ byte-stuffed frame primitives
// - pdt/ metadata TLV primitives
package protocol
