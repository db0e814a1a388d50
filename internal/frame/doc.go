// Package frame owns the wire format spoken between units across a pipe.
//
// Ownership boundary:
// - stream magic and version sniffing
// - record tags and varint primitives
// - meta value encoding
// - frame depth reconstruction on the reader side
package frame
