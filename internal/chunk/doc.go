// Package chunk owns the in-flight unit of data.
//
// Ownership boundary:
// - chunk payload, path, and visibility
// - meta variable store and value kinds
// - reserved computed meta names
package chunk
