// Package unit owns the contract every transformation implements.
//
// Ownership boundary:
// - the Unit interface and its optional capabilities (reverse, frame filter,
//   source)
// - multibin argument binding
// - the error taxonomy the driver maps to exit codes
package unit
