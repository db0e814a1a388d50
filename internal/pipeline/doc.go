// Package pipeline owns pipeline assembly and execution.
//
// Ownership boundary:
// - the bracket sublanguage parser
// - the streaming driver and its frame depth management
// - frame buffering for filter units
// - error classification into drop-and-warn versus abort
package pipeline
