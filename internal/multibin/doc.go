// Package multibin owns the argument expression language.
//
// Ownership boundary:
// - handler registry primitives
// - expression compilation into an IR of handler steps
// - per-chunk evaluation context
//
// An expression is a chain `h1[a1]:h2[a2]:...:literal` evaluated right to
// left: the rightmost literal is fed to the handler on its left, and so on.
package multibin
