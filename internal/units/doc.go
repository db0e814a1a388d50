// Package units owns the built-in unit set and its registry.
//
// Ownership boundary:
// - the name -> factory table the front-end and the eat/q handlers resolve
//   units through
// - the transformations themselves (sources, codecs, splitters, meta units,
//   frame filters)
package units
