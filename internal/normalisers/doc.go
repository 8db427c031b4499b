// Package normalisers provides implementations of the Normaliser interface
// for the supported legal document formats. Each normaliser extracts text
// from exactly one format tag.
//
// Normalisers are registered with the Registry at startup, which dispatches
// on the declared format of each source document.
package normalisers
