// Package textutil normalizes tag text for comparison and for use as library
// path segments.
//
// Fingerprints are term-frequency vectors over folded tokens: lower case,
// diacritics stripped, split on anything that is not a letter or digit. Two
// spellings of the same artist ("Beyoncé", "beyonce") fingerprint alike.
package textutil
