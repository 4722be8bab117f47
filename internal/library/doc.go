// Package library is the item catalogue imports write into and the analyzer
// updates: one SQLite row per imported audio file, tagged with the session
// task that produced it.
//
// TagWriter implementations push analyzed attributes back into the audio file
// itself. Write-back is best effort; the database row is authoritative.
package library
