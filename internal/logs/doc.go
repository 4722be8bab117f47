// Package logs reads the daemon's per-run log files for `tagflow logs`.
//
// Latest picks the newest run log, Last returns its trailing lines, and
// Follow polls for appended lines until the caller's context ends. Reads
// stop at the last complete line so a line being written is never split.
package logs
