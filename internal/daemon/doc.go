// Package daemon coordinates the long-running tagflow process.
//
// It ties configuration, queue storage, the lane workers, and the HTTP
// surface into a single lifecycle with flock-based locking to prevent
// multiple instances. Jobs left started by an interrupted run are requeued
// before the lanes start so nothing is silently dropped.
//
// Keep orchestration logic here: job bodies live in internal/jobs and the
// routes in internal/api while the daemon focuses on startup, shutdown, and
// status reporting.
package daemon
