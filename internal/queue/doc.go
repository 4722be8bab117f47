// Package queue persists dispatched jobs in SQLite and exposes the lane,
// ordering, and dependency semantics the workers rely on.
//
// Every job belongs to exactly one lane (preview or import), carries the
// metadata that lets observers correlate completions with the originating
// request, and may depend on a single predecessor. A dependent job waits in the
// deferred state until its predecessor finishes; when the predecessor fails or
// is canceled the dependent is canceled instead of run. Jobs placed at the
// front of a lane are claimed before every job already queued there.
//
// The completion hook marker (hook_fired) lets the worker guarantee the hook
// runs exactly once per job even across restarts.
//
// Schema changes bump the version in schema.go; users clear the database to
// adopt the new schema.
package queue
