// Package jobs holds the worker-side bodies of every dispatched job.
//
// Runner.Handlers returns one workflow handler per job function. Folder
// handlers decode their arguments, emit the kind's before status, drive the
// engine session through the reconciler so the state is written back even
// on failure, and emit the after status. StatusUpdateHook publishes the
// generic job status event once per finished job.
package jobs
