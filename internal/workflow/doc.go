// Package workflow runs the job lanes.
//
// The Manager starts one worker loop per lane (preview and import). Each loop
// claims the next runnable job from the queue, runs the handler registered for
// the job's function through outcome.Capture while a heartbeat keeps the job
// alive, records the outcome, and then fires the completion hook exactly once.
// Lanes are independent: a preview and an unrelated import run concurrently,
// while chained jobs are ordered by the queue's dependency tracking rather
// than by any barrier here.
//
// A handler that fails, or panics, completes the job as failed. The queue
// cancels every job waiting on it in the same transaction.
package workflow
