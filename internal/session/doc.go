// Package session owns folder tagging sessions: the live state a job mutates,
// its persisted revisions, and the reconciler that moves state between the
// two.
//
// A folder is addressed by its content hash and path. Persisted states are
// append-only per hash: every preview commits a new revision computed as the
// current maximum plus one inside the same transaction as the insert, while
// other jobs update the latest revision in place. Two mutating jobs racing on
// the same folder identity both read, both merge, and the last commit wins;
// callers must not schedule such jobs concurrently.
package session
