// Command tagflow is the command-line front end for the tagflow daemon.
//
// Submissions (enqueue, analyze, items delete) and status go through the
// daemon's HTTP API so that folder status notifications reach every
// subscriber. Queue maintenance, session history, and dependency checks read
// the local databases and binaries directly and work with the daemon stopped.
//
// "tagflow daemon" runs the daemon in the foreground; "tagflow start" and
// "tagflow stop" manage a detached one, and "tagflow logs" reads its run log.
// cmd/tagflowd is the same runtime without the CLI.
package main
