// Package engine is the local tagging engine behind every folder job. A
// session type exists per operation (Preview, AddCandidates,
// ImportCandidate, AutoImport, Bootleg, Undo); each is built from a live
// session.State plus its parameters and mutates that state in place when Run
// is called.
//
// The engine has no remote metadata source of its own. Preview always offers
// an "asis" candidate built from the files' existing tags; further candidates
// come from CandidateSource implementations supplied by the caller.
package engine
