// Package api is the daemon's HTTP surface. It binds JSON requests onto the
// dispatch layer and renders queue, session, and library state as
// transport-friendly payloads.
//
// # Routes
//
//	POST /api/enqueue                 queue folder work of one kind
//	POST /api/analyze                 queue a tempo/key analysis of items
//	POST /api/items/delete            queue removal of imported items
//	GET  /api/items/:id/metadata      embedded tags of one item file
//	GET  /api/jobs                    list jobs, filtered by status and lane
//	GET  /api/jobs/:id                one job
//	GET  /api/sessions/:hash          every stored revision for a folder hash
//	GET  /api/status                  daemon status
//	GET  /ws                          folder and job status stream
//
// Submissions answer 202 once the jobs are queued; the work itself happens on
// the lane workers. Errors use the body {"error":{"code","message"}} and map
// validation failures to 400 and unknown resources to 404.
//
// When a token is configured every route requires an
// "Authorization: Bearer <token>" header.
package api
