// Package notifications delivers folder and job status events to
// subscribers.
//
// Every sender implements Service. The daemon wires a websocket Hub for live
// clients and, when a topic is configured, an ntfy push sender, joined with
// Fanout. Delivery is fire-and-forget: at most once, no acknowledgement, and
// callers log publish errors rather than acting on them.
package notifications
