// Package subscription implements the membership workflow engine: the
// state machine that drives a candidate from "requested" to "subscribed"
// (or the reverse) through verification, confirmation, and moderator
// approval gates.
//
// Suspended workflows are not goroutines; they are pending actions persisted
// by token. Every entry point is blocking and transactional: a call either
// commits a membership mutation plus its pending-action bookkeeping
// atomically, or leaves no trace.
package subscription
