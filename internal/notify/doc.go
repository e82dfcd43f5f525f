// Package notify renders and enqueues every message the lifecycle core
// sends: welcomes, goodbyes, confirmations, invitations, probes, warnings,
// and owner notices.
//
// The dispatcher is the only component that constructs outgoing mail. It
// expands a Liquid template in the right language, wraps the result with the
// list's bounce return path (VERP-tagged when configured), and hands the
// message to the outbound submission collaborator.
package notify
