// Package roster implements the durable membership store: the set of
// (list, subscriber, role) triples with per-membership preferences and
// bounce counters.
//
// A membership subscribed as a user resolves to that user's current
// preferred address at read time; a membership subscribed as an address is
// pinned to it. Effective preferences walk membership, address, user, then
// system defaults, taking the first non-nil value per field.
package roster
