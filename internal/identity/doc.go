// Package identity implements the user and address store.
//
// This is the single source of truth for who an email address belongs to.
// Addresses are unique under case-insensitive comparison, users own sets of
// addresses, and bans forbid addresses from ever reaching a roster. The
// subscription workflow consults this package before every membership
// mutation.
package identity
