// Package bounce scores delivery failures against memberships and walks
// disabled members through the warn-then-remove escalation ladder.
//
// Intake is decoupled from scoring: collaborators push events onto a Redis
// queue (or insert them directly), the Consumer drains the queue, and the
// Processor applies at-most-once-per-day scoring inside one database
// transaction per event. The Runner drives the daily escalation pass behind
// a distributed lock so only one instance escalates at a time.
package bounce
