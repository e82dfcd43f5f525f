package bounce

import "errors"

// ErrBadProbeToken marks a probe bounce whose token matches no pending
// probe, usually because it already expired or was already consumed.
var ErrBadProbeToken = errors.New("bounce: unknown or expired probe token")
