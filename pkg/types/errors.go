package types

import "errors"

// Lookup errors. A logically deleted study is treated as missing.
var (
	ErrStudyNotFound = errors.New("study not found")
	ErrTrialNotFound = errors.New("trial not found")
)

// Conflict errors. Distinct from the lookup errors so callers can branch
// on "already exists" versus "missing".
var (
	ErrDuplicatedStudy   = errors.New("study name already exists")
	ErrDirectionConflict = errors.New("study directions are already set")
	ErrNoDirections      = errors.New("directions must not be empty")
)

// ErrTrialFinished is returned when a mutating operation targets a trial
// in a terminal state. The engine wraps it with the trial's per-study
// number, e.g. "trial#3 has already finished and can not be updated".
var ErrTrialFinished = errors.New("already finished and can not be updated")

// ErrUnimplemented marks operations this storage backend does not support.
// They fail loudly rather than returning wrong data.
var ErrUnimplemented = errors.New("not supported by this storage backend")

// ErrHeartbeatDisabled is returned by staleness operations when no
// heartbeat interval is configured.
var ErrHeartbeatDisabled = errors.New("heartbeat is not enabled")

// Codec errors.
var (
	ErrUnknownDirection    = errors.New("unknown study direction")
	ErrUnknownTrialState   = errors.New("unknown trial state")
	ErrUnknownDistribution = errors.New("unknown distribution kind")
)
