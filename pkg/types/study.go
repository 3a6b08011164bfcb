package types

import "time"

// StudyDirection is the optimization goal of one objective.
type StudyDirection int

// Objective directions. A new study starts with a single DirectionNotSet
// entry; directions may be fixed exactly once to a concrete sequence.
const (
	DirectionNotSet StudyDirection = iota
	DirectionMinimize
	DirectionMaximize
)

// String returns the persisted wire name of the direction.
func (d StudyDirection) String() string {
	switch d {
	case DirectionMinimize:
		return "minimize"
	case DirectionMaximize:
		return "maximize"
	default:
		return "not_set"
	}
}

// DirectionsEqual reports whether two direction sequences are identical.
func DirectionsEqual(a, b []StudyDirection) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// StudySummary is a lightweight view of a study, without its trials.
type StudySummary struct {
	StudyID       int64            `json:"study_id"`
	StudyName     string           `json:"study_name"`
	Directions    []StudyDirection `json:"directions"`
	UserAttrs     map[string]any   `json:"user_attrs"`
	SystemAttrs   map[string]any   `json:"system_attrs"`
	NTrials       int              `json:"n_trials"`
	BestTrial     *Trial           `json:"best_trial,omitempty"`
	DatetimeStart *time.Time       `json:"datetime_start"`
}
