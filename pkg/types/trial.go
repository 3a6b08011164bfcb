package types

import "time"

// TrialState is the lifecycle state of a trial.
type TrialState int

// Trial states. Complete, Pruned and Fail are terminal: once a trial
// reaches one of them, no further mutation is accepted. There is no
// restriction between the non-terminal states; Waiting→Running,
// Running→Waiting and Running→terminal are all legal.
const (
	StateRunning TrialState = iota
	StateComplete
	StatePruned
	StateFail
	StateWaiting
)

// String returns the persisted wire name of the state.
func (s TrialState) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateComplete:
		return "complete"
	case StatePruned:
		return "pruned"
	case StateFail:
		return "fail"
	case StateWaiting:
		return "waiting"
	default:
		return "unknown"
	}
}

// IsFinished reports whether the state is terminal.
func (s TrialState) IsFinished() bool {
	return s == StateComplete || s == StatePruned || s == StateFail
}

// Trial is a frozen snapshot of one parameter-evaluation attempt.
//
// Value and Values follow the single/multi convention: with no recorded
// objective values both are unset; with exactly one, Value carries it and
// Values is nil; with two or more, Values carries them and Value is nil.
type Trial struct {
	TrialID            int64                   `json:"trial_id"`
	StudyID            int64                   `json:"study_id"`
	Number             int64                   `json:"number"`
	State              TrialState              `json:"state"`
	Params             map[string]any          `json:"params"`
	Distributions      map[string]Distribution `json:"distributions"`
	UserAttrs          map[string]any          `json:"user_attrs"`
	SystemAttrs        map[string]any          `json:"system_attrs"`
	Value              *float64                `json:"value,omitempty"`
	Values             []float64               `json:"values,omitempty"`
	IntermediateValues map[int64]float64       `json:"intermediate_values"`
	DatetimeStart      *time.Time              `json:"datetime_start"`
	DatetimeComplete   *time.Time              `json:"datetime_complete"`
}
