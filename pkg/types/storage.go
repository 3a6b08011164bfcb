package types

import "time"

// FailedTrialCallback is invoked once per trial the staleness scan fails,
// with the owning study's summary and the frozen trial snapshot.
type FailedTrialCallback func(study StudySummary, trial Trial)

// Storage persists studies and trials for an optimization run.
//
// The engine performs no in-process locking and no multi-record
// transactions: every multi-step operation is a sequence of independent
// round-trips to the backend. Concurrent writers mutating the same trial
// can race; upstream orchestration is expected to serialize writes per
// trial.
type Storage interface {
	// CreateStudy registers a new study and returns its id. An empty
	// name gets an auto-generated unique one. Returns ErrDuplicatedStudy
	// if the name is taken, including by a logically deleted study.
	CreateStudy(name string) (int64, error)

	// DeleteStudy logically deletes a study. The id and name stay
	// reserved. Deleting an already-deleted study returns
	// ErrStudyNotFound.
	DeleteStudy(studyID int64) error

	// SetStudyUserAttr merges {key: value} into the study's user
	// attributes. Untouched keys are preserved.
	SetStudyUserAttr(studyID int64, key string, value any) error

	// SetStudySystemAttr merges {key: value} into the study's system
	// attributes.
	SetStudySystemAttr(studyID int64, key string, value any) error

	// SetStudyDirections fixes the study's objective directions. A study
	// starts as [DirectionNotSet]; directions may be set once to a
	// concrete non-empty sequence. Re-setting the same sequence is
	// idempotent; a different one returns ErrDirectionConflict.
	SetStudyDirections(studyID int64, directions []StudyDirection) error

	// StudyIDFromName resolves a study name, including deleted studies.
	StudyIDFromName(name string) (int64, error)

	StudyNameFromID(studyID int64) (string, error)
	StudyDirections(studyID int64) ([]StudyDirection, error)
	StudyUserAttrs(studyID int64) (map[string]any, error)
	StudySystemAttrs(studyID int64) (map[string]any, error)

	// AllStudySummaries returns all non-deleted studies with their trial
	// counts. Best trials are resolved only when includeBestTrial is
	// set; a study with no determinable best trial leaves the field nil.
	AllStudySummaries(includeBestTrial bool) ([]StudySummary, error)

	// CreateTrial adds a trial to a study and returns its id. With a nil
	// template the trial starts Running with empty params and attrs;
	// otherwise the whole template is copied except the freshly
	// allocated identifiers.
	CreateTrial(studyID int64, template *Trial) (int64, error)

	// SetTrialParam stores the external representation of an internally
	// sampled value together with its serialized distribution.
	SetTrialParam(trialID int64, name string, internal float64, distribution Distribution) error

	// SetTrialStateValues writes the trial's state and objective values.
	// A Running→Running call is a redundant heartbeat-style no-op and
	// returns false without mutating. Transitions into a terminal state
	// stamp the completion timestamp.
	SetTrialStateValues(trialID int64, state TrialState, values []float64) (bool, error)

	// SetTrialIntermediateValue stores or overwrites the objective value
	// reported at the given step.
	SetTrialIntermediateValue(trialID int64, step int64, value float64) error

	SetTrialUserAttr(trialID int64, key string, value any) error
	SetTrialSystemAttr(trialID int64, key string, value any) error

	GetTrial(trialID int64) (*Trial, error)

	// AllTrials returns the study's trials. A nil states slice means no
	// filter; an empty one short-circuits to an empty result; otherwise
	// trials matching any listed state are returned.
	AllTrials(studyID int64, states []TrialState) ([]*Trial, error)

	// TrialIDFromStudyIDTrialNumber resolves a per-study trial number.
	TrialIDFromStudyIDTrialNumber(studyID, number int64) (int64, error)

	TrialNumberFromID(trialID int64) (int64, error)
	TrialParams(trialID int64) (map[string]any, error)
	TrialUserAttrs(trialID int64) (map[string]any, error)
	TrialSystemAttrs(trialID int64) (map[string]any, error)

	// CountTrials is not supported; it returns ErrUnimplemented.
	CountTrials(studyID int64, states []TrialState) (int, error)

	// BestTrial returns the best completed trial of a single-objective
	// study. Multi-objective studies return ErrUnimplemented.
	BestTrial(studyID int64) (*Trial, error)

	// HeartbeatEnabled reports whether a heartbeat interval is
	// configured.
	HeartbeatEnabled() bool
	HeartbeatInterval() time.Duration

	// RecordHeartbeat stamps the trial's liveness timestamp with backend
	// server time.
	RecordHeartbeat(trialID int64) error

	// StaleTrialIDs returns the study's running trials whose last
	// heartbeat is older than the grace period, as a batch. It never
	// fails for individual stale trials.
	StaleTrialIDs(studyID int64) ([]int64, error)

	// FailStaleTrials transitions each stale trial to Fail, invoking the
	// failed-trial callback once per trial. Returns the number of trials
	// failed.
	FailStaleTrials(studyID int64) (int, error)

	// Close releases backend resources.
	Close() error
}
