package engine

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/mesh-intelligence/studybook/internal/document"
	"github.com/mesh-intelligence/studybook/pkg/types"
)

// CreateTrial adds a trial to a study and returns its id. With a nil
// template the trial starts Running; otherwise the template record is
// copied wholesale. Identifiers are freshly allocated either way. The
// record is constructed first, but the owning study must exist before
// anything is persisted.
func (s *Storage) CreateTrial(studyID int64, template *types.Trial) (int64, error) {
	var doc document.Document
	var err error
	if template == nil {
		now := time.Now()
		doc = document.Document{
			"study_id":            studyID,
			"trial_id":            int64(-1),
			"number":              int64(-1),
			"state":               stateToWire[types.StateRunning],
			"params":              map[string]any{},
			"distributions":       map[string]any{},
			"user_attrs":          map[string]any{},
			"system_attrs":        map[string]any{},
			"values":              nil,
			"intermediate_values": map[string]any{},
			"datetime_start":      encodeTime(&now),
			"datetime_complete":   nil,
			"heartbeat":           nil,
		}
	} else {
		doc, err = trialRecord(studyID, template)
		if err != nil {
			return 0, err
		}
	}

	if err := s.checkStudyID(studyID); err != nil {
		return 0, err
	}

	trialID, err := s.nextTrialID()
	if err != nil {
		return 0, err
	}
	number, err := s.nextTrialNumber(studyID)
	if err != nil {
		return 0, err
	}
	doc["trial_id"] = trialID
	doc["number"] = number

	if _, err := s.trials.InsertOne(doc); err != nil {
		return 0, err
	}
	return trialID, nil
}

// checkTrialID fails unless exactly one trial has this id.
func (s *Storage) checkTrialID(trialID int64) error {
	n, err := s.trials.Count(document.Filter{"trial_id": trialID})
	if err != nil {
		return err
	}
	if n != 1 {
		return fmt.Errorf("trial_id %d: %w", trialID, types.ErrTrialNotFound)
	}
	return nil
}

// trialDoc fetches a trial record after its existence check.
func (s *Storage) trialDoc(trialID int64) (document.Document, error) {
	if err := s.checkTrialID(trialID); err != nil {
		return nil, err
	}
	return s.trials.FindOne(document.Filter{"trial_id": trialID})
}

// checkUpdatable rejects mutation of a trial in a terminal state,
// identifying the trial by its per-study number.
func checkUpdatable(doc document.Document) error {
	state, err := decodeState(doc["state"])
	if err != nil {
		return err
	}
	if state.IsFinished() {
		number, err := docInt64(doc, "number")
		if err != nil {
			return err
		}
		return fmt.Errorf("trial#%d has %w", number, types.ErrTrialFinished)
	}
	return nil
}

// SetTrialParam stores a parameter's external value and its serialized
// distribution under the parameter name, overwriting any prior entry.
func (s *Storage) SetTrialParam(trialID int64, name string, internal float64,
	distribution types.Distribution) error {

	doc, err := s.trialDoc(trialID)
	if err != nil {
		return err
	}
	if err := checkUpdatable(doc); err != nil {
		return err
	}

	external := distribution.ExternalRepr(internal)
	if external == nil {
		return fmt.Errorf("internal value %v is outside the %s distribution domain",
			internal, distribution.Kind())
	}
	serialized, err := types.MarshalDistribution(distribution)
	if err != nil {
		return err
	}

	// Object-valued externals (categorical choices can be objects) must
	// replace the prior value at the name, which merge patch cannot do.
	safe, err := patchSafe(external)
	if err != nil {
		return err
	}
	if !safe {
		params, err := docAnyMap(doc, "params")
		if err != nil {
			return err
		}
		dists, err := docAnyMap(doc, "distributions")
		if err != nil {
			return err
		}
		params[name] = external
		dists[name] = serialized
		doc["params"] = params
		doc["distributions"] = dists
		return s.trials.ReplaceOne(document.Filter{"trial_id": trialID}, doc)
	}
	return s.trials.Patch(document.Filter{"trial_id": trialID}, document.Document{
		"params":        map[string]any{name: external},
		"distributions": map[string]any{name: serialized},
	})
}

// SetTrialStateValues writes the trial's state and objective values. A
// Running trial asked to stay Running is a heartbeat-style no-op: it
// returns false without mutating. Transitions into a terminal state
// stamp datetime_complete.
func (s *Storage) SetTrialStateValues(trialID int64, state types.TrialState,
	values []float64) (bool, error) {

	doc, err := s.trialDoc(trialID)
	if err != nil {
		return false, err
	}
	current, err := decodeState(doc["state"])
	if err != nil {
		return false, err
	}
	if err := checkUpdatable(doc); err != nil {
		return false, err
	}
	if current == state && state == types.StateRunning {
		return false, nil
	}

	wire, err := encodeState(state)
	if err != nil {
		return false, err
	}
	patch := document.Document{
		"state":  wire,
		"values": values,
	}
	if state.IsFinished() {
		now := time.Now()
		patch["datetime_complete"] = encodeTime(&now)
	}
	if err := s.trials.Patch(document.Filter{"trial_id": trialID}, patch); err != nil {
		return false, err
	}
	return true, nil
}

// SetTrialIntermediateValue stores the objective value reported at a
// step, overwriting any prior value for the same step.
func (s *Storage) SetTrialIntermediateValue(trialID int64, step int64, value float64) error {
	doc, err := s.trialDoc(trialID)
	if err != nil {
		return err
	}
	if err := checkUpdatable(doc); err != nil {
		return err
	}
	return s.trials.Patch(document.Filter{"trial_id": trialID}, document.Document{
		"intermediate_values": map[string]any{strconv.FormatInt(step, 10): value},
	})
}

// SetTrialUserAttr merges {key: value} into the trial's user attributes.
func (s *Storage) SetTrialUserAttr(trialID int64, key string, value any) error {
	return s.setTrialAttr(trialID, "user_attrs", key, value)
}

// SetTrialSystemAttr merges {key: value} into the trial's system
// attributes.
func (s *Storage) SetTrialSystemAttr(trialID int64, key string, value any) error {
	return s.setTrialAttr(trialID, "system_attrs", key, value)
}

// setTrialAttr stores a single key in an attribute map, replacing any
// prior value at the key. As with study attributes, nil and object
// values bypass the merge patch since it cannot write them verbatim.
func (s *Storage) setTrialAttr(trialID int64, field, key string, value any) error {
	doc, err := s.trialDoc(trialID)
	if err != nil {
		return err
	}
	if err := checkUpdatable(doc); err != nil {
		return err
	}
	safe, err := patchSafe(value)
	if err != nil {
		return err
	}
	if !safe {
		attrs, err := docAnyMap(doc, field)
		if err != nil {
			return err
		}
		attrs[key] = value
		doc[field] = attrs
		return s.trials.ReplaceOne(document.Filter{"trial_id": trialID}, doc)
	}
	return s.trials.Patch(document.Filter{"trial_id": trialID},
		document.Document{field: map[string]any{key: value}})
}

// GetTrial returns the frozen snapshot of a trial.
func (s *Storage) GetTrial(trialID int64) (*types.Trial, error) {
	doc, err := s.trialDoc(trialID)
	if err != nil {
		return nil, err
	}
	return decodeTrial(doc)
}

// AllTrials returns the study's trials. A nil states slice returns all
// of them; an empty slice short-circuits to an empty result without
// querying; otherwise trials in any of the listed states match.
func (s *Storage) AllTrials(studyID int64, states []types.TrialState) ([]*types.Trial, error) {
	filter := document.Filter{"study_id": studyID}
	if states != nil {
		if len(states) == 0 {
			return []*types.Trial{}, nil
		}
		wire := make([]any, len(states))
		for i, st := range states {
			w, err := encodeState(st)
			if err != nil {
				return nil, err
			}
			wire[i] = w
		}
		filter["state"] = wire
	}

	docs, err := s.trials.Find(filter)
	if err != nil {
		return nil, err
	}
	trials := make([]*types.Trial, 0, len(docs))
	for _, doc := range docs {
		t, err := decodeTrial(doc)
		if err != nil {
			return nil, err
		}
		trials = append(trials, t)
	}
	return trials, nil
}

// TrialIDFromStudyIDTrialNumber resolves a per-study trial number to the
// global trial id.
func (s *Storage) TrialIDFromStudyIDTrialNumber(studyID, number int64) (int64, error) {
	doc, err := s.trials.FindOne(document.Filter{"study_id": studyID, "number": number})
	if errors.Is(err, document.ErrNoDocuments) {
		return 0, fmt.Errorf("no trial with number %d in study %d: %w",
			number, studyID, types.ErrTrialNotFound)
	}
	if err != nil {
		return 0, err
	}
	return docInt64(doc, "trial_id")
}

// TrialNumberFromID returns the trial's per-study number.
func (s *Storage) TrialNumberFromID(trialID int64) (int64, error) {
	doc, err := s.trialDoc(trialID)
	if err != nil {
		return 0, err
	}
	return docInt64(doc, "number")
}

// TrialParams returns the trial's external parameter values.
func (s *Storage) TrialParams(trialID int64) (map[string]any, error) {
	doc, err := s.trialDoc(trialID)
	if err != nil {
		return nil, err
	}
	return docAnyMap(doc, "params")
}

// TrialUserAttrs returns the trial's user attributes.
func (s *Storage) TrialUserAttrs(trialID int64) (map[string]any, error) {
	doc, err := s.trialDoc(trialID)
	if err != nil {
		return nil, err
	}
	return docAnyMap(doc, "user_attrs")
}

// TrialSystemAttrs returns the trial's system attributes.
func (s *Storage) TrialSystemAttrs(trialID int64) (map[string]any, error) {
	doc, err := s.trialDoc(trialID)
	if err != nil {
		return nil, err
	}
	return docAnyMap(doc, "system_attrs")
}

// CountTrials is not supported by this backend. It fails loudly so
// callers cannot mistake a missing feature for an empty study.
func (s *Storage) CountTrials(studyID int64, states []types.TrialState) (int, error) {
	return 0, fmt.Errorf("counting trials: %w", types.ErrUnimplemented)
}

// BestTrial returns the best completed trial of a single-objective
// study, honoring its direction. Completed trials without a single
// objective value are skipped.
func (s *Storage) BestTrial(studyID int64) (*types.Trial, error) {
	directions, err := s.StudyDirections(studyID)
	if err != nil {
		return nil, err
	}
	if len(directions) > 1 {
		return nil, fmt.Errorf("best trial of a multi-objective study: %w",
			types.ErrUnimplemented)
	}

	trials, err := s.AllTrials(studyID, []types.TrialState{types.StateComplete})
	if err != nil {
		return nil, err
	}

	maximize := directions[0] == types.DirectionMaximize
	var best *types.Trial
	for _, t := range trials {
		if t.Value == nil {
			continue
		}
		if best == nil {
			best = t
			continue
		}
		better := *t.Value > *best.Value
		if !maximize {
			better = *t.Value < *best.Value
		}
		if better {
			best = t
		}
	}
	if best == nil {
		return nil, fmt.Errorf("study %d has no completed trial with a value: %w",
			studyID, types.ErrTrialNotFound)
	}
	return best, nil
}
