package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/studybook/pkg/types"
)

// newStudy creates a study for trial tests.
func newStudy(t *testing.T, s *Storage) int64 {
	t.Helper()
	studyID, err := s.CreateStudy("")
	require.NoError(t, err)
	return studyID
}

func TestCreateTrial_Defaults(t *testing.T) {
	s := newStorage(t)
	studyID := newStudy(t, s)

	trialID, err := s.CreateTrial(studyID, nil)
	require.NoError(t, err)

	trial, err := s.GetTrial(trialID)
	require.NoError(t, err)
	assert.Equal(t, trialID, trial.TrialID)
	assert.Equal(t, studyID, trial.StudyID)
	assert.Equal(t, int64(0), trial.Number)
	assert.Equal(t, types.StateRunning, trial.State)
	assert.Empty(t, trial.Params)
	assert.Empty(t, trial.UserAttrs)
	assert.Nil(t, trial.Value)
	assert.Nil(t, trial.Values)
	assert.Empty(t, trial.IntermediateValues)
	assert.NotNil(t, trial.DatetimeStart)
	assert.Nil(t, trial.DatetimeComplete)
}

func TestCreateTrial_NumbersAreDensePerStudy(t *testing.T) {
	s := newStorage(t)
	studyA := newStudy(t, s)
	studyB := newStudy(t, s)

	for want := int64(0); want < 3; want++ {
		trialID, err := s.CreateTrial(studyA, nil)
		require.NoError(t, err)
		number, err := s.TrialNumberFromID(trialID)
		require.NoError(t, err)
		assert.Equal(t, want, number)
	}

	// Numbers restart per study; trial ids are global.
	trialID, err := s.CreateTrial(studyB, nil)
	require.NoError(t, err)
	number, err := s.TrialNumberFromID(trialID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), number)
	assert.Equal(t, int64(3), trialID)
}

func TestCreateTrial_StudyMustExist(t *testing.T) {
	s := newStorage(t)

	_, err := s.CreateTrial(99, nil)
	assert.ErrorIs(t, err, types.ErrStudyNotFound)

	trials, err := s.AllTrials(99, nil)
	require.NoError(t, err)
	assert.Empty(t, trials, "nothing was persisted")
}

func TestCreateTrial_FromTemplate(t *testing.T) {
	s := newStorage(t)
	studyID := newStudy(t, s)

	start := time.Date(2026, 3, 14, 9, 26, 53, 589793000, time.UTC)
	value := 0.25
	template := &types.Trial{
		TrialID: 9999,
		Number:  9999,
		State:   types.StateWaiting,
		Params:  map[string]any{"lr": 0.01},
		Distributions: map[string]types.Distribution{
			"lr": types.FloatDistribution{Low: 1e-4, High: 1e-1, Log: true},
		},
		UserAttrs:          map[string]any{"note": "queued"},
		SystemAttrs:        map[string]any{},
		Value:              &value,
		IntermediateValues: map[int64]float64{3: 0.9},
		DatetimeStart:      &start,
	}

	trialID, err := s.CreateTrial(studyID, template)
	require.NoError(t, err)

	trial, err := s.GetTrial(trialID)
	require.NoError(t, err)

	// Identifiers are freshly allocated, everything else is copied.
	assert.Equal(t, trialID, trial.TrialID)
	assert.NotEqual(t, int64(9999), trial.TrialID)
	assert.Equal(t, int64(0), trial.Number)
	assert.Equal(t, types.StateWaiting, trial.State)
	assert.Equal(t, map[string]any{"lr": 0.01}, trial.Params)
	assert.Equal(t, template.Distributions, trial.Distributions)
	assert.Equal(t, map[string]any{"note": "queued"}, trial.UserAttrs)
	require.NotNil(t, trial.Value)
	assert.Equal(t, 0.25, *trial.Value)
	assert.Equal(t, map[int64]float64{3: 0.9}, trial.IntermediateValues)
	require.NotNil(t, trial.DatetimeStart)
	assert.True(t, trial.DatetimeStart.Equal(start), "microseconds survive the round trip")
}

func TestSetTrialParam_RoundTrip(t *testing.T) {
	s := newStorage(t)
	studyID := newStudy(t, s)
	trialID, err := s.CreateTrial(studyID, nil)
	require.NoError(t, err)

	require.NoError(t, s.SetTrialParam(trialID, "x", 0.1,
		types.FloatDistribution{Low: 0, High: 1}))
	require.NoError(t, s.SetTrialParam(trialID, "units", 64,
		types.IntDistribution{Low: 16, High: 256}))
	require.NoError(t, s.SetTrialParam(trialID, "optimizer", 1,
		types.CategoricalDistribution{Choices: []any{"adam", "sgd"}}))

	params, err := s.TrialParams(trialID)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"x":         0.1,
		"units":     int64(64),
		"optimizer": "sgd",
	}, params)

	trial, err := s.GetTrial(trialID)
	require.NoError(t, err)
	assert.Equal(t, types.FloatDistribution{Low: 0, High: 1}, trial.Distributions["x"])
	assert.Equal(t, types.IntDistribution{Low: 16, High: 256}, trial.Distributions["units"])
	assert.Equal(t, types.CategoricalDistribution{Choices: []any{"adam", "sgd"}},
		trial.Distributions["optimizer"])

	// Same name overwrites both value and distribution.
	require.NoError(t, s.SetTrialParam(trialID, "x", 0.9,
		types.FloatDistribution{Low: 0, High: 2}))
	trial, err = s.GetTrial(trialID)
	require.NoError(t, err)
	assert.Equal(t, 0.9, trial.Params["x"])
	assert.Equal(t, types.FloatDistribution{Low: 0, High: 2}, trial.Distributions["x"])
}

func TestSetTrialParam_OutOfDomain(t *testing.T) {
	s := newStorage(t)
	studyID := newStudy(t, s)
	trialID, err := s.CreateTrial(studyID, nil)
	require.NoError(t, err)

	err = s.SetTrialParam(trialID, "choice", 5,
		types.CategoricalDistribution{Choices: []any{"a", "b"}})
	assert.Error(t, err)
}

func TestSetTrialStateValues_RunningToRunningIsNoOp(t *testing.T) {
	s := newStorage(t)
	studyID := newStudy(t, s)
	trialID, err := s.CreateTrial(studyID, nil)
	require.NoError(t, err)

	updated, err := s.SetTrialStateValues(trialID, types.StateRunning, []float64{1})
	require.NoError(t, err)
	assert.False(t, updated)

	trial, err := s.GetTrial(trialID)
	require.NoError(t, err)
	assert.Nil(t, trial.Value, "the no-op must not write values")
}

func TestSetTrialStateValues_NonTerminalTransitions(t *testing.T) {
	s := newStorage(t)
	studyID := newStudy(t, s)
	trialID, err := s.CreateTrial(studyID, nil)
	require.NoError(t, err)

	// Running → Waiting and back are both legal.
	updated, err := s.SetTrialStateValues(trialID, types.StateWaiting, nil)
	require.NoError(t, err)
	assert.True(t, updated)

	updated, err = s.SetTrialStateValues(trialID, types.StateRunning, nil)
	require.NoError(t, err)
	assert.True(t, updated, "Waiting → Running is a real transition, not the no-op")

	trial, err := s.GetTrial(trialID)
	require.NoError(t, err)
	assert.Equal(t, types.StateRunning, trial.State)
	assert.Nil(t, trial.DatetimeComplete, "non-terminal transitions leave completion unset")
}

func TestSetTrialStateValues_TerminalStampsCompletion(t *testing.T) {
	s := newStorage(t)
	studyID := newStudy(t, s)

	for _, terminal := range []types.TrialState{
		types.StateComplete, types.StatePruned, types.StateFail,
	} {
		trialID, err := s.CreateTrial(studyID, nil)
		require.NoError(t, err)

		updated, err := s.SetTrialStateValues(trialID, terminal, nil)
		require.NoError(t, err)
		assert.True(t, updated)

		trial, err := s.GetTrial(trialID)
		require.NoError(t, err)
		assert.Equal(t, terminal, trial.State)
		assert.NotNil(t, trial.DatetimeComplete, "state %s stamps completion", terminal)
	}
}

func TestTrial_ValueValuesReconciliation(t *testing.T) {
	s := newStorage(t)
	studyID := newStudy(t, s)

	tests := []struct {
		name       string
		values     []float64
		wantValue  *float64
		wantValues []float64
	}{
		{"no values", nil, nil, nil},
		{"single value", []float64{0.5}, ptr(0.5), nil},
		{"multiple values", []float64{0.2, 0.7}, nil, []float64{0.2, 0.7}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trialID, err := s.CreateTrial(studyID, nil)
			require.NoError(t, err)

			_, err = s.SetTrialStateValues(trialID, types.StateComplete, tt.values)
			require.NoError(t, err)

			trial, err := s.GetTrial(trialID)
			require.NoError(t, err)
			if tt.wantValue == nil {
				assert.Nil(t, trial.Value)
			} else {
				require.NotNil(t, trial.Value)
				assert.Equal(t, *tt.wantValue, *trial.Value)
			}
			assert.Equal(t, tt.wantValues, trial.Values)
		})
	}
}

func ptr(v float64) *float64 { return &v }

func TestTrial_IntermediateValues(t *testing.T) {
	s := newStorage(t)
	studyID := newStudy(t, s)
	trialID, err := s.CreateTrial(studyID, nil)
	require.NoError(t, err)

	require.NoError(t, s.SetTrialIntermediateValue(trialID, 0, 1.5))
	require.NoError(t, s.SetTrialIntermediateValue(trialID, 5, 0.8))
	require.NoError(t, s.SetTrialIntermediateValue(trialID, 0, 1.2), "steps overwrite")

	trial, err := s.GetTrial(trialID)
	require.NoError(t, err)
	assert.Equal(t, map[int64]float64{0: 1.2, 5: 0.8}, trial.IntermediateValues)
}

func TestTrial_AttrsMergeKeyByKey(t *testing.T) {
	s := newStorage(t)
	studyID := newStudy(t, s)
	trialID, err := s.CreateTrial(studyID, nil)
	require.NoError(t, err)

	require.NoError(t, s.SetTrialUserAttr(trialID, "worker", "w1"))
	require.NoError(t, s.SetTrialUserAttr(trialID, "attempt", 2))
	require.NoError(t, s.SetTrialSystemAttr(trialID, "queue", "gpu"))

	userAttrs, err := s.TrialUserAttrs(trialID)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"worker": "w1", "attempt": int64(2)}, userAttrs)

	systemAttrs, err := s.TrialSystemAttrs(trialID)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"queue": "gpu"}, systemAttrs)
}

func TestTrial_ObjectAttrValueReplaces(t *testing.T) {
	s := newStorage(t)
	studyID := newStudy(t, s)
	trialID, err := s.CreateTrial(studyID, nil)
	require.NoError(t, err)

	// Object values at the same key replace, never merge, and nested
	// nils are stored rather than dropped.
	require.NoError(t, s.SetTrialUserAttr(trialID, "cfg", map[string]any{"a": 1}))
	require.NoError(t, s.SetTrialUserAttr(trialID, "cfg", map[string]any{"b": 2, "c": nil}))

	attrs, err := s.TrialUserAttrs(trialID)
	require.NoError(t, err)
	cfg, ok := attrs["cfg"].(map[string]any)
	require.True(t, ok)
	assert.NotContains(t, cfg, "a")
	assert.Equal(t, int64(2), cfg["b"])
	assert.Contains(t, cfg, "c")
	assert.Nil(t, cfg["c"])
}

func TestSetTrialParam_ObjectChoiceReplaces(t *testing.T) {
	s := newStorage(t)
	studyID := newStudy(t, s)
	trialID, err := s.CreateTrial(studyID, nil)
	require.NoError(t, err)

	dist := types.CategoricalDistribution{Choices: []any{
		map[string]any{"kernel": "rbf"},
		map[string]any{"kernel": "poly", "degree": 3},
	}}
	require.NoError(t, s.SetTrialParam(trialID, "svm", 1, dist))
	require.NoError(t, s.SetTrialParam(trialID, "svm", 0, dist))

	// A merge of the two choice objects would keep "degree" around.
	params, err := s.TrialParams(trialID)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"svm": map[string]any{"kernel": "rbf"},
	}, params)
}

func TestTrial_TerminalStateRejectsMutation(t *testing.T) {
	s := newStorage(t)
	studyID := newStudy(t, s)

	for _, terminal := range []types.TrialState{
		types.StateComplete, types.StatePruned, types.StateFail,
	} {
		trialID, err := s.CreateTrial(studyID, nil)
		require.NoError(t, err)
		_, err = s.SetTrialStateValues(trialID, terminal, nil)
		require.NoError(t, err)

		mutations := map[string]func() error{
			"SetTrialParam": func() error {
				return s.SetTrialParam(trialID, "x", 0.5, types.FloatDistribution{Low: 0, High: 1})
			},
			"SetTrialStateValues": func() error {
				_, err := s.SetTrialStateValues(trialID, types.StateRunning, nil)
				return err
			},
			"SetTrialIntermediateValue": func() error {
				return s.SetTrialIntermediateValue(trialID, 1, 0.5)
			},
			"SetTrialUserAttr": func() error {
				return s.SetTrialUserAttr(trialID, "k", "v")
			},
			"SetTrialSystemAttr": func() error {
				return s.SetTrialSystemAttr(trialID, "k", "v")
			},
		}
		for name, mutate := range mutations {
			err := mutate()
			assert.ErrorIs(t, err, types.ErrTrialFinished, "%s on %s trial", name, terminal)
		}
	}
}

func TestTrial_FinishedErrorNamesTrialNumber(t *testing.T) {
	s := newStorage(t)
	studyID := newStudy(t, s)

	// Second trial of the study, so number is 1.
	_, err := s.CreateTrial(studyID, nil)
	require.NoError(t, err)
	trialID, err := s.CreateTrial(studyID, nil)
	require.NoError(t, err)

	_, err = s.SetTrialStateValues(trialID, types.StateComplete, nil)
	require.NoError(t, err)

	err = s.SetTrialUserAttr(trialID, "k", "v")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "trial#1")
}

func TestTrial_MutationSucceedsWhileNonTerminal(t *testing.T) {
	s := newStorage(t)
	studyID := newStudy(t, s)
	trialID, err := s.CreateTrial(studyID, nil)
	require.NoError(t, err)

	_, err = s.SetTrialStateValues(trialID, types.StateWaiting, nil)
	require.NoError(t, err)

	// Waiting trials accept the same mutations running ones do.
	assert.NoError(t, s.SetTrialUserAttr(trialID, "k", "v"))
	assert.NoError(t, s.SetTrialIntermediateValue(trialID, 0, 0.1))
}

func TestAllTrials_StateFilter(t *testing.T) {
	s := newStorage(t)
	studyID := newStudy(t, s)

	running, err := s.CreateTrial(studyID, nil)
	require.NoError(t, err)
	complete, err := s.CreateTrial(studyID, nil)
	require.NoError(t, err)
	failed, err := s.CreateTrial(studyID, nil)
	require.NoError(t, err)
	_, err = s.SetTrialStateValues(complete, types.StateComplete, []float64{1})
	require.NoError(t, err)
	_, err = s.SetTrialStateValues(failed, types.StateFail, nil)
	require.NoError(t, err)

	// No filter: everything.
	trials, err := s.AllTrials(studyID, nil)
	require.NoError(t, err)
	assert.Len(t, trials, 3)

	// Empty filter short-circuits.
	trials, err = s.AllTrials(studyID, []types.TrialState{})
	require.NoError(t, err)
	assert.Empty(t, trials)

	// Single state.
	trials, err = s.AllTrials(studyID, []types.TrialState{types.StateRunning})
	require.NoError(t, err)
	require.Len(t, trials, 1)
	assert.Equal(t, running, trials[0].TrialID)

	// Any of several states.
	trials, err = s.AllTrials(studyID, []types.TrialState{
		types.StateComplete, types.StateFail,
	})
	require.NoError(t, err)
	assert.Len(t, trials, 2)
}

func TestTrialIDFromStudyIDTrialNumber(t *testing.T) {
	s := newStorage(t)
	studyID := newStudy(t, s)

	first, err := s.CreateTrial(studyID, nil)
	require.NoError(t, err)
	second, err := s.CreateTrial(studyID, nil)
	require.NoError(t, err)

	got, err := s.TrialIDFromStudyIDTrialNumber(studyID, 0)
	require.NoError(t, err)
	assert.Equal(t, first, got)

	got, err = s.TrialIDFromStudyIDTrialNumber(studyID, 1)
	require.NoError(t, err)
	assert.Equal(t, second, got)

	_, err = s.TrialIDFromStudyIDTrialNumber(studyID, 7)
	assert.ErrorIs(t, err, types.ErrTrialNotFound)
}

func TestTrial_NotFound(t *testing.T) {
	s := newStorage(t)

	_, err := s.GetTrial(123)
	assert.ErrorIs(t, err, types.ErrTrialNotFound)
	err = s.SetTrialUserAttr(123, "k", "v")
	assert.ErrorIs(t, err, types.ErrTrialNotFound)
	_, err = s.SetTrialStateValues(123, types.StateComplete, nil)
	assert.ErrorIs(t, err, types.ErrTrialNotFound)
}

func TestCountTrials_Unimplemented(t *testing.T) {
	s := newStorage(t)
	studyID := newStudy(t, s)

	_, err := s.CountTrials(studyID, nil)
	assert.ErrorIs(t, err, types.ErrUnimplemented)
}

func TestBestTrial(t *testing.T) {
	s := newStorage(t)

	studyID, err := s.CreateStudy("best")
	require.NoError(t, err)
	require.NoError(t, s.SetStudyDirections(studyID,
		[]types.StudyDirection{types.DirectionMaximize}))

	for _, value := range []float64{0.3, 0.9, 0.6} {
		trialID, err := s.CreateTrial(studyID, nil)
		require.NoError(t, err)
		_, err = s.SetTrialStateValues(trialID, types.StateComplete, []float64{value})
		require.NoError(t, err)
	}
	// A running trial does not participate.
	_, err = s.CreateTrial(studyID, nil)
	require.NoError(t, err)

	best, err := s.BestTrial(studyID)
	require.NoError(t, err)
	require.NotNil(t, best.Value)
	assert.Equal(t, 0.9, *best.Value)
}

func TestBestTrial_Minimize(t *testing.T) {
	s := newStorage(t)

	studyID, err := s.CreateStudy("best-min")
	require.NoError(t, err)
	require.NoError(t, s.SetStudyDirections(studyID,
		[]types.StudyDirection{types.DirectionMinimize}))

	for _, value := range []float64{0.3, 0.9, 0.6} {
		trialID, err := s.CreateTrial(studyID, nil)
		require.NoError(t, err)
		_, err = s.SetTrialStateValues(trialID, types.StateComplete, []float64{value})
		require.NoError(t, err)
	}

	best, err := s.BestTrial(studyID)
	require.NoError(t, err)
	require.NotNil(t, best.Value)
	assert.Equal(t, 0.3, *best.Value)
}

func TestBestTrial_Errors(t *testing.T) {
	s := newStorage(t)

	multiID, err := s.CreateStudy("multi")
	require.NoError(t, err)
	require.NoError(t, s.SetStudyDirections(multiID,
		[]types.StudyDirection{types.DirectionMinimize, types.DirectionMaximize}))
	_, err = s.BestTrial(multiID)
	assert.ErrorIs(t, err, types.ErrUnimplemented)

	emptyID, err := s.CreateStudy("no-completed")
	require.NoError(t, err)
	_, err = s.BestTrial(emptyID)
	assert.ErrorIs(t, err, types.ErrTrialNotFound)
}
