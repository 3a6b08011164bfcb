package engine

import (
	"errors"
	"time"

	"github.com/mesh-intelligence/studybook/internal/document"
	"github.com/mesh-intelligence/studybook/pkg/types"
)

// HeartbeatEnabled reports whether a heartbeat interval is configured.
func (s *Storage) HeartbeatEnabled() bool {
	return s.heartbeatInterval > 0
}

// HeartbeatInterval returns the configured heartbeat interval, zero when
// heartbeat support is disabled.
func (s *Storage) HeartbeatInterval() time.Duration {
	return s.heartbeatInterval
}

// effectiveGracePeriod returns the configured grace period, defaulting
// to twice the heartbeat interval.
func (s *Storage) effectiveGracePeriod() time.Duration {
	if s.gracePeriod > 0 {
		return s.gracePeriod
	}
	return 2 * s.heartbeatInterval
}

// RecordHeartbeat stamps the trial's liveness timestamp with backend
// server time. Clock skew between workers is irrelevant since both the
// stamp and the staleness scan use the backend clock.
func (s *Storage) RecordHeartbeat(trialID int64) error {
	if err := s.checkTrialID(trialID); err != nil {
		return err
	}
	now, err := s.db.ServerTime()
	if err != nil {
		return err
	}
	return s.trials.Patch(document.Filter{"trial_id": trialID},
		document.Document{"heartbeat": encodeTime(&now)})
}

// StaleTrialIDs returns the study's running trials whose last heartbeat
// is older than the grace period, as a batch. The scan only reads;
// running trials that have never heartbeated cannot be judged and are
// skipped.
func (s *Storage) StaleTrialIDs(studyID int64) ([]int64, error) {
	if !s.HeartbeatEnabled() {
		return nil, types.ErrHeartbeatDisabled
	}
	grace := s.effectiveGracePeriod()

	docs, err := s.trials.Find(document.Filter{
		"study_id": studyID,
		"state":    stateToWire[types.StateRunning],
	})
	if err != nil {
		return nil, err
	}
	now, err := s.db.ServerTime()
	if err != nil {
		return nil, err
	}

	var stale []int64
	for _, doc := range docs {
		heartbeat, err := decodeTime(doc["heartbeat"])
		if err != nil || heartbeat == nil {
			continue
		}
		if now.Sub(*heartbeat) > grace {
			trialID, err := docInt64(doc, "trial_id")
			if err != nil {
				continue
			}
			stale = append(stale, trialID)
		}
	}
	return stale, nil
}

// FailStaleTrials transitions each stale trial of the study to Fail and
// invokes the failed-trial callback once per trial with the owning study
// summary and the frozen snapshot taken before the transition. Panics
// from the callback are not suppressed. Returns the number of trials
// failed.
func (s *Storage) FailStaleTrials(studyID int64) (int, error) {
	staleIDs, err := s.StaleTrialIDs(studyID)
	if err != nil {
		return 0, err
	}

	failed := 0
	for _, trialID := range staleIDs {
		trial, err := s.GetTrial(trialID)
		if err != nil {
			return failed, err
		}
		if _, err := s.SetTrialStateValues(trialID, types.StateFail, nil); err != nil {
			// The scan races with trials finishing normally; one that
			// reached a terminal state since the scan is left alone.
			if errors.Is(err, types.ErrTrialFinished) {
				continue
			}
			return failed, err
		}
		failed++

		if s.failedTrialCallback != nil {
			summary, err := s.studySummary(studyID)
			if err != nil {
				return failed, err
			}
			s.failedTrialCallback(summary, *trial)
		}
	}
	return failed, nil
}
