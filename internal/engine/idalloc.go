package engine

import "fmt"

// Identifier allocation. Identifiers are drawn from atomic backend
// counters rather than by counting existing records, so concurrent
// creators in the same scope cannot be handed the same value. Counters
// only advance and logical deletion never decrements them, so an
// identifier is never reused.
const (
	seqStudyID = "study_id"
	seqTrialID = "trial_id"
)

// nextStudyID allocates the next globally unique study id, dense from 0.
func (s *Storage) nextStudyID() (int64, error) {
	return s.db.NextSequence(seqStudyID)
}

// nextTrialID allocates the next trial id, unique across all studies.
func (s *Storage) nextTrialID() (int64, error) {
	return s.db.NextSequence(seqTrialID)
}

// nextTrialNumber allocates the next per-study trial number, dense from
// 0 within the owning study.
func (s *Storage) nextTrialNumber(studyID int64) (int64, error) {
	return s.db.NextSequence(fmt.Sprintf("trial_number/%d", studyID))
}
