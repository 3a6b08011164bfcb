package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/mesh-intelligence/studybook/internal/document"
	"github.com/mesh-intelligence/studybook/pkg/types"
)

// studyNamePrefix prefixes auto-generated study names; the suffix is the
// zero-padded study id.
const studyNamePrefix = "no-name-"

// CreateStudy registers a new study and returns its id. The name
// collision check is global: a logically deleted study keeps its name
// reserved.
func (s *Storage) CreateStudy(name string) (int64, error) {
	if name != "" {
		n, err := s.studies.Count(document.Filter{"study_name": name})
		if err != nil {
			return 0, err
		}
		if n != 0 {
			return 0, fmt.Errorf("%q: %w", name, types.ErrDuplicatedStudy)
		}
	}

	studyID, err := s.nextStudyID()
	if err != nil {
		return 0, err
	}
	if name == "" {
		name = fmt.Sprintf("%s%010d", studyNamePrefix, studyID)
	}

	now := time.Now()
	doc, err := studyRecord(studyID, name, []types.StudyDirection{types.DirectionNotSet},
		nil, nil, false, &now)
	if err != nil {
		return 0, err
	}
	if _, err := s.studies.InsertOne(doc); err != nil {
		return 0, err
	}
	return studyID, nil
}

// checkStudyID fails unless exactly one non-deleted study has this id.
func (s *Storage) checkStudyID(studyID int64) error {
	n, err := s.studies.Count(document.Filter{"study_id": studyID, "deleted": false})
	if err != nil {
		return err
	}
	if n != 1 {
		return fmt.Errorf("study_id %d: %w", studyID, types.ErrStudyNotFound)
	}
	return nil
}

// studyDoc fetches a study record after its existence check.
func (s *Storage) studyDoc(studyID int64) (document.Document, error) {
	if err := s.checkStudyID(studyID); err != nil {
		return nil, err
	}
	return s.studies.FindOne(document.Filter{"study_id": studyID})
}

// DeleteStudy flips the study's deleted flag. The record stays in place
// so its id and name are never reassigned; a second delete fails the
// existence check.
func (s *Storage) DeleteStudy(studyID int64) error {
	if err := s.checkStudyID(studyID); err != nil {
		return err
	}
	return s.studies.Patch(document.Filter{"study_id": studyID},
		document.Document{"deleted": true})
}

// SetStudyUserAttr merges {key: value} into the study's user attributes.
func (s *Storage) SetStudyUserAttr(studyID int64, key string, value any) error {
	return s.setStudyAttr(studyID, "user_attrs", key, value)
}

// SetStudySystemAttr merges {key: value} into the study's system
// attributes.
func (s *Storage) SetStudySystemAttr(studyID int64, key string, value any) error {
	return s.setStudyAttr(studyID, "system_attrs", key, value)
}

// setStudyAttr stores a single key in an attribute map, replacing any
// prior value at the key while leaving untouched keys alone even when
// writers race. The backend partial update is a merge patch, which
// cannot write nil or object values verbatim; those take the
// read-modify-write path instead.
func (s *Storage) setStudyAttr(studyID int64, field, key string, value any) error {
	if err := s.checkStudyID(studyID); err != nil {
		return err
	}
	safe, err := patchSafe(value)
	if err != nil {
		return err
	}
	if !safe {
		doc, err := s.studies.FindOne(document.Filter{"study_id": studyID})
		if err != nil {
			return err
		}
		attrs, err := docAnyMap(doc, field)
		if err != nil {
			return err
		}
		attrs[key] = value
		doc[field] = attrs
		return s.studies.ReplaceOne(document.Filter{"study_id": studyID}, doc)
	}
	return s.studies.Patch(document.Filter{"study_id": studyID},
		document.Document{field: map[string]any{key: value}})
}

// SetStudyDirections fixes the study's objective directions. Once a
// concrete sequence is established, only re-setting the identical
// sequence is allowed.
func (s *Storage) SetStudyDirections(studyID int64, directions []types.StudyDirection) error {
	if len(directions) == 0 {
		return types.ErrNoDirections
	}
	doc, err := s.studyDoc(studyID)
	if err != nil {
		return err
	}

	current, err := decodeDirections(doc["directions"])
	if err != nil {
		return err
	}
	if len(current) > 0 && current[0] != types.DirectionNotSet &&
		!types.DirectionsEqual(current, directions) {
		return fmt.Errorf("cannot overwrite study directions from %v to %v: %w",
			current, directions, types.ErrDirectionConflict)
	}

	wire, err := encodeDirections(directions)
	if err != nil {
		return err
	}
	return s.studies.Patch(document.Filter{"study_id": studyID},
		document.Document{"directions": wire})
}

// StudyIDFromName resolves a study name to its id. Deleted studies still
// resolve; their names stay reserved.
func (s *Storage) StudyIDFromName(name string) (int64, error) {
	doc, err := s.studies.FindOne(document.Filter{"study_name": name})
	if errors.Is(err, document.ErrNoDocuments) {
		return 0, fmt.Errorf("study %q: %w", name, types.ErrStudyNotFound)
	}
	if err != nil {
		return 0, err
	}
	return docInt64(doc, "study_id")
}

// StudyNameFromID returns the study's name.
func (s *Storage) StudyNameFromID(studyID int64) (string, error) {
	doc, err := s.studyDoc(studyID)
	if err != nil {
		return "", err
	}
	return docString(doc, "study_name")
}

// StudyDirections returns the study's objective directions.
func (s *Storage) StudyDirections(studyID int64) ([]types.StudyDirection, error) {
	doc, err := s.studyDoc(studyID)
	if err != nil {
		return nil, err
	}
	return decodeDirections(doc["directions"])
}

// StudyUserAttrs returns the study's user attributes.
func (s *Storage) StudyUserAttrs(studyID int64) (map[string]any, error) {
	doc, err := s.studyDoc(studyID)
	if err != nil {
		return nil, err
	}
	return docAnyMap(doc, "user_attrs")
}

// StudySystemAttrs returns the study's system attributes.
func (s *Storage) StudySystemAttrs(studyID int64) (map[string]any, error) {
	doc, err := s.studyDoc(studyID)
	if err != nil {
		return nil, err
	}
	return docAnyMap(doc, "system_attrs")
}

// AllStudySummaries returns summaries for all non-deleted studies,
// including per-study trial counts. Resolving best trials costs an extra
// scan per study, so it is opt-in; studies where no best trial can be
// determined (multi-objective, or none completed) leave the field nil.
func (s *Storage) AllStudySummaries(includeBestTrial bool) ([]types.StudySummary, error) {
	docs, err := s.studies.Find(document.Filter{"deleted": false})
	if err != nil {
		return nil, err
	}
	summaries := make([]types.StudySummary, 0, len(docs))
	for _, doc := range docs {
		sum, err := decodeStudySummary(doc)
		if err != nil {
			return nil, err
		}
		n, err := s.trials.Count(document.Filter{"study_id": sum.StudyID})
		if err != nil {
			return nil, err
		}
		sum.NTrials = int(n)
		if includeBestTrial {
			best, err := s.BestTrial(sum.StudyID)
			switch {
			case err == nil:
				sum.BestTrial = best
			case errors.Is(err, types.ErrUnimplemented),
				errors.Is(err, types.ErrTrialNotFound):
				// Leave nil.
			default:
				return nil, err
			}
		}
		summaries = append(summaries, sum)
	}
	return summaries, nil
}

// studySummary builds the summary view of a single study.
func (s *Storage) studySummary(studyID int64) (types.StudySummary, error) {
	doc, err := s.studyDoc(studyID)
	if err != nil {
		return types.StudySummary{}, err
	}
	return decodeStudySummary(doc)
}
