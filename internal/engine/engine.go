// Package engine implements the studybook Storage interface on top of
// the document backend: identifier allocation, the trial state machine,
// record/domain translation, and heartbeat staleness detection.
//
// The engine performs no in-process locking and no multi-record
// transactions. Every operation is a sequence of independent round-trips
// to the backend; callers are expected to serialize writes per trial.
package engine

import (
	"time"

	"github.com/mesh-intelligence/studybook/internal/document"
	"github.com/mesh-intelligence/studybook/pkg/types"
)

// Collection names in the document backend.
const (
	studiesCollection = "studies"
	trialsCollection  = "trials"
)

// Storage is the document-backed implementation of types.Storage.
type Storage struct {
	db      *document.DB
	studies *document.Collection
	trials  *document.Collection

	heartbeatInterval   time.Duration
	gracePeriod         time.Duration
	failedTrialCallback types.FailedTrialCallback
}

var _ types.Storage = (*Storage)(nil)

// Option adjusts a Storage during Open.
type Option func(*Storage)

// WithHeartbeat overrides the heartbeat interval and grace period from
// the Config, with sub-second resolution. A zero grace period means
// twice the interval.
func WithHeartbeat(interval, gracePeriod time.Duration) Option {
	return func(s *Storage) {
		s.heartbeatInterval = interval
		s.gracePeriod = gracePeriod
	}
}

// WithFailedTrialCallback installs the callback invoked once per trial
// failed by the staleness reconciliation.
func WithFailedTrialCallback(cb types.FailedTrialCallback) Option {
	return func(s *Storage) {
		s.failedTrialCallback = cb
	}
}

// Open validates the config, opens the backend in cfg.DataDir, and
// prepares the study and trial collections with their lookup indexes.
func Open(cfg types.Config, opts ...Option) (*Storage, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	db, err := document.Open(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	studies, err := db.Collection(studiesCollection)
	if err != nil {
		db.Close()
		return nil, err
	}
	trials, err := db.Collection(trialsCollection)
	if err != nil {
		db.Close()
		return nil, err
	}

	for _, idx := range []struct {
		coll  *document.Collection
		field string
	}{
		{studies, "study_id"},
		{studies, "study_name"},
		{trials, "trial_id"},
		{trials, "study_id"},
		{trials, "number"},
		{trials, "state"},
	} {
		if err := idx.coll.EnsureIndex(idx.field); err != nil {
			db.Close()
			return nil, err
		}
	}

	s := &Storage{
		db:                db,
		studies:           studies,
		trials:            trials,
		heartbeatInterval: time.Duration(cfg.HeartbeatInterval) * time.Second,
		gracePeriod:       time.Duration(cfg.GracePeriod) * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close releases the backend. Close is idempotent.
func (s *Storage) Close() error {
	return s.db.Close()
}
