package types

import "errors"

// Config holds the parameters for opening a storage engine.
type Config struct {
	// DataDir is the directory holding the backend database file.
	// Empty means the current directory.
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// HeartbeatInterval is the expected worker heartbeat period in
	// seconds. Zero disables heartbeat support.
	HeartbeatInterval int `json:"heartbeat_interval" yaml:"heartbeat_interval"`

	// GracePeriod is the maximum allowed heartbeat silence in seconds
	// before a running trial is declared stale. Zero means twice the
	// heartbeat interval.
	GracePeriod int `json:"grace_period" yaml:"grace_period"`
}

// Config validation errors.
var (
	ErrHeartbeatIntervalInvalid = errors.New("heartbeat interval must not be negative")
	ErrGracePeriodInvalid       = errors.New("grace period must not be negative")
	ErrGracePeriodWithoutBeat   = errors.New("grace period requires a heartbeat interval")
)

// Validate checks that the Config is well-formed. It returns a sentinel
// error from this package on failure.
func (c Config) Validate() error {
	if c.HeartbeatInterval < 0 {
		return ErrHeartbeatIntervalInvalid
	}
	if c.GracePeriod < 0 {
		return ErrGracePeriodInvalid
	}
	if c.GracePeriod > 0 && c.HeartbeatInterval == 0 {
		return ErrGracePeriodWithoutBeat
	}
	return nil
}
