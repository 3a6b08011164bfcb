// Package types defines the Storage interface, domain value types
// (studies, trials, distributions), and standard error types for the
// studybook storage engine.
package types
