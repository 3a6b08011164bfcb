// Package studybook exposes project-wide metadata.
package studybook

// Version is the studybook release version.
const Version = "0.1.0"
