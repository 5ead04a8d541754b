package dupe

import (
	"errors"
	"fmt"
)

// Sentinel reasons recorded when an input path fails validation. Callers can
// branch on them with errors.Is through CheckError.Unwrap.
var (
	// ErrNotFile is recorded when a path given as a file is not a regular file.
	ErrNotFile = errors.New("not a file")

	// ErrNotDir is recorded when a path given as a directory is not a directory.
	ErrNotDir = errors.New("not a directory")

	// ErrNoInput is returned when an entry point is called with no paths at
	// all. This is the only hard failure; everything else is recorded as a
	// CheckError and the pass continues.
	ErrNoInput = errors.New("no paths given")
)

// CheckError associates a path with the failure encountered while processing
// it: a stat failure, an unreadable file or directory, or a validation
// failure (ErrNotFile / ErrNotDir). CheckErrors are recorded on the Results
// they occurred in and never retried.
type CheckError struct {
	Path string
	Err  error
}

func (e *CheckError) Error() string {
	return fmt.Sprintf("%s (%v)", e.Path, e.Err)
}

func (e *CheckError) Unwrap() error { return e.Err }
