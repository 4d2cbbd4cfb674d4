package extract

import (
	"github.com/pkg/errors"
)

// Failure classes of an extraction run. All of them are terminal for the
// owning job and leave no partial output file behind.
var (
	// ErrExtractionFailed means the subprocess exited with a non-zero code
	ErrExtractionFailed = errors.New("extraction failed")

	// ErrOutputMissing means the subprocess exited cleanly but the output
	// file does not exist
	ErrOutputMissing = errors.New("output file missing")

	// ErrOutputEmpty means the subprocess exited cleanly but the output
	// file has zero size
	ErrOutputEmpty = errors.New("output file empty")

	// ErrCanceled means the subprocess was terminated on request
	ErrCanceled = errors.New("canceled")
)
