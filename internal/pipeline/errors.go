package pipeline

import "errors"

// Stage error kinds. Each is fatal to the pipeline; the only automatic
// escalation is inside the clearing stage (structural clear falling back to
// row deletes) before ErrClearFailed is raised.
var (
	// ErrSameProject means source and target resolved to the same project;
	// the pipeline refuses to run before any destructive action.
	ErrSameProject = errors.New("source and target resolve to the same project")

	// ErrConfirmationDeclined means the operator did not confirm the
	// destructive clear of the target.
	ErrConfirmationDeclined = errors.New("confirmation declined")

	// ErrRunLocked means another run currently owns the target environment.
	ErrRunLocked = errors.New("another sync run holds the lock for this target")

	ErrDumpFailed       = errors.New("dump stage failed")
	ErrClearFailed      = errors.New("clear stage failed")
	ErrExtractionFailed = errors.New("archive extraction failed")
	ErrSanitizeFailed   = errors.New("sanitize stage failed")
	ErrRestoreFailed    = errors.New("restore stage failed")
)
