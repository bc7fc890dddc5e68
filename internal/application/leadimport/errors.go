package leadimport

import "errors"

var (
	ErrInvalidImportRequest = errors.New("invalid import request")
	ErrUnsupportedFileType  = errors.New("unsupported file type")
	ErrImportFileUnreadable = errors.New("import file could not be read")
	// ErrJobFailed wraps the cause of a failure that was persisted on the job.
	// Redelivering the task cannot help; the job needs an explicit retry.
	ErrJobFailed         = errors.New("import job failed")
	ErrDispatcherUnbound = errors.New("dispatcher has no task runner")
)
