package leadimport

import "errors"

var (
	ErrJobNotFound           = errors.New("import job not found")
	ErrInvalidTransition     = errors.New("invalid import job status transition")
	ErrJobActive             = errors.New("import job is being processed")
	ErrInvalidConfig         = errors.New("invalid import configuration")
	ErrInvalidMapping        = errors.New("invalid column mapping")
	ErrMissingContactMapping = errors.New("column mapping has no contact field (email, phone or external id)")
	ErrUnknownField          = errors.New("unknown target field")
	ErrDuplicateTarget       = errors.New("target field mapped by more than one column")
	ErrRowAlreadyHandled     = errors.New("import row already handled")
)
