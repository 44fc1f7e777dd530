package dispatch

import "errors"

var (
	// Store errors.
	ErrNoStore         = errors.New("dispatch: no store configured")
	ErrStoreClosed     = errors.New("dispatch: store closed")
	ErrMigrationFailed = errors.New("dispatch: migration failed")

	// Not found errors.
	ErrAgentNotFound = errors.New("dispatch: agent not found")
	ErrJobNotFound   = errors.New("dispatch: job not found")
	ErrAlertNotFound = errors.New("dispatch: alert not found")

	// Conflict errors.
	ErrJobAlreadyExists   = errors.New("dispatch: job already exists")
	ErrAlertAlreadyExists = errors.New("dispatch: alert already exists for job")

	// State errors.
	ErrInvalidState    = errors.New("dispatch: invalid state transition")
	ErrJobNotDue       = errors.New("dispatch: job not due for dispatch")
	ErrJobTerminal     = errors.New("dispatch: job is in a terminal state")
	ErrAgentAtCapacity = errors.New("dispatch: agent at max capacity")
)
