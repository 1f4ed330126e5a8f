package ledger

import "errors"

// Validation errors
var (
	ErrMissingName      = errors.New("lineup name is required")
	ErrInvalidCategory  = errors.New("invalid lineup category")
	ErrInvalidStatus    = errors.New("invalid lineup status")
	ErrNegativeAmount   = errors.New("amounts must not be negative")
	ErrMissingPickID    = errors.New("pick id is required")
	ErrDuplicatePickID  = errors.New("duplicate pick id")
	ErrInvalidChoice    = errors.New("pick choice must be over or under")
	ErrInvalidResult    = errors.New("pick result must be won, lost or push")
	ErrMissingCreatedAt = errors.New("lineup createdAt is required")
	ErrMissingID        = errors.New("lineup id is required")
	ErrMissingPicks     = errors.New("lineup picks are required")
	ErrInvalidProgress  = errors.New("lineup progress does not match its picks")
)

// Lifecycle errors
var (
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrTooManyResults    = errors.New("more results than unsettled picks")
	ErrUnknownPick       = errors.New("pick not in lineup")
)

// Persistence errors
var (
	ErrCorruptLedger = errors.New("stored ledger is not valid JSON")
	ErrInvalidImport = errors.New("import data is not a JSON array")
)
