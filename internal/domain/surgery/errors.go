package surgery

import "errors"

var (
	ErrNotFound              = errors.New("surgery not found")
	ErrChecklistNotFound     = errors.New("checklist not found")
	ErrInvalidTransition     = errors.New("invalid transition")
	ErrAlreadyTransitioned   = errors.New("transition already applied")
	ErrIncompleteChecklist   = errors.New("checklist incomplete")
	ErrChecklistMismatch     = errors.New("checklist items do not match the catalog")
	ErrChecklistLocked       = errors.New("checklist already completed")
	ErrSurgeryClosed         = errors.New("surgery is closed")
	ErrHasDependentAdmission = errors.New("surgery has a dependent admission")
	ErrImmutableField        = errors.New("field is immutable")
	ErrNotesRequired         = errors.New("intra-operative notes are required")
	ErrReasonRequired        = errors.New("a reason is required")
	ErrUnknownRoom           = errors.New("unknown operating room")
	ErrValidation            = errors.New("validation failed")
)
