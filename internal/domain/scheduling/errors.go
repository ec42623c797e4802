package scheduling

import "errors"

var (
	ErrNotFound         = errors.New("appointment not found")
	ErrSlotUnavailable  = errors.New("slot is not available")
	ErrAlreadyCancelled = errors.New("appointment already cancelled")
	ErrValidation       = errors.New("invalid scheduling request")
)
