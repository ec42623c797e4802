package admission

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/ACW-Developers/urological-patient-mis-sub001/internal/domain/bed"
)

var (
	ErrNotFound          = errors.New("admission not found")
	ErrAlreadyDischarged = errors.New("admission already discharged")
	ErrWrongUnit         = errors.New("operation not valid for this unit")
	ErrValidation        = errors.New("invalid admission")

	// ErrNoBedAvailable is returned when the ICU pool is exhausted.
	ErrNoBedAvailable = fmt.Errorf("no bed available: %w", bed.ErrNoResourceAvailable)
)

// TransferError reports a transfer whose compensating rollback also failed.
// The bed stays held by the draft admission until an operator reconciles it.
type TransferError struct {
	Op          string
	AdmissionID uuid.UUID
	Bed         string
	Cause       error
	RollbackErr error
}

func (e *TransferError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: rollback of admission %s failed", e.Op, e.AdmissionID)
	if e.Bed != "" {
		fmt.Fprintf(&b, " (bed %s still held)", e.Bed)
	}
	fmt.Fprintf(&b, ": %v; cause: %v", e.RollbackErr, e.Cause)
	return b.String()
}

func (e *TransferError) Unwrap() []error {
	return []error{e.Cause, e.RollbackErr}
}
