package admission

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ACW-Developers/urological-patient-mis-sub001/internal/domain/bed"
)

// Unit is the care unit an admission belongs to.
type Unit string

const (
	UnitICU  Unit = "icu"
	UnitWard Unit = "ward"
)

func (u Unit) Valid() bool { return u == UnitICU || u == UnitWard }

// PoolKind is the bed pool serving the unit.
func (u Unit) PoolKind() bed.Kind {
	if u == UnitICU {
		return bed.KindICU
	}
	return bed.KindWard
}

// Source records how the patient arrived.
type Source string

const (
	SourcePostOp       Source = "post_op"
	SourceICUDischarge Source = "icu_discharge"
	SourceDirect       Source = "direct"
)

type Status string

const (
	StatusAdmitted   Status = "admitted"
	StatusDischarged Status = "discharged"
)

// Admission maps to the admissions table. ICU and ward stays share one shape;
// Unit tells them apart.
type Admission struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	PatientID      uuid.UUID  `db:"patient_id" json:"patient_id"`
	SurgeryID      *uuid.UUID `db:"surgery_id" json:"surgery_id,omitempty"`
	ICUAdmissionID *uuid.UUID `db:"icu_admission_id" json:"icu_admission_id,omitempty"`
	Unit           Unit       `db:"unit" json:"unit"`
	BedNumber      *string    `db:"bed_number" json:"bed_number"`
	Reason         string     `db:"admission_reason" json:"admission_reason"`
	Source         Source     `db:"source" json:"source"`
	Status         Status     `db:"status" json:"status"`
	AdmittedAt     time.Time  `db:"admitted_at" json:"admitted_at"`
	DischargedAt   *time.Time `db:"discharged_at" json:"discharged_at,omitempty"`
	DischargeNotes *string    `db:"discharge_notes" json:"discharge_notes,omitempty"`
}

// Active reports whether the patient still occupies the unit.
func (a *Admission) Active() bool { return a.Status == StatusAdmitted }

// Validate checks the provenance invariants before the record is written.
func (a *Admission) Validate() error {
	if a.PatientID == uuid.Nil {
		return fmt.Errorf("%w: patient_id is required", ErrValidation)
	}
	if !a.Unit.Valid() {
		return fmt.Errorf("%w: unit must be icu or ward", ErrValidation)
	}
	if a.Unit == UnitICU && a.BedNumber == nil {
		return fmt.Errorf("%w: icu admissions require a bed", ErrValidation)
	}
	switch a.Source {
	case SourcePostOp:
		if a.SurgeryID == nil {
			return fmt.Errorf("%w: post_op admissions require surgery_id", ErrValidation)
		}
		if a.ICUAdmissionID != nil {
			return fmt.Errorf("%w: post_op admissions cannot reference an icu admission", ErrValidation)
		}
	case SourceICUDischarge:
		if a.ICUAdmissionID == nil {
			return fmt.Errorf("%w: icu_discharge admissions require icu_admission_id", ErrValidation)
		}
		if a.Unit != UnitWard {
			return fmt.Errorf("%w: icu_discharge admissions are ward stays", ErrValidation)
		}
	case SourceDirect:
		if a.SurgeryID != nil || a.ICUAdmissionID != nil {
			return fmt.Errorf("%w: direct admissions carry no provenance", ErrValidation)
		}
	default:
		return fmt.Errorf("%w: unknown source %q", ErrValidation, a.Source)
	}
	return nil
}

// ListFilter narrows List results. Zero values match everything.
type ListFilter struct {
	Unit      Unit
	Status    Status
	PatientID *uuid.UUID
	SurgeryID *uuid.UUID
}
