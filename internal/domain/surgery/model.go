package surgery

import (
	"time"

	"github.com/google/uuid"
)

// Status is a care-pathway state.
type Status string

const (
	StatusScheduled       Status = "scheduled"
	StatusPreOpComplete   Status = "pre_op_complete"
	StatusInProgress      Status = "in_progress"
	StatusSurgeryComplete Status = "surgery_complete"
	StatusPostOpCare      Status = "post_op_care"
	StatusCompleted       Status = "completed"
	StatusCancelled       Status = "cancelled"
)

// rank orders the forward path; cancelled sits outside it.
var rank = map[Status]int{
	StatusScheduled:       0,
	StatusPreOpComplete:   1,
	StatusInProgress:      2,
	StatusSurgeryComplete: 3,
	StatusPostOpCare:      4,
	StatusCompleted:       5,
}

func (s Status) Valid() bool {
	_, ok := rank[s]
	return ok || s == StatusCancelled
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Surgery maps to the surgeries table.
type Surgery struct {
	ID                     uuid.UUID `db:"id" json:"id"`
	PatientID              uuid.UUID `db:"patient_id" json:"patient_id"`
	SurgeonID              uuid.UUID `db:"surgeon_id" json:"surgeon_id"`
	SurgeryType            string    `db:"surgery_type" json:"surgery_type"`
	SurgeryName            string    `db:"surgery_name" json:"surgery_name"`
	ScheduledDate          time.Time `db:"scheduled_date" json:"scheduled_date"`
	ScheduledTime          string    `db:"scheduled_time" json:"scheduled_time"`
	DurationMinutes        int       `db:"duration_minutes" json:"duration_minutes"`
	OperatingRoom          *string   `db:"operating_room" json:"operating_room,omitempty"`
	Status                 Status    `db:"status" json:"status"`
	PreOpAssessment        *string   `db:"pre_op_assessment" json:"pre_op_assessment,omitempty"`
	PreOpChecklistComplete bool      `db:"pre_op_checklist_complete" json:"pre_op_checklist_complete"`
	WHOChecklistComplete   bool      `db:"who_checklist_complete" json:"who_checklist_complete"`
	SignOutComplete        bool      `db:"sign_out_complete" json:"sign_out_complete"`
	IntraOpNotes           *string   `db:"intra_op_notes" json:"intra_op_notes,omitempty"`
	Complications          *string   `db:"complications" json:"complications,omitempty"`
	PostOpNotes            *string   `db:"post_op_notes" json:"post_op_notes,omitempty"`
	CancelReason           *string   `db:"cancel_reason" json:"cancel_reason,omitempty"`
	CreatedAt              time.Time `db:"created_at" json:"created_at"`
	UpdatedAt              time.Time `db:"updated_at" json:"updated_at"`
}

// ChecklistKind names one of the four safety checklists.
type ChecklistKind string

const (
	ChecklistPreOp   ChecklistKind = "pre_op"
	ChecklistSignIn  ChecklistKind = "who_sign_in"
	ChecklistTimeOut ChecklistKind = "who_time_out"
	ChecklistSignOut ChecklistKind = "who_sign_out"
)

type ChecklistItem struct {
	Label   string `json:"label"`
	Checked bool   `json:"checked"`
}

// Checklist maps to the surgery_checklists table. Items are stored as JSONB.
type Checklist struct {
	ID          uuid.UUID       `db:"id" json:"id"`
	SurgeryID   uuid.UUID       `db:"surgery_id" json:"surgery_id"`
	Kind        ChecklistKind   `db:"kind" json:"kind"`
	Items       []ChecklistItem `db:"items" json:"items"`
	Completed   bool            `db:"completed" json:"completed"`
	CompletedAt *time.Time      `db:"completed_at" json:"completed_at,omitempty"`
	CompletedBy *string         `db:"completed_by" json:"completed_by,omitempty"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
}

// AllChecked is true when there is at least one item and every item is checked.
func (c *Checklist) AllChecked() bool {
	if len(c.Items) == 0 {
		return false
	}
	for _, it := range c.Items {
		if !it.Checked {
			return false
		}
	}
	return true
}

// ListFilter narrows List results. Zero values match everything.
type ListFilter struct {
	PatientID *uuid.UUID
	SurgeonID *uuid.UUID
	Status    Status
	From      *time.Time
	To        *time.Time
}
