package admission

import (
	"context"

	"github.com/google/uuid"

	"github.com/ACW-Developers/urological-patient-mis-sub001/internal/domain/surgery"
)

type Repository interface {
	Create(ctx context.Context, a *Admission) error
	// GetByID returns ErrNotFound when no row matches.
	GetByID(ctx context.Context, id uuid.UUID) (*Admission, error)
	Update(ctx context.Context, a *Admission) error
	// Delete returns ErrNotFound when no row matches.
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, f ListFilter, limit, offset int) ([]*Admission, int, error)
	// ListOccupying returns active admissions holding a bed.
	ListOccupying(ctx context.Context) ([]*Admission, error)
	ExistsForSurgery(ctx context.Context, surgeryID uuid.UUID) (bool, error)
}

// SurgeryWriter persists the surgery advanced by a post-op transfer.
type SurgeryWriter interface {
	Update(ctx context.Context, s *surgery.Surgery) error
}
