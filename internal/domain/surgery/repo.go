package surgery

import (
	"context"

	"github.com/google/uuid"
)

type SurgeryRepository interface {
	Create(ctx context.Context, s *Surgery) error
	// GetByID returns ErrNotFound when no row matches.
	GetByID(ctx context.Context, id uuid.UUID) (*Surgery, error)
	Update(ctx context.Context, s *Surgery) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, f ListFilter, limit, offset int) ([]*Surgery, int, error)
}

type ChecklistRepository interface {
	Create(ctx context.Context, c *Checklist) error
	// GetByID and GetBySurgeryAndKind return ErrChecklistNotFound when no row matches.
	GetByID(ctx context.Context, id uuid.UUID) (*Checklist, error)
	GetBySurgeryAndKind(ctx context.Context, surgeryID uuid.UUID, kind ChecklistKind) (*Checklist, error)
	ListBySurgery(ctx context.Context, surgeryID uuid.UUID) ([]*Checklist, error)
	Update(ctx context.Context, c *Checklist) error
	DeleteBySurgery(ctx context.Context, surgeryID uuid.UUID) error
}

// TransferRequest selects the unit a post-operative patient moves to.
type TransferRequest struct {
	Unit   string
	Bed    string
	Reason string
}

// TransferResult is what the transfer step hands back to the pathway.
type TransferResult struct {
	AdmissionID uuid.UUID
	Unit        string
	Bed         *string
}

// Transferer admits a post-op patient to a unit and advances the surgery to
// completed as one unit of work. On error the surgery must be unchanged.
type Transferer interface {
	Transfer(ctx context.Context, s *Surgery, req TransferRequest) (*TransferResult, error)
}

// AdmissionLookup reports whether any admission references a surgery.
type AdmissionLookup interface {
	ExistsForSurgery(ctx context.Context, surgeryID uuid.UUID) (bool, error)
}

// RoomCatalog validates operating-room names.
type RoomCatalog interface {
	HasRoom(name string) bool
}

// RoomCatalogFunc adapts a plain function to RoomCatalog.
type RoomCatalogFunc func(name string) bool

func (f RoomCatalogFunc) HasRoom(name string) bool { return f(name) }
