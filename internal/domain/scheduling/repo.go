package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type AvailabilityRepository interface {
	ListByProvider(ctx context.Context, providerID uuid.UUID) ([]Availability, error)
	// ReplaceForProvider swaps the provider's whole weekly schedule.
	ReplaceForProvider(ctx context.Context, providerID uuid.UUID, rows []Availability) error
}

type AppointmentRepository interface {
	Create(ctx context.Context, a *Appointment) error
	// GetByID returns ErrNotFound when no row matches.
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	Update(ctx context.Context, a *Appointment) error
	// ListBooked returns booked appointments starting in [from, to).
	ListBooked(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]*Appointment, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Appointment, int, error)
}
