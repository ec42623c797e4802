package scheduling

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04"
)

// Availability maps to the provider_availability table: one weekly opening
// window for a provider. A row with IsAvailable=false closes that weekday.
type Availability struct {
	ID          uuid.UUID    `db:"id" json:"id"`
	ProviderID  uuid.UUID    `db:"provider_id" json:"provider_id"`
	DayOfWeek   time.Weekday `db:"day_of_week" json:"day_of_week"`
	StartTime   string       `db:"start_time" json:"start_time"`
	EndTime     string       `db:"end_time" json:"end_time"`
	IsAvailable bool         `db:"is_available" json:"is_available"`
	CreatedAt   time.Time    `db:"created_at" json:"created_at"`
}

// window returns the row as minutes since midnight.
func (a *Availability) window() (start, end int, err error) {
	if start, err = parseClock(a.StartTime); err != nil {
		return 0, 0, err
	}
	if end, err = parseClock(a.EndTime); err != nil {
		return 0, 0, err
	}
	if end <= start {
		return 0, 0, fmt.Errorf("%w: end_time %s is not after start_time %s", ErrValidation, a.EndTime, a.StartTime)
	}
	return start, end, nil
}

type AppointmentStatus string

const (
	AppointmentBooked    AppointmentStatus = "booked"
	AppointmentCancelled AppointmentStatus = "cancelled"
)

// Appointment maps to the appointments table.
type Appointment struct {
	ID              uuid.UUID         `db:"id" json:"id"`
	ProviderID      uuid.UUID         `db:"provider_id" json:"provider_id"`
	PatientID       uuid.UUID         `db:"patient_id" json:"patient_id"`
	Start           time.Time         `db:"start_at" json:"start"`
	DurationMinutes int               `db:"duration_minutes" json:"duration_minutes"`
	Status          AppointmentStatus `db:"status" json:"status"`
	Reason          string            `db:"reason" json:"reason,omitempty"`
	CancelReason    *string           `db:"cancel_reason" json:"cancel_reason,omitempty"`
	CreatedAt       time.Time         `db:"created_at" json:"created_at"`
}

// Booking is the planner's view of an appointment.
func (a *Appointment) Booking() Booking {
	return Booking{Start: a.Start, Duration: time.Duration(a.DurationMinutes) * time.Minute}
}

// Slot is a bookable (date, time) pair. Slots are derived, never stored.
type Slot struct {
	Date  string    `json:"date"`
	Time  string    `json:"time"`
	Start time.Time `json:"-"`
}

func newSlot(t time.Time) Slot {
	return Slot{Date: t.Format(dateLayout), Time: t.Format(timeLayout), Start: t}
}

// DaySlots groups one date's slots for display.
type DaySlots struct {
	Date  string   `json:"date"`
	Times []string `json:"times"`
}

// Group collects an ordered slot sequence by date.
func Group(slots []Slot) []DaySlots {
	var out []DaySlots
	for _, s := range slots {
		if n := len(out); n > 0 && out[n-1].Date == s.Date {
			out[n-1].Times = append(out[n-1].Times, s.Time)
			continue
		}
		out = append(out, DaySlots{Date: s.Date, Times: []string{s.Time}})
	}
	return out
}

// parseClock parses HH:MM into minutes since midnight.
func parseClock(s string) (int, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil || len(s) != 5 {
		return 0, fmt.Errorf("%w: invalid time %q, expected HH:MM", ErrValidation, s)
	}
	return t.Hour()*60 + t.Minute(), nil
}
