package scheduling

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ACW-Developers/urological-patient-mis-sub001/internal/platform/lock"
	"github.com/ACW-Developers/urological-patient-mis-sub001/internal/platform/notification"
	"github.com/ACW-Developers/urological-patient-mis-sub001/internal/platform/telemetry"
	"github.com/ACW-Developers/urological-patient-mis-sub001/pkg/clock"
)

// Config holds the planner settings shared by every provider.
type Config struct {
	Granularity  time.Duration
	HorizonDays  int
	DefaultOpen  string
	DefaultClose string
	Location     *time.Location
}

func DefaultConfig() Config {
	return Config{
		Granularity:  30 * time.Minute,
		HorizonDays:  14,
		DefaultOpen:  "09:00",
		DefaultClose: "17:00",
		Location:     time.UTC,
	}
}

type Service struct {
	availability AvailabilityRepository
	appointments AppointmentRepository
	cfg          Config
	locker       lock.Locker
	notifier     notification.Sink
	metrics      *telemetry.Metrics
	clock        clock.Clock
	logger       zerolog.Logger
}

type Option func(*Service)

func WithLocker(l lock.Locker) Option { return func(s *Service) { s.locker = l } }

func WithNotifier(n notification.Sink) Option { return func(s *Service) { s.notifier = n } }

func WithMetrics(m *telemetry.Metrics) Option { return func(s *Service) { s.metrics = m } }

func WithClock(c clock.Clock) Option { return func(s *Service) { s.clock = c } }

func WithLogger(l zerolog.Logger) Option { return func(s *Service) { s.logger = l } }

func NewService(avail AvailabilityRepository, appts AppointmentRepository, cfg Config, opts ...Option) *Service {
	def := DefaultConfig()
	if cfg.Location == nil {
		cfg.Location = def.Location
	}
	if cfg.Granularity < time.Minute {
		cfg.Granularity = def.Granularity
	}
	if cfg.HorizonDays <= 0 {
		cfg.HorizonDays = def.HorizonDays
	}
	s := &Service{
		availability: avail,
		appointments: appts,
		cfg:          cfg,
		locker:       lock.NewKeyedMutex(),
		clock:        clock.System(),
		logger:       zerolog.Nop(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Slots loads a provider's calendar and returns its free slots. The returned
// sequence reflects the data as loaded; range over it again for the same view.
func (s *Service) Slots(ctx context.Context, providerID uuid.UUID) (iter.Seq[Slot], error) {
	now := s.clock.Now().In(s.cfg.Location)
	avail, err := s.availability.ListByProvider(ctx, providerID)
	if err != nil {
		return nil, fmt.Errorf("load availability: %w", err)
	}
	from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.cfg.Location)
	// Bookings that started the previous evening can still overlap today.
	booked, err := s.appointments.ListBooked(ctx, providerID, from.Add(-24*time.Hour), from.AddDate(0, 0, s.cfg.HorizonDays))
	if err != nil {
		return nil, fmt.Errorf("load bookings: %w", err)
	}
	bookings := make([]Booking, 0, len(booked))
	for _, a := range booked {
		bookings = append(bookings, a.Booking())
	}
	return AvailableSlots(PlanParams{
		Availability: avail,
		Bookings:     bookings,
		Now:          now,
		HorizonDays:  s.cfg.HorizonDays,
		Granularity:  s.cfg.Granularity,
		DefaultOpen:  s.cfg.DefaultOpen,
		DefaultClose: s.cfg.DefaultClose,
		Location:     s.cfg.Location,
	}), nil
}

// ListSlots returns free slots grouped by date.
func (s *Service) ListSlots(ctx context.Context, providerID uuid.UUID) ([]DaySlots, error) {
	seq, err := s.Slots(ctx, providerID)
	if err != nil {
		return nil, err
	}
	var all []Slot
	for sl := range seq {
		all = append(all, sl)
	}
	return Group(all), nil
}

func (s *Service) GetAvailability(ctx context.Context, providerID uuid.UUID) ([]Availability, error) {
	return s.availability.ListByProvider(ctx, providerID)
}

// SetAvailability replaces a provider's weekly schedule. An empty list falls
// back to the default opening hours.
func (s *Service) SetAvailability(ctx context.Context, providerID uuid.UUID, rows []Availability) ([]Availability, error) {
	if providerID == uuid.Nil {
		return nil, fmt.Errorf("%w: provider_id is required", ErrValidation)
	}
	now := s.clock.Now()
	out := make([]Availability, len(rows))
	for i, r := range rows {
		if r.DayOfWeek < time.Sunday || r.DayOfWeek > time.Saturday {
			return nil, fmt.Errorf("%w: day_of_week must be 0-6", ErrValidation)
		}
		if _, _, err := r.window(); err != nil {
			return nil, err
		}
		r.ID = uuid.New()
		r.ProviderID = providerID
		r.CreatedAt = now
		out[i] = r
	}

	unlock, err := s.locker.Lock(ctx, "provider:"+providerID.String())
	if err != nil {
		return nil, err
	}
	defer unlock()
	if err := s.availability.ReplaceForProvider(ctx, providerID, out); err != nil {
		return nil, err
	}
	return out, nil
}

// BookRequest asks for an appointment starting at Date/Time in the planner's
// location.
type BookRequest struct {
	ProviderID      uuid.UUID
	PatientID       uuid.UUID
	Date            string
	Time            string
	DurationMinutes int
	Reason          string
}

// Book reserves a slot. Every slot the appointment covers must be free; the
// check and the insert run under the provider's lock.
func (s *Service) Book(ctx context.Context, req BookRequest) (*Appointment, error) {
	a, err := s.book(ctx, req)
	s.metrics.Booking(err)
	if err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("appointment_id", a.ID.String()).
		Str("provider_id", a.ProviderID.String()).
		Time("start", a.Start).
		Msg("appointment booked")
	notification.Send(ctx, s.notifier, s.logger, notification.Notification{
		UserID:            a.ProviderID.String(),
		Title:             "New appointment",
		Message:           fmt.Sprintf("Appointment booked for %s", a.Start.Format("Mon 2 Jan 15:04")),
		RelatedEntityType: "appointment",
		RelatedEntityID:   a.ID.String(),
	})
	return a, nil
}

func (s *Service) book(ctx context.Context, req BookRequest) (*Appointment, error) {
	if req.ProviderID == uuid.Nil || req.PatientID == uuid.Nil {
		return nil, fmt.Errorf("%w: provider_id and patient_id are required", ErrValidation)
	}
	start, err := time.ParseInLocation(dateLayout+" "+timeLayout, req.Date+" "+req.Time, s.cfg.Location)
	if err != nil {
		return nil, fmt.Errorf("%w: date must be YYYY-MM-DD and time HH:MM", ErrValidation)
	}
	step := int(s.cfg.Granularity / time.Minute)
	if req.DurationMinutes == 0 {
		req.DurationMinutes = step
	}
	if req.DurationMinutes < 0 || req.DurationMinutes%step != 0 {
		return nil, fmt.Errorf("%w: duration must be a positive multiple of %d minutes", ErrValidation, step)
	}

	unlock, err := s.locker.Lock(ctx, "provider:"+req.ProviderID.String())
	if err != nil {
		return nil, err
	}
	defer unlock()

	seq, err := s.Slots(ctx, req.ProviderID)
	if err != nil {
		return nil, err
	}
	need := make(map[int64]bool, req.DurationMinutes/step)
	for m := 0; m < req.DurationMinutes; m += step {
		need[start.Add(time.Duration(m)*time.Minute).Unix()] = true
	}
	for sl := range seq {
		delete(need, sl.Start.Unix())
		if len(need) == 0 || sl.Start.After(start.Add(time.Duration(req.DurationMinutes)*time.Minute)) {
			break
		}
	}
	if len(need) > 0 {
		return nil, fmt.Errorf("%w: %s %s", ErrSlotUnavailable, req.Date, req.Time)
	}

	a := &Appointment{
		ID:              uuid.New(),
		ProviderID:      req.ProviderID,
		PatientID:       req.PatientID,
		Start:           start,
		DurationMinutes: req.DurationMinutes,
		Status:          AppointmentBooked,
		Reason:          strings.TrimSpace(req.Reason),
		CreatedAt:       s.clock.Now(),
	}
	if err := s.appointments.Create(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// Cancel frees an appointment's slots.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, reason string) (*Appointment, error) {
	a, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	unlock, err := s.locker.Lock(ctx, "provider:"+a.ProviderID.String())
	if err != nil {
		return nil, err
	}
	defer unlock()

	// reload under the lock
	if a, err = s.appointments.GetByID(ctx, id); err != nil {
		return nil, err
	}
	if a.Status == AppointmentCancelled {
		return nil, ErrAlreadyCancelled
	}
	next := *a
	next.Status = AppointmentCancelled
	if r := strings.TrimSpace(reason); r != "" {
		next.CancelReason = &r
	}
	if err := s.appointments.Update(ctx, &next); err != nil {
		return nil, err
	}
	return &next, nil
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	return s.appointments.ListByPatient(ctx, patientID, limit, offset)
}
