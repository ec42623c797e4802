package surgery

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ACW-Developers/urological-patient-mis-sub001/internal/platform/db"
	"github.com/ACW-Developers/urological-patient-mis-sub001/internal/platform/lock"
	"github.com/ACW-Developers/urological-patient-mis-sub001/internal/platform/notification"
	"github.com/ACW-Developers/urological-patient-mis-sub001/internal/platform/telemetry"
	"github.com/ACW-Developers/urological-patient-mis-sub001/pkg/clock"
)

const defaultDurationMinutes = 60

var timeOfDay = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)

// TransitionRequest carries the data some edges need. Unused fields are ignored.
type TransitionRequest struct {
	To            Status
	Actor         string
	IntraOpNotes  *string
	Complications *string
	PostOpNotes   *string
	TargetUnit    string
	Bed           string
	Reason        string
}

// TransitionResult is returned by a successful transition. Admission fields are
// populated only for the post_op_care -> completed edge.
type TransitionResult struct {
	Surgery     *Surgery   `json:"surgery"`
	From        Status     `json:"from"`
	To          Status     `json:"to"`
	AdmissionID *uuid.UUID `json:"admission_id,omitempty"`
	Unit        string     `json:"unit,omitempty"`
	Bed         *string    `json:"bed,omitempty"`
}

// Service drives a surgery through its care pathway. Every mutation of a
// surgery and its checklists happens under a per-surgery lock.
type Service struct {
	surgeries  SurgeryRepository
	gate       *ChecklistGate
	transfers  Transferer
	admissions AdmissionLookup
	rooms      RoomCatalog
	locker     lock.Locker
	tx         db.TxRunner
	notifier   notification.Sink
	metrics    *telemetry.Metrics
	clock      clock.Clock
	logger     zerolog.Logger
}

type Option func(*Service)

func WithLocker(l lock.Locker) Option { return func(s *Service) { s.locker = l } }

func WithTxRunner(tx db.TxRunner) Option { return func(s *Service) { s.tx = tx } }

func WithNotifier(n notification.Sink) Option { return func(s *Service) { s.notifier = n } }

func WithMetrics(m *telemetry.Metrics) Option { return func(s *Service) { s.metrics = m } }

func WithClock(c clock.Clock) Option { return func(s *Service) { s.clock = c } }

func WithLogger(l zerolog.Logger) Option { return func(s *Service) { s.logger = l } }

// WithRooms restricts operating_room to the given catalog.
func WithRooms(r RoomCatalog) Option { return func(s *Service) { s.rooms = r } }

func NewService(surgeries SurgeryRepository, gate *ChecklistGate, transfers Transferer, admissions AdmissionLookup, opts ...Option) *Service {
	s := &Service{
		surgeries:  surgeries,
		gate:       gate,
		transfers:  transfers,
		admissions: admissions,
		locker:     lock.NewKeyedMutex(),
		tx:         db.NoTx{},
		clock:      clock.System(),
		logger:     zerolog.Nop(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) lockSurgery(ctx context.Context, id uuid.UUID) (func(), error) {
	return s.locker.Lock(ctx, "surgery:"+id.String())
}

// -- Scheduling --

func (s *Service) validate(sg *Surgery) error {
	if sg.PatientID == uuid.Nil {
		return fmt.Errorf("%w: patient_id is required", ErrValidation)
	}
	if sg.SurgeonID == uuid.Nil {
		return fmt.Errorf("%w: surgeon_id is required", ErrValidation)
	}
	if strings.TrimSpace(sg.SurgeryName) == "" {
		return fmt.Errorf("%w: surgery_name is required", ErrValidation)
	}
	if strings.TrimSpace(sg.SurgeryType) == "" {
		return fmt.Errorf("%w: surgery_type is required", ErrValidation)
	}
	if sg.ScheduledDate.IsZero() {
		return fmt.Errorf("%w: scheduled_date is required", ErrValidation)
	}
	if !timeOfDay.MatchString(sg.ScheduledTime) {
		return fmt.Errorf("%w: scheduled_time must be HH:MM", ErrValidation)
	}
	if sg.DurationMinutes < 0 {
		return fmt.Errorf("%w: duration_minutes must not be negative", ErrValidation)
	}
	if sg.OperatingRoom != nil && s.rooms != nil && !s.rooms.HasRoom(*sg.OperatingRoom) {
		return fmt.Errorf("%w: %s", ErrUnknownRoom, *sg.OperatingRoom)
	}
	return nil
}

// Schedule creates a surgery in the scheduled state.
func (s *Service) Schedule(ctx context.Context, sg *Surgery) error {
	if sg.DurationMinutes == 0 {
		sg.DurationMinutes = defaultDurationMinutes
	}
	if err := s.validate(sg); err != nil {
		return err
	}
	now := s.clock.Now()
	sg.ID = uuid.New()
	sg.Status = StatusScheduled
	sg.PreOpChecklistComplete = false
	sg.WHOChecklistComplete = false
	sg.SignOutComplete = false
	sg.CancelReason = nil
	sg.CreatedAt = now
	sg.UpdatedAt = now
	if err := s.surgeries.Create(ctx, sg); err != nil {
		return err
	}
	s.logger.Info().Str("surgery_id", sg.ID.String()).Str("patient_id", sg.PatientID.String()).Msg("surgery scheduled")
	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Surgery, error) {
	return s.surgeries.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, f ListFilter, limit, offset int) ([]*Surgery, int, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, 0, fmt.Errorf("%w: unknown status %q", ErrValidation, f.Status)
	}
	return s.surgeries.List(ctx, f, limit, offset)
}

// ListByPatient returns a patient's surgeries in schedule order.
func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Surgery, int, error) {
	return s.surgeries.List(ctx, ListFilter{PatientID: &patientID}, limit, offset)
}

// ScheduleChange is a partial update of the booking fields.
type ScheduleChange struct {
	ScheduledDate   *time.Time
	ScheduledTime   *string
	DurationMinutes *int
	OperatingRoom   *string
	PreOpAssessment *string
}

// Reschedule changes booking fields. Only scheduled surgeries may move.
func (s *Service) Reschedule(ctx context.Context, id uuid.UUID, ch ScheduleChange) (*Surgery, error) {
	unlock, err := s.lockSurgery(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	cur, err := s.surgeries.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if cur.Status != StatusScheduled {
		return nil, fmt.Errorf("%w: cannot reschedule a surgery in %s", ErrInvalidTransition, cur.Status)
	}
	next := *cur
	if ch.ScheduledDate != nil {
		next.ScheduledDate = *ch.ScheduledDate
	}
	if ch.ScheduledTime != nil {
		next.ScheduledTime = *ch.ScheduledTime
	}
	if ch.DurationMinutes != nil {
		next.DurationMinutes = *ch.DurationMinutes
	}
	if ch.OperatingRoom != nil {
		next.OperatingRoom = ch.OperatingRoom
	}
	if ch.PreOpAssessment != nil {
		next.PreOpAssessment = ch.PreOpAssessment
	}
	if err := s.validate(&next); err != nil {
		return nil, err
	}
	next.UpdatedAt = s.clock.Now()
	if err := s.surgeries.Update(ctx, &next); err != nil {
		return nil, err
	}
	return &next, nil
}

// NotesChange updates clinical free text without changing status.
type NotesChange struct {
	PreOpAssessment *string
	IntraOpNotes    *string
	Complications   *string
	PostOpNotes     *string
}

// UpdateNotes edits notes. Complications are frozen once the surgery is completed
// and nothing may be edited on a cancelled surgery.
func (s *Service) UpdateNotes(ctx context.Context, id uuid.UUID, ch NotesChange) (*Surgery, error) {
	unlock, err := s.lockSurgery(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	cur, err := s.surgeries.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if cur.Status == StatusCancelled {
		return nil, ErrSurgeryClosed
	}
	if cur.Status == StatusCompleted && ch.Complications != nil {
		return nil, fmt.Errorf("%w: complications", ErrImmutableField)
	}
	next := *cur
	if ch.PreOpAssessment != nil {
		next.PreOpAssessment = ch.PreOpAssessment
	}
	if ch.IntraOpNotes != nil {
		next.IntraOpNotes = ch.IntraOpNotes
	}
	if ch.Complications != nil {
		next.Complications = ch.Complications
	}
	if ch.PostOpNotes != nil {
		next.PostOpNotes = ch.PostOpNotes
	}
	next.UpdatedAt = s.clock.Now()
	if err := s.surgeries.Update(ctx, &next); err != nil {
		return nil, err
	}
	return &next, nil
}

// Delete removes a surgery and its checklists. Only scheduled, pre-op complete
// and in-progress surgeries without an admission can be deleted.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	unlock, err := s.lockSurgery(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()

	cur, err := s.surgeries.GetByID(ctx, id)
	if err != nil {
		return err
	}
	switch cur.Status {
	case StatusPostOpCare, StatusCompleted:
		return ErrHasDependentAdmission
	case StatusSurgeryComplete, StatusCancelled:
		return fmt.Errorf("%w: cannot delete a surgery in %s", ErrInvalidTransition, cur.Status)
	}
	if s.admissions != nil {
		has, err := s.admissions.ExistsForSurgery(ctx, id)
		if err != nil {
			return err
		}
		if has {
			return ErrHasDependentAdmission
		}
	}
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.gate.repo.DeleteBySurgery(ctx, id); err != nil {
			return err
		}
		return s.surgeries.Delete(ctx, id)
	})
}

// -- Checklists --

// OpenChecklist returns (creating if needed) the checklist of kind for a surgery.
func (s *Service) OpenChecklist(ctx context.Context, surgeryID uuid.UUID, kind ChecklistKind) (*Checklist, error) {
	unlock, err := s.lockSurgery(ctx, surgeryID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	cur, err := s.surgeries.GetByID(ctx, surgeryID)
	if err != nil {
		return nil, err
	}
	if cur.Status.Terminal() {
		return nil, ErrSurgeryClosed
	}
	return s.gate.Open(ctx, surgeryID, kind)
}

func (s *Service) GetChecklist(ctx context.Context, id uuid.UUID) (*Checklist, error) {
	return s.gate.Get(ctx, id)
}

func (s *Service) ListChecklists(ctx context.Context, surgeryID uuid.UUID) ([]*Checklist, error) {
	if _, err := s.surgeries.GetByID(ctx, surgeryID); err != nil {
		return nil, err
	}
	return s.gate.repo.ListBySurgery(ctx, surgeryID)
}

// CompleteChecklist completes a checklist under its surgery's lock.
func (s *Service) CompleteChecklist(ctx context.Context, checklistID uuid.UUID, items []ChecklistItem, actor string) (*Checklist, error) {
	c, err := s.gate.Get(ctx, checklistID)
	if err != nil {
		return nil, err
	}
	unlock, err := s.lockSurgery(ctx, c.SurgeryID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	cur, err := s.surgeries.GetByID(ctx, c.SurgeryID)
	if err != nil {
		return nil, err
	}
	if cur.Status.Terminal() {
		return nil, ErrSurgeryClosed
	}
	done, err := s.gate.Complete(ctx, checklistID, items, actor)
	if err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("surgery_id", c.SurgeryID.String()).
		Str("checklist", string(c.Kind)).
		Str("actor", actor).
		Msg("checklist completed")
	return done, nil
}

// -- Transitions --

// Transition moves a surgery along one edge of the pathway. On any error the
// stored surgery is unchanged.
func (s *Service) Transition(ctx context.Context, id uuid.UUID, req TransitionRequest) (*TransitionResult, error) {
	if !req.To.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, req.To)
	}
	unlock, err := s.lockSurgery(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	cur, err := s.surgeries.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	from := cur.Status

	res, err := s.transition(ctx, cur, req)
	s.metrics.Transition(string(from), string(req.To), err)
	if err != nil {
		if !errors.Is(err, ErrInvalidTransition) && !errors.Is(err, ErrAlreadyTransitioned) {
			s.logger.Warn().Err(err).
				Str("surgery_id", id.String()).
				Str("from", string(from)).
				Str("to", string(req.To)).
				Msg("transition rejected")
		}
		return nil, err
	}
	if res.From == res.To {
		return res, nil
	}

	s.logger.Info().
		Str("surgery_id", id.String()).
		Str("from", string(res.From)).
		Str("to", string(res.To)).
		Str("actor", req.Actor).
		Msg("surgery transitioned")
	notification.Send(ctx, s.notifier, s.logger, notification.Notification{
		UserID:            cur.SurgeonID.String(),
		Title:             "Surgery status changed",
		Message:           fmt.Sprintf("%s moved from %s to %s", cur.SurgeryName, res.From, res.To),
		RelatedEntityType: "surgery",
		RelatedEntityID:   id.String(),
	})
	return res, nil
}

func (s *Service) transition(ctx context.Context, cur *Surgery, req TransitionRequest) (*TransitionResult, error) {
	r, ok := transitions[edge{cur.Status, req.To}]
	if !ok {
		if err := classify(cur.Status, req.To); err != nil {
			return nil, err
		}
		return &TransitionResult{Surgery: cur, From: cur.Status, To: cur.Status}, nil
	}
	if err := r.guard(ctx, s, cur, req); err != nil {
		return nil, err
	}

	next := *cur
	now := s.clock.Now()
	r.apply(&next, req, now)
	next.Status = req.To
	next.UpdatedAt = now
	res := &TransitionResult{Surgery: &next, From: cur.Status, To: req.To}

	if r.transfer {
		tr, err := s.transfers.Transfer(ctx, &next, TransferRequest{
			Unit:   req.TargetUnit,
			Bed:    req.Bed,
			Reason: transferReason(req),
		})
		if err != nil {
			return nil, err
		}
		res.AdmissionID = &tr.AdmissionID
		res.Unit = tr.Unit
		res.Bed = tr.Bed
		return res, nil
	}

	if err := s.surgeries.Update(ctx, &next); err != nil {
		return nil, err
	}
	return res, nil
}

func transferReason(req TransitionRequest) string {
	if r := strings.TrimSpace(req.Reason); r != "" {
		return r
	}
	return "post-operative care"
}
