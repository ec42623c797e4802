package admission

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ACW-Developers/urological-patient-mis-sub001/internal/domain/bed"
	"github.com/ACW-Developers/urological-patient-mis-sub001/internal/domain/surgery"
	"github.com/ACW-Developers/urological-patient-mis-sub001/internal/platform/db"
	"github.com/ACW-Developers/urological-patient-mis-sub001/internal/platform/lock"
	"github.com/ACW-Developers/urological-patient-mis-sub001/internal/platform/notification"
	"github.com/ACW-Developers/urological-patient-mis-sub001/internal/platform/telemetry"
	"github.com/ACW-Developers/urological-patient-mis-sub001/pkg/clock"
)

const stepDownReason = "Step-down from ICU"

// Coordinator moves patients into and between care units. Each transfer
// acquires a bed, writes the admission together with the source record, and
// undoes both if the write fails.
type Coordinator struct {
	pool       *bed.Pool
	admissions Repository
	surgeries  SurgeryWriter
	tx         db.TxRunner
	locker     lock.Locker
	notifier   notification.Sink
	metrics    *telemetry.Metrics
	clock      clock.Clock
	logger     zerolog.Logger
}

type Option func(*Coordinator)

func WithTxRunner(tx db.TxRunner) Option { return func(c *Coordinator) { c.tx = tx } }

func WithLocker(l lock.Locker) Option { return func(c *Coordinator) { c.locker = l } }

func WithNotifier(n notification.Sink) Option { return func(c *Coordinator) { c.notifier = n } }

func WithMetrics(m *telemetry.Metrics) Option { return func(c *Coordinator) { c.metrics = m } }

func WithClock(clk clock.Clock) Option { return func(c *Coordinator) { c.clock = clk } }

func WithLogger(l zerolog.Logger) Option { return func(c *Coordinator) { c.logger = l } }

func NewCoordinator(pool *bed.Pool, admissions Repository, surgeries SurgeryWriter, opts ...Option) *Coordinator {
	c := &Coordinator{
		pool:       pool,
		admissions: admissions,
		surgeries:  surgeries,
		tx:         db.NoTx{},
		locker:     lock.NewKeyedMutex(),
		clock:      clock.System(),
		logger:     zerolog.Nop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// acquire reserves a bed for the admission id. ICU stays always get a bed;
// ward stays get one only when a name is requested.
func (c *Coordinator) acquire(unit Unit, requested string, occupant uuid.UUID) (*string, error) {
	requested = strings.TrimSpace(requested)
	if unit == UnitWard && requested == "" {
		return nil, nil
	}
	h, err := c.pool.Acquire(unit.PoolKind(), requested, occupant)
	if err != nil {
		if errors.Is(err, bed.ErrNoResourceAvailable) {
			return nil, fmt.Errorf("%w: %s", ErrNoBedAvailable, unit)
		}
		return nil, err
	}
	return &h.Name, nil
}

func (c *Coordinator) releaseFor(a *Admission) {
	if a.BedNumber != nil {
		c.pool.ReleaseFor(*a.BedNumber, a.ID)
	}
}

// compensate undoes a draft admission after its write failed. If the draft
// cannot be removed the bed stays held and a *TransferError is returned.
func (c *Coordinator) compensate(ctx context.Context, op string, draft *Admission, cause error) error {
	if err := c.admissions.Delete(ctx, draft.ID); err != nil && !errors.Is(err, ErrNotFound) {
		te := &TransferError{Op: op, AdmissionID: draft.ID, Cause: cause, RollbackErr: err}
		if draft.BedNumber != nil {
			te.Bed = *draft.BedNumber
		}
		c.logger.Error().
			Bool("critical", true).
			Str("op", op).
			Str("admission_id", draft.ID.String()).
			Str("bed", te.Bed).
			AnErr("cause", cause).
			Err(err).
			Msg("transfer rollback failed; bed held without a committed admission")
		return te
	}
	c.releaseFor(draft)
	return fmt.Errorf("%s: %w", op, cause)
}

// Admit moves a post-operative patient into unit and persists s (already
// advanced by the caller) in the same transaction as the new admission.
func (c *Coordinator) Admit(ctx context.Context, s *surgery.Surgery, unit Unit, requestedBed, reason string) (*Admission, error) {
	a, err := c.admit(ctx, s, unit, requestedBed, reason)
	c.metrics.Transfer(string(unit), err)
	return a, err
}

func (c *Coordinator) admit(ctx context.Context, s *surgery.Surgery, unit Unit, requestedBed, reason string) (*Admission, error) {
	if !unit.Valid() {
		return nil, fmt.Errorf("%w: unit must be icu or ward", ErrValidation)
	}
	id := uuid.New()
	bedName, err := c.acquire(unit, requestedBed, id)
	if err != nil {
		return nil, err
	}

	surgeryID := s.ID
	a := &Admission{
		ID:         id,
		PatientID:  s.PatientID,
		SurgeryID:  &surgeryID,
		Unit:       unit,
		BedNumber:  bedName,
		Reason:     reason,
		Source:     SourcePostOp,
		Status:     StatusAdmitted,
		AdmittedAt: c.clock.Now(),
	}
	if err := a.Validate(); err != nil {
		c.releaseFor(a)
		return nil, err
	}

	err = c.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := c.admissions.Create(ctx, a); err != nil {
			return err
		}
		return c.surgeries.Update(ctx, s)
	})
	if err != nil {
		return nil, c.compensate(ctx, "transfer", a, err)
	}

	c.logger.Info().
		Str("admission_id", a.ID.String()).
		Str("surgery_id", s.ID.String()).
		Str("unit", string(unit)).
		Str("bed", deref(a.BedNumber)).
		Msg("post-op transfer committed")
	return a, nil
}

// Transfer satisfies surgery.Transferer.
func (c *Coordinator) Transfer(ctx context.Context, s *surgery.Surgery, req surgery.TransferRequest) (*surgery.TransferResult, error) {
	a, err := c.Admit(ctx, s, Unit(req.Unit), req.Bed, req.Reason)
	if err != nil {
		return nil, err
	}
	return &surgery.TransferResult{AdmissionID: a.ID, Unit: string(a.Unit), Bed: a.BedNumber}, nil
}

// DirectRequest admits a patient who did not come through the surgical pathway.
type DirectRequest struct {
	PatientID uuid.UUID
	Unit      Unit
	Bed       string
	Reason    string
}

func (c *Coordinator) AdmitDirect(ctx context.Context, req DirectRequest) (*Admission, error) {
	if !req.Unit.Valid() {
		return nil, fmt.Errorf("%w: unit must be icu or ward", ErrValidation)
	}
	if strings.TrimSpace(req.Reason) == "" {
		return nil, fmt.Errorf("%w: admission_reason is required", ErrValidation)
	}
	id := uuid.New()
	bedName, err := c.acquire(req.Unit, req.Bed, id)
	if err != nil {
		c.metrics.Transfer(string(req.Unit), err)
		return nil, err
	}
	a := &Admission{
		ID:         id,
		PatientID:  req.PatientID,
		Unit:       req.Unit,
		BedNumber:  bedName,
		Reason:     strings.TrimSpace(req.Reason),
		Source:     SourceDirect,
		Status:     StatusAdmitted,
		AdmittedAt: c.clock.Now(),
	}
	if err := a.Validate(); err != nil {
		c.releaseFor(a)
		return nil, err
	}
	if err := c.admissions.Create(ctx, a); err != nil {
		err = c.compensate(ctx, "direct admission", a, err)
		c.metrics.Transfer(string(req.Unit), err)
		return nil, err
	}
	c.metrics.Transfer(string(req.Unit), nil)
	c.logger.Info().
		Str("admission_id", a.ID.String()).
		Str("unit", string(a.Unit)).
		Str("bed", deref(a.BedNumber)).
		Msg("direct admission")
	return a, nil
}

// DischargeRequest closes an admission. WardBed selects the step-down bed
// when an ICU stay is discharged.
type DischargeRequest struct {
	Notes   string
	WardBed string
	Actor   string
}

// DischargeResult carries the closed admission and, for ICU discharges, the
// ward stay created from it.
type DischargeResult struct {
	Discharged *Admission `json:"discharged"`
	StepDown   *Admission `json:"step_down,omitempty"`
}

// Discharge dispatches on the admission's unit.
func (c *Coordinator) Discharge(ctx context.Context, id uuid.UUID, req DischargeRequest) (*DischargeResult, error) {
	a, err := c.admissions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Unit == UnitICU {
		return c.DischargeICU(ctx, id, req)
	}
	closed, err := c.DischargeWard(ctx, id, req.Notes)
	if err != nil {
		return nil, err
	}
	return &DischargeResult{Discharged: closed}, nil
}

func (c *Coordinator) lockAdmission(ctx context.Context, id uuid.UUID) (func(), error) {
	return c.locker.Lock(ctx, "admission:"+id.String())
}

// load fetches an active admission of the expected unit.
func (c *Coordinator) load(ctx context.Context, id uuid.UUID, unit Unit) (*Admission, error) {
	a, err := c.admissions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Unit != unit {
		return nil, fmt.Errorf("%w: admission %s is a %s stay", ErrWrongUnit, id, a.Unit)
	}
	if !a.Active() {
		return nil, ErrAlreadyDischarged
	}
	return a, nil
}

func (c *Coordinator) discharged(a *Admission, notes string) *Admission {
	next := *a
	now := c.clock.Now()
	next.Status = StatusDischarged
	next.DischargedAt = &now
	if n := strings.TrimSpace(notes); n != "" {
		next.DischargeNotes = &n
	}
	return &next
}

// DischargeICU closes an ICU stay and steps the patient down to the ward.
// The ward admission and the ICU discharge commit together; the ICU bed is
// released only after they do.
func (c *Coordinator) DischargeICU(ctx context.Context, id uuid.UUID, req DischargeRequest) (*DischargeResult, error) {
	unlock, err := c.lockAdmission(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	icu, err := c.load(ctx, id, UnitICU)
	if err != nil {
		return nil, err
	}

	wardID := uuid.New()
	wardBed, err := c.acquire(UnitWard, req.WardBed, wardID)
	if err != nil {
		c.metrics.Transfer(string(UnitWard), err)
		return nil, err
	}
	icuID := icu.ID
	ward := &Admission{
		ID:             wardID,
		PatientID:      icu.PatientID,
		SurgeryID:      icu.SurgeryID,
		ICUAdmissionID: &icuID,
		Unit:           UnitWard,
		BedNumber:      wardBed,
		Reason:         stepDownReason,
		Source:         SourceICUDischarge,
		Status:         StatusAdmitted,
		AdmittedAt:     c.clock.Now(),
	}
	closed := c.discharged(icu, req.Notes)

	err = c.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := c.admissions.Create(ctx, ward); err != nil {
			return err
		}
		return c.admissions.Update(ctx, closed)
	})
	if err != nil {
		err = c.compensate(ctx, "icu step-down", ward, err)
		c.metrics.Transfer(string(UnitWard), err)
		return nil, err
	}
	c.releaseFor(icu)
	c.metrics.Transfer(string(UnitWard), nil)

	c.logger.Info().
		Str("icu_admission_id", icu.ID.String()).
		Str("ward_admission_id", ward.ID.String()).
		Str("released_bed", deref(icu.BedNumber)).
		Str("ward_bed", deref(ward.BedNumber)).
		Msg("icu discharge with ward step-down")
	if req.Actor != "" {
		notification.Send(ctx, c.notifier, c.logger, notification.Notification{
			UserID:            req.Actor,
			Title:             "ICU discharge recorded",
			Message:           fmt.Sprintf("Patient stepped down to ward (bed %s)", bedLabel(ward.BedNumber)),
			RelatedEntityType: "admission",
			RelatedEntityID:   ward.ID.String(),
		})
	}
	return &DischargeResult{Discharged: closed, StepDown: ward}, nil
}

// DischargeWard closes a ward stay and frees its bed.
func (c *Coordinator) DischargeWard(ctx context.Context, id uuid.UUID, notes string) (*Admission, error) {
	unlock, err := c.lockAdmission(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	a, err := c.load(ctx, id, UnitWard)
	if err != nil {
		return nil, err
	}
	closed := c.discharged(a, notes)
	if err := c.admissions.Update(ctx, closed); err != nil {
		return nil, err
	}
	c.releaseFor(a)
	c.logger.Info().Str("admission_id", id.String()).Str("released_bed", deref(a.BedNumber)).Msg("ward discharge")
	return closed, nil
}

func (c *Coordinator) Get(ctx context.Context, id uuid.UUID) (*Admission, error) {
	return c.admissions.GetByID(ctx, id)
}

func (c *Coordinator) List(ctx context.Context, f ListFilter, limit, offset int) ([]*Admission, int, error) {
	if f.Unit != "" && !f.Unit.Valid() {
		return nil, 0, fmt.Errorf("%w: unit must be icu or ward", ErrValidation)
	}
	return c.admissions.List(ctx, f, limit, offset)
}

// ListActive returns current stays in unit.
func (c *Coordinator) ListActive(ctx context.Context, unit Unit, limit, offset int) ([]*Admission, int, error) {
	return c.List(ctx, ListFilter{Unit: unit, Status: StatusAdmitted}, limit, offset)
}

// ExistsForSurgery satisfies surgery.AdmissionLookup.
func (c *Coordinator) ExistsForSurgery(ctx context.Context, surgeryID uuid.UUID) (bool, error) {
	return c.admissions.ExistsForSurgery(ctx, surgeryID)
}

// RestoreOccupancy rebuilds bed occupancy from active admissions. Beds outside
// the configured catalog are logged and skipped.
func (c *Coordinator) RestoreOccupancy(ctx context.Context) (int, error) {
	active, err := c.admissions.ListOccupying(ctx)
	if err != nil {
		return 0, fmt.Errorf("load occupying admissions: %w", err)
	}
	occ := make(map[string]uuid.UUID, len(active))
	for _, a := range active {
		if a.BedNumber == nil {
			continue
		}
		if prev, dup := occ[*a.BedNumber]; dup {
			c.logger.Warn().
				Str("bed", *a.BedNumber).
				Str("admission_id", a.ID.String()).
				Str("kept_admission_id", prev.String()).
				Msg("bed referenced by more than one active admission")
			continue
		}
		occ[*a.BedNumber] = a.ID
	}
	unknown := c.pool.Restore(occ)
	for _, name := range unknown {
		c.logger.Warn().Str("bed", name).Msg("active admission references a bed outside the catalog")
	}
	return len(occ) - len(unknown), nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func bedLabel(s *string) string {
	if s == nil {
		return "unassigned"
	}
	return *s
}
