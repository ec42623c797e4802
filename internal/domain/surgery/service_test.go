package surgery

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ACW-Developers/urological-patient-mis-sub001/internal/platform/notification"
	"github.com/ACW-Developers/urological-patient-mis-sub001/pkg/clock"
)

// -- Mock Repositories --

type mockSurgeryRepo struct {
	mu        sync.Mutex
	surgeries map[uuid.UUID]Surgery
	updateErr error
}

func newMockSurgeryRepo() *mockSurgeryRepo {
	return &mockSurgeryRepo{surgeries: make(map[uuid.UUID]Surgery)}
}

func (m *mockSurgeryRepo) Create(_ context.Context, s *Surgery) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.surgeries[s.ID] = *s
	return nil
}

func (m *mockSurgeryRepo) GetByID(_ context.Context, id uuid.UUID) (*Surgery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.surgeries[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &s, nil
}

func (m *mockSurgeryRepo) Update(_ context.Context, s *Surgery) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	if _, ok := m.surgeries[s.ID]; !ok {
		return ErrNotFound
	}
	m.surgeries[s.ID] = *s
	return nil
}

func (m *mockSurgeryRepo) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.surgeries, id)
	return nil
}

func (m *mockSurgeryRepo) List(_ context.Context, f ListFilter, limit, offset int) ([]*Surgery, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Surgery
	for _, s := range m.surgeries {
		if f.Status != "" && s.Status != f.Status {
			continue
		}
		if f.PatientID != nil && s.PatientID != *f.PatientID {
			continue
		}
		s := s
		out = append(out, &s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	total := len(out)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return out[offset:end], total, nil
}

type mockChecklistRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]Checklist
}

func newMockChecklistRepo() *mockChecklistRepo {
	return &mockChecklistRepo{items: make(map[uuid.UUID]Checklist)}
}

func (m *mockChecklistRepo) Create(_ context.Context, c *Checklist) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[c.ID] = *c
	return nil
}

func (m *mockChecklistRepo) GetByID(_ context.Context, id uuid.UUID) (*Checklist, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.items[id]
	if !ok {
		return nil, ErrChecklistNotFound
	}
	return &c, nil
}

func (m *mockChecklistRepo) GetBySurgeryAndKind(_ context.Context, surgeryID uuid.UUID, kind ChecklistKind) (*Checklist, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.items {
		if c.SurgeryID == surgeryID && c.Kind == kind {
			return &c, nil
		}
	}
	return nil, ErrChecklistNotFound
}

func (m *mockChecklistRepo) ListBySurgery(_ context.Context, surgeryID uuid.UUID) ([]*Checklist, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Checklist
	for _, c := range m.items {
		if c.SurgeryID == surgeryID {
			c := c
			out = append(out, &c)
		}
	}
	return out, nil
}

func (m *mockChecklistRepo) Update(_ context.Context, c *Checklist) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[c.ID] = *c
	return nil
}

func (m *mockChecklistRepo) DeleteBySurgery(_ context.Context, surgeryID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, c := range m.items {
		if c.SurgeryID == surgeryID {
			delete(m.items, id)
		}
	}
	return nil
}

// mockTransferer persists the completed surgery the way the admission
// coordinator does, or fails without touching it.
type mockTransferer struct {
	repo  *mockSurgeryRepo
	err   error
	calls []TransferRequest
}

func (m *mockTransferer) Transfer(ctx context.Context, s *Surgery, req TransferRequest) (*TransferResult, error) {
	m.calls = append(m.calls, req)
	if m.err != nil {
		return nil, m.err
	}
	if err := m.repo.Update(ctx, s); err != nil {
		return nil, err
	}
	res := &TransferResult{AdmissionID: uuid.New(), Unit: req.Unit}
	if req.Bed != "" {
		b := req.Bed
		res.Bed = &b
	}
	return res, nil
}

type mockAdmissions struct{ has map[uuid.UUID]bool }

func (m *mockAdmissions) ExistsForSurgery(_ context.Context, id uuid.UUID) (bool, error) {
	return m.has[id], nil
}

// -- Fixture --

type fixture struct {
	svc        *Service
	surgeries  *mockSurgeryRepo
	checklists *mockChecklistRepo
	transfers  *mockTransferer
	admissions *mockAdmissions
	sink       *notification.RecordingSink
	clock      *clock.Fixed
}

func newFixture() *fixture {
	f := &fixture{
		surgeries:  newMockSurgeryRepo(),
		checklists: newMockChecklistRepo(),
		admissions: &mockAdmissions{has: map[uuid.UUID]bool{}},
		sink:       &notification.RecordingSink{},
		clock:      clock.NewFixed(time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)),
	}
	f.transfers = &mockTransferer{repo: f.surgeries}
	gate := NewChecklistGate(f.checklists, f.clock)
	f.svc = NewService(f.surgeries, gate, f.transfers, f.admissions,
		WithClock(f.clock),
		WithNotifier(f.sink),
		WithRooms(RoomCatalogFunc(func(name string) bool { return name == "OR-1" || name == "OR-2" })),
	)
	return f
}

func newTestService() *Service { return newFixture().svc }

func (f *fixture) schedule(t *testing.T) *Surgery {
	t.Helper()
	room := "OR-1"
	s := &Surgery{
		PatientID:     uuid.New(),
		SurgeonID:     uuid.New(),
		SurgeryType:   "urology",
		SurgeryName:   "Transurethral resection of prostate",
		ScheduledDate: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		ScheduledTime: "10:00",
		OperatingRoom: &room,
	}
	if err := f.svc.Schedule(context.Background(), s); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	return s
}

func checkedItems(kind ChecklistKind) []ChecklistItem {
	var items []ChecklistItem
	for _, l := range Catalog(kind) {
		items = append(items, ChecklistItem{Label: l, Checked: true})
	}
	return items
}

func (f *fixture) completeChecklist(t *testing.T, surgeryID uuid.UUID, kind ChecklistKind) {
	t.Helper()
	ctx := context.Background()
	c, err := f.svc.OpenChecklist(ctx, surgeryID, kind)
	if err != nil {
		t.Fatalf("open %s: %v", kind, err)
	}
	if _, err := f.svc.CompleteChecklist(ctx, c.ID, checkedItems(kind), "nurse-1"); err != nil {
		t.Fatalf("complete %s: %v", kind, err)
	}
}

func (f *fixture) status(t *testing.T, id uuid.UUID) Status {
	t.Helper()
	s, err := f.surgeries.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	return s.Status
}

func strPtr(s string) *string { return &s }

// -- Schedule --

func TestSchedule(t *testing.T) {
	f := newFixture()
	s := f.schedule(t)
	if s.ID == uuid.Nil {
		t.Error("expected ID to be set")
	}
	if s.Status != StatusScheduled {
		t.Errorf("expected scheduled, got %s", s.Status)
	}
	if s.DurationMinutes != defaultDurationMinutes {
		t.Errorf("expected default duration %d, got %d", defaultDurationMinutes, s.DurationMinutes)
	}
}

func TestSchedule_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(s *Surgery)
		want   error
	}{
		{"missing patient", func(s *Surgery) { s.PatientID = uuid.Nil }, ErrValidation},
		{"missing surgeon", func(s *Surgery) { s.SurgeonID = uuid.Nil }, ErrValidation},
		{"missing name", func(s *Surgery) { s.SurgeryName = " " }, ErrValidation},
		{"bad time", func(s *Surgery) { s.ScheduledTime = "25:00" }, ErrValidation},
		{"negative duration", func(s *Surgery) { s.DurationMinutes = -5 }, ErrValidation},
		{"unknown room", func(s *Surgery) { s.OperatingRoom = strPtr("OR-9") }, ErrUnknownRoom},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			s := &Surgery{
				PatientID:     uuid.New(),
				SurgeonID:     uuid.New(),
				SurgeryType:   "urology",
				SurgeryName:   "Cystoscopy",
				ScheduledDate: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
				ScheduledTime: "09:30",
			}
			tt.mutate(s)
			if err := f.svc.Schedule(context.Background(), s); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestReschedule(t *testing.T) {
	f := newFixture()
	s := f.schedule(t)
	ctx := context.Background()

	updated, err := f.svc.Reschedule(ctx, s.ID, ScheduleChange{ScheduledTime: strPtr("14:30"), OperatingRoom: strPtr("OR-2")})
	if err != nil {
		t.Fatalf("reschedule: %v", err)
	}
	if updated.ScheduledTime != "14:30" || *updated.OperatingRoom != "OR-2" {
		t.Errorf("unexpected booking %s / %s", updated.ScheduledTime, *updated.OperatingRoom)
	}

	f.completeChecklist(t, s.ID, ChecklistPreOp)
	if _, err := f.svc.Transition(ctx, s.ID, TransitionRequest{To: StatusPreOpComplete}); err != nil {
		t.Fatalf("transition: %v", err)
	}
	if _, err := f.svc.Reschedule(ctx, s.ID, ScheduleChange{ScheduledTime: strPtr("15:00")}); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition after pre-op, got %v", err)
	}
}

// -- Transitions --

func TestTransition_FullPathway(t *testing.T) {
	f := newFixture()
	s := f.schedule(t)
	ctx := context.Background()

	// pre-op gate is closed until the checklist is complete
	_, err := f.svc.Transition(ctx, s.ID, TransitionRequest{To: StatusPreOpComplete})
	if !errors.Is(err, ErrIncompleteChecklist) {
		t.Fatalf("expected ErrIncompleteChecklist, got %v", err)
	}
	if got := f.status(t, s.ID); got != StatusScheduled {
		t.Fatalf("status changed to %s on failed transition", got)
	}

	f.completeChecklist(t, s.ID, ChecklistPreOp)
	res, err := f.svc.Transition(ctx, s.ID, TransitionRequest{To: StatusPreOpComplete})
	if err != nil {
		t.Fatalf("pre_op_complete: %v", err)
	}
	if !res.Surgery.PreOpChecklistComplete {
		t.Error("expected pre-op flag to be set")
	}

	f.completeChecklist(t, s.ID, ChecklistSignIn)
	if _, err := f.svc.Transition(ctx, s.ID, TransitionRequest{To: StatusInProgress}); !errors.Is(err, ErrIncompleteChecklist) {
		t.Fatalf("expected time-out to be required, got %v", err)
	}
	f.completeChecklist(t, s.ID, ChecklistTimeOut)
	if _, err := f.svc.Transition(ctx, s.ID, TransitionRequest{To: StatusInProgress}); err != nil {
		t.Fatalf("in_progress: %v", err)
	}

	if _, err := f.svc.Transition(ctx, s.ID, TransitionRequest{To: StatusSurgeryComplete}); !errors.Is(err, ErrNotesRequired) {
		t.Fatalf("expected ErrNotesRequired, got %v", err)
	}
	res, err = f.svc.Transition(ctx, s.ID, TransitionRequest{
		To:            StatusSurgeryComplete,
		IntraOpNotes:  strPtr("Uneventful resection, 40g removed"),
		Complications: strPtr("none"),
	})
	if err != nil {
		t.Fatalf("surgery_complete: %v", err)
	}
	if res.Surgery.IntraOpNotes == nil || *res.Surgery.Complications != "none" {
		t.Error("expected intra-op notes and complications to be recorded")
	}

	f.completeChecklist(t, s.ID, ChecklistSignOut)
	if _, err := f.svc.Transition(ctx, s.ID, TransitionRequest{To: StatusPostOpCare}); err != nil {
		t.Fatalf("post_op_care: %v", err)
	}

	res, err = f.svc.Transition(ctx, s.ID, TransitionRequest{To: StatusCompleted, TargetUnit: "ward"})
	if err != nil {
		t.Fatalf("completed: %v", err)
	}
	if res.AdmissionID == nil || res.Unit != "ward" {
		t.Errorf("expected ward admission, got %+v", res)
	}
	if got := f.status(t, s.ID); got != StatusCompleted {
		t.Errorf("expected completed, got %s", got)
	}
	if len(f.sink.Calls()) != 5 {
		t.Errorf("expected 5 notifications, got %d", len(f.sink.Calls()))
	}
	if f.sink.Calls()[0].UserID != s.SurgeonID.String() {
		t.Error("expected notifications addressed to the surgeon")
	}
}

func TestTransition_InvalidEdge(t *testing.T) {
	f := newFixture()
	s := f.schedule(t)

	_, err := f.svc.Transition(context.Background(), s.ID, TransitionRequest{To: StatusInProgress})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if got := f.status(t, s.ID); got != StatusScheduled {
		t.Errorf("expected status unchanged, got %s", got)
	}
	if len(f.sink.Calls()) != 0 {
		t.Error("expected no notification for a rejected transition")
	}
}

func TestTransition_Repeat(t *testing.T) {
	f := newFixture()
	s := f.schedule(t)
	ctx := context.Background()
	f.completeChecklist(t, s.ID, ChecklistPreOp)
	if _, err := f.svc.Transition(ctx, s.ID, TransitionRequest{To: StatusPreOpComplete}); err != nil {
		t.Fatalf("transition: %v", err)
	}

	_, err := f.svc.Transition(ctx, s.ID, TransitionRequest{To: StatusPreOpComplete})
	if !errors.Is(err, ErrAlreadyTransitioned) {
		t.Errorf("expected ErrAlreadyTransitioned, got %v", err)
	}
	_, err = f.svc.Transition(ctx, s.ID, TransitionRequest{To: StatusScheduled})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition moving backwards, got %v", err)
	}
}

func TestTransition_ConcurrentSameEdge(t *testing.T) {
	f := newFixture()
	s := f.schedule(t)
	f.completeChecklist(t, s.ID, ChecklistPreOp)

	const n = 8
	errs := make(chan error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Transition(context.Background(), s.ID, TransitionRequest{To: StatusPreOpComplete})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	ok, already := 0, 0
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrAlreadyTransitioned):
			already++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if ok != 1 || already != n-1 {
		t.Errorf("expected 1 success and %d repeats, got %d / %d", n-1, ok, already)
	}
}

func TestTransition_Cancel(t *testing.T) {
	f := newFixture()
	s := f.schedule(t)
	ctx := context.Background()

	if _, err := f.svc.Transition(ctx, s.ID, TransitionRequest{To: StatusCancelled}); !errors.Is(err, ErrReasonRequired) {
		t.Fatalf("expected ErrReasonRequired, got %v", err)
	}
	res, err := f.svc.Transition(ctx, s.ID, TransitionRequest{To: StatusCancelled, Reason: "patient unfit"})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if res.Surgery.CancelReason == nil || *res.Surgery.CancelReason != "patient unfit" {
		t.Error("expected cancel reason to be recorded")
	}

	// cancelling again is a no-op
	if _, err := f.svc.Transition(ctx, s.ID, TransitionRequest{To: StatusCancelled, Reason: "again"}); err != nil {
		t.Errorf("expected repeat cancel to succeed, got %v", err)
	}
	if len(f.sink.Calls()) != 1 {
		t.Errorf("expected a single notification, got %d", len(f.sink.Calls()))
	}
	if _, err := f.svc.Transition(ctx, s.ID, TransitionRequest{To: StatusPreOpComplete}); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition from cancelled, got %v", err)
	}
	if _, err := f.svc.OpenChecklist(ctx, s.ID, ChecklistPreOp); !errors.Is(err, ErrSurgeryClosed) {
		t.Errorf("expected ErrSurgeryClosed, got %v", err)
	}
}

func (f *fixture) advanceToPostOp(t *testing.T) *Surgery {
	t.Helper()
	ctx := context.Background()
	s := f.schedule(t)
	steps := []struct {
		kinds []ChecklistKind
		req   TransitionRequest
	}{
		{[]ChecklistKind{ChecklistPreOp}, TransitionRequest{To: StatusPreOpComplete}},
		{[]ChecklistKind{ChecklistSignIn, ChecklistTimeOut}, TransitionRequest{To: StatusInProgress}},
		{nil, TransitionRequest{To: StatusSurgeryComplete, IntraOpNotes: strPtr("ok")}},
		{[]ChecklistKind{ChecklistSignOut}, TransitionRequest{To: StatusPostOpCare}},
	}
	for _, st := range steps {
		for _, k := range st.kinds {
			f.completeChecklist(t, s.ID, k)
		}
		if _, err := f.svc.Transition(ctx, s.ID, st.req); err != nil {
			t.Fatalf("-> %s: %v", st.req.To, err)
		}
	}
	return s
}

func TestTransition_CancelAfterIncision(t *testing.T) {
	f := newFixture()
	s := f.advanceToPostOp(t)
	_, err := f.svc.Transition(context.Background(), s.ID, TransitionRequest{To: StatusCancelled, Reason: "late"})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestTransition_CompleteRequiresUnit(t *testing.T) {
	f := newFixture()
	s := f.advanceToPostOp(t)
	_, err := f.svc.Transition(context.Background(), s.ID, TransitionRequest{To: StatusCompleted, TargetUnit: "theatre"})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
	if len(f.transfers.calls) != 0 {
		t.Error("expected transferer not to be called")
	}
}

func TestTransition_TransferFailureLeavesStatus(t *testing.T) {
	f := newFixture()
	s := f.advanceToPostOp(t)
	f.transfers.err = errors.New("no icu bed")

	_, err := f.svc.Transition(context.Background(), s.ID, TransitionRequest{To: StatusCompleted, TargetUnit: "icu"})
	if err == nil {
		t.Fatal("expected transfer error")
	}
	if got := f.status(t, s.ID); got != StatusPostOpCare {
		t.Errorf("expected post_op_care, got %s", got)
	}
	if f.transfers.calls[0].Reason != "post-operative care" {
		t.Errorf("unexpected default reason %q", f.transfers.calls[0].Reason)
	}
}

func TestTransition_PersistFailure(t *testing.T) {
	f := newFixture()
	s := f.schedule(t)
	f.completeChecklist(t, s.ID, ChecklistPreOp)
	f.surgeries.updateErr = errors.New("db down")

	if _, err := f.svc.Transition(context.Background(), s.ID, TransitionRequest{To: StatusPreOpComplete}); err == nil {
		t.Fatal("expected error")
	}
	f.surgeries.updateErr = nil
	if got := f.status(t, s.ID); got != StatusScheduled {
		t.Errorf("expected scheduled, got %s", got)
	}
}

func TestAllowedTransitions(t *testing.T) {
	tests := []struct {
		from Status
		want []Status
	}{
		{StatusScheduled, []Status{StatusPreOpComplete, StatusCancelled}},
		{StatusInProgress, []Status{StatusSurgeryComplete, StatusCancelled}},
		{StatusPostOpCare, []Status{StatusCompleted}},
		{StatusCompleted, nil},
		{StatusCancelled, nil},
	}
	for _, tt := range tests {
		t.Run(string(tt.from), func(t *testing.T) {
			got := AllowedTransitions(tt.from)
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("got %v, want %v", got, tt.want)
				}
			}
		})
	}
}

// -- Notes and delete --

func TestUpdateNotes_ComplicationsFrozenOnceCompleted(t *testing.T) {
	f := newFixture()
	s := f.advanceToPostOp(t)
	ctx := context.Background()
	if _, err := f.svc.Transition(ctx, s.ID, TransitionRequest{To: StatusCompleted, TargetUnit: "ward"}); err != nil {
		t.Fatalf("complete: %v", err)
	}

	if _, err := f.svc.UpdateNotes(ctx, s.ID, NotesChange{Complications: strPtr("bleeding")}); !errors.Is(err, ErrImmutableField) {
		t.Errorf("expected ErrImmutableField, got %v", err)
	}
	updated, err := f.svc.UpdateNotes(ctx, s.ID, NotesChange{PostOpNotes: strPtr("discharged day 2")})
	if err != nil {
		t.Fatalf("post-op notes: %v", err)
	}
	if *updated.PostOpNotes != "discharged day 2" {
		t.Error("expected post-op notes to be updated")
	}
}

func TestDelete(t *testing.T) {
	f := newFixture()
	s := f.schedule(t)
	ctx := context.Background()
	f.completeChecklist(t, s.ID, ChecklistPreOp)

	if err := f.svc.Delete(ctx, s.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := f.svc.Get(ctx, s.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if len(f.checklists.items) != 0 {
		t.Error("expected checklists to be removed")
	}
}

// advanceTo schedules a surgery and walks it along the pathway to target.
func (f *fixture) advanceTo(t *testing.T, target Status) *Surgery {
	t.Helper()
	ctx := context.Background()
	if target == StatusCancelled {
		s := f.schedule(t)
		if _, err := f.svc.Transition(ctx, s.ID, TransitionRequest{To: StatusCancelled, Reason: "patient declined"}); err != nil {
			t.Fatalf("cancel: %v", err)
		}
		return s
	}
	s := f.schedule(t)
	steps := []struct {
		kinds []ChecklistKind
		req   TransitionRequest
	}{
		{[]ChecklistKind{ChecklistPreOp}, TransitionRequest{To: StatusPreOpComplete}},
		{[]ChecklistKind{ChecklistSignIn, ChecklistTimeOut}, TransitionRequest{To: StatusInProgress}},
		{nil, TransitionRequest{To: StatusSurgeryComplete, IntraOpNotes: strPtr("ok")}},
		{[]ChecklistKind{ChecklistSignOut}, TransitionRequest{To: StatusPostOpCare}},
		{nil, TransitionRequest{To: StatusCompleted, TargetUnit: "ward"}},
	}
	for _, st := range steps {
		if f.status(t, s.ID) == target {
			break
		}
		for _, k := range st.kinds {
			f.completeChecklist(t, s.ID, k)
		}
		if _, err := f.svc.Transition(ctx, s.ID, st.req); err != nil {
			t.Fatalf("-> %s: %v", st.req.To, err)
		}
	}
	if got := f.status(t, s.ID); got != target {
		t.Fatalf("expected %s, got %s", target, got)
	}
	return s
}

func TestDelete_ByStatus(t *testing.T) {
	tests := []struct {
		status  Status
		wantErr error
	}{
		{StatusScheduled, nil},
		{StatusPreOpComplete, nil},
		{StatusInProgress, nil},
		{StatusSurgeryComplete, ErrInvalidTransition},
		{StatusPostOpCare, ErrHasDependentAdmission},
		{StatusCompleted, ErrHasDependentAdmission},
		{StatusCancelled, ErrInvalidTransition},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			f := newFixture()
			s := f.advanceTo(t, tt.status)
			err := f.svc.Delete(context.Background(), s.ID)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("expected delete to succeed, got %v", err)
				}
				if _, err := f.svc.Get(context.Background(), s.ID); !errors.Is(err, ErrNotFound) {
					t.Errorf("expected ErrNotFound after delete, got %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if got := f.status(t, s.ID); got != tt.status {
				t.Errorf("expected surgery to remain %s, got %s", tt.status, got)
			}
		})
	}
}

func TestDelete_DependentAdmission(t *testing.T) {
	f := newFixture()
	s := f.schedule(t)
	f.admissions.has[s.ID] = true
	if err := f.svc.Delete(context.Background(), s.ID); !errors.Is(err, ErrHasDependentAdmission) {
		t.Errorf("expected ErrHasDependentAdmission, got %v", err)
	}
	if got := f.status(t, s.ID); got != StatusScheduled {
		t.Errorf("expected scheduled, got %s", got)
	}
}

func TestList_FilterByStatus(t *testing.T) {
	f := newFixture()
	f.schedule(t)
	s := f.schedule(t)
	ctx := context.Background()
	if _, err := f.svc.Transition(ctx, s.ID, TransitionRequest{To: StatusCancelled, Reason: "duplicate"}); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	items, total, err := f.svc.List(ctx, ListFilter{Status: StatusCancelled}, 10, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 1 || items[0].ID != s.ID {
		t.Errorf("expected the cancelled surgery only, got %d", total)
	}
	if _, _, err := f.svc.List(ctx, ListFilter{Status: "bogus"}, 10, 0); !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}
