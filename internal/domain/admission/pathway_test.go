package admission

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ACW-Developers/urological-patient-mis-sub001/internal/domain/bed"
	"github.com/ACW-Developers/urological-patient-mis-sub001/internal/domain/surgery"
	"github.com/ACW-Developers/urological-patient-mis-sub001/pkg/clock"
)

// In-memory surgery stores so the pathway can run against the real coordinator.

type memSurgeries struct {
	mu    sync.Mutex
	items map[uuid.UUID]surgery.Surgery
}

func (m *memSurgeries) Create(_ context.Context, s *surgery.Surgery) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[s.ID] = *s
	return nil
}

func (m *memSurgeries) GetByID(_ context.Context, id uuid.UUID) (*surgery.Surgery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.items[id]
	if !ok {
		return nil, surgery.ErrNotFound
	}
	return &s, nil
}

func (m *memSurgeries) Update(_ context.Context, s *surgery.Surgery) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[s.ID]; !ok {
		return surgery.ErrNotFound
	}
	m.items[s.ID] = *s
	return nil
}

func (m *memSurgeries) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, id)
	return nil
}

func (m *memSurgeries) List(_ context.Context, _ surgery.ListFilter, _, _ int) ([]*surgery.Surgery, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*surgery.Surgery
	for _, s := range m.items {
		s := s
		out = append(out, &s)
	}
	return out, len(out), nil
}

type memChecklists struct {
	mu    sync.Mutex
	items map[uuid.UUID]surgery.Checklist
}

func (m *memChecklists) Create(_ context.Context, c *surgery.Checklist) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[c.ID] = *c
	return nil
}

func (m *memChecklists) GetByID(_ context.Context, id uuid.UUID) (*surgery.Checklist, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.items[id]
	if !ok {
		return nil, surgery.ErrChecklistNotFound
	}
	return &c, nil
}

func (m *memChecklists) GetBySurgeryAndKind(_ context.Context, surgeryID uuid.UUID, kind surgery.ChecklistKind) (*surgery.Checklist, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.items {
		if c.SurgeryID == surgeryID && c.Kind == kind {
			return &c, nil
		}
	}
	return nil, surgery.ErrChecklistNotFound
}

func (m *memChecklists) ListBySurgery(_ context.Context, surgeryID uuid.UUID) ([]*surgery.Checklist, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*surgery.Checklist
	for _, c := range m.items {
		if c.SurgeryID == surgeryID {
			c := c
			out = append(out, &c)
		}
	}
	return out, nil
}

func (m *memChecklists) Update(_ context.Context, c *surgery.Checklist) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[c.ID] = *c
	return nil
}

func (m *memChecklists) DeleteBySurgery(_ context.Context, surgeryID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, c := range m.items {
		if c.SurgeryID == surgeryID {
			delete(m.items, id)
		}
	}
	return nil
}

type pathwayFixture struct {
	svc       *surgery.Service
	coord     *Coordinator
	pool      *bed.Pool
	repo      *mockRepo
	surgeries *memSurgeries
}

func newPathwayFixture(t *testing.T, icu []string) *pathwayFixture {
	t.Helper()
	pool, err := bed.NewPool(map[bed.Kind][]string{
		bed.KindICU:  icu,
		bed.KindWard: {"W-101", "W-102"},
	})
	require.NoError(t, err)

	clk := clock.NewFixed(time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC))
	f := &pathwayFixture{
		pool:      pool,
		repo:      newMockRepo(),
		surgeries: &memSurgeries{items: make(map[uuid.UUID]surgery.Surgery)},
	}
	f.coord = NewCoordinator(pool, f.repo, f.surgeries, WithClock(clk))
	gate := surgery.NewChecklistGate(&memChecklists{items: make(map[uuid.UUID]surgery.Checklist)}, clk)
	f.svc = surgery.NewService(f.surgeries, gate, f.coord, f.coord, surgery.WithClock(clk))
	return f
}

func (f *pathwayFixture) complete(t *testing.T, id uuid.UUID, kind surgery.ChecklistKind) {
	t.Helper()
	ctx := context.Background()
	c, err := f.svc.OpenChecklist(ctx, id, kind)
	require.NoError(t, err)
	var items []surgery.ChecklistItem
	for _, l := range surgery.Catalog(kind) {
		items = append(items, surgery.ChecklistItem{Label: l, Checked: true})
	}
	_, err = f.svc.CompleteChecklist(ctx, c.ID, items, "nurse-1")
	require.NoError(t, err)
}

// toPostOp schedules a surgery and runs it through theatre.
func (f *pathwayFixture) toPostOp(t *testing.T) *surgery.Surgery {
	t.Helper()
	ctx := context.Background()
	s := &surgery.Surgery{
		PatientID:     uuid.New(),
		SurgeonID:     uuid.New(),
		SurgeryType:   "urology",
		SurgeryName:   "Radical nephrectomy",
		ScheduledDate: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		ScheduledTime: "09:00",
	}
	require.NoError(t, f.svc.Schedule(ctx, s))

	notes := "uneventful"
	steps := []struct {
		kinds []surgery.ChecklistKind
		req   surgery.TransitionRequest
	}{
		{[]surgery.ChecklistKind{surgery.ChecklistPreOp}, surgery.TransitionRequest{To: surgery.StatusPreOpComplete}},
		{[]surgery.ChecklistKind{surgery.ChecklistSignIn, surgery.ChecklistTimeOut}, surgery.TransitionRequest{To: surgery.StatusInProgress}},
		{nil, surgery.TransitionRequest{To: surgery.StatusSurgeryComplete, IntraOpNotes: &notes}},
		{[]surgery.ChecklistKind{surgery.ChecklistSignOut}, surgery.TransitionRequest{To: surgery.StatusPostOpCare}},
	}
	for _, st := range steps {
		for _, k := range st.kinds {
			f.complete(t, s.ID, k)
		}
		_, err := f.svc.Transition(ctx, s.ID, st.req)
		require.NoError(t, err, "-> %s", st.req.To)
	}
	return s
}

func TestPathway_ICUFullKeepsPostOpCare(t *testing.T) {
	f := newPathwayFixture(t, []string{"ICU-1", "ICU-2"})
	for _, b := range []string{"ICU-1", "ICU-2"} {
		_, err := f.pool.Acquire(bed.KindICU, b, uuid.New())
		require.NoError(t, err)
	}
	s := f.toPostOp(t)
	ctx := context.Background()

	_, err := f.svc.Transition(ctx, s.ID, surgery.TransitionRequest{To: surgery.StatusCompleted, TargetUnit: "icu"})
	require.ErrorIs(t, err, ErrNoBedAvailable)

	got, err := f.svc.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, surgery.StatusPostOpCare, got.Status)
	assert.Empty(t, f.repo.items)
	assert.Empty(t, f.pool.ListAvailable(bed.KindICU))

	// a ward transfer still goes through afterwards
	_, err = f.svc.Transition(ctx, s.ID, surgery.TransitionRequest{To: surgery.StatusCompleted, TargetUnit: "ward"})
	require.NoError(t, err)
	got, err = f.svc.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, surgery.StatusCompleted, got.Status)
	assert.Len(t, f.repo.items, 1)
}

func TestPathway_ICUTransferAdvancesSurgery(t *testing.T) {
	f := newPathwayFixture(t, []string{"ICU-1", "ICU-2"})
	s := f.toPostOp(t)
	ctx := context.Background()

	_, err := f.svc.Transition(ctx, s.ID, surgery.TransitionRequest{To: surgery.StatusCompleted, TargetUnit: "icu"})
	require.NoError(t, err)

	got, err := f.svc.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, surgery.StatusCompleted, got.Status)
	assert.Equal(t, []string{"ICU-2"}, f.pool.ListAvailable(bed.KindICU))

	// the admission now blocks deletion
	assert.ErrorIs(t, f.svc.Delete(ctx, s.ID), surgery.ErrHasDependentAdmission)
}
