package surgery

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/ACW-Developers/urological-patient-mis-sub001/pkg/clock"
)

// ChecklistGate owns checklist instances and answers whether a gate is
// satisfied. Callers serialize access per surgery.
type ChecklistGate struct {
	repo  ChecklistRepository
	clock clock.Clock
}

func NewChecklistGate(repo ChecklistRepository, clk clock.Clock) *ChecklistGate {
	if clk == nil {
		clk = clock.System()
	}
	return &ChecklistGate{repo: repo, clock: clk}
}

// Open returns the surgery's checklist of the given kind, creating it from the
// catalog with every item unchecked on first access.
func (g *ChecklistGate) Open(ctx context.Context, surgeryID uuid.UUID, kind ChecklistKind) (*Checklist, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown checklist kind %q", ErrValidation, kind)
	}
	c, err := g.repo.GetBySurgeryAndKind(ctx, surgeryID, kind)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, ErrChecklistNotFound) {
		return nil, err
	}

	c = &Checklist{
		ID:        uuid.New(),
		SurgeryID: surgeryID,
		Kind:      kind,
		Items:     newItems(kind),
		CreatedAt: g.clock.Now(),
	}
	if err := g.repo.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (g *ChecklistGate) Get(ctx context.Context, id uuid.UUID) (*Checklist, error) {
	return g.repo.GetByID(ctx, id)
}

// IsSatisfied is true iff the checklist exists and every item is checked.
func (g *ChecklistGate) IsSatisfied(ctx context.Context, checklistID uuid.UUID) bool {
	c, err := g.repo.GetByID(ctx, checklistID)
	if err != nil {
		return false
	}
	return c.Completed && c.AllChecked()
}

// Satisfied checks the gate for a surgery without creating the checklist.
func (g *ChecklistGate) Satisfied(ctx context.Context, surgeryID uuid.UUID, kind ChecklistKind) (bool, error) {
	c, err := g.repo.GetBySurgeryAndKind(ctx, surgeryID, kind)
	if errors.Is(err, ErrChecklistNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return c.Completed && c.AllChecked(), nil
}

// Complete records the checklist as done by actor. items must carry exactly
// the catalog labels in catalog order; any unchecked item fails the call and
// leaves the stored checklist untouched.
func (g *ChecklistGate) Complete(ctx context.Context, checklistID uuid.UUID, items []ChecklistItem, actor string) (*Checklist, error) {
	if actor == "" {
		return nil, fmt.Errorf("%w: actor is required", ErrValidation)
	}
	c, err := g.repo.GetByID(ctx, checklistID)
	if err != nil {
		return nil, err
	}
	if c.Completed {
		return nil, ErrChecklistLocked
	}

	labels := checklistCatalog[c.Kind]
	if len(items) != len(labels) {
		return nil, fmt.Errorf("%w: expected %d items, got %d", ErrChecklistMismatch, len(labels), len(items))
	}
	var unchecked []string
	for i, it := range items {
		if it.Label != labels[i] {
			return nil, fmt.Errorf("%w: item %d is %q, expected %q", ErrChecklistMismatch, i+1, it.Label, labels[i])
		}
		if !it.Checked {
			unchecked = append(unchecked, it.Label)
		}
	}
	if len(unchecked) > 0 {
		return nil, fmt.Errorf("%w: %d of %d items unchecked", ErrIncompleteChecklist, len(unchecked), len(labels))
	}

	next := *c
	next.Items = make([]ChecklistItem, len(items))
	copy(next.Items, items)
	next.Completed = true
	now := g.clock.Now()
	next.CompletedAt = &now
	next.CompletedBy = &actor

	if err := g.repo.Update(ctx, &next); err != nil {
		return nil, err
	}
	return &next, nil
}
