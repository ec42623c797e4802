package surgery

import (
	"context"
	"fmt"
	"strings"
	"time"
)

type edge struct {
	from, to Status
}

// guardFunc returns nil when the transition may proceed.
type guardFunc func(ctx context.Context, s *Service, cur *Surgery, req TransitionRequest) error

// applyFunc mutates the copy that will be persisted.
type applyFunc func(next *Surgery, req TransitionRequest, now time.Time)

type rule struct {
	guard guardFunc
	apply applyFunc
	// transfer marks the edge whose persistence is delegated to the Transferer.
	transfer bool
}

// transitions is the complete set of legal edges.
var transitions = map[edge]rule{
	{StatusScheduled, StatusPreOpComplete}: {
		guard: requireChecklists(ChecklistPreOp),
		apply: func(next *Surgery, _ TransitionRequest, _ time.Time) {
			next.PreOpChecklistComplete = true
		},
	},
	{StatusPreOpComplete, StatusInProgress}: {
		guard: requireChecklists(ChecklistSignIn, ChecklistTimeOut),
		apply: func(next *Surgery, _ TransitionRequest, _ time.Time) {
			next.WHOChecklistComplete = true
		},
	},
	{StatusInProgress, StatusSurgeryComplete}: {
		guard: func(_ context.Context, _ *Service, cur *Surgery, req TransitionRequest) error {
			if nonEmpty(req.IntraOpNotes) || nonEmpty(cur.IntraOpNotes) {
				return nil
			}
			return ErrNotesRequired
		},
		apply: func(next *Surgery, req TransitionRequest, _ time.Time) {
			if nonEmpty(req.IntraOpNotes) {
				next.IntraOpNotes = req.IntraOpNotes
			}
			if req.Complications != nil {
				next.Complications = req.Complications
			}
		},
	},
	{StatusSurgeryComplete, StatusPostOpCare}: {
		guard: requireChecklists(ChecklistSignOut),
		apply: func(next *Surgery, req TransitionRequest, _ time.Time) {
			next.SignOutComplete = true
			if nonEmpty(req.PostOpNotes) {
				next.PostOpNotes = req.PostOpNotes
			}
		},
	},
	{StatusPostOpCare, StatusCompleted}: {
		guard: func(_ context.Context, _ *Service, _ *Surgery, req TransitionRequest) error {
			switch req.TargetUnit {
			case "icu", "ward":
				return nil
			}
			return fmt.Errorf("%w: target_unit must be icu or ward", ErrValidation)
		},
		apply: func(next *Surgery, req TransitionRequest, _ time.Time) {
			if nonEmpty(req.PostOpNotes) {
				next.PostOpNotes = req.PostOpNotes
			}
		},
		transfer: true,
	},
	{StatusScheduled, StatusCancelled}:     cancelRule,
	{StatusPreOpComplete, StatusCancelled}: cancelRule,
	{StatusInProgress, StatusCancelled}:    cancelRule,
}

var cancelRule = rule{
	guard: func(_ context.Context, _ *Service, _ *Surgery, req TransitionRequest) error {
		if strings.TrimSpace(req.Reason) == "" {
			return ErrReasonRequired
		}
		return nil
	},
	apply: func(next *Surgery, req TransitionRequest, _ time.Time) {
		reason := strings.TrimSpace(req.Reason)
		next.CancelReason = &reason
	},
}

func requireChecklists(kinds ...ChecklistKind) guardFunc {
	return func(ctx context.Context, s *Service, cur *Surgery, _ TransitionRequest) error {
		for _, k := range kinds {
			ok, err := s.gate.Satisfied(ctx, cur.ID, k)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: %s", ErrIncompleteChecklist, k)
			}
		}
		return nil
	}
}

func nonEmpty(p *string) bool {
	return p != nil && strings.TrimSpace(*p) != ""
}

// AllowedTransitions lists the states reachable from s in one step.
func AllowedTransitions(s Status) []Status {
	order := []Status{
		StatusPreOpComplete, StatusInProgress, StatusSurgeryComplete,
		StatusPostOpCare, StatusCompleted, StatusCancelled,
	}
	var out []Status
	for _, to := range order {
		if _, ok := transitions[edge{s, to}]; ok {
			out = append(out, to)
		}
	}
	return out
}

// classify explains why cur -> to is not in the table.
func classify(cur, to Status) error {
	if cur == to && to == StatusCancelled {
		return nil
	}
	if cur != StatusCancelled && to != StatusScheduled && to != StatusCancelled {
		if r, ok := rank[to]; ok && r <= rank[cur] {
			return fmt.Errorf("%w: surgery is already %s", ErrAlreadyTransitioned, cur)
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, cur, to)
}
