// Package notification stores in-app notifications for clinical staff and
// forwards them to external publishers (a message broker in production).
// Delivery is fire-and-forget from the caller's point of view.
package notification

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ACW-Developers/urological-patient-mis-sub001/pkg/clock"
)

// Notification is a message addressed to a single user about one entity.
type Notification struct {
	ID                string     `json:"id"`
	UserID            string     `json:"user_id"`
	Title             string     `json:"title"`
	Message           string     `json:"message"`
	RelatedEntityType string     `json:"related_entity_type,omitempty"`
	RelatedEntityID   string     `json:"related_entity_id,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	ReadAt            *time.Time `json:"read_at,omitempty"`
}

var ErrNotFound = errors.New("notification not found")

// Sink accepts notifications. Implementations must be safe for concurrent use.
type Sink interface {
	Notify(ctx context.Context, n Notification) error
}

// Publisher forwards a stored notification to an external channel.
type Publisher interface {
	Publish(ctx context.Context, n *Notification) error
}

// Send delivers n and logs a failure instead of returning it. Callers use it
// after a state change has been committed.
func Send(ctx context.Context, sink Sink, logger zerolog.Logger, n Notification) {
	if sink == nil {
		return
	}
	if err := sink.Notify(ctx, n); err != nil {
		logger.Warn().Err(err).
			Str("user_id", n.UserID).
			Str("entity_type", n.RelatedEntityType).
			Str("entity_id", n.RelatedEntityID).
			Msg("notification delivery failed")
	}
}

// ---------------------------------------------------------------------------
// Manager
// ---------------------------------------------------------------------------

// Manager keeps notifications in memory for the in-app inbox and fans each one
// out to the configured publishers.
type Manager struct {
	mu            sync.RWMutex
	notifications map[string]*Notification
	publishers    []Publisher
	clock         clock.Clock
}

func NewManager(clk clock.Clock, publishers ...Publisher) *Manager {
	if clk == nil {
		clk = clock.System()
	}
	return &Manager{
		notifications: make(map[string]*Notification),
		publishers:    publishers,
		clock:         clk,
	}
}

// Notify stores n and publishes it. The notification is kept even if a
// publisher fails; publisher errors are joined and returned.
func (m *Manager) Notify(ctx context.Context, n Notification) error {
	if n.UserID == "" {
		return fmt.Errorf("user_id is required")
	}
	if n.Title == "" {
		return fmt.Errorf("title is required")
	}
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	n.CreatedAt = m.clock.Now().UTC()

	stored := n
	m.mu.Lock()
	m.notifications[n.ID] = &stored
	m.mu.Unlock()

	var errs []error
	for _, p := range m.publishers {
		if err := p.Publish(ctx, &n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) Get(_ context.Context, id string) (*Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.notifications[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *n
	return &cp, nil
}

// ListForUser returns the user's notifications, newest first.
func (m *Manager) ListForUser(_ context.Context, userID string, unreadOnly bool, limit int) []*Notification {
	m.mu.RLock()
	var result []*Notification
	for _, n := range m.notifications {
		if n.UserID != userID {
			continue
		}
		if unreadOnly && n.ReadAt != nil {
			continue
		}
		cp := *n
		result = append(result, &cp)
	}
	m.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result
}

// MarkRead marks a notification read. Only the addressee may do so.
func (m *Manager) MarkRead(_ context.Context, id, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notifications[id]
	if !ok || n.UserID != userID {
		return ErrNotFound
	}
	if n.ReadAt == nil {
		now := m.clock.Now().UTC()
		n.ReadAt = &now
	}
	return nil
}

// ---------------------------------------------------------------------------
// Recording sink (test double)
// ---------------------------------------------------------------------------

// RecordingSink captures notifications and optionally fails.
type RecordingSink struct {
	mu         sync.Mutex
	calls      []Notification
	ShouldFail bool
}

func (r *RecordingSink) Notify(_ context.Context, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, n)
	if r.ShouldFail {
		return errors.New("sink unavailable")
	}
	return nil
}

// Calls returns a copy of the recorded notifications.
func (r *RecordingSink) Calls() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, len(r.calls))
	copy(out, r.calls)
	return out
}

type observedSink struct {
	sink      Sink
	onFailure func()
}

// Observed wraps sink so that onFailure runs after every failed delivery.
func Observed(sink Sink, onFailure func()) Sink {
	return observedSink{sink: sink, onFailure: onFailure}
}

func (o observedSink) Notify(ctx context.Context, n Notification) error {
	err := o.sink.Notify(ctx, n)
	if err != nil && o.onFailure != nil {
		o.onFailure()
	}
	return err
}
