// Package bed manages the fixed catalog of ICU/CCU beds, ward beds and
// operating rooms and their occupancy.
package bed

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Kind names a pool of interchangeable resources.
type Kind string

const (
	KindICU           Kind = "icu"
	KindWard          Kind = "ward"
	KindOperatingRoom Kind = "operating_room"
)

func (k Kind) Valid() bool {
	switch k {
	case KindICU, KindWard, KindOperatingRoom:
		return true
	}
	return false
}

var (
	ErrNoResourceAvailable = errors.New("no resource available")
	ErrAlreadyOccupied     = errors.New("resource already occupied")
	ErrUnknownResource     = errors.New("unknown resource")
	ErrUnknownPool         = errors.New("unknown pool kind")
)

// Resource is one named unit and its current occupant, if any.
type Resource struct {
	Name       string     `json:"name"`
	Kind       Kind       `json:"pool_kind"`
	OccupantID *uuid.UUID `json:"occupant_admission_id,omitempty"`
}

func (r Resource) Available() bool { return r.OccupantID == nil }

// Handle identifies an acquired resource.
type Handle struct {
	Name string `json:"name"`
	Kind Kind   `json:"pool_kind"`
}

// Observer is told the size and occupancy of a pool after every change.
// It runs outside the pool lock.
type Observer func(kind Kind, total, occupied int)

// Pool tracks occupancy for every configured resource. A single mutex guards
// the occupancy map; it is never held while calling out.
type Pool struct {
	mu       sync.Mutex
	byKind   map[Kind][]string
	kindOf   map[string]Kind
	occupant map[string]uuid.UUID
	observer Observer
}

// NewPool builds a pool from per-kind catalogs. Names must be unique across
// all kinds.
func NewPool(catalogs map[Kind][]string) (*Pool, error) {
	p := &Pool{
		byKind:   make(map[Kind][]string, len(catalogs)),
		kindOf:   make(map[string]Kind),
		occupant: make(map[string]uuid.UUID),
	}
	for kind, names := range catalogs {
		if !kind.Valid() {
			return nil, fmt.Errorf("%w: %s", ErrUnknownPool, kind)
		}
		sorted := make([]string, 0, len(names))
		for _, n := range names {
			if n == "" {
				return nil, fmt.Errorf("empty resource name in %s catalog", kind)
			}
			if other, dup := p.kindOf[n]; dup {
				return nil, fmt.Errorf("resource %q listed in %s and %s", n, other, kind)
			}
			p.kindOf[n] = kind
			sorted = append(sorted, n)
		}
		sort.Slice(sorted, func(i, j int) bool { return naturalLess(sorted[i], sorted[j]) })
		p.byKind[kind] = sorted
	}
	return p, nil
}

// OnChange installs an observer and reports the current state of every pool.
func (p *Pool) OnChange(obs Observer) {
	p.mu.Lock()
	p.observer = obs
	counts := p.countsLocked()
	p.mu.Unlock()
	for kind, c := range counts {
		obs(kind, c[0], c[1])
	}
}

func (p *Pool) countsLocked() map[Kind][2]int {
	out := make(map[Kind][2]int, len(p.byKind))
	for kind, names := range p.byKind {
		occupied := 0
		for _, n := range names {
			if _, ok := p.occupant[n]; ok {
				occupied++
			}
		}
		out[kind] = [2]int{len(names), occupied}
	}
	return out
}

func (p *Pool) notify(kind Kind, obs Observer, total, occupied int) {
	if obs != nil {
		obs(kind, total, occupied)
	}
}

func (p *Pool) occupiedLocked(kind Kind) int {
	n := 0
	for _, name := range p.byKind[kind] {
		if _, ok := p.occupant[name]; ok {
			n++
		}
	}
	return n
}

// Kinds returns the configured pool kinds.
func (p *Pool) Kinds() []Kind {
	p.mu.Lock()
	defer p.mu.Unlock()
	kinds := make([]Kind, 0, len(p.byKind))
	for k := range p.byKind {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Has reports whether name belongs to the kind's catalog.
func (p *Pool) Has(kind Kind, name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	k, ok := p.kindOf[name]
	return ok && k == kind
}

// ListAvailable returns the free resource names of a kind in allocation order.
func (p *Pool) ListAvailable(kind Kind) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var free []string
	for _, n := range p.byKind[kind] {
		if _, taken := p.occupant[n]; !taken {
			free = append(free, n)
		}
	}
	return free
}

// IsAvailable is true when name exists and has no occupant.
func (p *Pool) IsAvailable(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.kindOf[name]; !ok {
		return false
	}
	_, taken := p.occupant[name]
	return !taken
}

// Occupant returns the admission holding name.
func (p *Pool) Occupant(name string) (uuid.UUID, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id, ok := p.occupant[name]
	return id, ok
}

// Acquire marks a resource as held by occupant. With an empty name the first
// free resource in natural name order is taken.
func (p *Pool) Acquire(kind Kind, name string, occupant uuid.UUID) (Handle, error) {
	p.mu.Lock()
	names, ok := p.byKind[kind]
	if !ok {
		p.mu.Unlock()
		return Handle{}, fmt.Errorf("%w: %s", ErrUnknownPool, kind)
	}

	if name != "" {
		if k, ok := p.kindOf[name]; !ok || k != kind {
			p.mu.Unlock()
			return Handle{}, fmt.Errorf("%w: %s in %s", ErrUnknownResource, name, kind)
		}
		if _, taken := p.occupant[name]; taken {
			p.mu.Unlock()
			return Handle{}, fmt.Errorf("%w: %s", ErrAlreadyOccupied, name)
		}
	} else {
		for _, n := range names {
			if _, taken := p.occupant[n]; !taken {
				name = n
				break
			}
		}
		if name == "" {
			p.mu.Unlock()
			return Handle{}, fmt.Errorf("%w: %s", ErrNoResourceAvailable, kind)
		}
	}

	p.occupant[name] = occupant
	total, occupied, obs := len(names), p.occupiedLocked(kind), p.observer
	p.mu.Unlock()

	p.notify(kind, obs, total, occupied)
	return Handle{Name: name, Kind: kind}, nil
}

// Release frees name. Releasing a free or unknown resource is a no-op.
func (p *Pool) Release(name string) {
	p.release(name, nil)
}

// ReleaseFor frees name only while it is still held by occupant and reports
// whether it did.
func (p *Pool) ReleaseFor(name string, occupant uuid.UUID) bool {
	return p.release(name, &occupant)
}

func (p *Pool) release(name string, owner *uuid.UUID) bool {
	p.mu.Lock()
	current, taken := p.occupant[name]
	if !taken || (owner != nil && current != *owner) {
		p.mu.Unlock()
		return false
	}
	delete(p.occupant, name)
	kind := p.kindOf[name]
	total, occupied, obs := len(p.byKind[kind]), p.occupiedLocked(kind), p.observer
	p.mu.Unlock()

	p.notify(kind, obs, total, occupied)
	return true
}

// Restore replaces the occupancy map, typically from active admissions at
// boot. Names outside the catalog are skipped and returned.
func (p *Pool) Restore(occupancy map[string]uuid.UUID) (unknown []string) {
	p.mu.Lock()
	p.occupant = make(map[string]uuid.UUID, len(occupancy))
	for name, id := range occupancy {
		if _, ok := p.kindOf[name]; !ok {
			unknown = append(unknown, name)
			continue
		}
		p.occupant[name] = id
	}
	counts, obs := p.countsLocked(), p.observer
	p.mu.Unlock()

	for kind, c := range counts {
		p.notify(kind, obs, c[0], c[1])
	}
	sort.Strings(unknown)
	return unknown
}

// Snapshot lists every resource of a kind with its occupant.
func (p *Pool) Snapshot(kind Kind) []Resource {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Resource, 0, len(p.byKind[kind]))
	for _, n := range p.byKind[kind] {
		r := Resource{Name: n, Kind: kind}
		if id, ok := p.occupant[n]; ok {
			id := id
			r.OccupantID = &id
		}
		out = append(out, r)
	}
	return out
}
