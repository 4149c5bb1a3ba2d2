// Package memory is an in-process store driver. It mirrors the conditional
// semantics of the Postgres driver under a single mutex, which makes it the
// reference implementation for the concurrency tests and a zero-dependency
// backend for local runs.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/meetflow/meetflow/internal/model"
	"github.com/meetflow/meetflow/internal/store"
)

// Store holds the shared state behind the two record-store views.
type Store struct {
	mu sync.Mutex

	events map[string]*model.Event
	regs   map[string]*model.Registration
	// byPair indexes registration ids by participant+"\x00"+event and is
	// the uniqueness guard for CreateIfAbsent.
	byPair   map[string]string
	byTicket map[string]string
}

// New returns an empty store.
func New() *Store {
	return &Store{
		events:   make(map[string]*model.Event),
		regs:     make(map[string]*model.Registration),
		byPair:   make(map[string]string),
		byTicket: make(map[string]string),
	}
}

// Events returns the event-store view.
func (s *Store) Events() *EventStore { return &EventStore{s: s} }

// Registrations returns the registration-store view.
func (s *Store) Registrations() *RegistrationStore { return &RegistrationStore{s: s} }

func pairKey(participantID, eventID string) string {
	return participantID + "\x00" + eventID
}

// EventStore implements store.EventStore over the shared state.
type EventStore struct {
	s *Store
}

func (v *EventStore) Create(_ context.Context, e *model.Event) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	v.s.events[e.ID] = cloneEvent(e)
	return nil
}

func (v *EventStore) Get(_ context.Context, id string) (*model.Event, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	e, ok := v.s.events[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneEvent(e), nil
}

func (v *EventStore) List(_ context.Context) ([]model.Event, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	out := make([]model.Event, 0, len(v.s.events))
	for _, e := range v.s.events {
		out = append(out, *cloneEvent(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (v *EventStore) Update(_ context.Context, e *model.Event) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	cur, ok := v.s.events[e.ID]
	if !ok {
		return store.ErrNotFound
	}
	next := cloneEvent(e)
	// Counters and stock are owned by the conditional primitives.
	next.RegistrationCount = cur.RegistrationCount
	next.TotalRevenueCents = cur.TotalRevenueCents
	next.FormLocked = cur.FormLocked
	next.Items = cloneItems(cur.Items)
	next.UpdatedAt = time.Now().UTC()
	v.s.events[e.ID] = next
	return nil
}

func (v *EventStore) ReplaceItems(_ context.Context, eventID string, items []model.Item) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	e, ok := v.s.events[eventID]
	if !ok {
		return store.ErrNotFound
	}
	e.Items = cloneItems(items)
	e.UpdatedAt = time.Now().UTC()
	return nil
}

func (v *EventStore) Delete(_ context.Context, id string) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	e, ok := v.s.events[id]
	if !ok {
		return store.ErrNotFound
	}
	if e.Status != model.StatusDraft {
		return store.ErrInvalidState
	}
	delete(v.s.events, id)
	return nil
}

func (v *EventStore) TransitionStatus(_ context.Context, id string, from, to model.EventStatus) error {
	if !from.CanTransitionTo(to) {
		return store.ErrInvalidState
	}
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	e, ok := v.s.events[id]
	if !ok {
		return store.ErrNotFound
	}
	if e.Status != from {
		return store.ErrInvalidState
	}
	e.Status = to
	e.UpdatedAt = time.Now().UTC()
	return nil
}

func (v *EventStore) DecrementStock(_ context.Context, eventID, itemID string, qty int) (int, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	e, ok := v.s.events[eventID]
	if !ok {
		return 0, store.ErrNotFound
	}
	item, ok := e.Item(itemID)
	if !ok {
		return 0, store.ErrNotFound
	}
	if item.Stock < qty {
		return 0, store.ErrInsufficientStock
	}
	item.Stock -= qty
	return item.Stock, nil
}

func (v *EventStore) IncrementStock(_ context.Context, eventID, itemID string, qty int) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	e, ok := v.s.events[eventID]
	if !ok {
		return store.ErrNotFound
	}
	item, ok := e.Item(itemID)
	if !ok {
		return store.ErrNotFound
	}
	item.Stock += qty
	return nil
}

func (v *EventStore) IncrementRegistrationCount(_ context.Context, eventID string) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	e, ok := v.s.events[eventID]
	if !ok {
		return store.ErrNotFound
	}
	if e.RegistrationLimit > 0 && e.RegistrationCount >= e.RegistrationLimit {
		return store.ErrLimitReached
	}
	e.RegistrationCount++
	return nil
}

func (v *EventStore) DecrementRegistrationCount(_ context.Context, eventID string) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	e, ok := v.s.events[eventID]
	if !ok {
		return store.ErrNotFound
	}
	if e.RegistrationCount > 0 {
		e.RegistrationCount--
	}
	return nil
}

func (v *EventStore) AdjustRevenue(_ context.Context, eventID string, deltaCents int64) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	e, ok := v.s.events[eventID]
	if !ok {
		return store.ErrNotFound
	}
	e.TotalRevenueCents += deltaCents
	return nil
}

func (v *EventStore) LockForm(_ context.Context, eventID string) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	e, ok := v.s.events[eventID]
	if !ok {
		return store.ErrNotFound
	}
	e.FormLocked = true
	return nil
}

func (v *EventStore) ListDue(_ context.Context, now time.Time) ([]model.Event, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	var due []model.Event
	for _, e := range v.s.events {
		switch e.Status {
		case model.StatusPublished:
			if !now.Before(e.StartAt) || !now.Before(e.EndAt) {
				due = append(due, *cloneEvent(e))
			}
		case model.StatusOngoing, model.StatusClosed:
			if !now.Before(e.EndAt) {
				due = append(due, *cloneEvent(e))
			}
		}
	}
	return due, nil
}

// RegistrationStore implements store.RegistrationStore over the shared
// state.
type RegistrationStore struct {
	s *Store
}

func (v *RegistrationStore) CreateIfAbsent(_ context.Context, r *model.Registration) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	key := pairKey(r.ParticipantID, r.EventID)
	if _, exists := v.s.byPair[key]; exists {
		return store.ErrAlreadyRegistered
	}
	v.s.byPair[key] = r.ID
	v.s.regs[r.ID] = cloneReg(r)
	if r.Ticket != "" {
		v.s.byTicket[r.Ticket] = r.ID
	}
	return nil
}

func (v *RegistrationStore) Get(_ context.Context, id string) (*model.Registration, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	r, ok := v.s.regs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneReg(r), nil
}

func (v *RegistrationStore) GetByPair(_ context.Context, participantID, eventID string) (*model.Registration, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	id, ok := v.s.byPair[pairKey(participantID, eventID)]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneReg(v.s.regs[id]), nil
}

func (v *RegistrationStore) GetByTicket(_ context.Context, ticket string) (*model.Registration, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	id, ok := v.s.byTicket[ticket]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneReg(v.s.regs[id]), nil
}

func (v *RegistrationStore) ListByEvent(_ context.Context, eventID string) ([]model.Registration, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	var out []model.Registration
	for _, r := range v.s.regs {
		if r.EventID == eventID {
			out = append(out, *cloneReg(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (v *RegistrationStore) ListByParticipant(_ context.Context, participantID string) ([]model.Registration, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	var out []model.Registration
	for _, r := range v.s.regs {
		if r.ParticipantID == participantID {
			out = append(out, *cloneReg(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (v *RegistrationStore) IssueTicket(_ context.Context, id, ticket string, payment model.PaymentStatus) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	r, ok := v.s.regs[id]
	if !ok {
		return store.ErrNotFound
	}
	if r.Ticket != "" {
		return store.ErrAlreadyTicketed
	}
	if r.Status != model.RegistrationActive {
		return store.ErrInvalidState
	}
	r.Ticket = ticket
	r.Payment = payment
	r.UpdatedAt = time.Now().UTC()
	v.s.byTicket[ticket] = id
	return nil
}

func (v *RegistrationStore) TransitionPayment(_ context.Context, id string, from, to model.PaymentStatus) error {
	if !from.CanTransitionTo(to) {
		return store.ErrInvalidState
	}
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	r, ok := v.s.regs[id]
	if !ok {
		return store.ErrNotFound
	}
	if r.Payment != from {
		return store.ErrInvalidState
	}
	r.Payment = to
	r.UpdatedAt = time.Now().UTC()
	return nil
}

func (v *RegistrationStore) SetPaymentProof(_ context.Context, id, proof string) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	r, ok := v.s.regs[id]
	if !ok {
		return store.ErrNotFound
	}
	r.PaymentProof = proof
	r.UpdatedAt = time.Now().UTC()
	return nil
}

func (v *RegistrationStore) Cancel(_ context.Context, id string) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	r, ok := v.s.regs[id]
	if !ok {
		return store.ErrNotFound
	}
	if r.Status != model.RegistrationActive {
		return store.ErrInvalidState
	}
	r.Status = model.RegistrationCancelled
	r.UpdatedAt = time.Now().UTC()
	return nil
}

func (v *RegistrationStore) MarkScanned(_ context.Context, id string, at time.Time) (bool, time.Time, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	r, ok := v.s.regs[id]
	if !ok {
		return false, time.Time{}, store.ErrNotFound
	}
	if r.Attended {
		prev := time.Time{}
		if r.AttendedAt != nil {
			prev = *r.AttendedAt
		}
		return true, prev, nil
	}
	r.Attended = true
	t := at
	r.AttendedAt = &t
	r.UpdatedAt = at
	return false, at, nil
}

func (v *RegistrationStore) OverrideAttendance(_ context.Context, id string, marked bool, entry model.AttendanceEntry) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	r, ok := v.s.regs[id]
	if !ok {
		return store.ErrNotFound
	}
	r.Attended = marked
	if marked {
		t := entry.At
		r.AttendedAt = &t
	} else {
		r.AttendedAt = nil
	}
	r.AttendanceLog = append(r.AttendanceLog, entry)
	r.UpdatedAt = entry.At
	return nil
}

// ─── clone helpers ────────────────────────────────────────────────────────────

func cloneEvent(e *model.Event) *model.Event {
	c := *e
	c.Form = append([]model.FormField(nil), e.Form...)
	c.Items = cloneItems(e.Items)
	return &c
}

func cloneItems(items []model.Item) []model.Item {
	return append([]model.Item(nil), items...)
}

func cloneReg(r *model.Registration) *model.Registration {
	c := *r
	if r.Order != nil {
		o := *r.Order
		c.Order = &o
	}
	if r.Answers != nil {
		c.Answers = make(map[string]string, len(r.Answers))
		for k, v := range r.Answers {
			c.Answers[k] = v
		}
	}
	if r.AttendedAt != nil {
		t := *r.AttendedAt
		c.AttendedAt = &t
	}
	c.AttendanceLog = append([]model.AttendanceEntry(nil), r.AttendanceLog...)
	return &c
}
