package model

// EventStatus is the event lifecycle state. Transitions are forward-only; no
// state is re-enterable.
type EventStatus string

const (
	StatusDraft     EventStatus = "draft"
	StatusPublished EventStatus = "published"
	StatusOngoing   EventStatus = "ongoing"
	StatusClosed    EventStatus = "closed"
	StatusCompleted EventStatus = "completed"
)

// eventTransitions is the single source of truth for the event state
// machine. Any transition not listed here is rejected.
var eventTransitions = map[EventStatus][]EventStatus{
	StatusDraft:     {StatusPublished},
	StatusPublished: {StatusOngoing, StatusClosed, StatusCompleted},
	StatusOngoing:   {StatusClosed, StatusCompleted},
	StatusClosed:    {StatusCompleted},
	StatusCompleted: nil,
}

// Valid reports whether the status is one of the known values.
func (s EventStatus) Valid() bool {
	_, ok := eventTransitions[s]
	return ok
}

// CanTransitionTo reports whether the state machine permits moving from s to
// the given state.
func (s EventStatus) CanTransitionTo(to EventStatus) bool {
	for _, next := range eventTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transitions exist from s.
func (s EventStatus) Terminal() bool {
	return len(eventTransitions[s]) == 0
}

// Editable reports whether organizer edits are permitted at all in this
// state. Which fields may change is decided by the lifecycle controller.
func (s EventStatus) Editable() bool {
	return s == StatusDraft || s == StatusPublished
}

// PaymentStatus is a registration's financial-clearance sub-state,
// independent of its Active/Cancelled status.
type PaymentStatus string

const (
	// PaymentFree is terminal and assigned immediately when no fee applies.
	PaymentFree    PaymentStatus = "free"
	PaymentPending PaymentStatus = "pending_approval"
	PaymentPaid    PaymentStatus = "paid"
	// PaymentRejected allows re-submission of proof (back to pending) but
	// never moves directly to paid.
	PaymentRejected PaymentStatus = "rejected"
)

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentFree:     nil,
	PaymentPending:  {PaymentPaid, PaymentRejected},
	PaymentRejected: {PaymentPending},
	PaymentPaid:     nil,
}

// Valid reports whether the payment status is one of the known values.
func (p PaymentStatus) Valid() bool {
	_, ok := paymentTransitions[p]
	return ok
}

// CanTransitionTo reports whether the payment state machine permits moving
// from p to the given state.
func (p PaymentStatus) CanTransitionTo(to PaymentStatus) bool {
	for _, next := range paymentTransitions[p] {
		if next == to {
			return true
		}
	}
	return false
}

// Fulfilled reports whether the payment state entitles the registration to a
// ticket.
func (p PaymentStatus) Fulfilled() bool {
	return p == PaymentFree || p == PaymentPaid
}
