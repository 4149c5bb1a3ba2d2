// Package store declares the persistence contracts for the registration
// engine and the typed errors every driver must return. Conditional updates
// (apply only if the record's current value matches an expected prior value)
// are the sole concurrency primitive; no driver may expose a read-then-write
// path for the hot counters.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/meetflow/meetflow/internal/model"
)

// ErrNotFound is returned when a requested event, registration, or item does
// not exist.
var ErrNotFound = errors.New("not found")

// ErrInvalidState is returned when a conditional transition names a prior
// state the record is no longer in.
var ErrInvalidState = errors.New("operation not valid for current state")

// ErrInsufficientStock is returned when a conditional stock decrement would
// drive the quantity negative. No change is made.
var ErrInsufficientStock = errors.New("insufficient stock")

// ErrLimitReached is returned when the guarded registration-count increment
// finds the limit exhausted.
var ErrLimitReached = errors.New("registration limit reached")

// ErrAlreadyRegistered is returned by CreateIfAbsent when the (participant,
// event) pair already has a registration, including a cancelled one.
var ErrAlreadyRegistered = errors.New("already registered for this event")

// ErrAlreadyTicketed is returned when a ticket has already been issued for
// the registration. It is the idempotency guard against double approval.
var ErrAlreadyTicketed = errors.New("ticket already issued")

// ErrForbidden is returned on ownership or role mismatch.
var ErrForbidden = errors.New("forbidden")

// ErrDeadlinePassed is returned when the registration deadline has elapsed.
var ErrDeadlinePassed = errors.New("registration deadline passed")

// ValidationError reports a specific, actionable form or field violation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Validation builds a ValidationError.
func Validation(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// TransientError wraps storage-transport failures (timeouts, connection
// loss). Callers may retry these; business errors above are never wrapped in
// it.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err is a retryable storage failure.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// EventStore holds event metadata, capacity counters, and per-item
// inventory. Counter mutations are conditional and atomic per record.
type EventStore interface {
	Create(ctx context.Context, e *model.Event) error
	Get(ctx context.Context, id string) (*model.Event, error)
	List(ctx context.Context) ([]model.Event, error)

	// Update persists metadata, form, and eligibility fields. It never
	// touches counters or item stock; those move only through the
	// conditional primitives below.
	Update(ctx context.Context, e *model.Event) error

	// ReplaceItems swaps the full inventory list. Valid only while the
	// event is a draft, so it faces no concurrent decrements.
	ReplaceItems(ctx context.Context, eventID string, items []model.Item) error

	// Delete removes the event only while it is still a draft.
	Delete(ctx context.Context, id string) error

	// TransitionStatus applies from→to only if the lifecycle table permits
	// the transition and the current status equals from; otherwise
	// ErrInvalidState.
	TransitionStatus(ctx context.Context, id string, from, to model.EventStatus) error

	// DecrementStock subtracts qty only if stock ≥ qty at the instant of
	// application, returning the new stock, else ErrInsufficientStock.
	DecrementStock(ctx context.Context, eventID, itemID string, qty int) (int, error)

	// IncrementStock restores qty. Restores never exceed the original
	// allocation by construction, so there is no upper-bound check.
	IncrementStock(ctx context.Context, eventID, itemID string, qty int) error

	// IncrementRegistrationCount adds one under the limit guard: it fails
	// with ErrLimitReached unless the limit is unset or count < limit at
	// the instant of application.
	IncrementRegistrationCount(ctx context.Context, eventID string) error
	DecrementRegistrationCount(ctx context.Context, eventID string) error

	// AdjustRevenue atomically adds deltaCents, which may be negative.
	AdjustRevenue(ctx context.Context, eventID string, deltaCents int64) error

	// LockForm marks the form immutable. Idempotent.
	LockForm(ctx context.Context, eventID string) error

	// ListDue returns non-terminal published events whose start or end has
	// passed, for the automatic promotion sweep.
	ListDue(ctx context.Context, now time.Time) ([]model.Event, error)
}

// RegistrationStore holds one record per (participant, event) pair and
// enforces that uniqueness at creation time.
type RegistrationStore interface {
	// CreateIfAbsent inserts the registration, failing with
	// ErrAlreadyRegistered if the (participant, event) pair exists. This
	// is the sole duplicate guard; application-level checks are advisory.
	CreateIfAbsent(ctx context.Context, r *model.Registration) error

	Get(ctx context.Context, id string) (*model.Registration, error)
	GetByPair(ctx context.Context, participantID, eventID string) (*model.Registration, error)
	GetByTicket(ctx context.Context, ticket string) (*model.Registration, error)
	ListByEvent(ctx context.Context, eventID string) ([]model.Registration, error)
	ListByParticipant(ctx context.Context, participantID string) ([]model.Registration, error)

	// IssueTicket assigns the ticket code and final payment state in one
	// conditional write, applied only while the registration is active and
	// unticketed. A second call fails ErrAlreadyTicketed.
	IssueTicket(ctx context.Context, id, ticket string, payment model.PaymentStatus) error

	// TransitionPayment applies from→to only if the payment table permits
	// the transition and the current payment state equals from; otherwise
	// ErrInvalidState.
	TransitionPayment(ctx context.Context, id string, from, to model.PaymentStatus) error

	// SetPaymentProof replaces the proof reference.
	SetPaymentProof(ctx context.Context, id, proof string) error

	// Cancel moves Active→Cancelled, conditional on the current status.
	Cancel(ctx context.Context, id string) error

	// MarkScanned flips the attended flag exactly once. When the flag was
	// already set it reports already=true with the original mark time and
	// changes nothing.
	MarkScanned(ctx context.Context, id string, at time.Time) (already bool, markedAt time.Time, err error)

	// OverrideAttendance sets the flag last-write-wins and appends the
	// audit entry unconditionally.
	OverrideAttendance(ctx context.Context, id string, marked bool, entry model.AttendanceEntry) error
}
