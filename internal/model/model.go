// Package model defines the core domain types for the registration and
// fulfillment engine: events with capacity and inventory, registrations with
// a payment sub-state, tickets, and attendance records.
package model

import "time"

// Role is the authenticated caller's role, supplied by the identity layer.
type Role string

const (
	RoleOrganizer   Role = "organizer"
	RoleParticipant Role = "participant"
	RoleAdmin       Role = "admin"
)

// Identity is the already-authenticated caller. The engine trusts it; it
// performs authorization, never authentication.
type Identity struct {
	UserID string
	Role   Role
	// Segment is an optional participant subtype ("student", "member", ...)
	// used by events that restrict their audience.
	Segment string
}

// CanOrganize reports whether the identity may act as an event organizer.
func (id Identity) CanOrganize() bool {
	return id.Role == RoleOrganizer || id.Role == RoleAdmin
}

// EventKind distinguishes plain events from merchandise sales.
type EventKind string

const (
	KindNormal      EventKind = "normal"
	KindMerchandise EventKind = "merchandise"
)

// Valid reports whether the kind is one of the known values.
func (k EventKind) Valid() bool {
	return k == KindNormal || k == KindMerchandise
}

// FormFieldType is the declared type of a custom registration-form field.
type FormFieldType string

const (
	FieldText   FormFieldType = "text"
	FieldEmail  FormFieldType = "email"
	FieldPhone  FormFieldType = "phone"
	FieldNumber FormFieldType = "number"
)

// FormField is one custom question on an event's registration form. The form
// becomes immutable the moment the event accepts its first registration.
type FormField struct {
	Label    string        `json:"label"`
	Type     FormFieldType `json:"type"`
	Required bool          `json:"required"`
	Min      *float64      `json:"min,omitempty"`
	Max      *float64      `json:"max,omitempty"`
}

// Item is one merchandise offering with its own stock and price.
type Item struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	PriceCents int64  `json:"price_cents"`
	Stock      int    `json:"stock"`
	// PurchaseLimit caps the quantity a single registration may order.
	// Zero means no per-participant cap.
	PurchaseLimit int `json:"purchase_limit"`
}

// Event is an organized activity participants can register for. Counter
// fields (RegistrationCount, TotalRevenueCents, Item.Stock) are mutated only
// through the store's conditional primitives, never by whole-record writes.
type Event struct {
	ID          string      `json:"id"`
	OrganizerID string      `json:"organizer_id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Kind        EventKind   `json:"kind"`
	Status      EventStatus `json:"status"`

	// FeeCents is the registration fee for normal events. A positive fee
	// parks new registrations in PendingApproval until an organizer clears
	// the payment.
	FeeCents int64 `json:"fee_cents"`

	StartAt              time.Time `json:"start_at"`
	EndAt                time.Time `json:"end_at"`
	RegistrationDeadline time.Time `json:"registration_deadline"`

	// RegistrationLimit caps active registrations; zero means unlimited.
	RegistrationLimit int `json:"registration_limit"`
	RegistrationCount int `json:"registration_count"`

	TotalRevenueCents int64 `json:"total_revenue_cents"`

	// EligibleSegment restricts who may register; empty admits any
	// participant.
	EligibleSegment string `json:"eligible_segment,omitempty"`

	FormLocked bool        `json:"form_locked"`
	Form       []FormField `json:"form,omitempty"`
	Items      []Item      `json:"items,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Item returns the inventory item with the given id.
func (e *Event) Item(id string) (*Item, bool) {
	for i := range e.Items {
		if e.Items[i].ID == id {
			return &e.Items[i], true
		}
	}
	return nil, false
}

// LimitReached reports whether the registration limit is currently exhausted.
// Advisory only: the authoritative guard is the store's conditional counter
// increment.
func (e *Event) LimitReached() bool {
	return e.RegistrationLimit > 0 && e.RegistrationCount >= e.RegistrationLimit
}

// AcceptingRegistrations reports whether the event can take a new
// registration at the given instant.
func (e *Event) AcceptingRegistrations(now time.Time) bool {
	if e.Status != StatusPublished && e.Status != StatusOngoing {
		return false
	}
	return !now.After(e.RegistrationDeadline)
}

// RegistrationStatus is the enrollment lifecycle state. Cancelled is
// permanently terminal; records are never deleted.
type RegistrationStatus string

const (
	RegistrationActive    RegistrationStatus = "active"
	RegistrationCancelled RegistrationStatus = "cancelled"
)

// OrderDetail snapshots the merchandise choice at order time. UnitPriceCents
// is frozen here; later price edits on the item do not affect it.
type OrderDetail struct {
	ItemID         string `json:"item_id"`
	ItemName       string `json:"item_name"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
}

// TotalCents is the amount the order contributes to event revenue when paid.
func (o OrderDetail) TotalCents() int64 {
	return o.UnitPriceCents * int64(o.Quantity)
}

// AttendanceEntry is one append-only line in a registration's attendance
// audit trail. Manual overrides always append, even when toggling back.
type AttendanceEntry struct {
	Actor  string    `json:"actor"`
	Reason string    `json:"reason"`
	Marked bool      `json:"marked"`
	At     time.Time `json:"at"`
}

// Registration is one participant's enrollment record for one event. At most
// one exists per (participant, event) pair, enforced at the storage layer.
type Registration struct {
	ID            string             `json:"id"`
	EventID       string             `json:"event_id"`
	ParticipantID string             `json:"participant_id"`
	Status        RegistrationStatus `json:"status"`
	Payment       PaymentStatus      `json:"payment"`

	// Ticket is the unique proof-of-registration code, empty until the
	// registration becomes fulfillable (immediately for free, on approval
	// for paid).
	Ticket string `json:"ticket,omitempty"`

	// PaymentProof references the externally uploaded proof of payment.
	PaymentProof string `json:"payment_proof,omitempty"`

	Order   *OrderDetail      `json:"order,omitempty"`
	Answers map[string]string `json:"answers,omitempty"`

	Attended      bool              `json:"attended"`
	AttendedAt    *time.Time        `json:"attended_at,omitempty"`
	AttendanceLog []AttendanceEntry `json:"attendance_log,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Ticketed reports whether a ticket has been issued.
func (r *Registration) Ticketed() bool {
	return r.Ticket != ""
}

// HoldsStock reports whether this registration has committed inventory.
// PendingApproval orders never hold stock; it is committed only at approval.
func (r *Registration) HoldsStock() bool {
	return r.Order != nil && (r.Payment == PaymentFree || r.Payment == PaymentPaid)
}

// RevenueCents is the amount this registration contributed to event revenue,
// zero unless it is Paid.
func (r *Registration) RevenueCents(feeCents int64) int64 {
	if r.Payment != PaymentPaid {
		return 0
	}
	if r.Order != nil {
		return r.Order.TotalCents()
	}
	return feeCents
}
