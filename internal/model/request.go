package model

import "time"

// CreateEventRequest is the payload for creating a draft event.
type CreateEventRequest struct {
	Name                 string      `json:"name"`
	Description          string      `json:"description"`
	Kind                 EventKind   `json:"kind"`
	FeeCents             int64       `json:"fee_cents"`
	StartAt              time.Time   `json:"start_at"`
	EndAt                time.Time   `json:"end_at"`
	RegistrationDeadline time.Time   `json:"registration_deadline"`
	RegistrationLimit    int         `json:"registration_limit"`
	EligibleSegment      string      `json:"eligible_segment"`
	Form                 []FormField `json:"form"`
	Items                []Item      `json:"items"`
}

// UpdateEventRequest is a partial update; nil fields are left untouched.
// Which non-nil fields are accepted depends on the event's current status.
type UpdateEventRequest struct {
	Name                 *string      `json:"name,omitempty"`
	Description          *string      `json:"description,omitempty"`
	FeeCents             *int64       `json:"fee_cents,omitempty"`
	StartAt              *time.Time   `json:"start_at,omitempty"`
	EndAt                *time.Time   `json:"end_at,omitempty"`
	RegistrationDeadline *time.Time   `json:"registration_deadline,omitempty"`
	RegistrationLimit    *int         `json:"registration_limit,omitempty"`
	EligibleSegment      *string      `json:"eligible_segment,omitempty"`
	Form                 *[]FormField `json:"form,omitempty"`
	Items                *[]Item      `json:"items,omitempty"`
}

// RegisterRequest is the payload for registering for an event.
type RegisterRequest struct {
	Answers map[string]string `json:"answers"`
	// ItemID and Quantity select a merchandise item; ignored for normal
	// events.
	ItemID   string `json:"item_id"`
	Quantity int    `json:"quantity"`
	// PaymentProof references an already-uploaded proof for paid events.
	PaymentProof string `json:"payment_proof"`
}

// ResubmitRequest re-enters payment review with a new proof reference.
type ResubmitRequest struct {
	PaymentProof string `json:"payment_proof"`
}

// ScanRequest carries the scanned identifier: either a bare ticket code or a
// structured "event-id:ticket" payload.
type ScanRequest struct {
	Identifier string `json:"identifier"`
}

// OverrideAttendanceRequest is an organizer's manual attendance correction.
type OverrideAttendanceRequest struct {
	Marked bool   `json:"marked"`
	Reason string `json:"reason"`
}

// ScanResult is the outcome of a ticket scan. Duplicate scans are reported
// here, not as errors, so the caller learns the original mark time.
type ScanResult struct {
	Registration *Registration `json:"registration"`
	Duplicate    bool          `json:"duplicate"`
	MarkedAt     time.Time     `json:"marked_at"`
}

// ErrorResponse is the standard JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}
