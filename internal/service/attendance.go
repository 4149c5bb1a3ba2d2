package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/meetflow/meetflow/internal/model"
	"github.com/meetflow/meetflow/internal/notify"
	"github.com/meetflow/meetflow/internal/store"
	"github.com/meetflow/meetflow/internal/ticket"
)

// AttendanceService checks participants in against issued tickets.
type AttendanceService struct {
	events   store.EventStore
	regs     store.RegistrationStore
	notifier *notify.Dispatcher
	log      *logrus.Logger
	now      clock
}

// NewAttendanceService constructs an AttendanceService.
func NewAttendanceService(events store.EventStore, regs store.RegistrationStore, notifier *notify.Dispatcher, log *logrus.Logger) *AttendanceService {
	return &AttendanceService{events: events, regs: regs, notifier: notifier, log: log, now: time.Now}
}

// Scan resolves the identifier (a bare ticket code or an "event-id:ticket"
// payload whose event must match) and marks attendance exactly once. A
// second scan of the same ticket is a duplicate result carrying the original
// mark time, not an error; concurrent scans yield one success and the rest
// duplicates.
func (s *AttendanceService) Scan(ctx context.Context, actor model.Identity, eventID, identifier string) (*model.ScanResult, error) {
	ev, err := s.events.Get(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if err := requireManager(actor, ev); err != nil {
		return nil, err
	}

	payloadEvent, code := ticket.DecodePayload(strings.TrimSpace(identifier))
	if code == "" {
		return nil, store.Validation("identifier", "a ticket code is required")
	}
	if payloadEvent != "" && payloadEvent != eventID {
		return nil, store.Validation("identifier", "ticket payload names a different event")
	}

	reg, err := s.regs.GetByTicket(ctx, code)
	if err != nil {
		return nil, err
	}
	if reg.EventID != eventID {
		return nil, store.Validation("identifier", "ticket belongs to a different event")
	}
	if reg.Status != model.RegistrationActive {
		return nil, fmt.Errorf("%w: registration is cancelled", store.ErrInvalidState)
	}
	if !reg.Payment.Fulfilled() {
		return nil, fmt.Errorf("%w: payment not cleared", store.ErrInvalidState)
	}

	already, markedAt, err := s.regs.MarkScanned(ctx, reg.ID, s.now().UTC())
	if err != nil {
		return nil, err
	}
	current, err := s.regs.Get(ctx, reg.ID)
	if err != nil {
		return nil, err
	}
	if !already {
		s.log.WithFields(logrus.Fields{
			"event_id":        eventID,
			"registration_id": reg.ID,
		}).Info("attendance marked")
		s.notifier.Publish(notify.Message{
			Kind:           notify.KindAttendanceMarked,
			UserID:         reg.ParticipantID,
			EventID:        eventID,
			RegistrationID: reg.ID,
			Title:          "Checked in",
			Body:           "Welcome to " + ev.Name + "!",
		})
	}
	return &model.ScanResult{Registration: current, Duplicate: already, MarkedAt: markedAt}, nil
}

// Override is an organizer's manual mark or unmark. The reason is mandatory
// and every override appends to the audit trail, even when toggling back and
// forth; the flag itself is last-write-wins.
func (s *AttendanceService) Override(ctx context.Context, actor model.Identity, registrationID string, req model.OverrideAttendanceRequest) (*model.Registration, error) {
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return nil, store.Validation("reason", "a reason is required for manual overrides")
	}
	reg, err := s.regs.Get(ctx, registrationID)
	if err != nil {
		return nil, err
	}
	ev, err := s.events.Get(ctx, reg.EventID)
	if err != nil {
		return nil, err
	}
	if err := requireManager(actor, ev); err != nil {
		return nil, err
	}

	entry := model.AttendanceEntry{
		Actor:  actor.UserID,
		Reason: reason,
		Marked: req.Marked,
		At:     s.now().UTC(),
	}
	if err := s.regs.OverrideAttendance(ctx, registrationID, req.Marked, entry); err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{
		"registration_id": registrationID,
		"marked":          req.Marked,
		"actor":           actor.UserID,
	}).Info("attendance overridden")
	return s.regs.Get(ctx, registrationID)
}
