package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/meetflow/meetflow/internal/model"
	"github.com/meetflow/meetflow/internal/notify"
	"github.com/meetflow/meetflow/internal/store"
	"github.com/meetflow/meetflow/internal/ticket"
)

// RegistrationService orchestrates new registrations and cancellations.
//
// The stock decrement, counter increment, and registration insert are each
// individually atomic but not atomic as a group; the compensation calls below
// close the transient window where a counter moved but the insert lost the
// uniqueness race.
type RegistrationService struct {
	events   store.EventStore
	regs     store.RegistrationStore
	notifier *notify.Dispatcher
	log      *logrus.Logger
	now      clock
}

// NewRegistrationService constructs a RegistrationService.
func NewRegistrationService(events store.EventStore, regs store.RegistrationStore, notifier *notify.Dispatcher, log *logrus.Logger) *RegistrationService {
	return &RegistrationService{events: events, regs: regs, notifier: notifier, log: log, now: time.Now}
}

// Register runs the registration workflow. Each step can abort the whole
// operation:
//
//  1. event exists, is open, and the deadline has not passed
//  2. audience eligibility
//  3. capacity pre-check (authoritative guard is the counter increment)
//  4. advisory duplicate check (authoritative guard is the unique insert)
//  5. form answers and merchandise selection
//  6. guarded counter increment, and for free merchandise the conditional
//     stock decrement, the point of no return for inventory
//  7. uniqueness-enforcing insert, compensating the counters if it loses;
//     the free path is inserted with its ticket already assigned
//  8. form lock on the event's first registration
//  9. paid path: parked in PendingApproval with no stock committed
func (s *RegistrationService) Register(ctx context.Context, actor model.Identity, eventID string, req model.RegisterRequest) (*model.Registration, error) {
	if actor.Role != model.RoleParticipant {
		return nil, store.ErrForbidden
	}

	// Step 1: event state and deadline.
	ev, err := s.events.Get(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if ev.Status != model.StatusPublished && ev.Status != model.StatusOngoing {
		return nil, fmt.Errorf("%w: event is not open for registration", store.ErrInvalidState)
	}
	now := s.now().UTC()
	if now.After(ev.RegistrationDeadline) {
		return nil, store.ErrDeadlinePassed
	}

	// Step 2: audience eligibility.
	if ev.EligibleSegment != "" && ev.EligibleSegment != actor.Segment {
		return nil, fmt.Errorf("%w: event is restricted to %s participants", store.ErrForbidden, ev.EligibleSegment)
	}

	// Step 3: capacity pre-check.
	if ev.LimitReached() {
		return nil, store.ErrLimitReached
	}

	// Step 4: advisory duplicate check.
	if _, err := s.regs.GetByPair(ctx, actor.UserID, eventID); err == nil {
		return nil, store.ErrAlreadyRegistered
	}

	// Step 5: form answers and merchandise selection.
	if err := validateAnswers(ev.Form, req.Answers); err != nil {
		return nil, err
	}
	var order *model.OrderDetail
	if ev.Kind == model.KindMerchandise {
		order, err = buildOrder(ev, req)
		if err != nil {
			return nil, err
		}
	}

	// Step 6: payment determination and the authoritative guards. Paid
	// orders commit no stock here; that happens at approval.
	paymentRequired := ev.FeeCents > 0
	if order != nil {
		paymentRequired = order.UnitPriceCents > 0
	}

	if err := s.events.IncrementRegistrationCount(ctx, eventID); err != nil {
		return nil, err
	}
	stockHeld := false
	if !paymentRequired && order != nil {
		if _, err := s.events.DecrementStock(ctx, eventID, order.ItemID, order.Quantity); err != nil {
			s.compensate(ctx, eventID, order, false, true)
			return nil, err
		}
		stockHeld = true
	}

	// Step 7: uniqueness-enforcing insert. The free path gets its ticket in
	// the same insert, so a fulfilled registration can never exist without
	// one: either the whole record lands or nothing does.
	payment := model.PaymentPending
	code := ""
	if !paymentRequired {
		payment = model.PaymentFree
		code = ticket.New()
	}
	reg := &model.Registration{
		ID:            uuid.New().String(),
		EventID:       eventID,
		ParticipantID: actor.UserID,
		Status:        model.RegistrationActive,
		Payment:       payment,
		Ticket:        code,
		PaymentProof:  req.PaymentProof,
		Order:         order,
		Answers:       req.Answers,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.regs.CreateIfAbsent(ctx, reg); err != nil {
		s.compensate(ctx, eventID, order, stockHeld, true)
		return nil, err
	}

	// Step 8: lock the form on first registration.
	if !ev.FormLocked && len(ev.Form) > 0 {
		if err := s.events.LockForm(ctx, eventID); err != nil {
			s.log.WithError(err).WithField("event_id", eventID).Warn("form lock failed")
		}
	}

	s.log.WithFields(logrus.Fields{
		"event_id":        eventID,
		"registration_id": reg.ID,
		"participant_id":  actor.UserID,
		"payment":         reg.Payment,
	}).Info("registration created")
	s.notifier.Publish(notify.Message{
		Kind:           notify.KindRegistrationCreated,
		UserID:         actor.UserID,
		EventID:        eventID,
		RegistrationID: reg.ID,
		Title:          "Registration received",
		Body:           registrationBody(ev, reg),
	})
	return reg, nil
}

func registrationBody(ev *model.Event, reg *model.Registration) string {
	if reg.Payment == model.PaymentPending {
		return "Your registration for " + ev.Name + " is awaiting payment approval."
	}
	return "You are registered for " + ev.Name + ". Ticket: " + reg.Ticket
}

// buildOrder resolves the merchandise selection and freezes the price.
func buildOrder(ev *model.Event, req model.RegisterRequest) (*model.OrderDetail, error) {
	if req.ItemID == "" {
		return nil, store.Validation("item_id", "an item must be chosen")
	}
	item, ok := ev.Item(req.ItemID)
	if !ok {
		return nil, fmt.Errorf("%w: item", store.ErrNotFound)
	}
	if req.Quantity < 1 {
		return nil, store.Validation("quantity", "must be at least 1")
	}
	if item.PurchaseLimit > 0 && req.Quantity > item.PurchaseLimit {
		return nil, store.Validation("quantity", "exceeds the per-participant purchase limit")
	}
	// Pre-check only; the conditional decrement is authoritative.
	if req.Quantity > item.Stock {
		return nil, store.ErrInsufficientStock
	}
	return &model.OrderDetail{
		ItemID:         item.ID,
		ItemName:       item.Name,
		Quantity:       req.Quantity,
		UnitPriceCents: item.PriceCents,
	}, nil
}

// compensate rolls back the counter moves of a registration attempt that
// failed after its point of no return.
func (s *RegistrationService) compensate(ctx context.Context, eventID string, order *model.OrderDetail, stockHeld, countHeld bool) {
	if countHeld {
		if err := s.events.DecrementRegistrationCount(ctx, eventID); err != nil {
			s.log.WithError(err).WithField("event_id", eventID).Error("count compensation failed")
		}
	}
	if stockHeld && order != nil {
		if err := s.events.IncrementStock(ctx, eventID, order.ItemID, order.Quantity); err != nil {
			s.log.WithError(err).WithFields(logrus.Fields{
				"event_id": eventID,
				"item_id":  order.ItemID,
			}).Error("stock compensation failed")
		}
	}
	s.log.WithField("event_id", eventID).Warn("registration attempt rolled back")
}

// Cancel terminates an active registration. Only the registrant may cancel,
// only before the event starts. The registration count is restored; stock is
// restored only if it was actually committed (Free or Paid; PendingApproval
// never held stock); revenue is reversed only for Paid.
func (s *RegistrationService) Cancel(ctx context.Context, actor model.Identity, registrationID string) (*model.Registration, error) {
	reg, err := s.regs.Get(ctx, registrationID)
	if err != nil {
		return nil, err
	}
	if actor.UserID != reg.ParticipantID {
		return nil, store.ErrForbidden
	}
	ev, err := s.events.Get(ctx, reg.EventID)
	if err != nil {
		return nil, err
	}
	if !s.now().Before(ev.StartAt) {
		return nil, fmt.Errorf("%w: event has already started", store.ErrInvalidState)
	}

	// Conditional on Active: the store rejects a second cancellation, so
	// the compensations below run at most once.
	if err := s.regs.Cancel(ctx, registrationID); err != nil {
		return nil, err
	}

	// An approval may have committed between the snapshot read above and
	// the conditional cancel, moving the payment to Paid with stock and
	// revenue attached. Ticket issuance is status-guarded, so the record is
	// frozen now that it is cancelled: re-read it and let the authoritative
	// payment state decide what to restore.
	if current, err := s.regs.Get(ctx, registrationID); err == nil {
		reg = current
	} else {
		s.log.WithError(err).WithField("registration_id", registrationID).Error("post-cancel reload failed")
	}

	if err := s.events.DecrementRegistrationCount(ctx, reg.EventID); err != nil {
		s.log.WithError(err).WithField("event_id", reg.EventID).Error("count restore failed")
	}
	if reg.HoldsStock() {
		if err := s.events.IncrementStock(ctx, reg.EventID, reg.Order.ItemID, reg.Order.Quantity); err != nil {
			s.log.WithError(err).WithField("event_id", reg.EventID).Error("stock restore failed")
		}
	}
	if revenue := reg.RevenueCents(ev.FeeCents); revenue > 0 {
		if err := s.events.AdjustRevenue(ctx, reg.EventID, -revenue); err != nil {
			s.log.WithError(err).WithField("event_id", reg.EventID).Error("revenue reversal failed")
		}
	}

	s.log.WithFields(logrus.Fields{
		"event_id":        reg.EventID,
		"registration_id": registrationID,
	}).Info("registration cancelled")
	s.notifier.Publish(notify.Message{
		Kind:           notify.KindRegistrationCancelled,
		UserID:         reg.ParticipantID,
		EventID:        reg.EventID,
		RegistrationID: registrationID,
		Title:          "Registration cancelled",
		Body:           "Your registration for " + ev.Name + " has been cancelled.",
	})
	return s.regs.Get(ctx, registrationID)
}

// Resubmit re-enters payment review with a new proof reference. Valid only
// from Rejected; the payment state machine forbids any shortcut to Paid.
func (s *RegistrationService) Resubmit(ctx context.Context, actor model.Identity, registrationID string, req model.ResubmitRequest) (*model.Registration, error) {
	reg, err := s.regs.Get(ctx, registrationID)
	if err != nil {
		return nil, err
	}
	if actor.UserID != reg.ParticipantID {
		return nil, store.ErrForbidden
	}
	if req.PaymentProof == "" {
		return nil, store.Validation("payment_proof", "a payment proof reference is required")
	}
	if err := s.regs.TransitionPayment(ctx, registrationID, model.PaymentRejected, model.PaymentPending); err != nil {
		return nil, err
	}
	if err := s.regs.SetPaymentProof(ctx, registrationID, req.PaymentProof); err != nil && !errors.Is(err, store.ErrNotFound) {
		s.log.WithError(err).WithField("registration_id", registrationID).Warn("proof update failed")
	}
	return s.regs.Get(ctx, registrationID)
}
