package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/meetflow/meetflow/internal/model"
	"github.com/meetflow/meetflow/internal/notify"
	"github.com/meetflow/meetflow/internal/store"
	"github.com/meetflow/meetflow/internal/ticket"
)

// ApprovalService is the organizer-driven payment review. Approval is where
// a paid order's inventory is actually committed; until then the stock shown
// to approvers is "available for paid reservation" only.
type ApprovalService struct {
	events   store.EventStore
	regs     store.RegistrationStore
	notifier *notify.Dispatcher
	log      *logrus.Logger
	now      clock
}

// NewApprovalService constructs an ApprovalService.
func NewApprovalService(events store.EventStore, regs store.RegistrationStore, notifier *notify.Dispatcher, log *logrus.Logger) *ApprovalService {
	return &ApprovalService{events: events, regs: regs, notifier: notifier, log: log, now: time.Now}
}

// Approve clears a pending payment: commit stock (merchandise), issue the
// ticket, mark Paid, and add revenue. A rejected payment is routed back
// through PendingApproval first; it never jumps straight to Paid. The
// ticket issuance is the idempotency guard: a racing double-approve commits
// exactly once and the loser gets ErrAlreadyTicketed.
func (s *ApprovalService) Approve(ctx context.Context, actor model.Identity, registrationID string) (*model.Registration, error) {
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
	if reg.Status != model.RegistrationActive {
		return nil, fmt.Errorf("%w: registration is cancelled", store.ErrInvalidState)
	}

	switch reg.Payment {
	case model.PaymentPending:
	case model.PaymentRejected:
		if err := s.regs.TransitionPayment(ctx, registrationID, model.PaymentRejected, model.PaymentPending); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: payment is %s", store.ErrInvalidState, reg.Payment)
	}

	// First point a paid order's inventory is committed. Abort on
	// exhaustion, leaving the registration pending.
	stockHeld := false
	if reg.Order != nil {
		if _, err := s.events.DecrementStock(ctx, reg.EventID, reg.Order.ItemID, reg.Order.Quantity); err != nil {
			return nil, err
		}
		stockHeld = true
	}

	code := ticket.New()
	if err := s.regs.IssueTicket(ctx, registrationID, code, model.PaymentPaid); err != nil {
		if stockHeld {
			if restoreErr := s.events.IncrementStock(ctx, reg.EventID, reg.Order.ItemID, reg.Order.Quantity); restoreErr != nil {
				s.log.WithError(restoreErr).WithField("registration_id", registrationID).Error("stock restore after failed issuance")
			}
		}
		if errors.Is(err, store.ErrAlreadyTicketed) {
			return nil, store.ErrAlreadyTicketed
		}
		return nil, fmt.Errorf("issue ticket: %w", err)
	}

	amount := ev.FeeCents
	if reg.Order != nil {
		amount = reg.Order.TotalCents()
	}
	if err := s.events.AdjustRevenue(ctx, reg.EventID, amount); err != nil {
		s.log.WithError(err).WithField("event_id", reg.EventID).Error("revenue add failed")
	}

	s.log.WithFields(logrus.Fields{
		"event_id":        reg.EventID,
		"registration_id": registrationID,
		"amount_cents":    amount,
	}).Info("payment approved")
	s.notifier.Publish(notify.Message{
		Kind:           notify.KindPaymentApproved,
		UserID:         reg.ParticipantID,
		EventID:        reg.EventID,
		RegistrationID: registrationID,
		Title:          "Payment approved",
		Body:           "Your payment for " + ev.Name + " was approved. Ticket: " + code,
	})
	return s.regs.Get(ctx, registrationID)
}

// Reject declines a pending payment. No inventory or revenue moves; the
// registrant may resubmit proof to re-enter review.
func (s *ApprovalService) Reject(ctx context.Context, actor model.Identity, registrationID string) (*model.Registration, error) {
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
	if err := s.regs.TransitionPayment(ctx, registrationID, model.PaymentPending, model.PaymentRejected); err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{
		"event_id":        reg.EventID,
		"registration_id": registrationID,
	}).Info("payment rejected")
	s.notifier.Publish(notify.Message{
		Kind:           notify.KindPaymentRejected,
		UserID:         reg.ParticipantID,
		EventID:        reg.EventID,
		RegistrationID: registrationID,
		Title:          "Payment rejected",
		Body:           "Your payment for " + ev.Name + " was rejected. You may submit new proof.",
	})
	return s.regs.Get(ctx, registrationID)
}
