package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/meetflow/meetflow/internal/model"
	"github.com/meetflow/meetflow/internal/notify"
	"github.com/meetflow/meetflow/internal/store"
)

// LifecycleService drives the event state machine and the per-state edit
// rules. All status changes go through the store's conditional transition,
// so a manual action racing the automatic sweep resolves to exactly one
// outcome.
type LifecycleService struct {
	events   store.EventStore
	notifier *notify.Dispatcher
	log      *logrus.Logger
	now      clock
}

// NewLifecycleService constructs a LifecycleService.
func NewLifecycleService(events store.EventStore, notifier *notify.Dispatcher, log *logrus.Logger) *LifecycleService {
	return &LifecycleService{events: events, notifier: notifier, log: log, now: time.Now}
}

// CreateDraft creates a new event in Draft owned by the acting organizer.
func (s *LifecycleService) CreateDraft(ctx context.Context, actor model.Identity, req model.CreateEventRequest) (*model.Event, error) {
	if !actor.CanOrganize() {
		return nil, store.ErrForbidden
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return nil, store.Validation("name", "event name is required")
	}
	if req.Kind == "" {
		req.Kind = model.KindNormal
	}
	if !req.Kind.Valid() {
		return nil, store.Validation("kind", "unknown event kind")
	}
	if req.FeeCents < 0 {
		return nil, store.Validation("fee_cents", "fee must not be negative")
	}
	if req.RegistrationLimit < 0 {
		return nil, store.Validation("registration_limit", "limit must not be negative")
	}
	if req.Kind == model.KindNormal && len(req.Items) > 0 {
		return nil, store.Validation("items", "only merchandise events carry items")
	}
	if err := validateDates(req.StartAt, req.EndAt, req.RegistrationDeadline); err != nil {
		return nil, err
	}
	if err := validateItems(req.Items); err != nil {
		return nil, err
	}
	if err := validateForm(req.Form); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	e := &model.Event{
		ID:                   uuid.New().String(),
		OrganizerID:          actor.UserID,
		Name:                 req.Name,
		Description:          req.Description,
		Kind:                 req.Kind,
		Status:               model.StatusDraft,
		FeeCents:             req.FeeCents,
		StartAt:              req.StartAt,
		EndAt:                req.EndAt,
		RegistrationDeadline: req.RegistrationDeadline,
		RegistrationLimit:    req.RegistrationLimit,
		EligibleSegment:      req.EligibleSegment,
		Form:                 req.Form,
		Items:                withItemIDs(req.Items),
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := s.events.Create(ctx, e); err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}
	s.log.WithFields(logrus.Fields{"event_id": e.ID, "organizer_id": e.OrganizerID}).Info("event drafted")
	return e, nil
}

func withItemIDs(items []model.Item) []model.Item {
	out := make([]model.Item, len(items))
	for i, it := range items {
		if it.ID == "" {
			it.ID = uuid.New().String()
		}
		out[i] = it
	}
	return out
}

// Update applies a partial edit under the current state's rules: Draft is
// freely editable except a locked form, Published accepts only description
// replacement, deadline extension, and limit increase. Equal values are
// silent no-ops; anything else is rejected.
func (s *LifecycleService) Update(ctx context.Context, actor model.Identity, id string, req model.UpdateEventRequest) (*model.Event, error) {
	e, err := s.events.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := requireManager(actor, e); err != nil {
		return nil, err
	}

	switch e.Status {
	case model.StatusDraft:
		if err := s.applyDraftEdit(ctx, e, req); err != nil {
			return nil, err
		}
	case model.StatusPublished:
		if err := applyPublishedEdit(e, req); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %s events are immutable", store.ErrInvalidState, e.Status)
	}

	if err := s.events.Update(ctx, e); err != nil {
		return nil, fmt.Errorf("update event: %w", err)
	}
	return s.events.Get(ctx, id)
}

func (s *LifecycleService) applyDraftEdit(ctx context.Context, e *model.Event, req model.UpdateEventRequest) error {
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return store.Validation("name", "event name is required")
		}
		e.Name = name
	}
	if req.Description != nil {
		e.Description = *req.Description
	}
	if req.FeeCents != nil {
		if *req.FeeCents < 0 {
			return store.Validation("fee_cents", "fee must not be negative")
		}
		e.FeeCents = *req.FeeCents
	}
	if req.StartAt != nil {
		e.StartAt = *req.StartAt
	}
	if req.EndAt != nil {
		e.EndAt = *req.EndAt
	}
	if req.RegistrationDeadline != nil {
		e.RegistrationDeadline = *req.RegistrationDeadline
	}
	if err := validateDates(e.StartAt, e.EndAt, e.RegistrationDeadline); err != nil {
		return err
	}
	if req.RegistrationLimit != nil {
		if *req.RegistrationLimit < 0 {
			return store.Validation("registration_limit", "limit must not be negative")
		}
		e.RegistrationLimit = *req.RegistrationLimit
	}
	if req.EligibleSegment != nil {
		e.EligibleSegment = *req.EligibleSegment
	}
	if req.Form != nil {
		if e.FormLocked {
			return store.Validation("form", "form is locked after the first registration")
		}
		if err := validateForm(*req.Form); err != nil {
			return err
		}
		e.Form = *req.Form
	}
	if req.Items != nil {
		if e.Kind != model.KindMerchandise {
			return store.Validation("items", "only merchandise events carry items")
		}
		if err := validateItems(*req.Items); err != nil {
			return err
		}
		if err := s.events.ReplaceItems(ctx, e.ID, withItemIDs(*req.Items)); err != nil {
			return fmt.Errorf("replace items: %w", err)
		}
	}
	return nil
}

func applyPublishedEdit(e *model.Event, req model.UpdateEventRequest) error {
	if req.Name != nil || req.FeeCents != nil || req.StartAt != nil || req.EndAt != nil ||
		req.EligibleSegment != nil || req.Form != nil || req.Items != nil {
		return store.Validation("", "only description, deadline extension, and limit increase are editable after publish")
	}
	if req.Description != nil {
		e.Description = *req.Description
	}
	if req.RegistrationDeadline != nil && !req.RegistrationDeadline.Equal(e.RegistrationDeadline) {
		if req.RegistrationDeadline.Before(e.RegistrationDeadline) {
			return store.Validation("registration_deadline", "deadline can only be extended")
		}
		if req.RegistrationDeadline.After(e.EndAt) {
			return store.Validation("registration_deadline", "must not be after end_at")
		}
		e.RegistrationDeadline = *req.RegistrationDeadline
	}
	if req.RegistrationLimit != nil && *req.RegistrationLimit != e.RegistrationLimit {
		// Zero means unlimited, which counts as the largest possible limit.
		newLimit := *req.RegistrationLimit
		if newLimit != 0 && (e.RegistrationLimit == 0 || newLimit < e.RegistrationLimit) {
			return store.Validation("registration_limit", "limit can only be increased")
		}
		e.RegistrationLimit = newLimit
	}
	return nil
}

// Publish moves a draft to Published after checking the publish
// preconditions.
func (s *LifecycleService) Publish(ctx context.Context, actor model.Identity, id string) (*model.Event, error) {
	e, err := s.events.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := requireManager(actor, e); err != nil {
		return nil, err
	}
	if e.StartAt.IsZero() || e.EndAt.IsZero() || e.RegistrationDeadline.IsZero() {
		return nil, store.Validation("dates", "start, end, and registration deadline are required to publish")
	}
	if !e.StartAt.Before(e.EndAt) {
		return nil, store.Validation("start_at", "must be before end_at")
	}
	// Deadline equal to the end date is allowed.
	if e.RegistrationDeadline.After(e.EndAt) {
		return nil, store.Validation("registration_deadline", "must not be after end_at")
	}
	if e.Kind == model.KindMerchandise {
		if len(e.Items) == 0 {
			return nil, store.Validation("items", "at least one item is required to publish")
		}
		for _, it := range e.Items {
			if it.PriceCents <= 0 {
				return nil, store.Validation("items", "every item needs a positive price")
			}
			if it.Stock < 0 {
				return nil, store.Validation("items", "item stock must not be negative")
			}
		}
	}

	if err := s.events.TransitionStatus(ctx, id, model.StatusDraft, model.StatusPublished); err != nil {
		return nil, err
	}
	s.log.WithField("event_id", id).Info("event published")
	s.notifier.Publish(notify.Message{
		Kind:    notify.KindEventPublished,
		UserID:  e.OrganizerID,
		EventID: id,
		Title:   "Event published",
		Body:    e.Name + " is now open for registration.",
	})
	return s.events.Get(ctx, id)
}

// Close manually closes registration from Published or Ongoing.
func (s *LifecycleService) Close(ctx context.Context, actor model.Identity, id string) (*model.Event, error) {
	return s.manualTransition(ctx, actor, id, model.StatusClosed,
		model.StatusPublished, model.StatusOngoing)
}

// Complete manually finishes the event from Ongoing or Closed.
func (s *LifecycleService) Complete(ctx context.Context, actor model.Identity, id string) (*model.Event, error) {
	return s.manualTransition(ctx, actor, id, model.StatusCompleted,
		model.StatusOngoing, model.StatusClosed)
}

func (s *LifecycleService) manualTransition(ctx context.Context, actor model.Identity, id string, to model.EventStatus, validFrom ...model.EventStatus) (*model.Event, error) {
	e, err := s.events.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := requireManager(actor, e); err != nil {
		return nil, err
	}
	for _, from := range validFrom {
		if e.Status != from {
			continue
		}
		if err := s.events.TransitionStatus(ctx, id, from, to); err != nil {
			return nil, err
		}
		s.log.WithFields(logrus.Fields{"event_id": id, "from": from, "to": to}).Info("event transitioned")
		return s.events.Get(ctx, id)
	}
	return nil, fmt.Errorf("%w: cannot move %s event to %s", store.ErrInvalidState, e.Status, to)
}

// Delete removes a draft. Any other state is immutable history.
func (s *LifecycleService) Delete(ctx context.Context, actor model.Identity, id string) error {
	e, err := s.events.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := requireManager(actor, e); err != nil {
		return err
	}
	return s.events.Delete(ctx, id)
}

// PromoteDueEvents is the idempotent sweep invoked by the time-driven
// trigger: Published events past their start become Ongoing, and anything
// past its end becomes Completed. Conditional transitions make racing sweeps
// and manual actions safe; a lost race is skipped, not an error.
func (s *LifecycleService) PromoteDueEvents(ctx context.Context, now time.Time) (int, error) {
	due, err := s.events.ListDue(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("list due events: %w", err)
	}
	promoted := 0
	for _, e := range due {
		var to model.EventStatus
		switch {
		case !now.Before(e.EndAt):
			to = model.StatusCompleted
		case e.Status == model.StatusPublished && !now.Before(e.StartAt):
			to = model.StatusOngoing
		default:
			continue
		}
		err := s.events.TransitionStatus(ctx, e.ID, e.Status, to)
		switch {
		case err == nil:
			promoted++
			s.log.WithFields(logrus.Fields{"event_id": e.ID, "from": e.Status, "to": to}).Info("event promoted")
		case errors.Is(err, store.ErrInvalidState), errors.Is(err, store.ErrNotFound):
			// Lost the race to a manual action or another sweep.
		default:
			return promoted, fmt.Errorf("promote event %s: %w", e.ID, err)
		}
	}
	return promoted, nil
}
