package service

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/meetflow/meetflow/internal/model"
	"github.com/meetflow/meetflow/internal/store"
	"github.com/meetflow/meetflow/internal/store/memory"
)

// env wires the services against the in-memory store with a pinned clock.
type env struct {
	events     *memory.EventStore
	regs       *memory.RegistrationStore
	lifecycle  *LifecycleService
	workflow   *RegistrationService
	approvals  *ApprovalService
	attendance *AttendanceService

	base      time.Time
	organizer model.Identity
}

func newEnv(t *testing.T) *env {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)

	mem := memory.New()
	events, regs := mem.Events(), mem.Registrations()
	e := &env{
		events:     events,
		regs:       regs,
		lifecycle:  NewLifecycleService(events, nil, log),
		workflow:   NewRegistrationService(events, regs, nil, log),
		approvals:  NewApprovalService(events, regs, nil, log),
		attendance: NewAttendanceService(events, regs, nil, log),
		base:       time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC),
		organizer:  model.Identity{UserID: "org-1", Role: model.RoleOrganizer},
	}
	e.setNow(e.base)
	return e
}

// setNow pins the clock of every service.
func (e *env) setNow(now time.Time) {
	fn := func() time.Time { return now }
	e.lifecycle.now = fn
	e.workflow.now = fn
	e.approvals.now = fn
	e.attendance.now = fn
}

func participant(n int) model.Identity {
	return model.Identity{UserID: fmt.Sprintf("user-%d", n), Role: model.RoleParticipant}
}

// workflowWith builds a RegistrationService over a wrapped registration
// store, sharing the env's event store and pinned to its clock.
func (e *env) workflowWith(regs store.RegistrationStore) *RegistrationService {
	log := logrus.New()
	log.SetOutput(io.Discard)
	w := NewRegistrationService(e.events, regs, nil, log)
	w.now = func() time.Time { return e.base }
	return w
}

// seedEvent stores a published event directly, bypassing the lifecycle
// controller, so workflow tests can shape any state they need.
func (e *env) seedEvent(t *testing.T, mut func(*model.Event)) *model.Event {
	t.Helper()
	ev := &model.Event{
		ID:                   uuid.New().String(),
		OrganizerID:          e.organizer.UserID,
		Name:                 "Go Conference",
		Kind:                 model.KindNormal,
		Status:               model.StatusPublished,
		StartAt:              e.base.Add(24 * time.Hour),
		EndAt:                e.base.Add(30 * time.Hour),
		RegistrationDeadline: e.base.Add(24 * time.Hour),
		CreatedAt:            e.base,
		UpdatedAt:            e.base,
	}
	if mut != nil {
		mut(ev)
	}
	require.NoError(t, e.events.Create(context.Background(), ev))
	return ev
}

// event reloads the event from the store.
func (e *env) event(t *testing.T, id string) *model.Event {
	t.Helper()
	ev, err := e.events.Get(context.Background(), id)
	require.NoError(t, err)
	return ev
}

// registration reloads a registration from the store.
func (e *env) registration(t *testing.T, id string) *model.Registration {
	t.Helper()
	reg, err := e.regs.Get(context.Background(), id)
	require.NoError(t, err)
	return reg
}
