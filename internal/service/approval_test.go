package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meetflow/meetflow/internal/model"
	"github.com/meetflow/meetflow/internal/store"
)

func (e *env) seedPaidRegistration(t *testing.T) (*model.Event, *model.Registration) {
	t.Helper()
	ev := e.seedEvent(t, func(ev *model.Event) {
		ev.Kind = model.KindMerchandise
		ev.Items = []model.Item{{ID: "item-1", Name: "Shirt", PriceCents: 2500, Stock: 3}}
	})
	reg, err := e.workflow.Register(context.Background(), participant(1), ev.ID,
		model.RegisterRequest{ItemID: "item-1", Quantity: 2, PaymentProof: "upload-1"})
	require.NoError(t, err)
	return ev, reg
}

func TestApproveCommitsOrder(t *testing.T) {
	e := newEnv(t)
	ev, reg := e.seedPaidRegistration(t)

	approved, err := e.approvals.Approve(context.Background(), e.organizer, reg.ID)
	require.NoError(t, err)

	assert.Equal(t, model.PaymentPaid, approved.Payment)
	assert.NotEmpty(t, approved.Ticket)

	got := e.event(t, ev.ID)
	item, _ := got.Item("item-1")
	assert.Equal(t, 1, item.Stock, "stock committed at approval")
	assert.Equal(t, int64(5000), got.TotalRevenueCents)
}

func TestApproveFeeOnly(t *testing.T) {
	e := newEnv(t)
	ev := e.seedEvent(t, func(ev *model.Event) { ev.FeeCents = 1500 })
	reg, err := e.workflow.Register(context.Background(), participant(1), ev.ID,
		model.RegisterRequest{PaymentProof: "upload-1"})
	require.NoError(t, err)

	approved, err := e.approvals.Approve(context.Background(), e.organizer, reg.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentPaid, approved.Payment)
	assert.Equal(t, int64(1500), e.event(t, ev.ID).TotalRevenueCents)
}

func TestApproveRequiresManager(t *testing.T) {
	e := newEnv(t)
	_, reg := e.seedPaidRegistration(t)

	_, err := e.approvals.Approve(context.Background(), participant(1), reg.ID)
	assert.ErrorIs(t, err, store.ErrForbidden)

	other := model.Identity{UserID: "org-2", Role: model.RoleOrganizer}
	_, err = e.approvals.Approve(context.Background(), other, reg.ID)
	assert.ErrorIs(t, err, store.ErrForbidden, "only the owning organizer or an admin")

	admin := model.Identity{UserID: "admin-1", Role: model.RoleAdmin}
	_, err = e.approvals.Approve(context.Background(), admin, reg.ID)
	assert.NoError(t, err)
}

func TestApproveConcurrentDouble(t *testing.T) {
	e := newEnv(t)
	ev := e.seedEvent(t, func(ev *model.Event) {
		ev.Kind = model.KindMerchandise
		ev.Items = []model.Item{{ID: "item-1", Name: "Shirt", PriceCents: 2500, Stock: 4}}
	})
	reg, err := e.workflow.Register(context.Background(), participant(1), ev.ID,
		model.RegisterRequest{ItemID: "item-1", Quantity: 2, PaymentProof: "upload-1"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = e.approvals.Approve(context.Background(), e.organizer, reg.ID)
		}(i)
	}
	wg.Wait()

	// The loser fails on the ticket issuance guard or, if it read the record
	// after the winner finished, on the precondition check. Never silently.
	successes := 0
	for _, err := range errs {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, store.ErrAlreadyTicketed), errors.Is(err, store.ErrInvalidState):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, successes)

	got := e.event(t, ev.ID)
	item, _ := got.Item("item-1")
	assert.Equal(t, 2, item.Stock, "stock committed exactly once")
	assert.Equal(t, int64(5000), got.TotalRevenueCents, "revenue counted exactly once")

	final := e.registration(t, reg.ID)
	assert.Equal(t, model.PaymentPaid, final.Payment)
	assert.NotEmpty(t, final.Ticket)
}

func TestApproveSequentialDouble(t *testing.T) {
	e := newEnv(t)
	ev, reg := e.seedPaidRegistration(t)

	_, err := e.approvals.Approve(context.Background(), e.organizer, reg.ID)
	require.NoError(t, err)

	_, err = e.approvals.Approve(context.Background(), e.organizer, reg.ID)
	assert.ErrorIs(t, err, store.ErrInvalidState, "paid is terminal for approval")

	got := e.event(t, ev.ID)
	item, _ := got.Item("item-1")
	assert.Equal(t, 1, item.Stock)
	assert.Equal(t, int64(5000), got.TotalRevenueCents)
}

func TestApproveInsufficientStock(t *testing.T) {
	e := newEnv(t)
	ev := e.seedEvent(t, func(ev *model.Event) {
		ev.Kind = model.KindMerchandise
		ev.Items = []model.Item{{ID: "item-1", Name: "Shirt", PriceCents: 2500, Stock: 2}}
	})

	first, err := e.workflow.Register(context.Background(), participant(1), ev.ID,
		model.RegisterRequest{ItemID: "item-1", Quantity: 2, PaymentProof: "p1"})
	require.NoError(t, err)
	second, err := e.workflow.Register(context.Background(), participant(2), ev.ID,
		model.RegisterRequest{ItemID: "item-1", Quantity: 2, PaymentProof: "p2"})
	require.NoError(t, err, "pending orders are not stock-limited")

	_, err = e.approvals.Approve(context.Background(), e.organizer, first.ID)
	require.NoError(t, err)

	_, err = e.approvals.Approve(context.Background(), e.organizer, second.ID)
	assert.ErrorIs(t, err, store.ErrInsufficientStock)

	// The losing registration stays pending and keeps no ticket.
	got := e.registration(t, second.ID)
	assert.Equal(t, model.PaymentPending, got.Payment)
	assert.Empty(t, got.Ticket)
}

func TestApproveAfterRejection(t *testing.T) {
	e := newEnv(t)
	_, reg := e.seedPaidRegistration(t)

	_, err := e.approvals.Reject(context.Background(), e.organizer, reg.ID)
	require.NoError(t, err)

	approved, err := e.approvals.Approve(context.Background(), e.organizer, reg.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentPaid, approved.Payment)
	assert.NotEmpty(t, approved.Ticket)
}

func TestApproveCancelledRegistration(t *testing.T) {
	e := newEnv(t)
	_, reg := e.seedPaidRegistration(t)

	_, err := e.workflow.Cancel(context.Background(), participant(1), reg.ID)
	require.NoError(t, err)

	_, err = e.approvals.Approve(context.Background(), e.organizer, reg.ID)
	assert.ErrorIs(t, err, store.ErrInvalidState)
}

func TestApproveFreeRegistration(t *testing.T) {
	e := newEnv(t)
	ev := e.seedEvent(t, nil)
	reg, err := e.workflow.Register(context.Background(), participant(1), ev.ID, model.RegisterRequest{})
	require.NoError(t, err)

	_, err = e.approvals.Approve(context.Background(), e.organizer, reg.ID)
	assert.ErrorIs(t, err, store.ErrInvalidState, "free registrations never enter review")
}

func TestRejectRules(t *testing.T) {
	e := newEnv(t)
	_, reg := e.seedPaidRegistration(t)

	rejected, err := e.approvals.Reject(context.Background(), e.organizer, reg.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentRejected, rejected.Payment)

	_, err = e.approvals.Reject(context.Background(), e.organizer, reg.ID)
	assert.ErrorIs(t, err, store.ErrInvalidState, "only pending payments can be rejected")
}

func TestCancelPaidRestoresRevenue(t *testing.T) {
	e := newEnv(t)
	ev, reg := e.seedPaidRegistration(t)

	_, err := e.approvals.Approve(context.Background(), e.organizer, reg.ID)
	require.NoError(t, err)
	require.Equal(t, int64(5000), e.event(t, ev.ID).TotalRevenueCents)

	_, err = e.workflow.Cancel(context.Background(), participant(1), reg.ID)
	require.NoError(t, err)

	got := e.event(t, ev.ID)
	assert.Equal(t, int64(0), got.TotalRevenueCents, "refund reverses the approval's revenue")
	item, _ := got.Item("item-1")
	assert.Equal(t, 3, item.Stock, "committed stock returns on cancellation")
	assert.Equal(t, 0, got.RegistrationCount)
}
