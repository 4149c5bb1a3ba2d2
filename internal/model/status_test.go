package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventTransitions(t *testing.T) {
	allowed := []struct{ from, to EventStatus }{
		{StatusDraft, StatusPublished},
		{StatusPublished, StatusOngoing},
		{StatusPublished, StatusClosed},
		{StatusPublished, StatusCompleted},
		{StatusOngoing, StatusClosed},
		{StatusOngoing, StatusCompleted},
		{StatusClosed, StatusCompleted},
	}
	for _, tr := range allowed {
		assert.True(t, tr.from.CanTransitionTo(tr.to), "%s -> %s", tr.from, tr.to)
	}

	denied := []struct{ from, to EventStatus }{
		{StatusDraft, StatusOngoing},
		{StatusDraft, StatusClosed},
		{StatusPublished, StatusDraft},
		{StatusOngoing, StatusPublished},
		{StatusClosed, StatusOngoing},
		{StatusCompleted, StatusClosed},
		{StatusCompleted, StatusDraft},
	}
	for _, tr := range denied {
		assert.False(t, tr.from.CanTransitionTo(tr.to), "%s -> %s", tr.from, tr.to)
	}
}

func TestEventStatusPredicates(t *testing.T) {
	assert.True(t, StatusDraft.Valid())
	assert.False(t, EventStatus("archived").Valid())

	assert.True(t, StatusCompleted.Terminal())
	assert.False(t, StatusClosed.Terminal())

	assert.True(t, StatusDraft.Editable())
	assert.True(t, StatusPublished.Editable())
	assert.False(t, StatusOngoing.Editable())
	assert.False(t, StatusCompleted.Editable())
}

func TestPaymentTransitions(t *testing.T) {
	assert.True(t, PaymentPending.CanTransitionTo(PaymentPaid))
	assert.True(t, PaymentPending.CanTransitionTo(PaymentRejected))
	assert.True(t, PaymentRejected.CanTransitionTo(PaymentPending))

	assert.False(t, PaymentRejected.CanTransitionTo(PaymentPaid), "rejected must pass through review again")
	assert.False(t, PaymentFree.CanTransitionTo(PaymentPending), "free is terminal")
	assert.False(t, PaymentPaid.CanTransitionTo(PaymentRejected), "paid is terminal")
}

func TestPaymentFulfilled(t *testing.T) {
	assert.True(t, PaymentFree.Fulfilled())
	assert.True(t, PaymentPaid.Fulfilled())
	assert.False(t, PaymentPending.Fulfilled())
	assert.False(t, PaymentRejected.Fulfilled())
}
