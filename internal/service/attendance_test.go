package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meetflow/meetflow/internal/model"
	"github.com/meetflow/meetflow/internal/store"
)

func (e *env) seedTicketed(t *testing.T) (*model.Event, *model.Registration) {
	t.Helper()
	ev := e.seedEvent(t, nil)
	reg, err := e.workflow.Register(context.Background(), participant(1), ev.ID, model.RegisterRequest{})
	require.NoError(t, err)
	require.NotEmpty(t, reg.Ticket)
	return ev, reg
}

func TestScan(t *testing.T) {
	e := newEnv(t)
	ev, reg := e.seedTicketed(t)

	res, err := e.attendance.Scan(context.Background(), e.organizer, ev.ID, reg.Ticket)
	require.NoError(t, err)
	assert.False(t, res.Duplicate)
	assert.True(t, res.MarkedAt.Equal(e.base))
	assert.True(t, res.Registration.Attended)
}

func TestScanPayload(t *testing.T) {
	e := newEnv(t)
	ev, reg := e.seedTicketed(t)

	res, err := e.attendance.Scan(context.Background(), e.organizer, ev.ID, ev.ID+":"+reg.Ticket)
	require.NoError(t, err)
	assert.False(t, res.Duplicate)

	other := e.seedEvent(t, nil)
	_, err = e.attendance.Scan(context.Background(), e.organizer, other.ID, ev.ID+":"+reg.Ticket)
	var ve *store.ValidationError
	assert.ErrorAs(t, err, &ve, "payload names a different event")
}

func TestScanDuplicateKeepsOriginalTime(t *testing.T) {
	e := newEnv(t)
	ev, reg := e.seedTicketed(t)

	first, err := e.attendance.Scan(context.Background(), e.organizer, ev.ID, reg.Ticket)
	require.NoError(t, err)

	e.setNow(e.base.Add(time.Hour))
	second, err := e.attendance.Scan(context.Background(), e.organizer, ev.ID, reg.Ticket)
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.True(t, second.MarkedAt.Equal(first.MarkedAt), "duplicate reports the original mark time")
}

func TestScanConcurrent(t *testing.T) {
	e := newEnv(t)
	ev, reg := e.seedTicketed(t)

	const n = 4
	results := make([]*model.ScanResult, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = e.attendance.Scan(context.Background(), e.organizer, ev.ID, reg.Ticket)
		}(i)
	}
	wg.Wait()

	fresh := 0
	for i, res := range results {
		require.NoError(t, errs[i])
		if !res.Duplicate {
			fresh++
		}
	}
	assert.Equal(t, 1, fresh, "exactly one scan marks attendance")
}

func TestScanRejections(t *testing.T) {
	e := newEnv(t)
	ev, reg := e.seedTicketed(t)
	ctx := context.Background()

	_, err := e.attendance.Scan(ctx, participant(1), ev.ID, reg.Ticket)
	assert.ErrorIs(t, err, store.ErrForbidden)

	_, err = e.attendance.Scan(ctx, e.organizer, ev.ID, "TKT-DOESNOTEXIST")
	assert.ErrorIs(t, err, store.ErrNotFound)

	var ve *store.ValidationError
	_, err = e.attendance.Scan(ctx, e.organizer, ev.ID, "  ")
	assert.ErrorAs(t, err, &ve)

	other := e.seedEvent(t, nil)
	_, err = e.attendance.Scan(ctx, e.organizer, other.ID, reg.Ticket)
	assert.ErrorAs(t, err, &ve, "ticket belongs to a different event")

	_, err = e.workflow.Cancel(ctx, participant(1), reg.ID)
	require.NoError(t, err)
	_, err = e.attendance.Scan(ctx, e.organizer, ev.ID, reg.Ticket)
	assert.ErrorIs(t, err, store.ErrInvalidState, "cancelled registrations are not admitted")
}

func TestScanUnclearedPayment(t *testing.T) {
	e := newEnv(t)
	ev := e.seedEvent(t, nil)

	// A ticket should never coexist with an uncleared payment; if such a
	// record appears, the scanner still refuses it.
	reg := &model.Registration{
		ID:            uuid.New().String(),
		EventID:       ev.ID,
		ParticipantID: "user-1",
		Status:        model.RegistrationActive,
		Payment:       model.PaymentPending,
		Ticket:        "TKT-0123456789ABCDEF",
		CreatedAt:     e.base,
		UpdatedAt:     e.base,
	}
	require.NoError(t, e.regs.CreateIfAbsent(context.Background(), reg))

	_, err := e.attendance.Scan(context.Background(), e.organizer, ev.ID, reg.Ticket)
	assert.ErrorIs(t, err, store.ErrInvalidState)
}

func TestOverride(t *testing.T) {
	e := newEnv(t)
	_, reg := e.seedTicketed(t)
	ctx := context.Background()

	_, err := e.attendance.Override(ctx, e.organizer, reg.ID, model.OverrideAttendanceRequest{Marked: true})
	var ve *store.ValidationError
	assert.ErrorAs(t, err, &ve, "reason is mandatory")

	marked, err := e.attendance.Override(ctx, e.organizer, reg.ID,
		model.OverrideAttendanceRequest{Marked: true, Reason: "badge scanner offline"})
	require.NoError(t, err)
	assert.True(t, marked.Attended)
	require.NotNil(t, marked.AttendedAt)

	unmarked, err := e.attendance.Override(ctx, e.organizer, reg.ID,
		model.OverrideAttendanceRequest{Marked: false, Reason: "marked the wrong person"})
	require.NoError(t, err)
	assert.False(t, unmarked.Attended)
	assert.Nil(t, unmarked.AttendedAt)

	// Every override lands in the audit trail, toggles included.
	require.Len(t, unmarked.AttendanceLog, 2)
	assert.Equal(t, "badge scanner offline", unmarked.AttendanceLog[0].Reason)
	assert.Equal(t, e.organizer.UserID, unmarked.AttendanceLog[1].Actor)

	_, err = e.attendance.Override(ctx, participant(1), reg.ID,
		model.OverrideAttendanceRequest{Marked: true, Reason: "self-service"})
	assert.ErrorIs(t, err, store.ErrForbidden)
}
