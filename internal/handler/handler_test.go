package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meetflow/meetflow/internal/model"
	"github.com/meetflow/meetflow/internal/service"
	"github.com/meetflow/meetflow/internal/store/memory"
)

var (
	organizer   = model.Identity{UserID: "org-1", Role: model.RoleOrganizer}
	participant = model.Identity{UserID: "user-1", Role: model.RoleParticipant}
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)

	mem := memory.New()
	events, regs := mem.Events(), mem.Registrations()
	lifecycle := service.NewLifecycleService(events, nil, log)
	workflow := service.NewRegistrationService(events, regs, nil, log)
	approvals := service.NewApprovalService(events, regs, nil, log)
	attendance := service.NewAttendanceService(events, regs, nil, log)
	return New(lifecycle, workflow, approvals, attendance, events, regs, nil, log).Routes()
}

func do(t *testing.T, router http.Handler, method, path string, id model.Identity, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if id.UserID != "" {
		req.Header.Set("X-User-ID", id.UserID)
		req.Header.Set("X-User-Role", string(id.Role))
		if id.Segment != "" {
			req.Header.Set("X-User-Segment", id.Segment)
		}
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v), "body: %s", rec.Body.String())
	return v
}

func createPublished(t *testing.T, router http.Handler) model.Event {
	t.Helper()
	start := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Second)
	rec := do(t, router, http.MethodPost, "/events", organizer, model.CreateEventRequest{
		Name:                 "Go Conference",
		Kind:                 model.KindNormal,
		StartAt:              start,
		EndAt:                start.Add(6 * time.Hour),
		RegistrationDeadline: start,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	ev := decode[model.Event](t, rec)

	rec = do(t, router, http.MethodPost, "/events/"+ev.ID+"/publish", organizer, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decode[model.Event](t, rec)
}

func TestHealth(t *testing.T) {
	router := newTestRouter(t)
	rec := do(t, router, http.MethodGet, "/health", model.Identity{}, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestIdentityRequired(t *testing.T) {
	router := newTestRouter(t)
	rec := do(t, router, http.MethodPost, "/events", model.Identity{}, model.CreateEventRequest{Name: "x"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestEventLifecycleOverHTTP(t *testing.T) {
	router := newTestRouter(t)
	ev := createPublished(t, router)
	assert.Equal(t, model.StatusPublished, ev.Status)

	rec := do(t, router, http.MethodGet, "/events/"+ev.ID, model.Identity{}, nil)
	assert.Equal(t, http.StatusOK, rec.Code, "event detail is public")

	rec = do(t, router, http.MethodPost, "/events/"+ev.ID+"/publish", organizer, nil)
	assert.Equal(t, http.StatusConflict, rec.Code, "publish is draft-only")

	rec = do(t, router, http.MethodDelete, "/events/"+ev.ID, organizer, nil)
	assert.Equal(t, http.StatusConflict, rec.Code, "published events cannot be deleted")

	rec = do(t, router, http.MethodPost, "/events/"+ev.ID+"/close", organizer, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, router, http.MethodPost, "/events/"+ev.ID+"/complete", organizer, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestEventErrors(t *testing.T) {
	router := newTestRouter(t)

	rec := do(t, router, http.MethodGet, "/events/missing", model.Identity{}, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, router, http.MethodPost, "/events", organizer, model.CreateEventRequest{Name: "  "})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/events", strings.NewReader("{not json"))
	req.Header.Set("X-User-ID", organizer.UserID)
	req.Header.Set("X-User-Role", string(organizer.Role))
	raw := httptest.NewRecorder()
	router.ServeHTTP(raw, req)
	assert.Equal(t, http.StatusBadRequest, raw.Code)

	rec = do(t, router, http.MethodPost, "/events", participant, model.CreateEventRequest{Name: "x"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestUpdatePublishedOverHTTP(t *testing.T) {
	router := newTestRouter(t)
	ev := createPublished(t, router)

	rec := do(t, router, http.MethodPatch, "/events/"+ev.ID, organizer,
		map[string]string{"description": "updated"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "updated", decode[model.Event](t, rec).Description)

	rec = do(t, router, http.MethodPatch, "/events/"+ev.ID, organizer,
		map[string]string{"name": "renamed"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, "name is frozen after publish")
}

func TestRegistrationFlowOverHTTP(t *testing.T) {
	router := newTestRouter(t)
	ev := createPublished(t, router)

	rec := do(t, router, http.MethodPost, "/events/"+ev.ID+"/register", participant, model.RegisterRequest{})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	reg := decode[model.Registration](t, rec)
	assert.True(t, strings.HasPrefix(reg.Ticket, "TKT-"))

	rec = do(t, router, http.MethodPost, "/events/"+ev.ID+"/register", participant, model.RegisterRequest{})
	assert.Equal(t, http.StatusConflict, rec.Code, "one registration per participant")

	rec = do(t, router, http.MethodGet, "/registrations/mine", participant, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]model.Registration](t, rec), 1)

	rec = do(t, router, http.MethodGet, "/events/"+ev.ID+"/registrations", organizer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]model.Registration](t, rec), 1)

	other := model.Identity{UserID: "org-2", Role: model.RoleOrganizer}
	rec = do(t, router, http.MethodGet, "/events/"+ev.ID+"/registrations", other, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code, "attendee list is owner-only")

	rec = do(t, router, http.MethodPost, "/events/"+ev.ID+"/scan", organizer,
		model.ScanRequest{Identifier: reg.Ticket})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	first := decode[model.ScanResult](t, rec)
	assert.False(t, first.Duplicate)

	rec = do(t, router, http.MethodPost, "/events/"+ev.ID+"/scan", organizer,
		model.ScanRequest{Identifier: reg.Ticket})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[model.ScanResult](t, rec).Duplicate)

	rec = do(t, router, http.MethodPost, "/registrations/"+reg.ID+"/cancel", participant, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestApprovalFlowOverHTTP(t *testing.T) {
	router := newTestRouter(t)
	start := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Second)
	rec := do(t, router, http.MethodPost, "/events", organizer, model.CreateEventRequest{
		Name:                 "Fan Meetup",
		Kind:                 model.KindNormal,
		FeeCents:             1500,
		StartAt:              start,
		EndAt:                start.Add(2 * time.Hour),
		RegistrationDeadline: start,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	ev := decode[model.Event](t, rec)
	rec = do(t, router, http.MethodPost, "/events/"+ev.ID+"/publish", organizer, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, router, http.MethodPost, "/events/"+ev.ID+"/register", participant,
		model.RegisterRequest{PaymentProof: "upload-1"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	reg := decode[model.Registration](t, rec)
	assert.Equal(t, model.PaymentPending, reg.Payment)
	assert.Empty(t, reg.Ticket)

	rec = do(t, router, http.MethodPost, "/registrations/"+reg.ID+"/reject", organizer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.PaymentRejected, decode[model.Registration](t, rec).Payment)

	rec = do(t, router, http.MethodPost, "/registrations/"+reg.ID+"/resubmit", participant,
		model.ResubmitRequest{PaymentProof: "upload-2"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, router, http.MethodPost, "/registrations/"+reg.ID+"/approve", organizer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	approved := decode[model.Registration](t, rec)
	assert.Equal(t, model.PaymentPaid, approved.Payment)
	assert.NotEmpty(t, approved.Ticket)

	rec = do(t, router, http.MethodPost, "/registrations/"+reg.ID+"/approve", organizer, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, router, http.MethodPost, "/registrations/"+reg.ID+"/attendance", organizer,
		model.OverrideAttendanceRequest{Marked: true, Reason: "scanner offline"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestExportCSV(t *testing.T) {
	router := newTestRouter(t)
	ev := createPublished(t, router)

	rec := do(t, router, http.MethodPost, "/events/"+ev.ID+"/register", participant, model.RegisterRequest{})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, router, http.MethodGet, "/events/"+ev.ID+"/registrations/export", organizer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))

	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "registration_id,participant_id,status"))
	assert.Contains(t, lines[1], participant.UserID)
}

func TestCORSPreflight(t *testing.T) {
	router := newTestRouter(t)
	req := httptest.NewRequest(http.MethodOptions, "/events", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
