package handler

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/meetflow/meetflow/internal/model"
	"github.com/meetflow/meetflow/internal/store"
)

// Register handles POST /events/{id}/register.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	eventID := chi.URLParam(r, "id")
	var req model.RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	reg, err := h.workflow.Register(r.Context(), actor, eventID, req)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, reg)
}

// CancelRegistration handles POST /registrations/{id}/cancel.
func (h *Handler) CancelRegistration(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	reg, err := h.workflow.Cancel(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reg)
}

// ApprovePayment handles POST /registrations/{id}/approve.
func (h *Handler) ApprovePayment(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	reg, err := h.approvals.Approve(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reg)
}

// RejectPayment handles POST /registrations/{id}/reject.
func (h *Handler) RejectPayment(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	reg, err := h.approvals.Reject(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reg)
}

// ResubmitPayment handles POST /registrations/{id}/resubmit.
func (h *Handler) ResubmitPayment(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	var req model.ResubmitRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	reg, err := h.workflow.Resubmit(r.Context(), actor, chi.URLParam(r, "id"), req)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reg)
}

// Scan handles POST /events/{id}/scan.
func (h *Handler) Scan(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	eventID := chi.URLParam(r, "id")
	var req model.ScanRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	result, err := h.attendance.Scan(r.Context(), actor, eventID, req.Identifier)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// OverrideAttendance handles POST /registrations/{id}/attendance.
func (h *Handler) OverrideAttendance(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	var req model.OverrideAttendanceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	reg, err := h.attendance.Override(r.Context(), actor, chi.URLParam(r, "id"), req)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reg)
}

// ListRegistrations handles GET /events/{id}/registrations, organizer-only.
func (h *Handler) ListRegistrations(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	regs, err := h.eventRegistrations(r, actor)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, regs)
}

// MyRegistrations handles GET /registrations/mine.
func (h *Handler) MyRegistrations(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	regs, err := h.regs.ListByParticipant(r.Context(), actor.UserID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if regs == nil {
		regs = []model.Registration{}
	}
	writeJSON(w, http.StatusOK, regs)
}

// ExportRegistrations handles GET /events/{id}/registrations/export as a
// thin CSV projection.
func (h *Handler) ExportRegistrations(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	regs, err := h.eventRegistrations(r, actor)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="registrations.csv"`)
	cw := csv.NewWriter(w)
	_ = cw.Write([]string{
		"registration_id", "participant_id", "status", "payment", "ticket",
		"item", "quantity", "amount_cents", "attended", "attended_at", "created_at",
	})
	for _, reg := range regs {
		item, qty, amount := "", "", ""
		if reg.Order != nil {
			item = reg.Order.ItemName
			qty = strconv.Itoa(reg.Order.Quantity)
			amount = strconv.FormatInt(reg.Order.TotalCents(), 10)
		}
		attendedAt := ""
		if reg.AttendedAt != nil {
			attendedAt = reg.AttendedAt.Format(time.RFC3339)
		}
		_ = cw.Write([]string{
			reg.ID, reg.ParticipantID, string(reg.Status), string(reg.Payment),
			reg.Ticket, item, qty, amount,
			fmt.Sprintf("%t", reg.Attended), attendedAt,
			reg.CreatedAt.Format(time.RFC3339),
		})
	}
	cw.Flush()
}

// eventRegistrations loads an event's registrations after an ownership
// check.
func (h *Handler) eventRegistrations(r *http.Request, actor model.Identity) ([]model.Registration, error) {
	eventID := chi.URLParam(r, "id")
	event, err := h.events.Get(r.Context(), eventID)
	if err != nil {
		return nil, err
	}
	if actor.Role != model.RoleAdmin && actor.UserID != event.OrganizerID {
		return nil, store.ErrForbidden
	}
	regs, err := h.regs.ListByEvent(r.Context(), eventID)
	if err != nil {
		return nil, err
	}
	if regs == nil {
		regs = []model.Registration{}
	}
	return regs, nil
}
