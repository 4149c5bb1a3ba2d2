package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/meetflow/meetflow/internal/model"
)

// CreateEvent handles POST /events.
func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	var req model.CreateEventRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	event, err := h.lifecycle.CreateDraft(r.Context(), actor, req)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, event)
}

// ListEvents handles GET /events.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.events.List(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if events == nil {
		events = []model.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

// GetEvent handles GET /events/{id}, served through the snapshot cache when
// one is wired.
func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if event, ok := h.cache.Get(r.Context(), id); ok {
		writeJSON(w, http.StatusOK, event)
		return
	}
	event, err := h.events.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.cache.Set(r.Context(), event)
	writeJSON(w, http.StatusOK, event)
}

// UpdateEvent handles PATCH /events/{id}.
func (h *Handler) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	var req model.UpdateEventRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	event, err := h.lifecycle.Update(r.Context(), actor, id, req)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.cache.Invalidate(r.Context(), id)
	writeJSON(w, http.StatusOK, event)
}

// DeleteEvent handles DELETE /events/{id}; only drafts can be deleted.
func (h *Handler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.lifecycle.Delete(r.Context(), actor, id); err != nil {
		h.respondError(w, r, err)
		return
	}
	h.cache.Invalidate(r.Context(), id)
	w.WriteHeader(http.StatusNoContent)
}

// PublishEvent handles POST /events/{id}/publish.
func (h *Handler) PublishEvent(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.lifecycle.Publish)
}

// CloseEvent handles POST /events/{id}/close.
func (h *Handler) CloseEvent(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.lifecycle.Close)
}

// CompleteEvent handles POST /events/{id}/complete.
func (h *Handler) CompleteEvent(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.lifecycle.Complete)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, actor model.Identity, id string) (*model.Event, error)) {
	actor, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	event, err := op(r.Context(), actor, id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.cache.Invalidate(r.Context(), id)
	writeJSON(w, http.StatusOK, event)
}
