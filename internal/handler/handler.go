// Package handler contains the chi HTTP handlers that translate requests and
// responses to and from the service layer.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/meetflow/meetflow/internal/cache"
	"github.com/meetflow/meetflow/internal/model"
	"github.com/meetflow/meetflow/internal/service"
	"github.com/meetflow/meetflow/internal/store"
)

// Handler holds all HTTP handlers for the registration API.
type Handler struct {
	lifecycle  *service.LifecycleService
	workflow   *service.RegistrationService
	approvals  *service.ApprovalService
	attendance *service.AttendanceService
	events     store.EventStore
	regs       store.RegistrationStore
	cache      *cache.EventCache
	log        *logrus.Logger
}

// New constructs a Handler. The cache may be nil.
func New(
	lifecycle *service.LifecycleService,
	workflow *service.RegistrationService,
	approvals *service.ApprovalService,
	attendance *service.AttendanceService,
	events store.EventStore,
	regs store.RegistrationStore,
	eventCache *cache.EventCache,
	log *logrus.Logger,
) *Handler {
	return &Handler{
		lifecycle:  lifecycle,
		workflow:   workflow,
		approvals:  approvals,
		attendance: attendance,
		events:     events,
		regs:       regs,
		cache:      eventCache,
		log:        log,
	}
}

// Routes builds the API router with the global middleware stack.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(AccessLog(h.log))
	r.Use(CORS)
	r.Use(Identity)

	r.Get("/health", HealthCheck)

	r.Route("/events", func(r chi.Router) {
		r.Post("/", h.CreateEvent)
		r.Get("/", h.ListEvents)
		r.Get("/{id}", h.GetEvent)
		r.Patch("/{id}", h.UpdateEvent)
		r.Delete("/{id}", h.DeleteEvent)
		r.Post("/{id}/publish", h.PublishEvent)
		r.Post("/{id}/close", h.CloseEvent)
		r.Post("/{id}/complete", h.CompleteEvent)
		r.Post("/{id}/register", h.Register)
		r.Get("/{id}/registrations", h.ListRegistrations)
		r.Get("/{id}/registrations/export", h.ExportRegistrations)
		r.Post("/{id}/scan", h.Scan)
	})

	r.Route("/registrations", func(r chi.Router) {
		r.Get("/mine", h.MyRegistrations)
		r.Post("/{id}/cancel", h.CancelRegistration)
		r.Post("/{id}/approve", h.ApprovePayment)
		r.Post("/{id}/reject", h.RejectPayment)
		r.Post("/{id}/resubmit", h.ResubmitPayment)
		r.Post("/{id}/attendance", h.OverrideAttendance)
	})

	return r
}

// ─── Helper utilities ─────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, model.ErrorResponse{Error: msg})
}

func decodeJSON(r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(nil, r.Body, 1<<20) // 1 MB limit
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// respondError maps domain errors to HTTP statuses. Business rejections keep
// their specific, actionable message; unexpected failures are logged in full
// and surfaced opaquely.
func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *store.ValidationError
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, store.ErrAlreadyRegistered),
		errors.Is(err, store.ErrAlreadyTicketed),
		errors.Is(err, store.ErrInvalidState),
		errors.Is(err, store.ErrInsufficientStock),
		errors.Is(err, store.ErrLimitReached),
		errors.Is(err, store.ErrDeadlinePassed):
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &ve):
		writeError(w, http.StatusUnprocessableEntity, ve.Error())
	case store.IsTransient(err):
		h.log.WithError(err).Warn("storage unavailable")
		writeError(w, http.StatusServiceUnavailable, "storage temporarily unavailable, retry")
	default:
		h.log.WithError(err).WithField("path", r.URL.Path).Error("internal error")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// HealthCheck handles GET /health.
func HealthCheck(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
