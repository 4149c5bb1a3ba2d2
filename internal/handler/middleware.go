package handler

import (
	"context"
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/meetflow/meetflow/internal/model"
)

type contextKey string

const identityKey contextKey = "identity"

// Identity trusts the already-authenticated caller headers set by the
// gateway: X-User-ID, X-User-Role, and optionally X-User-Segment. The engine
// never authenticates; it only authorizes.
func Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := model.Identity{
			UserID:  r.Header.Get("X-User-ID"),
			Role:    model.Role(r.Header.Get("X-User-Role")),
			Segment: r.Header.Get("X-User-Segment"),
		}
		ctx := context.WithValue(r.Context(), identityKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// identityFrom extracts the caller identity, reporting whether one was
// supplied at all.
func identityFrom(r *http.Request) (model.Identity, bool) {
	id, _ := r.Context().Value(identityKey).(model.Identity)
	return id, id.UserID != ""
}

// requireIdentity writes a 401 when the gateway supplied no caller.
func requireIdentity(w http.ResponseWriter, r *http.Request) (model.Identity, bool) {
	id, ok := identityFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "caller identity is required")
	}
	return id, ok
}

// AccessLog emits one structured line per request.
func AccessLog(log *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.WithFields(logrus.Fields{
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     ww.Status(),
				"duration":   time.Since(start).String(),
				"request_id": chimiddleware.GetReqID(r.Context()),
			}).Info("request")
		})
	}
}

// CORS is a permissive policy for browser clients.
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-User-ID, X-User-Role, X-User-Segment")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
