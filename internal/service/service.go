// Package service implements the business logic of the registration engine:
// the event lifecycle controller, the registration workflow, payment
// approval, and attendance marking. Services hold no locks across store
// calls; correctness under concurrency comes from the store's conditional
// primitives, with explicit compensation where a pair of writes cannot be
// atomic.
package service

import (
	"time"

	"github.com/meetflow/meetflow/internal/model"
	"github.com/meetflow/meetflow/internal/store"
)

// canManage reports whether the actor may administer the given event.
func canManage(actor model.Identity, e *model.Event) bool {
	if actor.Role == model.RoleAdmin {
		return true
	}
	return actor.Role == model.RoleOrganizer && actor.UserID == e.OrganizerID
}

// requireManager returns ErrForbidden unless the actor administers the event.
func requireManager(actor model.Identity, e *model.Event) error {
	if !canManage(actor, e) {
		return store.ErrForbidden
	}
	return nil
}

// clock is time.Now by default; tests substitute it to pin the instant.
type clock func() time.Time
