// Package ticket generates proof-of-registration codes.
package ticket

import (
	"strings"

	"github.com/google/uuid"
)

// Prefix marks every issued ticket code.
const Prefix = "TKT-"

// New returns a human-readable ticket code drawn from a collision-resistant
// source. Global uniqueness is enforced by the store's unique ticket index;
// the 64 random bits here make a retry effectively unreachable.
func New() string {
	raw := strings.ReplaceAll(uuid.New().String(), "-", "")
	return Prefix + strings.ToUpper(raw[:16])
}

// DecodePayload splits a structured scan payload of the form
// "event-id:ticket-code". A bare code is returned with an empty event id.
func DecodePayload(identifier string) (eventID, code string) {
	if i := strings.LastIndex(identifier, ":"); i >= 0 {
		return identifier[:i], identifier[i+1:]
	}
	return "", identifier
}
