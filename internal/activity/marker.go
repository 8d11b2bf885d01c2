package activity

import "github.com/google/uuid"

// NewMarker returns prefix followed by a random UUID. Scenarios embed markers
// in SMS bodies so an exact-match wait cannot be satisfied by unrelated
// concurrent traffic.
func NewMarker(prefix string) string {
	if prefix == "" {
		return uuid.NewString()
	}
	return prefix + " " + uuid.NewString()
}
