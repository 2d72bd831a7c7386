package domain

import "github.com/google/uuid"

// recurringNamespace scopes the name-based UUIDs of recurring events.
var recurringNamespace = uuid.MustParse("5b0c7f4e-2d1a-4f37-9a51-6c0f3e8d2b71")

// RecurringEventID is the deterministic ID of the event a definition
// produces for a period. Two writers racing on the same definition and
// month collide on this ID instead of creating a duplicate.
func RecurringEventID(recurringID, periodKey string) string {
	return uuid.NewSHA1(recurringNamespace, []byte(recurringID+"|"+periodKey)).String()
}

// NewID returns a random identifier.
func NewID() string { return uuid.NewString() }
