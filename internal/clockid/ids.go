package clockid

import "github.com/google/uuid"

// NewEventID mints the id for a ForwardingEvent row.
func NewEventID() string {
	return uuid.NewString()
}

// NewClaimToken mints an opaque token recorded in an intent's metadata at
// claim time, useful for correlating claim/release pairs in logs.
func NewClaimToken() string {
	return uuid.NewString()
}
