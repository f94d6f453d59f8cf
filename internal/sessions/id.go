package sessions

import "github.com/google/uuid"

// newShortID returns a short unique id suitable for a session or a
// message, matching the original's truncated-uuid convention.
func newShortID() string {
	return uuid.NewString()[:8]
}

// newMessageID returns a slightly longer short id, used when SaveTurn
// needs to mint a fresh message id.
func newMessageID() string {
	return uuid.NewString()[:12]
}

// NewMessageID is newMessageID exported for callers (the HTTP layer) that
// need an assistant message id up front, before SaveTurn — e.g. to embed
// it in a download URL alongside the response that SaveTurn will persist.
func NewMessageID() string {
	return newMessageID()
}
