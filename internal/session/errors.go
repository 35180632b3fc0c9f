package session

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionNotFound is returned for an unknown session id.
	ErrSessionNotFound = errors.New("session not found")

	// ErrNotInProgress is matched by every *ErrNotActive.
	ErrNotInProgress = errors.New("session not in progress")

	// ErrItemAlreadyAdministered rejects a second response to the same item.
	ErrItemAlreadyAdministered = errors.New("item already administered in this session")

	// ErrItemNotPending rejects a response to an item other than the one
	// the session is waiting on.
	ErrItemNotPending = errors.New("item is not the pending item")

	// ErrInvalidRequest rejects malformed operation arguments.
	ErrInvalidRequest = errors.New("invalid request")
)

// ErrNotActive reports a mutation attempted on a finished session.
type ErrNotActive struct {
	ID     string
	Status Status
}

func (e *ErrNotActive) Error() string {
	return fmt.Sprintf("session %s is %s", e.ID, e.Status)
}

func (e *ErrNotActive) Unwrap() error { return ErrNotInProgress }
