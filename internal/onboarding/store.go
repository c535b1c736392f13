package onboarding

import (
	"context"
	"errors"
)

var (
	ErrNotFound          = errors.New("onboarding request not found")
	ErrInvalidTransition = errors.New("invalid lifecycle transition")
)

// Store persists onboarding requests and their transition history.
//
// Transition is the only mutation primitive for anything past draft
// creation: it atomically loads the request, verifies the current status is
// in the allowed set, applies the mutation and persists the result. Two
// concurrent approvals of the same request therefore cannot both succeed.
type Store interface {
	Create(ctx context.Context, r *Request) error
	Get(ctx context.Context, id string) (*Request, error)
	ListByStatus(ctx context.Context, statuses ...Status) ([]Request, error)
	ListByOwner(ctx context.Context, ownerEmail string) ([]Request, error)
	CountByStatus(ctx context.Context) (map[Status]int, error)

	// Transition applies fn to the request under the store's write lock,
	// but only if the current status is one of from. It returns
	// ErrInvalidTransition otherwise and ErrNotFound for unknown ids.
	Transition(ctx context.Context, id string, from []Status, fn func(*Request) error) (*Request, error)

	AppendHistory(ctx context.Context, entry HistoryEntry) error
	History(ctx context.Context, requestID string) ([]HistoryEntry, error)
}

func statusIn(s Status, set []Status) bool {
	for _, candidate := range set {
		if s == candidate {
			return true
		}
	}
	return false
}
