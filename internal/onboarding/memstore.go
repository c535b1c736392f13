package onboarding

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemStore is an in-memory Store used for development mode and unit tests.
// All checks and mutations happen under one mutex, so Transition gives the
// same compare-and-set guarantee as the database-backed store.
type MemStore struct {
	mu       sync.RWMutex
	requests map[string]*Request
	history  map[string][]HistoryEntry
}

func NewMemStore() *MemStore {
	return &MemStore{
		requests: make(map[string]*Request),
		history:  make(map[string][]HistoryEntry),
	}
}

func (s *MemStore) Create(ctx context.Context, r *Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := cloneRequest(r)
	s.requests[r.ID] = clone
	return nil
}

func (s *MemStore) Get(ctx context.Context, id string) (*Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.requests[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRequest(r), nil
}

func (s *MemStore) ListByStatus(ctx context.Context, statuses ...Status) ([]Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []Request
	for _, r := range s.requests {
		if statusIn(r.Status, statuses) {
			result = append(result, *cloneRequest(r))
		}
	}
	sortByCreatedAt(result)
	return result, nil
}

func (s *MemStore) ListByOwner(ctx context.Context, ownerEmail string) ([]Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []Request
	for _, r := range s.requests {
		if r.OwnerEmail == ownerEmail {
			result = append(result, *cloneRequest(r))
		}
	}
	sortByCreatedAt(result)
	return result, nil
}

func (s *MemStore) CountByStatus(ctx context.Context) (map[Status]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[Status]int)
	for _, r := range s.requests {
		counts[r.Status]++
	}
	return counts, nil
}

func (s *MemStore) Transition(ctx context.Context, id string, from []Status, fn func(*Request) error) (*Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.requests[id]
	if !ok {
		return nil, ErrNotFound
	}
	if !statusIn(r.Status, from) {
		return nil, ErrInvalidTransition
	}

	updated := cloneRequest(r)
	if err := fn(updated); err != nil {
		return nil, err
	}
	updated.LastUpdatedAt = time.Now().UTC()
	s.requests[id] = updated

	return cloneRequest(updated), nil
}

func (s *MemStore) AppendHistory(ctx context.Context, entry HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	s.history[entry.RequestID] = append(s.history[entry.RequestID], entry)
	return nil
}

func (s *MemStore) History(ctx context.Context, requestID string) ([]HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.history[requestID]
	result := make([]HistoryEntry, len(entries))
	copy(result, entries)
	return result, nil
}

func cloneRequest(r *Request) *Request {
	clone := *r
	clone.RequestedServices = append([]string(nil), r.RequestedServices...)
	clone.ComplianceFrameworks = append([]string(nil), r.ComplianceFrameworks...)
	if r.ProvisionedResources != nil {
		clone.ProvisionedResources = make(map[string]string, len(r.ProvisionedResources))
		for k, v := range r.ProvisionedResources {
			clone.ProvisionedResources[k] = v
		}
	}
	return &clone
}

func sortByCreatedAt(requests []Request) {
	sort.Slice(requests, func(i, j int) bool {
		return requests[i].CreatedAt.Before(requests[j].CreatedAt)
	})
}
