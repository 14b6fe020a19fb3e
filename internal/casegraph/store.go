package casegraph

import (
	"context"
	"sync"

	id "caseregistry/pkg/domain"
	"caseregistry/pkg/platform/sentinel"
)

// CaseStore fetches case records by ID. Implementations return
// sentinel.ErrNotFound for missing records; each Get may be a remote call.
type CaseStore interface {
	Get(ctx context.Context, caseID id.CaseID) (*Case, error)
}

// InMemoryCaseStore holds cases in a map, serving tests and local runs.
type InMemoryCaseStore struct {
	mu    sync.RWMutex
	cases map[id.CaseID]*Case
}

func NewInMemoryCaseStore() *InMemoryCaseStore {
	return &InMemoryCaseStore{cases: make(map[id.CaseID]*Case)}
}

// Put stores or replaces a case.
func (s *InMemoryCaseStore) Put(c *Case) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cases[c.ID] = c
}

// Delete removes a case, simulating soft-deleted or cross-domain records.
func (s *InMemoryCaseStore) Delete(caseID id.CaseID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cases, caseID)
}

func (s *InMemoryCaseStore) Get(_ context.Context, caseID id.CaseID) (*Case, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.cases[caseID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	clone := *c
	return &clone, nil
}
