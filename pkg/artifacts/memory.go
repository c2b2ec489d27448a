package artifacts

import (
	"context"
	"sync"
)

// MemoryStore keeps artifacts in process memory. It is safe for concurrent use
// and is meant for tests and single-process runs where the trainer hands
// artifacts straight to a predictor.
type MemoryStore struct {
	mu        sync.RWMutex
	models    map[string]*ModelArtifact
	ensembles map[string]*EnsembleArtifact
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		models:    make(map[string]*ModelArtifact),
		ensembles: make(map[string]*EnsembleArtifact),
	}
}

func (s *MemoryStore) SaveModel(_ context.Context, a *ModelArtifact) error {
	if err := checkTarget(a.Target); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.models[a.Target] = a
	return nil
}

func (s *MemoryStore) LoadModel(_ context.Context, target string) (*ModelArtifact, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.models[target]
	return a, ok, nil
}

func (s *MemoryStore) SaveEnsemble(_ context.Context, e *EnsembleArtifact) error {
	if err := checkTarget(e.Target); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensembles[e.Target] = e
	return nil
}

func (s *MemoryStore) LoadEnsemble(_ context.Context, target string) (*EnsembleArtifact, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.ensembles[target]
	return e, ok, nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}
