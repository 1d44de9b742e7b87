package storage

import (
	"context"
	"sync"
)

// memStore keeps everything in process memory. Used by tests and as the
// "memory" driver for ephemeral deployments.
type memStore struct {
	mu        sync.Mutex
	states    map[string]ContentRecord
	fps       map[string]FingerprintMeta
	announces []AnnounceEntry
}

// NewMemory returns an in-memory Store.
func NewMemory() Store {
	return &memStore{
		states: map[string]ContentRecord{},
		fps:    map[string]FingerprintMeta{},
	}
}

func (s *memStore) PutContentState(_ context.Context, r ContentRecord) error {
	if r.ID == "" {
		return nil
	}
	s.mu.Lock()
	s.states[r.ID] = r
	s.mu.Unlock()
	return nil
}

func (s *memStore) GetContentState(_ context.Context, id string) (ContentRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.states[id]
	return r, ok, nil
}

func (s *memStore) AllContentStates(_ context.Context) ([]ContentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ContentRecord, 0, len(s.states))
	for _, r := range s.states {
		out = append(out, r)
	}
	return out, nil
}

func (s *memStore) RemoveContentStates(_ context.Context, ids []string) error {
	s.mu.Lock()
	for _, id := range ids {
		delete(s.states, id)
	}
	s.mu.Unlock()
	return nil
}

func (s *memStore) ClearContentStates(_ context.Context) error {
	s.mu.Lock()
	s.states = map[string]ContentRecord{}
	s.mu.Unlock()
	return nil
}

func (s *memStore) PutFingerprint(_ context.Context, fp string, meta FingerprintMeta) error {
	if fp == "" {
		return nil
	}
	s.mu.Lock()
	s.fps[fp] = meta
	s.mu.Unlock()
	return nil
}

func (s *memStore) HasFingerprint(_ context.Context, fp string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.fps[fp]
	return ok, nil
}

func (s *memStore) AppendAnnounce(_ context.Context, e AnnounceEntry) error {
	s.mu.Lock()
	s.announces = append(s.announces, e)
	s.mu.Unlock()
	return nil
}

func (s *memStore) Close() error { return nil }
