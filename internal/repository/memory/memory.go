// Package memory implements a process-local TokenStore.
package memory

import (
	"context"
	"sync"

	"vouchgraph/internal/domain"
)

// Store keeps notification tokens in memory
type Store struct {
	mu     sync.RWMutex
	tokens map[string]domain.NotificationInfo
	order  []string
}

// New creates an empty store
func New() *Store {
	return &Store{tokens: make(map[string]domain.NotificationInfo)}
}

func (s *Store) Save(_ context.Context, fid string, info domain.NotificationInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tokens[fid]; !ok {
		s.order = append(s.order, fid)
	}
	s.tokens[fid] = info
	return nil
}

func (s *Store) Get(_ context.Context, fid string) (*domain.NotificationInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	info, ok := s.tokens[fid]
	if !ok {
		return nil, nil
	}
	return &info, nil
}

func (s *Store) Remove(_ context.Context, fid string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tokens[fid]; !ok {
		return false, nil
	}
	delete(s.tokens, fid)
	for i, f := range s.order {
		if f == fid {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true, nil
}

func (s *Store) ListFIDs(context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out, nil
}

func (s *Store) Close() error {
	return nil
}
