package store

import (
	"time"

	"vouchgraph/internal/domain"
)

// State is a point-in-time copy of the session state
type State struct {
	Loading          bool              `json:"loading"`
	Error            *string           `json:"error"`
	SearchTerm       string            `json:"searchTerm"`
	SelectedNode     *domain.VouchNode `json:"selectedNode"`
	ShowDetailPanel  bool              `json:"showDetailPanel"`
	RateLimited      bool              `json:"isRateLimited"`
	RateLimitRetryAt *time.Time        `json:"rateLimitRetryAt"`
	NodeCount        int               `json:"nodeCount"`
	FilteredCount    int               `json:"filteredNodeCount"`
}

// Snapshot copies the scalar session state
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := State{
		Loading:         s.loading,
		SearchTerm:      s.searchTerm,
		ShowDetailPanel: s.showDetailPanel,
		RateLimited:     s.rateLimited,
		NodeCount:       len(s.graph.Nodes),
		FilteredCount:   len(s.filtered.Nodes),
	}
	if s.errMsg != nil {
		msg := *s.errMsg
		st.Error = &msg
	}
	if s.selected != nil {
		node := *s.selected
		st.SelectedNode = &node
	}
	if s.retryAt != nil {
		at := *s.retryAt
		st.RateLimitRetryAt = &at
	}
	return st
}

// GraphData returns a copy of the canonical graph
func (s *Store) GraphData() domain.GraphData {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.graph.Clone()
}

// FilteredData returns a copy of the filtered graph
func (s *Store) FilteredData() domain.GraphData {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filtered.Clone()
}

// SelectedNode returns the selected node, or nil
func (s *Store) SelectedNode() *domain.VouchNode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.selected == nil {
		return nil
	}
	node := *s.selected
	return &node
}

// Loading reports whether a fetch is in flight
func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// Error returns the last fetch error message, or nil
func (s *Store) Error() *string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.errMsg == nil {
		return nil
	}
	msg := *s.errMsg
	return &msg
}

// SearchTerm returns the search term as entered
func (s *Store) SearchTerm() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.searchTerm
}

// ShowDetailPanel reports whether the selection detail panel is visible
func (s *Store) ShowDetailPanel() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.showDetailPanel
}

// IsRateLimited reports whether a rate-limit cooldown is in effect
func (s *Store) IsRateLimited() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rateLimited
}

// RateLimitRetryAt returns when a retry is permitted, or nil
func (s *Store) RateLimitRetryAt() *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.retryAt == nil {
		return nil
	}
	at := *s.retryAt
	return &at
}
