// Package store holds the session state of the vouch graph explorer.
//
// A Store keeps the canonical graph, the search-filtered view derived from
// it, the current selection and the fetch/rate-limit status. Every mutation
// publishes an event on the service EventBus.
package store

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"vouchgraph/internal/domain"
	"vouchgraph/internal/search"
	"vouchgraph/internal/service"
)

// TimestampLayout formats event timestamps for display
const TimestampLayout = "1/2/2006, 3:04:05 PM"

// ReadyToRetry is reported once a rate-limit cooldown has expired
const ReadyToRetry = "Ready to retry"

// ErrNodeNotFound is returned when an operation names an unknown node
var ErrNodeNotFound = errors.New("node not found")

// GraphSource builds a fresh graph snapshot
type GraphSource interface {
	GetVouchGraph(ctx context.Context) (domain.GraphData, error)
}

// Options tunes a Store
type Options struct {
	// Location is used by FormatTimestamp; defaults to time.Local
	Location *time.Location
	// Now overrides the clock
	Now func() time.Time
}

// Store is the session-scoped graph state container
type Store struct {
	mu     sync.RWMutex
	source GraphSource
	bus    *service.EventBus
	logger *zap.Logger
	now    func() time.Time
	loc    *time.Location

	graph           domain.GraphData
	filtered        domain.GraphData
	selected        *domain.VouchNode
	loading         bool
	errMsg          *string
	searchTerm      string
	showDetailPanel bool
	rateLimited     bool
	retryAt         *time.Time
	pins            domain.PinSet

	generation uint64

	// viewMu orders onView calls so observers see filtered graphs in the
	// order they were computed. It is taken before mu.
	viewMu sync.Mutex
	onView func(domain.GraphData, domain.PinSet)
}

// New creates a store backed by source
func New(source GraphSource, bus *service.EventBus, opts Options, logger *zap.Logger) *Store {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Store{
		source:   source,
		bus:      bus,
		logger:   logger,
		now:      opts.Now,
		loc:      opts.Location,
		graph:    domain.NewGraphData(),
		filtered: domain.NewGraphData(),
		pins:     make(domain.PinSet),
	}
}

// FetchGraphData rebuilds the graph from the source. Only the outcome of the
// most recently started fetch is applied; results of superseded fetches are
// discarded. The canonical and filtered graphs are replaced together or not
// at all.
func (s *Store) FetchGraphData(ctx context.Context) error {
	s.mu.Lock()
	s.generation++
	gen := s.generation
	s.loading = true
	s.errMsg = nil
	s.mu.Unlock()

	s.publish(service.EventFetchStarted, map[string]uint64{"generation": gen})

	g, err := s.source.GetVouchGraph(ctx)

	s.viewMu.Lock()
	defer s.viewMu.Unlock()
	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		s.logger.Debug("Discarding superseded fetch",
			zap.Uint64("generation", gen), zap.Error(err))
		return nil
	}
	s.loading = false

	if err != nil {
		msg := err.Error()
		s.errMsg = &msg
		rl, limited := service.IsRateLimited(err)
		if limited {
			retryAt := s.now().Add(rl.RetryAfter)
			s.rateLimited = true
			s.retryAt = &retryAt
		}
		s.mu.Unlock()

		if limited {
			s.logger.Warn("Upstream rate limited graph fetch",
				zap.Duration("retry_after", rl.RetryAfter), zap.Error(err))
			s.publish(service.EventRateLimited, map[string]interface{}{
				"error":    msg,
				"retry_in": rl.RetryAfter.Seconds(),
			})
		} else {
			s.logger.Error("Graph fetch failed", zap.Error(err))
			s.publish(service.EventFetchFailed, map[string]string{"error": msg})
		}
		return err
	}

	s.graph = g
	s.filtered = search.Filter(g, s.searchTerm)
	s.rateLimited = false
	s.retryAt = nil
	if s.selected != nil {
		if node, ok := g.NodeByID(s.selected.ID); ok {
			s.selected = &node
		} else {
			s.selected = nil
			s.showDetailPanel = false
		}
	}
	nodes, links := len(g.Nodes), len(g.Links)
	filtered, pins := s.filtered.Clone(), s.pinsLocked()
	s.mu.Unlock()

	s.notifyView(filtered, pins)
	s.logger.Info("Graph loaded", zap.Int("nodes", nodes), zap.Int("links", links))
	s.publish(service.EventGraphLoaded, map[string]int{"nodes": nodes, "links": links})
	return nil
}

// SelectNode toggles the selection of id. Selecting the selected node clears
// the selection and hides the detail panel.
func (s *Store) SelectNode(id string) error {
	id = domain.NormalizeAddress(id)

	s.mu.Lock()
	if s.selected != nil && s.selected.ID == id {
		s.selected = nil
		s.showDetailPanel = false
		s.mu.Unlock()
		s.publish(service.EventSelectionChanged, map[string]interface{}{"node_id": nil})
		return nil
	}

	node, ok := s.graph.NodeByID(id)
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("select %s: %w", id, ErrNodeNotFound)
	}
	s.selected = &node
	s.showDetailPanel = true
	s.mu.Unlock()

	s.publish(service.EventSelectionChanged, map[string]interface{}{"node_id": id})
	return nil
}

// ClearSelection clears the selection and hides the detail panel
func (s *Store) ClearSelection() {
	s.mu.Lock()
	s.selected = nil
	s.showDetailPanel = false
	s.mu.Unlock()

	s.publish(service.EventSelectionChanged, map[string]interface{}{"node_id": nil})
}

// SetSearchTerm stores term verbatim and recomputes the filtered graph from
// the canonical graph
func (s *Store) SetSearchTerm(term string) {
	s.viewMu.Lock()
	defer s.viewMu.Unlock()

	s.mu.Lock()
	s.searchTerm = term
	s.filtered = search.Filter(s.graph, term)
	nodes, links := len(s.filtered.Nodes), len(s.filtered.Links)
	filtered, pins := s.filtered.Clone(), s.pinsLocked()
	s.mu.Unlock()

	s.notifyView(filtered, pins)

	s.publish(service.EventGraphFiltered, map[string]interface{}{
		"term":  term,
		"nodes": nodes,
		"links": links,
	})
}

// ConnectedNodes lists the links incident to the selected node, most recent
// first. It is empty when nothing is selected.
func (s *Store) ConnectedNodes() []domain.NodeConnection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.selected == nil {
		return []domain.NodeConnection{}
	}
	return domain.ConnectionsOf(s.graph, s.selected.ID)
}

// FormatTimestamp renders Unix seconds as a local date and time, or "N/A"
// for a zero timestamp
func (s *Store) FormatTimestamp(ts int64) string {
	if ts == 0 {
		return "N/A"
	}
	return time.Unix(ts, 0).In(s.loc).Format(TimestampLayout)
}

// RateLimitRemainingTime returns a countdown such as "12s" while a
// cooldown is active, ReadyToRetry once it has expired, and nil when the
// store is not rate limited
func (s *Store) RateLimitRemainingTime() *string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.rateLimited || s.retryAt == nil {
		return nil
	}

	remaining := s.retryAt.Sub(s.now())
	out := ReadyToRetry
	if remaining > 0 {
		out = fmt.Sprintf("%ds", int64(math.Ceil(remaining.Seconds())))
	}
	return &out
}

// CanRetry reports whether a rate-limit cooldown has expired
func (s *Store) CanRetry() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rateLimited && s.retryAt != nil && !s.now().Before(*s.retryAt)
}

// RetryAfterRateLimit clears an expired rate limit and refetches. Before the
// cooldown expires it does nothing and reports false.
func (s *Store) RetryAfterRateLimit(ctx context.Context) (bool, error) {
	s.mu.Lock()
	if s.rateLimited && s.retryAt != nil && s.now().Before(*s.retryAt) {
		s.mu.Unlock()
		return false, nil
	}
	s.rateLimited = false
	s.retryAt = nil
	s.mu.Unlock()

	return true, s.FetchGraphData(ctx)
}

// Stats summarizes the filtered graph
func (s *Store) Stats() domain.GraphStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return domain.ComputeStats(s.filtered)
}

// PinNode records a user-placed position for id. Pins outlive refetches.
func (s *Store) PinNode(id string, x, y float64) error {
	pin := domain.NewPin(id, x, y)

	s.mu.Lock()
	if _, ok := s.graph.NodeByID(pin.NodeID); !ok {
		s.mu.Unlock()
		return fmt.Errorf("pin %s: %w", pin.NodeID, ErrNodeNotFound)
	}
	s.pins[pin.NodeID] = pin
	s.mu.Unlock()

	s.publish(service.EventNodePinned, pin)
	return nil
}

// UnpinNode releases a pinned node and reports whether it was pinned
func (s *Store) UnpinNode(id string) bool {
	id = domain.NormalizeAddress(id)

	s.mu.Lock()
	_, ok := s.pins[id]
	delete(s.pins, id)
	s.mu.Unlock()

	if ok {
		s.publish(service.EventNodeUnpinned, map[string]string{"node_id": id})
	}
	return ok
}

// Pins returns a copy of the pinned positions
func (s *Store) Pins() domain.PinSet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pinsLocked()
}

func (s *Store) pinsLocked() domain.PinSet {
	out := make(domain.PinSet, len(s.pins))
	for id, p := range s.pins {
		out[id] = p
	}
	return out
}

// OnViewChange registers fn to receive the filtered graph and pins whenever
// a fetch or search replaces the filtered graph. fn runs synchronously,
// before the matching bus event is published, and must not call back into
// the store's view mutators.
func (s *Store) OnViewChange(fn func(domain.GraphData, domain.PinSet)) {
	s.viewMu.Lock()
	defer s.viewMu.Unlock()
	s.onView = fn
}

// notifyView requires viewMu
func (s *Store) notifyView(filtered domain.GraphData, pins domain.PinSet) {
	if s.onView != nil {
		s.onView(filtered, pins)
	}
}

func (s *Store) publish(t service.EventType, payload interface{}) {
	s.bus.Publish(service.Event{Type: t, Payload: payload})
}
