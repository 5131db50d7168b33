package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"vouchgraph/internal/adapter"
	"vouchgraph/internal/domain"
)

// DefaultEventLimit is the number of events fetched by GetVouchGraph
const DefaultEventLimit = 200

// DefaultStatsConcurrency bounds concurrent per-account statistics lookups
const DefaultStatsConcurrency = 4

// GraphBuildError reports that no graph could be produced
type GraphBuildError struct {
	Err error
}

func (e *GraphBuildError) Error() string {
	return fmt.Sprintf("failed to build vouch graph: %v", e.Err)
}

func (e *GraphBuildError) Unwrap() error {
	return e.Err
}

// BuildObserver is notified after every GetVouchGraph attempt
type BuildObserver interface {
	ObserveBuild(elapsed time.Duration, g domain.GraphData, err error)
}

// Options tunes a GraphService
type Options struct {
	EventLimit       int
	StatsConcurrency int
}

// GraphService builds vouch graphs from upstream sources
type GraphService struct {
	events   adapter.EventSource
	stats    adapter.StatsSource
	profiles adapter.ProfileSource
	logger   *zap.Logger
	observer BuildObserver

	eventLimit       int
	statsConcurrency int
}

// NewGraphService creates a new graph service
func NewGraphService(events adapter.EventSource, stats adapter.StatsSource, profiles adapter.ProfileSource, opts Options, logger *zap.Logger) *GraphService {
	if opts.EventLimit <= 0 {
		opts.EventLimit = DefaultEventLimit
	}
	if opts.StatsConcurrency <= 0 {
		opts.StatsConcurrency = DefaultStatsConcurrency
	}
	return &GraphService{
		events:           events,
		stats:            stats,
		profiles:         profiles,
		logger:           logger,
		eventLimit:       opts.EventLimit,
		statsConcurrency: opts.StatsConcurrency,
	}
}

// SetObserver registers an observer for build outcomes
func (s *GraphService) SetObserver(o BuildObserver) {
	s.observer = o
}

// GetVouchGraph fetches the most recent events and builds a graph from them
func (s *GraphService) GetVouchGraph(ctx context.Context) (domain.GraphData, error) {
	start := time.Now()
	g, err := s.getVouchGraph(ctx)
	if s.observer != nil {
		s.observer.ObserveBuild(time.Since(start), g, err)
	}
	return g, err
}

func (s *GraphService) getVouchGraph(ctx context.Context) (domain.GraphData, error) {
	events, err := s.events.FetchEvents(ctx, s.eventLimit)
	if err != nil {
		return domain.GraphData{}, &GraphBuildError{Err: err}
	}

	g, err := s.BuildGraph(ctx, events)
	if err != nil {
		return domain.GraphData{}, &GraphBuildError{Err: err}
	}
	return g, nil
}

// BuildGraph transforms club events into a graph. Only VOUCHED events with a
// counterparty contribute. Statistics lookups run concurrently and a failed
// lookup leaves that node with zero statistics.
func (s *GraphService) BuildGraph(ctx context.Context, events []domain.ClubEvent) (domain.GraphData, error) {
	vouches := make([]domain.ClubEvent, 0, len(events))
	for _, e := range events {
		if e.IsVouch() {
			vouches = append(vouches, e)
		}
	}

	addresses := discoverAddresses(vouches)
	profiles := s.profiles.FetchProfiles(ctx, addresses)

	details, err := s.fetchAllStats(ctx, addresses)
	if err != nil {
		return domain.GraphData{}, err
	}

	g := domain.GraphData{
		Nodes: make([]domain.VouchNode, 0, len(addresses)),
		Links: make([]domain.VouchLink, 0, len(vouches)),
	}
	for i, addr := range addresses {
		node := domain.NewVouchNode(addr)
		if p, ok := profiles[addr]; ok {
			node.ApplyProfile(&p)
		}
		node.ApplyStats(details[i])
		g.Nodes = append(g.Nodes, node)
	}

	for _, e := range vouches {
		g.Links = append(g.Links, domain.NewVouchLink(e.Account.ID, e.Other.ID, e.Amount, e.Timestamp))
	}

	g.RecomputeSizes()

	s.logger.Info("Built vouch graph",
		zap.Int("events", len(events)),
		zap.Int("nodes", len(g.Nodes)),
		zap.Int("links", len(g.Links)))
	return g, nil
}

// fetchAllStats returns statistics aligned with addresses. Lookup failures
// are logged and yield nil entries.
func (s *GraphService) fetchAllStats(ctx context.Context, addresses []string) ([]*domain.AccountDetails, error) {
	details := make([]*domain.AccountDetails, len(addresses))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(s.statsConcurrency)
	for i, addr := range addresses {
		i, addr := i, addr
		eg.Go(func() error {
			d, err := s.stats.FetchAccountStats(egCtx, addr)
			if err != nil {
				s.logger.Warn("Account stats unavailable, using defaults",
					zap.String("address", addr), zap.Error(err))
				return nil
			}
			details[i] = d
			return nil
		})
	}
	_ = eg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("fetch account stats: %w", err)
	}
	return details, nil
}

// discoverAddresses returns the distinct normalized addresses of both parties
// in event order
func discoverAddresses(events []domain.ClubEvent) []string {
	seen := make(map[string]struct{})
	addresses := make([]string, 0)
	add := func(id string) {
		addr := domain.NormalizeAddress(id)
		if _, ok := seen[addr]; ok {
			return
		}
		seen[addr] = struct{}{}
		addresses = append(addresses, addr)
	}
	for _, e := range events {
		add(e.Account.ID)
		add(e.Other.ID)
	}
	return addresses
}

// IsRateLimited reports whether err was caused by upstream throttling
func IsRateLimited(err error) (*adapter.RateLimitError, bool) {
	var rl *adapter.RateLimitError
	if errors.As(err, &rl) {
		return rl, true
	}
	return nil, false
}
