// Package scheduler runs background graph refreshes: an optional cron
// schedule and a watcher that retries once a rate limit expires.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// DefaultPollInterval is how often the rate-limit watcher checks for expiry
const DefaultPollInterval = time.Second

// Refresher is the part of the graph store the scheduler drives
type Refresher interface {
	FetchGraphData(ctx context.Context) error
	IsRateLimited() bool
	CanRetry() bool
	RetryAfterRateLimit(ctx context.Context) (bool, error)
}

// Scheduler triggers refreshes of a Refresher
type Scheduler struct {
	target       Refresher
	logger       *zap.Logger
	pollInterval time.Duration

	cron *cron.Cron

	mu       sync.Mutex
	ctx      context.Context
	entry    cron.EntryID
	schedule string
	done     chan struct{}
}

// New creates a scheduler. pollInterval <= 0 uses DefaultPollInterval.
func New(target Refresher, pollInterval time.Duration, logger *zap.Logger) *Scheduler {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &Scheduler{
		target:       target,
		logger:       logger,
		pollInterval: pollInterval,
		cron:         cron.New(),
		ctx:          context.Background(),
	}
}

// Start launches the cron runner and the rate-limit watcher. Both stop when
// ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.done = make(chan struct{})
	s.mu.Unlock()

	s.cron.Start()
	go s.watchRateLimit(ctx)
}

// Stop halts both loops and waits for a running refresh to finish
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		close(s.done)
		s.done = nil
	}
}

// Schedule returns the active cron spec, empty when disabled
func (s *Scheduler) Schedule() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.schedule
}

// Reschedule replaces the refresh schedule. An empty spec disables
// scheduled refreshes. An invalid spec leaves the current schedule in place.
func (s *Scheduler) Reschedule(spec string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if spec == s.schedule {
		return nil
	}

	var next cron.EntryID
	if spec != "" {
		if _, err := cron.ParseStandard(spec); err != nil {
			return fmt.Errorf("invalid refresh schedule %q: %w", spec, err)
		}
		id, err := s.cron.AddFunc(spec, s.refresh)
		if err != nil {
			return fmt.Errorf("invalid refresh schedule %q: %w", spec, err)
		}
		next = id
	}

	if s.entry != 0 {
		s.cron.Remove(s.entry)
	}
	s.entry = next
	s.schedule = spec

	if spec == "" {
		s.logger.Info("Scheduled refresh disabled")
	} else {
		s.logger.Info("Scheduled refresh updated", zap.String("schedule", spec))
	}
	return nil
}

// refresh is the cron job. It does nothing while a rate limit is in force;
// the watcher owns recovery from that state.
func (s *Scheduler) refresh() {
	if s.target.IsRateLimited() {
		s.logger.Debug("Skipping scheduled refresh while rate limited")
		return
	}

	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	if err := s.target.FetchGraphData(ctx); err != nil {
		s.logger.Warn("Scheduled refresh failed", zap.Error(err))
	}
}

func (s *Scheduler) watchRateLimit(ctx context.Context) {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case <-ticker.C:
			if !s.target.IsRateLimited() || !s.target.CanRetry() {
				continue
			}
			retried, err := s.target.RetryAfterRateLimit(ctx)
			if err != nil {
				s.logger.Warn("Retry after rate limit failed", zap.Error(err))
				continue
			}
			if retried {
				s.logger.Info("Retried after rate limit expired")
			}
		}
	}
}
