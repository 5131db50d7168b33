package adapter

import (
	"context"

	"vouchgraph/internal/domain"
)

// EventSource provides the vouching event feed
type EventSource interface {
	// FetchEvents returns the most recent limit events, newest first
	FetchEvents(ctx context.Context, limit int) ([]domain.ClubEvent, error)
}

// StatsSource provides per-account vouch statistics
type StatsSource interface {
	// FetchAccountStats returns nil, nil when the account is unknown upstream
	FetchAccountStats(ctx context.Context, address string) (*domain.AccountDetails, error)
}

// ProfileSource resolves display profiles for addresses
type ProfileSource interface {
	// FetchProfiles never fails; unresolved addresses are absent from the result
	FetchProfiles(ctx context.Context, addresses []string) map[string]domain.Profile
}

// RequestObserver is notified of every upstream request outcome
type RequestObserver interface {
	ObserveUpstream(api string, status int)
}

type nopObserver struct{}

func (nopObserver) ObserveUpstream(string, int) {}
