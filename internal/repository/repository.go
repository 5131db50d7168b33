package repository

import (
	"context"

	"vouchgraph/internal/domain"
)

// TokenStore persists notification tokens keyed by user FID
type TokenStore interface {
	// Save creates or replaces the token for fid
	Save(ctx context.Context, fid string, info domain.NotificationInfo) error
	// Get returns nil, nil when fid has no token
	Get(ctx context.Context, fid string) (*domain.NotificationInfo, error)
	// Remove reports whether a token was deleted
	Remove(ctx context.Context, fid string) (bool, error)
	// ListFIDs returns every FID with a token, oldest registration first
	ListFIDs(ctx context.Context) ([]string, error)

	// Close releases resources
	Close() error
}
