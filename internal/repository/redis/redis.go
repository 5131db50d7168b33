// Package redis implements a TokenStore on Redis so several instances can
// share registrations.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"vouchgraph/internal/domain"
)

// DefaultPrefix namespaces every key the store writes
const DefaultPrefix = "vouchgraph:notify"

// Store keeps tokens in a hash keyed by fid and registration order in a
// sorted set scored by first-save time.
type Store struct {
	client *goredis.Client
	prefix string
	now    func() time.Time
}

// New connects to the Redis server at url (redis://host:port/db)
func New(ctx context.Context, url, prefix string) (*Store, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return NewWithClient(client, prefix), nil
}

// NewWithClient wraps an existing client. The store owns it from here on.
func NewWithClient(client *goredis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{client: client, prefix: prefix, now: time.Now}
}

func (s *Store) tokensKey() string { return s.prefix + ":tokens" }
func (s *Store) orderKey() string  { return s.prefix + ":order" }

func (s *Store) Save(ctx context.Context, fid string, info domain.NotificationInfo) error {
	data, err := json.Marshal(info)
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.HSet(ctx, s.tokensKey(), fid, data)
		pipe.ZAddNX(ctx, s.orderKey(), &goredis.Z{
			Score:  float64(s.now().UnixNano()),
			Member: fid,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save token for fid %s: %w", fid, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, fid string) (*domain.NotificationInfo, error) {
	data, err := s.client.HGet(ctx, s.tokensKey(), fid).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get token for fid %s: %w", fid, err)
	}
	var info domain.NotificationInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("corrupt token for fid %s: %w", fid, err)
	}
	return &info, nil
}

func (s *Store) Remove(ctx context.Context, fid string) (bool, error) {
	var del *goredis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		del = pipe.HDel(ctx, s.tokensKey(), fid)
		pipe.ZRem(ctx, s.orderKey(), fid)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to remove token for fid %s: %w", fid, err)
	}
	return del.Val() > 0, nil
}

func (s *Store) ListFIDs(ctx context.Context) ([]string, error) {
	fids, err := s.client.ZRange(ctx, s.orderKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list fids: %w", err)
	}
	return fids, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}
