package snapshot

import (
	"context"
	"fmt"
	"strings"
)

type redisClient interface {
	GetBytes(ctx context.Context, key string) ([]byte, error)
	Update(ctx context.Context, key string, fn func(current []byte) ([]byte, error)) error
	SnapshotKey(name string) string
}

// RedisSnapshot keeps the document under a namespaced Redis key, updated
// with WATCH/MULTI.
type RedisSnapshot struct {
	client redisClient
	key    string
}

func NewRedisSnapshot(client redisClient, name string) (*RedisSnapshot, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client required")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("snapshot key required")
	}
	return &RedisSnapshot{client: client, key: client.SnapshotKey(name)}, nil
}

func (s *RedisSnapshot) Read(ctx context.Context) ([]byte, error) {
	value, err := s.client.GetBytes(ctx, s.key)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot %s: %w", s.key, err)
	}
	return value, nil
}

func (s *RedisSnapshot) Update(ctx context.Context, fn func(current []byte) ([]byte, error)) error {
	if err := s.client.Update(ctx, s.key, fn); err != nil {
		return fmt.Errorf("updating snapshot %s: %w", s.key, err)
	}
	return nil
}
