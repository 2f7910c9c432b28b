package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisSlot stores the payload under a single redis key.
type RedisSlot struct {
	client redis.Cmdable
	key    string
}

// NewRedisSlot binds a slot to prefix+name.
func NewRedisSlot(client redis.Cmdable, prefix, name string) *RedisSlot {
	return &RedisSlot{client: client, key: prefix + name}
}

// Read implements Slot.
func (s *RedisSlot) Read(ctx context.Context) ([]byte, error) {
	payload, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read redis slot %s: %w", s.key, err)
	}
	return payload, nil
}

// Write implements Slot.
func (s *RedisSlot) Write(ctx context.Context, payload []byte) error {
	if err := s.client.Set(ctx, s.key, payload, 0).Err(); err != nil {
		return fmt.Errorf("write redis slot %s: %w", s.key, err)
	}
	return nil
}
