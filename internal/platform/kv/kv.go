// Package kv provides the durable key-value storage used for device-local
// state such as the console session.
package kv

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound indicates that no value is stored under the key.
var ErrNotFound = errors.New("platform/kv: not found")

// Store is the minimal durable key-value contract.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Redis implements Store on top of a go-redis client. Values never expire on
// the Redis side; callers own their own validity rules.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis constructs a Redis store. Every key is namespaced with prefix.
func NewRedis(client *redis.Client, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix}
}

// Get returns the raw value for key or ErrNotFound.
func (s *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("platform/kv: get %s: %w", key, err)
	}
	return data, nil
}

// Set stores value under key, replacing any previous value.
func (s *Redis) Set(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, s.prefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("platform/kv: set %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Redis) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("platform/kv: delete %s: %w", key, err)
	}
	return nil
}

// Scan walks every key matching pattern (without prefix) and calls fn with
// the unprefixed key. It stops at the first error returned by fn.
func (s *Redis) Scan(ctx context.Context, pattern string, fn func(key string) error) error {
	iter := s.client.Scan(ctx, 0, s.prefix+pattern, 100).Iterator()
	for iter.Next(ctx) {
		if err := fn(iter.Val()[len(s.prefix):]); err != nil {
			return err
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("platform/kv: scan %s: %w", pattern, err)
	}
	return nil
}

var _ Store = (*Redis)(nil)
