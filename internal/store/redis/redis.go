// Package redis stores record store collections as Redis string values.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"medipos/backend/internal/store"
)

type Medium struct {
	client *goredis.Client
	prefix string
}

// New connects to addr. Keys are written as prefix + collection key.
func New(addr string, password string, db int, prefix string) *Medium {
	client := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &Medium{client: client, prefix: prefix}
}

func (m *Medium) Ping(ctx context.Context) error {
	return m.client.Ping(ctx).Err()
}

func (m *Medium) Close() error {
	return m.client.Close()
}

func (m *Medium) Load(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := m.client.Get(ctx, m.prefix+key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load %s: %w", key, err)
	}
	return val, true, nil
}

func (m *Medium) Save(ctx context.Context, key string, payload []byte) error {
	if err := m.client.Set(ctx, m.prefix+key, payload, 0).Err(); err != nil {
		if isOutOfMemory(err) {
			return fmt.Errorf("save %s: %w: %v", key, store.ErrStorageFull, err)
		}
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

func (m *Medium) Remove(ctx context.Context, key string) error {
	if err := m.client.Del(ctx, m.prefix+key).Err(); err != nil {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}

// isOutOfMemory matches the error reply Redis sends when maxmemory is
// reached under a noeviction policy.
func isOutOfMemory(err error) bool {
	var replyErr goredis.Error
	if errors.As(err, &replyErr) {
		return strings.HasPrefix(replyErr.Error(), "OOM")
	}
	return false
}
