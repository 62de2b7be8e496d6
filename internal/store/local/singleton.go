package local

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"medipos/backend/internal/store"
)

type recordEnvelope struct {
	Version *int            `json:"version"`
	Record  json.RawMessage `json:"record"`
}

// Singleton persists exactly one record under a key. A stored object without
// the envelope fields is read as a version 0 record.
type Singleton[T any] struct {
	mu         sync.RWMutex
	medium     store.Medium
	key        string
	version    int
	migrations map[int]Migration
}

func NewSingleton[T any](medium store.Medium, key string, version int, migrations map[int]Migration) *Singleton[T] {
	return &Singleton[T]{medium: medium, key: key, version: version, migrations: migrations}
}

func (s *Singleton[T]) load(ctx context.Context) (*T, bool, bool, error) {
	raw, ok, err := s.medium.Load(ctx, s.key)
	if err != nil {
		return nil, false, false, fmt.Errorf("load %s: %w", s.key, err)
	}
	raw = bytes.TrimSpace(raw)
	if !ok || len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, false, false, nil
	}

	var env recordEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, false, false, fmt.Errorf("decode %s: %w", s.key, err)
	}
	version := 0
	body := json.RawMessage(raw)
	if env.Version != nil && env.Record != nil {
		version = *env.Version
		body = env.Record
	}
	if bytes.Equal(bytes.TrimSpace(body), []byte("null")) {
		return nil, false, false, nil
	}

	upgraded, changed, err := upgrade(version, append(append([]byte{'['}, body...), ']'), s.version, s.migrations)
	if err != nil {
		return nil, false, false, fmt.Errorf("migrate %s: %w", s.key, err)
	}

	var records []T
	if err := json.Unmarshal(upgraded, &records); err != nil {
		return nil, false, false, fmt.Errorf("decode %s record: %w", s.key, err)
	}
	if len(records) == 0 {
		return nil, false, changed, nil
	}
	return &records[0], true, changed, nil
}

func (s *Singleton[T]) save(ctx context.Context, record T) error {
	body, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode %s: %w", s.key, err)
	}
	version := s.version
	payload, err := json.Marshal(recordEnvelope{Version: &version, Record: body})
	if err != nil {
		return fmt.Errorf("encode %s: %w", s.key, err)
	}
	if err := s.medium.Save(ctx, s.key, payload); err != nil {
		return fmt.Errorf("save %s: %w", s.key, err)
	}
	return nil
}

func (s *Singleton[T]) Get(ctx context.Context) (*T, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok, _, err := s.load(ctx)
	return record, ok, err
}

func (s *Singleton[T]) Put(ctx context.Context, record T) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(ctx, record)
}

func (s *Singleton[T]) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.medium.Remove(ctx, s.key); err != nil {
		return fmt.Errorf("remove %s: %w", s.key, err)
	}
	return nil
}

func (s *Singleton[T]) Migrate(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok, changed, err := s.load(ctx)
	if err != nil || !ok || !changed {
		return false, err
	}
	return true, s.save(ctx, *record)
}
