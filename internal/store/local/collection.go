package local

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"medipos/backend/internal/store"
	"medipos/backend/internal/xid"
)

// Entity is satisfied by pointers to persisted domain records.
type Entity[T any] interface {
	*T
	RecordID() string
	AssignID(id string)
	Touch(at time.Time)
}

// Migration upgrades raw records from version N to N+1.
type Migration func(records []map[string]any) ([]map[string]any, error)

type envelope struct {
	Version int             `json:"version"`
	Records json.RawMessage `json:"records"`
}

// Collection is a keyed list of records persisted as one value. Every read
// decodes the committed value and every mutation writes the full list back,
// so a failed write leaves the previous state visible.
type Collection[T any, P Entity[T]] struct {
	mu         sync.RWMutex
	medium     store.Medium
	key        string
	prefix     string
	version    int
	migrations map[int]Migration
	now        func() time.Time
}

func NewCollection[T any, P Entity[T]](medium store.Medium, key string, prefix string, version int, migrations map[int]Migration) *Collection[T, P] {
	return &Collection[T, P]{
		medium:     medium,
		key:        key,
		prefix:     prefix,
		version:    version,
		migrations: migrations,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (c *Collection[T, P]) load(ctx context.Context) ([]T, bool, error) {
	raw, ok, err := c.medium.Load(ctx, c.key)
	if err != nil {
		return nil, false, fmt.Errorf("load %s: %w", c.key, err)
	}
	if !ok {
		return []T{}, false, nil
	}

	env, err := decodeEnvelope(raw)
	if err != nil {
		return nil, false, fmt.Errorf("decode %s: %w", c.key, err)
	}
	body, upgraded, err := upgrade(env.Version, env.Records, c.version, c.migrations)
	if err != nil {
		return nil, false, fmt.Errorf("migrate %s: %w", c.key, err)
	}

	records := []T{}
	if len(body) > 0 && !bytes.Equal(body, []byte("null")) {
		if err := json.Unmarshal(body, &records); err != nil {
			return nil, false, fmt.Errorf("decode %s records: %w", c.key, err)
		}
	}
	return records, upgraded, nil
}

func (c *Collection[T, P]) save(ctx context.Context, records []T) error {
	if records == nil {
		records = []T{}
	}
	body, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode %s: %w", c.key, err)
	}
	payload, err := json.Marshal(envelope{Version: c.version, Records: body})
	if err != nil {
		return fmt.Errorf("encode %s: %w", c.key, err)
	}
	if err := c.medium.Save(ctx, c.key, payload); err != nil {
		return fmt.Errorf("save %s: %w", c.key, err)
	}
	return nil
}

// Exists reports whether the key has ever been written.
func (c *Collection[T, P]) Exists(ctx context.Context) (bool, error) {
	_, ok, err := c.medium.Load(ctx, c.key)
	return ok, err
}

// Migrate rewrites the stored value at the current version if it was older.
func (c *Collection[T, P]) Migrate(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	records, upgraded, err := c.load(ctx)
	if err != nil || !upgraded {
		return false, err
	}
	return true, c.save(ctx, records)
}

func (c *Collection[T, P]) List(ctx context.Context, keep func(*T) bool) ([]T, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	records, _, err := c.load(ctx)
	if err != nil {
		return nil, err
	}
	if keep == nil {
		return records, nil
	}
	out := make([]T, 0, len(records))
	for i := range records {
		if keep(&records[i]) {
			out = append(out, records[i])
		}
	}
	return out, nil
}

func (c *Collection[T, P]) Get(ctx context.Context, id string) (*T, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	records, _, err := c.load(ctx)
	if err != nil {
		return nil, false, err
	}
	idx := indexOf[T, P](records, id)
	if idx < 0 {
		return nil, false, nil
	}
	found := records[idx]
	return &found, true, nil
}

func (c *Collection[T, P]) Insert(ctx context.Context, records ...T) ([]T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	existing, _, err := c.load(ctx)
	if err != nil {
		return nil, err
	}

	now := c.now()
	inserted := make([]T, 0, len(records))
	for _, record := range records {
		ptr := P(&record)
		if ptr.RecordID() == "" {
			ptr.AssignID(xid.New(c.prefix))
		}
		if indexOf[T, P](existing, ptr.RecordID()) >= 0 {
			return nil, fmt.Errorf("%s id %s: %w", c.key, ptr.RecordID(), store.ErrDuplicate)
		}
		ptr.Touch(now)
		existing = append(existing, record)
		inserted = append(inserted, record)
	}

	if err := c.save(ctx, existing); err != nil {
		return nil, err
	}
	return inserted, nil
}

func (c *Collection[T, P]) Update(ctx context.Context, id string, mutate func(*T)) (*T, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	records, _, err := c.load(ctx)
	if err != nil {
		return nil, false, err
	}
	idx := indexOf[T, P](records, id)
	if idx < 0 {
		return nil, false, nil
	}

	updated := records[idx]
	if mutate != nil {
		mutate(&updated)
	}
	ptr := P(&updated)
	ptr.AssignID(id)
	ptr.Touch(c.now())
	records[idx] = updated

	if err := c.save(ctx, records); err != nil {
		return nil, false, err
	}
	return &updated, true, nil
}

func (c *Collection[T, P]) Delete(ctx context.Context, id string) (bool, error) {
	removed, err := c.DeleteWhere(ctx, func(record *T) bool {
		return P(record).RecordID() == id
	})
	return removed > 0, err
}

func (c *Collection[T, P]) DeleteWhere(ctx context.Context, match func(*T) bool) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	records, _, err := c.load(ctx)
	if err != nil {
		return 0, err
	}
	kept := records[:0]
	removed := 0
	for i := range records {
		if match(&records[i]) {
			removed++
			continue
		}
		kept = append(kept, records[i])
	}
	if removed == 0 {
		return 0, nil
	}
	if err := c.save(ctx, kept); err != nil {
		return 0, err
	}
	return removed, nil
}

func (c *Collection[T, P]) Replace(ctx context.Context, records []T) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.save(ctx, records)
}

func indexOf[T any, P Entity[T]](records []T, id string) int {
	for i := range records {
		if P(&records[i]).RecordID() == id {
			return i
		}
	}
	return -1
}

// decodeEnvelope accepts both the versioned envelope and the legacy layout
// where the key held a bare JSON array (treated as version 0).
func decodeEnvelope(raw []byte) (envelope, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return envelope{Version: 0, Records: trimmed}, nil
	}
	var env envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return envelope{}, err
	}
	return env, nil
}

func upgrade(from int, body json.RawMessage, to int, steps map[int]Migration) (json.RawMessage, bool, error) {
	if from == to {
		return body, false, nil
	}
	if from > to {
		return nil, false, fmt.Errorf("stored version %d is newer than supported version %d", from, to)
	}

	var records []map[string]any
	if len(body) > 0 {
		if err := json.Unmarshal(body, &records); err != nil {
			return nil, false, err
		}
	}
	for v := from; v < to; v++ {
		step, ok := steps[v]
		if !ok {
			continue
		}
		next, err := step(records)
		if err != nil {
			return nil, false, fmt.Errorf("v%d->v%d: %w", v, v+1, err)
		}
		records = next
	}
	if records == nil {
		records = []map[string]any{}
	}
	out, err := json.Marshal(records)
	if err != nil {
		return nil, false, err
	}
	return out, true, nil
}
