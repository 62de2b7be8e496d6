package remotesync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"medipos/backend/internal/domain"
	"medipos/backend/internal/store"
	"medipos/backend/internal/xid"
)

const DefaultBaseBackoff = 2 * time.Second

var ErrSyncDisabled = errors.New("remote sync is not configured")

// Bridge queues local mutations in the outbox and delivers them to the remote
// service. A nil remote disables delivery; Enqueue then does nothing.
type Bridge struct {
	outbox      store.OutboxStore
	remote      Remote
	logger      *zap.Logger
	kick        chan struct{}
	flushMu     sync.Mutex
	statusMu    sync.RWMutex
	lastError   string
	baseBackoff time.Duration
	maxBackoff  time.Duration
	now         func() time.Time
	jitter      func() float64
}

func NewBridge(outbox store.OutboxStore, remote Remote, maxBackoff time.Duration, logger *zap.Logger) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxBackoff < DefaultBaseBackoff {
		maxBackoff = 5 * time.Minute
	}
	return &Bridge{
		outbox:      outbox,
		remote:      remote,
		logger:      logger,
		kick:        make(chan struct{}, 1),
		baseBackoff: DefaultBaseBackoff,
		maxBackoff:  maxBackoff,
		now:         func() time.Time { return time.Now().UTC() },
		jitter:      rand.Float64,
	}
}

func (b *Bridge) Enabled() bool {
	return b.remote != nil
}

// Enqueue records a mutation for delivery. It runs after the local commit and
// never fails the caller: errors are logged.
func (b *Bridge) Enqueue(ctx context.Context, kind domain.SyncKind, entityID string, payload any) {
	if !b.Enabled() {
		return
	}

	var body json.RawMessage
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			b.logger.Error("sync payload encode failed", zap.String("kind", string(kind)), zap.String("entity_id", entityID), zap.Error(err))
			return
		}
		body = encoded
	}

	id := xid.New("sync")
	entry := domain.OutboxEntry{
		ID:             id,
		IdempotencyKey: fmt.Sprintf("%s:%s:%s", kind, entityID, id),
		Kind:           kind,
		EntityID:       entityID,
		Payload:        body,
		NextAttemptAt:  b.now(),
	}
	if _, err := b.outbox.EnqueueOutbox(ctx, entry); err != nil {
		b.logger.Error("sync enqueue failed",
			zap.String("kind", string(kind)),
			zap.String("entity_id", entityID),
			zap.Error(err),
		)
		return
	}
	b.Notify()
}

// Notify wakes the worker without blocking.
func (b *Bridge) Notify() {
	select {
	case b.kick <- struct{}{}:
	default:
	}
}

// Flush delivers due entries in FIFO order. Once an entry for an entity fails
// or is still backing off, later entries for the same entity wait for the
// next round so the remote sees mutations in order.
func (b *Bridge) Flush(ctx context.Context) (domain.FlushResult, error) {
	var result domain.FlushResult
	if !b.Enabled() {
		return result, ErrSyncDisabled
	}

	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	entries, err := b.outbox.ListOutbox(ctx)
	if err != nil {
		return result, err
	}

	held := make(map[string]bool)
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		key := entityKey(entry)
		now := b.now()
		if held[key] || entry.NextAttemptAt.After(now) {
			held[key] = true
			result.Deferred++
			continue
		}

		if err := b.deliver(ctx, entry); err != nil {
			held[key] = true
			result.Failed++
			b.recordFailure(ctx, entry, err, now)
			continue
		}

		if _, err := b.outbox.DeleteOutbox(ctx, entry.ID); err != nil {
			return result, fmt.Errorf("ack %s: %w", entry.ID, err)
		}
		result.Delivered++
	}

	if result.Failed == 0 && result.Delivered > 0 {
		b.setLastError("")
	}
	return result, nil
}

func (b *Bridge) recordFailure(ctx context.Context, entry domain.OutboxEntry, cause error, now time.Time) {
	attempts := entry.Attempts + 1
	wait := b.backoff(attempts)
	b.setLastError(cause.Error())
	b.logger.Warn("sync delivery failed",
		zap.String("kind", string(entry.Kind)),
		zap.String("entity_id", entry.EntityID),
		zap.Int("attempts", attempts),
		zap.Duration("retry_in", wait),
		zap.Error(cause),
	)

	_, _, err := b.outbox.UpdateOutbox(ctx, entry.ID, func(e *domain.OutboxEntry) {
		e.Attempts = attempts
		e.NextAttemptAt = now.Add(wait)
		e.LastError = cause.Error()
	})
	if err != nil {
		b.logger.Error("sync retry bookkeeping failed", zap.String("entry_id", entry.ID), zap.Error(err))
	}
}

// backoff doubles from the base delay up to the cap and keeps between half
// and all of it.
func (b *Bridge) backoff(attempts int) time.Duration {
	wait := b.baseBackoff
	for i := 1; i < attempts && wait < b.maxBackoff; i++ {
		wait *= 2
	}
	if wait > b.maxBackoff {
		wait = b.maxBackoff
	}
	half := wait / 2
	return half + time.Duration(b.jitter()*float64(wait-half))
}

func (b *Bridge) deliver(ctx context.Context, entry domain.OutboxEntry) error {
	key := entry.IdempotencyKey
	switch entry.Kind {
	case domain.SyncMedicineCreate, domain.SyncMedicineUpdate:
		var medicine domain.Medicine
		if err := json.Unmarshal(entry.Payload, &medicine); err != nil {
			return fmt.Errorf("decode medicine payload: %w", err)
		}
		if entry.Kind == domain.SyncMedicineCreate {
			err := b.remote.CreateMedicine(ctx, medicine, key)
			if statusOf(err) == http.StatusConflict {
				return b.remote.UpdateMedicine(ctx, entry.EntityID, medicine, key)
			}
			return err
		}
		err := b.remote.UpdateMedicine(ctx, entry.EntityID, medicine, key)
		if statusOf(err) == http.StatusNotFound {
			return b.remote.CreateMedicine(ctx, medicine, key)
		}
		return err

	case domain.SyncMedicineDelete:
		return ignoreNotFound(b.remote.DeleteMedicine(ctx, entry.EntityID, key))

	case domain.SyncSaleCreate, domain.SyncSaleUpdate:
		var sale domain.Sale
		if err := json.Unmarshal(entry.Payload, &sale); err != nil {
			return fmt.Errorf("decode sale payload: %w", err)
		}
		if entry.Kind == domain.SyncSaleCreate {
			err := b.remote.CreateSale(ctx, sale, key)
			if statusOf(err) == http.StatusConflict {
				return b.remote.UpdateSale(ctx, entry.EntityID, sale, key)
			}
			return err
		}
		err := b.remote.UpdateSale(ctx, entry.EntityID, sale, key)
		if statusOf(err) == http.StatusNotFound {
			return b.remote.CreateSale(ctx, sale, key)
		}
		return err

	case domain.SyncSaleDelete:
		return ignoreNotFound(b.remote.DeleteSale(ctx, entry.EntityID, key))

	case domain.SyncShopUpdate:
		var shop domain.ShopProfile
		if err := json.Unmarshal(entry.Payload, &shop); err != nil {
			return fmt.Errorf("decode shop payload: %w", err)
		}
		return b.remote.UpdateShop(ctx, shop, key)
	}
	return fmt.Errorf("unknown sync kind %q", entry.Kind)
}

func ignoreNotFound(err error) error {
	if statusOf(err) == http.StatusNotFound {
		return nil
	}
	return err
}

func entityKey(entry domain.OutboxEntry) string {
	kind, _, _ := strings.Cut(string(entry.Kind), ".")
	return kind + ":" + entry.EntityID
}

func (b *Bridge) setLastError(msg string) {
	b.statusMu.Lock()
	b.lastError = msg
	b.statusMu.Unlock()
}

// Status reports the outbox backlog. It is advisory only.
func (b *Bridge) Status(ctx context.Context) (domain.SyncStatus, error) {
	status := domain.SyncStatus{Enabled: b.Enabled()}
	entries, err := b.outbox.ListOutbox(ctx)
	if err != nil {
		return status, err
	}
	status.Pending = len(entries)
	for _, entry := range entries {
		if status.OldestAt == nil || entry.CreatedAt.Before(*status.OldestAt) {
			created := entry.CreatedAt
			status.OldestAt = &created
		}
	}
	b.statusMu.RLock()
	status.LastError = b.lastError
	b.statusMu.RUnlock()
	return status, nil
}
