// Package ledger keeps medicine stock quantities consistent with the set of
// active sales. Every applied line item is recorded as a signed delta keyed
// by sale id, so reversing a sale undoes exactly what was applied.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"medipos/backend/internal/domain"
	"medipos/backend/internal/store"
)

// Store is the ledger plus the medicine updates it drives.
type Store interface {
	store.LedgerStore
	UpdateMedicine(ctx context.Context, id string, mutate func(*domain.Medicine)) (*domain.Medicine, bool, error)
}

// Reconciler keeps medicine stock in step with recorded sales.
type Reconciler struct {
	store  Store
	logger *zap.Logger
}

// New returns a Reconciler over s. A nil logger discards output.
func New(s Store, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{store: s, logger: logger}
}

// Deltas returns the forward stock deltas of a sale: return lines add their
// quantity back to stock, sale lines remove it.
func Deltas(sale domain.Sale) []domain.LedgerEntry {
	entries := make([]domain.LedgerEntry, 0, len(sale.Items))
	for _, item := range sale.Items {
		if item.MedicineID == "" || item.Quantity == 0 {
			continue
		}
		delta := -item.Quantity
		if item.IsReturn || sale.IsReturn {
			delta = item.Quantity
		}
		entries = append(entries, domain.LedgerEntry{
			SaleID:     sale.ID,
			MedicineID: item.MedicineID,
			Delta:      delta,
		})
	}
	return entries
}

// Apply adjusts stock for every line of sale and records the applied deltas.
// Lines referencing a medicine that no longer exists are skipped. If a stock
// write fails, deltas already applied by this call are undone.
func (r *Reconciler) Apply(ctx context.Context, sale domain.Sale) ([]domain.LedgerEntry, error) {
	applied := make([]domain.LedgerEntry, 0, len(sale.Items))
	for _, entry := range Deltas(sale) {
		ok, err := r.adjust(ctx, entry.MedicineID, entry.Delta)
		if err != nil {
			r.undo(ctx, applied)
			return nil, fmt.Errorf("apply sale %s: %w", sale.ID, err)
		}
		if !ok {
			r.logger.Warn("stock adjustment skipped for missing medicine",
				zap.String("sale_id", sale.ID),
				zap.String("medicine_id", entry.MedicineID),
				zap.Int("delta", entry.Delta),
			)
			continue
		}
		applied = append(applied, entry)
	}

	if err := r.store.AppendLedger(ctx, applied); err != nil {
		r.undo(ctx, applied)
		return nil, fmt.Errorf("record ledger for sale %s: %w", sale.ID, err)
	}
	return applied, nil
}

// Reverse undoes the deltas recorded for sale and drops them from the
// ledger. Sales recorded before the ledger existed are reversed with the
// inverse of their line items.
func (r *Reconciler) Reverse(ctx context.Context, sale domain.Sale) error {
	entries, err := r.store.LedgerForSale(ctx, sale.ID)
	if err != nil {
		return fmt.Errorf("load ledger for sale %s: %w", sale.ID, err)
	}
	if len(entries) == 0 {
		entries = Deltas(sale)
	}

	reversed := make([]domain.LedgerEntry, 0, len(entries))
	for _, entry := range entries {
		ok, err := r.adjust(ctx, entry.MedicineID, -entry.Delta)
		if err != nil {
			r.redo(ctx, reversed)
			return fmt.Errorf("reverse sale %s: %w", sale.ID, err)
		}
		if !ok {
			r.logger.Warn("stock reversal skipped for missing medicine",
				zap.String("sale_id", sale.ID),
				zap.String("medicine_id", entry.MedicineID),
				zap.Int("delta", -entry.Delta),
			)
			continue
		}
		reversed = append(reversed, entry)
	}

	if err := r.store.RemoveLedgerForSale(ctx, sale.ID); err != nil {
		r.redo(ctx, reversed)
		return fmt.Errorf("drop ledger for sale %s: %w", sale.ID, err)
	}
	return nil
}

// Balance folds the active deltas recorded against a medicine.
func (r *Reconciler) Balance(ctx context.Context, medicineID string) (int, error) {
	entries, err := r.store.LedgerForMedicine(ctx, medicineID)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, entry := range entries {
		total += entry.Delta
	}
	return total, nil
}

func (r *Reconciler) adjust(ctx context.Context, medicineID string, delta int) (bool, error) {
	_, ok, err := r.store.UpdateMedicine(ctx, medicineID, func(m *domain.Medicine) {
		m.StockQuantity += delta
	})
	return ok, err
}

func (r *Reconciler) undo(ctx context.Context, applied []domain.LedgerEntry) {
	r.compensate(ctx, applied, -1)
}

func (r *Reconciler) redo(ctx context.Context, reversed []domain.LedgerEntry) {
	r.compensate(ctx, reversed, 1)
}

func (r *Reconciler) compensate(ctx context.Context, entries []domain.LedgerEntry, sign int) {
	var errs []error
	for _, entry := range entries {
		if _, err := r.adjust(ctx, entry.MedicineID, sign*entry.Delta); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", entry.MedicineID, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		r.logger.Error("stock compensation incomplete", zap.Error(err))
	}
}
