package remotesync

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"medipos/backend/internal/domain"
)

// LocalSource is the committed local state compared against the remote.
type LocalSource interface {
	ListMedicines(ctx context.Context, search string) ([]domain.Medicine, error)
	ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.Sale, error)
}

type stockPatch struct {
	StockQuantity int `json:"stock_quantity"`
}

// Reconcile pushes local records the remote does not have, matched by id,
// then corrects remote stock quantities that differ from local ones. The
// push and the stock correction are separate calls.
func (b *Bridge) Reconcile(ctx context.Context, local LocalSource) (domain.ReconcileReport, error) {
	var report domain.ReconcileReport
	if !b.Enabled() {
		return report, ErrSyncDisabled
	}

	medicines, err := local.ListMedicines(ctx, "")
	if err != nil {
		return report, err
	}
	remoteMedicines, err := b.remote.ListMedicines(ctx)
	if err != nil {
		return report, fmt.Errorf("list remote medicines: %w", err)
	}
	remoteStock := make(map[string]int, len(remoteMedicines))
	for _, m := range remoteMedicines {
		remoteStock[m.ID] = m.StockQuantity
	}

	for _, m := range medicines {
		stock, exists := remoteStock[m.ID]
		if !exists {
			if err := b.remote.CreateMedicine(ctx, m, "reconcile:medicine:"+m.ID); err != nil {
				report.Failures = append(report.Failures, fmt.Sprintf("medicine %s: %v", m.ID, err))
				continue
			}
			report.MedicinesPushed++
			continue
		}
		if stock != m.StockQuantity {
			if err := b.remote.UpdateMedicine(ctx, m.ID, stockPatch{StockQuantity: m.StockQuantity}, ""); err != nil {
				report.Failures = append(report.Failures, fmt.Sprintf("medicine %s stock: %v", m.ID, err))
				continue
			}
			report.StockCorrected++
		}
	}

	sales, err := local.ListSales(ctx, domain.SaleFilter{})
	if err != nil {
		return report, err
	}
	remoteSales, err := b.remote.ListSales(ctx)
	if err != nil {
		return report, fmt.Errorf("list remote sales: %w", err)
	}
	known := make(map[string]struct{}, len(remoteSales))
	for _, s := range remoteSales {
		known[s.ID] = struct{}{}
	}
	for _, s := range sales {
		if _, exists := known[s.ID]; exists {
			continue
		}
		if err := b.remote.CreateSale(ctx, s, "reconcile:sale:"+s.ID); err != nil {
			report.Failures = append(report.Failures, fmt.Sprintf("sale %s: %v", s.ID, err))
			continue
		}
		report.SalesPushed++
	}

	b.logger.Info("reconcile finished",
		zap.Int("medicines_pushed", report.MedicinesPushed),
		zap.Int("sales_pushed", report.SalesPushed),
		zap.Int("stock_corrected", report.StockCorrected),
		zap.Int("failures", len(report.Failures)),
	)
	return report, nil
}
