package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"medipos/backend/internal/analytics"
	"medipos/backend/internal/cache"
	"medipos/backend/internal/domain"
	"medipos/backend/internal/ledger"
	"medipos/backend/internal/remotesync"
	"medipos/backend/internal/session"
	"medipos/backend/internal/store"
	"medipos/backend/internal/store/local"
	"medipos/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// Publisher receives committed mutations for delivery to the remote service.
// Implementations must not fail the caller.
type Publisher interface {
	Enqueue(ctx context.Context, kind domain.SyncKind, entityID string, payload any)
}

type noopPublisher struct{}

func (noopPublisher) Enqueue(context.Context, domain.SyncKind, string, any) {}

type Options struct {
	Logger   *zap.Logger
	Bridge   *remotesync.Bridge
	Cache    cache.AnalyticsCache
	CacheTTL time.Duration
}

type Service struct {
	repo      store.Repository
	ledger    *ledger.Reconciler
	bridge    *remotesync.Bridge
	publisher Publisher
	cache     cache.AnalyticsCache
	cacheTTL  time.Duration
	logger    *zap.Logger
	receipts  *xid.ReceiptSequence
	now       func() time.Time

	// mu serialises every mutation that touches medicine stock.
	mu sync.Mutex
	// generation changes whenever the sales collection changes and keys the
	// analytics cache. The process tag keeps keys from two processes apart.
	generation atomic.Int64
	process    string
}

func New(repo store.Repository, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	analyticsCache := opts.Cache
	if analyticsCache == nil {
		analyticsCache = cache.NoopAnalyticsCache{}
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 5 * time.Minute
	}

	var publisher Publisher = noopPublisher{}
	if opts.Bridge != nil {
		publisher = opts.Bridge
	}

	return &Service{
		repo:      repo,
		ledger:    ledger.New(repo, logger),
		bridge:    opts.Bridge,
		publisher: publisher,
		cache:     analyticsCache,
		cacheTTL:  opts.CacheTTL,
		logger:    logger,
		receipts:  &xid.ReceiptSequence{},
		now:       func() time.Time { return time.Now().UTC() },
		process:   xid.New("proc"),
	}
}

// Prime raises the receipt floor above every stored receipt number. Call it
// once after the store has been migrated.
func (s *Service) Prime(ctx context.Context) error {
	sales, err := s.repo.ListSales(ctx, domain.SaleFilter{})
	if err != nil {
		return err
	}
	for _, sale := range sales {
		s.receipts.Observe(sale.ReceiptNumber)
	}
	return nil
}

func requireRole(ctx context.Context, roles ...string) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.Actor{}, session.ErrInsufficientPermissions
	}
	for _, role := range roles {
		if actor.Role == role {
			return actor, nil
		}
	}
	return domain.Actor{}, session.ErrInsufficientPermissions
}

func (s *Service) ListMedicines(ctx context.Context, search string) ([]domain.Medicine, error) {
	return s.repo.ListMedicines(ctx, search)
}

func (s *Service) GetMedicine(ctx context.Context, id string) (*domain.Medicine, bool, error) {
	return s.repo.GetMedicine(ctx, id)
}

func (s *Service) CreateMedicine(ctx context.Context, req domain.MedicineCreateRequest) (*domain.Medicine, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin, domain.RoleManager); err != nil {
		return nil, err
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || req.Price < 0 {
		return nil, store.ErrInvalidRecord
	}

	s.mu.Lock()
	created, err := s.repo.CreateMedicine(ctx, domain.Medicine{
		Name:          req.Name,
		Price:         req.Price,
		StockQuantity: req.StockQuantity,
		ExpiryDate:    strings.TrimSpace(req.ExpiryDate),
		BatchNumber:   strings.TrimSpace(req.BatchNumber),
		Supplier:      strings.TrimSpace(req.Supplier),
		Barcode:       strings.TrimSpace(req.Barcode),
	})
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	s.publisher.Enqueue(ctx, domain.SyncMedicineCreate, created.ID, created)
	return created, nil
}

// UpdateMedicine applies the fields present in req. Stock set here is a
// direct correction and is not recorded in the ledger.
func (s *Service) UpdateMedicine(ctx context.Context, id string, req domain.MedicineUpdateRequest) (*domain.Medicine, bool, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin, domain.RoleManager); err != nil {
		return nil, false, err
	}
	if req.Name != nil && strings.TrimSpace(*req.Name) == "" {
		return nil, false, store.ErrInvalidRecord
	}
	if req.Price != nil && *req.Price < 0 {
		return nil, false, store.ErrInvalidRecord
	}

	s.mu.Lock()
	updated, ok, err := s.repo.UpdateMedicine(ctx, id, func(m *domain.Medicine) {
		if req.Name != nil {
			m.Name = strings.TrimSpace(*req.Name)
		}
		if req.Price != nil {
			m.Price = *req.Price
		}
		if req.StockQuantity != nil {
			m.StockQuantity = *req.StockQuantity
		}
		if req.ExpiryDate != nil {
			m.ExpiryDate = strings.TrimSpace(*req.ExpiryDate)
		}
		if req.BatchNumber != nil {
			m.BatchNumber = strings.TrimSpace(*req.BatchNumber)
		}
		if req.Supplier != nil {
			m.Supplier = strings.TrimSpace(*req.Supplier)
		}
		if req.Barcode != nil {
			m.Barcode = strings.TrimSpace(*req.Barcode)
		}
	})
	s.mu.Unlock()
	if err != nil || !ok {
		return nil, ok, err
	}

	s.publisher.Enqueue(ctx, domain.SyncMedicineUpdate, updated.ID, updated)
	return updated, true, nil
}

// DeleteMedicine removes the medicine only. Sales keep their snapshot of it.
func (s *Service) DeleteMedicine(ctx context.Context, id string) (bool, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin, domain.RoleManager); err != nil {
		return false, err
	}

	s.mu.Lock()
	deleted, err := s.repo.DeleteMedicine(ctx, id)
	s.mu.Unlock()
	if err != nil || !deleted {
		return deleted, err
	}

	s.publisher.Enqueue(ctx, domain.SyncMedicineDelete, id, nil)
	return true, nil
}

func (s *Service) ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.Sale, error) {
	return s.repo.ListSales(ctx, filter)
}

func (s *Service) GetSale(ctx context.Context, id string) (*domain.Sale, bool, error) {
	return s.repo.GetSale(ctx, id)
}

// CreateSale records a sale and removes its quantities from stock. Return
// lines put their quantity back instead.
func (s *Service) CreateSale(ctx context.Context, req domain.SaleRequest) (*domain.Sale, error) {
	actor, err := requireRole(ctx, domain.RoleAdmin, domain.RoleManager, domain.RoleCashier)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sale, err := s.buildSale(ctx, req)
	if err != nil {
		return nil, err
	}
	if sale.CashierID == "" {
		sale.CashierID = actor.UserID
	}
	now := s.now()
	sale.ID = xid.New("sale")
	sale.ReceiptNumber = s.receipts.Next(now)
	sale.CreatedAt = now

	created, err := s.repo.CreateSale(ctx, sale)
	if err != nil {
		return nil, err
	}
	if _, err := s.ledger.Apply(ctx, *created); err != nil {
		if _, rollbackErr := s.repo.DeleteSale(ctx, created.ID); rollbackErr != nil {
			s.logger.Error("sale rollback failed", zap.String("sale_id", created.ID), zap.Error(rollbackErr))
		}
		return nil, err
	}
	s.generation.Add(1)

	s.publisher.Enqueue(ctx, domain.SyncSaleCreate, created.ID, created)
	return created, nil
}

// UpdateSale replaces the contents of a sale. Stock ends up as if the old
// sale had been deleted and the new one added, while the id, receipt number
// and creation time are kept.
func (s *Service) UpdateSale(ctx context.Context, id string, req domain.SaleRequest) (*domain.Sale, bool, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin, domain.RoleManager); err != nil {
		return nil, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok, err := s.repo.GetSale(ctx, id)
	if err != nil || !ok {
		return nil, ok, err
	}
	next, err := s.buildSale(ctx, req)
	if err != nil {
		return nil, true, err
	}
	if next.CashierID == "" {
		next.CashierID = existing.CashierID
	}

	if err := s.ledger.Reverse(ctx, *existing); err != nil {
		return nil, true, err
	}

	updated, ok, err := s.repo.UpdateSale(ctx, id, func(sale *domain.Sale) {
		sale.Items = next.Items
		sale.Subtotal = next.Subtotal
		sale.DiscountAmount = next.DiscountAmount
		sale.TotalAmount = next.TotalAmount
		sale.PaymentMethod = next.PaymentMethod
		sale.CustomerName = next.CustomerName
		sale.CustomerPhone = next.CustomerPhone
		sale.CashierID = next.CashierID
		sale.IsReturn = next.IsReturn
	})
	if err != nil || !ok {
		s.restore(ctx, *existing)
		if err == nil {
			err = store.ErrNotFound
		}
		return nil, true, err
	}
	s.generation.Add(1)

	if _, err := s.ledger.Apply(ctx, *updated); err != nil {
		previous := *existing
		if _, _, revertErr := s.repo.UpdateSale(ctx, id, func(sale *domain.Sale) { *sale = previous }); revertErr != nil {
			s.logger.Error("sale revert failed", zap.String("sale_id", id), zap.Error(revertErr))
		} else {
			s.restore(ctx, previous)
		}
		return nil, true, err
	}

	s.publisher.Enqueue(ctx, domain.SyncSaleUpdate, updated.ID, updated)
	return updated, true, nil
}

// restore reapplies a sale whose stock was reversed but whose replacement
// could not be committed.
func (s *Service) restore(ctx context.Context, sale domain.Sale) {
	if _, err := s.ledger.Apply(ctx, sale); err != nil {
		s.logger.Error("stock restore failed", zap.String("sale_id", sale.ID), zap.Error(err))
	}
}

// DeleteSale removes a sale and gives its quantities back to stock.
func (s *Service) DeleteSale(ctx context.Context, id string) (bool, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin, domain.RoleManager); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok, err := s.repo.GetSale(ctx, id)
	if err != nil || !ok {
		return false, err
	}
	if err := s.ledger.Reverse(ctx, *existing); err != nil {
		return false, err
	}
	deleted, err := s.repo.DeleteSale(ctx, id)
	if err != nil {
		s.restore(ctx, *existing)
		return false, err
	}
	s.generation.Add(1)

	s.publisher.Enqueue(ctx, domain.SyncSaleDelete, id, nil)
	return deleted, nil
}

// buildSale validates req and computes line and sale totals. Name and price
// fall back to the medicine's current values when the request omits them.
func (s *Service) buildSale(ctx context.Context, req domain.SaleRequest) (domain.Sale, error) {
	if len(req.Items) == 0 {
		return domain.Sale{}, fmt.Errorf("sale has no items: %w", store.ErrInvalidRecord)
	}
	if req.DiscountAmount < 0 || req.Subtotal < 0 {
		return domain.Sale{}, store.ErrInvalidRecord
	}
	payment := strings.ToLower(strings.TrimSpace(req.PaymentMethod))
	if payment == "" {
		payment = domain.PaymentCash
	}
	if !isSupportedPaymentMethod(payment) {
		return domain.Sale{}, fmt.Errorf("payment method %q: %w", req.PaymentMethod, store.ErrInvalidRecord)
	}

	items := make([]domain.LineItem, 0, len(req.Items))
	total := decimal.Zero
	for _, line := range req.Items {
		line.MedicineID = strings.TrimSpace(line.MedicineID)
		if line.MedicineID == "" || line.Quantity < 1 || (line.Price != nil && *line.Price < 0) {
			return domain.Sale{}, store.ErrInvalidRecord
		}

		name := strings.TrimSpace(line.MedicineName)
		var price float64
		if line.Price != nil {
			price = *line.Price
		}
		if name == "" || line.Price == nil {
			medicine, ok, err := s.repo.GetMedicine(ctx, line.MedicineID)
			if err != nil {
				return domain.Sale{}, err
			}
			if ok {
				if name == "" {
					name = medicine.Name
				}
				if line.Price == nil {
					price = medicine.Price
				}
			}
		}
		if name == "" {
			return domain.Sale{}, fmt.Errorf("medicine %s: %w", line.MedicineID, store.ErrInvalidRecord)
		}

		isReturn := line.IsReturn || req.IsReturn
		lineTotal := decimal.NewFromFloat(price).Mul(decimal.NewFromInt(int64(line.Quantity))).Round(2)
		if isReturn {
			lineTotal = lineTotal.Neg()
		}
		total = total.Add(lineTotal)

		items = append(items, domain.LineItem{
			MedicineID:   line.MedicineID,
			MedicineName: name,
			Quantity:     line.Quantity,
			Price:        price,
			Total:        lineTotal.InexactFloat64(),
			IsReturn:     isReturn,
		})
	}

	return domain.Sale{
		Items:          items,
		Subtotal:       total.Round(2).InexactFloat64(),
		DiscountAmount: decimal.NewFromFloat(req.DiscountAmount).Round(2).InexactFloat64(),
		TotalAmount:    total.Round(2).InexactFloat64(),
		PaymentMethod:  payment,
		CustomerName:   strings.TrimSpace(req.CustomerName),
		CustomerPhone:  strings.TrimSpace(req.CustomerPhone),
		CashierID:      strings.TrimSpace(req.CashierID),
		IsReturn:       req.IsReturn,
	}, nil
}

func isSupportedPaymentMethod(method string) bool {
	switch method {
	case domain.PaymentCash, domain.PaymentCard, domain.PaymentUPI:
		return true
	default:
		return false
	}
}

func (s *Service) SalesAnalytics(ctx context.Context, req domain.AnalyticsRequest) (domain.SalesAnalytics, error) {
	from, to, err := analytics.ParseRange(req)
	if err != nil {
		return domain.SalesAnalytics{}, err
	}

	key := fmt.Sprintf("%s:%d:%s:%s", s.process, s.generation.Load(), req.StartDate, req.EndDate)
	if cached, ok, err := s.cache.Get(ctx, key); err == nil && ok {
		return *cached, nil
	} else if err != nil {
		s.logger.Warn("analytics cache read failed", zap.Error(err))
	}

	sales, err := s.repo.ListSales(ctx, domain.SaleFilter{From: from, To: to})
	if err != nil {
		return domain.SalesAnalytics{}, err
	}
	summary := analytics.Summarize(sales)

	if err := s.cache.Set(ctx, key, &summary, s.cacheTTL); err != nil {
		s.logger.Warn("analytics cache write failed", zap.Error(err))
	}
	return summary, nil
}

func (s *Service) MedicineSalesHistory(ctx context.Context, medicineID string, days int) (domain.MedicineSalesHistory, error) {
	if days < 1 {
		days = 30
	}
	now := s.now()
	since := now.Add(-time.Duration(days) * 24 * time.Hour)
	sales, err := s.repo.ListSales(ctx, domain.SaleFilter{From: &since, To: &now})
	if err != nil {
		return domain.MedicineSalesHistory{}, err
	}
	return analytics.MedicineHistory(sales, medicineID, days, now), nil
}

// GetShop returns the stored profile, or the default one when none has been
// saved yet.
func (s *Service) GetShop(ctx context.Context) (domain.ShopProfile, error) {
	shop, ok, err := s.repo.GetShop(ctx)
	if err != nil {
		return domain.ShopProfile{}, err
	}
	if !ok {
		return local.DefaultShop(), nil
	}
	return *shop, nil
}

func (s *Service) UpdateShop(ctx context.Context, req domain.ShopUpdateRequest) (*domain.ShopProfile, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return nil, err
	}
	if req.Name != nil && strings.TrimSpace(*req.Name) == "" {
		return nil, store.ErrInvalidRecord
	}

	shop, err := s.GetShop(ctx)
	if err != nil {
		return nil, err
	}
	apply := func(dst *string, src *string) {
		if src != nil {
			*dst = strings.TrimSpace(*src)
		}
	}
	apply(&shop.Name, req.Name)
	apply(&shop.Address, req.Address)
	apply(&shop.Phone, req.Phone)
	apply(&shop.Email, req.Email)
	apply(&shop.LicenseNumber, req.LicenseNumber)
	apply(&shop.GSTNumber, req.GSTNumber)
	shop.UpdatedAt = s.now()

	saved, err := s.repo.SaveShop(ctx, shop)
	if err != nil {
		return nil, err
	}

	s.publisher.Enqueue(ctx, domain.SyncShopUpdate, saved.ID, saved)
	return saved, nil
}

func (s *Service) ExportData(ctx context.Context) (domain.DataExport, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return domain.DataExport{}, err
	}
	return s.repo.Export(ctx)
}

// ImportData replaces the stored collections with data. Imported sales are
// taken as already applied to the imported stock.
func (s *Service) ImportData(ctx context.Context, data domain.DataExport) error {
	if _, err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.repo.Import(ctx, data); err != nil {
		return err
	}
	for _, sale := range data.Sales {
		s.receipts.Observe(sale.ReceiptNumber)
	}
	s.generation.Add(1)
	s.logger.Info("data imported",
		zap.Int("users", len(data.Users)),
		zap.Int("medicines", len(data.Medicines)),
		zap.Int("sales", len(data.Sales)),
	)
	return nil
}

// ResetData wipes every collection and writes the default records again.
func (s *Service) ResetData(ctx context.Context) error {
	if _, err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return err
	}
	resettable, ok := s.repo.(*local.Store)
	if !ok {
		return errors.New("reset is not supported by this store")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := resettable.Clear(ctx); err != nil {
		return err
	}
	s.generation.Add(1)
	return local.Seed(ctx, resettable, s.logger)
}

func (s *Service) SyncStatus(ctx context.Context) (domain.SyncStatus, error) {
	if s.bridge == nil {
		return domain.SyncStatus{}, nil
	}
	return s.bridge.Status(ctx)
}

func (s *Service) FlushSync(ctx context.Context) (domain.FlushResult, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin, domain.RoleManager); err != nil {
		return domain.FlushResult{}, err
	}
	if s.bridge == nil {
		return domain.FlushResult{}, remotesync.ErrSyncDisabled
	}
	return s.bridge.Flush(ctx)
}

func (s *Service) Reconcile(ctx context.Context) (domain.ReconcileReport, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return domain.ReconcileReport{}, err
	}
	if s.bridge == nil {
		return domain.ReconcileReport{}, remotesync.ErrSyncDisabled
	}
	return s.bridge.Reconcile(ctx, s.repo)
}
