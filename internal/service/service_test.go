package service

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"

	"medipos/backend/internal/domain"
	"medipos/backend/internal/password"
	"medipos/backend/internal/remotesync"
	"medipos/backend/internal/session"
	"medipos/backend/internal/store"
	"medipos/backend/internal/store/local"
	"medipos/backend/internal/store/memory"
)

func init() {
	password.Cost = bcrypt.MinCost
}

func newTestService(t *testing.T) (*Service, *local.Store) {
	t.Helper()
	repo := local.New(memory.New(memory.DefaultQuotaBytes))
	if err := local.Seed(context.Background(), repo, nil); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	return New(repo, Options{Logger: zaptest.NewLogger(t)}), repo
}

func asRole(role string) context.Context {
	return WithActor(context.Background(), domain.Actor{
		UserID:   role + "-001",
		Username: role,
		Role:     role,
	})
}

func unitPrice(v float64) *float64 {
	return &v
}

func stockOf(t *testing.T, svc *Service, id string) int {
	t.Helper()
	medicine, ok, err := svc.GetMedicine(context.Background(), id)
	if err != nil || !ok {
		t.Fatalf("get medicine %s: ok=%v err=%v", id, ok, err)
	}
	return medicine.StockQuantity
}

func TestSaleEditAndDeleteKeepStockConsistent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := asRole(domain.RoleAdmin)

	if got := stockOf(t, svc, "med-001"); got != 100 {
		t.Fatalf("expected seeded stock 100, got %d", got)
	}

	sale, err := svc.CreateSale(ctx, domain.SaleRequest{
		Items: []domain.SaleItemRequest{{MedicineID: "med-001", Quantity: 5}},
	})
	if err != nil {
		t.Fatalf("create sale failed: %v", err)
	}
	if got := stockOf(t, svc, "med-001"); got != 95 {
		t.Fatalf("expected stock 95 after sale, got %d", got)
	}

	if _, _, err := svc.UpdateSale(ctx, sale.ID, domain.SaleRequest{
		Items: []domain.SaleItemRequest{{MedicineID: "med-001", Quantity: 3}},
	}); err != nil {
		t.Fatalf("update sale failed: %v", err)
	}
	if got := stockOf(t, svc, "med-001"); got != 97 {
		t.Fatalf("expected stock 97 after edit, got %d", got)
	}

	deleted, err := svc.DeleteSale(ctx, sale.ID)
	if err != nil || !deleted {
		t.Fatalf("delete sale failed: deleted=%v err=%v", deleted, err)
	}
	if got := stockOf(t, svc, "med-001"); got != 100 {
		t.Fatalf("expected stock 100 after delete, got %d", got)
	}
}

func TestCreateThenDeleteRestoresEveryMedicine(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := asRole(domain.RoleManager)

	before := map[string]int{}
	for _, id := range []string{"med-002", "med-003", "med-004"} {
		before[id] = stockOf(t, svc, id)
	}

	sale, err := svc.CreateSale(ctx, domain.SaleRequest{
		Items: []domain.SaleItemRequest{
			{MedicineID: "med-002", Quantity: 4},
			{MedicineID: "med-003", Quantity: 2, IsReturn: true},
			{MedicineID: "med-004", Quantity: 10},
		},
	})
	if err != nil {
		t.Fatalf("create sale failed: %v", err)
	}
	if got := stockOf(t, svc, "med-003"); got != before["med-003"]+2 {
		t.Fatalf("expected return line to add stock, got %d", got)
	}
	if got := stockOf(t, svc, "med-004"); got != before["med-004"]-10 {
		t.Fatalf("expected stock to go negative unchecked, got %d", got)
	}

	if _, err := svc.DeleteSale(ctx, sale.ID); err != nil {
		t.Fatalf("delete sale failed: %v", err)
	}
	for id, want := range before {
		if got := stockOf(t, svc, id); got != want {
			t.Fatalf("medicine %s: expected %d after round trip, got %d", id, want, got)
		}
	}
}

func TestUpdateMatchesDeleteThenAdd(t *testing.T) {
	ctx := asRole(domain.RoleAdmin)
	first := domain.SaleRequest{Items: []domain.SaleItemRequest{
		{MedicineID: "med-001", Quantity: 6},
		{MedicineID: "med-002", Quantity: 1},
	}}
	second := domain.SaleRequest{Items: []domain.SaleItemRequest{
		{MedicineID: "med-002", Quantity: 3},
		{MedicineID: "med-005", Quantity: 2, IsReturn: true},
	}}

	edited, _ := newTestService(t)
	original, err := edited.CreateSale(ctx, first)
	if err != nil {
		t.Fatalf("create sale failed: %v", err)
	}
	updated, ok, err := edited.UpdateSale(ctx, original.ID, second)
	if err != nil || !ok {
		t.Fatalf("update sale failed: ok=%v err=%v", ok, err)
	}
	if updated.ID != original.ID || updated.ReceiptNumber != original.ReceiptNumber {
		t.Fatalf("expected id and receipt to be kept, got %s/%s", updated.ID, updated.ReceiptNumber)
	}
	if !updated.CreatedAt.Equal(original.CreatedAt) {
		t.Fatalf("expected created_at to be kept")
	}

	replayed, _ := newTestService(t)
	again, err := replayed.CreateSale(ctx, first)
	if err != nil {
		t.Fatalf("create sale failed: %v", err)
	}
	if _, err := replayed.DeleteSale(ctx, again.ID); err != nil {
		t.Fatalf("delete sale failed: %v", err)
	}
	if _, err := replayed.CreateSale(ctx, second); err != nil {
		t.Fatalf("create sale failed: %v", err)
	}

	for _, id := range []string{"med-001", "med-002", "med-005"} {
		if a, b := stockOf(t, edited, id), stockOf(t, replayed, id); a != b {
			t.Fatalf("medicine %s: edit gave %d, delete+add gave %d", id, a, b)
		}
	}
}

func TestDeletingMedicineLeavesSaleDeletable(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := asRole(domain.RoleAdmin)

	sale, err := svc.CreateSale(ctx, domain.SaleRequest{
		Items: []domain.SaleItemRequest{
			{MedicineID: "med-003", Quantity: 2},
			{MedicineID: "med-001", Quantity: 1},
		},
	})
	if err != nil {
		t.Fatalf("create sale failed: %v", err)
	}
	if _, err := svc.DeleteMedicine(ctx, "med-003"); err != nil {
		t.Fatalf("delete medicine failed: %v", err)
	}

	deleted, err := svc.DeleteSale(ctx, sale.ID)
	if err != nil || !deleted {
		t.Fatalf("delete sale failed: deleted=%v err=%v", deleted, err)
	}
	if got := stockOf(t, svc, "med-001"); got != 100 {
		t.Fatalf("expected remaining medicine restored to 100, got %d", got)
	}
	if _, ok, _ := svc.GetMedicine(ctx, "med-003"); ok {
		t.Fatalf("deleted medicine must not be recreated")
	}
}

func TestSaleTotalsMatchLineItems(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := asRole(domain.RoleCashier)

	sale, err := svc.CreateSale(ctx, domain.SaleRequest{
		Items: []domain.SaleItemRequest{
			{MedicineID: "med-001", Quantity: 3},
			{MedicineID: "med-002", Quantity: 1, Price: unitPrice(8.1)},
			{MedicineID: "med-005", Quantity: 1, IsReturn: true},
		},
		DiscountAmount: 1.5,
		PaymentMethod:  "UPI",
	})
	if err != nil {
		t.Fatalf("create sale failed: %v", err)
	}

	sum := 0.0
	for _, item := range sale.Items {
		sum += item.Total
		if math.Abs(math.Abs(item.Total)-item.Price*float64(item.Quantity)) > 0.005 {
			t.Fatalf("line %s total %.2f does not match price x quantity", item.MedicineID, item.Total)
		}
	}
	if math.Abs(sum-sale.TotalAmount) > 0.005 {
		t.Fatalf("expected total %.2f to equal sum of lines %.2f", sale.TotalAmount, sum)
	}
	if sale.TotalAmount != 3.1 {
		t.Fatalf("expected 7.50 + 8.10 - 12.50 = 3.10, got %.2f", sale.TotalAmount)
	}
	if sale.Items[0].MedicineName != "Paracetamol 500mg" || sale.Items[0].Price != 2.5 {
		t.Fatalf("expected name and price snapshot from medicine, got %+v", sale.Items[0])
	}
	if sale.PaymentMethod != domain.PaymentUPI || sale.CashierID != "cashier-001" {
		t.Fatalf("unexpected payment/cashier: %s/%s", sale.PaymentMethod, sale.CashierID)
	}
	if !strings.HasPrefix(sale.ReceiptNumber, "RCP") {
		t.Fatalf("unexpected receipt number %s", sale.ReceiptNumber)
	}
}

func TestReceiptNumbersIncrease(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := asRole(domain.RoleCashier)
	fixed := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	var last string
	for i := 0; i < 3; i++ {
		sale, err := svc.CreateSale(ctx, domain.SaleRequest{
			Items: []domain.SaleItemRequest{{MedicineID: "med-001", Quantity: 1}},
		})
		if err != nil {
			t.Fatalf("create sale failed: %v", err)
		}
		if sale.ReceiptNumber <= last {
			t.Fatalf("receipt %s not after %s", sale.ReceiptNumber, last)
		}
		last = sale.ReceiptNumber
	}
}

func TestSaleValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := asRole(domain.RoleCashier)

	cases := []domain.SaleRequest{
		{},
		{Items: []domain.SaleItemRequest{{MedicineID: "med-001", Quantity: 0}}},
		{Items: []domain.SaleItemRequest{{MedicineID: "med-404", Quantity: 1}}},
		{Items: []domain.SaleItemRequest{{MedicineID: "med-001", Quantity: 1}}, PaymentMethod: "cheque"},
	}
	for i, req := range cases {
		if _, err := svc.CreateSale(ctx, req); !errors.Is(err, store.ErrInvalidRecord) {
			t.Fatalf("case %d: expected invalid record, got %v", i, err)
		}
	}
	if got := stockOf(t, svc, "med-001"); got != 100 {
		t.Fatalf("rejected sales must not touch stock, got %d", got)
	}
}

func TestSaleEditRequiresPrivilegedRole(t *testing.T) {
	svc, _ := newTestService(t)
	cashier := asRole(domain.RoleCashier)

	sale, err := svc.CreateSale(cashier, domain.SaleRequest{
		Items: []domain.SaleItemRequest{{MedicineID: "med-001", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("cashier should record sales: %v", err)
	}
	if _, _, err := svc.UpdateSale(cashier, sale.ID, domain.SaleRequest{
		Items: []domain.SaleItemRequest{{MedicineID: "med-001", Quantity: 2}},
	}); !errors.Is(err, session.ErrInsufficientPermissions) {
		t.Fatalf("expected cashier edit to be rejected, got %v", err)
	}
	if _, err := svc.DeleteSale(cashier, sale.ID); !errors.Is(err, session.ErrInsufficientPermissions) {
		t.Fatalf("expected cashier delete to be rejected, got %v", err)
	}
	if _, err := svc.CreateSale(context.Background(), domain.SaleRequest{
		Items: []domain.SaleItemRequest{{MedicineID: "med-001", Quantity: 1}},
	}); !errors.Is(err, session.ErrInsufficientPermissions) {
		t.Fatalf("expected anonymous sale to be rejected, got %v", err)
	}
}

func TestUnknownSaleIsAbsent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := asRole(domain.RoleAdmin)

	if _, ok, err := svc.UpdateSale(ctx, "sale-missing", domain.SaleRequest{
		Items: []domain.SaleItemRequest{{MedicineID: "med-001", Quantity: 1}},
	}); ok || err != nil {
		t.Fatalf("expected absent result, got ok=%v err=%v", ok, err)
	}
	if deleted, err := svc.DeleteSale(ctx, "sale-missing"); deleted || err != nil {
		t.Fatalf("expected false without error, got %v %v", deleted, err)
	}
}

type failingRemote struct{ calls int }

func (f *failingRemote) fail() error {
	f.calls++
	return &remotesync.RemoteError{Status: 503, Detail: "unavailable"}
}

func (f *failingRemote) ListMedicines(context.Context) ([]domain.Medicine, error) {
	return nil, f.fail()
}
func (f *failingRemote) CreateMedicine(context.Context, domain.Medicine, string) error {
	return f.fail()
}
func (f *failingRemote) UpdateMedicine(context.Context, string, any, string) error {
	return f.fail()
}
func (f *failingRemote) DeleteMedicine(context.Context, string, string) error { return f.fail() }
func (f *failingRemote) ListSales(context.Context) ([]domain.Sale, error)     { return nil, f.fail() }
func (f *failingRemote) CreateSale(context.Context, domain.Sale, string) error {
	return f.fail()
}
func (f *failingRemote) UpdateSale(context.Context, string, domain.Sale, string) error {
	return f.fail()
}
func (f *failingRemote) DeleteSale(context.Context, string, string) error { return f.fail() }
func (f *failingRemote) UpdateShop(context.Context, domain.ShopProfile, string) error {
	return f.fail()
}

func TestRemoteFailureDoesNotAffectLocalCommit(t *testing.T) {
	repo := local.New(memory.New(memory.DefaultQuotaBytes))
	if err := local.Seed(context.Background(), repo, nil); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	remote := &failingRemote{}
	bridge := remotesync.NewBridge(repo, remote, time.Minute, zaptest.NewLogger(t))
	svc := New(repo, Options{Logger: zaptest.NewLogger(t), Bridge: bridge})
	ctx := asRole(domain.RoleAdmin)

	sale, err := svc.CreateSale(ctx, domain.SaleRequest{
		Items: []domain.SaleItemRequest{{MedicineID: "med-001", Quantity: 2}},
	})
	if err != nil {
		t.Fatalf("sale must commit while remote is down: %v", err)
	}

	result, err := svc.FlushSync(ctx)
	if err != nil {
		t.Fatalf("flush failed: %v", err)
	}
	if result.Failed != 1 || remote.calls == 0 {
		t.Fatalf("expected one failed delivery, got %+v", result)
	}

	if _, ok, _ := svc.GetSale(ctx, sale.ID); !ok {
		t.Fatalf("local sale must survive remote failure")
	}
	if got := stockOf(t, svc, "med-001"); got != 98 {
		t.Fatalf("expected stock 98, got %d", got)
	}
	status, err := svc.SyncStatus(ctx)
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if status.Pending != 1 || status.LastError == "" {
		t.Fatalf("expected pending entry with last error, got %+v", status)
	}
}

func TestSyncDisabledWithoutBridge(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := asRole(domain.RoleAdmin)

	if _, err := svc.CreateMedicine(ctx, domain.MedicineCreateRequest{Name: "Cetirizine 10mg", Price: 1.2}); err != nil {
		t.Fatalf("create medicine failed: %v", err)
	}
	entries, err := repo.ListOutbox(ctx)
	if err != nil {
		t.Fatalf("list outbox failed: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no outbox entries without remote, got %d", len(entries))
	}
	if _, err := svc.FlushSync(ctx); !errors.Is(err, remotesync.ErrSyncDisabled) {
		t.Fatalf("expected sync disabled, got %v", err)
	}
}

func TestMedicineManagement(t *testing.T) {
	svc, _ := newTestService(t)
	admin := asRole(domain.RoleAdmin)

	if _, err := svc.CreateMedicine(asRole(domain.RoleCashier), domain.MedicineCreateRequest{Name: "X", Price: 1}); !errors.Is(err, session.ErrInsufficientPermissions) {
		t.Fatalf("expected cashier to be rejected, got %v", err)
	}
	if _, err := svc.CreateMedicine(admin, domain.MedicineCreateRequest{Name: "  ", Price: 1}); !errors.Is(err, store.ErrInvalidRecord) {
		t.Fatalf("expected blank name to be rejected, got %v", err)
	}

	created, err := svc.CreateMedicine(admin, domain.MedicineCreateRequest{Name: " Cetirizine 10mg ", Price: 1.25, StockQuantity: 12})
	if err != nil {
		t.Fatalf("create medicine failed: %v", err)
	}
	if created.Name != "Cetirizine 10mg" {
		t.Fatalf("expected trimmed name, got %q", created.Name)
	}

	stock := 20
	updated, ok, err := svc.UpdateMedicine(admin, created.ID, domain.MedicineUpdateRequest{StockQuantity: &stock})
	if err != nil || !ok {
		t.Fatalf("update medicine failed: ok=%v err=%v", ok, err)
	}
	if updated.StockQuantity != 20 || updated.Price != 1.25 {
		t.Fatalf("expected partial update, got %+v", updated)
	}

	found, err := svc.ListMedicines(admin, "cetiri")
	if err != nil || len(found) != 1 {
		t.Fatalf("expected search hit, got %d err=%v", len(found), err)
	}
}

func TestAnalyticsFollowSaleMutations(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := asRole(domain.RoleAdmin)

	sale, err := svc.CreateSale(ctx, domain.SaleRequest{
		Items: []domain.SaleItemRequest{{MedicineID: "med-005", Quantity: 2}},
	})
	if err != nil {
		t.Fatalf("create sale failed: %v", err)
	}
	if _, err := svc.CreateSale(ctx, domain.SaleRequest{
		Items:    []domain.SaleItemRequest{{MedicineID: "med-001", Quantity: 2}},
		IsReturn: true,
	}); err != nil {
		t.Fatalf("create return failed: %v", err)
	}

	summary, err := svc.SalesAnalytics(ctx, domain.AnalyticsRequest{})
	if err != nil {
		t.Fatalf("analytics failed: %v", err)
	}
	if summary.TotalSales != 25 || summary.TotalReturns != 5 || summary.NetSales != 20 {
		t.Fatalf("unexpected summary %+v", summary)
	}

	if _, err := svc.DeleteSale(ctx, sale.ID); err != nil {
		t.Fatalf("delete sale failed: %v", err)
	}
	summary, err = svc.SalesAnalytics(ctx, domain.AnalyticsRequest{})
	if err != nil {
		t.Fatalf("analytics failed: %v", err)
	}
	if summary.TotalSales != 0 || summary.ReturnTransactions != 1 {
		t.Fatalf("expected analytics to reflect deletion, got %+v", summary)
	}

	history, err := svc.MedicineSalesHistory(ctx, "med-001", 7)
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if history.UnitsReturned != 2 || history.UnitsSold != 0 {
		t.Fatalf("unexpected history %+v", history)
	}
}

func TestShopUpdateRequiresAdmin(t *testing.T) {
	svc, _ := newTestService(t)
	name := "Corner Chemist"

	if _, err := svc.UpdateShop(asRole(domain.RoleManager), domain.ShopUpdateRequest{Name: &name}); !errors.Is(err, session.ErrInsufficientPermissions) {
		t.Fatalf("expected manager to be rejected, got %v", err)
	}
	saved, err := svc.UpdateShop(asRole(domain.RoleAdmin), domain.ShopUpdateRequest{Name: &name})
	if err != nil {
		t.Fatalf("update shop failed: %v", err)
	}
	if saved.Name != name || saved.LicenseNumber == "" {
		t.Fatalf("expected partial update over defaults, got %+v", saved)
	}
}

func TestResetDataReseeds(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := asRole(domain.RoleAdmin)

	if _, err := svc.DeleteMedicine(ctx, "med-001"); err != nil {
		t.Fatalf("delete medicine failed: %v", err)
	}
	if err := svc.ResetData(ctx); err != nil {
		t.Fatalf("reset failed: %v", err)
	}
	if got := stockOf(t, svc, "med-001"); got != 100 {
		t.Fatalf("expected default medicine back, got stock %d", got)
	}
}

type mapCache struct {
	values map[string]domain.SalesAnalytics
	hits   int
}

func (c *mapCache) Get(_ context.Context, key string) (*domain.SalesAnalytics, bool, error) {
	v, ok := c.values[key]
	if !ok {
		return nil, false, nil
	}
	c.hits++
	return &v, true, nil
}

func (c *mapCache) Set(_ context.Context, key string, value *domain.SalesAnalytics, _ time.Duration) error {
	c.values[key] = *value
	return nil
}

func TestAnalyticsCacheInvalidatedBySaleMutation(t *testing.T) {
	repo := local.New(memory.New(memory.DefaultQuotaBytes))
	if err := local.Seed(context.Background(), repo, nil); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	analyticsCache := &mapCache{values: map[string]domain.SalesAnalytics{}}
	svc := New(repo, Options{Cache: analyticsCache})
	ctx := asRole(domain.RoleAdmin)

	if _, err := svc.SalesAnalytics(ctx, domain.AnalyticsRequest{}); err != nil {
		t.Fatalf("analytics failed: %v", err)
	}
	if _, err := svc.SalesAnalytics(ctx, domain.AnalyticsRequest{}); err != nil {
		t.Fatalf("analytics failed: %v", err)
	}
	if analyticsCache.hits != 1 {
		t.Fatalf("expected second read to hit cache, got %d hits", analyticsCache.hits)
	}

	if _, err := svc.CreateSale(ctx, domain.SaleRequest{
		Items: []domain.SaleItemRequest{{MedicineID: "med-001", Quantity: 4}},
	}); err != nil {
		t.Fatalf("create sale failed: %v", err)
	}
	summary, err := svc.SalesAnalytics(ctx, domain.AnalyticsRequest{})
	if err != nil {
		t.Fatalf("analytics failed: %v", err)
	}
	if summary.TotalSales != 10 || analyticsCache.hits != 1 {
		t.Fatalf("expected fresh summary after sale, got %+v with %d hits", summary, analyticsCache.hits)
	}
}

func TestExplicitZeroPriceIsKept(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := asRole(domain.RoleCashier)

	sale, err := svc.CreateSale(ctx, domain.SaleRequest{
		Items: []domain.SaleItemRequest{
			{MedicineID: "med-001", Quantity: 2, Price: unitPrice(0)},
			{MedicineID: "med-001", Quantity: 1},
		},
	})
	if err != nil {
		t.Fatalf("create sale failed: %v", err)
	}
	if sale.Items[0].Price != 0 || sale.Items[0].Total != 0 {
		t.Fatalf("expected free line to stay at 0, got %+v", sale.Items[0])
	}
	if sale.Items[1].Price != 2.5 {
		t.Fatalf("expected omitted price to take catalogue price, got %+v", sale.Items[1])
	}
	if sale.TotalAmount != 2.5 {
		t.Fatalf("expected total 2.50, got %.2f", sale.TotalAmount)
	}
	if got := stockOf(t, svc, "med-001"); got != 97 {
		t.Fatalf("expected free units to leave stock, got %d", got)
	}

	if _, err := svc.CreateSale(ctx, domain.SaleRequest{
		Items: []domain.SaleItemRequest{{MedicineID: "med-001", Quantity: 1, Price: unitPrice(-1)}},
	}); !errors.Is(err, store.ErrInvalidRecord) {
		t.Fatalf("expected negative price to be rejected, got %v", err)
	}
}

func TestRestoredBackupReversesImportedSale(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := asRole(domain.RoleAdmin)

	sale, err := svc.CreateSale(ctx, domain.SaleRequest{
		Items: []domain.SaleItemRequest{{MedicineID: "med-001", Quantity: 5}},
	})
	if err != nil {
		t.Fatalf("create sale failed: %v", err)
	}
	backup, err := svc.ExportData(ctx)
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}

	if _, ok, err := svc.UpdateSale(ctx, sale.ID, domain.SaleRequest{
		Items: []domain.SaleItemRequest{{MedicineID: "med-001", Quantity: 3}},
	}); err != nil || !ok {
		t.Fatalf("update sale failed: ok=%v err=%v", ok, err)
	}
	if got := stockOf(t, svc, "med-001"); got != 97 {
		t.Fatalf("expected 97 after edit, got %d", got)
	}

	if err := svc.ImportData(ctx, backup); err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if got := stockOf(t, svc, "med-001"); got != 95 {
		t.Fatalf("expected restored stock 95, got %d", got)
	}

	if _, err := svc.DeleteSale(ctx, sale.ID); err != nil {
		t.Fatalf("delete sale failed: %v", err)
	}
	if got := stockOf(t, svc, "med-001"); got != 100 {
		t.Fatalf("expected stock back at 100 after deleting restored sale, got %d", got)
	}
}
