// Package local implements the record store on top of a key-value medium.
package local

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"medipos/backend/internal/domain"
	"medipos/backend/internal/password"
	"medipos/backend/internal/store"
)

type Store struct {
	medium    store.Medium
	users     *Collection[domain.User, *domain.User]
	medicines *Collection[domain.Medicine, *domain.Medicine]
	sales     *Collection[domain.Sale, *domain.Sale]
	sessions  *Collection[domain.Session, *domain.Session]
	ledger    *Collection[domain.LedgerEntry, *domain.LedgerEntry]
	outbox    *Collection[domain.OutboxEntry, *domain.OutboxEntry]
	shop      *Singleton[domain.ShopProfile]
	current   *Singleton[domain.Session]
	now       func() time.Time
}

var _ store.Repository = (*Store)(nil)

func New(medium store.Medium) *Store {
	return &Store{
		medium:    medium,
		users:     NewCollection[domain.User](medium, store.KeyUsers, "user", usersVersion, userMigrations),
		medicines: NewCollection[domain.Medicine](medium, store.KeyMedicines, "med", medicinesVersion, medicineMigrations),
		sales:     NewCollection[domain.Sale](medium, store.KeySales, "sale", salesVersion, saleMigrations),
		sessions:  NewCollection[domain.Session](medium, store.KeySessions, "session", sessionsVersion, sessionMigrations),
		ledger:    NewCollection[domain.LedgerEntry](medium, store.KeyStockLedger, "stk", ledgerVersion, nil),
		outbox:    NewCollection[domain.OutboxEntry](medium, store.KeySyncOutbox, "sync", outboxVersion, nil),
		shop:      NewSingleton[domain.ShopProfile](medium, store.KeyShop, shopVersion, shopMigrations),
		current:   NewSingleton[domain.Session](medium, store.KeyCurrentSession, sessionsVersion, sessionMigrations),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the timestamp source of every collection.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
	s.users.now = now
	s.medicines.now = now
	s.sales.now = now
	s.sessions.now = now
	s.ledger.now = now
	s.outbox.now = now
}

// Migrate upgrades every stored collection to the current layout.
func (s *Store) Migrate(ctx context.Context) error {
	steps := []struct {
		name string
		run  func(context.Context) (bool, error)
	}{
		{store.KeyUsers, s.users.Migrate},
		{store.KeyMedicines, s.medicines.Migrate},
		{store.KeySales, s.sales.Migrate},
		{store.KeySessions, s.sessions.Migrate},
		{store.KeyStockLedger, s.ledger.Migrate},
		{store.KeySyncOutbox, s.outbox.Migrate},
		{store.KeyShop, s.shop.Migrate},
		{store.KeyCurrentSession, s.current.Migrate},
	}
	for _, step := range steps {
		if _, err := step.run(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Clear removes every key the store writes.
func (s *Store) Clear(ctx context.Context) error {
	var errs []error
	for _, key := range store.AllKeys {
		if err := s.medium.Remove(ctx, key); err != nil {
			errs = append(errs, fmt.Errorf("remove %s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

func (s *Store) ListMedicines(ctx context.Context, search string) ([]domain.Medicine, error) {
	query := strings.ToLower(strings.TrimSpace(search))
	if query == "" {
		return s.medicines.List(ctx, nil)
	}
	return s.medicines.List(ctx, func(m *domain.Medicine) bool {
		return strings.Contains(strings.ToLower(m.Name), query) ||
			strings.Contains(strings.ToLower(m.Barcode), query) ||
			strings.Contains(strings.ToLower(m.Supplier), query)
	})
}

func (s *Store) GetMedicine(ctx context.Context, id string) (*domain.Medicine, bool, error) {
	return s.medicines.Get(ctx, id)
}

func (s *Store) CreateMedicine(ctx context.Context, medicine domain.Medicine) (*domain.Medicine, error) {
	return first(s.medicines.Insert(ctx, medicine))
}

func (s *Store) UpdateMedicine(ctx context.Context, id string, mutate func(*domain.Medicine)) (*domain.Medicine, bool, error) {
	return s.medicines.Update(ctx, id, mutate)
}

func (s *Store) DeleteMedicine(ctx context.Context, id string) (bool, error) {
	return s.medicines.Delete(ctx, id)
}

func (s *Store) ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.Sale, error) {
	name := strings.ToLower(strings.TrimSpace(filter.MedicineName))
	sales, err := s.sales.List(ctx, func(sale *domain.Sale) bool {
		if filter.From != nil && sale.CreatedAt.Before(*filter.From) {
			return false
		}
		if filter.To != nil && sale.CreatedAt.After(*filter.To) {
			return false
		}
		if name == "" {
			return true
		}
		for _, item := range sale.Items {
			if strings.Contains(strings.ToLower(item.MedicineName), name) {
				return true
			}
		}
		return false
	})
	if err != nil {
		return nil, err
	}

	slices.SortStableFunc(sales, func(a, b domain.Sale) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if filter.Limit > 0 && len(sales) > filter.Limit {
		sales = sales[:filter.Limit]
	}
	return sales, nil
}

func (s *Store) GetSale(ctx context.Context, id string) (*domain.Sale, bool, error) {
	return s.sales.Get(ctx, id)
}

func (s *Store) CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	return first(s.sales.Insert(ctx, sale))
}

func (s *Store) UpdateSale(ctx context.Context, id string, mutate func(*domain.Sale)) (*domain.Sale, bool, error) {
	return s.sales.Update(ctx, id, mutate)
}

func (s *Store) DeleteSale(ctx context.Context, id string) (bool, error) {
	return s.sales.Delete(ctx, id)
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.User, error) {
	return s.users.List(ctx, nil)
}

func (s *Store) GetUser(ctx context.Context, id string) (*domain.User, bool, error) {
	return s.users.Get(ctx, id)
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.User, bool, error) {
	users, err := s.users.List(ctx, func(u *domain.User) bool {
		return strings.EqualFold(u.Username, username)
	})
	if err != nil || len(users) == 0 {
		return nil, false, err
	}
	return &users[0], true, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.User) (*domain.User, error) {
	if strings.TrimSpace(user.Username) == "" {
		return nil, fmt.Errorf("username is required: %w", store.ErrInvalidRecord)
	}
	if _, taken, err := s.GetUserByUsername(ctx, user.Username); err != nil {
		return nil, err
	} else if taken {
		return nil, fmt.Errorf("username %s: %w", user.Username, store.ErrDuplicate)
	}
	return first(s.users.Insert(ctx, user))
}

func (s *Store) UpdateUser(ctx context.Context, id string, mutate func(*domain.User)) (*domain.User, bool, error) {
	return s.users.Update(ctx, id, mutate)
}

func (s *Store) DeleteUser(ctx context.Context, id string) (bool, error) {
	return s.users.Delete(ctx, id)
}

func (s *Store) GetShop(ctx context.Context) (*domain.ShopProfile, bool, error) {
	return s.shop.Get(ctx)
}

func (s *Store) SaveShop(ctx context.Context, shop domain.ShopProfile) (*domain.ShopProfile, error) {
	shop.UpdatedAt = s.now()
	if err := s.shop.Put(ctx, shop); err != nil {
		return nil, err
	}
	return &shop, nil
}

func (s *Store) CreateSession(ctx context.Context, session domain.Session) (*domain.Session, error) {
	created, err := first(s.sessions.Insert(ctx, session))
	if err != nil {
		return nil, err
	}
	if err := s.current.Put(ctx, *created); err != nil {
		return nil, err
	}
	return created, nil
}

func (s *Store) CurrentSession(ctx context.Context) (*domain.Session, bool, error) {
	return s.current.Get(ctx)
}

func (s *Store) ClearCurrentSession(ctx context.Context) error {
	return s.current.Clear(ctx)
}

func (s *Store) ListSessions(ctx context.Context) ([]domain.Session, error) {
	return s.sessions.List(ctx, nil)
}

func (s *Store) AppendLedger(ctx context.Context, entries []domain.LedgerEntry) error {
	if len(entries) == 0 {
		return nil
	}
	_, err := s.ledger.Insert(ctx, entries...)
	return err
}

func (s *Store) LedgerForSale(ctx context.Context, saleID string) ([]domain.LedgerEntry, error) {
	return s.ledger.List(ctx, func(e *domain.LedgerEntry) bool { return e.SaleID == saleID })
}

func (s *Store) LedgerForMedicine(ctx context.Context, medicineID string) ([]domain.LedgerEntry, error) {
	return s.ledger.List(ctx, func(e *domain.LedgerEntry) bool { return e.MedicineID == medicineID })
}

func (s *Store) RemoveLedgerForSale(ctx context.Context, saleID string) error {
	_, err := s.ledger.DeleteWhere(ctx, func(e *domain.LedgerEntry) bool { return e.SaleID == saleID })
	return err
}

func (s *Store) EnqueueOutbox(ctx context.Context, entry domain.OutboxEntry) (*domain.OutboxEntry, error) {
	return first(s.outbox.Insert(ctx, entry))
}

func (s *Store) ListOutbox(ctx context.Context) ([]domain.OutboxEntry, error) {
	return s.outbox.List(ctx, nil)
}

func (s *Store) UpdateOutbox(ctx context.Context, id string, mutate func(*domain.OutboxEntry)) (*domain.OutboxEntry, bool, error) {
	return s.outbox.Update(ctx, id, mutate)
}

func (s *Store) DeleteOutbox(ctx context.Context, id string) (bool, error) {
	return s.outbox.Delete(ctx, id)
}

func (s *Store) Export(ctx context.Context) (domain.DataExport, error) {
	var out domain.DataExport
	var err error
	if out.Users, err = s.users.List(ctx, nil); err != nil {
		return out, err
	}
	if out.Medicines, err = s.medicines.List(ctx, nil); err != nil {
		return out, err
	}
	if out.Sales, err = s.sales.List(ctx, nil); err != nil {
		return out, err
	}
	if out.Sessions, err = s.sessions.List(ctx, nil); err != nil {
		return out, err
	}
	shop, ok, err := s.shop.Get(ctx)
	if err != nil {
		return out, err
	}
	if ok {
		out.Shop = shop
	}
	out.ExportedAt = s.now()
	return out, nil
}

// Import replaces each collection present in data. Plaintext passwords in
// imported users are hashed before they are written. Importing sales drops
// the stock ledger, so a later reversal uses the imported line items.
func (s *Store) Import(ctx context.Context, data domain.DataExport) error {
	if data.Users != nil {
		users := make([]domain.User, len(data.Users))
		copy(users, data.Users)
		for i := range users {
			if users[i].Password == "" || password.IsHash(users[i].Password) {
				continue
			}
			hashed, err := password.Hash(users[i].Password)
			if err != nil {
				return fmt.Errorf("hash password for %s: %w", users[i].Username, err)
			}
			users[i].Password = hashed
		}
		if err := s.users.Replace(ctx, users); err != nil {
			return err
		}
	}
	if data.Medicines != nil {
		if err := s.medicines.Replace(ctx, data.Medicines); err != nil {
			return err
		}
	}
	if data.Sales != nil {
		if err := s.sales.Replace(ctx, data.Sales); err != nil {
			return err
		}
		if err := s.ledger.Replace(ctx, nil); err != nil {
			return err
		}
	}
	if data.Sessions != nil {
		if err := s.sessions.Replace(ctx, data.Sessions); err != nil {
			return err
		}
	}
	if data.Shop != nil {
		if err := s.shop.Put(ctx, *data.Shop); err != nil {
			return err
		}
	}
	return nil
}

func first[T any](records []T, err error) (*T, error) {
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("no record written: %w", store.ErrInvalidRecord)
	}
	return &records[0], nil
}
