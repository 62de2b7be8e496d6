package store

import (
	"context"
	"errors"

	"medipos/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidRecord     = errors.New("invalid record")
	ErrStorageFull       = errors.New("storage full")
	ErrUnknownCollection = errors.New("unknown collection")
	ErrDuplicate         = errors.New("duplicate record")
)

// Persisted keys. Each key holds one whole collection.
const (
	KeyUsers          = "medipos_users"
	KeyMedicines      = "medipos_medicines"
	KeySales          = "medipos_sales"
	KeyShop           = "medipos_shop"
	KeySessions       = "medipos_sessions"
	KeyCurrentSession = "medipos_current_session"
	KeyStockLedger    = "medipos_stock_ledger"
	KeySyncOutbox     = "medipos_sync_outbox"
)

// AllKeys lists every key the record store writes.
var AllKeys = []string{
	KeyUsers,
	KeyMedicines,
	KeySales,
	KeyShop,
	KeySessions,
	KeyCurrentSession,
	KeyStockLedger,
	KeySyncOutbox,
}

// Medium is the persistence backend behind the record store. Save replaces
// the whole value stored under key and must return an error wrapping
// ErrStorageFull when the backend has no room left.
type Medium interface {
	Load(ctx context.Context, key string) ([]byte, bool, error)
	Save(ctx context.Context, key string, payload []byte) error
	Remove(ctx context.Context, key string) error
	Close() error
}

// Lookups return (nil, false, nil) for unknown ids; Delete returns false.

// MedicineStore holds the medicine catalogue.
type MedicineStore interface {
	ListMedicines(ctx context.Context, search string) ([]domain.Medicine, error)
	GetMedicine(ctx context.Context, id string) (*domain.Medicine, bool, error)
	CreateMedicine(ctx context.Context, medicine domain.Medicine) (*domain.Medicine, error)
	UpdateMedicine(ctx context.Context, id string, mutate func(*domain.Medicine)) (*domain.Medicine, bool, error)
	DeleteMedicine(ctx context.Context, id string) (bool, error)
}

// SaleStore holds recorded sales, newest first when listed.
type SaleStore interface {
	ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.Sale, error)
	GetSale(ctx context.Context, id string) (*domain.Sale, bool, error)
	CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	UpdateSale(ctx context.Context, id string, mutate func(*domain.Sale)) (*domain.Sale, bool, error)
	DeleteSale(ctx context.Context, id string) (bool, error)
}

// UserStore holds user accounts with hashed passwords.
type UserStore interface {
	ListUsers(ctx context.Context) ([]domain.User, error)
	GetUser(ctx context.Context, id string) (*domain.User, bool, error)
	GetUserByUsername(ctx context.Context, username string) (*domain.User, bool, error)
	CreateUser(ctx context.Context, user domain.User) (*domain.User, error)
	UpdateUser(ctx context.Context, id string, mutate func(*domain.User)) (*domain.User, bool, error)
	DeleteUser(ctx context.Context, id string) (bool, error)
}

// ShopStore holds the single shop profile.
type ShopStore interface {
	GetShop(ctx context.Context) (*domain.ShopProfile, bool, error)
	SaveShop(ctx context.Context, shop domain.ShopProfile) (*domain.ShopProfile, error)
}

// SessionStore keeps the login history and the current session.
type SessionStore interface {
	// CreateSession appends to the history and makes the session current.
	CreateSession(ctx context.Context, session domain.Session) (*domain.Session, error)
	CurrentSession(ctx context.Context) (*domain.Session, bool, error)
	ClearCurrentSession(ctx context.Context) error
	ListSessions(ctx context.Context) ([]domain.Session, error)
}

// LedgerStore records the stock deltas applied for each sale.
type LedgerStore interface {
	AppendLedger(ctx context.Context, entries []domain.LedgerEntry) error
	LedgerForSale(ctx context.Context, saleID string) ([]domain.LedgerEntry, error)
	LedgerForMedicine(ctx context.Context, medicineID string) ([]domain.LedgerEntry, error)
	RemoveLedgerForSale(ctx context.Context, saleID string) error
}

// OutboxStore queues mutations waiting for remote delivery.
type OutboxStore interface {
	EnqueueOutbox(ctx context.Context, entry domain.OutboxEntry) (*domain.OutboxEntry, error)
	ListOutbox(ctx context.Context) ([]domain.OutboxEntry, error)
	UpdateOutbox(ctx context.Context, id string, mutate func(*domain.OutboxEntry)) (*domain.OutboxEntry, bool, error)
	DeleteOutbox(ctx context.Context, id string) (bool, error)
}

// Repository is everything the service layer persists.
type Repository interface {
	MedicineStore
	SaleStore
	UserStore
	ShopStore
	SessionStore
	LedgerStore
	OutboxStore

	Export(ctx context.Context) (domain.DataExport, error)
	Import(ctx context.Context, data domain.DataExport) error
}
