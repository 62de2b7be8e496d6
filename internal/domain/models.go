package domain

import (
	"encoding/json"
	"time"
)

const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleCashier = "cashier"
)

const (
	PaymentCash = "cash"
	PaymentCard = "card"
	PaymentUPI  = "upi"
)

type Medicine struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Price         float64   `json:"price"`
	StockQuantity int       `json:"stock_quantity"`
	ExpiryDate    string    `json:"expiry_date"`
	BatchNumber   string    `json:"batch_number"`
	Supplier      string    `json:"supplier"`
	Barcode       string    `json:"barcode,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (m *Medicine) RecordID() string { return m.ID }
func (m *Medicine) AssignID(id string) { m.ID = id }
func (m *Medicine) Touch(at time.Time) { touch(&m.CreatedAt, &m.UpdatedAt, at) }

type MedicineCreateRequest struct {
	Name          string  `json:"name"`
	Price         float64 `json:"price"`
	StockQuantity int     `json:"stock_quantity"`
	ExpiryDate    string  `json:"expiry_date"`
	BatchNumber   string  `json:"batch_number"`
	Supplier      string  `json:"supplier"`
	Barcode       string  `json:"barcode,omitempty"`
}

type MedicineUpdateRequest struct {
	Name          *string  `json:"name,omitempty"`
	Price         *float64 `json:"price,omitempty"`
	StockQuantity *int     `json:"stock_quantity,omitempty"`
	ExpiryDate    *string  `json:"expiry_date,omitempty"`
	BatchNumber   *string  `json:"batch_number,omitempty"`
	Supplier      *string  `json:"supplier,omitempty"`
	Barcode       *string  `json:"barcode,omitempty"`
}

// LineItem references a medicine by id only; name and price are snapshots
// taken when the sale was recorded.
type LineItem struct {
	MedicineID   string  `json:"medicine_id"`
	MedicineName string  `json:"medicine_name"`
	Quantity     int     `json:"quantity"`
	Price        float64 `json:"price"`
	Total        float64 `json:"total"`
	IsReturn     bool    `json:"is_return,omitempty"`
}

type Sale struct {
	ID             string     `json:"id"`
	ReceiptNumber  string     `json:"receipt_number"`
	Items          []LineItem `json:"items"`
	Subtotal       float64    `json:"subtotal,omitempty"`
	DiscountAmount float64    `json:"discount_amount,omitempty"`
	TotalAmount    float64    `json:"total_amount"`
	PaymentMethod  string     `json:"payment_method"`
	CustomerName   string     `json:"customer_name,omitempty"`
	CustomerPhone  string     `json:"customer_phone,omitempty"`
	CashierID      string     `json:"cashier_id"`
	IsReturn       bool       `json:"is_return,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func (s *Sale) RecordID() string { return s.ID }
func (s *Sale) AssignID(id string) { s.ID = id }
func (s *Sale) Touch(at time.Time) { touch(&s.CreatedAt, &s.UpdatedAt, at) }

// HasReturn reports whether the sale counts as a return for analytics.
func (s Sale) HasReturn() bool {
	if s.IsReturn {
		return true
	}
	for _, item := range s.Items {
		if item.IsReturn {
			return true
		}
	}
	return false
}

// SaleItemRequest is one requested line. A nil Price takes the medicine's
// current price.
type SaleItemRequest struct {
	MedicineID   string   `json:"medicine_id"`
	MedicineName string   `json:"medicine_name,omitempty"`
	Quantity     int      `json:"quantity"`
	Price        *float64 `json:"price,omitempty"`
	IsReturn     bool     `json:"is_return,omitempty"`
}

type SaleRequest struct {
	Items          []SaleItemRequest `json:"items"`
	Subtotal       float64           `json:"subtotal,omitempty"`
	DiscountAmount float64           `json:"discount_amount,omitempty"`
	PaymentMethod  string            `json:"payment_method"`
	CustomerName   string            `json:"customer_name,omitempty"`
	CustomerPhone  string            `json:"customer_phone,omitempty"`
	CashierID      string            `json:"cashier_id,omitempty"`
	IsReturn       bool              `json:"is_return,omitempty"`
}

type SaleFilter struct {
	From         *time.Time
	To           *time.Time
	MedicineName string
	Limit        int
}

type ShopProfile struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Address       string    `json:"address"`
	Phone         string    `json:"phone"`
	Email         string    `json:"email,omitempty"`
	LicenseNumber string    `json:"license_number"`
	GSTNumber     string    `json:"gst_number,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type ShopUpdateRequest struct {
	Name          *string `json:"name,omitempty"`
	Address       *string `json:"address,omitempty"`
	Phone         *string `json:"phone,omitempty"`
	Email         *string `json:"email,omitempty"`
	LicenseNumber *string `json:"license_number,omitempty"`
	GSTNumber     *string `json:"gst_number,omitempty"`
}

type Permissions struct {
	CanManageUsers  bool `json:"can_manage_users"`
	CanModifyStock  bool `json:"can_modify_stock"`
	CanViewReports  bool `json:"can_view_reports"`
	CanManageSystem bool `json:"can_manage_system"`
}

// DefaultPermissions returns the permission set granted to a role when the
// caller does not provide one.
func DefaultPermissions(role string) Permissions {
	switch role {
	case RoleAdmin:
		return Permissions{CanManageUsers: true, CanModifyStock: true, CanViewReports: true, CanManageSystem: true}
	case RoleManager:
		return Permissions{CanModifyStock: true, CanViewReports: true}
	default:
		return Permissions{}
	}
}

type User struct {
	ID          string      `json:"id"`
	Username    string      `json:"username"`
	Password    string      `json:"password"`
	Email       string      `json:"email,omitempty"`
	FullName    string      `json:"full_name,omitempty"`
	Phone       string      `json:"phone,omitempty"`
	Role        string      `json:"role"`
	IsActive    bool        `json:"is_active"`
	Permissions Permissions `json:"permissions"`
	LastLogin   *time.Time  `json:"last_login,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

func (u *User) RecordID() string { return u.ID }
func (u *User) AssignID(id string) { u.ID = id }
func (u *User) Touch(at time.Time) { touch(&u.CreatedAt, &u.UpdatedAt, at) }

// View strips the credential secret.
func (u User) View() UserView {
	return UserView{
		ID:          u.ID,
		Username:    u.Username,
		Email:       u.Email,
		FullName:    u.FullName,
		Phone:       u.Phone,
		Role:        u.Role,
		IsActive:    u.IsActive,
		Permissions: u.Permissions,
		LastLogin:   u.LastLogin,
	}
}

type UserView struct {
	ID          string      `json:"id"`
	Username    string      `json:"username"`
	Email       string      `json:"email,omitempty"`
	FullName    string      `json:"full_name,omitempty"`
	Phone       string      `json:"phone,omitempty"`
	Role        string      `json:"role"`
	IsActive    bool        `json:"is_active"`
	Permissions Permissions `json:"permissions"`
	LastLogin   *time.Time  `json:"last_login,omitempty"`
}

type UserCreateRequest struct {
	Username    string       `json:"username"`
	Password    string       `json:"password"`
	Email       string       `json:"email,omitempty"`
	FullName    string       `json:"full_name,omitempty"`
	Phone       string       `json:"phone,omitempty"`
	Role        string       `json:"role"`
	Permissions *Permissions `json:"permissions,omitempty"`
}

type UserUpdateRequest struct {
	Email       *string      `json:"email,omitempty"`
	FullName    *string      `json:"full_name,omitempty"`
	Phone       *string      `json:"phone,omitempty"`
	Role        *string      `json:"role,omitempty"`
	IsActive    *bool        `json:"is_active,omitempty"`
	Permissions *Permissions `json:"permissions,omitempty"`
}

type Session struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	RememberMe bool      `json:"remember_me"`
}

func (s *Session) RecordID() string { return s.ID }
func (s *Session) AssignID(id string) { s.ID = id }
func (s *Session) Touch(at time.Time) {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = at
	}
}

// Expired reports whether the session is past its fixed expiry.
func (s Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

type LoginRequest struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	RememberMe bool   `json:"remember_me"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// AuthResult is the structured outcome of authentication and user
// management operations. Reason carries the sentinel error for callers
// that need to branch on it; Error is the message shown to the user.
type AuthResult struct {
	Success bool      `json:"success"`
	Error   string    `json:"error,omitempty"`
	User    *UserView `json:"user,omitempty"`
	Session *Session  `json:"session,omitempty"`
	Token   string    `json:"token,omitempty"`
	Reason  error     `json:"-"`
}

type Actor struct {
	UserID   string
	Username string
	Role     string
}

type LedgerEntry struct {
	ID         string    `json:"id"`
	SaleID     string    `json:"sale_id"`
	MedicineID string    `json:"medicine_id"`
	Delta      int       `json:"delta"`
	CreatedAt  time.Time `json:"created_at"`
}

func (e *LedgerEntry) RecordID() string { return e.ID }
func (e *LedgerEntry) AssignID(id string) { e.ID = id }
func (e *LedgerEntry) Touch(at time.Time) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = at
	}
}

type SyncKind string

const (
	SyncMedicineCreate SyncKind = "medicine.create"
	SyncMedicineUpdate SyncKind = "medicine.update"
	SyncMedicineDelete SyncKind = "medicine.delete"
	SyncSaleCreate     SyncKind = "sale.create"
	SyncSaleUpdate     SyncKind = "sale.update"
	SyncSaleDelete     SyncKind = "sale.delete"
	SyncShopUpdate     SyncKind = "shop.update"
)

type OutboxEntry struct {
	ID             string          `json:"id"`
	IdempotencyKey string          `json:"idempotency_key"`
	Kind           SyncKind        `json:"kind"`
	EntityID       string          `json:"entity_id"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	Attempts       int             `json:"attempts"`
	NextAttemptAt  time.Time       `json:"next_attempt_at"`
	LastError      string          `json:"last_error,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

func (e *OutboxEntry) RecordID() string { return e.ID }
func (e *OutboxEntry) AssignID(id string) { e.ID = id }
func (e *OutboxEntry) Touch(at time.Time) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = at
	}
}

type SalesAnalytics struct {
	TotalSales         float64 `json:"total_sales"`
	TotalReturns       float64 `json:"total_returns"`
	NetSales           float64 `json:"net_sales"`
	TotalDiscounts     float64 `json:"total_discounts"`
	TotalTransactions  int     `json:"total_transactions"`
	SalesTransactions  int     `json:"sales_transactions"`
	ReturnTransactions int     `json:"return_transactions"`
	AvgTransaction     float64 `json:"avg_transaction"`
}

type AnalyticsRequest struct {
	StartDate string `json:"start_date,omitempty"`
	EndDate   string `json:"end_date,omitempty"`
}

type MedicineSalesHistory struct {
	MedicineID    string  `json:"medicine_id"`
	Days          int     `json:"days"`
	UnitsSold     int     `json:"units_sold"`
	UnitsReturned int     `json:"units_returned"`
	Revenue       float64 `json:"revenue"`
	Transactions  int     `json:"transactions"`
}

type ReconcileReport struct {
	MedicinesPushed int      `json:"medicines_pushed"`
	SalesPushed     int      `json:"sales_pushed"`
	StockCorrected  int      `json:"stock_corrected"`
	Failures        []string `json:"failures,omitempty"`
}

type FlushResult struct {
	Delivered int `json:"delivered"`
	Failed    int `json:"failed"`
	Deferred  int `json:"deferred"`
}

type SyncStatus struct {
	Enabled   bool       `json:"enabled"`
	Pending   int        `json:"pending"`
	OldestAt  *time.Time `json:"oldest_at,omitempty"`
	LastError string     `json:"last_error,omitempty"`
}

type DataExport struct {
	Users      []User       `json:"users"`
	Medicines  []Medicine   `json:"medicines"`
	Sales      []Sale       `json:"sales"`
	Shop       *ShopProfile `json:"shop,omitempty"`
	Sessions   []Session    `json:"sessions"`
	ExportedAt time.Time    `json:"exported_at"`
}

func touch(created *time.Time, updated *time.Time, at time.Time) {
	if created.IsZero() {
		*created = at
	}
	*updated = at
}
