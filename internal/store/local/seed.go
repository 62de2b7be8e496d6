package local

import (
	"context"
	"os"
	"time"

	"go.uber.org/zap"

	"medipos/backend/internal/domain"
	"medipos/backend/internal/password"
)

// Seed writes the default users, medicines and shop profile for every
// collection that has never been written. Credentials come from
// SEED_ADMIN_PASSWORD, SEED_MANAGER_PASSWORD and SEED_CASHIER_PASSWORD; the
// dev defaults are used when unset.
func Seed(ctx context.Context, s *Store, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	hasUsers, err := s.users.Exists(ctx)
	if err != nil {
		return err
	}
	if !hasUsers {
		users, err := seedUsers(s.now(), logger)
		if err != nil {
			return err
		}
		if err := s.users.Replace(ctx, users); err != nil {
			return err
		}
		logger.Info("seeded default users", zap.Int("count", len(users)))
	}

	hasMedicines, err := s.medicines.Exists(ctx)
	if err != nil {
		return err
	}
	if !hasMedicines {
		medicines := seedMedicines(s.now())
		if err := s.medicines.Replace(ctx, medicines); err != nil {
			return err
		}
		logger.Info("seeded default medicines", zap.Int("count", len(medicines)))
	}

	if _, hasShop, err := s.shop.Get(ctx); err != nil {
		return err
	} else if !hasShop {
		if _, err := s.SaveShop(ctx, DefaultShop()); err != nil {
			return err
		}
		logger.Info("seeded default shop profile")
	}
	return nil
}

func seedUsers(now time.Time, logger *zap.Logger) ([]domain.User, error) {
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_MANAGER_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		logger.Warn("using default dev credentials; set SEED_ADMIN_PASSWORD, SEED_MANAGER_PASSWORD and SEED_CASHIER_PASSWORD to override")
	}

	defaults := []struct {
		id       string
		username string
		secret   string
		email    string
		fullName string
		phone    string
		role     string
	}{
		{"admin-001", "admin", envOr("SEED_ADMIN_PASSWORD", "admin123"), "admin@medipos.local", "System Administrator", "+1234567890", domain.RoleAdmin},
		{"manager-001", "manager", envOr("SEED_MANAGER_PASSWORD", "manager123"), "manager@medipos.local", "Store Manager", "+1234567891", domain.RoleManager},
		{"cashier-001", "cashier", envOr("SEED_CASHIER_PASSWORD", "cashier123"), "cashier@medipos.local", "Store Cashier", "+1234567892", domain.RoleCashier},
	}

	users := make([]domain.User, 0, len(defaults))
	for _, u := range defaults {
		hash, err := password.Hash(u.secret)
		if err != nil {
			return nil, err
		}
		users = append(users, domain.User{
			ID:          u.id,
			Username:    u.username,
			Password:    hash,
			Email:       u.email,
			FullName:    u.fullName,
			Phone:       u.phone,
			Role:        u.role,
			IsActive:    true,
			Permissions: domain.DefaultPermissions(u.role),
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}
	return users, nil
}

func seedMedicines(now time.Time) []domain.Medicine {
	medicines := []domain.Medicine{
		{ID: "med-001", Name: "Paracetamol 500mg", Price: 2.50, StockQuantity: 100, ExpiryDate: "2027-12-31", BatchNumber: "PCM001", Supplier: "PharmaCorp Ltd", Barcode: "1234567890123"},
		{ID: "med-002", Name: "Amoxicillin 250mg", Price: 8.75, StockQuantity: 75, ExpiryDate: "2027-08-15", BatchNumber: "AMX002", Supplier: "MedSupply Co", Barcode: "1234567890124"},
		{ID: "med-003", Name: "Ibuprofen 400mg", Price: 5.25, StockQuantity: 50, ExpiryDate: "2027-10-20", BatchNumber: "IBU003", Supplier: "HealthMeds Inc", Barcode: "1234567890125"},
		{ID: "med-004", Name: "Aspirin 325mg", Price: 3.00, StockQuantity: 8, ExpiryDate: "2027-06-30", BatchNumber: "ASP004", Supplier: "PharmaCorp Ltd", Barcode: "1234567890126"},
		{ID: "med-005", Name: "Omeprazole 20mg", Price: 12.50, StockQuantity: 30, ExpiryDate: "2028-03-15", BatchNumber: "OME005", Supplier: "MedSupply Co", Barcode: "1234567890127"},
	}
	for i := range medicines {
		medicines[i].CreatedAt = now
		medicines[i].UpdatedAt = now
	}
	return medicines
}

func DefaultShop() domain.ShopProfile {
	return domain.ShopProfile{
		ID:            "shop-001",
		Name:          "MediPOS Pharmacy",
		Address:       "123 Health Street, Medical District, City 12345",
		Phone:         "+1-555-MEDIPOS",
		Email:         "info@medipos.local",
		LicenseNumber: "PH-2024-001",
		GSTNumber:     "GST123456789",
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
