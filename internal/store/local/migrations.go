package local

import (
	"fmt"

	"medipos/backend/internal/password"
)

// Current envelope versions per collection.
const (
	usersVersion     = 2
	medicinesVersion = 1
	salesVersion     = 1
	shopVersion      = 1
	sessionsVersion  = 1
	ledgerVersion    = 1
	outboxVersion    = 1
)

var userMigrations = map[int]Migration{
	0: renameFields(map[string]string{
		"isActive":  "is_active",
		"lastLogin": "last_login",
		"createdAt": "created_at",
		"updatedAt": "updated_at",
		"fullName":  "full_name",
	}, permissionFields),
	1: hashPlaintextPasswords,
}

var medicineMigrations = map[int]Migration{
	0: fillUpdatedAt,
}

var saleMigrations = map[int]Migration{
	0: chain(renameFields(map[string]string{"sale_date": "created_at"}, nil), fillUpdatedAt),
}

var sessionMigrations = map[int]Migration{
	0: renameFields(map[string]string{
		"sessionId":  "id",
		"userId":     "user_id",
		"createdAt":  "created_at",
		"expiresAt":  "expires_at",
		"rememberMe": "remember_me",
	}, nil),
}

var shopMigrations = map[int]Migration{
	0: renameFields(map[string]string{
		"licenseNumber": "license_number",
		"gstNumber":     "gst_number",
	}, nil),
}

func permissionFields(record map[string]any) {
	perms, ok := record["permissions"].(map[string]any)
	if !ok {
		return
	}
	renameKeys(perms, map[string]string{
		"canManageUsers":  "can_manage_users",
		"canModifyStock":  "can_modify_stock",
		"canViewReports":  "can_view_reports",
		"canManageSystem": "can_manage_system",
	})
}

func renameFields(names map[string]string, nested func(map[string]any)) Migration {
	return func(records []map[string]any) ([]map[string]any, error) {
		for _, record := range records {
			renameKeys(record, names)
			if nested != nil {
				nested(record)
			}
		}
		return records, nil
	}
}

// renameKeys moves old keys to new ones without clobbering a value already
// stored under the new name.
func renameKeys(record map[string]any, names map[string]string) {
	for from, to := range names {
		value, ok := record[from]
		if !ok {
			continue
		}
		delete(record, from)
		if _, exists := record[to]; !exists {
			record[to] = value
		}
	}
}

func fillUpdatedAt(records []map[string]any) ([]map[string]any, error) {
	for _, record := range records {
		if _, ok := record["updated_at"]; !ok {
			if created, ok := record["created_at"]; ok {
				record["updated_at"] = created
			}
		}
	}
	return records, nil
}

func hashPlaintextPasswords(records []map[string]any) ([]map[string]any, error) {
	for _, record := range records {
		secret, _ := record["password"].(string)
		if secret == "" || password.IsHash(secret) {
			continue
		}
		hashed, err := password.Hash(secret)
		if err != nil {
			return nil, fmt.Errorf("hash password for %v: %w", record["username"], err)
		}
		record["password"] = hashed
	}
	return records, nil
}

func chain(steps ...Migration) Migration {
	return func(records []map[string]any) ([]map[string]any, error) {
		var err error
		for _, step := range steps {
			if records, err = step(records); err != nil {
				return nil, err
			}
		}
		return records, nil
	}
}
