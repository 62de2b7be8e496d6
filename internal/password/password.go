// Package password hashes and verifies user credential secrets.
package password

import (
	"crypto/subtle"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Cost is the bcrypt cost used for new hashes. Tests lower it.
var Cost = bcrypt.DefaultCost

func Hash(plain string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(plain), Cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// IsHash reports whether value is a bcrypt hash rather than a legacy
// plaintext secret.
func IsHash(value string) bool {
	return strings.HasPrefix(value, "$2a$") || strings.HasPrefix(value, "$2b$") || strings.HasPrefix(value, "$2y$")
}

// Verify compares input against a stored secret. Legacy plaintext secrets
// are compared in constant time; needsUpgrade is true when the stored value
// should be replaced with a hash.
func Verify(stored string, input string) (ok bool, needsUpgrade bool) {
	if stored == "" || input == "" {
		return false, false
	}
	if IsHash(stored) {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(input)) == nil, false
	}
	match := subtle.ConstantTimeCompare([]byte(stored), []byte(input)) == 1
	return match, match
}
