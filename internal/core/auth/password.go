package auth

import (
	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength is enforced by both registration and password reset.
const MinPasswordLength = 6

// HashPassword derives a bcrypt hash at the default cost.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches the stored hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// ValidPasswordLength reports whether password meets the minimum length.
func ValidPasswordLength(password string) bool {
	return len(password) >= MinPasswordLength
}
