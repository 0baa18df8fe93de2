package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/rentora/rentora/internal/shared"
)

// MinPasswordLength is enforced on every stored password.
const MinPasswordLength = 8

// HashPassword returns the bcrypt hash of password.
func HashPassword(password string) (string, error) {
	if len(password) < MinPasswordLength {
		return "", fmt.Errorf("%w: password must be at least %d characters", shared.ErrValidation, MinPasswordLength)
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("auth: hash password: %w", err)
	}
	return string(hashed), nil
}

// CheckPassword compares password with a stored hash.
func CheckPassword(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return shared.ErrInvalidCredentials
	}
	return nil
}
