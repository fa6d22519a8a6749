package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/sakif/student-data-vault/internal/model"
)

// NewQRToken returns 32 random bytes, hex encoded (64 characters).
func NewQRToken() (string, error) {
	return randomHex(32)
}

// NewUserID returns "<role>-<8 hex chars>", e.g. "teacher-9f86d081".
func NewUserID(role model.Role) (string, error) {
	suffix, err := randomHex(4)
	if err != nil {
		return "", err
	}
	return role.Prefix() + "-" + suffix, nil
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("auth: reading random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}
