package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/copr-farm/copr/pkg/models"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// Authenticator resolves API credentials to a user
type Authenticator interface {
	Authenticate(ctx context.Context, login, token string) (*models.User, error)
}

// GenerateToken generates a new API token and the bcrypt hash stored for it
func GenerateToken() (token, hash string, err error) {
	tokenBytes := make([]byte, 30)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", "", fmt.Errorf("failed to generate token: %w", err)
	}

	token = base64.RawURLEncoding.EncodeToString(tokenBytes)

	h, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", "", fmt.Errorf("failed to hash token: %w", err)
	}
	return token, string(h), nil
}

// CheckToken validates token against the stored hash
func CheckToken(hash, token string) error {
	if hash == "" || token == "" {
		return ErrInvalidToken
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)); err != nil {
		return ErrInvalidToken
	}
	return nil
}

// GenerateAPILogin returns a fresh random API login
func GenerateAPILogin() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// SecureCompare performs constant-time comparison
func SecureCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
