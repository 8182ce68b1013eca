package rbac

import (
	"context"
	"errors"

	"github.com/copr-farm/copr/pkg/models"
)

// Context keys for the authenticated caller
type contextKey string

const (
	userKey    contextKey = "user"
	backendKey contextKey = "backend"
)

var (
	ErrNoUserInContext = errors.New("no user in context")
)

// WithUser adds the authenticated user to the context
func WithUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// UserFromContext returns the authenticated user, nil for anonymous requests
func UserFromContext(ctx context.Context) *models.User {
	user, _ := ctx.Value(userKey).(*models.User)
	return user
}

// RequireUserFromContext returns the authenticated user or ErrNoUserInContext
func RequireUserFromContext(ctx context.Context) (*models.User, error) {
	user := UserFromContext(ctx)
	if user == nil {
		return nil, ErrNoUserInContext
	}
	return user, nil
}

// WithBackend marks the request as coming from the build backend
func WithBackend(ctx context.Context) context.Context {
	return context.WithValue(ctx, backendKey, true)
}

// IsBackend reports whether the request was authenticated as the backend
func IsBackend(ctx context.Context) bool {
	ok, _ := ctx.Value(backendKey).(bool)
	return ok
}
