package logic

import (
	"context"
	"errors"
	"time"

	"github.com/copr-farm/copr/pkg/auth"
	"github.com/copr-farm/copr/pkg/models"
)

// DefaultTokenValidity is how long a freshly generated API token is accepted
const DefaultTokenValidity = 180 * 24 * time.Hour

// UsersLogic manages accounts, groups and API credentials
type UsersLogic struct {
	l *Logic
}

// Get returns a user by name
func (u *UsersLogic) Get(ctx context.Context, username string) (*models.User, error) {
	user, err := u.l.store.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, notFoundAs(err, "User %s does not exist.", username)
	}
	return user, nil
}

// GetByID returns a user by id
func (u *UsersLogic) GetByID(ctx context.Context, id int64) (*models.User, error) {
	user, err := u.l.store.GetUser(ctx, id)
	if err != nil {
		return nil, notFoundAs(err, "User %d does not exist.", id)
	}
	return user, nil
}

// Add creates a user with a fresh API login. The token is set separately
// with GenerateToken.
func (u *UsersLogic) Add(ctx context.Context, username, email string, admin bool) (*models.User, error) {
	if username == "" {
		return nil, MalformedArgument("Username must not be empty.")
	}
	if _, err := u.l.store.GetUserByUsername(ctx, username); err == nil {
		return nil, Duplicate("User %s already exists.", username)
	} else if !IsCode(err, CodeNotFound) {
		return nil, err
	}

	user := &models.User{
		Username: username,
		Email:    email,
		Admin:    admin,
		APILogin: auth.GenerateAPILogin(),
	}
	if err := u.l.store.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// GenerateToken replaces the API token of user and returns it in clear text.
// Only the hash is stored.
func (u *UsersLogic) GenerateToken(ctx context.Context, user *models.User, validity time.Duration) (string, error) {
	if validity <= 0 {
		validity = DefaultTokenValidity
	}
	token, hash, err := auth.GenerateToken()
	if err != nil {
		return "", err
	}
	expiration := u.l.now().Add(validity)
	user.APITokenHash = hash
	user.APITokenExpiration = &expiration
	if user.APILogin == "" {
		user.APILogin = auth.GenerateAPILogin()
	}
	if err := u.l.store.UpdateUser(ctx, user); err != nil {
		return "", err
	}
	return token, nil
}

// Authenticate resolves api_login and api_token to a user
func (u *UsersLogic) Authenticate(ctx context.Context, login, token string) (*models.User, error) {
	user, err := u.l.store.GetUserByAPILogin(ctx, login)
	if err != nil {
		if IsCode(err, CodeNotFound) {
			return nil, auth.ErrInvalidToken
		}
		return nil, err
	}
	if user.TokenExpired(u.l.now()) {
		return nil, auth.ErrTokenExpired
	}
	if err := auth.CheckToken(user.APITokenHash, token); err != nil {
		return nil, err
	}
	return user, nil
}

// SetAdmin grants or revokes the admin flag
func (u *UsersLogic) SetAdmin(ctx context.Context, user *models.User, admin bool) error {
	user.Admin = admin
	return u.l.store.UpdateUser(ctx, user)
}

// AddGroup creates a group, or returns the existing one with that name
func (u *UsersLogic) AddGroup(ctx context.Context, name, fasName string) (*models.Group, error) {
	group, err := u.l.store.GetGroupByName(ctx, name)
	if err == nil {
		return group, nil
	}
	if !IsCode(err, CodeNotFound) {
		return nil, err
	}
	if fasName == "" {
		fasName = name
	}
	group = &models.Group{Name: name, FASName: fasName}
	if err := u.l.store.CreateGroup(ctx, group); err != nil {
		return nil, err
	}
	return group, nil
}

// JoinGroup makes user a member of group
func (u *UsersLogic) JoinGroup(ctx context.Context, user *models.User, group *models.Group) error {
	if user.InGroup(group.ID) {
		return nil
	}
	if err := u.l.store.AddGroupMember(ctx, user.ID, group.ID); err != nil {
		return err
	}
	user.GroupIDs = append(user.GroupIDs, group.ID)
	return nil
}

// IsAuthError reports whether err means the credentials were rejected
func IsAuthError(err error) bool {
	return errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrTokenExpired)
}
