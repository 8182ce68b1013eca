package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/copr-farm/copr/pkg/models"
)

const userColumns = `id, username, email, admin, api_login, api_token_hash, api_token_expiration`

func scanUser(row interface{ Scan(...interface{}) error }) (*models.User, error) {
	var u models.User
	var expiration sql.NullInt64
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.Admin, &u.APILogin, &u.APITokenHash, &expiration); err != nil {
		return nil, err
	}
	u.APITokenExpiration = timePtr(expiration)
	return &u, nil
}

// CreateUser inserts a user and its group memberships
func (s *sqlStore) CreateUser(ctx context.Context, user *models.User) error {
	id, err := s.insert(ctx, `
		INSERT INTO users (username, email, admin, api_login, api_token_hash, api_token_expiration)
		VALUES (?, ?, ?, ?, ?, ?)`,
		user.Username, user.Email, user.Admin, user.APILogin, user.APITokenHash,
		nullTime(user.APITokenExpiration))
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	user.ID = id

	for _, gid := range user.GroupIDs {
		if err := s.AddGroupMember(ctx, id, gid); err != nil {
			return err
		}
	}
	return nil
}

func (s *sqlStore) getUserWhere(ctx context.Context, what, cond string, arg interface{}) (*models.User, error) {
	u, err := scanUser(s.queryRow(ctx, "SELECT "+userColumns+" FROM users WHERE "+cond, arg))
	if err != nil {
		return nil, notFound(what, err)
	}
	if u.GroupIDs, err = s.userGroupIDs(ctx, u.ID); err != nil {
		return nil, err
	}
	return u, nil
}

// GetUser retrieves a user by ID
func (s *sqlStore) GetUser(ctx context.Context, id int64) (*models.User, error) {
	return s.getUserWhere(ctx, "user", "id = ?", id)
}

// GetUserByUsername retrieves a user by username
func (s *sqlStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.getUserWhere(ctx, "user", "username = ?", username)
}

// GetUserByAPILogin retrieves a user by the login part of its API credentials
func (s *sqlStore) GetUserByAPILogin(ctx context.Context, login string) (*models.User, error) {
	if login == "" {
		return nil, fmt.Errorf("user %w", ErrNotFound)
	}
	return s.getUserWhere(ctx, "user", "api_login = ?", login)
}

// UpdateUser saves the mutable user fields
func (s *sqlStore) UpdateUser(ctx context.Context, user *models.User) error {
	return s.execOne(ctx, "user", `
		UPDATE users SET email = ?, admin = ?, api_login = ?, api_token_hash = ?, api_token_expiration = ?
		WHERE id = ?`,
		user.Email, user.Admin, user.APILogin, user.APITokenHash, nullTime(user.APITokenExpiration), user.ID)
}

// ListUsers returns all users ordered by username
func (s *sqlStore) ListUsers(ctx context.Context) ([]*models.User, error) {
	rows, err := s.query(ctx, "SELECT "+userColumns+" FROM users ORDER BY username")
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	var users []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		users = append(users, u)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, u := range users {
		if u.GroupIDs, err = s.userGroupIDs(ctx, u.ID); err != nil {
			return nil, err
		}
	}
	return users, nil
}

func (s *sqlStore) userGroupIDs(ctx context.Context, userID int64) ([]int64, error) {
	rows, err := s.query(ctx, "SELECT group_id FROM group_members WHERE user_id = ? ORDER BY group_id", userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list group memberships: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CreateGroup inserts a group
func (s *sqlStore) CreateGroup(ctx context.Context, group *models.Group) error {
	id, err := s.insert(ctx, "INSERT INTO user_groups (name, fas_name) VALUES (?, ?)", group.Name, group.FASName)
	if err != nil {
		return fmt.Errorf("failed to create group: %w", err)
	}
	group.ID = id
	return nil
}

// GetGroup retrieves a group by ID
func (s *sqlStore) GetGroup(ctx context.Context, id int64) (*models.Group, error) {
	var g models.Group
	err := s.queryRow(ctx, "SELECT id, name, fas_name FROM user_groups WHERE id = ?", id).
		Scan(&g.ID, &g.Name, &g.FASName)
	if err != nil {
		return nil, notFound("group", err)
	}
	return &g, nil
}

// GetGroupByName retrieves a group by its name
func (s *sqlStore) GetGroupByName(ctx context.Context, name string) (*models.Group, error) {
	var g models.Group
	err := s.queryRow(ctx, "SELECT id, name, fas_name FROM user_groups WHERE name = ?", name).
		Scan(&g.ID, &g.Name, &g.FASName)
	if err != nil {
		return nil, notFound("group", err)
	}
	return &g, nil
}

// AddGroupMember records that a user belongs to a group
func (s *sqlStore) AddGroupMember(ctx context.Context, userID, groupID int64) error {
	_, err := s.exec(ctx, `
		INSERT INTO group_members (user_id, group_id) VALUES (?, ?)
		ON CONFLICT (user_id, group_id) DO NOTHING`, userID, groupID)
	if err != nil {
		return fmt.Errorf("failed to add group member: %w", err)
	}
	return nil
}

const mockChrootColumns = `id, os_release, os_version, arch, is_active`

func scanMockChroot(row interface{ Scan(...interface{}) error }) (*models.MockChroot, error) {
	var m models.MockChroot
	if err := row.Scan(&m.ID, &m.OSRelease, &m.OSVersion, &m.Arch, &m.IsActive); err != nil {
		return nil, err
	}
	return &m, nil
}

// CreateMockChroot inserts a mock chroot
func (s *sqlStore) CreateMockChroot(ctx context.Context, mc *models.MockChroot) error {
	id, err := s.insert(ctx, `
		INSERT INTO mock_chroots (os_release, os_version, arch, is_active) VALUES (?, ?, ?, ?)`,
		mc.OSRelease, mc.OSVersion, mc.Arch, mc.IsActive)
	if err != nil {
		return fmt.Errorf("failed to create mock chroot: %w", err)
	}
	mc.ID = id
	return nil
}

// GetMockChroot retrieves a mock chroot by ID
func (s *sqlStore) GetMockChroot(ctx context.Context, id int64) (*models.MockChroot, error) {
	m, err := scanMockChroot(s.queryRow(ctx, "SELECT "+mockChrootColumns+" FROM mock_chroots WHERE id = ?", id))
	if err != nil {
		return nil, notFound("mock chroot", err)
	}
	return m, nil
}

// FindMockChroot retrieves a mock chroot by its name parts
func (s *sqlStore) FindMockChroot(ctx context.Context, osRelease, osVersion, arch string) (*models.MockChroot, error) {
	m, err := scanMockChroot(s.queryRow(ctx, "SELECT "+mockChrootColumns+`
		FROM mock_chroots WHERE os_release = ? AND os_version = ? AND arch = ?`,
		osRelease, osVersion, arch))
	if err != nil {
		return nil, notFound("mock chroot", err)
	}
	return m, nil
}

// ListMockChroots returns mock chroots ordered by name
func (s *sqlStore) ListMockChroots(ctx context.Context, activeOnly bool) ([]*models.MockChroot, error) {
	query := "SELECT " + mockChrootColumns + " FROM mock_chroots"
	var args []interface{}
	if activeOnly {
		query += " WHERE is_active = ?"
		args = append(args, true)
	}
	query += " ORDER BY os_release, os_version, arch"

	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list mock chroots: %w", err)
	}
	defer rows.Close()

	var out []*models.MockChroot
	for rows.Next() {
		m, err := scanMockChroot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// UpdateMockChroot saves the active flag
func (s *sqlStore) UpdateMockChroot(ctx context.Context, mc *models.MockChroot) error {
	return s.execOne(ctx, "mock chroot", "UPDATE mock_chroots SET is_active = ? WHERE id = ?", mc.IsActive, mc.ID)
}

// DeleteMockChroot removes a mock chroot and its project chroots
func (s *sqlStore) DeleteMockChroot(ctx context.Context, id int64) error {
	if _, err := s.exec(ctx, "DELETE FROM copr_chroots WHERE mock_chroot_id = ?", id); err != nil {
		return fmt.Errorf("failed to delete project chroots: %w", err)
	}
	return s.execOne(ctx, "mock chroot", "DELETE FROM mock_chroots WHERE id = ?", id)
}
