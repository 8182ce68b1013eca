package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/copr-farm/copr/pkg/models"
)

const coprSelect = `
	SELECT c.id, c.name, c.user_id, c.group_id, c.description, c.instructions, c.repos,
	       c.created_on, c.deleted, c.playground, c.persistent, c.auto_prune, c.auto_createrepo,
	       c.unlisted_on_hp, c.build_enable_net, c.module_name, c.module_stream,
	       u.username, COALESCE(g.name, '')
	FROM coprs c
	JOIN users u ON u.id = c.user_id
	LEFT JOIN user_groups g ON g.id = c.group_id`

func scanCopr(row interface{ Scan(...interface{}) error }) (*models.Copr, error) {
	var c models.Copr
	var groupID sql.NullInt64
	var moduleName, moduleStream sql.NullString
	err := row.Scan(&c.ID, &c.Name, &c.UserID, &groupID, &c.Description, &c.Instructions, &c.Repos,
		&c.CreatedOn, &c.Deleted, &c.Playground, &c.Persistent, &c.AutoPrune, &c.AutoCreaterepo,
		&c.UnlistedOnHP, &c.BuildEnableNet, &moduleName, &moduleStream,
		&c.OwnerUsername, &c.GroupName)
	if err != nil {
		return nil, err
	}
	c.GroupID = int64Ptr(groupID)
	c.ModuleName = stringPtr(moduleName)
	c.ModuleStream = stringPtr(moduleStream)
	return &c, nil
}

// CreateCopr inserts a project
func (s *sqlStore) CreateCopr(ctx context.Context, copr *models.Copr) error {
	if copr.CreatedOn == 0 {
		copr.CreatedOn = time.Now().Unix()
	}
	id, err := s.insert(ctx, `
		INSERT INTO coprs (name, user_id, group_id, description, instructions, repos, created_on,
		                   deleted, playground, persistent, auto_prune, auto_createrepo,
		                   unlisted_on_hp, build_enable_net, module_name, module_stream)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		copr.Name, copr.UserID, nullInt64(copr.GroupID), copr.Description, copr.Instructions,
		copr.Repos, copr.CreatedOn, copr.Deleted, copr.Playground, copr.Persistent, copr.AutoPrune,
		copr.AutoCreaterepo, copr.UnlistedOnHP, copr.BuildEnableNet,
		nullString(copr.ModuleName), nullString(copr.ModuleStream))
	if err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}
	copr.ID = id
	return nil
}

// GetCopr retrieves a project by ID together with its chroots
func (s *sqlStore) GetCopr(ctx context.Context, id int64) (*models.Copr, error) {
	c, err := scanCopr(s.queryRow(ctx, coprSelect+" WHERE c.id = ?", id))
	if err != nil {
		return nil, notFound("project", err)
	}
	if c.Chroots, err = s.ListCoprChroots(ctx, c.ID); err != nil {
		return nil, err
	}
	return c, nil
}

// UpdateCopr saves all mutable project fields
func (s *sqlStore) UpdateCopr(ctx context.Context, copr *models.Copr) error {
	return s.execOne(ctx, "project", `
		UPDATE coprs SET description = ?, instructions = ?, repos = ?, deleted = ?, playground = ?,
		       persistent = ?, auto_prune = ?, auto_createrepo = ?, unlisted_on_hp = ?,
		       build_enable_net = ?, module_name = ?, module_stream = ?
		WHERE id = ?`,
		copr.Description, copr.Instructions, copr.Repos, copr.Deleted, copr.Playground,
		copr.Persistent, copr.AutoPrune, copr.AutoCreaterepo, copr.UnlistedOnHP,
		copr.BuildEnableNet, nullString(copr.ModuleName), nullString(copr.ModuleStream), copr.ID)
}

func coprConditions(f CoprFilter) ([]string, []interface{}) {
	var conds []string
	var args []interface{}

	if !f.IncludeDeleted {
		conds = append(conds, "c.deleted = ?")
		args = append(args, false)
	}
	if !f.IncludeUnlisted {
		conds = append(conds, "c.unlisted_on_hp = ?")
		args = append(args, false)
	}
	if f.UserID != nil {
		conds = append(conds, "c.user_id = ?")
		args = append(args, *f.UserID)
	}
	if f.GroupID != nil {
		conds = append(conds, "c.group_id = ?")
		args = append(args, *f.GroupID)
	}
	if f.WithoutGroup {
		conds = append(conds, "c.group_id IS NULL")
	}
	if f.Name != "" {
		conds = append(conds, "c.name = ?")
		args = append(args, f.Name)
	}
	if f.Playground != nil {
		conds = append(conds, "c.playground = ?")
		args = append(args, *f.Playground)
	}
	if f.IDs != nil {
		if len(f.IDs) == 0 {
			conds = append(conds, "1 = 0")
		} else {
			var in string
			in, args = inClause("c.id", f.IDs, args)
			conds = append(conds, in)
		}
	}
	return conds, args
}

// ListCoprs returns projects matching the filter, ordered by id
func (s *sqlStore) ListCoprs(ctx context.Context, filter CoprFilter) ([]*models.Copr, error) {
	conds, args := coprConditions(filter)
	order := " ORDER BY c.id ASC"
	if filter.Descending {
		order = " ORDER BY c.id DESC"
	}
	return s.listCoprs(ctx, coprSelect+whereClause(conds)+order+limitClause(filter.Limit, filter.Offset), args...)
}

// CountCoprs counts projects matching the filter, ignoring limit and offset
func (s *sqlStore) CountCoprs(ctx context.Context, filter CoprFilter) (int, error) {
	conds, args := coprConditions(filter)
	var n int
	if err := s.queryRow(ctx, "SELECT COUNT(*) FROM coprs c"+whereClause(conds), args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count projects: %w", err)
	}
	return n, nil
}

// SearchCoprs runs a case-insensitive substring search over non-deleted projects
func (s *sqlStore) SearchCoprs(ctx context.Context, q CoprSearch) ([]*models.Copr, error) {
	conds := []string{"c.deleted = ?"}
	args := []interface{}{false}
	var order string

	switch {
	case q.Owner != "" && q.Group:
		conds = append(conds, "LOWER(g.name) LIKE ?"+likeEscape, "LOWER(c.name) LIKE ?"+likeEscape)
		args = append(args, likePattern(q.Owner), likePattern(q.Name))
		order = " ORDER BY LENGTH(g.name) + LENGTH(c.name) ASC, c.id ASC"
	case q.Owner != "":
		conds = append(conds, "c.group_id IS NULL", "LOWER(u.username) LIKE ?"+likeEscape, "LOWER(c.name) LIKE ?"+likeEscape)
		args = append(args, likePattern(q.Owner), likePattern(q.Name))
		order = " ORDER BY LENGTH(u.username) + LENGTH(c.name) ASC, c.id ASC"
	default:
		conds = append(conds, "(LOWER(c.name) LIKE ?"+likeEscape+" OR LOWER(c.description) LIKE ?"+likeEscape+")")
		args = append(args, likePattern(q.Text), likePattern(q.Text))
		order = " ORDER BY c.id DESC"
	}

	return s.listCoprs(ctx, coprSelect+whereClause(conds)+order+limitClause(q.Limit, 0), args...)
}

const likeEscape = ` ESCAPE '\'`

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePattern matches s anywhere, with LIKE wildcards in s taken literally
func likePattern(s string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(s)) + "%"
}

func (s *sqlStore) listCoprs(ctx context.Context, query string, args ...interface{}) ([]*models.Copr, error) {
	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}

	var coprs []*models.Copr
	for rows.Next() {
		c, err := scanCopr(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		coprs = append(coprs, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, c := range coprs {
		if c.Chroots, err = s.ListCoprChroots(ctx, c.ID); err != nil {
			return nil, err
		}
	}
	return coprs, nil
}

const coprChrootSelect = `
	SELECT cc.copr_id, cc.mock_chroot_id, cc.buildroot_pkgs, cc.repos, cc.comps_name, cc.comps_zlib,
	       cc.module_md_name, cc.module_md_zlib, cc.delete_after, cc.delete_notify,
	       m.id, m.os_release, m.os_version, m.arch, m.is_active
	FROM copr_chroots cc
	JOIN mock_chroots m ON m.id = cc.mock_chroot_id`

func scanCoprChroot(row interface{ Scan(...interface{}) error }) (*models.CoprChroot, error) {
	var cc models.CoprChroot
	var m models.MockChroot
	var deleteAfter, deleteNotify sql.NullInt64
	err := row.Scan(&cc.CoprID, &cc.MockChrootID, &cc.BuildrootPkgs, &cc.Repos, &cc.CompsName, &cc.CompsZlib,
		&cc.ModuleMDName, &cc.ModuleMDZlib, &deleteAfter, &deleteNotify,
		&m.ID, &m.OSRelease, &m.OSVersion, &m.Arch, &m.IsActive)
	if err != nil {
		return nil, err
	}
	cc.DeleteAfter = timePtr(deleteAfter)
	cc.DeleteNotify = timePtr(deleteNotify)
	cc.MockChroot = &m
	return &cc, nil
}

func (s *sqlStore) listCoprChroots(ctx context.Context, query string, args ...interface{}) ([]*models.CoprChroot, error) {
	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list project chroots: %w", err)
	}
	defer rows.Close()

	var out []*models.CoprChroot
	for rows.Next() {
		cc, err := scanCoprChroot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cc)
	}
	return out, rows.Err()
}

// CreateCoprChroot enables a mock chroot in a project
func (s *sqlStore) CreateCoprChroot(ctx context.Context, cc *models.CoprChroot) error {
	_, err := s.exec(ctx, `
		INSERT INTO copr_chroots (copr_id, mock_chroot_id, buildroot_pkgs, repos, comps_name, comps_zlib,
		                          module_md_name, module_md_zlib, delete_after, delete_notify)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cc.CoprID, cc.MockChrootID, cc.BuildrootPkgs, cc.Repos, cc.CompsName, cc.CompsZlib,
		cc.ModuleMDName, cc.ModuleMDZlib, nullTime(cc.DeleteAfter), nullTime(cc.DeleteNotify))
	if err != nil {
		return fmt.Errorf("failed to create project chroot: %w", err)
	}
	return nil
}

// GetCoprChroot retrieves one project chroot
func (s *sqlStore) GetCoprChroot(ctx context.Context, coprID, mockChrootID int64) (*models.CoprChroot, error) {
	cc, err := scanCoprChroot(s.queryRow(ctx, coprChrootSelect+
		" WHERE cc.copr_id = ? AND cc.mock_chroot_id = ?", coprID, mockChrootID))
	if err != nil {
		return nil, notFound("project chroot", err)
	}
	return cc, nil
}

// ListCoprChroots returns the chroots of a project ordered by name
func (s *sqlStore) ListCoprChroots(ctx context.Context, coprID int64) ([]*models.CoprChroot, error) {
	return s.listCoprChroots(ctx, coprChrootSelect+
		" WHERE cc.copr_id = ? ORDER BY m.os_release, m.os_version, m.arch", coprID)
}

// ListCoprChrootsByMockChroot returns every project chroot using a mock chroot
func (s *sqlStore) ListCoprChrootsByMockChroot(ctx context.Context, mockChrootID int64) ([]*models.CoprChroot, error) {
	return s.listCoprChroots(ctx, coprChrootSelect+
		" WHERE cc.mock_chroot_id = ? ORDER BY cc.copr_id", mockChrootID)
}

// ListOutdatedCoprChroots returns project chroots whose preservation period ended
func (s *sqlStore) ListOutdatedCoprChroots(ctx context.Context, now time.Time) ([]*models.CoprChroot, error) {
	return s.listCoprChroots(ctx, coprChrootSelect+`
		JOIN coprs c ON c.id = cc.copr_id
		WHERE cc.delete_after IS NOT NULL AND cc.delete_after < ? AND c.deleted = ?
		ORDER BY cc.copr_id, cc.mock_chroot_id`, now.Unix(), false)
}

// UpdateCoprChroot saves the per-project chroot settings
func (s *sqlStore) UpdateCoprChroot(ctx context.Context, cc *models.CoprChroot) error {
	return s.execOne(ctx, "project chroot", `
		UPDATE copr_chroots SET buildroot_pkgs = ?, repos = ?, comps_name = ?, comps_zlib = ?,
		       module_md_name = ?, module_md_zlib = ?, delete_after = ?, delete_notify = ?
		WHERE copr_id = ? AND mock_chroot_id = ?`,
		cc.BuildrootPkgs, cc.Repos, cc.CompsName, cc.CompsZlib, cc.ModuleMDName, cc.ModuleMDZlib,
		nullTime(cc.DeleteAfter), nullTime(cc.DeleteNotify), cc.CoprID, cc.MockChrootID)
}

// DeleteCoprChroot disables a mock chroot in a project
func (s *sqlStore) DeleteCoprChroot(ctx context.Context, coprID, mockChrootID int64) error {
	return s.execOne(ctx, "project chroot",
		"DELETE FROM copr_chroots WHERE copr_id = ? AND mock_chroot_id = ?", coprID, mockChrootID)
}

const permissionSelect = `
	SELECT p.copr_id, p.user_id, u.username, p.copr_builder, p.copr_admin
	FROM copr_permissions p
	JOIN users u ON u.id = p.user_id`

func scanPermission(row interface{ Scan(...interface{}) error }) (*models.CoprPermission, error) {
	var p models.CoprPermission
	if err := row.Scan(&p.CoprID, &p.UserID, &p.Username, &p.CoprBuilder, &p.CoprAdmin); err != nil {
		return nil, err
	}
	return &p, nil
}

// GetPermission retrieves the permission a user holds in a project
func (s *sqlStore) GetPermission(ctx context.Context, coprID, userID int64) (*models.CoprPermission, error) {
	p, err := scanPermission(s.queryRow(ctx, permissionSelect+
		" WHERE p.copr_id = ? AND p.user_id = ?", coprID, userID))
	if err != nil {
		return nil, notFound("permission", err)
	}
	return p, nil
}

// ListPermissions returns all permissions of a project
func (s *sqlStore) ListPermissions(ctx context.Context, coprID int64) ([]*models.CoprPermission, error) {
	return s.listPermissions(ctx, permissionSelect+" WHERE p.copr_id = ? ORDER BY u.username", coprID)
}

// ListUserPermissions returns all permissions a user holds
func (s *sqlStore) ListUserPermissions(ctx context.Context, userID int64) ([]*models.CoprPermission, error) {
	return s.listPermissions(ctx, permissionSelect+" WHERE p.user_id = ? ORDER BY p.copr_id", userID)
}

func (s *sqlStore) listPermissions(ctx context.Context, query string, args ...interface{}) ([]*models.CoprPermission, error) {
	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list permissions: %w", err)
	}
	defer rows.Close()

	var out []*models.CoprPermission
	for rows.Next() {
		p, err := scanPermission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SavePermission inserts or replaces a permission
func (s *sqlStore) SavePermission(ctx context.Context, perm *models.CoprPermission) error {
	_, err := s.exec(ctx, `
		INSERT INTO copr_permissions (copr_id, user_id, copr_builder, copr_admin) VALUES (?, ?, ?, ?)
		ON CONFLICT (copr_id, user_id) DO UPDATE
		SET copr_builder = excluded.copr_builder, copr_admin = excluded.copr_admin`,
		perm.CoprID, perm.UserID, perm.CoprBuilder, perm.CoprAdmin)
	if err != nil {
		return fmt.Errorf("failed to save permission: %w", err)
	}
	return nil
}

// DeletePermission removes a permission
func (s *sqlStore) DeletePermission(ctx context.Context, coprID, userID int64) error {
	return s.execOne(ctx, "permission",
		"DELETE FROM copr_permissions WHERE copr_id = ? AND user_id = ?", coprID, userID)
}
