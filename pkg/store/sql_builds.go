package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/copr-farm/copr/pkg/models"
)

const buildColumns = `id, copr_id, user_id, pkgs, repos, timeout, submitted_on, package_name, enable_net, canceled`

func scanBuild(row interface{ Scan(...interface{}) error }) (*models.Build, error) {
	var b models.Build
	err := row.Scan(&b.ID, &b.CoprID, &b.UserID, &b.Pkgs, &b.Repos, &b.Timeout, &b.SubmittedOn,
		&b.PackageName, &b.EnableNet, &b.Canceled)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

const buildChrootSelect = `
	SELECT bc.build_id, bc.mock_chroot_id, bc.status, bc.started_on, bc.ended_on, bc.git_hash,
	       m.id, m.os_release, m.os_version, m.arch, m.is_active
	FROM build_chroots bc
	JOIN mock_chroots m ON m.id = bc.mock_chroot_id`

func scanBuildChroot(row interface{ Scan(...interface{}) error }) (*models.BuildChroot, error) {
	var bc models.BuildChroot
	var m models.MockChroot
	var startedOn, endedOn sql.NullInt64
	err := row.Scan(&bc.BuildID, &bc.MockChrootID, &bc.Status, &startedOn, &endedOn, &bc.GitHash,
		&m.ID, &m.OSRelease, &m.OSVersion, &m.Arch, &m.IsActive)
	if err != nil {
		return nil, err
	}
	bc.StartedOn = int64Ptr(startedOn)
	bc.EndedOn = int64Ptr(endedOn)
	bc.MockChroot = &m
	return &bc, nil
}

// CreateBuild inserts a build together with its chroots
func (s *sqlStore) CreateBuild(ctx context.Context, build *models.Build) error {
	if build.SubmittedOn == 0 {
		build.SubmittedOn = time.Now().Unix()
	}
	id, err := s.insert(ctx, `
		INSERT INTO builds (copr_id, user_id, pkgs, repos, timeout, submitted_on, package_name, enable_net, canceled)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		build.CoprID, build.UserID, build.Pkgs, build.Repos, build.Timeout, build.SubmittedOn,
		build.PackageName, build.EnableNet, build.Canceled)
	if err != nil {
		return fmt.Errorf("failed to create build: %w", err)
	}
	build.ID = id

	for _, bc := range build.Chroots {
		bc.BuildID = id
		if err := s.CreateBuildChroot(ctx, bc); err != nil {
			return err
		}
	}
	return nil
}

// GetBuild retrieves a build by ID together with its chroots
func (s *sqlStore) GetBuild(ctx context.Context, id int64) (*models.Build, error) {
	b, err := scanBuild(s.queryRow(ctx, "SELECT "+buildColumns+" FROM builds WHERE id = ?", id))
	if err != nil {
		return nil, notFound("build", err)
	}
	if b.Chroots, err = s.listBuildChroots(ctx, buildChrootSelect+
		" WHERE bc.build_id = ? ORDER BY m.os_release, m.os_version, m.arch", id); err != nil {
		return nil, err
	}
	return b, nil
}

// UpdateBuild saves the mutable build fields
func (s *sqlStore) UpdateBuild(ctx context.Context, build *models.Build) error {
	return s.execOne(ctx, "build", `
		UPDATE builds SET pkgs = ?, repos = ?, timeout = ?, package_name = ?, enable_net = ?, canceled = ?
		WHERE id = ?`,
		build.Pkgs, build.Repos, build.Timeout, build.PackageName, build.EnableNet, build.Canceled, build.ID)
}

// ListBuilds returns builds matching the filter, newest first
func (s *sqlStore) ListBuilds(ctx context.Context, filter BuildFilter) ([]*models.Build, error) {
	var conds []string
	var args []interface{}
	if filter.CoprID != nil {
		conds = append(conds, "copr_id = ?")
		args = append(args, *filter.CoprID)
	}
	if filter.UserID != nil {
		conds = append(conds, "user_id = ?")
		args = append(args, *filter.UserID)
	}

	rows, err := s.query(ctx, "SELECT "+buildColumns+" FROM builds"+whereClause(conds)+
		" ORDER BY id DESC"+limitClause(filter.Limit, filter.Offset), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list builds: %w", err)
	}

	var builds []*models.Build
	for rows.Next() {
		b, err := scanBuild(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		builds = append(builds, b)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, b := range builds {
		if b.Chroots, err = s.listBuildChroots(ctx, buildChrootSelect+
			" WHERE bc.build_id = ? ORDER BY m.os_release, m.os_version, m.arch", b.ID); err != nil {
			return nil, err
		}
	}
	return builds, nil
}

// DeleteBuild removes a build and its chroots
func (s *sqlStore) DeleteBuild(ctx context.Context, id int64) error {
	if _, err := s.exec(ctx, "DELETE FROM build_chroots WHERE build_id = ?", id); err != nil {
		return fmt.Errorf("failed to delete build chroots: %w", err)
	}
	return s.execOne(ctx, "build", "DELETE FROM builds WHERE id = ?", id)
}

// CreateBuildChroot inserts a build chroot
func (s *sqlStore) CreateBuildChroot(ctx context.Context, bc *models.BuildChroot) error {
	_, err := s.exec(ctx, `
		INSERT INTO build_chroots (build_id, mock_chroot_id, status, started_on, ended_on, git_hash)
		VALUES (?, ?, ?, ?, ?, ?)`,
		bc.BuildID, bc.MockChrootID, bc.Status, nullInt64(bc.StartedOn), nullInt64(bc.EndedOn), bc.GitHash)
	if err != nil {
		return fmt.Errorf("failed to create build chroot: %w", err)
	}
	return nil
}

// UpdateBuildChroot saves state and timestamps of a build chroot
func (s *sqlStore) UpdateBuildChroot(ctx context.Context, bc *models.BuildChroot) error {
	return s.execOne(ctx, "build chroot", `
		UPDATE build_chroots SET status = ?, started_on = ?, ended_on = ?, git_hash = ?
		WHERE build_id = ? AND mock_chroot_id = ?`,
		bc.Status, nullInt64(bc.StartedOn), nullInt64(bc.EndedOn), bc.GitHash, bc.BuildID, bc.MockChrootID)
}

// CountBuildChrootsByMockChroot returns how many build chroots were built in a mock chroot
func (s *sqlStore) CountBuildChrootsByMockChroot(ctx context.Context, mockChrootID int64) (int, error) {
	var n int
	if err := s.queryRow(ctx, "SELECT COUNT(*) FROM build_chroots WHERE mock_chroot_id = ?", mockChrootID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count build chroots: %w", err)
	}
	return n, nil
}

// ListBuildChrootsByStatus returns build chroots in a state, oldest build first
func (s *sqlStore) ListBuildChrootsByStatus(ctx context.Context, status models.BuildStatus) ([]*models.BuildChroot, error) {
	return s.listBuildChroots(ctx, buildChrootSelect+
		" WHERE bc.status = ? ORDER BY bc.build_id ASC, m.os_release, m.os_version, m.arch", status)
}

// ListBuildTaskQueue returns build chroots the backend should work on: pending
// ones, and running ones that started before startedBefore and never ended
func (s *sqlStore) ListBuildTaskQueue(ctx context.Context, startedBefore int64) ([]*models.BuildChroot, error) {
	return s.listBuildChroots(ctx, buildChrootSelect+`
		JOIN builds b ON b.id = bc.build_id
		WHERE b.canceled = ?
		  AND (bc.status = ?
		       OR (bc.status = ? AND bc.started_on < ? AND bc.ended_on IS NULL))
		ORDER BY bc.build_id ASC, m.os_release, m.os_version, m.arch`,
		false, models.StatusPending, models.StatusRunning, startedBefore)
}

func (s *sqlStore) listBuildChroots(ctx context.Context, query string, args ...interface{}) ([]*models.BuildChroot, error) {
	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list build chroots: %w", err)
	}
	defer rows.Close()

	var out []*models.BuildChroot
	for rows.Next() {
		bc, err := scanBuildChroot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, bc)
	}
	return out, rows.Err()
}
