package store

import (
	"context"
	"strings"
)

// schemaTemplate is shared by both databases; %ID% and %BLOB% are
// replaced with the dialect's column types
const schemaTemplate = `
CREATE TABLE IF NOT EXISTS users (
	id %ID%,
	username TEXT NOT NULL UNIQUE,
	email TEXT NOT NULL DEFAULT '',
	admin BOOLEAN NOT NULL DEFAULT FALSE,
	api_login TEXT NOT NULL DEFAULT '',
	api_token_hash TEXT NOT NULL DEFAULT '',
	api_token_expiration BIGINT
);

CREATE TABLE IF NOT EXISTS user_groups (
	id %ID%,
	name TEXT NOT NULL UNIQUE,
	fas_name TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS group_members (
	user_id BIGINT NOT NULL,
	group_id BIGINT NOT NULL,
	PRIMARY KEY (user_id, group_id)
);

CREATE TABLE IF NOT EXISTS mock_chroots (
	id %ID%,
	os_release TEXT NOT NULL,
	os_version TEXT NOT NULL,
	arch TEXT NOT NULL,
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	UNIQUE (os_release, os_version, arch)
);

CREATE TABLE IF NOT EXISTS coprs (
	id %ID%,
	name TEXT NOT NULL,
	user_id BIGINT NOT NULL,
	group_id BIGINT,
	description TEXT NOT NULL DEFAULT '',
	instructions TEXT NOT NULL DEFAULT '',
	repos TEXT NOT NULL DEFAULT '',
	created_on BIGINT NOT NULL,
	deleted BOOLEAN NOT NULL DEFAULT FALSE,
	playground BOOLEAN NOT NULL DEFAULT FALSE,
	persistent BOOLEAN NOT NULL DEFAULT FALSE,
	auto_prune BOOLEAN NOT NULL DEFAULT TRUE,
	auto_createrepo BOOLEAN NOT NULL DEFAULT TRUE,
	unlisted_on_hp BOOLEAN NOT NULL DEFAULT FALSE,
	build_enable_net BOOLEAN NOT NULL DEFAULT TRUE,
	module_name VARCHAR(100),
	module_stream VARCHAR(100)
);

CREATE TABLE IF NOT EXISTS copr_chroots (
	copr_id BIGINT NOT NULL,
	mock_chroot_id BIGINT NOT NULL,
	buildroot_pkgs TEXT NOT NULL DEFAULT '',
	repos TEXT NOT NULL DEFAULT '',
	comps_name TEXT NOT NULL DEFAULT '',
	comps_zlib %BLOB%,
	module_md_name TEXT NOT NULL DEFAULT '',
	module_md_zlib %BLOB%,
	delete_after BIGINT,
	delete_notify BIGINT,
	PRIMARY KEY (copr_id, mock_chroot_id)
);

CREATE TABLE IF NOT EXISTS copr_permissions (
	copr_id BIGINT NOT NULL,
	user_id BIGINT NOT NULL,
	copr_builder SMALLINT NOT NULL DEFAULT 0,
	copr_admin SMALLINT NOT NULL DEFAULT 0,
	PRIMARY KEY (copr_id, user_id)
);

CREATE TABLE IF NOT EXISTS builds (
	id %ID%,
	copr_id BIGINT NOT NULL,
	user_id BIGINT NOT NULL,
	pkgs TEXT NOT NULL,
	repos TEXT NOT NULL DEFAULT '',
	timeout INTEGER NOT NULL,
	submitted_on BIGINT NOT NULL,
	package_name TEXT NOT NULL DEFAULT '',
	enable_net BOOLEAN NOT NULL DEFAULT TRUE,
	canceled BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS build_chroots (
	build_id BIGINT NOT NULL,
	mock_chroot_id BIGINT NOT NULL,
	status INTEGER NOT NULL,
	started_on BIGINT,
	ended_on BIGINT,
	git_hash TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (build_id, mock_chroot_id)
);

CREATE TABLE IF NOT EXISTS actions (
	id %ID%,
	action_type INTEGER NOT NULL,
	object_type TEXT NOT NULL DEFAULT '',
	object_id BIGINT NOT NULL DEFAULT 0,
	old_value TEXT NOT NULL DEFAULT '',
	new_value TEXT NOT NULL DEFAULT '',
	data TEXT NOT NULL DEFAULT '',
	result INTEGER NOT NULL DEFAULT 0,
	message TEXT NOT NULL DEFAULT '',
	created_on BIGINT NOT NULL,
	ended_on BIGINT
);

CREATE INDEX IF NOT EXISTS idx_coprs_user ON coprs(user_id, name);
CREATE INDEX IF NOT EXISTS idx_coprs_group ON coprs(group_id, name);
CREATE INDEX IF NOT EXISTS idx_builds_copr ON builds(copr_id);
CREATE INDEX IF NOT EXISTS idx_build_chroots_status ON build_chroots(status);
CREATE INDEX IF NOT EXISTS idx_actions_result ON actions(result, created_on);
CREATE INDEX IF NOT EXISTS idx_copr_chroots_delete_after ON copr_chroots(delete_after);
`

func (s *sqlStore) initSchema(ctx context.Context) error {
	var r *strings.Replacer
	switch s.dialect {
	case dialectPostgres:
		r = strings.NewReplacer("%ID%", "BIGSERIAL PRIMARY KEY", "%BLOB%", "BYTEA")
	default:
		r = strings.NewReplacer("%ID%", "INTEGER PRIMARY KEY AUTOINCREMENT", "%BLOB%", "BLOB")
	}

	// lib/pq accepts multiple statements in one Exec only without
	// parameters, mattn/go-sqlite3 always does
	_, err := s.db.ExecContext(ctx, r.Replace(schemaTemplate))
	return err
}
