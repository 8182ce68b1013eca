// Package logic holds the project, build and action operations together with
// the authorization rules guarding them. Every operation that writes more
// than one row runs in a single store transaction.
package logic

import (
	"context"
	"time"

	"github.com/copr-farm/copr/pkg/models"
	"github.com/copr-farm/copr/pkg/store"
)

// Config tunes the logic layer
type Config struct {
	// PerPage is the page size of project listings
	PerPage int
	// ChrootPreservation is how long results of a deactivated chroot are kept
	ChrootPreservation time.Duration
	// DistGitURL is the base URL of the dist-git server builds are imported to
	DistGitURL string
	// MaxBuildTimeout caps build timeouts, in seconds
	MaxBuildTimeout int
	// Now returns the current time; defaults to time.Now
	Now func() time.Time
}

// DefaultConfig returns the configuration used when none is given
func DefaultConfig() Config {
	return Config{
		PerPage:            10,
		ChrootPreservation: 180 * 24 * time.Hour,
		MaxBuildTimeout:    models.MaxBuildTimeout,
		Now:                time.Now,
	}
}

// Logic bundles all operation groups over one store
type Logic struct {
	store store.Store
	cfg   Config

	Actions     *ActionsLogic
	Coprs       *CoprsLogic
	Permissions *PermissionsLogic
	Chroots     *CoprChrootsLogic
	MockChroots *MockChrootsLogic
	Builds      *BuildsLogic
	Users       *UsersLogic
}

// New creates the logic layer over s
func New(s store.Store, cfg Config) *Logic {
	def := DefaultConfig()
	if cfg.PerPage <= 0 {
		cfg.PerPage = def.PerPage
	}
	if cfg.ChrootPreservation <= 0 {
		cfg.ChrootPreservation = def.ChrootPreservation
	}
	if cfg.MaxBuildTimeout <= 0 {
		cfg.MaxBuildTimeout = def.MaxBuildTimeout
	}
	if cfg.Now == nil {
		cfg.Now = def.Now
	}

	l := &Logic{store: s, cfg: cfg}
	l.Actions = &ActionsLogic{l: l}
	l.Coprs = &CoprsLogic{l: l}
	l.Permissions = &PermissionsLogic{l: l}
	l.Chroots = &CoprChrootsLogic{l: l}
	l.MockChroots = &MockChrootsLogic{l: l}
	l.Builds = &BuildsLogic{l: l}
	l.Users = &UsersLogic{l: l}
	return l
}

// Store returns the underlying store
func (l *Logic) Store() store.Store {
	return l.store
}

// Config returns the effective configuration
func (l *Logic) Config() Config {
	return l.cfg
}

// Tx runs fn with a Logic bound to a single transaction
func (l *Logic) Tx(ctx context.Context, fn func(*Logic) error) error {
	return l.store.Tx(ctx, func(tx store.Store) error {
		return fn(New(tx, l.cfg))
	})
}

func (l *Logic) now() time.Time {
	return l.cfg.Now()
}

// permissionOf returns the permission user holds in copr, nil when none
func (l *Logic) permissionOf(ctx context.Context, user *models.User, copr *models.Copr) (*models.CoprPermission, error) {
	if user == nil || copr == nil {
		return nil, nil
	}
	perm, err := l.store.GetPermission(ctx, copr.ID, user.ID)
	if err != nil {
		if IsCode(err, CodeNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return perm, nil
}
