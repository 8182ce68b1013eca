package store

import (
	"context"
	"errors"
	"time"

	"github.com/copr-farm/copr/pkg/models"
)

var (
	// ErrNotFound is returned when a requested row does not exist
	ErrNotFound = errors.New("not found")
	// ErrUnsupportedDatabase is returned by NewStore for unknown database types
	ErrUnsupportedDatabase = errors.New("unsupported database type")
)

// Store defines the interface for data persistence
// Both SQLite and PostgreSQL implement this interface
type Store interface {
	// User operations
	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id int64) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUserByAPILogin(ctx context.Context, login string) (*models.User, error)
	UpdateUser(ctx context.Context, user *models.User) error
	ListUsers(ctx context.Context) ([]*models.User, error)

	// Group operations
	CreateGroup(ctx context.Context, group *models.Group) error
	GetGroup(ctx context.Context, id int64) (*models.Group, error)
	GetGroupByName(ctx context.Context, name string) (*models.Group, error)
	AddGroupMember(ctx context.Context, userID, groupID int64) error

	// Mock chroot operations
	CreateMockChroot(ctx context.Context, mc *models.MockChroot) error
	GetMockChroot(ctx context.Context, id int64) (*models.MockChroot, error)
	FindMockChroot(ctx context.Context, osRelease, osVersion, arch string) (*models.MockChroot, error)
	ListMockChroots(ctx context.Context, activeOnly bool) ([]*models.MockChroot, error)
	UpdateMockChroot(ctx context.Context, mc *models.MockChroot) error
	DeleteMockChroot(ctx context.Context, id int64) error

	// Project operations
	CreateCopr(ctx context.Context, copr *models.Copr) error
	GetCopr(ctx context.Context, id int64) (*models.Copr, error)
	UpdateCopr(ctx context.Context, copr *models.Copr) error
	ListCoprs(ctx context.Context, filter CoprFilter) ([]*models.Copr, error)
	CountCoprs(ctx context.Context, filter CoprFilter) (int, error)
	SearchCoprs(ctx context.Context, query CoprSearch) ([]*models.Copr, error)

	// Project chroot operations
	CreateCoprChroot(ctx context.Context, cc *models.CoprChroot) error
	GetCoprChroot(ctx context.Context, coprID, mockChrootID int64) (*models.CoprChroot, error)
	ListCoprChroots(ctx context.Context, coprID int64) ([]*models.CoprChroot, error)
	ListCoprChrootsByMockChroot(ctx context.Context, mockChrootID int64) ([]*models.CoprChroot, error)
	ListOutdatedCoprChroots(ctx context.Context, now time.Time) ([]*models.CoprChroot, error)
	UpdateCoprChroot(ctx context.Context, cc *models.CoprChroot) error
	DeleteCoprChroot(ctx context.Context, coprID, mockChrootID int64) error

	// Permission operations
	GetPermission(ctx context.Context, coprID, userID int64) (*models.CoprPermission, error)
	ListPermissions(ctx context.Context, coprID int64) ([]*models.CoprPermission, error)
	ListUserPermissions(ctx context.Context, userID int64) ([]*models.CoprPermission, error)
	SavePermission(ctx context.Context, perm *models.CoprPermission) error
	DeletePermission(ctx context.Context, coprID, userID int64) error

	// Build operations
	CreateBuild(ctx context.Context, build *models.Build) error
	GetBuild(ctx context.Context, id int64) (*models.Build, error)
	UpdateBuild(ctx context.Context, build *models.Build) error
	ListBuilds(ctx context.Context, filter BuildFilter) ([]*models.Build, error)
	DeleteBuild(ctx context.Context, id int64) error
	CreateBuildChroot(ctx context.Context, bc *models.BuildChroot) error
	UpdateBuildChroot(ctx context.Context, bc *models.BuildChroot) error
	ListBuildChrootsByStatus(ctx context.Context, status models.BuildStatus) ([]*models.BuildChroot, error)
	ListBuildTaskQueue(ctx context.Context, startedBefore int64) ([]*models.BuildChroot, error)
	CountBuildChrootsByMockChroot(ctx context.Context, mockChrootID int64) (int, error)

	// Action operations
	CreateAction(ctx context.Context, action *models.Action) error
	GetAction(ctx context.Context, id int64) (*models.Action, error)
	ListActions(ctx context.Context, filter ActionFilter) ([]*models.Action, error)
	UpdateAction(ctx context.Context, action *models.Action) error
	DeleteActionsEndedBefore(ctx context.Context, before int64) (int64, error)

	// Tx runs fn inside a transaction. The Store passed to fn must be used
	// for every call made within fn. Returning an error rolls back.
	Tx(ctx context.Context, fn func(Store) error) error

	// Lifecycle
	Stats(ctx context.Context) (*models.Stats, error)
	HealthCheck(ctx context.Context) error
	Close() error
}

// CoprFilter narrows ListCoprs and CountCoprs
type CoprFilter struct {
	UserID          *int64
	GroupID         *int64
	WithoutGroup    bool
	Name            string
	IDs             []int64
	Playground      *bool
	IncludeDeleted  bool
	IncludeUnlisted bool
	Descending      bool
	Limit           int
	Offset          int
}

// CoprSearch describes a search query. When Owner is set, Name and Owner
// are matched separately (Group selects group owners); otherwise Text is
// matched against name and description.
type CoprSearch struct {
	Owner string
	Group bool
	Name  string
	Text  string
	Limit int
}

// BuildFilter narrows ListBuilds
type BuildFilter struct {
	CoprID *int64
	UserID *int64
	Limit  int
	Offset int
}

// ActionFilter narrows ListActions; results are ordered by created_on, id
type ActionFilter struct {
	Type        *models.ActionType
	ExcludeType *models.ActionType
	Result      *models.BackendResult
	ObjectType  string
	ObjectID    *int64
	IDs         []int64
	Limit       int
}

// Config holds database configuration
type Config struct {
	Type string // "sqlite" or "postgres"
	DSN  string // Connection string

	// PostgreSQL specific
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	// SQLite specific
	Path string
}

// NewStore creates a store based on configuration
func NewStore(config Config) (Store, error) {
	switch config.Type {
	case "postgres", "postgresql":
		pg, err := NewPostgreSQLStore(config)
		if err != nil {
			return nil, err
		}
		return pg, nil
	case "sqlite", "":
		path := config.Path
		if path == "" {
			path = config.DSN
		}
		if path == "" {
			path = "copr.db"
		}
		lite, err := NewSQLiteStore(path)
		if err != nil {
			return nil, err
		}
		return lite, nil
	default:
		return nil, ErrUnsupportedDatabase
	}
}
