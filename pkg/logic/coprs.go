package logic

import (
	"context"
	"regexp"
	"strings"

	"github.com/copr-farm/copr/pkg/models"
	"github.com/copr-farm/copr/pkg/rbac"
	"github.com/copr-farm/copr/pkg/store"
)

var projectNameRe = regexp.MustCompile(`^[\w.+-]+$`)

// CoprsLogic manages projects
type CoprsLogic struct {
	l *Logic
}

// ListOptions narrows and pages project listings
type ListOptions struct {
	IncludeDeleted      bool
	IncludeUnlistedOnHP bool
	// Page is 1-based; zero returns everything
	Page       int
	Descending bool
}

// Page is one page of projects
type Page struct {
	Coprs   []*models.Copr `json:"coprs"`
	Page    int            `json:"page"`
	PerPage int            `json:"per_page"`
	Total   int            `json:"total"`
}

// AddOptions are the settings of a new project
type AddOptions struct {
	Chroots        []string
	GroupName      string
	Description    string
	Instructions   string
	Repos          string
	Persistent     bool
	AutoPrune      *bool
	AutoCreaterepo *bool
	UnlistedOnHP   bool
	BuildEnableNet *bool
}

// UpdateOptions carries project changes; nil fields are left alone
type UpdateOptions struct {
	Name           *string
	Description    *string
	Instructions   *string
	Repos          *string
	Persistent     *bool
	AutoPrune      *bool
	AutoCreaterepo *bool
	UnlistedOnHP   *bool
	BuildEnableNet *bool
	ModuleName     *string
	ModuleStream   *string
	Chroots        []string
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

// GetAll returns every project that is not deleted
func (c *CoprsLogic) GetAll(ctx context.Context) ([]*models.Copr, error) {
	return c.l.store.ListCoprs(ctx, store.CoprFilter{IncludeUnlisted: true})
}

// GetByID returns a project, deleted ones included
func (c *CoprsLogic) GetByID(ctx context.Context, id int64) (*models.Copr, error) {
	copr, err := c.l.store.GetCopr(ctx, id)
	if err != nil {
		return nil, notFoundAs(err, "Copr with id %d does not exist.", id)
	}
	return copr, nil
}

// Get returns the non-deleted project owner/name where owner is a username
// or "@group"
func (c *CoprsLogic) Get(ctx context.Context, owner, name string) (*models.Copr, error) {
	filter := store.CoprFilter{Name: name, IncludeUnlisted: true}
	if strings.HasPrefix(owner, "@") {
		group, err := c.l.store.GetGroupByName(ctx, owner[1:])
		if err != nil {
			return nil, notFoundAs(err, "Copr %s/%s does not exist.", owner, name)
		}
		filter.GroupID = &group.ID
	} else {
		user, err := c.l.store.GetUserByUsername(ctx, owner)
		if err != nil {
			return nil, notFoundAs(err, "Copr %s/%s does not exist.", owner, name)
		}
		filter.UserID = &user.ID
		filter.WithoutGroup = true
	}

	coprs, err := c.l.store.ListCoprs(ctx, filter)
	if err != nil {
		return nil, err
	}
	if len(coprs) == 0 {
		return nil, NotFound("Copr %s/%s does not exist.", owner, name)
	}
	return coprs[0], nil
}

func (c *CoprsLogic) page(ctx context.Context, filter store.CoprFilter, page int) (*Page, error) {
	total, err := c.l.store.CountCoprs(ctx, filter)
	if err != nil {
		return nil, err
	}
	if page > 0 {
		filter.Limit = c.l.cfg.PerPage
		filter.Offset = (page - 1) * c.l.cfg.PerPage
	}
	coprs, err := c.l.store.ListCoprs(ctx, filter)
	if err != nil {
		return nil, err
	}
	if coprs == nil {
		coprs = []*models.Copr{}
	}
	return &Page{Coprs: coprs, Page: page, PerPage: c.l.cfg.PerPage, Total: total}, nil
}

// GetMultiple lists projects, newest first when Descending is set
func (c *CoprsLogic) GetMultiple(ctx context.Context, opts ListOptions) (*Page, error) {
	return c.page(ctx, store.CoprFilter{
		IncludeDeleted:  opts.IncludeDeleted,
		IncludeUnlisted: opts.IncludeUnlistedOnHP,
		Descending:      opts.Descending,
	}, opts.Page)
}

// GetMultipleOwnedBy lists the personal projects of a user
func (c *CoprsLogic) GetMultipleOwnedBy(ctx context.Context, username string, opts ListOptions) (*Page, error) {
	user, err := c.l.store.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, notFoundAs(err, "User %s does not exist.", username)
	}
	return c.page(ctx, store.CoprFilter{
		UserID:          &user.ID,
		WithoutGroup:    true,
		IncludeDeleted:  opts.IncludeDeleted,
		IncludeUnlisted: true,
		Descending:      opts.Descending,
	}, opts.Page)
}

// GetMultipleByGroup lists the projects of a group
func (c *CoprsLogic) GetMultipleByGroup(ctx context.Context, groupName string, opts ListOptions) (*Page, error) {
	group, err := c.l.store.GetGroupByName(ctx, groupName)
	if err != nil {
		return nil, notFoundAs(err, "Group %s does not exist.", groupName)
	}
	return c.page(ctx, store.CoprFilter{
		GroupID:         &group.ID,
		IncludeDeleted:  opts.IncludeDeleted,
		IncludeUnlisted: true,
		Descending:      opts.Descending,
	}, opts.Page)
}

// GetMultipleAllowed lists projects where the user has an approved builder
// or admin permission
func (c *CoprsLogic) GetMultipleAllowed(ctx context.Context, username string, opts ListOptions) (*Page, error) {
	user, err := c.l.store.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, notFoundAs(err, "User %s does not exist.", username)
	}
	perms, err := c.l.store.ListUserPermissions(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	ids := []int64{}
	for _, p := range perms {
		if p.CoprBuilder == models.PermissionApproved || p.CoprAdmin == models.PermissionApproved {
			ids = append(ids, p.CoprID)
		}
	}
	return c.page(ctx, store.CoprFilter{
		IDs:             ids,
		IncludeDeleted:  opts.IncludeDeleted,
		IncludeUnlisted: true,
		Descending:      opts.Descending,
	}, opts.Page)
}

// GetPlayground lists projects marked as playground
func (c *CoprsLogic) GetPlayground(ctx context.Context) ([]*models.Copr, error) {
	yes := true
	return c.l.store.ListCoprs(ctx, store.CoprFilter{Playground: &yes, IncludeUnlisted: true})
}

// SetPlayground marks or unmarks a project as playground; admin only
func (c *CoprsLogic) SetPlayground(ctx context.Context, user *models.User, copr *models.Copr, playground bool) error {
	if user == nil || !user.Admin {
		return InsufficientRights("Only admin can make a playground project.")
	}
	copr.Playground = playground
	return c.l.store.UpdateCopr(ctx, copr)
}

// Search finds projects. "user/name" and "@group/name" match owner and
// project name separately, anything else matches name and description.
func (c *CoprsLogic) Search(ctx context.Context, query string) ([]*models.Copr, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []*models.Copr{}, nil
	}

	q := store.CoprSearch{Text: query}
	if owner, name, ok := strings.Cut(query, "/"); ok {
		q = store.CoprSearch{Owner: owner, Name: name}
		if strings.HasPrefix(owner, "@") {
			q.Owner = owner[1:]
			q.Group = true
		}
	}
	coprs, err := c.l.store.SearchCoprs(ctx, q)
	if err != nil {
		return nil, err
	}
	if coprs == nil {
		coprs = []*models.Copr{}
	}
	return coprs, nil
}

// ExistsForUser reports whether the user has a personal project of that name
func (c *CoprsLogic) ExistsForUser(ctx context.Context, user *models.User, name string) (bool, error) {
	n, err := c.l.store.CountCoprs(ctx, store.CoprFilter{
		UserID: &user.ID, WithoutGroup: true, Name: name, IncludeUnlisted: true,
	})
	return n > 0, err
}

// ExistsForGroup reports whether the group has a project of that name
func (c *CoprsLogic) ExistsForGroup(ctx context.Context, group *models.Group, name string) (bool, error) {
	n, err := c.l.store.CountCoprs(ctx, store.CoprFilter{
		GroupID: &group.ID, Name: name, IncludeUnlisted: true,
	})
	return n > 0, err
}

// UnfinishedBlockingActions returns waiting delete and rename actions of a project
func (c *CoprsLogic) UnfinishedBlockingActions(ctx context.Context, copr *models.Copr) ([]*models.Action, error) {
	waiting := models.ResultWaiting
	actions, err := c.l.store.ListActions(ctx, store.ActionFilter{
		Result:     &waiting,
		ObjectType: "copr",
		ObjectID:   &copr.ID,
	})
	if err != nil {
		return nil, err
	}

	var blocking []*models.Action
	for _, a := range actions {
		if a.IsBlocking() {
			blocking = append(blocking, a)
		}
	}
	return blocking, nil
}

// RaiseIfUnfinishedBlockingAction returns ActionInProgress when the project
// has a waiting delete or rename action. msg may reference the action
// type with %s.
func (c *CoprsLogic) RaiseIfUnfinishedBlockingAction(ctx context.Context, copr *models.Copr, msg string) error {
	blocking, err := c.UnfinishedBlockingActions(ctx, copr)
	if err != nil {
		return err
	}
	if len(blocking) > 0 {
		return ActionInProgress(blocking[0], msg, blocking[0].ActionType)
	}
	return nil
}

// Add creates a project owned by user, or by a group the user belongs to,
// and queues generation of its signing key
func (c *CoprsLogic) Add(ctx context.Context, user *models.User, name string, opts AddOptions) (*models.Copr, error) {
	if user == nil {
		return nil, InsufficientRights("You have to be logged in to create a project.")
	}
	if !projectNameRe.MatchString(name) {
		return nil, MalformedArgument("Project name %q is not valid.", name)
	}
	autoPrune := boolOr(opts.AutoPrune, true)
	if !user.Admin && opts.Persistent {
		return nil, ErrNonAdminCannotCreatePersistentProject
	}
	if !user.Admin && !autoPrune {
		return nil, ErrNonAdminCannotDisableAutoPruning
	}

	var copr *models.Copr
	err := c.l.Tx(ctx, func(tx *Logic) error {
		copr = &models.Copr{
			Name:           name,
			UserID:         user.ID,
			OwnerUsername:  user.Username,
			Description:    opts.Description,
			Instructions:   opts.Instructions,
			Repos:          opts.Repos,
			CreatedOn:      tx.now().Unix(),
			Persistent:     opts.Persistent,
			AutoPrune:      autoPrune,
			AutoCreaterepo: boolOr(opts.AutoCreaterepo, true),
			UnlistedOnHP:   opts.UnlistedOnHP,
			BuildEnableNet: boolOr(opts.BuildEnableNet, true),
		}

		var exists bool
		var err error
		if opts.GroupName != "" {
			group, err := tx.store.GetGroupByName(ctx, opts.GroupName)
			if err != nil {
				return notFoundAs(err, "Group %s does not exist.", opts.GroupName)
			}
			if !user.InGroup(group.ID) {
				return InsufficientRights("Only members may create projects in the particular groups.")
			}
			copr.GroupID = &group.ID
			copr.GroupName = group.Name
			if exists, err = tx.Coprs.ExistsForGroup(ctx, group, name); err != nil {
				return err
			}
		} else if exists, err = tx.Coprs.ExistsForUser(ctx, user, name); err != nil {
			return err
		}
		if exists {
			return Duplicate("Copr: '%s' already exists", copr.FullName())
		}

		if err := tx.store.CreateCopr(ctx, copr); err != nil {
			return err
		}
		if err := tx.Chroots.NewFromNames(ctx, copr, opts.Chroots); err != nil {
			return err
		}
		if _, err := tx.Actions.SendCreateGPGKey(ctx, copr); err != nil {
			return err
		}

		loaded, err := tx.store.GetCopr(ctx, copr.ID)
		if err != nil {
			return err
		}
		copr = loaded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return copr, nil
}

// Update applies changes to a project. Renaming is not supported.
func (c *CoprsLogic) Update(ctx context.Context, user *models.User, copr *models.Copr, upd UpdateOptions) (*models.Copr, error) {
	if upd.Name != nil && *upd.Name != copr.Name {
		return nil, MalformedArgument("Change name of the project is forbidden")
	}

	err := c.l.Tx(ctx, func(tx *Logic) error {
		perm, err := tx.permissionOf(ctx, user, copr)
		if err != nil {
			return err
		}
		if !rbac.CanEdit(user, copr, perm) {
			return InsufficientRights("Only owners and admins may update their projects.")
		}
		if err := tx.Coprs.RaiseIfUnfinishedBlockingAction(ctx, copr,
			"Can't change this project, another operation is in progress: %s"); err != nil {
			return err
		}

		if upd.Persistent != nil && *upd.Persistent != copr.Persistent && !user.Admin {
			return ErrNonAdminCannotCreatePersistentProject
		}
		if upd.AutoPrune != nil && !*upd.AutoPrune && copr.AutoPrune && !user.Admin {
			return ErrNonAdminCannotDisableAutoPruning
		}
		if err := tx.Coprs.checkModularityChange(ctx, copr, "module_name", upd.ModuleName); err != nil {
			return err
		}
		if err := tx.Coprs.checkModularityChange(ctx, copr, "module_stream", upd.ModuleStream); err != nil {
			return err
		}

		createrepo := upd.AutoCreaterepo != nil && *upd.AutoCreaterepo && !copr.AutoCreaterepo

		if upd.Description != nil {
			copr.Description = *upd.Description
		}
		if upd.Instructions != nil {
			copr.Instructions = *upd.Instructions
		}
		if upd.Repos != nil {
			copr.Repos = *upd.Repos
		}
		if upd.Persistent != nil {
			copr.Persistent = *upd.Persistent
		}
		if upd.AutoPrune != nil {
			copr.AutoPrune = *upd.AutoPrune
		}
		if upd.AutoCreaterepo != nil {
			copr.AutoCreaterepo = *upd.AutoCreaterepo
		}
		if upd.UnlistedOnHP != nil {
			copr.UnlistedOnHP = *upd.UnlistedOnHP
		}
		if upd.BuildEnableNet != nil {
			copr.BuildEnableNet = *upd.BuildEnableNet
		}
		if upd.ModuleName != nil {
			copr.ModuleName = upd.ModuleName
		}
		if upd.ModuleStream != nil {
			copr.ModuleStream = upd.ModuleStream
		}

		if err := tx.store.UpdateCopr(ctx, copr); err != nil {
			return err
		}
		if upd.Chroots != nil {
			if err := tx.Chroots.UpdateFromNames(ctx, user, copr, upd.Chroots); err != nil {
				return err
			}
		}
		if copr.Chroots, err = tx.store.ListCoprChroots(ctx, copr.ID); err != nil {
			return err
		}
		if createrepo {
			if _, err := tx.Actions.SendCreaterepo(ctx, copr, copr.ActiveChrootNames()); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return copr, nil
}

// Changeable reports whether a modularity property of copr may still be
// changed. A set value is frozen once any chroot of the project carries
// module metadata.
func (c *CoprsLogic) Changeable(ctx context.Context, copr *models.Copr, property string) (bool, error) {
	var current *string
	switch property {
	case "module_name":
		current = copr.ModuleName
	case "module_stream":
		current = copr.ModuleStream
	default:
		return false, MalformedArgument("Unknown modularity property %s", property)
	}
	if current == nil || *current == "" {
		return true, nil
	}

	chroots, err := c.l.store.ListCoprChroots(ctx, copr.ID)
	if err != nil {
		return false, err
	}
	for _, ch := range chroots {
		if len(ch.ModuleMDZlib) > 0 {
			return false, nil
		}
	}
	return true, nil
}

func (c *CoprsLogic) checkModularityChange(ctx context.Context, copr *models.Copr, property string, next *string) error {
	if next == nil {
		return nil
	}
	current := copr.ModuleName
	if property == "module_stream" {
		current = copr.ModuleStream
	}
	if current != nil && *current == *next {
		return nil
	}
	ok, err := c.Changeable(ctx, copr, property)
	if err != nil {
		return err
	}
	if !ok {
		return MalformedArgument("Project %s can't be changed while the project has modules", property)
	}
	return nil
}

// DeleteUnsafe queues removal of project data and marks the project deleted
func (c *CoprsLogic) DeleteUnsafe(ctx context.Context, user *models.User, copr *models.Copr) error {
	if !rbac.CanDelete(user, copr) {
		return InsufficientRights("Only owners may delete their projects.")
	}

	return c.l.Tx(ctx, func(tx *Logic) error {
		if err := tx.Coprs.RaiseIfUnfinishedBlockingAction(ctx, copr,
			"Action %s is already in progress"); err != nil {
			return err
		}

		if _, err := tx.Actions.enqueue(ctx, &models.Action{
			ActionType: models.ActionDelete,
			ObjectType: "copr",
			ObjectID:   copr.ID,
			OldValue:   copr.FullName(),
			NewValue:   "",
		}, map[string]interface{}{
			"ownername":   copr.OwnerName(),
			"projectname": copr.Name,
		}); err != nil {
			return err
		}

		copr.Deleted = true
		return tx.store.UpdateCopr(ctx, copr)
	})
}

// Fork copies a project with its chroots and successful builds into a new
// project of user (or of groupName) and queues copying of the results
func (c *CoprsLogic) Fork(ctx context.Context, user *models.User, src *models.Copr, name, groupName string) (*models.Copr, error) {
	if name == "" {
		name = src.Name
	}

	var chrootNames []string
	for _, ch := range src.ActiveChroots() {
		chrootNames = append(chrootNames, ch.Name())
	}

	var dst *models.Copr
	err := c.l.Tx(ctx, func(tx *Logic) error {
		var err error
		dst, err = tx.Coprs.Add(ctx, user, name, AddOptions{
			Chroots:        chrootNames,
			GroupName:      groupName,
			Description:    src.Description,
			Instructions:   src.Instructions,
			Repos:          src.Repos,
			AutoCreaterepo: &src.AutoCreaterepo,
			BuildEnableNet: &src.BuildEnableNet,
			UnlistedOnHP:   src.UnlistedOnHP,
		})
		if err != nil {
			return err
		}

		for _, dstChroot := range dst.Chroots {
			for _, srcChroot := range src.Chroots {
				if srcChroot.MockChrootID != dstChroot.MockChrootID {
					continue
				}
				dstChroot.BuildrootPkgs = srcChroot.BuildrootPkgs
				dstChroot.Repos = srcChroot.Repos
				dstChroot.CompsName = srcChroot.CompsName
				dstChroot.CompsZlib = srcChroot.CompsZlib
				dstChroot.ModuleMDName = srcChroot.ModuleMDName
				dstChroot.ModuleMDZlib = srcChroot.ModuleMDZlib
				if err := tx.store.UpdateCoprChroot(ctx, dstChroot); err != nil {
					return err
				}
			}
		}

		buildsMap, err := tx.Builds.forkBuilds(ctx, user, src, dst)
		if err != nil {
			return err
		}
		_, err = tx.Actions.SendForkCopr(ctx, src, dst, buildsMap)
		return err
	})
	if err != nil {
		return nil, err
	}
	return dst, nil
}
