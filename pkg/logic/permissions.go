package logic

import (
	"context"

	"github.com/copr-farm/copr/pkg/models"
	"github.com/copr-farm/copr/pkg/rbac"
)

// PermissionsLogic manages builder and admin permissions on projects
type PermissionsLogic struct {
	l *Logic
}

// Get returns the permission user holds in copr
func (p *PermissionsLogic) Get(ctx context.Context, copr *models.Copr, user *models.User) (*models.CoprPermission, error) {
	perm, err := p.l.store.GetPermission(ctx, copr.ID, user.ID)
	if err != nil {
		return nil, notFoundAs(err, "User %s has no permissions in %s.", user.Username, copr.FullName())
	}
	return perm, nil
}

// GetForCopr lists all permissions of a project
func (p *PermissionsLogic) GetForCopr(ctx context.Context, copr *models.Copr) ([]*models.CoprPermission, error) {
	perms, err := p.l.store.ListPermissions(ctx, copr.ID)
	if err != nil {
		return nil, err
	}
	if perms == nil {
		perms = []*models.CoprPermission{}
	}
	return perms, nil
}

// UpdatePermissions sets the permissions of another user in copr. Only
// owners and admins of the project may do so.
func (p *PermissionsLogic) UpdatePermissions(ctx context.Context, user *models.User, copr *models.Copr, targetUserID int64, builder, admin models.PermissionState) (*models.CoprPermission, error) {
	perm, err := p.l.permissionOf(ctx, user, copr)
	if err != nil {
		return nil, err
	}
	if !rbac.CanEdit(user, copr, perm) {
		return nil, InsufficientRights("Only owners and admins may update their projects permissions.")
	}
	target, err := p.l.store.GetUser(ctx, targetUserID)
	if err != nil {
		return nil, notFoundAs(err, "User %d does not exist.", targetUserID)
	}

	updated := &models.CoprPermission{
		CoprID:      copr.ID,
		UserID:      target.ID,
		Username:    target.Username,
		CoprBuilder: builder,
		CoprAdmin:   admin,
	}
	if err := p.l.store.SavePermission(ctx, updated); err != nil {
		return nil, err
	}
	return updated, nil
}

// asRequest turns anything an applier asks for into a request. Only the
// project owners approve.
func asRequest(state models.PermissionState) models.PermissionState {
	if state == models.PermissionNothing {
		return models.PermissionNothing
	}
	return models.PermissionRequest
}

// UpdatePermissionsByApplier records a permission request from user. An
// already approved permission is kept unless the applier gives it up.
func (p *PermissionsLogic) UpdatePermissionsByApplier(ctx context.Context, user *models.User, copr *models.Copr, builder, admin models.PermissionState) (*models.CoprPermission, error) {
	builder, admin = asRequest(builder), asRequest(admin)
	if user == nil {
		return nil, InsufficientRights("Only logged in users may request permissions.")
	}
	if rbac.IsOwner(user, copr) {
		return nil, InsufficientRights("Owner cannot request permissions for his own project.")
	}

	existing, err := p.l.permissionOf(ctx, user, copr)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		existing = &models.CoprPermission{
			CoprID:      copr.ID,
			UserID:      user.ID,
			Username:    user.Username,
			CoprBuilder: builder,
			CoprAdmin:   admin,
		}
	} else {
		if existing.CoprBuilder != models.PermissionApproved || builder == models.PermissionNothing {
			existing.CoprBuilder = builder
		}
		if existing.CoprAdmin != models.PermissionApproved || admin == models.PermissionNothing {
			existing.CoprAdmin = admin
		}
	}

	if err := p.l.store.SavePermission(ctx, existing); err != nil {
		return nil, err
	}
	return existing, nil
}

// Delete removes a permission row
func (p *PermissionsLogic) Delete(ctx context.Context, perm *models.CoprPermission) error {
	return p.l.store.DeletePermission(ctx, perm.CoprID, perm.UserID)
}
