package rbac

import (
	"github.com/copr-farm/copr/pkg/models"
)

// IsOwner reports whether user created the project
func IsOwner(user *models.User, copr *models.Copr) bool {
	return user != nil && copr != nil && user.ID == copr.UserID
}

// IsGroupMember reports whether copr is a group project the user belongs to
func IsGroupMember(user *models.User, copr *models.Copr) bool {
	return copr != nil && copr.GroupID != nil && user.InGroup(*copr.GroupID)
}

// CanBuildIn reports whether user may submit builds into copr.
// perm is the user's permission in copr and may be nil.
func CanBuildIn(user *models.User, copr *models.Copr, perm *models.CoprPermission) bool {
	if user == nil {
		return false
	}
	if user.Admin || IsOwner(user, copr) || IsGroupMember(user, copr) {
		return true
	}
	return perm != nil && perm.CoprBuilder == models.PermissionApproved
}

// CanEdit reports whether user may change the project settings
func CanEdit(user *models.User, copr *models.Copr, perm *models.CoprPermission) bool {
	if user == nil {
		return false
	}
	if user.Admin || IsOwner(user, copr) || IsGroupMember(user, copr) {
		return true
	}
	return perm != nil && perm.CoprAdmin == models.PermissionApproved
}

// CanDelete reports whether user may delete the project
func CanDelete(user *models.User, copr *models.Copr) bool {
	if user == nil {
		return false
	}
	return user.Admin || IsOwner(user, copr)
}

// Permissions is what a user may do in a project, as returned by the API
type Permissions struct {
	Builder bool `json:"builder"`
	Admin   bool `json:"admin"`
	Delete  bool `json:"delete"`
	Owner   bool `json:"owner"`
}

// PermissionsFor summarizes the rights of user in copr
func PermissionsFor(user *models.User, copr *models.Copr, perm *models.CoprPermission) Permissions {
	return Permissions{
		Builder: CanBuildIn(user, copr, perm),
		Admin:   CanEdit(user, copr, perm),
		Delete:  CanDelete(user, copr),
		Owner:   IsOwner(user, copr),
	}
}
