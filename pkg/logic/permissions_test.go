package logic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copr-farm/copr/pkg/models"
)

func TestUpdatePermissions(t *testing.T) {
	f := newFixture(t)

	_, err := f.l.Permissions.UpdatePermissions(f.ctx, f.u2, f.c1, f.u3.ID, models.PermissionApproved, models.PermissionNothing)
	assert.True(t, IsCode(err, CodeInsufficientRights))

	perm, err := f.l.Permissions.UpdatePermissions(f.ctx, f.u1, f.c1, f.u3.ID, models.PermissionApproved, models.PermissionNothing)
	require.NoError(t, err)
	assert.Equal(t, "user3", perm.Username)

	_, err = f.l.Permissions.UpdatePermissions(f.ctx, f.u1, f.c1, 4242, models.PermissionApproved, models.PermissionNothing)
	assert.True(t, IsCode(err, CodeNotFound))

	perms, err := f.l.Permissions.GetForCopr(f.ctx, f.c1)
	require.NoError(t, err)
	require.Len(t, perms, 1)
	assert.Equal(t, models.PermissionApproved, perms[0].CoprBuilder)

	require.NoError(t, f.l.Permissions.Delete(f.ctx, perms[0]))
	_, err = f.l.Permissions.Get(f.ctx, f.c1, f.u3)
	assert.True(t, IsCode(err, CodeNotFound))
}

func TestUpdatePermissionsByApplier(t *testing.T) {
	f := newFixture(t)

	_, err := f.l.Permissions.UpdatePermissionsByApplier(f.ctx, f.u1, f.c1, models.PermissionRequest, models.PermissionRequest)
	assert.True(t, IsCode(err, CodeInsufficientRights))

	perm, err := f.l.Permissions.UpdatePermissionsByApplier(f.ctx, f.u2, f.c1, models.PermissionRequest, models.PermissionNothing)
	require.NoError(t, err)
	assert.Equal(t, models.PermissionRequest, perm.CoprBuilder)

	// the owner approves the builder request
	f.approve(f.c1, f.u2, models.PermissionApproved, models.PermissionNothing)

	// asking again keeps the approval, the new admin request is recorded
	perm, err = f.l.Permissions.UpdatePermissionsByApplier(f.ctx, f.u2, f.c1, models.PermissionRequest, models.PermissionRequest)
	require.NoError(t, err)
	assert.Equal(t, models.PermissionApproved, perm.CoprBuilder)
	assert.Equal(t, models.PermissionRequest, perm.CoprAdmin)

	// giving up drops the approval
	perm, err = f.l.Permissions.UpdatePermissionsByApplier(f.ctx, f.u2, f.c1, models.PermissionNothing, models.PermissionRequest)
	require.NoError(t, err)
	assert.Equal(t, models.PermissionNothing, perm.CoprBuilder)

	stored, err := f.l.Permissions.Get(f.ctx, f.c1, f.u2)
	require.NoError(t, err)
	assert.Equal(t, models.PermissionNothing, stored.CoprBuilder)
	assert.Equal(t, models.PermissionRequest, stored.CoprAdmin)
}

func TestApplierCannotApproveThemselves(t *testing.T) {
	f := newFixture(t)

	perm, err := f.l.Permissions.UpdatePermissionsByApplier(f.ctx, f.u2, f.c1, models.PermissionApproved, models.PermissionApproved)
	require.NoError(t, err)
	assert.Equal(t, models.PermissionRequest, perm.CoprBuilder)
	assert.Equal(t, models.PermissionRequest, perm.CoprAdmin)

	stored, err := f.l.Permissions.Get(f.ctx, f.c1, f.u2)
	require.NoError(t, err)
	assert.Equal(t, models.PermissionRequest, stored.CoprBuilder)
	assert.Equal(t, models.PermissionRequest, stored.CoprAdmin)

	desc := "changed"
	_, err = f.l.Coprs.Update(f.ctx, f.u2, f.reload(f.c1), UpdateOptions{Description: &desc})
	assert.True(t, IsCode(err, CodeInsufficientRights))
}
