package logic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copr-farm/copr/pkg/models"
)

func TestAddCopr(t *testing.T) {
	f := newFixture(t)

	copr, err := f.l.Coprs.Add(f.ctx, f.u3, "new-project", AddOptions{
		Chroots:     []string{"fedora-18-x86_64", "fedora-rawhide-i386", "no-such-chroot", "bad"},
		Description: "a project",
	})
	require.NoError(t, err)
	assert.Equal(t, "user3/new-project", copr.FullName())
	assert.Equal(t, []string{"fedora-18-x86_64"}, copr.ActiveChrootNames())
	assert.True(t, copr.AutoPrune)
	assert.True(t, copr.AutoCreaterepo)

	keys := f.actions(models.ActionGenGPGKey)
	require.Len(t, keys, 1)
	assert.Equal(t, copr.ID, keys[0].ObjectID)
	assert.Equal(t, map[string]interface{}{"username": "user3", "projectname": "new-project"}, f.data(keys[0]))

	_, err = f.l.Coprs.Add(f.ctx, f.u3, "new-project", AddOptions{})
	require.Error(t, err)
	assert.True(t, IsCode(err, CodeDuplicate))
	assert.Equal(t, "Copr: 'user3/new-project' already exists", err.Error())

	_, err = f.l.Coprs.Add(f.ctx, f.u3, "bad name", AddOptions{})
	assert.True(t, IsCode(err, CodeMalformedArgument))
}

func TestAddCoprAdminOnlySettings(t *testing.T) {
	f := newFixture(t)
	no := false

	_, err := f.l.Coprs.Add(f.ctx, f.u1, "p1", AddOptions{Persistent: true})
	assert.ErrorIs(t, err, ErrNonAdminCannotCreatePersistentProject)

	_, err = f.l.Coprs.Add(f.ctx, f.u1, "p2", AddOptions{AutoPrune: &no})
	assert.ErrorIs(t, err, ErrNonAdminCannotDisableAutoPruning)

	copr, err := f.l.Coprs.Add(f.ctx, f.admin, "p3", AddOptions{Persistent: true, AutoPrune: &no})
	require.NoError(t, err)
	assert.True(t, copr.Persistent)
	assert.False(t, copr.AutoPrune)
}

func TestAddGroupCopr(t *testing.T) {
	f := newFixture(t)

	_, err := f.l.Coprs.Add(f.ctx, f.u1, "gp", AddOptions{GroupName: "devs"})
	assert.True(t, IsCode(err, CodeInsufficientRights))

	_, err = f.l.Coprs.Add(f.ctx, f.u1, "gp", AddOptions{GroupName: "nobody"})
	assert.True(t, IsCode(err, CodeNotFound))

	require.NoError(t, f.l.Users.JoinGroup(f.ctx, f.u1, f.group))
	copr, err := f.l.Coprs.Add(f.ctx, f.u1, "gp", AddOptions{GroupName: "devs"})
	require.NoError(t, err)
	assert.Equal(t, "@devs/gp", copr.FullName())

	got, err := f.l.Coprs.Get(f.ctx, "@devs", "gp")
	require.NoError(t, err)
	assert.Equal(t, copr.ID, got.ID)

	// a group member edits the project
	require.NoError(t, f.l.Users.JoinGroup(f.ctx, f.u2, f.group))
	desc := "shared"
	_, err = f.l.Coprs.Update(f.ctx, f.u2, got, UpdateOptions{Description: &desc})
	assert.NoError(t, err)

	_, err = f.l.Coprs.Get(f.ctx, "user1", "gp")
	assert.True(t, IsCode(err, CodeNotFound))
}

func TestUpdateCopr(t *testing.T) {
	f := newFixture(t)

	name := "renamed"
	_, err := f.l.Coprs.Update(f.ctx, f.u1, f.c1, UpdateOptions{Name: &name})
	require.Error(t, err)
	assert.Equal(t, "Change name of the project is forbidden", err.Error())

	desc := "changed"
	_, err = f.l.Coprs.Update(f.ctx, f.u2, f.c1, UpdateOptions{Description: &desc})
	assert.True(t, IsCode(err, CodeInsufficientRights))

	f.approve(f.c1, f.u2, models.PermissionNothing, models.PermissionApproved)
	updated, err := f.l.Coprs.Update(f.ctx, f.u2, f.c1, UpdateOptions{Description: &desc})
	require.NoError(t, err)
	assert.Equal(t, "changed", updated.Description)

	no := false
	_, err = f.l.Coprs.Update(f.ctx, f.u1, f.reload(f.c1), UpdateOptions{AutoPrune: &no})
	assert.ErrorIs(t, err, ErrNonAdminCannotDisableAutoPruning)

	yes := true
	_, err = f.l.Coprs.Update(f.ctx, f.u1, f.reload(f.c1), UpdateOptions{Persistent: &yes})
	assert.ErrorIs(t, err, ErrNonAdminCannotCreatePersistentProject)
}

func TestUpdateCoprAutoCreaterepo(t *testing.T) {
	f := newFixture(t)
	no, yes := false, true

	_, err := f.l.Coprs.Update(f.ctx, f.u1, f.c1, UpdateOptions{AutoCreaterepo: &no})
	require.NoError(t, err)
	assert.Empty(t, f.actions(models.ActionCreaterepo))

	_, err = f.l.Coprs.Update(f.ctx, f.u1, f.reload(f.c1), UpdateOptions{AutoCreaterepo: &yes})
	require.NoError(t, err)

	createrepo := f.actions(models.ActionCreaterepo)
	require.Len(t, createrepo, 1)
	assert.ElementsMatch(t, []interface{}{"fedora-18-x86_64", "fedora-17-x86_64"}, f.data(createrepo[0])["chroots"])
}

func TestUpdateCoprChroots(t *testing.T) {
	f := newFixture(t)

	updated, err := f.l.Coprs.Update(f.ctx, f.u1, f.c1, UpdateOptions{Chroots: []string{"fedora-17-i386", "fedora-18-x86_64"}})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"fedora-17-i386", "fedora-18-x86_64"}, updated.ActiveChrootNames())
}

func TestUpdateCoprModularity(t *testing.T) {
	f := newFixture(t)
	name, other := "testmodule", "othermodule"

	_, err := f.l.Coprs.Update(f.ctx, f.u1, f.c1, UpdateOptions{ModuleName: &name})
	require.NoError(t, err)

	_, err = f.l.Coprs.Update(f.ctx, f.u1, f.reload(f.c1), UpdateOptions{ModuleName: &name})
	assert.NoError(t, err)

	_, err = f.l.Coprs.Update(f.ctx, f.u1, f.reload(f.c1), UpdateOptions{ModuleName: &other})
	require.NoError(t, err)

	chroots, err := f.store.ListCoprChroots(f.ctx, f.c1.ID)
	require.NoError(t, err)
	require.NotEmpty(t, chroots)
	chroots[0].ModuleMDZlib, err = models.Compress([]byte("document: modulemd"))
	require.NoError(t, err)
	require.NoError(t, f.store.UpdateCoprChroot(f.ctx, chroots[0]))

	ok, err := f.l.Coprs.Changeable(f.ctx, f.reload(f.c1), "module_name")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = f.l.Coprs.Changeable(f.ctx, f.reload(f.c1), "module_stream")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = f.l.Coprs.Update(f.ctx, f.u1, f.reload(f.c1), UpdateOptions{ModuleName: &name})
	assert.True(t, IsCode(err, CodeMalformedArgument))

	_, err = f.l.Coprs.Changeable(f.ctx, f.c1, "module_version")
	assert.True(t, IsCode(err, CodeMalformedArgument))
}

func TestDeleteCopr(t *testing.T) {
	f := newFixture(t)

	err := f.l.Coprs.DeleteUnsafe(f.ctx, f.u2, f.c1)
	assert.True(t, IsCode(err, CodeInsufficientRights))

	require.NoError(t, f.l.Coprs.DeleteUnsafe(f.ctx, f.u1, f.c1))

	deletes := f.actions(models.ActionDelete)
	require.Len(t, deletes, 1)
	assert.Equal(t, "copr", deletes[0].ObjectType)
	assert.Equal(t, "user1/foocopr", deletes[0].OldValue)

	_, err = f.l.Coprs.Get(f.ctx, "user1", "foocopr")
	assert.True(t, IsCode(err, CodeNotFound))

	got, err := f.l.Coprs.GetByID(f.ctx, f.c1.ID)
	require.NoError(t, err)
	assert.True(t, got.Deleted)

	// the waiting delete blocks any further change
	err = f.l.Coprs.DeleteUnsafe(f.ctx, f.u1, got)
	assert.True(t, IsCode(err, CodeActionInProgress))
	desc := "x"
	_, err = f.l.Coprs.Update(f.ctx, f.u1, got, UpdateOptions{Description: &desc})
	assert.True(t, IsCode(err, CodeActionInProgress))
}

func TestListingCoprs(t *testing.T) {
	f := newFixture(t)

	all, err := f.l.Coprs.GetMultiple(f.ctx, ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, all.Total)

	owned, err := f.l.Coprs.GetMultipleOwnedBy(f.ctx, "user2", ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, owned.Total)

	allowed, err := f.l.Coprs.GetMultipleAllowed(f.ctx, "user3", ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, allowed.Total)
	assert.Empty(t, allowed.Coprs)

	f.approve(f.c2, f.u3, models.PermissionApproved, models.PermissionNothing)
	f.approve(f.c1, f.u3, models.PermissionRequest, models.PermissionNothing)
	allowed, err = f.l.Coprs.GetMultipleAllowed(f.ctx, "user3", ListOptions{})
	require.NoError(t, err)
	require.Len(t, allowed.Coprs, 1)
	assert.Equal(t, f.c2.ID, allowed.Coprs[0].ID)

	_, err = f.l.Coprs.GetMultipleOwnedBy(f.ctx, "ghost", ListOptions{})
	assert.True(t, IsCode(err, CodeNotFound))
}

func TestSearchCoprs(t *testing.T) {
	f := newFixture(t)

	found, err := f.l.Coprs.Search(f.ctx, "user2/foo")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, f.c2.ID, found[0].ID)

	found, err = f.l.Coprs.Search(f.ctx, "persist")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, f.c3.ID, found[0].ID)

	found, err = f.l.Coprs.Search(f.ctx, "   ")
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestPlayground(t *testing.T) {
	f := newFixture(t)

	err := f.l.Coprs.SetPlayground(f.ctx, f.u1, f.c1, true)
	assert.True(t, IsCode(err, CodeInsufficientRights))

	require.NoError(t, f.l.Coprs.SetPlayground(f.ctx, f.admin, f.c1, true))
	playground, err := f.l.Coprs.GetPlayground(f.ctx)
	require.NoError(t, err)
	require.Len(t, playground, 1)
	assert.Equal(t, f.c1.ID, playground[0].ID)
}
