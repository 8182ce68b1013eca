package logic

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copr-farm/copr/pkg/models"
)

func TestTupleFromName(t *testing.T) {
	m := &MockChrootsLogic{}
	tests := []struct {
		name      string
		noarch    bool
		want      [3]string
		expectErr bool
	}{
		{name: "fedora-18-x86_64", want: [3]string{"fedora", "18", "x86_64"}},
		{name: "fedora-rawhide-ppc64le", want: [3]string{"fedora", "rawhide", "ppc64le"}},
		{name: "opensuse-leap-15.5-x86_64", want: [3]string{"opensuse-leap", "15.5", "x86_64"}},
		{name: "fedora-18", noarch: true, want: [3]string{"fedora", "18", "noarch"}},
		{name: "fedora-18", expectErr: true},
		{name: "fedora", noarch: true, expectErr: true},
		{name: "fedora--x86_64", expectErr: true},
		{name: "", expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			osRelease, osVersion, arch, err := m.TupleFromName(tt.name, tt.noarch)
			if tt.expectErr {
				require.Error(t, err)
				assert.Equal(t, "Chroot name is not valid", err.Error())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, [3]string{osRelease, osVersion, arch})
		})
	}
}

func TestMockChrootsAddEditDelete(t *testing.T) {
	f := newFixture(t)

	mc, err := f.l.MockChroots.Add(f.ctx, "epel-9-aarch64")
	require.NoError(t, err)
	assert.True(t, mc.IsActive)

	_, err = f.l.MockChroots.Add(f.ctx, "epel-9-aarch64")
	assert.True(t, IsCode(err, CodeDuplicate))

	names, err := f.l.MockChroots.ActiveNames(f.ctx)
	require.NoError(t, err)
	assert.Contains(t, names, "epel-9-aarch64")
	assert.NotContains(t, names, "fedora-rawhide-i386")

	_, err = f.l.MockChroots.EditByName(f.ctx, "epel-8-aarch64", false)
	assert.True(t, IsCode(err, CodeNotFound))

	require.NoError(t, f.l.MockChroots.DeleteByName(f.ctx, "epel-9-aarch64"))
	err = f.l.MockChroots.DeleteByName(f.ctx, "epel-9-aarch64")
	assert.True(t, IsCode(err, CodeNotFound))
}

func TestDeactivateChrootStartsPreservation(t *testing.T) {
	f := newFixture(t)

	_, err := f.l.MockChroots.EditByName(f.ctx, "fedora-17-x86_64", false)
	require.NoError(t, err)

	for _, copr := range []*models.Copr{f.c1, f.c2, f.c3} {
		cc, err := f.store.GetCoprChroot(f.ctx, copr.ID, f.mc2.ID)
		require.NoError(t, err)
		require.NotNil(t, cc.DeleteAfter, copr.FullName())
		assert.Equal(t, 180*24*time.Hour, PreservationLeft(cc, f.now))
	}

	outdated, err := f.l.Chroots.FilterOutdatedToBeDeleted(f.ctx)
	require.NoError(t, err)
	assert.Empty(t, outdated)

	_, err = f.l.MockChroots.EditByName(f.ctx, "fedora-17-x86_64", true)
	require.NoError(t, err)
	cc, err := f.store.GetCoprChroot(f.ctx, f.c1.ID, f.mc2.ID)
	require.NoError(t, err)
	assert.Nil(t, cc.DeleteAfter)
}

func TestDeleteOutdatedChroots(t *testing.T) {
	f := newFixture(t)

	_, err := f.l.MockChroots.EditByName(f.ctx, "fedora-17-x86_64", false)
	require.NoError(t, err)
	f.now = f.now.Add(181 * 24 * time.Hour)

	var reported []string
	report := func(cc *models.CoprChroot, copr *models.Copr) {
		reported = append(reported, copr.FullName()+":"+cc.Name())
	}

	n, err := f.l.Chroots.DeleteOutdated(f.ctx, true, 2, report)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Len(t, reported, 3)
	assert.Empty(t, f.actions(models.ActionDeleteChroot))

	reported = nil
	n, err = f.l.Chroots.DeleteOutdated(f.ctx, false, 2, report)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.ElementsMatch(t, []string{
		"user1/foocopr:fedora-17-x86_64",
		"user2/foocopr:fedora-17-x86_64",
		"user2/persistent:fedora-17-x86_64",
	}, reported)

	deletes := f.actions(models.ActionDeleteChroot)
	require.Len(t, deletes, 3)
	assert.Equal(t, "fedora-17-x86_64", f.data(deletes[0])["chrootname"])

	// nothing left for a second run
	n, err = f.l.Chroots.DeleteOutdated(f.ctx, false, 2, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestDeletedProjectChrootsAreNotOutdated(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.l.Coprs.DeleteUnsafe(f.ctx, f.u1, f.c1))

	_, err := f.l.MockChroots.EditByName(f.ctx, "fedora-18-x86_64", false)
	require.NoError(t, err)
	f.now = f.now.Add(365 * 24 * time.Hour)

	outdated, err := f.l.Chroots.FilterOutdatedToBeDeleted(f.ctx)
	require.NoError(t, err)
	assert.Empty(t, outdated)
}

func TestCoprChrootSettings(t *testing.T) {
	f := newFixture(t)
	comps := []byte("<comps><group><id>core</id></group></comps>")
	repos := "http://a.example.com/repo\nhttp://b.example.com/repo"

	cc, err := f.l.Chroots.GetByName(f.ctx, f.c1, "fedora-18-x86_64")
	require.NoError(t, err)

	_, err = f.l.Chroots.UpdateChroot(f.ctx, f.u2, f.c1, cc, ChrootOptions{Repos: &repos})
	assert.True(t, IsCode(err, CodeInsufficientRights))

	_, err = f.l.Chroots.UpdateChroot(f.ctx, f.u1, f.c1, cc, ChrootOptions{
		Repos:     &repos,
		Comps:     comps,
		CompsName: "comps.xml",
	})
	require.NoError(t, err)

	stored, err := f.l.Chroots.GetByName(f.ctx, f.c1, "fedora-18-x86_64")
	require.NoError(t, err)
	assert.Equal(t, "http://a.example.com/repo http://b.example.com/repo", stored.Repos)
	assert.Equal(t, "comps.xml", stored.CompsName)
	raw, err := stored.Comps()
	require.NoError(t, err)
	assert.Equal(t, comps, raw)

	updates := f.actions(models.ActionUpdateComps)
	require.Len(t, updates, 1)
	assert.Equal(t, true, f.data(updates[0])["comps_present"])

	require.NoError(t, f.l.Chroots.RemoveComps(f.ctx, f.u1, f.c1, stored))
	updates = f.actions(models.ActionUpdateComps)
	require.Len(t, updates, 2)
	assert.Equal(t, false, f.data(updates[1])["comps_present"])

	_, err = f.l.Chroots.GetByName(f.ctx, f.c1, "fedora-17-i386")
	assert.True(t, IsCode(err, CodeNotFound))
}

func TestCreateAndRemoveCoprChroot(t *testing.T) {
	f := newFixture(t)

	cc, err := f.l.Chroots.CreateChroot(f.ctx, f.u1, f.c1, f.mc3, ChrootOptions{})
	require.NoError(t, err)
	assert.Equal(t, "fedora-17-i386", cc.Name())

	_, err = f.l.Chroots.CreateChroot(f.ctx, f.u1, f.c1, f.mc3, ChrootOptions{})
	assert.True(t, IsCode(err, CodeDuplicate))

	require.NoError(t, f.l.Chroots.RemoveCoprChroot(f.ctx, f.u1, f.c1, cc))
	assert.Len(t, f.reload(f.c1).Chroots, 2)
}

func TestRawhideToRelease(t *testing.T) {
	f := newFixture(t)
	mc5 := f.mockChroot("fedora", "19", "i386", true)

	ok := f.build(f.c2, f.u2, "http://example.com/foo-1.0-1.src.rpm", chrootState{mc: f.mc4, status: models.StatusSucceeded, gitHash: "abc"})
	f.build(f.c2, f.u2, "http://example.com/bar-1.0-1.src.rpm", chrootState{mc: f.mc4, status: models.StatusFailed})

	_, err := f.l.Chroots.RawhideToRelease(f.ctx, f.u2, "fedora-rawhide-i386", "fedora-19-i386")
	assert.True(t, IsCode(err, CodeInsufficientRights))

	_, err = f.l.Chroots.RawhideToRelease(f.ctx, f.admin, "fedora-rawhide-i386", "fedora-42-i386")
	assert.True(t, IsCode(err, CodeNotFound))

	n, err := f.l.Chroots.RawhideToRelease(f.ctx, f.admin, "fedora-rawhide-i386", "fedora-19-i386")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = f.store.GetCoprChroot(f.ctx, f.c2.ID, mc5.ID)
	assert.NoError(t, err)
	_, err = f.store.GetCoprChroot(f.ctx, f.c1.ID, mc5.ID)
	assert.Error(t, err)

	actions := f.actions(models.ActionRawhideToRelease)
	require.Len(t, actions, 1)
	data := f.data(actions[0])
	assert.Equal(t, "user2", data["ownername"])
	assert.Equal(t, "fedora-19-i386", data["dest_chroot"])
	assert.Equal(t, []interface{}{ok.ResultDirName()}, data["builds"])
}

func TestUpdateFromNamesKeepsDeactivatedChroots(t *testing.T) {
	f := newFixture(t)

	_, err := f.l.MockChroots.EditByName(f.ctx, "fedora-17-x86_64", false)
	require.NoError(t, err)

	err = f.l.Chroots.UpdateFromNames(f.ctx, f.u1, f.c1, []string{"fedora-18-x86_64", "fedora-17-x86_64", "fedora-rawhide-i386"})
	require.NoError(t, err)

	chroots, err := f.store.ListCoprChroots(f.ctx, f.c1.ID)
	require.NoError(t, err)
	var names []string
	for _, cc := range chroots {
		names = append(names, cc.Name())
	}
	assert.ElementsMatch(t, []string{"fedora-18-x86_64", "fedora-17-x86_64"}, names)
	assert.Empty(t, f.actions(models.ActionDeleteChroot))

	err = f.l.Chroots.UpdateFromNames(f.ctx, f.u1, f.c1, []string{"fedora-18-x86_64"})
	require.NoError(t, err)

	chroots, err = f.store.ListCoprChroots(f.ctx, f.c1.ID)
	require.NoError(t, err)
	require.Len(t, chroots, 1)
	assert.Equal(t, "fedora-18-x86_64", chroots[0].Name())

	deletes := f.actions(models.ActionDeleteChroot)
	require.Len(t, deletes, 1)
	assert.Equal(t, "fedora-17-x86_64", f.data(deletes[0])["chrootname"])
}

func TestDeleteMockChrootWithBuilds(t *testing.T) {
	f := newFixture(t)
	build := f.build(f.c1, f.u1, srpmURL, chrootState{mc: f.mc1, status: models.StatusRunning, startedOn: f.now.Unix()})

	err := f.l.MockChroots.DeleteByName(f.ctx, "fedora-18-x86_64")
	assert.True(t, IsCode(err, CodeDuplicate))

	_, err = f.l.MockChroots.GetFromName(f.ctx, "fedora-18-x86_64", false, false)
	require.NoError(t, err)
	_, err = f.store.GetCoprChroot(f.ctx, f.c1.ID, f.mc1.ID)
	require.NoError(t, err)

	loaded, err := f.store.GetBuild(f.ctx, build.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Chroots, 1)
	assert.False(t, loaded.Finished())

	err = f.l.Builds.DeleteBuild(f.ctx, f.u1, loaded)
	assert.True(t, IsCode(err, CodeActionInProgress))
}

func TestDeleteUnusedMockChrootDropsProjectChroots(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.l.MockChroots.DeleteByName(f.ctx, "fedora-17-i386"))

	chroots, err := f.store.ListCoprChroots(f.ctx, f.c2.ID)
	require.NoError(t, err)
	for _, cc := range chroots {
		assert.NotEqual(t, f.mc3.ID, cc.MockChrootID)
	}
	assert.Len(t, chroots, 2)
}
