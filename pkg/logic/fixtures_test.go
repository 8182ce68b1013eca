package logic

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/copr-farm/copr/pkg/models"
	"github.com/copr-farm/copr/pkg/store"
)

// fixture is a small farm: three users and an admin, one group, four mock
// chroots (the last one inactive) and three projects.
type fixture struct {
	t     *testing.T
	ctx   context.Context
	store store.Store
	l     *Logic
	now   time.Time

	u1, u2, u3, admin *models.User
	group             *models.Group

	// mc1 fedora-18-x86_64, mc2 fedora-17-x86_64, mc3 fedora-17-i386,
	// mc4 fedora-rawhide-i386 (inactive)
	mc1, mc2, mc3, mc4 *models.MockChroot

	// c1 of u1 in mc1 and mc2, c2 of u2 in mc2, mc3 and mc4, c3 persistent of u2
	c1, c2, c3 *models.Copr
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "copr.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	f := &fixture{
		t:     t,
		ctx:   context.Background(),
		store: s,
		now:   time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	f.l = New(s, Config{DistGitURL: "https://dist-git.example.com/git", Now: func() time.Time { return f.now }})

	f.group = &models.Group{Name: "devs", FASName: "fas-devs"}
	require.NoError(t, s.CreateGroup(f.ctx, f.group))

	f.u1 = f.user("user1", false)
	f.u2 = f.user("user2", false)
	f.u3 = f.user("user3", false)
	f.admin = f.user("adminuser", true)

	f.mc1 = f.mockChroot("fedora", "18", "x86_64", true)
	f.mc2 = f.mockChroot("fedora", "17", "x86_64", true)
	f.mc3 = f.mockChroot("fedora", "17", "i386", true)
	f.mc4 = f.mockChroot("fedora", "rawhide", "i386", false)

	f.c1 = f.copr("foocopr", f.u1, false, f.mc1, f.mc2)
	f.c2 = f.copr("foocopr", f.u2, false, f.mc2, f.mc3, f.mc4)
	f.c3 = f.copr("persistent", f.u2, true, f.mc2)
	return f
}

func (f *fixture) user(name string, admin bool) *models.User {
	u := &models.User{Username: name, Email: name + "@example.com", Admin: admin, APILogin: name + "-login"}
	require.NoError(f.t, f.store.CreateUser(f.ctx, u))
	return u
}

func (f *fixture) mockChroot(osRelease, osVersion, arch string, active bool) *models.MockChroot {
	mc := &models.MockChroot{OSRelease: osRelease, OSVersion: osVersion, Arch: arch, IsActive: active}
	require.NoError(f.t, f.store.CreateMockChroot(f.ctx, mc))
	return mc
}

func (f *fixture) copr(name string, owner *models.User, persistent bool, chroots ...*models.MockChroot) *models.Copr {
	c := &models.Copr{
		Name:           name,
		UserID:         owner.ID,
		Persistent:     persistent,
		AutoPrune:      true,
		AutoCreaterepo: true,
		CreatedOn:      f.now.Unix(),
	}
	require.NoError(f.t, f.store.CreateCopr(f.ctx, c))
	for _, mc := range chroots {
		require.NoError(f.t, f.store.CreateCoprChroot(f.ctx, &models.CoprChroot{CoprID: c.ID, MockChrootID: mc.ID}))
	}
	return f.reload(c)
}

func (f *fixture) reload(c *models.Copr) *models.Copr {
	loaded, err := f.store.GetCopr(f.ctx, c.ID)
	require.NoError(f.t, err)
	return loaded
}

// chrootState describes one build chroot of a fixture build
type chrootState struct {
	mc        *models.MockChroot
	status    models.BuildStatus
	startedOn int64
	gitHash   string
}

func (f *fixture) build(copr *models.Copr, user *models.User, pkgs string, chroots ...chrootState) *models.Build {
	b := &models.Build{
		CoprID:      copr.ID,
		UserID:      user.ID,
		Pkgs:        pkgs,
		Timeout:     models.DefaultBuildTimeout,
		SubmittedOn: f.now.Unix(),
	}
	b.PackageName = models.PackageNameFromSrc(b.SrcPkgName())
	for _, cs := range chroots {
		bc := &models.BuildChroot{MockChrootID: cs.mc.ID, MockChroot: cs.mc, Status: cs.status, GitHash: cs.gitHash}
		if cs.startedOn != 0 {
			started := cs.startedOn
			bc.StartedOn = &started
		}
		if models.IsFinished(cs.status) {
			ended := f.now.Unix()
			bc.EndedOn = &ended
		}
		b.Chroots = append(b.Chroots, bc)
	}
	require.NoError(f.t, f.store.CreateBuild(f.ctx, b))

	loaded, err := f.store.GetBuild(f.ctx, b.ID)
	require.NoError(f.t, err)
	return loaded
}

func (f *fixture) actions(actionType models.ActionType) []*models.Action {
	actions, err := f.l.Actions.GetMany(f.ctx, &actionType, nil)
	require.NoError(f.t, err)
	return actions
}

func (f *fixture) data(a *models.Action) map[string]interface{} {
	var out map[string]interface{}
	require.NoError(f.t, a.DecodeData(&out))
	return out
}

func (f *fixture) approve(copr *models.Copr, user *models.User, builder, admin models.PermissionState) {
	require.NoError(f.t, f.store.SavePermission(f.ctx, &models.CoprPermission{
		CoprID: copr.ID, UserID: user.ID, CoprBuilder: builder, CoprAdmin: admin,
	}))
}

func (f *fixture) blockingAction(copr *models.Copr) *models.Action {
	a := &models.Action{
		ActionType: models.ActionDelete,
		ObjectType: "copr",
		ObjectID:   copr.ID,
		OldValue:   copr.FullName(),
		CreatedOn:  f.now.Unix(),
	}
	require.NoError(f.t, f.store.CreateAction(f.ctx, a))
	return a
}
