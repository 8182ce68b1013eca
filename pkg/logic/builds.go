package logic

import (
	"context"
	"fmt"
	"strings"

	"github.com/copr-farm/copr/pkg/models"
	"github.com/copr-farm/copr/pkg/rbac"
	"github.com/copr-farm/copr/pkg/store"
)

// BuildsLogic manages builds and the build task queues read by the backend
type BuildsLogic struct {
	l *Logic
}

// BuildOptions are the optional settings of a new build
type BuildOptions struct {
	Repos   string
	Timeout int
	// Chroots limits the build to these chroot names; nil means all active chroots
	Chroots   []string
	EnableNet *bool
	// SkipImport puts the build straight into the task queue instead of
	// waiting for the dist-git import
	SkipImport bool
}

// Add submits a build of pkgs into copr
func (b *BuildsLogic) Add(ctx context.Context, user *models.User, copr *models.Copr, pkgs string, opts BuildOptions) (*models.Build, error) {
	perm, err := b.l.permissionOf(ctx, user, copr)
	if err != nil {
		return nil, err
	}
	if !rbac.CanBuildIn(user, copr, perm) {
		return nil, InsufficientRights("You don't have permissions to build in this copr.")
	}
	if err := b.l.Coprs.RaiseIfUnfinishedBlockingAction(ctx, copr,
		"Can't build while there is an operation in progress: %s"); err != nil {
		return nil, err
	}

	fields := strings.Fields(pkgs)
	if len(fields) == 0 {
		return nil, MalformedArgument("No source package given.")
	}
	if len(fields) > 1 || fields[0] != pkgs {
		return nil, MalformedArgument("Trying to create a build using src_pkg with bad characters. Forgot to split?")
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = models.DefaultBuildTimeout
	}
	if timeout > b.l.cfg.MaxBuildTimeout {
		timeout = b.l.cfg.MaxBuildTimeout
	}

	build := &models.Build{
		CoprID:      copr.ID,
		UserID:      user.ID,
		Pkgs:        pkgs,
		Repos:       opts.Repos,
		Timeout:     timeout,
		SubmittedOn: b.l.now().Unix(),
		EnableNet:   boolOr(opts.EnableNet, copr.BuildEnableNet),
	}
	build.PackageName = models.PackageNameFromSrc(build.SrcPkgName())

	status := models.StatusImporting
	if opts.SkipImport {
		status = models.StatusPending
	}

	var requested map[string]bool
	if opts.Chroots != nil {
		requested = make(map[string]bool, len(opts.Chroots))
		for _, name := range opts.Chroots {
			requested[name] = true
		}
	}
	for _, cc := range copr.ActiveChroots() {
		if requested != nil && !requested[cc.Name()] {
			continue
		}
		build.Chroots = append(build.Chroots, &models.BuildChroot{
			MockChrootID: cc.MockChrootID,
			MockChroot:   cc.MockChroot,
			Status:       status,
		})
	}
	if len(build.Chroots) == 0 {
		return nil, MalformedArgument("No active chroot selected for the build.")
	}

	err = b.l.Tx(ctx, func(tx *Logic) error {
		return tx.store.CreateBuild(ctx, build)
	})
	if err != nil {
		return nil, err
	}
	return build, nil
}

// Get returns one build with its chroots
func (b *BuildsLogic) Get(ctx context.Context, id int64) (*models.Build, error) {
	build, err := b.l.store.GetBuild(ctx, id)
	if err != nil {
		return nil, notFoundAs(err, "Build %d does not exist.", id)
	}
	return build, nil
}

// GetMultipleByCopr lists builds of a project, newest first
func (b *BuildsLogic) GetMultipleByCopr(ctx context.Context, copr *models.Copr, limit, offset int) ([]*models.Build, error) {
	builds, err := b.l.store.ListBuilds(ctx, store.BuildFilter{CoprID: &copr.ID, Limit: limit, Offset: offset})
	if err != nil {
		return nil, err
	}
	if builds == nil {
		builds = []*models.Build{}
	}
	return builds, nil
}

// GetBuildImportingQueue returns build chroots waiting for the dist-git import
func (b *BuildsLogic) GetBuildImportingQueue(ctx context.Context) ([]*models.BuildChroot, error) {
	return b.l.store.ListBuildChrootsByStatus(ctx, models.StatusImporting)
}

// GetBuildTaskQueue returns build chroots the backend should build: pending
// ones and running ones that exceeded the maximal build time without ending
func (b *BuildsLogic) GetBuildTaskQueue(ctx context.Context) ([]*models.BuildChroot, error) {
	return b.l.store.ListBuildTaskQueue(ctx, b.l.now().Unix()-int64(b.l.cfg.MaxBuildTimeout))
}

// MarkAsFailed fails every unfinished chroot of a build. Succeeded builds
// are returned unchanged.
func (b *BuildsLogic) MarkAsFailed(ctx context.Context, id int64) (*models.Build, error) {
	var build *models.Build
	err := b.l.Tx(ctx, func(tx *Logic) error {
		var err error
		if build, err = tx.Builds.Get(ctx, id); err != nil {
			return err
		}
		if build.Status() == models.StatusSucceeded {
			return nil
		}
		now := tx.now().Unix()
		for _, ch := range build.Chroots {
			if models.IsFinished(ch.Status) {
				continue
			}
			ch.Status = models.StatusFailed
			ch.EndedOn = &now
			if err := tx.store.UpdateBuildChroot(ctx, ch); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return build, nil
}

// Cancel stops a build that has not finished yet
func (b *BuildsLogic) Cancel(ctx context.Context, user *models.User, build *models.Build) error {
	copr, err := b.l.Coprs.GetByID(ctx, build.CoprID)
	if err != nil {
		return err
	}
	perm, err := b.l.permissionOf(ctx, user, copr)
	if err != nil {
		return err
	}
	if user == nil || (user.ID != build.UserID && !rbac.CanEdit(user, copr, perm)) {
		return InsufficientRights("You are not allowed to cancel this build.")
	}
	if build.Canceled || build.Finished() {
		return MalformedArgument("Cannot cancel build %d, it is already finished.", build.ID)
	}

	return b.l.Tx(ctx, func(tx *Logic) error {
		if _, err := tx.Actions.SendCancelBuild(ctx, build); err != nil {
			return err
		}
		build.Canceled = true
		if err := tx.store.UpdateBuild(ctx, build); err != nil {
			return err
		}
		now := tx.now().Unix()
		for _, ch := range build.Chroots {
			if models.IsFinished(ch.Status) {
				continue
			}
			ch.Status = models.StatusCanceled
			ch.EndedOn = &now
			if err := tx.store.UpdateBuildChroot(ctx, ch); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteBuild removes a finished build and queues removal of its results
func (b *BuildsLogic) DeleteBuild(ctx context.Context, user *models.User, build *models.Build) error {
	copr, err := b.l.Coprs.GetByID(ctx, build.CoprID)
	if err != nil {
		return err
	}
	perm, err := b.l.permissionOf(ctx, user, copr)
	if err != nil {
		return err
	}
	if !rbac.CanEdit(user, copr, perm) {
		return InsufficientRights("You are not allowed to delete build `%d`.", build.ID)
	}
	if copr.Persistent && !user.Admin {
		return InsufficientRights("You are not allowed to delete builds in a persistent project.")
	}
	if !build.Finished() {
		return ActionInProgress(nil, "You can not delete build which is not finished.")
	}

	return b.l.Tx(ctx, func(tx *Logic) error {
		if _, err := tx.Actions.SendDeleteBuild(ctx, build, copr); err != nil {
			return err
		}
		return tx.store.DeleteBuild(ctx, build.ID)
	})
}

func findChroot(build *models.Build, name string) *models.BuildChroot {
	for _, ch := range build.Chroots {
		if ch.Name() == name {
			return ch
		}
	}
	return nil
}

// UpdateStateFromDict applies a backend report about one build chroot
func (b *BuildsLogic) UpdateStateFromDict(ctx context.Context, upd models.BuildChrootUpdate) error {
	return b.l.Tx(ctx, func(tx *Logic) error {
		build, err := tx.Builds.Get(ctx, upd.BuildID)
		if err != nil {
			return err
		}
		ch := findChroot(build, upd.Chroot)
		if ch == nil {
			return NotFound("Build %d has no chroot %s.", upd.BuildID, upd.Chroot)
		}
		if build.Canceled && upd.Status != models.StatusCanceled {
			return nil
		}
		if err := models.ValidateTransition(ch.Status, upd.Status); err != nil {
			return MalformedArgument("Build %d in %s: %v", build.ID, upd.Chroot, err)
		}

		ch.Status = upd.Status
		if upd.StartedOn != 0 {
			started := upd.StartedOn
			ch.StartedOn = &started
		}
		if upd.EndedOn != 0 {
			ended := upd.EndedOn
			ch.EndedOn = &ended
		}
		if upd.GitHash != "" {
			ch.GitHash = upd.GitHash
		}
		return tx.store.UpdateBuildChroot(ctx, ch)
	})
}

// StartBuild marks a build chroot as running. It reports false when the
// build was canceled in the meantime and the backend must not start it.
func (b *BuildsLogic) StartBuild(ctx context.Context, buildID int64, chroot string) (bool, error) {
	canStart := false
	err := b.l.Tx(ctx, func(tx *Logic) error {
		build, err := tx.Builds.Get(ctx, buildID)
		if err != nil {
			return err
		}
		if build.Canceled {
			return nil
		}
		ch := findChroot(build, chroot)
		if ch == nil {
			return NotFound("Build %d has no chroot %s.", buildID, chroot)
		}
		if err := models.ValidateTransition(ch.Status, models.StatusRunning); err != nil {
			return MalformedArgument("Build %d in %s: %v", buildID, chroot, err)
		}
		now := tx.now().Unix()
		ch.Status = models.StatusRunning
		ch.StartedOn = &now
		ch.EndedOn = nil
		canStart = true
		return tx.store.UpdateBuildChroot(ctx, ch)
	})
	return canStart, err
}

// forkBuilds copies successful builds of src into dst and returns the map of
// source result directories to fork result directories
func (b *BuildsLogic) forkBuilds(ctx context.Context, user *models.User, src, dst *models.Copr) (map[string]string, error) {
	builds, err := b.l.store.ListBuilds(ctx, store.BuildFilter{CoprID: &src.ID})
	if err != nil {
		return nil, err
	}

	enabled := make(map[int64]bool, len(dst.Chroots))
	for _, cc := range dst.Chroots {
		enabled[cc.MockChrootID] = true
	}

	buildsMap := make(map[string]string)
	now := b.l.now().Unix()
	// oldest first, so forks keep the original order
	for i := len(builds) - 1; i >= 0; i-- {
		old := builds[i]
		fork := &models.Build{
			CoprID:      dst.ID,
			UserID:      user.ID,
			Pkgs:        old.Pkgs,
			Repos:       old.Repos,
			Timeout:     old.Timeout,
			SubmittedOn: now,
			PackageName: old.PackageName,
			EnableNet:   old.EnableNet,
		}
		for _, ch := range old.Chroots {
			if ch.Status != models.StatusSucceeded || !enabled[ch.MockChrootID] {
				continue
			}
			ended := now
			fork.Chroots = append(fork.Chroots, &models.BuildChroot{
				MockChrootID: ch.MockChrootID,
				MockChroot:   ch.MockChroot,
				Status:       models.StatusForked,
				EndedOn:      &ended,
				GitHash:      ch.GitHash,
			})
		}
		if len(fork.Chroots) == 0 {
			continue
		}

		if err := b.l.store.CreateBuild(ctx, fork); err != nil {
			return nil, err
		}
		buildsMap[old.ResultDirName()] = fork.ResultDirName()

		for _, ch := range fork.Chroots {
			if ch.GitHash == "" {
				continue
			}
			url := fmt.Sprintf("%s/%s/%s.git", strings.TrimRight(b.l.cfg.DistGitURL, "/"), src.FullName(), old.PackageName)
			if _, err := b.l.Actions.SendForkBuildOnDistGit(ctx, fork, ch, url); err != nil {
				return nil, err
			}
		}
	}
	return buildsMap, nil
}
