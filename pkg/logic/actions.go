package logic

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"

	"github.com/copr-farm/copr/pkg/models"
	"github.com/copr-farm/copr/pkg/rbac"
	"github.com/copr-farm/copr/pkg/store"
)

// ActionsLogic produces and reads the backend action queue
type ActionsLogic struct {
	l *Logic
}

// Get returns one action
func (a *ActionsLogic) Get(ctx context.Context, id int64) (*models.Action, error) {
	action, err := a.l.store.GetAction(ctx, id)
	if err != nil {
		return nil, notFoundAs(err, "Action %d does not exist.", id)
	}
	return action, nil
}

// GetMany returns actions, optionally narrowed by type and result
func (a *ActionsLogic) GetMany(ctx context.Context, actionType *models.ActionType, result *models.BackendResult) ([]*models.Action, error) {
	return a.l.store.ListActions(ctx, store.ActionFilter{Type: actionType, Result: result})
}

// GetWaiting returns the actions the backend still has to process, oldest
// first. Legal flags are handled by people, never by the backend.
func (a *ActionsLogic) GetWaiting(ctx context.Context) ([]*models.Action, error) {
	waiting := models.ResultWaiting
	legal := models.ActionLegalFlag
	return a.l.store.ListActions(ctx, store.ActionFilter{Result: &waiting, ExcludeType: &legal})
}

// GetByIDs returns the actions with the given ids
func (a *ActionsLogic) GetByIDs(ctx context.Context, ids []int64) ([]*models.Action, error) {
	if ids == nil {
		ids = []int64{}
	}
	return a.l.store.ListActions(ctx, store.ActionFilter{IDs: ids})
}

// UpdateStateFromDict applies a backend report. Only non-empty values are
// taken over, so a report can never put an action back to waiting.
func (a *ActionsLogic) UpdateStateFromDict(ctx context.Context, action *models.Action, upd models.ActionUpdate) error {
	if upd.Result != models.ResultWaiting {
		action.Result = upd.Result
	}
	if upd.Message != "" {
		action.Message = upd.Message
	}
	if upd.EndedOn != 0 {
		ended := upd.EndedOn
		action.EndedOn = &ended
	}
	return a.l.store.UpdateAction(ctx, action)
}

func (a *ActionsLogic) enqueue(ctx context.Context, action *models.Action, data interface{}) (*models.Action, error) {
	if data != nil {
		if err := action.SetData(data); err != nil {
			return nil, err
		}
	}
	if action.CreatedOn == 0 {
		action.CreatedOn = a.l.now().Unix()
	}
	if err := a.l.store.CreateAction(ctx, action); err != nil {
		return nil, err
	}
	return action, nil
}

// SendCreaterepo asks the backend to regenerate repodata of the given chroots
func (a *ActionsLogic) SendCreaterepo(ctx context.Context, copr *models.Copr, chroots []string) (*models.Action, error) {
	if chroots == nil {
		chroots = []string{}
	}
	return a.enqueue(ctx, &models.Action{
		ActionType: models.ActionCreaterepo,
		ObjectType: "None",
		ObjectID:   0,
		OldValue:   "",
		NewValue:   "",
	}, map[string]interface{}{
		"username":    copr.OwnerName(),
		"projectname": copr.Name,
		"chroots":     chroots,
	})
}

// SendDeleteBuild asks the backend to remove build results. Skipped chroots
// have no results; when nothing is left, or results of an old-style build
// cannot be located, no action is created and nil is returned.
func (a *ActionsLogic) SendDeleteBuild(ctx context.Context, build *models.Build, copr *models.Copr) (*models.Action, error) {
	chroots := []string{}
	for _, ch := range build.Chroots {
		if ch.Status != models.StatusSkipped {
			chroots = append(chroots, ch.Name())
		}
	}
	if len(chroots) == 0 {
		return nil, nil
	}

	data := map[string]interface{}{
		"username":    copr.OwnerName(),
		"projectname": copr.Name,
		"chroots":     chroots,
	}
	if build.IsOlderResultsNamingUsed() {
		src := build.SrcPkgName()
		if src == "" {
			return nil, nil
		}
		data["src_pkg_name"] = src
	} else {
		data["result_dir_name"] = build.ResultDirName()
	}

	return a.enqueue(ctx, &models.Action{
		ActionType: models.ActionDelete,
		ObjectType: "build",
		ObjectID:   build.ID,
		OldValue:   copr.FullName(),
	}, data)
}

// SendCancelBuild asks the backend to stop the workers of a build
func (a *ActionsLogic) SendCancelBuild(ctx context.Context, build *models.Build) (*models.Action, error) {
	taskIDs := []string{}
	for _, ch := range build.Chroots {
		if models.IsActive(ch.Status) {
			taskIDs = append(taskIDs, ch.TaskID())
		}
	}
	return a.enqueue(ctx, &models.Action{
		ActionType: models.ActionCancelBuild,
		ObjectType: "build",
		ObjectID:   build.ID,
	}, map[string]interface{}{
		"build_id": build.ID,
		"task_ids": taskIDs,
	})
}

// SendDeleteChroot asks the backend to remove all results of a project chroot
func (a *ActionsLogic) SendDeleteChroot(ctx context.Context, cc *models.CoprChroot, copr *models.Copr) (*models.Action, error) {
	return a.enqueue(ctx, &models.Action{
		ActionType: models.ActionDeleteChroot,
		ObjectType: "chroot",
		ObjectID:   0,
		OldValue:   copr.FullName(),
	}, map[string]interface{}{
		"ownername":   copr.OwnerName(),
		"projectname": copr.Name,
		"chrootname":  cc.Name(),
	})
}

// ChrootFileURL is the API path a project chroot file is served from
func ChrootFileURL(copr *models.Copr, chroot, file string) string {
	return fmt.Sprintf("/api/coprs/%s/%s/chroots/%s/%s", copr.OwnerName(), copr.Name, chroot, file)
}

// SendUpdateComps tells the backend the comps file of a project chroot changed
func (a *ActionsLogic) SendUpdateComps(ctx context.Context, cc *models.CoprChroot, copr *models.Copr) (*models.Action, error) {
	return a.enqueue(ctx, &models.Action{
		ActionType: models.ActionUpdateComps,
		ObjectType: "copr_chroot",
		OldValue:   copr.FullName(),
	}, map[string]interface{}{
		"ownername":     copr.OwnerName(),
		"projectname":   copr.Name,
		"chroot":        cc.Name(),
		"comps_present": len(cc.CompsZlib) > 0,
		"url_path":      ChrootFileURL(copr, cc.Name(), "comps"),
	})
}

// SendUpdateModuleMD tells the backend the module metadata of a project chroot changed
func (a *ActionsLogic) SendUpdateModuleMD(ctx context.Context, cc *models.CoprChroot, copr *models.Copr) (*models.Action, error) {
	return a.enqueue(ctx, &models.Action{
		ActionType: models.ActionUpdateModuleMD,
		ObjectType: "copr_chroot",
		OldValue:   copr.FullName(),
	}, map[string]interface{}{
		"ownername":         copr.OwnerName(),
		"projectname":       copr.Name,
		"chroot":            cc.Name(),
		"module_md_present": len(cc.ModuleMDZlib) > 0,
		"url_path":          ChrootFileURL(copr, cc.Name(), "module_md"),
	})
}

// SendCreateGPGKey asks the backend to generate the signing key of a project
func (a *ActionsLogic) SendCreateGPGKey(ctx context.Context, copr *models.Copr) (*models.Action, error) {
	return a.enqueue(ctx, &models.Action{
		ActionType: models.ActionGenGPGKey,
		ObjectType: "copr",
		ObjectID:   copr.ID,
	}, map[string]interface{}{
		"username":    copr.OwnerName(),
		"projectname": copr.Name,
	})
}

// SendRawhideToRelease asks the backend to copy rawhide results into a new release chroot
func (a *ActionsLogic) SendRawhideToRelease(ctx context.Context, data map[string]interface{}) (*models.Action, error) {
	return a.enqueue(ctx, &models.Action{
		ActionType: models.ActionRawhideToRelease,
		ObjectType: "None",
	}, data)
}

// SendForkCopr asks the backend to copy results of src into dst.
// buildsMap maps source build ids to fork build ids.
func (a *ActionsLogic) SendForkCopr(ctx context.Context, src, dst *models.Copr, buildsMap map[string]string) (*models.Action, error) {
	if buildsMap == nil {
		buildsMap = map[string]string{}
	}
	return a.enqueue(ctx, &models.Action{
		ActionType: models.ActionFork,
		ObjectType: "copr",
		ObjectID:   dst.ID,
		OldValue:   src.FullName(),
		NewValue:   dst.FullName(),
	}, map[string]interface{}{
		"user":       dst.OwnerName(),
		"copr":       dst.Name,
		"builds_map": buildsMap,
	})
}

// SendBuildModule asks the backend to build a module in the active chroots of copr
func (a *ActionsLogic) SendBuildModule(ctx context.Context, user *models.User, copr *models.Copr, modulemd []byte) (*models.Action, error) {
	perm, err := a.l.permissionOf(ctx, user, copr)
	if err != nil {
		return nil, err
	}
	if !rbac.CanBuildIn(user, copr, perm) {
		return nil, InsufficientRights("You don't have permissions to build in this copr.")
	}

	chroots := copr.ActiveChrootNames()
	if chroots == nil {
		chroots = []string{}
	}
	return a.enqueue(ctx, &models.Action{
		ActionType: models.ActionBuildModule,
		ObjectType: "module",
		ObjectID:   0,
		OldValue:   "",
		NewValue:   "",
	}, map[string]interface{}{
		"ownername":    copr.OwnerName(),
		"projectname":  copr.Name,
		"chroots":      chroots,
		"modulemd_b64": base64.StdEncoding.EncodeToString(modulemd),
	})
}

// SendForkBuildOnDistGit records that a forked build reuses the dist-git
// import of the original. The backend has nothing to do, so the action is
// created as already succeeded.
func (a *ActionsLogic) SendForkBuildOnDistGit(ctx context.Context, fbuild *models.Build, bc *models.BuildChroot, distGitURL string) (*models.Action, error) {
	ended := a.l.now().Unix()
	return a.enqueue(ctx, &models.Action{
		ActionType: models.ActionFork,
		ObjectType: "build",
		ObjectID:   fbuild.ID,
		OldValue:   strconv.FormatInt(bc.MockChrootID, 10),
		Result:     models.ResultSuccess,
		EndedOn:    &ended,
	}, map[string]interface{}{
		"old_dist_git_url": distGitURL,
		"old_git_hash":     bc.GitHash,
	})
}

// GetForkBuildOnDistGit finds the action created by SendForkBuildOnDistGit
func (a *ActionsLogic) GetForkBuildOnDistGit(ctx context.Context, fbuild *models.Build, mockChrootID int64) (*models.Action, error) {
	fork := models.ActionFork
	actions, err := a.l.store.ListActions(ctx, store.ActionFilter{
		Type:       &fork,
		ObjectType: "build",
		ObjectID:   &fbuild.ID,
	})
	if err != nil {
		return nil, err
	}
	want := strconv.FormatInt(mockChrootID, 10)
	for _, action := range actions {
		if action.OldValue == want {
			return action, nil
		}
	}
	return nil, NotFound("No fork action for build %d in chroot %d.", fbuild.ID, mockChrootID)
}
