package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/copr-farm/copr/pkg/logging"
	"github.com/copr-farm/copr/pkg/logic"
	"github.com/copr-farm/copr/pkg/models"
)

// BackendTask is a build chroot handed to the backend
type BackendTask struct {
	TaskID        string `json:"task_id"`
	BuildID       int64  `json:"build_id"`
	Chroot        string `json:"chroot"`
	ProjectOwner  string `json:"project_owner"`
	ProjectName   string `json:"project_name"`
	Submitter     string `json:"submitter"`
	Pkgs          string `json:"pkgs"`
	PackageName   string `json:"package_name"`
	Repos         string `json:"repos"`
	BuildrootPkgs string `json:"buildroot_pkgs"`
	Timeout       int    `json:"timeout"`
	EnableNet     bool   `json:"enable_net"`
	GitHash       string `json:"git_hash,omitempty"`
	Status        string `json:"status"`
}

// ImportTask is a build waiting for its dist-git import
type ImportTask struct {
	BuildID      int64    `json:"build_id"`
	ProjectOwner string   `json:"project_owner"`
	ProjectName  string   `json:"project_name"`
	Pkgs         string   `json:"pkgs"`
	PackageName  string   `json:"package_name"`
	Chroots      []string `json:"chroots"`
}

// BackendUpdateRequest is what the backend reports after executing work
type BackendUpdateRequest struct {
	Actions []models.ActionUpdate      `json:"actions"`
	Builds  []models.BuildChrootUpdate `json:"builds"`
}

// RejectedBuild is a build chroot update that could not be applied
type RejectedBuild struct {
	ID      int64  `json:"id"`
	Chroot  string `json:"chroot"`
	Message string `json:"message"`
}

// BackendUpdateResponse lists what was applied
type BackendUpdateResponse struct {
	UpdatedActionsIDs     []int64         `json:"updated_actions_ids"`
	NonExistingActionsIDs []int64         `json:"non_existing_actions_ids"`
	UpdatedBuildsIDs      []int64         `json:"updated_builds_ids"`
	NonExistingBuildsIDs  []int64         `json:"non_existing_builds_ids"`
	RejectedBuilds        []RejectedBuild `json:"rejected_builds"`
}

// StartingBuildRequest is sent by the backend right before it starts a build chroot
type StartingBuildRequest struct {
	BuildID int64  `json:"build_id"`
	Chroot  string `json:"chroot"`
}

// taskLoader resolves builds, projects and submitters once per request
type taskLoader struct {
	logic  *logic.Logic
	builds map[int64]*models.Build
	coprs  map[int64]*models.Copr
	users  map[int64]*models.User
}

func newTaskLoader(l *logic.Logic) *taskLoader {
	return &taskLoader{
		logic:  l,
		builds: make(map[int64]*models.Build),
		coprs:  make(map[int64]*models.Copr),
		users:  make(map[int64]*models.User),
	}
}

func (t *taskLoader) load(ctx context.Context, buildID int64) (*models.Build, *models.Copr, *models.User, error) {
	build, ok := t.builds[buildID]
	if !ok {
		var err error
		if build, err = t.logic.Builds.Get(ctx, buildID); err != nil {
			return nil, nil, nil, err
		}
		t.builds[buildID] = build
	}
	copr, ok := t.coprs[build.CoprID]
	if !ok {
		var err error
		if copr, err = t.logic.Coprs.GetByID(ctx, build.CoprID); err != nil {
			return nil, nil, nil, err
		}
		t.coprs[build.CoprID] = copr
	}
	user, ok := t.users[build.UserID]
	if !ok {
		var err error
		if user, err = t.logic.Users.GetByID(ctx, build.UserID); err != nil {
			return nil, nil, nil, err
		}
		t.users[build.UserID] = user
	}
	return build, copr, user, nil
}

func (t *taskLoader) task(ctx context.Context, bc *models.BuildChroot) (*BackendTask, error) {
	build, copr, user, err := t.load(ctx, bc.BuildID)
	if err != nil {
		return nil, err
	}
	task := &BackendTask{
		TaskID:       bc.TaskID(),
		BuildID:      build.ID,
		Chroot:       bc.Name(),
		ProjectOwner: copr.OwnerName(),
		ProjectName:  copr.Name,
		Submitter:    user.Username,
		Pkgs:         build.Pkgs,
		PackageName:  build.PackageName,
		Repos:        strings.TrimSpace(copr.Repos + " " + build.Repos),
		Timeout:      build.Timeout,
		EnableNet:    build.EnableNet,
		GitHash:      bc.GitHash,
		Status:       bc.Status.String(),
	}
	for _, cc := range copr.Chroots {
		if cc.MockChrootID == bc.MockChrootID {
			task.BuildrootPkgs = cc.BuildrootPkgs
			task.Repos = strings.TrimSpace(task.Repos + " " + cc.Repos)
		}
	}
	return task, nil
}

// BackendWaiting returns waiting actions and the build task queue
func (h *Handler) BackendWaiting(w http.ResponseWriter, r *http.Request) {
	actions, err := h.logic.Actions.GetWaiting(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	queue, err := h.logic.Builds.GetBuildTaskQueue(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	loader := newTaskLoader(h.logic)
	tasks := make([]*BackendTask, 0, len(queue))
	for _, bc := range queue {
		task, err := loader.task(r.Context(), bc)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		tasks = append(tasks, task)
	}
	if actions == nil {
		actions = []*models.Action{}
	}

	h.logger.Debug("Backend polled", logging.Fields{"actions": len(actions), "builds": len(tasks)})
	writeJSON(w, http.StatusOK, map[string]interface{}{"actions": actions, "builds": tasks})
}

// BackendImporting returns builds waiting for their dist-git import
func (h *Handler) BackendImporting(w http.ResponseWriter, r *http.Request) {
	queue, err := h.logic.Builds.GetBuildImportingQueue(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	loader := newTaskLoader(h.logic)
	byBuild := make(map[int64]*ImportTask)
	tasks := make([]*ImportTask, 0)
	for _, bc := range queue {
		if task, ok := byBuild[bc.BuildID]; ok {
			task.Chroots = append(task.Chroots, bc.Name())
			continue
		}
		build, copr, _, err := loader.load(r.Context(), bc.BuildID)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		task := &ImportTask{
			BuildID:      build.ID,
			ProjectOwner: copr.OwnerName(),
			ProjectName:  copr.Name,
			Pkgs:         build.Pkgs,
			PackageName:  build.PackageName,
			Chroots:      []string{bc.Name()},
		}
		byBuild[build.ID] = task
		tasks = append(tasks, task)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"builds": tasks})
}

// BackendGetAction returns a single action
func (h *Handler) BackendGetAction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	action, err := h.logic.Actions.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, action)
}

// BackendUpdate applies the results reported by the backend. Unknown ids
// and refused state changes are reported back instead of failing the batch.
func (h *Handler) BackendUpdate(w http.ResponseWriter, r *http.Request) {
	var req BackendUpdateRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := BackendUpdateResponse{
		UpdatedActionsIDs:     []int64{},
		NonExistingActionsIDs: []int64{},
		UpdatedBuildsIDs:      []int64{},
		NonExistingBuildsIDs:  []int64{},
		RejectedBuilds:        []RejectedBuild{},
	}

	for _, upd := range req.Actions {
		action, err := h.logic.Actions.Get(r.Context(), upd.ID)
		if logic.IsCode(err, logic.CodeNotFound) {
			resp.NonExistingActionsIDs = append(resp.NonExistingActionsIDs, upd.ID)
			continue
		}
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		if err := h.logic.Actions.UpdateStateFromDict(r.Context(), action, upd); err != nil {
			h.writeError(w, r, err)
			return
		}
		resp.UpdatedActionsIDs = append(resp.UpdatedActionsIDs, upd.ID)
	}

	for _, upd := range req.Builds {
		err := h.logic.Builds.UpdateStateFromDict(r.Context(), upd)
		switch logic.GetCode(err) {
		case logic.CodeNotFound:
			resp.NonExistingBuildsIDs = append(resp.NonExistingBuildsIDs, upd.BuildID)
			continue
		case logic.CodeMalformedArgument:
			h.logger.Warn("Rejected build update", logging.Fields{
				"build_id": upd.BuildID,
				"chroot":   upd.Chroot,
				"error":    err.Error(),
			})
			resp.RejectedBuilds = append(resp.RejectedBuilds, RejectedBuild{ID: upd.BuildID, Chroot: upd.Chroot, Message: err.Error()})
			continue
		}
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		resp.UpdatedBuildsIDs = append(resp.UpdatedBuildsIDs, upd.BuildID)
	}

	h.logger.Info("Backend update applied", logging.Fields{
		"actions":         len(resp.UpdatedActionsIDs),
		"builds":          len(resp.UpdatedBuildsIDs),
		"missing_actions": len(resp.NonExistingActionsIDs),
		"missing_builds":  len(resp.NonExistingBuildsIDs),
		"rejected_builds": len(resp.RejectedBuilds),
	})
	writeJSON(w, http.StatusOK, resp)
}

// BackendStartingBuild marks a build chroot running. can_start is false
// when the build was canceled meanwhile.
func (h *Handler) BackendStartingBuild(w http.ResponseWriter, r *http.Request) {
	var req StartingBuildRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	canStart, err := h.logic.Builds.StartBuild(r.Context(), req.BuildID, req.Chroot)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"can_start": canStart})
}

// ListActions lists actions, optionally filtered by ?type= and ?result=
func (h *Handler) ListActions(w http.ResponseWriter, r *http.Request) {
	var actionType *models.ActionType
	if v := r.URL.Query().Get("type"); v != "" {
		t, err := models.ParseActionType(v)
		if err != nil {
			h.writeError(w, r, logic.MalformedArgument("%v", err))
			return
		}
		actionType = &t
	}
	var result *models.BackendResult
	if v := r.URL.Query().Get("result"); v != "" {
		res, err := models.ParseBackendResult(v)
		if err != nil {
			h.writeError(w, r, logic.MalformedArgument("%v", err))
			return
		}
		result = &res
	}

	actions, err := h.logic.Actions.GetMany(r.Context(), actionType, result)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if actions == nil {
		actions = []*models.Action{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"actions": actions})
}
