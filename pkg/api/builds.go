package api

import (
	"net/http"

	"go.opentelemetry.io/otel/attribute"

	"github.com/copr-farm/copr/pkg/logging"
	"github.com/copr-farm/copr/pkg/logic"
	"github.com/copr-farm/copr/pkg/rbac"
	"github.com/copr-farm/copr/pkg/tracing"
)

// CreateBuildRequest is the body of POST .../builds
type CreateBuildRequest struct {
	Pkgs       string   `json:"pkgs"`
	Repos      string   `json:"repos,omitempty"`
	Timeout    int      `json:"timeout,omitempty"`
	Chroots    []string `json:"chroots,omitempty"`
	EnableNet  *bool    `json:"enable_net,omitempty"`
	SkipImport bool     `json:"skip_import,omitempty"`
}

// CreateModuleBuildRequest is the body of POST .../module_builds
type CreateModuleBuildRequest struct {
	ModuleMD string `json:"modulemd"`
}

// ListBuilds returns builds of a project, newest first
func (h *Handler) ListBuilds(w http.ResponseWriter, r *http.Request) {
	copr, err := h.loadCopr(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit", 100)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	builds, err := h.logic.Builds.GetMultipleByCopr(r.Context(), copr, limit, offset)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := make([]BuildResponse, 0, len(builds))
	for _, b := range builds {
		out = append(out, toBuildResponse(b))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"builds": out})
}

// CreateBuild submits a build into a project
func (h *Handler) CreateBuild(w http.ResponseWriter, r *http.Request) {
	copr, err := h.loadCopr(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req CreateBuildRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	user := rbac.UserFromContext(r.Context())
	build, err := h.logic.Builds.Add(r.Context(), user, copr, req.Pkgs, logic.BuildOptions{
		Repos:      req.Repos,
		Timeout:    req.Timeout,
		Chroots:    req.Chroots,
		EnableNet:  req.EnableNet,
		SkipImport: req.SkipImport,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	tracing.AddEvent(r.Context(), "build.submitted",
		attribute.Int64("build_id", build.ID),
		attribute.String("project", copr.FullName()),
	)
	h.logger.Info("Build submitted", logging.Fields{
		"build_id": build.ID,
		"project":  copr.FullName(),
		"user":     user.Username,
		"chroots":  build.ChrootNames(),
	})
	writeJSON(w, http.StatusCreated, toBuildResponse(build))
}

// CreateModuleBuild queues a module build in the active chroots of a project
func (h *Handler) CreateModuleBuild(w http.ResponseWriter, r *http.Request) {
	copr, err := h.loadCopr(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req CreateModuleBuildRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.ModuleMD == "" {
		h.writeError(w, r, logic.MalformedArgument("No modulemd given."))
		return
	}

	action, err := h.logic.Actions.SendBuildModule(r.Context(), rbac.UserFromContext(r.Context()), copr, []byte(req.ModuleMD))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, action)
}

// GetBuild returns a build
func (h *Handler) GetBuild(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	build, err := h.logic.Builds.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBuildResponse(build))
}

// DeleteBuild removes a finished build and queues deletion of its results
func (h *Handler) DeleteBuild(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	build, err := h.logic.Builds.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.logic.Builds.DeleteBuild(r.Context(), rbac.UserFromContext(r.Context()), build); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse("Build %d has been deleted.", id))
}

// CancelBuild stops a build that has not finished yet
func (h *Handler) CancelBuild(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	build, err := h.logic.Builds.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.logic.Builds.Cancel(r.Context(), rbac.UserFromContext(r.Context()), build); err != nil {
		h.writeError(w, r, err)
		return
	}
	build, err = h.logic.Builds.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBuildResponse(build))
}
