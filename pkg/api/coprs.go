package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/copr-farm/copr/pkg/logging"
	"github.com/copr-farm/copr/pkg/logic"
	"github.com/copr-farm/copr/pkg/models"
	"github.com/copr-farm/copr/pkg/rbac"
)

// CreateCoprRequest is the body of POST /api/coprs
type CreateCoprRequest struct {
	Name           string   `json:"name"`
	Group          string   `json:"group,omitempty"`
	Chroots        []string `json:"chroots"`
	Description    string   `json:"description,omitempty"`
	Instructions   string   `json:"instructions,omitempty"`
	Repos          string   `json:"repos,omitempty"`
	Persistent     bool     `json:"persistent,omitempty"`
	AutoPrune      *bool    `json:"auto_prune,omitempty"`
	AutoCreaterepo *bool    `json:"auto_createrepo,omitempty"`
	UnlistedOnHP   bool     `json:"unlisted_on_hp,omitempty"`
	BuildEnableNet *bool    `json:"build_enable_net,omitempty"`
}

// UpdateCoprRequest is the body of PUT /api/coprs/{owner}/{name}; absent
// fields are left alone
type UpdateCoprRequest struct {
	Name           *string  `json:"name,omitempty"`
	Description    *string  `json:"description,omitempty"`
	Instructions   *string  `json:"instructions,omitempty"`
	Repos          *string  `json:"repos,omitempty"`
	Persistent     *bool    `json:"persistent,omitempty"`
	AutoPrune      *bool    `json:"auto_prune,omitempty"`
	AutoCreaterepo *bool    `json:"auto_createrepo,omitempty"`
	UnlistedOnHP   *bool    `json:"unlisted_on_hp,omitempty"`
	BuildEnableNet *bool    `json:"build_enable_net,omitempty"`
	ModuleName     *string  `json:"module_name,omitempty"`
	ModuleStream   *string  `json:"module_stream,omitempty"`
	Chroots        []string `json:"chroots,omitempty"`
}

// ForkRequest is the body of POST /api/coprs/{owner}/{name}/fork
type ForkRequest struct {
	Name  string `json:"name,omitempty"`
	Group string `json:"group,omitempty"`
}

// PlaygroundRequest is the body of PUT /api/coprs/{owner}/{name}/playground
type PlaygroundRequest struct {
	Playground bool `json:"playground"`
}

// PermissionChange sets the permissions of one user
type PermissionChange struct {
	Username    string                 `json:"username"`
	CoprBuilder models.PermissionState `json:"copr_builder"`
	CoprAdmin   models.PermissionState `json:"copr_admin"`
}

// UpdatePermissionsRequest is the body of PUT .../permissions
type UpdatePermissionsRequest struct {
	Permissions []PermissionChange `json:"permissions"`
}

// RequestPermissionsRequest is the body of POST .../permissions/request
type RequestPermissionsRequest struct {
	CoprBuilder models.PermissionState `json:"copr_builder"`
	CoprAdmin   models.PermissionState `json:"copr_admin"`
}

func listOptions(r *http.Request) (logic.ListOptions, error) {
	page, err := queryInt(r, "page", 1)
	if err != nil {
		return logic.ListOptions{}, err
	}
	return logic.ListOptions{
		Page:                page,
		IncludeDeleted:      queryBool(r, "include_deleted"),
		IncludeUnlistedOnHP: queryBool(r, "include_unlisted"),
		Descending:          queryBool(r, "desc"),
	}, nil
}

// ListCoprs returns one page of projects
func (h *Handler) ListCoprs(w http.ResponseWriter, r *http.Request) {
	opts, err := listOptions(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var page *logic.Page
	if group := r.URL.Query().Get("group"); group != "" {
		page, err = h.logic.Coprs.GetMultipleByGroup(r.Context(), group, opts)
	} else {
		page, err = h.logic.Coprs.GetMultiple(r.Context(), opts)
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPageResponse(page))
}

// ListOwnedCoprs returns projects of a user
func (h *Handler) ListOwnedCoprs(w http.ResponseWriter, r *http.Request) {
	opts, err := listOptions(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	page, err := h.logic.Coprs.GetMultipleOwnedBy(r.Context(), mux.Vars(r)["username"], opts)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPageResponse(page))
}

// ListAllowedCoprs returns projects a user was granted permissions in
func (h *Handler) ListAllowedCoprs(w http.ResponseWriter, r *http.Request) {
	opts, err := listOptions(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	page, err := h.logic.Coprs.GetMultipleAllowed(r.Context(), mux.Vars(r)["username"], opts)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPageResponse(page))
}

// SearchCoprs runs a project search
func (h *Handler) SearchCoprs(w http.ResponseWriter, r *http.Request) {
	coprs, err := h.logic.Coprs.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"coprs": toCoprResponses(coprs)})
}

// CreateCopr creates a project of the requesting user
func (h *Handler) CreateCopr(w http.ResponseWriter, r *http.Request) {
	var req CreateCoprRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	user := rbac.UserFromContext(r.Context())
	copr, err := h.logic.Coprs.Add(r.Context(), user, req.Name, logic.AddOptions{
		Chroots:        req.Chroots,
		GroupName:      req.Group,
		Description:    req.Description,
		Instructions:   req.Instructions,
		Repos:          req.Repos,
		Persistent:     req.Persistent,
		AutoPrune:      req.AutoPrune,
		AutoCreaterepo: req.AutoCreaterepo,
		UnlistedOnHP:   req.UnlistedOnHP,
		BuildEnableNet: req.BuildEnableNet,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.logger.Info("Project created", logging.Fields{"project": copr.FullName(), "user": user.Username})
	writeJSON(w, http.StatusCreated, toCoprResponse(copr))
}

// GetCopr returns a project together with what the requesting user may do in it
func (h *Handler) GetCopr(w http.ResponseWriter, r *http.Request) {
	copr, err := h.loadCopr(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := toCoprResponse(copr)
	if user := rbac.UserFromContext(r.Context()); user != nil {
		perm, err := h.logic.Permissions.Get(r.Context(), copr, user)
		if err != nil && !logic.IsCode(err, logic.CodeNotFound) {
			h.writeError(w, r, err)
			return
		}
		p := rbac.PermissionsFor(user, copr, perm)
		resp.Permissions = &p
	}
	writeJSON(w, http.StatusOK, resp)
}

// UpdateCopr changes project settings
func (h *Handler) UpdateCopr(w http.ResponseWriter, r *http.Request) {
	copr, err := h.loadCopr(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req UpdateCoprRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	copr, err = h.logic.Coprs.Update(r.Context(), rbac.UserFromContext(r.Context()), copr, logic.UpdateOptions{
		Name:           req.Name,
		Description:    req.Description,
		Instructions:   req.Instructions,
		Repos:          req.Repos,
		Persistent:     req.Persistent,
		AutoPrune:      req.AutoPrune,
		AutoCreaterepo: req.AutoCreaterepo,
		UnlistedOnHP:   req.UnlistedOnHP,
		BuildEnableNet: req.BuildEnableNet,
		ModuleName:     req.ModuleName,
		ModuleStream:   req.ModuleStream,
		Chroots:        req.Chroots,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCoprResponse(copr))
}

// DeleteCopr queues removal of a project
func (h *Handler) DeleteCopr(w http.ResponseWriter, r *http.Request) {
	copr, err := h.loadCopr(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	user := rbac.UserFromContext(r.Context())
	if err := h.logic.Coprs.DeleteUnsafe(r.Context(), user, copr); err != nil {
		h.writeError(w, r, err)
		return
	}

	h.logger.Info("Project deleted", logging.Fields{"project": copr.FullName(), "user": user.Username})
	writeJSON(w, http.StatusOK, messageResponse("Project %s has been deleted.", copr.FullName()))
}

// ForkCopr forks a project into the requesting user's namespace or a group
func (h *Handler) ForkCopr(w http.ResponseWriter, r *http.Request) {
	src, err := h.loadCopr(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req ForkRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	user := rbac.UserFromContext(r.Context())
	dst, err := h.logic.Coprs.Fork(r.Context(), user, src, req.Name, req.Group)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.logger.Info("Project forked", logging.Fields{"source": src.FullName(), "fork": dst.FullName()})
	writeJSON(w, http.StatusCreated, toCoprResponse(dst))
}

// SetPlayground marks or unmarks a project as playground
func (h *Handler) SetPlayground(w http.ResponseWriter, r *http.Request) {
	copr, err := h.loadCopr(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req PlaygroundRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.logic.Coprs.SetPlayground(r.Context(), rbac.UserFromContext(r.Context()), copr, req.Playground); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCoprResponse(copr))
}

// GetPermissions lists permissions granted in a project
func (h *Handler) GetPermissions(w http.ResponseWriter, r *http.Request) {
	copr, err := h.loadCopr(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	perms, err := h.logic.Permissions.GetForCopr(r.Context(), copr)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"permissions": perms})
}

// UpdatePermissions sets permissions of other users; all changes apply or none
func (h *Handler) UpdatePermissions(w http.ResponseWriter, r *http.Request) {
	copr, err := h.loadCopr(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req UpdatePermissionsRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	user := rbac.UserFromContext(r.Context())
	var updated []*models.CoprPermission
	err = h.logic.Tx(r.Context(), func(tx *logic.Logic) error {
		for _, change := range req.Permissions {
			target, err := tx.Users.Get(r.Context(), change.Username)
			if err != nil {
				return err
			}
			perm, err := tx.Permissions.UpdatePermissions(r.Context(), user, copr, target.ID, change.CoprBuilder, change.CoprAdmin)
			if err != nil {
				return err
			}
			updated = append(updated, perm)
		}
		return nil
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if updated == nil {
		updated = []*models.CoprPermission{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"permissions": updated})
}

// RequestPermissions lets the requesting user apply for permissions
func (h *Handler) RequestPermissions(w http.ResponseWriter, r *http.Request) {
	copr, err := h.loadCopr(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req RequestPermissionsRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	perm, err := h.logic.Permissions.UpdatePermissionsByApplier(r.Context(), rbac.UserFromContext(r.Context()), copr, req.CoprBuilder, req.CoprAdmin)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, perm)
}
