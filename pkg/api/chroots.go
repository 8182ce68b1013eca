package api

import (
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/copr-farm/copr/pkg/logging"
	"github.com/copr-farm/copr/pkg/logic"
	"github.com/copr-farm/copr/pkg/models"
	"github.com/copr-farm/copr/pkg/rbac"
)

// CoprChrootRequest is the body of POST and PUT on project chroots
type CoprChrootRequest struct {
	Name          string  `json:"name,omitempty"`
	BuildrootPkgs *string `json:"buildroot_pkgs,omitempty"`
	Repos         *string `json:"repos,omitempty"`
}

// MockChrootRequest is the body of the admin mock chroot routes
type MockChrootRequest struct {
	Name     string `json:"name,omitempty"`
	IsActive *bool  `json:"is_active,omitempty"`
}

// RawhideToReleaseRequest is the body of POST /api/admin/rawhide_to_release
type RawhideToReleaseRequest struct {
	RawhideChroot string `json:"rawhide_chroot"`
	DestChroot    string `json:"dest_chroot"`
}

// chrootFile is a file attached to a project chroot
type chrootFile struct {
	route       string
	defaultName string
	contentType string
	name        func(cc *models.CoprChroot) string
	content     func(cc *models.CoprChroot) ([]byte, error)
	set         func(data []byte, name string) logic.ChrootOptions
	remove      func(l *logic.Logic) func(*http.Request, *models.User, *models.Copr, *models.CoprChroot) error
}

var chrootFiles = []chrootFile{
	{
		route:       "comps",
		defaultName: "comps.xml",
		contentType: "application/xml",
		name:        func(cc *models.CoprChroot) string { return cc.CompsName },
		content:     (*models.CoprChroot).Comps,
		set: func(data []byte, name string) logic.ChrootOptions {
			return logic.ChrootOptions{Comps: data, CompsName: name}
		},
		remove: func(l *logic.Logic) func(*http.Request, *models.User, *models.Copr, *models.CoprChroot) error {
			return func(r *http.Request, u *models.User, c *models.Copr, cc *models.CoprChroot) error {
				return l.Chroots.RemoveComps(r.Context(), u, c, cc)
			}
		},
	},
	{
		route:       "module_md",
		defaultName: "module_md.yaml",
		contentType: "application/x-yaml",
		name:        func(cc *models.CoprChroot) string { return cc.ModuleMDName },
		content:     (*models.CoprChroot).ModuleMD,
		set: func(data []byte, name string) logic.ChrootOptions {
			return logic.ChrootOptions{ModuleMD: data, ModuleMDName: name}
		},
		remove: func(l *logic.Logic) func(*http.Request, *models.User, *models.Copr, *models.CoprChroot) error {
			return func(r *http.Request, u *models.User, c *models.Copr, cc *models.CoprChroot) error {
				return l.Chroots.RemoveModuleMD(r.Context(), u, c, cc)
			}
		},
	},
}

// loadCoprChroot resolves {owner}/{name} and {chroot}
func (h *Handler) loadCoprChroot(r *http.Request) (*models.Copr, *models.CoprChroot, error) {
	copr, err := h.loadCopr(r)
	if err != nil {
		return nil, nil, err
	}
	cc, err := h.logic.Chroots.GetByName(r.Context(), copr, mux.Vars(r)["chroot"])
	if err != nil {
		return nil, nil, err
	}
	return copr, cc, nil
}

// ListCoprChroots lists the chroots enabled in a project
func (h *Handler) ListCoprChroots(w http.ResponseWriter, r *http.Request) {
	copr, err := h.loadCopr(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	now := h.logic.Config().Now()
	out := make([]CoprChrootResponse, 0, len(copr.Chroots))
	for _, cc := range copr.Chroots {
		out = append(out, toCoprChrootResponse(cc, now))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"chroots": out})
}

// CreateCoprChroot enables a chroot in a project
func (h *Handler) CreateCoprChroot(w http.ResponseWriter, r *http.Request) {
	copr, err := h.loadCopr(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req CoprChrootRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	mc, err := h.logic.MockChroots.GetFromName(r.Context(), req.Name, true, false)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	cc, err := h.logic.Chroots.CreateChroot(r.Context(), rbac.UserFromContext(r.Context()), copr, mc, logic.ChrootOptions{
		BuildrootPkgs: req.BuildrootPkgs,
		Repos:         req.Repos,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCoprChrootResponse(cc, h.logic.Config().Now()))
}

// GetCoprChroot returns one project chroot
func (h *Handler) GetCoprChroot(w http.ResponseWriter, r *http.Request) {
	_, cc, err := h.loadCoprChroot(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCoprChrootResponse(cc, h.logic.Config().Now()))
}

// UpdateCoprChroot changes buildroot packages and repositories of a project chroot
func (h *Handler) UpdateCoprChroot(w http.ResponseWriter, r *http.Request) {
	copr, cc, err := h.loadCoprChroot(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req CoprChrootRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	cc, err = h.logic.Chroots.UpdateChroot(r.Context(), rbac.UserFromContext(r.Context()), copr, cc, logic.ChrootOptions{
		BuildrootPkgs: req.BuildrootPkgs,
		Repos:         req.Repos,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCoprChrootResponse(cc, h.logic.Config().Now()))
}

// DeleteCoprChroot disables a chroot in a project
func (h *Handler) DeleteCoprChroot(w http.ResponseWriter, r *http.Request) {
	copr, cc, err := h.loadCoprChroot(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.logic.Chroots.RemoveCoprChroot(r.Context(), rbac.UserFromContext(r.Context()), copr, cc); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse("Chroot %s removed from %s.", cc.Name(), copr.FullName()))
}

// getChrootFile serves the raw file; 404 when none is set
func (h *Handler) getChrootFile(f chrootFile) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, cc, err := h.loadCoprChroot(r)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		data, err := f.content(cc)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		if data == nil {
			h.writeError(w, r, logic.NotFound("Chroot %s has no %s.", cc.Name(), f.route))
			return
		}
		w.Header().Set("Content-Type", f.contentType)
		if name := f.name(cc); name != "" {
			w.Header().Set("Content-Disposition", "attachment; filename=\""+name+"\"")
		}
		w.Write(data)
	}
}

// putChrootFile stores the request body as the file; ?filename= names it
func (h *Handler) putChrootFile(f chrootFile) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		copr, cc, err := h.loadCoprChroot(r)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		data, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
		if err != nil {
			h.writeError(w, r, logic.MalformedArgument("Failed to read %s: %v", f.route, err))
			return
		}
		if len(data) == 0 {
			h.writeError(w, r, logic.MalformedArgument("Empty %s file.", f.route))
			return
		}
		name := r.URL.Query().Get("filename")
		if name == "" {
			name = f.defaultName
		}

		cc, err = h.logic.Chroots.UpdateChroot(r.Context(), rbac.UserFromContext(r.Context()), copr, cc, f.set(data, name))
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		h.logger.Info("Chroot file uploaded", logging.Fields{
			"project": copr.FullName(),
			"chroot":  cc.Name(),
			"file":    f.route,
			"bytes":   len(data),
		})
		writeJSON(w, http.StatusOK, toCoprChrootResponse(cc, h.logic.Config().Now()))
	})
}

func (h *Handler) deleteChrootFile(f chrootFile) http.Handler {
	remove := f.remove(h.logic)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		copr, cc, err := h.loadCoprChroot(r)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		if err := remove(r, rbac.UserFromContext(r.Context()), copr, cc); err != nil {
			h.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toCoprChrootResponse(cc, h.logic.Config().Now()))
	})
}

// ListMockChroots lists build targets; ?active_only=true hides inactive ones
func (h *Handler) ListMockChroots(w http.ResponseWriter, r *http.Request) {
	chroots, err := h.logic.MockChroots.GetMultiple(r.Context(), queryBool(r, "active_only"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := make([]MockChrootResponse, 0, len(chroots))
	for _, mc := range chroots {
		out = append(out, toMockChrootResponse(mc))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"chroots": out})
}

// CreateMockChroot adds a new active build target
func (h *Handler) CreateMockChroot(w http.ResponseWriter, r *http.Request) {
	var req MockChrootRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	mc, err := h.logic.MockChroots.Add(r.Context(), req.Name)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.logger.Info("Mock chroot created", logging.Fields{"chroot": mc.Name()})
	writeJSON(w, http.StatusCreated, toMockChrootResponse(mc))
}

// UpdateMockChroot activates or deactivates a build target
func (h *Handler) UpdateMockChroot(w http.ResponseWriter, r *http.Request) {
	var req MockChrootRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.IsActive == nil {
		h.writeError(w, r, logic.MalformedArgument("is_active is required"))
		return
	}
	mc, err := h.logic.MockChroots.EditByName(r.Context(), mux.Vars(r)["chroot"], *req.IsActive)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.logger.Info("Mock chroot updated", logging.Fields{"chroot": mc.Name(), "is_active": mc.IsActive})
	writeJSON(w, http.StatusOK, toMockChrootResponse(mc))
}

// DeleteMockChroot removes a build target
func (h *Handler) DeleteMockChroot(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["chroot"]
	if err := h.logic.MockChroots.DeleteByName(r.Context(), name); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse("Mock chroot %s deleted.", name))
}

// RawhideToRelease branches rawhide into a new release chroot
func (h *Handler) RawhideToRelease(w http.ResponseWriter, r *http.Request) {
	var req RawhideToReleaseRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	n, err := h.logic.Chroots.RawhideToRelease(r.Context(), rbac.UserFromContext(r.Context()), req.RawhideChroot, req.DestChroot)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.logger.Info("Rawhide branched", logging.Fields{"rawhide": req.RawhideChroot, "dest": req.DestChroot, "projects": n})
	writeJSON(w, http.StatusOK, map[string]int{"branched": n})
}
