// Package api exposes the farm over JSON HTTP: the user API under /api and
// the polling endpoints of the backend under /backend.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/copr-farm/copr/pkg/logging"
	"github.com/copr-farm/copr/pkg/logic"
	"github.com/copr-farm/copr/pkg/middleware"
	"github.com/copr-farm/copr/pkg/models"
	"github.com/copr-farm/copr/pkg/ratelimit"
	"github.com/copr-farm/copr/pkg/rbac"
	"github.com/copr-farm/copr/pkg/tracing"
)

// maxBodySize caps request bodies, comps files included
const maxBodySize = 10 << 20

// Config configures the handler
type Config struct {
	// BackendPassword authenticates the backend on /backend routes
	BackendPassword string
	// Limiter throttles /api requests per user; nil disables throttling
	Limiter *ratelimit.Limiter
	// ClientIP resolves anonymous clients for the limiter; nil ignores
	// X-Forwarded-For
	ClientIP *ratelimit.ClientIP
}

// Handler serves the frontend API
type Handler struct {
	logic  *logic.Logic
	logger *logging.Logger
	cfg    Config
}

// NewHandler creates a new API handler
func NewHandler(l *logic.Logic, logger *logging.Logger, cfg Config) *Handler {
	if logger == nil {
		logger = logging.NewLogger(logging.INFO, false)
	}
	return &Handler{logic: l, logger: logger, cfg: cfg}
}

// RegisterRoutes registers all API routes
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/health", h.Health).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	api.Use(middleware.Authenticate(h.logic.Users, h.logger))
	if h.cfg.Limiter != nil {
		key := ratelimit.UserKeyFunc
		if h.cfg.ClientIP != nil {
			key = h.cfg.ClientIP.UserKey
		}
		api.Use(h.cfg.Limiter.Middleware(key))
	}

	// Project routes (register specific routes before parameterized routes)
	api.HandleFunc("/coprs", h.ListCoprs).Methods("GET")
	api.Handle("/coprs", rbac.RequireUser(http.HandlerFunc(h.CreateCopr))).Methods("POST")
	api.HandleFunc("/coprs/search", h.SearchCoprs).Methods("GET")
	api.HandleFunc("/coprs/owned/{username}", h.ListOwnedCoprs).Methods("GET")
	api.HandleFunc("/coprs/allowed/{username}", h.ListAllowedCoprs).Methods("GET")
	api.HandleFunc("/coprs/{owner}/{name}", h.GetCopr).Methods("GET")
	api.Handle("/coprs/{owner}/{name}", rbac.RequireUser(http.HandlerFunc(h.UpdateCopr))).Methods("PUT")
	api.Handle("/coprs/{owner}/{name}", rbac.RequireUser(http.HandlerFunc(h.DeleteCopr))).Methods("DELETE")
	api.Handle("/coprs/{owner}/{name}/fork", rbac.RequireUser(http.HandlerFunc(h.ForkCopr))).Methods("POST")
	api.Handle("/coprs/{owner}/{name}/playground", rbac.AdminOnly(http.HandlerFunc(h.SetPlayground))).Methods("PUT")

	// Permission routes
	api.HandleFunc("/coprs/{owner}/{name}/permissions", h.GetPermissions).Methods("GET")
	api.Handle("/coprs/{owner}/{name}/permissions", rbac.RequireUser(http.HandlerFunc(h.UpdatePermissions))).Methods("PUT")
	api.Handle("/coprs/{owner}/{name}/permissions/request", rbac.RequireUser(http.HandlerFunc(h.RequestPermissions))).Methods("POST")

	// Project chroot routes
	api.HandleFunc("/coprs/{owner}/{name}/chroots", h.ListCoprChroots).Methods("GET")
	api.Handle("/coprs/{owner}/{name}/chroots", rbac.RequireUser(http.HandlerFunc(h.CreateCoprChroot))).Methods("POST")
	api.HandleFunc("/coprs/{owner}/{name}/chroots/{chroot}", h.GetCoprChroot).Methods("GET")
	api.Handle("/coprs/{owner}/{name}/chroots/{chroot}", rbac.RequireUser(http.HandlerFunc(h.UpdateCoprChroot))).Methods("PUT")
	api.Handle("/coprs/{owner}/{name}/chroots/{chroot}", rbac.RequireUser(http.HandlerFunc(h.DeleteCoprChroot))).Methods("DELETE")
	for _, f := range chrootFiles {
		path := "/coprs/{owner}/{name}/chroots/{chroot}/" + f.route
		api.HandleFunc(path, h.getChrootFile(f)).Methods("GET")
		api.Handle(path, rbac.RequireUser(h.putChrootFile(f))).Methods("PUT")
		api.Handle(path, rbac.RequireUser(h.deleteChrootFile(f))).Methods("DELETE")
	}

	// Build routes
	api.HandleFunc("/coprs/{owner}/{name}/builds", h.ListBuilds).Methods("GET")
	api.Handle("/coprs/{owner}/{name}/builds", rbac.RequireUser(http.HandlerFunc(h.CreateBuild))).Methods("POST")
	api.Handle("/coprs/{owner}/{name}/module_builds", rbac.RequireUser(http.HandlerFunc(h.CreateModuleBuild))).Methods("POST")
	api.HandleFunc("/builds/{id:[0-9]+}", h.GetBuild).Methods("GET")
	api.Handle("/builds/{id:[0-9]+}", rbac.RequireUser(http.HandlerFunc(h.DeleteBuild))).Methods("DELETE")
	api.Handle("/builds/{id:[0-9]+}/cancel", rbac.RequireUser(http.HandlerFunc(h.CancelBuild))).Methods("POST")

	// Mock chroot routes
	api.HandleFunc("/mock_chroots", h.ListMockChroots).Methods("GET")
	api.Handle("/mock_chroots", rbac.AdminOnly(http.HandlerFunc(h.CreateMockChroot))).Methods("POST")
	api.Handle("/mock_chroots/{chroot}", rbac.AdminOnly(http.HandlerFunc(h.UpdateMockChroot))).Methods("PUT")
	api.Handle("/mock_chroots/{chroot}", rbac.AdminOnly(http.HandlerFunc(h.DeleteMockChroot))).Methods("DELETE")

	// Admin and action routes
	api.Handle("/admin/rawhide_to_release", rbac.AdminOnly(http.HandlerFunc(h.RawhideToRelease))).Methods("POST")
	api.HandleFunc("/actions", h.ListActions).Methods("GET")

	backend := r.PathPrefix("/backend").Subrouter()
	backend.Use(middleware.BackendAuth(h.cfg.BackendPassword, h.logger))
	backend.HandleFunc("/waiting", h.BackendWaiting).Methods("GET")
	backend.HandleFunc("/importing", h.BackendImporting).Methods("GET")
	backend.HandleFunc("/actions/{id:[0-9]+}", h.BackendGetAction).Methods("GET")
	backend.HandleFunc("/update", h.BackendUpdate).Methods("POST")
	backend.HandleFunc("/starting_build", h.BackendStartingBuild).Methods("POST")
}

// Health reports whether the database is reachable
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.logic.Store().HealthCheck(r.Context()); err != nil {
		h.logger.Error("Health check failed", logging.Fields{"error": err.Error()})
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	// ActionID is the blocking action of an action_in_progress error
	ActionID *int64 `json:"action_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps a domain error to its HTTP status. Unexpected errors are
// logged and reported without details.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := logic.GetCode(err)
	status := logic.HTTPStatus(code)
	resp := ErrorResponse{Error: strings.ToLower(string(code)), Message: err.Error()}

	var domain *logic.Error
	if errors.As(err, &domain) && domain.Action != nil {
		id := domain.Action.ID
		resp.ActionID = &id
	}
	if code == logic.CodeUnknown {
		h.logger.Error("Request failed", logging.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"error":      err.Error(),
			"request_id": logging.RequestID(r.Context()),
		})
		tracing.SetError(r.Context(), err)
		resp.Message = "Internal server error"
	}
	writeJSON(w, status, resp)
}

func decodeBody(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(v); err != nil {
		return logic.MalformedArgument("Invalid request body: %v", err)
	}
	return nil
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		return 0, logic.MalformedArgument("Invalid id %q", mux.Vars(r)["id"])
	}
	return id, nil
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, logic.MalformedArgument("Invalid value of %s: %q", key, v)
	}
	return n, nil
}

func queryBool(r *http.Request, key string) bool {
	b, _ := strconv.ParseBool(r.URL.Query().Get(key))
	return b
}

// loadCopr resolves the {owner}/{name} route variables
func (h *Handler) loadCopr(r *http.Request) (*models.Copr, error) {
	vars := mux.Vars(r)
	return h.logic.Coprs.Get(r.Context(), vars["owner"], vars["name"])
}

func messageResponse(format string, args ...interface{}) map[string]string {
	return map[string]string{"message": fmt.Sprintf(format, args...)}
}
