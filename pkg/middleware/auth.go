package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/copr-farm/copr/pkg/auth"
	"github.com/copr-farm/copr/pkg/logging"
	"github.com/copr-farm/copr/pkg/logic"
	"github.com/copr-farm/copr/pkg/rbac"
)

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": code, "message": message})
}

// Authenticate resolves HTTP Basic "api_login:api_token" credentials into
// the request user. Requests without credentials pass through anonymously.
func Authenticate(a auth.Authenticator, logger *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			login, token, ok := r.BasicAuth()
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			user, err := a.Authenticate(r.Context(), login, token)
			if err != nil {
				if logic.IsAuthError(err) {
					logger.Warn("Rejected API credentials", logging.Fields{
						"login":      login,
						"reason":     err.Error(),
						"request_id": logging.RequestID(r.Context()),
					})
					w.Header().Set("WWW-Authenticate", `Basic realm="copr"`)
					writeError(w, http.StatusUnauthorized, "unauthorized", "Login invalid/expired. Please visit the API page to get a new token.")
					return
				}
				logger.Error("Authentication failed", logging.Fields{"error": err.Error()})
				writeError(w, http.StatusInternalServerError, "internal", "Authentication failed")
				return
			}

			next.ServeHTTP(w, r.WithContext(rbac.WithUser(r.Context(), user)))
		})
	}
}

// BackendAuth admits requests carrying the shared backend password as the
// HTTP Basic password. An empty configured password admits nobody.
func BackendAuth(password string, logger *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, given, ok := r.BasicAuth()
			if !ok || password == "" || !auth.SecureCompare(given, password) {
				logger.Warn("Rejected backend request", logging.Fields{
					"path":   r.URL.Path,
					"remote": r.RemoteAddr,
				})
				writeError(w, http.StatusForbidden, "forbidden", "You have to provide the correct password")
				return
			}
			next.ServeHTTP(w, r.WithContext(rbac.WithBackend(r.Context())))
		})
	}
}
