package tracing

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copr-farm/copr/pkg/logging"
)

func TestDisabledProviderMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewLogger(logging.INFO, false)
	logger.SetOutput(&buf)

	provider, err := InitTracer(Config{ServiceName: "copr-test"}, logger)
	require.NoError(t, err)
	defer provider.Shutdown(context.Background())
	assert.Empty(t, buf.String())

	router := mux.NewRouter()
	router.Use(HTTPMiddleware(provider))
	router.HandleFunc("/api/builds/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/builds/12", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestInjectHTTPHeaders(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	InjectHTTPHeaders(context.Background(), req)
	// no active span, nothing to propagate
	assert.Empty(t, req.Header.Get("traceparent"))
}
