package metrics

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copr-farm/copr/pkg/models"
)

type fakeStats struct {
	stats *models.Stats
	err   error
}

func (f *fakeStats) Stats(ctx context.Context) (*models.Stats, error) {
	return f.stats, f.err
}

func TestCollector(t *testing.T) {
	source := &fakeStats{stats: &models.Stats{
		Projects:        4,
		DeletedProjects: 1,
		Builds:          7,
		Users:           3,
		ChrootsByState:  map[models.BuildStatus]int{models.StatusRunning: 2, models.StatusSucceeded: 5},
		ActionsByState:  map[models.BackendResult]int{models.ResultWaiting: 6},
	}}
	reg := prometheus.NewRegistry()
	reg.MustRegister(NewCollector(source))

	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, reg))
	out := buf.String()

	assert.Contains(t, out, "copr_projects 4")
	assert.Contains(t, out, "copr_projects_deleted 1")
	assert.Contains(t, out, `copr_build_chroots{state="running"} 2`)
	assert.Contains(t, out, `copr_build_chroots{state="failed"} 0`)
	assert.Contains(t, out, `copr_actions{result="waiting"} 6`)
	assert.Contains(t, out, "copr_stats_scrape_errors_total 0")
}

func TestCollectorStoreFailure(t *testing.T) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(NewCollector(&fakeStats{err: errors.New("database is locked")}))

	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, reg))
	assert.Contains(t, buf.String(), "copr_stats_scrape_errors_total 1")
	assert.NotContains(t, buf.String(), "copr_projects ")
}

func TestHTTPMetricsMiddleware(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTPMetrics(reg)

	router := mux.NewRouter()
	router.Use(m.Middleware)
	router.HandleFunc("/api/builds/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("{}"))
	})

	for _, id := range []string{"1", "2"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/builds/"+id, nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, reg))
	assert.Contains(t, buf.String(), `copr_http_requests_total{method="GET",route="/api/builds/{id}",status="200"} 2`)
}

func TestRegistryHandler(t *testing.T) {
	reg := NewRegistry(&fakeStats{stats: &models.Stats{}})

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "go_goroutines"))
	assert.Contains(t, rec.Body.String(), "copr_users 0")
}
