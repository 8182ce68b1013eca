// Package metrics exports farm state and HTTP traffic to Prometheus.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/copr-farm/copr/pkg/models"
)

// StatsSource provides the counters exported by Collector
type StatsSource interface {
	Stats(ctx context.Context) (*models.Stats, error)
}

// Collector reads farm statistics from the store on every scrape
type Collector struct {
	source    StatsSource
	startTime time.Time
	timeout   time.Duration

	uptime          *prometheus.Desc
	projects        *prometheus.Desc
	deletedProjects *prometheus.Desc
	builds          *prometheus.Desc
	buildChroots    *prometheus.Desc
	actions         *prometheus.Desc
	users           *prometheus.Desc
	scrapeErrors    prometheus.Counter
}

// NewCollector creates a collector over source
func NewCollector(source StatsSource) *Collector {
	return &Collector{
		source:    source,
		startTime: time.Now(),
		timeout:   5 * time.Second,

		uptime: prometheus.NewDesc("copr_frontend_uptime_seconds",
			"Time since the frontend started", nil, nil),
		projects: prometheus.NewDesc("copr_projects",
			"Number of projects that are not deleted", nil, nil),
		deletedProjects: prometheus.NewDesc("copr_projects_deleted",
			"Number of projects marked as deleted", nil, nil),
		builds: prometheus.NewDesc("copr_builds",
			"Number of builds", nil, nil),
		buildChroots: prometheus.NewDesc("copr_build_chroots",
			"Number of build chroots by state", []string{"state"}, nil),
		actions: prometheus.NewDesc("copr_actions",
			"Number of backend actions by result", []string{"result"}, nil),
		users: prometheus.NewDesc("copr_users",
			"Number of registered users", nil, nil),
		scrapeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "copr_stats_scrape_errors_total",
			Help: "Number of failed reads of farm statistics",
		}),
	}
}

// Describe implements prometheus.Collector
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.uptime
	ch <- c.projects
	ch <- c.deletedProjects
	ch <- c.builds
	ch <- c.buildChroots
	ch <- c.actions
	ch <- c.users
	c.scrapeErrors.Describe(ch)
}

// Collect implements prometheus.Collector
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(c.uptime, prometheus.GaugeValue, time.Since(c.startTime).Seconds())

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	stats, err := c.source.Stats(ctx)
	if err != nil {
		c.scrapeErrors.Inc()
		c.scrapeErrors.Collect(ch)
		return
	}
	c.scrapeErrors.Collect(ch)

	ch <- prometheus.MustNewConstMetric(c.projects, prometheus.GaugeValue, float64(stats.Projects))
	ch <- prometheus.MustNewConstMetric(c.deletedProjects, prometheus.GaugeValue, float64(stats.DeletedProjects))
	ch <- prometheus.MustNewConstMetric(c.builds, prometheus.GaugeValue, float64(stats.Builds))
	ch <- prometheus.MustNewConstMetric(c.users, prometheus.GaugeValue, float64(stats.Users))

	// every state is exported, zero when absent
	for _, st := range []models.BuildStatus{
		models.StatusImporting, models.StatusPending, models.StatusStarting, models.StatusRunning,
		models.StatusSucceeded, models.StatusFailed, models.StatusCanceled, models.StatusSkipped,
		models.StatusForked,
	} {
		ch <- prometheus.MustNewConstMetric(c.buildChroots, prometheus.GaugeValue,
			float64(stats.ChrootsByState[st]), st.String())
	}
	for _, r := range []models.BackendResult{models.ResultWaiting, models.ResultSuccess, models.ResultFailure} {
		ch <- prometheus.MustNewConstMetric(c.actions, prometheus.GaugeValue,
			float64(stats.ActionsByState[r]), r.String())
	}
}
