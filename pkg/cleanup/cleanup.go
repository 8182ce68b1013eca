package cleanup

import (
	"context"
	"sync"
	"time"

	"github.com/copr-farm/copr/pkg/logging"
	"github.com/copr-farm/copr/pkg/logic"
	"github.com/copr-farm/copr/pkg/models"
)

// Config defines maintenance policies and intervals
type Config struct {
	Enabled bool
	// Interval between maintenance runs
	Interval time.Duration
	// InitialDelay before the first run after Start
	InitialDelay time.Duration
	// ActionRetention is how long finished actions are kept; zero keeps them forever
	ActionRetention time.Duration
	// DeleteOutdatedChroots queues deletion of chroots past their preservation period
	DeleteOutdatedChroots bool
	// BatchSize is the number of outdated chroots committed per transaction
	BatchSize int
	// LimiterMaxAge is how long idle rate limiter entries are kept
	LimiterMaxAge time.Duration
}

// DefaultConfig returns the maintenance defaults
func DefaultConfig() Config {
	return Config{
		Enabled:               true,
		Interval:              time.Hour,
		InitialDelay:          time.Minute,
		ActionRetention:       30 * 24 * time.Hour,
		DeleteOutdatedChroots: true,
		BatchSize:             1000,
		LimiterMaxAge:         time.Hour,
	}
}

// Evictor drops idle per-client state
type Evictor interface {
	CleanupOldLimiters(maxAge time.Duration) int
}

// Stats tracks maintenance runs
type Stats struct {
	LastRunTime     time.Time     `json:"last_run_time"`
	LastRunDuration time.Duration `json:"last_run_duration"`
	Runs            int64         `json:"runs"`
	ChrootsQueued   int64         `json:"chroots_queued"`
	ActionsPruned   int64         `json:"actions_pruned"`
	LimitersEvicted int64         `json:"limiters_evicted"`
	LastError       string        `json:"last_error,omitempty"`
}

// Result is the outcome of a single maintenance run
type Result struct {
	ChrootsQueued   int
	ActionsPruned   int64
	LimitersEvicted int
}

// Manager runs periodic maintenance of the farm
type Manager struct {
	config  Config
	logic   *logic.Logic
	logger  *logging.Logger
	evictor Evictor
	now     func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.RWMutex
	stats Stats
}

// NewManager creates a new maintenance manager
func NewManager(config Config, l *logic.Logic, logger *logging.Logger) *Manager {
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultConfig().BatchSize
	}
	if logger == nil {
		logger = logging.NewLogger(logging.INFO, false)
	}
	return &Manager{
		config: config,
		logic:  l,
		logger: logger.WithField("component", "cleanup"),
		now:    time.Now,
	}
}

// SetEvictor registers per-client state dropped on every run
func (m *Manager) SetEvictor(e Evictor) {
	m.evictor = e
}

// Start begins the periodic maintenance loop
func (m *Manager) Start(ctx context.Context) {
	if !m.config.Enabled || m.config.Interval <= 0 {
		m.logger.Info("Cleanup manager disabled")
		return
	}

	m.logger.Info("Starting cleanup manager", logging.Fields{
		"interval":         m.config.Interval.String(),
		"action_retention": m.config.ActionRetention.String(),
	})

	ctx, m.cancel = context.WithCancel(ctx)
	m.wg.Add(1)
	go m.loop(ctx)
}

// Stop stops the loop and waits for a running pass to finish
func (m *Manager) Stop() {
	if m.cancel == nil {
		return
	}
	m.cancel()
	m.wg.Wait()
	m.logger.Info("Cleanup manager stopped")
}

func (m *Manager) loop(ctx context.Context) {
	defer m.wg.Done()

	select {
	case <-ctx.Done():
		return
	case <-time.After(m.config.InitialDelay):
	}
	m.RunOnce(ctx)

	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.RunOnce(ctx)
		}
	}
}

// RunOnce performs one maintenance pass. Failures of one task are logged
// and do not stop the others; the first error is returned.
func (m *Manager) RunOnce(ctx context.Context) (Result, error) {
	start := m.now()
	var res Result
	var firstErr error
	record := func(task string, err error) {
		if err == nil {
			return
		}
		m.logger.Error("Cleanup task failed", logging.Fields{"task": task, "error": err.Error()})
		if firstErr == nil {
			firstErr = err
		}
	}

	if m.config.DeleteOutdatedChroots {
		n, err := m.logic.Chroots.DeleteOutdated(ctx, false, m.config.BatchSize, func(cc *models.CoprChroot, copr *models.Copr) {
			m.logger.Debug("Queueing outdated chroot deletion", logging.Fields{
				"project": copr.FullName(),
				"chroot":  cc.Name(),
			})
		})
		res.ChrootsQueued = n
		record("outdated_chroots", err)
	}

	if m.config.ActionRetention > 0 {
		before := start.Add(-m.config.ActionRetention).Unix()
		n, err := m.logic.Store().DeleteActionsEndedBefore(ctx, before)
		res.ActionsPruned = n
		record("prune_actions", err)
	}

	if m.evictor != nil && m.config.LimiterMaxAge > 0 {
		res.LimitersEvicted = m.evictor.CleanupOldLimiters(m.config.LimiterMaxAge)
	}

	duration := m.now().Sub(start)

	m.mu.Lock()
	m.stats.LastRunTime = start
	m.stats.LastRunDuration = duration
	m.stats.Runs++
	m.stats.ChrootsQueued += int64(res.ChrootsQueued)
	m.stats.ActionsPruned += res.ActionsPruned
	m.stats.LimitersEvicted += int64(res.LimitersEvicted)
	m.stats.LastError = ""
	if firstErr != nil {
		m.stats.LastError = firstErr.Error()
	}
	m.mu.Unlock()

	m.logger.Info("Cleanup run complete", logging.Fields{
		"chroots_queued":   res.ChrootsQueued,
		"actions_pruned":   res.ActionsPruned,
		"limiters_evicted": res.LimitersEvicted,
		"duration_ms":      duration.Milliseconds(),
	})
	return res, firstErr
}

// GetStats returns current maintenance statistics
func (m *Manager) GetStats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stats
}
