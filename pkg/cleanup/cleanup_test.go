package cleanup

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copr-farm/copr/pkg/logging"
	"github.com/copr-farm/copr/pkg/logic"
	"github.com/copr-farm/copr/pkg/models"
	"github.com/copr-farm/copr/pkg/store"
)

type fakeEvictor struct {
	maxAge time.Duration
}

func (f *fakeEvictor) CleanupOldLimiters(maxAge time.Duration) int {
	f.maxAge = maxAge
	return 2
}

func TestRunOnce(t *testing.T) {
	ctx := context.Background()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "copr.db"))
	require.NoError(t, err)
	defer s.Close()

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	l := logic.New(s, logic.Config{Now: func() time.Time { return now }})

	user, err := l.Users.Add(ctx, "user1", "user1@example.com", false)
	require.NoError(t, err)
	_, err = l.MockChroots.Add(ctx, "fedora-18-x86_64")
	require.NoError(t, err)
	copr, err := l.Coprs.Add(ctx, user, "proj", logic.AddOptions{Chroots: []string{"fedora-18-x86_64"}})
	require.NoError(t, err)

	// the signing key action finishes right away
	gpg := models.ActionGenGPGKey
	actions, err := l.Actions.GetMany(ctx, &gpg, nil)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	require.NoError(t, l.Actions.UpdateStateFromDict(ctx, actions[0], models.ActionUpdate{
		Result:  models.ResultSuccess,
		EndedOn: now.Unix(),
	}))

	_, err = l.MockChroots.EditByName(ctx, "fedora-18-x86_64", false)
	require.NoError(t, err)
	now = now.Add(181 * 24 * time.Hour)

	logger := logging.NewLogger(logging.DEBUG, false)
	var out bytes.Buffer
	logger.SetOutput(&out)

	cfg := DefaultConfig()
	m := NewManager(cfg, l, logger)
	m.now = func() time.Time { return now }
	evictor := &fakeEvictor{}
	m.SetEvictor(evictor)

	res, err := m.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.ChrootsQueued)
	assert.Equal(t, int64(1), res.ActionsPruned)
	assert.Equal(t, 2, res.LimitersEvicted)
	assert.Equal(t, time.Hour, evictor.maxAge)
	assert.Contains(t, out.String(), "proj")

	deleteChroot := models.ActionDeleteChroot
	queued, err := l.Actions.GetMany(ctx, &deleteChroot, nil)
	require.NoError(t, err)
	require.Len(t, queued, 1)
	assert.Equal(t, copr.FullName(), queued[0].OldValue)

	// a second pass has nothing left to do
	res, err = m.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.ChrootsQueued)
	assert.Zero(t, res.ActionsPruned)

	stats := m.GetStats()
	assert.Equal(t, int64(2), stats.Runs)
	assert.Equal(t, int64(1), stats.ChrootsQueued)
	assert.Equal(t, int64(1), stats.ActionsPruned)
	assert.Empty(t, stats.LastError)
}

func TestStartStop(t *testing.T) {
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "copr.db"))
	require.NoError(t, err)
	defer s.Close()

	logger := logging.NewLogger(logging.INFO, false)
	logger.SetOutput(&bytes.Buffer{})

	cfg := DefaultConfig()
	cfg.InitialDelay = time.Millisecond
	cfg.Interval = 10 * time.Millisecond
	m := NewManager(cfg, logic.New(s, logic.Config{}), logger)

	m.Start(context.Background())
	require.Eventually(t, func() bool { return m.GetStats().Runs >= 2 }, 2*time.Second, 5*time.Millisecond)
	m.Stop()

	disabled := NewManager(Config{}, logic.New(s, logic.Config{}), logger)
	disabled.Start(context.Background())
	disabled.Stop()
	assert.Zero(t, disabled.GetStats().Runs)
}
