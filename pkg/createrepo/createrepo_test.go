package createrepo

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copr-farm/copr/pkg/logging"
	"github.com/copr-farm/copr/pkg/models"
)

type fakeSource struct {
	copr *models.Copr
	err  error
}

func (f *fakeSource) GetProject(ctx context.Context, owner, name string) (*models.Copr, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.copr, nil
}

type recordingRunner struct {
	name string
	args []string
	err  error
}

func (r *recordingRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	r.name = name
	r.args = args
	return []byte("Pool finished"), r.err
}

func newCreator(t *testing.T, copr *models.Copr, free uint64) (*Creator, *recordingRunner) {
	t.Helper()
	logger := logging.NewLogger(logging.DEBUG, false)
	logger.SetOutput(io.Discard)

	c := NewCreator(&fakeSource{copr: copr}, logger)
	runner := &recordingRunner{}
	c.SetRunner(runner)
	c.usage = func(ctx context.Context, path string) (*disk.UsageStat, error) {
		return &disk.UsageStat{Path: path, Free: free}, nil
	}
	return c, runner
}

func TestAutoCreaterepo(t *testing.T) {
	dir := t.TempDir()
	c, runner := newCreator(t, &models.Copr{Name: "hello", AutoCreaterepo: true}, 1<<40)

	res, err := c.Run(context.Background(), Options{Owner: "alice", Project: "hello", RepoDir: dir})
	require.NoError(t, err)

	assert.Equal(t, "createrepo_c", runner.name)
	assert.Equal(t, []string{"--database", "--ignore-lock", dir}, runner.args)
	assert.Equal(t, dir, res.OutputDir)
	assert.Equal(t, "Pool finished", res.Output)
}

func TestDevelRepoWhenAutoCreaterepoOff(t *testing.T) {
	dir := t.TempDir()
	devel := filepath.Join(dir, DevelDir)
	require.NoError(t, os.MkdirAll(filepath.Join(devel, "repodata"), 0755))

	c, runner := newCreator(t, &models.Copr{Name: "hello"}, 1<<40)
	res, err := c.Run(context.Background(), Options{Owner: "alice", Project: "hello", RepoDir: dir})
	require.NoError(t, err)

	assert.Equal(t, devel, res.OutputDir)
	assert.Equal(t, []string{"--database", "--ignore-lock", "--outputdir", devel, "--baseurl", "../", "--update", dir}, runner.args)
}

func TestLowDiskSpace(t *testing.T) {
	c, runner := newCreator(t, &models.Copr{Name: "hello", AutoCreaterepo: true}, 1024)

	_, err := c.Run(context.Background(), Options{Owner: "alice", Project: "hello", RepoDir: t.TempDir()})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLowDiskSpace))
	assert.Empty(t, runner.name)

	c.SetMinFreeBytes(0)
	_, err = c.Run(context.Background(), Options{Owner: "alice", Project: "hello", RepoDir: t.TempDir()})
	assert.NoError(t, err)
}

func TestRunErrors(t *testing.T) {
	c, _ := newCreator(t, &models.Copr{Name: "hello"}, 1<<40)
	_, err := c.Run(context.Background(), Options{Owner: "alice", Project: "hello", RepoDir: filepath.Join(t.TempDir(), "missing")})
	assert.Error(t, err)

	c.source = &fakeSource{err: errors.New("boom")}
	_, err = c.Run(context.Background(), Options{Owner: "alice", Project: "hello", RepoDir: t.TempDir()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "alice/hello")

	c, runner := newCreator(t, &models.Copr{Name: "hello", AutoCreaterepo: true}, 1<<40)
	runner.err = errors.New("exit status 1")
	_, err = c.Run(context.Background(), Options{Owner: "alice", Project: "hello", RepoDir: t.TempDir()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "createrepo_c failed")
}
