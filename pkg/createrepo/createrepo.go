// Package createrepo regenerates repository metadata of a project result
// directory with createrepo_c, honouring the auto_createrepo project setting.
package createrepo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/shirou/gopsutil/v3/disk"

	"github.com/copr-farm/copr/pkg/logging"
	"github.com/copr-farm/copr/pkg/models"
)

// DevelDir receives the metadata of projects with auto_createrepo off
const DevelDir = "devel"

// DefaultMinFreeBytes is the free space required on the repository volume
const DefaultMinFreeBytes = 512 << 20

// ErrLowDiskSpace is returned when the repository volume is nearly full
var ErrLowDiskSpace = errors.New("not enough free disk space")

// ProjectSource looks up project settings on the frontend
type ProjectSource interface {
	GetProject(ctx context.Context, owner, name string) (*models.Copr, error)
}

// Runner executes createrepo_c
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands on the host
type ExecRunner struct{}

// Run executes name and returns its combined output
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Options select the repository to regenerate
type Options struct {
	Owner   string
	Project string
	RepoDir string
}

// Result describes one createrepo_c run
type Result struct {
	OutputDir string
	Args      []string
	Output    string
}

// Creator runs createrepo_c for project result directories
type Creator struct {
	source       ProjectSource
	runner       Runner
	logger       *logging.Logger
	binary       string
	minFreeBytes uint64
	usage        func(ctx context.Context, path string) (*disk.UsageStat, error)
}

// NewCreator creates a Creator running createrepo_c on the host
func NewCreator(source ProjectSource, logger *logging.Logger) *Creator {
	if logger == nil {
		logger = logging.NewLogger(logging.INFO, false)
	}
	return &Creator{
		source:       source,
		runner:       ExecRunner{},
		logger:       logger,
		binary:       "createrepo_c",
		minFreeBytes: DefaultMinFreeBytes,
		usage:        disk.UsageWithContext,
	}
}

// SetMinFreeBytes changes the disk space threshold; zero disables the check
func (c *Creator) SetMinFreeBytes(n uint64) {
	c.minFreeBytes = n
}

// SetRunner replaces the command runner
func (c *Creator) SetRunner(r Runner) {
	c.runner = r
}

// Run fetches the project and regenerates the metadata of opts.RepoDir.
// Projects with auto_createrepo off get their metadata in RepoDir/devel so
// that the main repository only changes on request.
func (c *Creator) Run(ctx context.Context, opts Options) (*Result, error) {
	info, err := os.Stat(opts.RepoDir)
	if err != nil {
		return nil, fmt.Errorf("repository directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", opts.RepoDir)
	}

	if err := c.checkDiskSpace(ctx, opts.RepoDir); err != nil {
		return nil, err
	}

	copr, err := c.source.GetProject(ctx, opts.Owner, opts.Project)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch project %s/%s: %w", opts.Owner, opts.Project, err)
	}
	if copr == nil {
		return nil, fmt.Errorf("empty project %s/%s returned by frontend", opts.Owner, opts.Project)
	}

	outDir := opts.RepoDir
	args := []string{"--database", "--ignore-lock"}
	if !copr.AutoCreaterepo {
		outDir = filepath.Join(opts.RepoDir, DevelDir)
		if err := os.MkdirAll(outDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", outDir, err)
		}
		args = append(args, "--outputdir", outDir, "--baseurl", "../")
	}
	if _, err := os.Stat(filepath.Join(outDir, "repodata")); err == nil {
		args = append(args, "--update")
	}
	args = append(args, opts.RepoDir)

	c.logger.Info("Running createrepo", logging.Fields{
		"project":         copr.FullName(),
		"auto_createrepo": copr.AutoCreaterepo,
		"output":          outDir,
	})
	out, err := c.runner.Run(ctx, c.binary, args...)
	if err != nil {
		c.logger.Error("createrepo failed", logging.Fields{"project": copr.FullName(), "output": string(out)})
		return nil, fmt.Errorf("%s failed: %w", c.binary, err)
	}
	return &Result{OutputDir: outDir, Args: args, Output: string(out)}, nil
}

func (c *Creator) checkDiskSpace(ctx context.Context, path string) error {
	if c.minFreeBytes == 0 {
		return nil
	}
	usage, err := c.usage(ctx, path)
	if err != nil {
		return fmt.Errorf("failed to check disk usage of %s: %w", path, err)
	}
	if usage.Free < c.minFreeBytes {
		return fmt.Errorf("%w on %s: %d bytes free, %d required", ErrLowDiskSpace, path, usage.Free, c.minFreeBytes)
	}
	return nil
}
