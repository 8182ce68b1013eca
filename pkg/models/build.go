package models

import (
	"fmt"
	"path"
	"strings"
)

// MaxBuildTimeout is the longest a build may run, in seconds
const MaxBuildTimeout = 108000

// DefaultBuildTimeout is used when a build does not ask for one
const DefaultBuildTimeout = 18000

// Build is one source package submitted into a project
type Build struct {
	ID          int64          `json:"id"`
	CoprID      int64          `json:"copr_id"`
	UserID      int64          `json:"user_id"`
	Pkgs        string         `json:"pkgs"`
	Repos       string         `json:"repos"`
	Timeout     int            `json:"timeout"`
	SubmittedOn int64          `json:"submitted_on"`
	PackageName string         `json:"package_name"`
	EnableNet   bool           `json:"enable_net"`
	Canceled    bool           `json:"canceled"`
	Chroots     []*BuildChroot `json:"chroots,omitempty"`
}

// SrcPkgName is the basename of the source package without ".src.rpm",
// empty when pkgs does not point at a file
func (b *Build) SrcPkgName() string {
	if b.Pkgs == "" || strings.HasSuffix(b.Pkgs, "/") {
		return ""
	}
	return strings.TrimSuffix(path.Base(b.Pkgs), ".src.rpm")
}

// ResultDirName is the directory the backend stores results in
func (b *Build) ResultDirName() string {
	return fmt.Sprintf("%08d-%s", b.ID, b.PackageName)
}

// IsOlderResultsNamingUsed reports whether results were stored under the
// source package name, which is the case for builds never imported to dist-git
func (b *Build) IsOlderResultsNamingUsed() bool {
	if len(b.Chroots) == 0 {
		return false
	}
	return b.Chroots[0].GitHash == ""
}

// statusOrder is the precedence used to summarize chroot states
var statusOrder = []BuildStatus{
	StatusRunning, StatusStarting, StatusImporting, StatusPending,
	StatusFailed, StatusSucceeded, StatusSkipped, StatusForked,
}

// Status summarizes the states of all build chroots
func (b *Build) Status() BuildStatus {
	if b.Canceled {
		return StatusCanceled
	}
	present := make(map[BuildStatus]bool, len(b.Chroots))
	for _, ch := range b.Chroots {
		present[ch.Status] = true
	}
	for _, st := range statusOrder {
		if present[st] {
			return st
		}
	}
	if present[StatusCanceled] {
		return StatusCanceled
	}
	return StatusUnknown
}

// Finished reports whether no chroot of the build can change anymore
func (b *Build) Finished() bool {
	for _, ch := range b.Chroots {
		if !IsFinished(ch.Status) {
			return false
		}
	}
	return true
}

// ChrootNames returns the names of all build chroots
func (b *Build) ChrootNames() []string {
	names := make([]string, 0, len(b.Chroots))
	for _, ch := range b.Chroots {
		names = append(names, ch.Name())
	}
	return names
}

// PackageNameFromSrc drops version and release from a source package NVR,
// "copr-keygen-1.58-1.fc20" becomes "copr-keygen"
func PackageNameFromSrc(nvr string) string {
	parts := strings.Split(nvr, "-")
	if len(parts) < 3 {
		return nvr
	}
	return strings.Join(parts[:len(parts)-2], "-")
}

// BuildChroot is a build of one package in one chroot
type BuildChroot struct {
	BuildID      int64       `json:"build_id"`
	MockChrootID int64       `json:"mock_chroot_id"`
	MockChroot   *MockChroot `json:"-"`
	Status       BuildStatus `json:"status"`
	StartedOn    *int64      `json:"started_on"`
	EndedOn      *int64      `json:"ended_on"`
	GitHash      string      `json:"git_hash,omitempty"`
}

// Name is the name of the underlying mock chroot
func (bc *BuildChroot) Name() string {
	if bc.MockChroot == nil {
		return ""
	}
	return bc.MockChroot.Name()
}

// TaskID is how the backend refers to a build chroot
func (bc *BuildChroot) TaskID() string {
	return fmt.Sprintf("%d-%s", bc.BuildID, bc.Name())
}
