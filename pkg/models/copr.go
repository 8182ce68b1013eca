package models

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"
	"time"
)

// Copr is a build project owned by a user or a group
type Copr struct {
	ID             int64   `json:"id"`
	Name           string  `json:"name"`
	UserID         int64   `json:"user_id"`
	GroupID        *int64  `json:"group_id,omitempty"`
	Description    string  `json:"description"`
	Instructions   string  `json:"instructions"`
	Repos          string  `json:"repos"`
	CreatedOn      int64   `json:"created_on"`
	Deleted        bool    `json:"deleted"`
	Playground     bool    `json:"playground"`
	Persistent     bool    `json:"persistent"`
	AutoPrune      bool    `json:"auto_prune"`
	AutoCreaterepo bool    `json:"auto_createrepo"`
	UnlistedOnHP   bool    `json:"unlisted_on_hp"`
	BuildEnableNet bool    `json:"build_enable_net"`
	ModuleName     *string `json:"module_name,omitempty"`
	ModuleStream   *string `json:"module_stream,omitempty"`

	// Filled in by the store from joined rows
	OwnerUsername string        `json:"owner_username"`
	GroupName     string        `json:"group_name,omitempty"`
	Chroots       []*CoprChroot `json:"-"`
}

// IsAGroupProject reports whether the project belongs to a group
func (c *Copr) IsAGroupProject() bool {
	return c.GroupID != nil
}

// OwnerName is the username, or "@group" for group projects
func (c *Copr) OwnerName() string {
	if c.IsAGroupProject() {
		return "@" + c.GroupName
	}
	return c.OwnerUsername
}

// FullName is "owner/name"
func (c *Copr) FullName() string {
	return c.OwnerName() + "/" + c.Name
}

// ActiveChroots returns project chroots whose mock chroot is active
func (c *Copr) ActiveChroots() []*CoprChroot {
	var active []*CoprChroot
	for _, ch := range c.Chroots {
		if ch.MockChroot != nil && ch.MockChroot.IsActive {
			active = append(active, ch)
		}
	}
	return active
}

// ActiveChrootNames returns the names of ActiveChroots
func (c *Copr) ActiveChrootNames() []string {
	var names []string
	for _, ch := range c.ActiveChroots() {
		names = append(names, ch.Name())
	}
	return names
}

// MockChroot is a build target known to the farm
type MockChroot struct {
	ID        int64  `json:"id"`
	OSRelease string `json:"os_release"`
	OSVersion string `json:"os_version"`
	Arch      string `json:"arch"`
	IsActive  bool   `json:"is_active"`
}

// Name is "os_release-os_version-arch"
func (m *MockChroot) Name() string {
	return fmt.Sprintf("%s-%s-%s", m.OSRelease, m.OSVersion, m.Arch)
}

// CoprChroot is a mock chroot enabled in a project with its per-project settings
type CoprChroot struct {
	CoprID        int64       `json:"copr_id"`
	MockChrootID  int64       `json:"mock_chroot_id"`
	MockChroot    *MockChroot `json:"-"`
	BuildrootPkgs string      `json:"buildroot_pkgs"`
	Repos         string      `json:"repos"`
	CompsName     string      `json:"comps_name,omitempty"`
	CompsZlib     []byte      `json:"-"`
	ModuleMDName  string      `json:"module_md_name,omitempty"`
	ModuleMDZlib  []byte      `json:"-"`
	DeleteAfter   *time.Time  `json:"delete_after,omitempty"`
	DeleteNotify  *time.Time  `json:"delete_notify,omitempty"`
}

// Name is the name of the underlying mock chroot
func (c *CoprChroot) Name() string {
	if c.MockChroot == nil {
		return ""
	}
	return c.MockChroot.Name()
}

// IsActive reports whether the underlying mock chroot is active
func (c *CoprChroot) IsActive() bool {
	return c.MockChroot != nil && c.MockChroot.IsActive
}

// Comps returns the decompressed comps.xml, nil when unset
func (c *CoprChroot) Comps() ([]byte, error) {
	return Decompress(c.CompsZlib)
}

// ModuleMD returns the decompressed module metadata, nil when unset
func (c *CoprChroot) ModuleMD() ([]byte, error) {
	return Decompress(c.ModuleMDZlib)
}

// CoprPermission holds what a user may do in someone else's project
type CoprPermission struct {
	CoprID      int64           `json:"copr_id"`
	UserID      int64           `json:"user_id"`
	Username    string          `json:"username,omitempty"`
	CoprBuilder PermissionState `json:"copr_builder"`
	CoprAdmin   PermissionState `json:"copr_admin"`
}

// Compress zlib-compresses data for storage
func Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decompress reverses Compress
func Decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open zlib stream: %w", err)
	}
	defer r.Close()
	return io.ReadAll(r)
}
