package logic

import (
	"context"
	"strings"

	"github.com/copr-farm/copr/pkg/models"
)

// MockChrootsLogic manages the build targets known to the farm
type MockChrootsLogic struct {
	l *Logic
}

// rsplit splits s on sep from the right into at most n parts
func rsplit(s, sep string, n int) []string {
	var parts []string
	for len(parts) < n-1 {
		i := strings.LastIndex(s, sep)
		if i < 0 {
			break
		}
		parts = append([]string{s[i+len(sep):]}, parts...)
		s = s[:i]
	}
	return append([]string{s}, parts...)
}

// TupleFromName splits "os-version-arch" into its parts. With noarch the
// name is "os-version" and the arch is "noarch".
func (m *MockChrootsLogic) TupleFromName(name string, noarch bool) (osRelease, osVersion, arch string, err error) {
	var parts []string
	valid := false
	if noarch {
		parts = rsplit(name, "-", 2)
		valid = len(parts) == 2 || len(parts) == 3
	} else {
		parts = rsplit(name, "-", 3)
		valid = len(parts) == 3
	}
	for _, p := range parts {
		if p == "" {
			valid = false
		}
	}
	if !valid {
		return "", "", "", MalformedArgument("Chroot name is not valid")
	}
	if noarch {
		return parts[0], parts[1], "noarch", nil
	}
	return parts[0], parts[1], parts[2], nil
}

// Get returns a mock chroot by its parts
func (m *MockChrootsLogic) Get(ctx context.Context, osRelease, osVersion, arch string, activeOnly bool) (*models.MockChroot, error) {
	mc, err := m.l.store.FindMockChroot(ctx, osRelease, osVersion, arch)
	if err != nil {
		return nil, notFoundAs(err, "Chroot %s-%s-%s does not exist.", osRelease, osVersion, arch)
	}
	if activeOnly && !mc.IsActive {
		return nil, NotFound("Chroot %s is not active.", mc.Name())
	}
	return mc, nil
}

// GetFromName returns a mock chroot by name
func (m *MockChrootsLogic) GetFromName(ctx context.Context, name string, activeOnly, noarch bool) (*models.MockChroot, error) {
	osRelease, osVersion, arch, err := m.TupleFromName(name, noarch)
	if err != nil {
		return nil, err
	}
	return m.Get(ctx, osRelease, osVersion, arch, activeOnly)
}

// GetMultiple lists mock chroots
func (m *MockChrootsLogic) GetMultiple(ctx context.Context, activeOnly bool) ([]*models.MockChroot, error) {
	return m.l.store.ListMockChroots(ctx, activeOnly)
}

// ActiveNames returns the names of all active mock chroots
func (m *MockChrootsLogic) ActiveNames(ctx context.Context) ([]string, error) {
	chroots, err := m.GetMultiple(ctx, true)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(chroots))
	for _, mc := range chroots {
		names = append(names, mc.Name())
	}
	return names, nil
}

// Add creates an active mock chroot
func (m *MockChrootsLogic) Add(ctx context.Context, name string) (*models.MockChroot, error) {
	osRelease, osVersion, arch, err := m.TupleFromName(name, false)
	if err != nil {
		return nil, err
	}
	if _, err := m.l.store.FindMockChroot(ctx, osRelease, osVersion, arch); err == nil {
		return nil, Duplicate("Mock chroot with this name already exists.")
	} else if !IsCode(err, CodeNotFound) {
		return nil, err
	}

	mc := &models.MockChroot{OSRelease: osRelease, OSVersion: osVersion, Arch: arch, IsActive: true}
	if err := m.l.store.CreateMockChroot(ctx, mc); err != nil {
		return nil, err
	}
	return mc, nil
}

// EditByName activates or deactivates a mock chroot. Deactivation starts the
// preservation period of every project chroot using it.
func (m *MockChrootsLogic) EditByName(ctx context.Context, name string, isActive bool) (*models.MockChroot, error) {
	var mc *models.MockChroot
	err := m.l.Tx(ctx, func(tx *Logic) error {
		var err error
		if mc, err = tx.MockChroots.GetFromName(ctx, name, false, false); err != nil {
			return err
		}
		wasActive := mc.IsActive
		mc.IsActive = isActive
		if err := tx.store.UpdateMockChroot(ctx, mc); err != nil {
			return err
		}

		switch {
		case wasActive && !isActive:
			return tx.Chroots.MarkOutdated(ctx, mc)
		case !wasActive && isActive:
			return tx.Chroots.ClearOutdated(ctx, mc)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return mc, nil
}

// DeleteByName removes a mock chroot and the project chroots using it. A
// chroot that builds were made in can only be deactivated.
func (m *MockChrootsLogic) DeleteByName(ctx context.Context, name string) error {
	return m.l.Tx(ctx, func(tx *Logic) error {
		mc, err := tx.MockChroots.GetFromName(ctx, name, false, false)
		if err != nil {
			return err
		}
		n, err := tx.store.CountBuildChrootsByMockChroot(ctx, mc.ID)
		if err != nil {
			return err
		}
		if n > 0 {
			return Duplicate("Chroot %s is used by %d builds, deactivate it instead.", name, n)
		}
		return tx.store.DeleteMockChroot(ctx, mc.ID)
	})
}
