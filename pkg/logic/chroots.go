package logic

import (
	"context"
	"strings"
	"time"

	"github.com/copr-farm/copr/pkg/models"
	"github.com/copr-farm/copr/pkg/rbac"
	"github.com/copr-farm/copr/pkg/store"
)

// CoprChrootsLogic manages the chroots enabled in projects
type CoprChrootsLogic struct {
	l *Logic
}

// ChrootOptions are the per-project settings of a chroot; nil fields are left alone
type ChrootOptions struct {
	BuildrootPkgs *string
	Repos         *string
	CompsName     string
	Comps         []byte
	ModuleMDName  string
	ModuleMD      []byte
}

func (c *CoprChrootsLogic) requireEdit(ctx context.Context, user *models.User, copr *models.Copr) error {
	perm, err := c.l.permissionOf(ctx, user, copr)
	if err != nil {
		return err
	}
	if !rbac.CanEdit(user, copr, perm) {
		return InsufficientRights("Only owners and admins may update their projects.")
	}
	return nil
}

// MockChrootsFromNames resolves chroot names, skipping unknown and inactive ones
func (c *CoprChrootsLogic) MockChrootsFromNames(ctx context.Context, names []string) ([]*models.MockChroot, error) {
	return c.mockChrootsFromNames(ctx, names, true)
}

func (c *CoprChrootsLogic) mockChrootsFromNames(ctx context.Context, names []string, activeOnly bool) ([]*models.MockChroot, error) {
	var out []*models.MockChroot
	seen := make(map[int64]bool)
	for _, name := range names {
		mc, err := c.l.MockChroots.GetFromName(ctx, name, activeOnly, false)
		if err != nil {
			if IsCode(err, CodeNotFound) || IsCode(err, CodeMalformedArgument) {
				continue
			}
			return nil, err
		}
		if !seen[mc.ID] {
			seen[mc.ID] = true
			out = append(out, mc)
		}
	}
	return out, nil
}

// GetByName returns the project chroot named name in copr
func (c *CoprChrootsLogic) GetByName(ctx context.Context, copr *models.Copr, name string) (*models.CoprChroot, error) {
	mc, err := c.l.MockChroots.GetFromName(ctx, name, true, false)
	if err != nil {
		return nil, err
	}
	cc, err := c.l.store.GetCoprChroot(ctx, copr.ID, mc.ID)
	if err != nil {
		return nil, notFoundAs(err, "Chroot %s is not enabled in %s.", name, copr.FullName())
	}
	return cc, nil
}

// NewFromNames enables the named chroots in a freshly created project
func (c *CoprChrootsLogic) NewFromNames(ctx context.Context, copr *models.Copr, names []string) error {
	chroots, err := c.MockChrootsFromNames(ctx, names)
	if err != nil {
		return err
	}
	for _, mc := range chroots {
		cc := &models.CoprChroot{CoprID: copr.ID, MockChrootID: mc.ID, MockChroot: mc}
		if err := c.l.store.CreateCoprChroot(ctx, cc); err != nil {
			return err
		}
		copr.Chroots = append(copr.Chroots, cc)
	}
	return nil
}

// CreateChroot enables a mock chroot in copr with the given settings
func (c *CoprChrootsLogic) CreateChroot(ctx context.Context, user *models.User, copr *models.Copr, mc *models.MockChroot, opts ChrootOptions) (*models.CoprChroot, error) {
	if err := c.requireEdit(ctx, user, copr); err != nil {
		return nil, err
	}
	if _, err := c.l.store.GetCoprChroot(ctx, copr.ID, mc.ID); err == nil {
		return nil, Duplicate("Chroot %s is already enabled in %s.", mc.Name(), copr.FullName())
	}

	cc := &models.CoprChroot{CoprID: copr.ID, MockChrootID: mc.ID, MockChroot: mc}
	err := c.l.Tx(ctx, func(tx *Logic) error {
		if err := tx.store.CreateCoprChroot(ctx, cc); err != nil {
			return err
		}
		return tx.Chroots.apply(ctx, cc, copr, opts)
	})
	if err != nil {
		return nil, err
	}
	return cc, nil
}

// UpdateChroot changes the settings of a project chroot
func (c *CoprChrootsLogic) UpdateChroot(ctx context.Context, user *models.User, copr *models.Copr, cc *models.CoprChroot, opts ChrootOptions) (*models.CoprChroot, error) {
	if err := c.requireEdit(ctx, user, copr); err != nil {
		return nil, err
	}
	err := c.l.Tx(ctx, func(tx *Logic) error {
		return tx.Chroots.apply(ctx, cc, copr, opts)
	})
	if err != nil {
		return nil, err
	}
	return cc, nil
}

// apply saves opts into cc and queues comps and module metadata updates
func (c *CoprChrootsLogic) apply(ctx context.Context, cc *models.CoprChroot, copr *models.Copr, opts ChrootOptions) error {
	if opts.BuildrootPkgs != nil {
		cc.BuildrootPkgs = *opts.BuildrootPkgs
	}
	if opts.Repos != nil {
		cc.Repos = strings.ReplaceAll(*opts.Repos, "\n", " ")
	}

	var compsChanged, moduleMDChanged bool
	if opts.Comps != nil {
		data, err := models.Compress(opts.Comps)
		if err != nil {
			return err
		}
		cc.CompsZlib = data
		cc.CompsName = opts.CompsName
		compsChanged = true
	}
	if opts.ModuleMD != nil {
		data, err := models.Compress(opts.ModuleMD)
		if err != nil {
			return err
		}
		cc.ModuleMDZlib = data
		cc.ModuleMDName = opts.ModuleMDName
		moduleMDChanged = true
	}

	if err := c.l.store.UpdateCoprChroot(ctx, cc); err != nil {
		return err
	}
	if compsChanged {
		if _, err := c.l.Actions.SendUpdateComps(ctx, cc, copr); err != nil {
			return err
		}
	}
	if moduleMDChanged {
		if _, err := c.l.Actions.SendUpdateModuleMD(ctx, cc, copr); err != nil {
			return err
		}
	}
	return nil
}

// UpdateFromNames makes the enabled chroots of copr match names. Listed
// chroots that were deactivated stay in their preservation period; only
// active ones are added. Removed chroots get their results deleted.
func (c *CoprChrootsLogic) UpdateFromNames(ctx context.Context, user *models.User, copr *models.Copr, names []string) error {
	if err := c.requireEdit(ctx, user, copr); err != nil {
		return err
	}

	wanted, err := c.mockChrootsFromNames(ctx, names, false)
	if err != nil {
		return err
	}
	current, err := c.l.store.ListCoprChroots(ctx, copr.ID)
	if err != nil {
		return err
	}

	return c.l.Tx(ctx, func(tx *Logic) error {
		have := make(map[int64]bool, len(current))
		for _, cc := range current {
			have[cc.MockChrootID] = true
		}
		want := make(map[int64]bool, len(wanted))
		for _, mc := range wanted {
			want[mc.ID] = true
			if !have[mc.ID] && mc.IsActive {
				if err := tx.store.CreateCoprChroot(ctx, &models.CoprChroot{CoprID: copr.ID, MockChrootID: mc.ID}); err != nil {
					return err
				}
			}
		}
		for _, cc := range current {
			if !want[cc.MockChrootID] {
				if _, err := tx.Actions.SendDeleteChroot(ctx, cc, copr); err != nil {
					return err
				}
				if err := tx.store.DeleteCoprChroot(ctx, copr.ID, cc.MockChrootID); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// RemoveComps drops the comps file of a project chroot
func (c *CoprChrootsLogic) RemoveComps(ctx context.Context, user *models.User, copr *models.Copr, cc *models.CoprChroot) error {
	if err := c.requireEdit(ctx, user, copr); err != nil {
		return err
	}
	return c.l.Tx(ctx, func(tx *Logic) error {
		cc.CompsName = ""
		cc.CompsZlib = nil
		if err := tx.store.UpdateCoprChroot(ctx, cc); err != nil {
			return err
		}
		_, err := tx.Actions.SendUpdateComps(ctx, cc, copr)
		return err
	})
}

// RemoveModuleMD drops the module metadata of a project chroot
func (c *CoprChrootsLogic) RemoveModuleMD(ctx context.Context, user *models.User, copr *models.Copr, cc *models.CoprChroot) error {
	if err := c.requireEdit(ctx, user, copr); err != nil {
		return err
	}
	return c.l.Tx(ctx, func(tx *Logic) error {
		cc.ModuleMDName = ""
		cc.ModuleMDZlib = nil
		if err := tx.store.UpdateCoprChroot(ctx, cc); err != nil {
			return err
		}
		_, err := tx.Actions.SendUpdateModuleMD(ctx, cc, copr)
		return err
	})
}

// RemoveCoprChroot disables a chroot in a project
func (c *CoprChrootsLogic) RemoveCoprChroot(ctx context.Context, user *models.User, copr *models.Copr, cc *models.CoprChroot) error {
	if err := c.requireEdit(ctx, user, copr); err != nil {
		return err
	}
	return c.l.store.DeleteCoprChroot(ctx, cc.CoprID, cc.MockChrootID)
}

// MarkOutdated starts the preservation period of project chroots using mc
func (c *CoprChrootsLogic) MarkOutdated(ctx context.Context, mc *models.MockChroot) error {
	chroots, err := c.l.store.ListCoprChrootsByMockChroot(ctx, mc.ID)
	if err != nil {
		return err
	}
	deleteAfter := c.l.now().Add(c.l.cfg.ChrootPreservation)
	for _, cc := range chroots {
		if cc.DeleteAfter != nil {
			continue
		}
		cc.DeleteAfter = &deleteAfter
		if err := c.l.store.UpdateCoprChroot(ctx, cc); err != nil {
			return err
		}
	}
	return nil
}

// ClearOutdated cancels the preservation period of project chroots using mc
func (c *CoprChrootsLogic) ClearOutdated(ctx context.Context, mc *models.MockChroot) error {
	chroots, err := c.l.store.ListCoprChrootsByMockChroot(ctx, mc.ID)
	if err != nil {
		return err
	}
	for _, cc := range chroots {
		if cc.DeleteAfter == nil {
			continue
		}
		cc.DeleteAfter = nil
		cc.DeleteNotify = nil
		if err := c.l.store.UpdateCoprChroot(ctx, cc); err != nil {
			return err
		}
	}
	return nil
}

// ExtendPreservation postpones deletion of an outdated project chroot
func (c *CoprChrootsLogic) ExtendPreservation(ctx context.Context, user *models.User, copr *models.Copr, cc *models.CoprChroot) error {
	if err := c.requireEdit(ctx, user, copr); err != nil {
		return err
	}
	if cc.DeleteAfter == nil {
		return MalformedArgument("Chroot %s is not going to be deleted.", cc.Name())
	}
	deleteAfter := c.l.now().Add(c.l.cfg.ChrootPreservation)
	cc.DeleteAfter = &deleteAfter
	cc.DeleteNotify = nil
	return c.l.store.UpdateCoprChroot(ctx, cc)
}

// FilterOutdatedToBeDeleted returns project chroots whose preservation period is over
func (c *CoprChrootsLogic) FilterOutdatedToBeDeleted(ctx context.Context) ([]*models.CoprChroot, error) {
	return c.l.store.ListOutdatedCoprChroots(ctx, c.l.now())
}

// OutdatedReport is called for every outdated project chroot processed by DeleteOutdated
type OutdatedReport func(cc *models.CoprChroot, copr *models.Copr)

// DeleteOutdated queues a delete_chroot action for every outdated project
// chroot, committing after each batch. With dryRun nothing is written and
// report is only called. It returns the number of chroots processed.
func (c *CoprChrootsLogic) DeleteOutdated(ctx context.Context, dryRun bool, batch int, report OutdatedReport) (int, error) {
	if batch <= 0 {
		batch = 1000
	}
	chroots, err := c.FilterOutdatedToBeDeleted(ctx)
	if err != nil {
		return 0, err
	}

	coprs := make(map[int64]*models.Copr)
	lookup := func(ctx context.Context, s *Logic, id int64) (*models.Copr, error) {
		if copr, ok := coprs[id]; ok {
			return copr, nil
		}
		copr, err := s.store.GetCopr(ctx, id)
		if err != nil {
			return nil, err
		}
		coprs[id] = copr
		return copr, nil
	}

	done := 0
	for start := 0; start < len(chroots); start += batch {
		end := start + batch
		if end > len(chroots) {
			end = len(chroots)
		}

		process := func(tx *Logic) error {
			for _, cc := range chroots[start:end] {
				copr, err := lookup(ctx, tx, cc.CoprID)
				if err != nil {
					return err
				}
				if report != nil {
					report(cc, copr)
				}
				if dryRun {
					continue
				}
				if _, err := tx.Actions.SendDeleteChroot(ctx, cc, copr); err != nil {
					return err
				}
				cc.DeleteAfter = nil
				if err := tx.store.UpdateCoprChroot(ctx, cc); err != nil {
					return err
				}
			}
			return nil
		}

		if dryRun {
			err = process(c.l)
		} else {
			err = c.l.Tx(ctx, process)
		}
		if err != nil {
			return done, err
		}
		done = end
	}
	return done, nil
}

// PreservationLeft is how long results of an outdated chroot are still kept
func PreservationLeft(cc *models.CoprChroot, now time.Time) time.Duration {
	if cc.DeleteAfter == nil {
		return 0
	}
	return cc.DeleteAfter.Sub(now)
}

// RawhideToRelease enables destName in every project building in rawhideName
// and queues copying of the successful rawhide results there. Admin only.
// It returns the number of projects branched.
func (c *CoprChrootsLogic) RawhideToRelease(ctx context.Context, user *models.User, rawhideName, destName string) (int, error) {
	if user == nil || !user.Admin {
		return 0, InsufficientRights("Only admin can branch rawhide.")
	}
	rawhide, err := c.l.MockChroots.GetFromName(ctx, rawhideName, false, false)
	if err != nil {
		return 0, err
	}
	dest, err := c.l.MockChroots.GetFromName(ctx, destName, false, false)
	if err != nil {
		return 0, err
	}

	branched := 0
	err = c.l.Tx(ctx, func(tx *Logic) error {
		coprs, err := tx.store.ListCoprs(ctx, store.CoprFilter{IncludeUnlisted: true})
		if err != nil {
			return err
		}
		for _, copr := range coprs {
			var source *models.CoprChroot
			hasDest := false
			for _, cc := range copr.Chroots {
				switch cc.MockChrootID {
				case rawhide.ID:
					source = cc
				case dest.ID:
					hasDest = true
				}
			}
			if source == nil {
				continue
			}
			if !hasDest {
				if err := tx.store.CreateCoprChroot(ctx, &models.CoprChroot{
					CoprID:        copr.ID,
					MockChrootID:  dest.ID,
					MockChroot:    dest,
					BuildrootPkgs: source.BuildrootPkgs,
					Repos:         source.Repos,
				}); err != nil {
					return err
				}
			}

			builds, err := tx.store.ListBuilds(ctx, store.BuildFilter{CoprID: &copr.ID})
			if err != nil {
				return err
			}
			dirs := []string{}
			for _, build := range builds {
				for _, ch := range build.Chroots {
					if ch.MockChrootID == rawhide.ID && ch.Status == models.StatusSucceeded {
						dirs = append(dirs, build.ResultDirName())
					}
				}
			}

			if _, err := tx.Actions.SendRawhideToRelease(ctx, map[string]interface{}{
				"ownername":      copr.OwnerName(),
				"projectname":    copr.Name,
				"rawhide_chroot": rawhideName,
				"dest_chroot":    destName,
				"builds":         dirs,
			}); err != nil {
				return err
			}
			branched++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return branched, nil
}
