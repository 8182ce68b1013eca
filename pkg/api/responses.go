package api

import (
	"time"

	"github.com/copr-farm/copr/pkg/logic"
	"github.com/copr-farm/copr/pkg/models"
	"github.com/copr-farm/copr/pkg/rbac"
)

// CoprResponse is a project as returned by the API
type CoprResponse struct {
	*models.Copr
	FullName string   `json:"full_name"`
	Chroots  []string `json:"chroots"`
	// Permissions of the requesting user, only on project detail
	Permissions *rbac.Permissions `json:"permissions,omitempty"`
}

func toCoprResponse(c *models.Copr) CoprResponse {
	names := make([]string, 0, len(c.Chroots))
	for _, cc := range c.Chroots {
		names = append(names, cc.Name())
	}
	return CoprResponse{Copr: c, FullName: c.FullName(), Chroots: names}
}

func toCoprResponses(coprs []*models.Copr) []CoprResponse {
	out := make([]CoprResponse, 0, len(coprs))
	for _, c := range coprs {
		out = append(out, toCoprResponse(c))
	}
	return out
}

// PageResponse is one page of projects
type PageResponse struct {
	Coprs   []CoprResponse `json:"coprs"`
	Page    int            `json:"page"`
	PerPage int            `json:"per_page"`
	Total   int            `json:"total"`
}

func toPageResponse(p *logic.Page) PageResponse {
	return PageResponse{Coprs: toCoprResponses(p.Coprs), Page: p.Page, PerPage: p.PerPage, Total: p.Total}
}

// CoprChrootResponse is a chroot enabled in a project
type CoprChrootResponse struct {
	Name          string     `json:"name"`
	IsActive      bool       `json:"is_active"`
	BuildrootPkgs string     `json:"buildroot_pkgs"`
	Repos         string     `json:"repos"`
	CompsName     string     `json:"comps_name,omitempty"`
	ModuleMDName  string     `json:"module_md_name,omitempty"`
	DeleteAfter   *time.Time `json:"delete_after,omitempty"`
	// DeleteAfterDays is how many days the results of an outdated chroot are still kept
	DeleteAfterDays *int `json:"delete_after_days,omitempty"`
}

func toCoprChrootResponse(cc *models.CoprChroot, now time.Time) CoprChrootResponse {
	resp := CoprChrootResponse{
		Name:          cc.Name(),
		IsActive:      cc.IsActive(),
		BuildrootPkgs: cc.BuildrootPkgs,
		Repos:         cc.Repos,
		CompsName:     cc.CompsName,
		ModuleMDName:  cc.ModuleMDName,
		DeleteAfter:   cc.DeleteAfter,
	}
	if cc.DeleteAfter != nil {
		days := int(logic.PreservationLeft(cc, now).Hours() / 24)
		if days < 0 {
			days = 0
		}
		resp.DeleteAfterDays = &days
	}
	return resp
}

// MockChrootResponse is a build target known to the farm
type MockChrootResponse struct {
	*models.MockChroot
	Name string `json:"name"`
}

func toMockChrootResponse(mc *models.MockChroot) MockChrootResponse {
	return MockChrootResponse{MockChroot: mc, Name: mc.Name()}
}

// BuildChrootResponse is the state of a build in one chroot
type BuildChrootResponse struct {
	Name      string `json:"name"`
	Status    string `json:"status"`
	StartedOn *int64 `json:"started_on"`
	EndedOn   *int64 `json:"ended_on"`
	GitHash   string `json:"git_hash,omitempty"`
}

// BuildResponse is a build as returned by the API
type BuildResponse struct {
	*models.Build
	Status        string                `json:"status"`
	ResultDirName string                `json:"result_dir_name"`
	Chroots       []BuildChrootResponse `json:"chroots"`
}

func toBuildResponse(b *models.Build) BuildResponse {
	chroots := make([]BuildChrootResponse, 0, len(b.Chroots))
	for _, ch := range b.Chroots {
		chroots = append(chroots, BuildChrootResponse{
			Name:      ch.Name(),
			Status:    ch.Status.String(),
			StartedOn: ch.StartedOn,
			EndedOn:   ch.EndedOn,
			GitHash:   ch.GitHash,
		})
	}
	return BuildResponse{
		Build:         b,
		Status:        b.Status().String(),
		ResultDirName: b.ResultDirName(),
		Chroots:       chroots,
	}
}
