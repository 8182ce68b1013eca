package models

import "time"

// User is an account that owns projects and submits builds
type User struct {
	ID                 int64      `json:"id"`
	Username           string     `json:"username"`
	Email              string     `json:"email,omitempty"`
	Admin              bool       `json:"admin"`
	APILogin           string     `json:"api_login,omitempty"`
	APITokenHash       string     `json:"-"` // Never expose in JSON
	APITokenExpiration *time.Time `json:"api_token_expiration,omitempty"`
	GroupIDs           []int64    `json:"group_ids,omitempty"`
}

// InGroup reports whether the user is a member of the group
func (u *User) InGroup(groupID int64) bool {
	if u == nil {
		return false
	}
	for _, id := range u.GroupIDs {
		if id == groupID {
			return true
		}
	}
	return false
}

// TokenExpired reports whether the API token is no longer valid at t
func (u *User) TokenExpired(t time.Time) bool {
	return u.APITokenExpiration != nil && t.After(*u.APITokenExpiration)
}

// Group is a FAS group that can own projects
type Group struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	FASName string `json:"fas_name"`
}

// AtName is the owner form used in project full names, e.g. "@copr"
func (g *Group) AtName() string {
	return "@" + g.Name
}
