package model

import "time"

type Organization struct {
	ID        int64          `json:"id"`
	Slug      string         `json:"slug"`
	Name      string         `json:"name"`
	Status    string         `json:"status"`
	Options   map[string]any `json:"options"`
	DateAdded time.Time      `json:"date_added"`
}

type Project struct {
	ID             int64      `json:"id"`
	OrganizationID int64      `json:"organization_id"`
	Slug           string     `json:"slug"`
	Name           string     `json:"name"`
	Platform       string     `json:"platform"`
	FirstEvent     *time.Time `json:"first_event"`
	DateAdded      time.Time  `json:"date_added"`
}

type Role string

const (
	RoleMember  Role = "member"
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleOwner   Role = "owner"
)

// IsWriter reports whether the role may change organization-wide settings.
func (r Role) IsWriter() bool {
	return r == RoleAdmin || r == RoleManager || r == RoleOwner
}

type Member struct {
	OrganizationID int64     `json:"organization_id"`
	UserID         string    `json:"user_id"`
	Email          string    `json:"email"`
	Role           Role      `json:"role"`
	DateAdded      time.Time `json:"date_added"`
}

// Actor is the authenticated caller of an organization-scoped request.
// APIKey is set instead of UserID when the caller used an API key.
type Actor struct {
	UserID    string
	APIKey    string
	Label     string
	Role      Role
	IPAddress string
}
