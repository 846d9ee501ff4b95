package model

import "time"

const (
	ProviderGitHub    = "integrations:github"
	ProviderBitbucket = "integrations:bitbucket"
	ProviderVSTS      = "integrations:vsts"
)

type RepositoryStatus string

const (
	RepositoryActive          RepositoryStatus = "active"
	RepositoryDisabled        RepositoryStatus = "disabled"
	RepositoryHidden          RepositoryStatus = "hidden"
	RepositoryPendingDeletion RepositoryStatus = "pending_deletion"
)

type Repository struct {
	ID             int64            `json:"id"`
	OrganizationID int64            `json:"organization_id"`
	Name           string           `json:"name"`
	URL            string           `json:"url"`
	Provider       string           `json:"provider"`
	ExternalID     string           `json:"external_id"`
	IntegrationID  *int64           `json:"integration_id"`
	Status         RepositoryStatus `json:"status"`
	Config         map[string]any   `json:"config"`
	DateAdded      time.Time        `json:"date_added"`
}

// ConfigString reads a string value from the repository config.
func (r *Repository) ConfigString(key string) string {
	if r.Config == nil {
		return ""
	}
	s, _ := r.Config[key].(string)
	return s
}

type CommitAuthor struct {
	ID             int64   `json:"id"`
	OrganizationID int64   `json:"organization_id"`
	Name           string  `json:"name"`
	Email          string  `json:"email"`
	ExternalID     *string `json:"external_id"`
}

type Commit struct {
	ID             int64         `json:"id"`
	OrganizationID int64         `json:"organization_id"`
	RepositoryID   int64         `json:"repository_id"`
	Key            string        `json:"key"`
	Message        string        `json:"message"`
	AuthorID       *int64        `json:"author_id"`
	Author         *CommitAuthor `json:"author,omitempty"`
	DateAdded      time.Time     `json:"date_added"`
}

type FileChangeType string

const (
	FileAdded    FileChangeType = "A"
	FileModified FileChangeType = "M"
	FileDeleted  FileChangeType = "D"
)

type CommitFileChange struct {
	OrganizationID int64          `json:"organization_id"`
	CommitID       int64          `json:"commit_id"`
	Filename       string         `json:"filename"`
	Type           FileChangeType `json:"type"`
}

// FilePatch is one changed file as reported by a provider.
type FilePatch struct {
	Path string         `json:"path"`
	Type FileChangeType `json:"type"`
}

// CommitData is the provider-neutral shape of a commit, produced by both
// commit comparison and webhook parsing.
type CommitData struct {
	ID          string      `json:"id"`
	Message     string      `json:"message"`
	AuthorName  string      `json:"author_name"`
	AuthorEmail string      `json:"author_email"`
	Timestamp   *time.Time  `json:"timestamp"`
	Patches     []FilePatch `json:"patch_set"`
}
