package model

import "time"

const (
	IntegrationGitHub    = "github"
	IntegrationBitbucket = "bitbucket"
	IntegrationVSTS      = "vsts"
	IntegrationMSTeams   = "msteams"
	IntegrationOpsgenie  = "opsgenie"
)

// MetadataSharedSecret holds the secret VSTS sends with every webhook.
const MetadataSharedSecret = "shared_secret"

// IsKnownIntegrationProvider reports whether provider can be installed.
func IsKnownIntegrationProvider(provider string) bool {
	switch provider {
	case IntegrationGitHub, IntegrationBitbucket, IntegrationVSTS, IntegrationMSTeams, IntegrationOpsgenie:
		return true
	}
	return false
}

type Integration struct {
	ID         int64          `json:"id"`
	Provider   string         `json:"provider"`
	ExternalID string         `json:"external_id"`
	Name       string         `json:"name"`
	Metadata   map[string]any `json:"metadata"`
	Status     string         `json:"status"`
	DateAdded  time.Time      `json:"date_added"`
}

// MetadataString reads a string value from the integration metadata.
func (i *Integration) MetadataString(key string) string {
	if i.Metadata == nil {
		return ""
	}
	s, _ := i.Metadata[key].(string)
	return s
}

type OrganizationIntegration struct {
	ID             int64          `json:"id"`
	OrganizationID int64          `json:"organization_id"`
	IntegrationID  int64          `json:"integration_id"`
	Config         map[string]any `json:"config"`
	Status         string         `json:"status"`
	DateAdded      time.Time      `json:"date_added"`
	Integration    *Integration   `json:"integration,omitempty"`
}

// Identity links an external account (an MS Teams user, say) to a user.
type Identity struct {
	ID            int64     `json:"id"`
	Provider      string    `json:"provider"`
	IdpExternalID string    `json:"idp_external_id"`
	ExternalID    string    `json:"external_id"`
	UserID        string    `json:"user_id"`
	DateVerified  time.Time `json:"date_verified"`

	// Data keeps where to reach the user, for msteams the service url and
	// the personal conversation id.
	Data map[string]any `json:"-"`
}

const (
	IdentityServiceURL     = "service_url"
	IdentityConversationID = "conversation_id"
)

// DataString reads a string value from the identity data.
func (i *Identity) DataString(key string) string {
	if i.Data == nil {
		return ""
	}
	s, _ := i.Data[key].(string)
	return s
}

// OpsgenieTeam is one row of an OpsGenie integration's team_table.
type OpsgenieTeam struct {
	ID             string `json:"id"`
	Team           string `json:"team"`
	IntegrationKey string `json:"integration_key"`
}

// AlertAction sends a project's alerts to one integration target.
type AlertAction struct {
	ID            int64  `json:"id"`
	ProjectID     int64  `json:"project_id"`
	IntegrationID int64  `json:"integration_id"`
	TargetID      string `json:"target_id"`
	Priority      string `json:"priority"`
}
