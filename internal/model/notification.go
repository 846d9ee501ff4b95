package model

type SettingScope string

const (
	ScopeUser         SettingScope = "user"
	ScopeOrganization SettingScope = "organization"
	ScopeProject      SettingScope = "project"
)

// IsValid reports whether s is a known scope.
func (s SettingScope) IsValid() bool {
	return s == ScopeUser || s == ScopeOrganization || s == ScopeProject
}

type NotificationType string

const (
	NotifyAlerts   NotificationType = "alerts"
	NotifyWorkflow NotificationType = "workflow"
	NotifyDeploy   NotificationType = "deploy"
	NotifyApproval NotificationType = "approval"
	NotifyQuota    NotificationType = "quota"
)

type SettingValue string

const (
	SettingAlways        SettingValue = "always"
	SettingNever         SettingValue = "never"
	SettingSubscribeOnly SettingValue = "subscribe_only"
	SettingCommittedOnly SettingValue = "committed_only"
)

type NotificationProvider string

const (
	ProviderEmail   NotificationProvider = "email"
	ProviderSlack   NotificationProvider = "slack"
	ProviderMSTeams NotificationProvider = "msteams"
)

// NotificationProviders lists every delivery provider in a stable order.
var NotificationProviders = []NotificationProvider{ProviderEmail, ProviderSlack, ProviderMSTeams}

// IsValid reports whether p is a known provider.
func (p NotificationProvider) IsValid() bool {
	return p == ProviderEmail || p == ProviderSlack || p == ProviderMSTeams
}

var (
	typeDefaults = map[NotificationType]SettingValue{
		NotifyAlerts:   SettingAlways,
		NotifyWorkflow: SettingSubscribeOnly,
		NotifyDeploy:   SettingCommittedOnly,
		NotifyApproval: SettingAlways,
		NotifyQuota:    SettingAlways,
	}

	typeAllowedValues = map[NotificationType][]SettingValue{
		NotifyAlerts:   {SettingAlways, SettingNever},
		NotifyWorkflow: {SettingAlways, SettingSubscribeOnly, SettingNever},
		NotifyDeploy:   {SettingAlways, SettingCommittedOnly, SettingNever},
		NotifyApproval: {SettingAlways, SettingNever},
		NotifyQuota:    {SettingAlways, SettingNever},
	}

	providerDefaults = map[NotificationProvider]SettingValue{
		ProviderEmail:   SettingAlways,
		ProviderSlack:   SettingAlways,
		ProviderMSTeams: SettingNever,
	}
)

// IsValid reports whether t is a known notification type.
func (t NotificationType) IsValid() bool {
	_, ok := typeDefaults[t]
	return ok
}

// Default is the value used when no scope sets one.
func (t NotificationType) Default() SettingValue {
	return typeDefaults[t]
}

// Allows reports whether value may be stored for this type.
func (t NotificationType) Allows(value SettingValue) bool {
	for _, v := range typeAllowedValues[t] {
		if v == value {
			return true
		}
	}
	return false
}

// Default is the provider setting used when no scope sets one.
func (p NotificationProvider) Default() SettingValue {
	return providerDefaults[p]
}

type NotificationSettingOption struct {
	ID              int64            `json:"id"`
	ScopeType       SettingScope     `json:"scope_type"`
	ScopeIdentifier string           `json:"scope_identifier"`
	UserID          string           `json:"user_id"`
	Type            NotificationType `json:"type"`
	Value           SettingValue     `json:"value"`
}

type NotificationSettingProvider struct {
	ID              int64                `json:"id"`
	ScopeType       SettingScope         `json:"scope_type"`
	ScopeIdentifier string               `json:"scope_identifier"`
	UserID          string               `json:"user_id"`
	Provider        NotificationProvider `json:"provider"`
	Type            NotificationType     `json:"type"`
	Value           SettingValue         `json:"value"`
}

// Notification is something that happened to a group that members may
// want to hear about.
type Notification struct {
	Type         NotificationType `json:"type"`
	Organization *Organization    `json:"-"`
	Project      *Project         `json:"-"`
	Group        *Group           `json:"group"`
	// Participants are users subscribed to the group.
	Participants []string `json:"participants,omitempty"`
	// Committers are users who authored commits in the release.
	Committers []string `json:"committers,omitempty"`
	Release    string   `json:"release,omitempty"`
}

// Recipient is a user reachable on one provider.
type Recipient struct {
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
	// ExternalID is the provider-side id, the Teams user id for msteams.
	ExternalID     string `json:"external_id,omitempty"`
	IdpExternalID  string `json:"idp_external_id,omitempty"`
	ServiceURL     string `json:"service_url,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
}
