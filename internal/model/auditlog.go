package model

import (
	"sort"
	"time"
)

// AuditLogEvent is the persisted integer id of an audit log event type.
type AuditLogEvent int

const (
	AuditMemberInvite      AuditLogEvent = 1
	AuditMemberAdd         AuditLogEvent = 2
	AuditMemberRemove      AuditLogEvent = 4
	AuditOrgEdit           AuditLogEvent = 11
	AuditProjectCreate     AuditLogEvent = 30
	AuditProjectEdit       AuditLogEvent = 31
	AuditProjectRemove     AuditLogEvent = 32
	AuditAPIKeyAdd         AuditLogEvent = 50
	AuditAPIKeyRemove      AuditLogEvent = 52
	AuditIntegrationAdd    AuditLogEvent = 70
	AuditIntegrationEdit   AuditLogEvent = 71
	AuditIntegrationRemove AuditLogEvent = 72
	AuditRepoAdd           AuditLogEvent = 80
	AuditRepoRemove        AuditLogEvent = 81
	AuditIssueMerge        AuditLogEvent = 90
	AuditIssueResolve      AuditLogEvent = 91
	AuditSavedSearchCreate AuditLogEvent = 100
	AuditSavedSearchRemove AuditLogEvent = 101
	AuditPluginEnable      AuditLogEvent = 110
	AuditPluginEdit        AuditLogEvent = 111
	AuditPluginDisable     AuditLogEvent = 112
	AuditRateLimitOverride AuditLogEvent = 120
	AuditIdentityLink      AuditLogEvent = 130
	AuditIdentityUnlink    AuditLogEvent = 131
)

var auditEventNames = map[AuditLogEvent]string{
	AuditMemberInvite:      "member.invite",
	AuditMemberAdd:         "member.add",
	AuditMemberRemove:      "member.remove",
	AuditOrgEdit:           "org.edit",
	AuditProjectCreate:     "project.create",
	AuditProjectEdit:       "project.edit",
	AuditProjectRemove:     "project.remove",
	AuditAPIKeyAdd:         "apikey.add",
	AuditAPIKeyRemove:      "apikey.remove",
	AuditIntegrationAdd:    "integration.add",
	AuditIntegrationEdit:   "integration.edit",
	AuditIntegrationRemove: "integration.remove",
	AuditRepoAdd:           "repo.add",
	AuditRepoRemove:        "repo.remove",
	AuditIssueMerge:        "issue.merge",
	AuditIssueResolve:      "issue.resolve",
	AuditSavedSearchCreate: "savedsearch.create",
	AuditSavedSearchRemove: "savedsearch.remove",
	AuditPluginEnable:      "plugin.enable",
	AuditPluginEdit:        "plugin.edit",
	AuditPluginDisable:     "plugin.disable",
	AuditRateLimitOverride: "ratelimit.override",
	AuditIdentityLink:      "identity.link",
	AuditIdentityUnlink:    "identity.unlink",
}

var auditEventIDs = func() map[string]AuditLogEvent {
	ids := make(map[string]AuditLogEvent, len(auditEventNames))
	for id, name := range auditEventNames {
		ids[name] = id
	}
	return ids
}()

// Name returns the API name of the event, "" when unknown.
func (e AuditLogEvent) Name() string {
	return auditEventNames[e]
}

// AuditLogEventFromName looks an event up by its API name.
func AuditLogEventFromName(name string) (AuditLogEvent, bool) {
	id, ok := auditEventIDs[name]
	return id, ok
}

// AuditLogEventNames returns every event name, sorted.
func AuditLogEventNames() []string {
	names := make([]string, 0, len(auditEventNames))
	for _, name := range auditEventNames {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type AuditLogEntry struct {
	ID             int64          `json:"id"`
	OrganizationID int64          `json:"organization_id"`
	ActorUserID    *string        `json:"actor_user_id"`
	ActorLabel     string         `json:"actor_label"`
	ActorKey       *string        `json:"actor_key"`
	TargetObject   *int64         `json:"target_object"`
	TargetUserID   *string        `json:"target_user_id"`
	Event          AuditLogEvent  `json:"-"`
	EventName      string         `json:"event"`
	IPAddress      string         `json:"ip_address"`
	Data           map[string]any `json:"data"`
	DateTime       time.Time      `json:"datetime"`
}

// AuditLogFilter narrows an audit log listing.
type AuditLogFilter struct {
	Event   *AuditLogEvent
	ActorID string
	Cursor  int64
	Limit   int
}

// AuditLogPage is one page of audit log rows plus the event catalog.
type AuditLogPage struct {
	Rows       []AuditLogEntry `json:"rows"`
	Options    []string        `json:"options"`
	NextCursor *int64          `json:"next_cursor"`
}
