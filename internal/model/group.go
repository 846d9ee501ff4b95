package model

import "time"

type GroupStatus string

const (
	GroupStatusUnresolved   GroupStatus = "unresolved"
	GroupStatusResolved     GroupStatus = "resolved"
	GroupStatusIgnored      GroupStatus = "ignored"
	GroupStatusPendingMerge GroupStatus = "pending_merge"
)

// IsSettable reports whether clients may move a group into this status.
// pending_merge is only ever set by a merge.
func (s GroupStatus) IsSettable() bool {
	switch s {
	case GroupStatusUnresolved, GroupStatusResolved, GroupStatusIgnored:
		return true
	}
	return false
}

// Group is a deduplicated cluster of reported error events.
type Group struct {
	ID          int64       `json:"id"`
	ProjectID   int64       `json:"project_id"`
	ProjectSlug string      `json:"project_slug"`
	ShortID     int64       `json:"short_id"`
	Title       string      `json:"title"`
	Culprit     string      `json:"culprit"`
	Level       string      `json:"level"`
	Status      GroupStatus `json:"status"`
	TimesSeen   int64       `json:"times_seen"`
	FirstSeen   time.Time   `json:"first_seen"`
	LastSeen    time.Time   `json:"last_seen"`
}

// GroupRedirect points a merged-away group id at the group that absorbed it.
type GroupRedirect struct {
	ID                  int64     `json:"id"`
	OrganizationID      int64     `json:"organization_id"`
	GroupID             int64     `json:"group_id"`
	PreviousGroupID     int64     `json:"previous_group_id"`
	PreviousShortID     *int64    `json:"previous_short_id"`
	PreviousProjectSlug *string   `json:"previous_project_slug"`
	DateAdded           time.Time `json:"date_added"`
}

// MergeResult names the surviving group and the groups merged into it.
type MergeResult struct {
	Parent   int64   `json:"parent"`
	Children []int64 `json:"children"`
}
