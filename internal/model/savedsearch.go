package model

import "time"

type SearchType int

const (
	SearchTypeIssue   SearchType = 0
	SearchTypeEvent   SearchType = 1
	SearchTypeSession SearchType = 2
	SearchTypeReplay  SearchType = 3
)

// IsValid reports whether t is a known search type.
func (t SearchType) IsValid() bool {
	return t >= SearchTypeIssue && t <= SearchTypeReplay
}

type SortOption string

const (
	SortDate   SortOption = "date"
	SortNew    SortOption = "new"
	SortFreq   SortOption = "freq"
	SortUser   SortOption = "user"
	SortTrends SortOption = "trends"
	SortInbox  SortOption = "inbox"
)

type Visibility string

const (
	VisibilityOrganization Visibility = "organization"
	VisibilityOwner        Visibility = "owner"
	VisibilityOwnerPinned  Visibility = "owner_pinned"
)

// MaxSavedSearchQueryLength bounds saved search queries, in characters.
const MaxSavedSearchQueryLength = 8000

type SavedSearch struct {
	ID             int64      `json:"id"`
	OrganizationID *int64     `json:"organization_id"`
	OwnerID        *string    `json:"owner_id"`
	Name           string     `json:"name"`
	Query          string     `json:"query"`
	Sort           SortOption `json:"sort"`
	Type           SearchType `json:"type"`
	Visibility     Visibility `json:"visibility"`
	IsGlobal       bool       `json:"is_global"`
	IsPinned       bool       `json:"is_pinned"`
	DateAdded      time.Time  `json:"date_added"`
}

// IsValid reports whether s is a known sort.
func (s SortOption) IsValid() bool {
	switch s {
	case SortDate, SortNew, SortFreq, SortUser, SortTrends, SortInbox:
		return true
	}
	return false
}
