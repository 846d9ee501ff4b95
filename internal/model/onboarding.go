package model

import "time"

type OnboardingTaskName string

const (
	TaskCreateProject    OnboardingTaskName = "create_project"
	TaskFirstEvent       OnboardingTaskName = "first_event"
	TaskInviteMember     OnboardingTaskName = "invite_member"
	TaskSecondPlatform   OnboardingTaskName = "second_platform"
	TaskUserContext      OnboardingTaskName = "user_context"
	TaskReleaseTracking  OnboardingTaskName = "release_tracking"
	TaskSourceMaps       OnboardingTaskName = "source_maps"
	TaskIssueTracker     OnboardingTaskName = "issue_tracker"
	TaskAlertRule        OnboardingTaskName = "alert_rule"
	TaskIntegrations     OnboardingTaskName = "integrations"
	TaskFirstTransaction OnboardingTaskName = "first_transaction"
)

type onboardingTaskDef struct {
	// userCompletable tasks may be marked complete from the API; the others
	// complete only when the system observes the action.
	userCompletable bool
	required        bool
}

// Project creation, member invites and alert rules are managed outside
// trackr, so their tasks are tracked but never required.
var onboardingTasks = map[OnboardingTaskName]onboardingTaskDef{
	TaskCreateProject:    {},
	TaskFirstEvent:       {required: true},
	TaskInviteMember:     {},
	TaskSecondPlatform:   {},
	TaskUserContext:      {userCompletable: true, required: true},
	TaskReleaseTracking:  {userCompletable: true, required: true},
	TaskSourceMaps:       {userCompletable: true, required: true},
	TaskIssueTracker:     {userCompletable: true, required: true},
	TaskAlertRule:        {},
	TaskIntegrations:     {userCompletable: true},
	TaskFirstTransaction: {},
}

// IsKnown reports whether the task exists.
func (t OnboardingTaskName) IsKnown() bool {
	_, ok := onboardingTasks[t]
	return ok
}

// IsUserCompletable reports whether clients may mark the task complete.
func (t OnboardingTaskName) IsUserCompletable() bool {
	return onboardingTasks[t].userCompletable
}

// RequiredOnboardingTasks lists the tasks that must be complete or skipped
// before onboarding counts as finished.
func RequiredOnboardingTasks() []OnboardingTaskName {
	var tasks []OnboardingTaskName
	for name, def := range onboardingTasks {
		if def.required {
			tasks = append(tasks, name)
		}
	}
	return tasks
}

type OnboardingStatus string

const (
	OnboardingPending  OnboardingStatus = "pending"
	OnboardingComplete OnboardingStatus = "complete"
	OnboardingSkipped  OnboardingStatus = "skipped"
)

// IsDone reports whether the status closes the task.
func (s OnboardingStatus) IsDone() bool {
	return s == OnboardingComplete || s == OnboardingSkipped
}

type OnboardingTask struct {
	ID             int64              `json:"id"`
	OrganizationID int64              `json:"organization_id"`
	Task           OnboardingTaskName `json:"task"`
	Status         OnboardingStatus   `json:"status"`
	UserID         *string            `json:"user_id"`
	CompletionSeen *time.Time         `json:"completion_seen"`
	DateCompleted  time.Time          `json:"date_completed"`
	Data           map[string]any     `json:"data"`
}

// OrgOptionOnboardingComplete is the organization option set once every
// required task is done.
const OrgOptionOnboardingComplete = "onboarding:complete"
