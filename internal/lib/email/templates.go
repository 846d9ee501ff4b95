package email

import (
	"fmt"

	"github.com/deppfellow/trackr/internal/model"
)

// Template names a file under templates/ without its extension.
type Template string

const (
	TemplateIssueAlert    Template = "issue_alert"
	TemplateIssueWorkflow Template = "issue_workflow"
	TemplateDeploy        Template = "deploy"
	TemplateNotice        Template = "notice"
)

// ForNotification picks the template and subject for a notification type.
func ForNotification(typ model.NotificationType, title string) (Template, string) {
	switch typ {
	case model.NotifyAlerts:
		return TemplateIssueAlert, fmt.Sprintf("New issue: %s", title)
	case model.NotifyWorkflow:
		return TemplateIssueWorkflow, fmt.Sprintf("Issue updated: %s", title)
	case model.NotifyDeploy:
		return TemplateDeploy, fmt.Sprintf("Deployed: %s", title)
	}
	return TemplateNotice, title
}
