package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/deppfellow/trackr/internal/errs"
	"github.com/deppfellow/trackr/internal/lib/email"
	"github.com/deppfellow/trackr/internal/lib/job"
	"github.com/deppfellow/trackr/internal/lib/metrics"
	"github.com/deppfellow/trackr/internal/lib/msteams"
	"github.com/deppfellow/trackr/internal/lib/opsgenie"
	"github.com/deppfellow/trackr/internal/model"
)

const providerOpsgenie = model.IntegrationOpsgenie

type notificationRepository interface {
	ListOptions(ctx context.Context, userIDs []string, typ *model.NotificationType) ([]model.NotificationSettingOption, error)
	ListProviders(ctx context.Context, userIDs []string, typ *model.NotificationType) ([]model.NotificationSettingProvider, error)
	UpsertOptions(ctx context.Context, options []model.NotificationSettingOption) error
	UpsertProviders(ctx context.Context, providers []model.NotificationSettingProvider) error
	DeleteOption(ctx context.Context, userID string, id int64) (bool, error)
	DeleteProvider(ctx context.Context, userID string, id int64) (bool, error)
}

type recipientDirectory interface {
	GetOrganization(ctx context.Context, id int64) (*model.Organization, error)
	GetProjectByID(ctx context.Context, id int64) (*model.Project, error)
	ListProjectMembers(ctx context.Context, projectID int64) ([]model.Member, error)
}

type alertTargets interface {
	ListAlertActions(ctx context.Context, projectID int64, provider string) ([]model.AlertAction, error)
	ListIdentitiesForUsers(ctx context.Context, provider string, userIDs []string) ([]model.Identity, error)
	GetOrganizationIntegration(ctx context.Context, orgID, integrationID int64) (*model.OrganizationIntegration, error)
}

type subscriberLister interface {
	ListSubscribers(ctx context.Context, groupID int64) ([]string, error)
}

type committerLister interface {
	ListReleaseCommitters(ctx context.Context, orgID int64, version string) ([]string, error)
}

type emailSender interface {
	SendEmail(ctx context.Context, to, subject string, tmpl email.Template, data map[string]string, idempotencyKey string) error
}

type alertClient interface {
	CreateAlert(ctx context.Context, integrationKey string, alert opsgenie.Alert) error
	CloseAlert(ctx context.Context, integrationKey, alias string) error
}

// NotificationDeps bundles what the notification service reads and sends
// through.
type NotificationDeps struct {
	Settings     notificationRepository
	Directory    recipientDirectory
	Integrations alertTargets
	Subscribers  subscriberLister
	Committers   committerLister
	Queue        job.Enqueuer
	Email        emailSender
	Teams        activitySender
	Opsgenie     alertClient
}

type NotificationService struct {
	NotificationDeps
	publicURL string
	metrics   *metrics.Metrics
	logger    *zerolog.Logger
}

func NewNotificationService(deps NotificationDeps, publicURL string, m *metrics.Metrics, logger *zerolog.Logger) *NotificationService {
	return &NotificationService{
		NotificationDeps: deps,
		publicURL:        strings.TrimSuffix(publicURL, "/"),
		metrics:          m,
		logger:           logger,
	}
}

// Settings

func parseTypeFilter(typ string) (*model.NotificationType, error) {
	if typ == "" {
		return nil, nil
	}
	t := model.NotificationType(typ)
	if !t.IsValid() {
		code := "INVALID_TYPE"
		return nil, errs.NewBadRequestError("Invalid notification type: "+typ, true, &code, nil, nil)
	}
	return &t, nil
}

func (s *NotificationService) ListOptions(ctx context.Context, userID, typ string) ([]model.NotificationSettingOption, error) {
	filter, err := parseTypeFilter(typ)
	if err != nil {
		return nil, err
	}
	options, err := s.Settings.ListOptions(ctx, []string{userID}, filter)
	if err != nil {
		return nil, err
	}
	if options == nil {
		options = []model.NotificationSettingOption{}
	}
	return options, nil
}

func validateScope(scope model.SettingScope, identifier, userID string) (string, string) {
	if !scope.IsValid() {
		return "", "is not a valid scope"
	}
	if scope == model.ScopeUser {
		if identifier == "" {
			return userID, ""
		}
		if identifier != userID {
			return "", "must be your own user id"
		}
		return identifier, ""
	}
	if _, err := strconv.ParseInt(identifier, 10, 64); err != nil {
		return "", "must be an id"
	}
	return identifier, ""
}

// UpdateOptions stores the caller's options. The whole batch is rejected
// when one entry is invalid.
func (s *NotificationService) UpdateOptions(ctx context.Context, userID string, options []model.NotificationSettingOption) ([]model.NotificationSettingOption, error) {
	var fieldErrs []errs.FieldError
	for i := range options {
		o := &options[i]
		prefix := fmt.Sprintf("[%d].", i)

		id, msg := validateScope(o.ScopeType, o.ScopeIdentifier, userID)
		if msg != "" {
			fieldErrs = append(fieldErrs, errs.FieldError{Field: prefix + "scope_identifier", Error: msg})
		}
		o.ScopeIdentifier = id
		o.UserID = userID

		if !o.Type.IsValid() {
			fieldErrs = append(fieldErrs, errs.FieldError{Field: prefix + "type", Error: "is not a valid notification type"})
			continue
		}
		if !o.Type.Allows(o.Value) {
			fieldErrs = append(fieldErrs, errs.FieldError{
				Field: prefix + "value",
				Error: fmt.Sprintf("%q is not allowed for %s", o.Value, o.Type),
			})
		}
	}
	if len(fieldErrs) > 0 {
		code := "INVALID_NOTIFICATION_SETTING"
		return nil, errs.NewBadRequestError("Invalid notification options", true, &code, fieldErrs, nil)
	}

	if err := s.Settings.UpsertOptions(ctx, options); err != nil {
		return nil, err
	}
	return options, nil
}

func (s *NotificationService) DeleteOption(ctx context.Context, userID string, id int64) error {
	deleted, err := s.Settings.DeleteOption(ctx, userID, id)
	if err != nil {
		return err
	}
	if !deleted {
		return errs.NewNotFoundError("Notification option not found", true, nil)
	}
	return nil
}

func (s *NotificationService) ListProviders(ctx context.Context, userID, typ string) ([]model.NotificationSettingProvider, error) {
	filter, err := parseTypeFilter(typ)
	if err != nil {
		return nil, err
	}
	providers, err := s.Settings.ListProviders(ctx, []string{userID}, filter)
	if err != nil {
		return nil, err
	}
	if providers == nil {
		providers = []model.NotificationSettingProvider{}
	}
	return providers, nil
}

func (s *NotificationService) UpdateProviders(ctx context.Context, userID string, providers []model.NotificationSettingProvider) ([]model.NotificationSettingProvider, error) {
	var fieldErrs []errs.FieldError
	for i := range providers {
		p := &providers[i]
		prefix := fmt.Sprintf("[%d].", i)

		id, msg := validateScope(p.ScopeType, p.ScopeIdentifier, userID)
		if msg != "" {
			fieldErrs = append(fieldErrs, errs.FieldError{Field: prefix + "scope_identifier", Error: msg})
		}
		p.ScopeIdentifier = id
		p.UserID = userID

		if !p.Provider.IsValid() {
			fieldErrs = append(fieldErrs, errs.FieldError{Field: prefix + "provider", Error: "is not a valid provider"})
		}
		if !p.Type.IsValid() {
			fieldErrs = append(fieldErrs, errs.FieldError{Field: prefix + "type", Error: "is not a valid notification type"})
		}
		if p.Value != model.SettingAlways && p.Value != model.SettingNever {
			fieldErrs = append(fieldErrs, errs.FieldError{Field: prefix + "value", Error: "must be always or never"})
		}
	}
	if len(fieldErrs) > 0 {
		code := "INVALID_NOTIFICATION_SETTING"
		return nil, errs.NewBadRequestError("Invalid notification providers", true, &code, fieldErrs, nil)
	}

	if err := s.Settings.UpsertProviders(ctx, providers); err != nil {
		return nil, err
	}
	return providers, nil
}

func (s *NotificationService) DeleteProvider(ctx context.Context, userID string, id int64) error {
	deleted, err := s.Settings.DeleteProvider(ctx, userID, id)
	if err != nil {
		return err
	}
	if !deleted {
		return errs.NewNotFoundError("Notification provider setting not found", true, nil)
	}
	return nil
}

// Resolution

// scopeRank orders a setting's scope for one (org, project) pair. Higher
// wins; -1 means the setting does not apply.
func scopeRank(scope model.SettingScope, identifier, userID string, orgID, projectID int64) int {
	switch scope {
	case model.ScopeProject:
		if identifier == strconv.FormatInt(projectID, 10) {
			return 3
		}
	case model.ScopeOrganization:
		if identifier == strconv.FormatInt(orgID, 10) {
			return 2
		}
	case model.ScopeUser:
		if identifier == userID {
			return 1
		}
	}
	return -1
}

// ResolveOption picks the value of typ for userID in a project: project
// scope beats organization scope beats user scope beats the type default.
func ResolveOption(options []model.NotificationSettingOption, userID string, typ model.NotificationType, orgID, projectID int64) model.SettingValue {
	value, best := typ.Default(), 0
	for _, o := range options {
		if o.UserID != userID || o.Type != typ {
			continue
		}
		if rank := scopeRank(o.ScopeType, o.ScopeIdentifier, userID, orgID, projectID); rank > best {
			value, best = o.Value, rank
		}
	}
	return value
}

// ResolveProvider is ResolveOption for one delivery provider.
func ResolveProvider(providers []model.NotificationSettingProvider, userID string, provider model.NotificationProvider, typ model.NotificationType, orgID, projectID int64) model.SettingValue {
	value, best := provider.Default(), 0
	for _, p := range providers {
		if p.UserID != userID || p.Provider != provider || p.Type != typ {
			continue
		}
		if rank := scopeRank(p.ScopeType, p.ScopeIdentifier, userID, orgID, projectID); rank > best {
			value, best = p.Value, rank
		}
	}
	return value
}

// complete fills the organization, project, participants and committers a
// notification was raised without.
func (s *NotificationService) complete(ctx context.Context, n *model.Notification) error {
	if n.Group == nil {
		return errors.New("notification without a group")
	}
	if n.Project == nil {
		project, err := s.Directory.GetProjectByID(ctx, n.Group.ProjectID)
		if err != nil {
			return err
		}
		n.Project = project
	}
	if n.Organization == nil {
		org, err := s.Directory.GetOrganization(ctx, n.Project.OrganizationID)
		if err != nil {
			return err
		}
		n.Organization = org
	}
	if n.Participants == nil {
		participants, err := s.Subscribers.ListSubscribers(ctx, n.Group.ID)
		if err != nil {
			return err
		}
		n.Participants = participants
	}
	if n.Committers == nil && n.Release != "" {
		committers, err := s.Committers.ListReleaseCommitters(ctx, n.Organization.ID, n.Release)
		if err != nil {
			return err
		}
		n.Committers = committers
	}
	return nil
}

// Recipients works out who hears about n and on which providers.
func (s *NotificationService) Recipients(ctx context.Context, n *model.Notification) (map[model.NotificationProvider][]model.Recipient, error) {
	if err := s.complete(ctx, n); err != nil {
		return nil, err
	}
	orgID, projectID := n.Organization.ID, n.Project.ID

	members, err := s.Directory.ListProjectMembers(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return map[model.NotificationProvider][]model.Recipient{}, nil
	}
	userIDs := make([]string, 0, len(members))
	for _, m := range members {
		userIDs = append(userIDs, m.UserID)
	}

	options, err := s.Settings.ListOptions(ctx, userIDs, &n.Type)
	if err != nil {
		return nil, err
	}
	providerSettings, err := s.Settings.ListProviders(ctx, userIDs, &n.Type)
	if err != nil {
		return nil, err
	}

	wanted := make(map[model.NotificationProvider][]model.Member)
	for _, m := range members {
		switch ResolveOption(options, m.UserID, n.Type, orgID, projectID) {
		case model.SettingNever:
			continue
		case model.SettingSubscribeOnly:
			if !slices.Contains(n.Participants, m.UserID) {
				continue
			}
		case model.SettingCommittedOnly:
			if !slices.Contains(n.Committers, m.UserID) {
				continue
			}
		}
		for _, p := range model.NotificationProviders {
			if ResolveProvider(providerSettings, m.UserID, p, n.Type, orgID, projectID) == model.SettingAlways {
				wanted[p] = append(wanted[p], m)
			}
		}
	}

	result := make(map[model.NotificationProvider][]model.Recipient, len(wanted))
	for provider, users := range wanted {
		if provider == model.ProviderEmail {
			for _, m := range users {
				if m.Email == "" {
					continue
				}
				result[provider] = append(result[provider], model.Recipient{UserID: m.UserID, Email: m.Email})
			}
			continue
		}

		// Chat providers only reach users with a linked identity.
		ids := make([]string, 0, len(users))
		for _, m := range users {
			ids = append(ids, m.UserID)
		}
		identities, err := s.Integrations.ListIdentitiesForUsers(ctx, string(provider), ids)
		if err != nil {
			return nil, err
		}
		for _, identity := range identities {
			result[provider] = append(result[provider], model.Recipient{
				UserID:         identity.UserID,
				ExternalID:     identity.ExternalID,
				IdpExternalID:  identity.IdpExternalID,
				ServiceURL:     identity.DataString(model.IdentityServiceURL),
				ConversationID: identity.DataString(model.IdentityConversationID),
			})
		}
	}
	return result, nil
}

func (s *NotificationService) groupURL(org *model.Organization, g *model.Group) string {
	return fmt.Sprintf("%s/organizations/%s/issues/%d/", s.publicURL, org.Slug, g.ID)
}

// Notify queues one delivery per (provider, recipient) plus, for alerts, one
// OpsGenie alert per project alert target.
func (s *NotificationService) Notify(ctx context.Context, n *model.Notification) error {
	recipients, err := s.Recipients(ctx, n)
	if err != nil {
		return err
	}
	url := s.groupURL(n.Organization, n.Group)
	log := s.logger.With().
		Str("type", string(n.Type)).
		Int64("group_id", n.Group.ID).
		Logger()

	var errList []error
	for _, provider := range model.NotificationProviders {
		for _, r := range recipients[provider] {
			switch provider {
			case model.ProviderEmail:
				errList = append(errList, s.queueEmail(ctx, n, r, url))
			case model.ProviderMSTeams:
				task, buildErr := job.NewNotificationDeliverTask(job.NotificationDeliverPayload{
					Provider:       string(provider),
					Type:           string(n.Type),
					OrganizationID: n.Organization.ID,
					ProjectID:      n.Project.ID,
					Group:          *n.Group,
					URL:            url,
					Recipient:      r,
				})
				errList = append(errList, enqueue(ctx, s.Queue, task, buildErr))
			default:
				s.metrics.NotificationsSent.WithLabelValues(string(provider), metrics.OutcomeDropped).Inc()
				log.Debug().Str("provider", string(provider)).Str("user_id", r.UserID).Msg("no delivery channel for provider")
			}
		}
	}

	if n.Type == model.NotifyAlerts {
		errList = append(errList, s.queueAlerts(ctx, n.Organization.ID, n.Group, url, false))
	}

	if err := errors.Join(errList...); err != nil {
		return err
	}
	log.Debug().Int("providers", len(recipients)).Msg("queued notifications")
	return nil
}

func (s *NotificationService) queueEmail(ctx context.Context, n *model.Notification, r model.Recipient, url string) error {
	subjectTitle := n.Group.Title
	if n.Type == model.NotifyDeploy {
		subjectTitle = n.Release
	}
	tmpl, subject := email.ForNotification(n.Type, subjectTitle)

	task, buildErr := job.NewEmailSendTask(job.EmailSendPayload{
		To:       r.Email,
		Subject:  subject,
		Template: string(tmpl),
		Data: map[string]string{
			"Title":        n.Group.Title,
			"Culprit":      n.Group.Culprit,
			"Level":        n.Group.Level,
			"Status":       string(n.Group.Status),
			"Release":      n.Release,
			"ProjectSlug":  n.Project.Slug,
			"Organization": n.Organization.Name,
			"URL":          url,
		},
	})
	return enqueue(ctx, s.Queue, task, buildErr)
}

func (s *NotificationService) queueAlerts(ctx context.Context, orgID int64, g *model.Group, url string, closeAlert bool) error {
	actions, err := s.Integrations.ListAlertActions(ctx, g.ProjectID, providerOpsgenie)
	if err != nil {
		return err
	}
	var errList []error
	for _, a := range actions {
		task, buildErr := job.NewNotificationDeliverTask(job.NotificationDeliverPayload{
			Provider:       providerOpsgenie,
			Type:           string(model.NotifyAlerts),
			OrganizationID: orgID,
			ProjectID:      g.ProjectID,
			Group:          *g,
			URL:            url,
			IntegrationID:  a.IntegrationID,
			TargetID:       a.TargetID,
			Priority:       a.Priority,
			Close:          closeAlert,
		})
		errList = append(errList, enqueue(ctx, s.Queue, task, buildErr))
	}
	return errors.Join(errList...)
}

// CloseAlerts queues closing the OpsGenie alerts of a resolved group.
func (s *NotificationService) CloseAlerts(ctx context.Context, org *model.Organization, g *model.Group) error {
	return s.queueAlerts(ctx, org.ID, g, s.groupURL(org, g), true)
}

// Delivery

func (s *NotificationService) HandleDeliverTask(ctx context.Context, t *asynq.Task) error {
	p, err := job.Decode[job.NotificationDeliverPayload](t)
	if err != nil {
		return err
	}

	switch p.Provider {
	case string(model.ProviderMSTeams):
		err = s.deliverMSTeams(ctx, p)
		if errors.Is(err, msteams.ErrPermanent) {
			err = job.Permanent(err)
		}
	case providerOpsgenie:
		err = s.deliverOpsgenie(ctx, p)
		if errors.Is(err, opsgenie.ErrPermanent) {
			err = job.Permanent(err)
		}
	default:
		err = job.Permanent(fmt.Errorf("unknown notification provider %q", p.Provider))
	}

	outcome := metrics.OutcomeSuccess
	if err != nil {
		outcome = metrics.OutcomeFailure
		s.logger.Error().Err(err).
			Str("provider", p.Provider).
			Int64("group_id", p.Group.ID).
			Msg("notification delivery failed")
	}
	s.metrics.NotificationsSent.WithLabelValues(p.Provider, outcome).Inc()
	return err
}

func (s *NotificationService) deliverMSTeams(ctx context.Context, p job.NotificationDeliverPayload) error {
	r := p.Recipient
	if r.ServiceURL == "" || r.ConversationID == "" {
		return fmt.Errorf("%w: no conversation for teams user %s", msteams.ErrPermanent, r.ExternalID)
	}
	card := msteams.IssueCard(p.Group.Title, p.Group.Culprit, p.Group.Level, p.URL)
	return sendCard(ctx, s.Teams, r.ServiceURL, r.ConversationID, card)
}

func (s *NotificationService) deliverOpsgenie(ctx context.Context, p job.NotificationDeliverPayload) error {
	oi, err := s.Integrations.GetOrganizationIntegration(ctx, p.OrganizationID, p.IntegrationID)
	if err != nil {
		return fmt.Errorf("%w: %v", opsgenie.ErrPermanent, err)
	}

	var team *OpsgenieTeam
	for _, candidate := range OpsgenieTeams(oi.Config) {
		if candidate.ID == p.TargetID {
			team = &candidate
			break
		}
	}
	if team == nil {
		return fmt.Errorf("%w: team %s is no longer configured", opsgenie.ErrPermanent, p.TargetID)
	}

	alias := opsgenie.Alias(p.Group.ID)
	if p.Close {
		return s.Opsgenie.CloseAlert(ctx, team.IntegrationKey, alias)
	}
	return s.Opsgenie.CreateAlert(ctx, team.IntegrationKey, opsgenie.Alert{
		Message:     p.Group.Title,
		Alias:       alias,
		Description: strings.TrimSpace(p.Group.Culprit + "\n" + p.URL),
		Details: map[string]string{
			"level":   p.Group.Level,
			"project": p.Group.ProjectSlug,
			"url":     p.URL,
		},
		Source:     "Trackr",
		Priority:   opsgenie.Priority(p.Group.Level, p.Priority),
		Responders: []opsgenie.Responder{{Type: "team", ID: team.ID}},
	})
}

func sendCard(ctx context.Context, sender activitySender, serviceURL, conversationID string, card msteams.Card) error {
	activity, err := json.Marshal(msteams.NewReply(card))
	if err != nil {
		return fmt.Errorf("marshal msteams card: %w", err)
	}
	return sender.Send(ctx, serviceURL, conversationID, activity)
}

func (s *NotificationService) HandleEmailTask(ctx context.Context, t *asynq.Task) error {
	p, err := job.Decode[job.EmailSendPayload](t)
	if err != nil {
		return err
	}
	// Retries of one task share an id, so resend drops the duplicates.
	key, _ := asynq.GetTaskID(ctx)

	err = s.Email.SendEmail(ctx, p.To, p.Subject, email.Template(p.Template), p.Data, key)
	outcome := metrics.OutcomeSuccess
	if err != nil {
		outcome = metrics.OutcomeFailure
	}
	s.metrics.NotificationsSent.WithLabelValues(string(model.ProviderEmail), outcome).Inc()
	return err
}
