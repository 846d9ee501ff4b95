package service

import (
	"fmt"
	"net/http"
	"time"

	"github.com/deppfellow/trackr/internal/lib/email"
	"github.com/deppfellow/trackr/internal/lib/job"
	"github.com/deppfellow/trackr/internal/lib/msteams"
	"github.com/deppfellow/trackr/internal/lib/opsgenie"
	"github.com/deppfellow/trackr/internal/lib/provider"
	"github.com/deppfellow/trackr/internal/lib/sqs"
	"github.com/deppfellow/trackr/internal/repository"
	"github.com/deppfellow/trackr/internal/server"
)

const outboundTimeout = 15 * time.Second

type Services struct {
	Tenancy      *TenancyService
	APIKey       *APIKeyService
	AuditLog     *AuditLogService
	Onboarding   *OnboardingService
	SavedSearch  *SavedSearchService
	Group        *GroupService
	Event        *EventService
	SourceCode   *SourceCodeService
	Integration  *IntegrationService
	// MSTeams and MSTeamsAuth are nil unless the bot is configured.
	MSTeams      *MSTeamsService
	MSTeamsAuth  *msteams.Authenticator
	Notification *NotificationService
	Plugin       *PluginService
	Job          *job.JobService

	// Providers resolves repository providers by id.
	Providers *provider.Registry
}

func NewServices(s *server.Server, repos *repository.Repositories) (*Services, error) {
	cfg := s.Config
	logger := s.Logger
	queue := s.Job.Client
	publicURL := cfg.Server.PublicURL

	github, err := provider.NewGitHubProvider(cfg.Integration.GitHubToken, cfg.Integration.GitHubAPIURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create github provider: %w", err)
	}
	providers := provider.NewRegistry(
		github,
		provider.NewBitbucketProvider(
			&http.Client{Timeout: outboundTimeout},
			cfg.Integration.BitbucketAPIURL,
			cfg.Integration.BitbucketUsername,
			cfg.Integration.BitbucketPassword,
		),
		provider.NewVSTSProvider(cfg.Integration.VSTSAccessToken),
	)

	teams := msteams.NewClient(
		cfg.Integration.MSTeamsAppID,
		cfg.Integration.MSTeamsAppPassword,
		cfg.Integration.MSTeamsTokenURL,
		cfg.Integration.MSTeamsServiceHosts,
	)

	audit := NewAuditLogService(repos.AuditLog, logger)
	onboarding := NewOnboardingService(repos.Onboarding, repos.Tenancy, logger)

	notification := NewNotificationService(NotificationDeps{
		Settings:     repos.Notification,
		Directory:    repos.Tenancy,
		Integrations: repos.Integration,
		Subscribers:  repos.Group,
		Committers:   repos.SourceCode,
		Queue:        queue,
		Email:        email.NewClient(cfg, logger),
		Teams:        teams,
		Opsgenie:     opsgenie.NewClient(cfg.Integration.OpsgenieAPIURL, logger),
	}, publicURL, s.Metrics, logger)

	plugin := NewPluginService(repos.Plugin, queue, audit, sqs.NewSender, s.Metrics, logger)

	var (
		bot     *MSTeamsService
		botAuth *msteams.Authenticator
	)
	if cfg.Integration.MSTeamsEnabled() {
		signer, err := msteams.NewSigner(cfg.Integration.MSTeamsSigningSecret)
		if err != nil {
			return nil, fmt.Errorf("failed to create msteams link signer: %w", err)
		}
		bot = NewMSTeamsService(repos.Integration, repos.Tenancy, signer, teams, queue, audit, publicURL, logger)
		botAuth = msteams.NewAuthenticator(
			cfg.Integration.MSTeamsAppID,
			cfg.Integration.MSTeamsOpenIDURL,
			&http.Client{Timeout: outboundTimeout},
		)
	}

	return &Services{
		Tenancy:      NewTenancyService(repos.Tenancy),
		APIKey:       NewAPIKeyService(repos.APIKey, audit),
		AuditLog:     audit,
		Onboarding:   onboarding,
		SavedSearch:  NewSavedSearchService(repos.SavedSearch, audit),
		Group:        NewGroupService(repos.Group, repos.Event, queue, audit, notification, s.Metrics, logger),
		Event:        NewEventService(repos.Event, onboarding, notification, plugin, s.Metrics, logger),
		SourceCode:   NewSourceCodeService(repos.SourceCode, repos.Integration, providers, queue, audit, onboarding, s.Metrics, logger),
		Integration:  NewIntegrationService(repos.Integration, audit, onboarding, logger),
		MSTeams:      bot,
		MSTeamsAuth:  botAuth,
		Notification: notification,
		Plugin:       plugin,
		Job:          s.Job,
		Providers:    providers,
	}, nil
}

// RegisterJobs attaches every task handler to the worker mux.
func (s *Services) RegisterJobs(j *job.JobService) {
	j.Register(job.TaskGroupMerge, s.Group.HandleMergeTask)
	j.Register(job.TaskNotificationDeliver, s.Notification.HandleDeliverTask)
	j.Register(job.TaskEmailSend, s.Notification.HandleEmailTask)
	j.Register(job.TaskSQSForward, s.Plugin.HandleForwardTask)
	j.Register(job.TaskFetchCommits, s.SourceCode.HandleFetchCommitsTask)
	if s.MSTeams != nil {
		j.Register(job.TaskMSTeamsReply, s.MSTeams.HandleReplyTask)
	}
}
