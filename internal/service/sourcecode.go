package service

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/deppfellow/trackr/internal/errs"
	"github.com/deppfellow/trackr/internal/lib/job"
	"github.com/deppfellow/trackr/internal/lib/metrics"
	"github.com/deppfellow/trackr/internal/lib/provider"
	"github.com/deppfellow/trackr/internal/model"
)

const (
	defaultCommitLimit = 50
	maxCommitLimit     = 100
)

type sourceCodeRepository interface {
	ListRepositories(ctx context.Context, orgID int64, status *model.RepositoryStatus) ([]model.Repository, error)
	GetRepository(ctx context.Context, orgID, id int64) (*model.Repository, error)
	FindByExternalID(ctx context.Context, provider, externalID string, orgID int64) ([]model.Repository, error)
	CreateRepository(ctx context.Context, repo *model.Repository) error
	UpdateRepositoryStatus(ctx context.Context, orgID, id int64, status model.RepositoryStatus) error
	ListCommits(ctx context.Context, orgID, repoID int64, limit int) ([]model.Commit, error)
	SaveCommit(ctx context.Context, repo *model.Repository, data model.CommitData) (bool, error)
	LinkReleaseCommits(ctx context.Context, repo *model.Repository, version string, keys []string) error
}

type integrationLookup interface {
	GetIntegration(ctx context.Context, id int64) (*model.Integration, error)
	GetOrganizationIntegration(ctx context.Context, orgID, integrationID int64) (*model.OrganizationIntegration, error)
}

type providerRegistry interface {
	Get(id string) (provider.RepositoryProvider, error)
}

type SourceCodeService struct {
	repo         sourceCodeRepository
	integrations integrationLookup
	providers    providerRegistry
	queue        job.Enqueuer
	audit        AuditRecorder
	onboarding   OnboardingCompleter
	metrics      *metrics.Metrics
	logger       *zerolog.Logger
}

func NewSourceCodeService(
	repo sourceCodeRepository,
	integrations integrationLookup,
	providers providerRegistry,
	queue job.Enqueuer,
	audit AuditRecorder,
	onboarding OnboardingCompleter,
	m *metrics.Metrics,
	logger *zerolog.Logger,
) *SourceCodeService {
	return &SourceCodeService{
		repo:         repo,
		integrations: integrations,
		providers:    providers,
		queue:        queue,
		audit:        audit,
		onboarding:   onboarding,
		metrics:      m,
		logger:       logger,
	}
}

func (s *SourceCodeService) ListRepositories(ctx context.Context, orgID int64, status string) ([]model.Repository, error) {
	var filter *model.RepositoryStatus
	if status != "" {
		st := model.RepositoryStatus(status)
		switch st {
		case model.RepositoryActive, model.RepositoryDisabled, model.RepositoryHidden, model.RepositoryPendingDeletion:
		default:
			return nil, errs.NewBadRequestError("Invalid repository status: "+status, true, nil, nil, nil)
		}
		filter = &st
	}
	repos, err := s.repo.ListRepositories(ctx, orgID, filter)
	if err != nil {
		return nil, err
	}
	if repos == nil {
		repos = []model.Repository{}
	}
	return repos, nil
}

type CreateRepository struct {
	Provider      string
	Name          string
	ExternalID    string
	URL           string
	IntegrationID *int64
	Config        map[string]any
}

func (s *SourceCodeService) CreateRepository(ctx context.Context, org *model.Organization, actor model.Actor, req CreateRepository) (*model.Repository, error) {
	if !actor.Role.IsWriter() {
		return nil, errs.NewForbiddenError("You do not have permission to add repositories", true)
	}

	p, err := s.providers.Get(req.Provider)
	if err != nil {
		code := "INVALID_PROVIDER"
		return nil, errs.NewBadRequestError("Unknown repository provider: "+req.Provider, true, &code, nil, nil)
	}

	if req.IntegrationID != nil {
		if _, err := s.integrations.GetOrganizationIntegration(ctx, org.ID, *req.IntegrationID); err != nil {
			return nil, err
		}
	}

	cfg, err := p.ValidateConfig(provider.RepositoryConfig{
		Name:       strings.TrimSpace(req.Name),
		URL:        req.URL,
		ExternalID: req.ExternalID,
		Config:     req.Config,
	})
	if err != nil {
		code := "INVALID_REPOSITORY_CONFIG"
		return nil, errs.NewBadRequestError(err.Error(), true, &code, nil, nil)
	}

	repo := &model.Repository{
		OrganizationID: org.ID,
		Name:           cfg.Name,
		URL:            cfg.URL,
		Provider:       p.ID(),
		ExternalID:     cfg.ExternalID,
		IntegrationID:  req.IntegrationID,
		Status:         model.RepositoryActive,
		Config:         cfg.Config,
	}
	if err := s.repo.CreateRepository(ctx, repo); err != nil {
		return nil, err
	}

	s.audit.Record(ctx, newAuditEntry(org.ID, actor, model.AuditRepoAdd, &repo.ID, map[string]any{
		"name":     repo.Name,
		"provider": repo.Provider,
	}))
	if err := s.onboarding.Complete(ctx, org.ID, model.TaskIntegrations, actor.UserID); err != nil {
		s.logger.Error().Err(err).Int64("organization_id", org.ID).Msg("failed to complete integrations onboarding task")
	}
	return repo, nil
}

// DeleteRepository schedules the repository for deletion.
func (s *SourceCodeService) DeleteRepository(ctx context.Context, org *model.Organization, actor model.Actor, id int64) error {
	if !actor.Role.IsWriter() {
		return errs.NewForbiddenError("You do not have permission to remove repositories", true)
	}
	repo, err := s.repo.GetRepository(ctx, org.ID, id)
	if err != nil {
		return err
	}
	if err := s.repo.UpdateRepositoryStatus(ctx, org.ID, id, model.RepositoryPendingDeletion); err != nil {
		return err
	}
	s.audit.Record(ctx, newAuditEntry(org.ID, actor, model.AuditRepoRemove, &id, map[string]any{
		"name":     repo.Name,
		"provider": repo.Provider,
	}))
	return nil
}

func (s *SourceCodeService) ListCommits(ctx context.Context, orgID, repoID int64, limit int) ([]model.Commit, error) {
	if _, err := s.repo.GetRepository(ctx, orgID, repoID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultCommitLimit
	}
	if limit > maxCommitLimit {
		limit = maxCommitLimit
	}
	commits, err := s.repo.ListCommits(ctx, orgID, repoID, limit)
	if err != nil {
		return nil, err
	}
	if commits == nil {
		commits = []model.Commit{}
	}
	return commits, nil
}

type FetchCommits struct {
	StartSHA string
	EndSHA   string
	Version  string
}

// RequestCommits queues a fetch of the commits between two revisions.
func (s *SourceCodeService) RequestCommits(ctx context.Context, orgID, repoID int64, req FetchCommits) error {
	if req.EndSHA == "" {
		return errs.NewBadRequestError("end_sha is required", true, nil,
			[]errs.FieldError{{Field: "end_sha", Error: "is required"}}, nil)
	}
	repo, err := s.repo.GetRepository(ctx, orgID, repoID)
	if err != nil {
		return err
	}
	if repo.Status != model.RepositoryActive {
		return errs.NewBadRequestError("Repository is not active", true, nil, nil, nil)
	}
	task, buildErr := job.NewFetchCommitsTask(job.FetchCommitsPayload{
		OrganizationID: orgID,
		RepositoryID:   repoID,
		StartSHA:       req.StartSHA,
		EndSHA:         req.EndSHA,
		Version:        req.Version,
	})
	return enqueue(ctx, s.queue, task, buildErr)
}

// HandleFetchCommitsTask compares revisions on the provider and stores the
// commits found.
func (s *SourceCodeService) HandleFetchCommitsTask(ctx context.Context, t *asynq.Task) error {
	p, err := job.Decode[job.FetchCommitsPayload](t)
	if err != nil {
		return err
	}

	repo, err := s.repo.GetRepository(ctx, p.OrganizationID, p.RepositoryID)
	if err != nil {
		return job.Permanent(err)
	}
	if repo.Status != model.RepositoryActive {
		return nil
	}
	prov, err := s.providers.Get(repo.Provider)
	if err != nil {
		return job.Permanent(err)
	}

	commits, err := prov.CompareCommits(ctx, repo, p.StartSHA, p.EndSHA)
	if err != nil {
		var apiErr *provider.APIError
		if errors.As(err, &apiErr) && apiErr.Status >= http.StatusBadRequest && apiErr.Status < http.StatusInternalServerError {
			return job.Permanent(err)
		}
		return err
	}

	stored, err := s.saveCommits(ctx, repo, commits)
	if err != nil {
		return err
	}

	if p.Version != "" {
		keys := make([]string, 0, len(commits))
		for _, c := range commits {
			keys = append(keys, c.ID)
		}
		if err := s.repo.LinkReleaseCommits(ctx, repo, p.Version, keys); err != nil {
			return err
		}
	}

	s.logger.Info().
		Int64("repository_id", repo.ID).
		Int("fetched", len(commits)).
		Int("stored", stored).
		Msg("fetched repository commits")
	return nil
}

func (s *SourceCodeService) saveCommits(ctx context.Context, repo *model.Repository, commits []model.CommitData) (int, error) {
	stored := 0
	for _, c := range commits {
		if c.ID == "" {
			continue
		}
		created, err := s.repo.SaveCommit(ctx, repo, c)
		if err != nil {
			return stored, err
		}
		if created {
			stored++
		}
	}
	return stored, nil
}

// PushOptions scope how a push delivery is matched to repositories.
type PushOptions struct {
	// OrganizationID limits the match to one organization, 0 for any.
	OrganizationID int64
	// SharedSecret, when set, must match the secret of every matched
	// repository's integration.
	SharedSecret *string
}

// ReceivePush stores the commits of a push webhook. Pushes for unknown
// repositories are ignored.
func (s *SourceCodeService) ReceivePush(ctx context.Context, push *provider.Push, opts PushOptions) (int, error) {
	repos, err := s.repo.FindByExternalID(ctx, push.Provider, push.ExternalID, opts.OrganizationID)
	if err != nil {
		return 0, err
	}
	if len(repos) == 0 {
		s.metrics.WebhookDeliveries.WithLabelValues(push.Provider, metrics.OutcomeIgnored).Inc()
		s.logger.Debug().
			Str("provider", push.Provider).
			Str("external_id", push.ExternalID).
			Msg("push for unknown repository ignored")
		return 0, nil
	}

	if opts.SharedSecret != nil {
		for i := range repos {
			if err := s.checkSharedSecret(ctx, &repos[i], *opts.SharedSecret); err != nil {
				s.metrics.WebhookDeliveries.WithLabelValues(push.Provider, metrics.OutcomeFailure).Inc()
				return 0, err
			}
		}
	}

	total := 0
	for i := range repos {
		stored, err := s.saveCommits(ctx, &repos[i], push.Commits)
		total += stored
		if err != nil {
			s.metrics.WebhookDeliveries.WithLabelValues(push.Provider, metrics.OutcomeFailure).Inc()
			return total, err
		}
	}
	s.metrics.WebhookDeliveries.WithLabelValues(push.Provider, metrics.OutcomeSuccess).Inc()
	return total, nil
}

func (s *SourceCodeService) checkSharedSecret(ctx context.Context, repo *model.Repository, secret string) error {
	unauthorized := errs.NewUnauthorizedError("Invalid shared secret", true)
	if repo.IntegrationID == nil {
		return unauthorized
	}
	integration, err := s.integrations.GetIntegration(ctx, *repo.IntegrationID)
	if err != nil {
		return unauthorized
	}
	if !provider.SecretMatches(integration.MetadataString(model.MetadataSharedSecret), secret) {
		return unauthorized
	}
	return nil
}
