package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/deppfellow/trackr/internal/errs"
	"github.com/deppfellow/trackr/internal/model"
)

const opsgenieTeamTable = "team_table"

type integrationRepository interface {
	ListOrganizationIntegrations(ctx context.Context, orgID int64) ([]model.OrganizationIntegration, error)
	GetOrganizationIntegration(ctx context.Context, orgID, integrationID int64) (*model.OrganizationIntegration, error)
	Install(ctx context.Context, integration *model.Integration, oi *model.OrganizationIntegration) error
	UpdateConfig(ctx context.Context, orgID, integrationID int64, config map[string]any) error
	Uninstall(ctx context.Context, orgID, integrationID int64) error
}

type IntegrationService struct {
	repo       integrationRepository
	audit      AuditRecorder
	onboarding OnboardingCompleter
	logger     *zerolog.Logger
}

func NewIntegrationService(repo integrationRepository, audit AuditRecorder, onboarding OnboardingCompleter, logger *zerolog.Logger) *IntegrationService {
	return &IntegrationService{repo: repo, audit: audit, onboarding: onboarding, logger: logger}
}

func (s *IntegrationService) List(ctx context.Context, orgID int64) ([]model.OrganizationIntegration, error) {
	list, err := s.repo.ListOrganizationIntegrations(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []model.OrganizationIntegration{}
	}
	return list, nil
}

type InstallIntegration struct {
	Provider   string
	ExternalID string
	Name       string
	Metadata   map[string]any
	Config     map[string]any
}

func (s *IntegrationService) Install(ctx context.Context, org *model.Organization, actor model.Actor, req InstallIntegration) (*model.OrganizationIntegration, error) {
	if !actor.Role.IsWriter() {
		return nil, errs.NewForbiddenError("You do not have permission to install integrations", true)
	}
	if !model.IsKnownIntegrationProvider(req.Provider) {
		code := "INVALID_PROVIDER"
		return nil, errs.NewBadRequestError("Unknown integration provider: "+req.Provider, true, &code, nil, nil)
	}
	externalID := strings.TrimSpace(req.ExternalID)
	if externalID == "" {
		return nil, errs.NewBadRequestError("external_id is required", true, nil,
			[]errs.FieldError{{Field: "external_id", Error: "is required"}}, nil)
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = externalID
	}

	metadata := copyMap(req.Metadata)
	if req.Provider == model.IntegrationVSTS && metadataString(metadata, model.MetadataSharedSecret) == "" {
		metadata[model.MetadataSharedSecret] = strings.ReplaceAll(uuid.NewString(), "-", "")
	}

	config, err := validateIntegrationConfig(req.Provider, req.Config)
	if err != nil {
		return nil, err
	}

	integration := &model.Integration{
		Provider:   req.Provider,
		ExternalID: externalID,
		Name:       name,
		Metadata:   metadata,
	}
	oi := &model.OrganizationIntegration{OrganizationID: org.ID, Config: config}
	if err := s.repo.Install(ctx, integration, oi); err != nil {
		return nil, err
	}

	s.audit.Record(ctx, newAuditEntry(org.ID, actor, model.AuditIntegrationAdd, &integration.ID, map[string]any{
		"provider": integration.Provider,
		"name":     integration.Name,
	}))
	if err := s.onboarding.Complete(ctx, org.ID, model.TaskIntegrations, actor.UserID); err != nil {
		s.logger.Error().Err(err).Int64("organization_id", org.ID).Msg("failed to complete integrations onboarding task")
	}
	return oi, nil
}

func (s *IntegrationService) UpdateConfig(ctx context.Context, org *model.Organization, actor model.Actor, integrationID int64, config map[string]any) (*model.OrganizationIntegration, error) {
	if !actor.Role.IsWriter() {
		return nil, errs.NewForbiddenError("You do not have permission to change integrations", true)
	}
	oi, err := s.repo.GetOrganizationIntegration(ctx, org.ID, integrationID)
	if err != nil {
		return nil, err
	}
	provider := ""
	if oi.Integration != nil {
		provider = oi.Integration.Provider
	}
	validated, err := validateIntegrationConfig(provider, config)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpdateConfig(ctx, org.ID, integrationID, validated); err != nil {
		return nil, err
	}
	oi.Config = validated

	s.audit.Record(ctx, newAuditEntry(org.ID, actor, model.AuditIntegrationEdit, &integrationID, map[string]any{
		"provider": provider,
	}))
	return oi, nil
}

func (s *IntegrationService) Uninstall(ctx context.Context, org *model.Organization, actor model.Actor, integrationID int64) error {
	if !actor.Role.IsWriter() {
		return errs.NewForbiddenError("You do not have permission to remove integrations", true)
	}
	oi, err := s.repo.GetOrganizationIntegration(ctx, org.ID, integrationID)
	if err != nil {
		return err
	}
	if err := s.repo.Uninstall(ctx, org.ID, integrationID); err != nil {
		return err
	}
	data := map[string]any{}
	if oi.Integration != nil {
		data["provider"] = oi.Integration.Provider
		data["name"] = oi.Integration.Name
	}
	s.audit.Record(ctx, newAuditEntry(org.ID, actor, model.AuditIntegrationRemove, &integrationID, data))
	return nil
}

// OpsgenieTeam is one row of an OpsGenie installation's team table.
type OpsgenieTeam struct {
	ID             string
	Team           string
	IntegrationKey string
}

// OpsgenieTeams reads the team table out of an OpsGenie installation config.
func OpsgenieTeams(config map[string]any) []OpsgenieTeam {
	rows, _ := config[opsgenieTeamTable].([]any)
	teams := make([]OpsgenieTeam, 0, len(rows))
	for _, r := range rows {
		row, ok := r.(map[string]any)
		if !ok {
			continue
		}
		teams = append(teams, OpsgenieTeam{
			ID:             metadataString(row, "id"),
			Team:           metadataString(row, "team"),
			IntegrationKey: metadataString(row, "integration_key"),
		})
	}
	return teams
}

func validateIntegrationConfig(provider string, config map[string]any) (map[string]any, error) {
	config = copyMap(config)
	if provider != model.IntegrationOpsgenie {
		return config, nil
	}

	raw, present := config[opsgenieTeamTable]
	if !present {
		config[opsgenieTeamTable] = []any{}
		return config, nil
	}
	rows, ok := raw.([]any)
	if !ok {
		return nil, invalidConfig(opsgenieTeamTable, "must be a list")
	}

	seen := make(map[string]bool, len(rows))
	table := make([]any, 0, len(rows))
	for i, r := range rows {
		row, ok := r.(map[string]any)
		if !ok {
			return nil, invalidConfig(opsgenieTeamTable, fmt.Sprintf("row %d must be an object", i))
		}
		team := strings.TrimSpace(metadataString(row, "team"))
		key := strings.TrimSpace(metadataString(row, "integration_key"))
		if team == "" {
			return nil, invalidConfig(opsgenieTeamTable, fmt.Sprintf("row %d is missing a team name", i))
		}
		if key == "" {
			return nil, invalidConfig(opsgenieTeamTable, fmt.Sprintf("team %q is missing an integration key", team))
		}
		lower := strings.ToLower(team)
		if seen[lower] {
			return nil, invalidConfig(opsgenieTeamTable, fmt.Sprintf("duplicate team name %q", team))
		}
		seen[lower] = true

		id := metadataString(row, "id")
		if id == "" {
			id = uuid.NewString()
		}
		table = append(table, map[string]any{"id": id, "team": team, "integration_key": key})
	}
	config[opsgenieTeamTable] = table
	return config, nil
}

func invalidConfig(field, msg string) error {
	code := "INVALID_INTEGRATION_CONFIG"
	return errs.NewBadRequestError("Invalid integration config", true, &code,
		[]errs.FieldError{{Field: field, Error: msg}}, nil)
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func metadataString(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}
