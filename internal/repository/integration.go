package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/deppfellow/trackr/internal/database"
	"github.com/deppfellow/trackr/internal/model"
	"github.com/deppfellow/trackr/internal/sqlerr"
)

type IntegrationRepository struct {
	pool *pgxpool.Pool
}

func NewIntegrationRepository(pool *pgxpool.Pool) *IntegrationRepository {
	return &IntegrationRepository{pool: pool}
}

const integrationColumns = `i.id, i.provider, i.external_id, i.name, i.metadata, i.status, i.date_added`

func scanIntegration(row pgx.Row) (*model.Integration, error) {
	var i model.Integration
	if err := row.Scan(&i.ID, &i.Provider, &i.ExternalID, &i.Name, &i.Metadata, &i.Status, &i.DateAdded); err != nil {
		return nil, err
	}
	return &i, nil
}

func (r *IntegrationRepository) GetIntegration(ctx context.Context, id int64) (*model.Integration, error) {
	i, err := scanIntegration(r.pool.QueryRow(ctx,
		`SELECT `+integrationColumns+` FROM integrations i WHERE i.id = $1`, id))
	if err != nil {
		return nil, sqlerr.NotFound("integrations", err)
	}
	return i, nil
}

func (r *IntegrationRepository) GetIntegrationByExternalID(ctx context.Context, provider, externalID string) (*model.Integration, error) {
	i, err := scanIntegration(r.pool.QueryRow(ctx,
		`SELECT `+integrationColumns+` FROM integrations i WHERE i.provider = $1 AND i.external_id = $2`,
		provider, externalID))
	if err != nil {
		return nil, sqlerr.NotFound("integrations", err)
	}
	return i, nil
}

func scanOrganizationIntegration(row pgx.Row) (*model.OrganizationIntegration, error) {
	var (
		oi model.OrganizationIntegration
		i  model.Integration
	)
	err := row.Scan(&oi.ID, &oi.OrganizationID, &oi.IntegrationID, &oi.Config, &oi.Status, &oi.DateAdded,
		&i.ID, &i.Provider, &i.ExternalID, &i.Name, &i.Metadata, &i.Status, &i.DateAdded)
	if err != nil {
		return nil, err
	}
	oi.Integration = &i
	return &oi, nil
}

const organizationIntegrationSelect = `
	SELECT oi.id, oi.organization_id, oi.integration_id, oi.config, oi.status, oi.date_added,
		` + integrationColumns + `
	FROM organization_integrations oi
	JOIN integrations i ON i.id = oi.integration_id`

func (r *IntegrationRepository) ListOrganizationIntegrations(ctx context.Context, orgID int64) ([]model.OrganizationIntegration, error) {
	rows, err := r.pool.Query(ctx, organizationIntegrationSelect+`
		WHERE oi.organization_id = $1
		ORDER BY i.provider, i.name`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list organization integrations: %w", err)
	}
	defer rows.Close()

	var result []model.OrganizationIntegration
	for rows.Next() {
		oi, err := scanOrganizationIntegration(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *oi)
	}
	return result, rows.Err()
}

func (r *IntegrationRepository) GetOrganizationIntegration(ctx context.Context, orgID, integrationID int64) (*model.OrganizationIntegration, error) {
	oi, err := scanOrganizationIntegration(r.pool.QueryRow(ctx, organizationIntegrationSelect+`
		WHERE oi.organization_id = $1 AND oi.integration_id = $2`, orgID, integrationID))
	if err != nil {
		return nil, sqlerr.NotFound("integrations", err)
	}
	return oi, nil
}

// ListInstallations lists the active organization installs of an
// integration, oldest first.
func (r *IntegrationRepository) ListInstallations(ctx context.Context, integrationID int64) ([]model.OrganizationIntegration, error) {
	rows, err := r.pool.Query(ctx, organizationIntegrationSelect+`
		WHERE oi.integration_id = $1 AND oi.status = 'active'
		ORDER BY oi.id`, integrationID)
	if err != nil {
		return nil, fmt.Errorf("list integration installations: %w", err)
	}
	defer rows.Close()

	var result []model.OrganizationIntegration
	for rows.Next() {
		oi, err := scanOrganizationIntegration(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *oi)
	}
	return result, rows.Err()
}

// Install creates or refreshes the integration and attaches it to the
// organization. IDs and timestamps are written back into the arguments.
func (r *IntegrationRepository) Install(ctx context.Context, integration *model.Integration, oi *model.OrganizationIntegration) error {
	return database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, `
			INSERT INTO integrations (provider, external_id, name, metadata)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (provider, external_id) DO UPDATE
			SET name = EXCLUDED.name, metadata = integrations.metadata || EXCLUDED.metadata, status = 'active'
			RETURNING id, metadata, status, date_added`,
			integration.Provider, integration.ExternalID, integration.Name, jsonMap(integration.Metadata),
		).Scan(&integration.ID, &integration.Metadata, &integration.Status, &integration.DateAdded); err != nil {
			return fmt.Errorf("upsert integration: %w", err)
		}

		oi.IntegrationID = integration.ID
		if err := tx.QueryRow(ctx, `
			INSERT INTO organization_integrations (organization_id, integration_id, config)
			VALUES ($1, $2, $3)
			ON CONFLICT (organization_id, integration_id) DO UPDATE
			SET config = EXCLUDED.config, status = 'active'
			RETURNING id, status, date_added`,
			oi.OrganizationID, oi.IntegrationID, jsonMap(oi.Config),
		).Scan(&oi.ID, &oi.Status, &oi.DateAdded); err != nil {
			return fmt.Errorf("upsert organization integration: %w", err)
		}
		oi.Integration = integration
		return nil
	})
}

func (r *IntegrationRepository) UpdateConfig(ctx context.Context, orgID, integrationID int64, config map[string]any) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE organization_integrations SET config = $3
		WHERE organization_id = $1 AND integration_id = $2`, orgID, integrationID, jsonMap(config))
	if err != nil {
		return fmt.Errorf("update integration config: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sqlerr.NotFound("integrations", pgx.ErrNoRows)
	}
	return nil
}

func (r *IntegrationRepository) Uninstall(ctx context.Context, orgID, integrationID int64) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM organization_integrations
		WHERE organization_id = $1 AND integration_id = $2`, orgID, integrationID)
	if err != nil {
		return fmt.Errorf("uninstall integration: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sqlerr.NotFound("integrations", pgx.ErrNoRows)
	}
	return nil
}

// ListAlertActions returns the project's alert targets on integrations of
// one provider.
func (r *IntegrationRepository) ListAlertActions(ctx context.Context, projectID int64, provider string) ([]model.AlertAction, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT a.id, a.project_id, a.integration_id, a.target_id, a.priority
		FROM project_alert_actions a
		JOIN integrations i ON i.id = a.integration_id
		WHERE a.project_id = $1 AND i.provider = $2 AND i.status = 'active'
		ORDER BY a.id`, projectID, provider)
	if err != nil {
		return nil, fmt.Errorf("list alert actions: %w", err)
	}
	defer rows.Close()

	var actions []model.AlertAction
	for rows.Next() {
		var a model.AlertAction
		if err := rows.Scan(&a.ID, &a.ProjectID, &a.IntegrationID, &a.TargetID, &a.Priority); err != nil {
			return nil, err
		}
		actions = append(actions, a)
	}
	return actions, rows.Err()
}

const identityColumns = `id, provider, idp_external_id, external_id, user_id, data, date_verified`

func scanIdentity(row pgx.Row) (*model.Identity, error) {
	var i model.Identity
	if err := row.Scan(&i.ID, &i.Provider, &i.IdpExternalID, &i.ExternalID, &i.UserID, &i.Data, &i.DateVerified); err != nil {
		return nil, err
	}
	return &i, nil
}

// GetIdentity finds the link for an external account.
func (r *IntegrationRepository) GetIdentity(ctx context.Context, provider, idpExternalID, externalID string) (*model.Identity, error) {
	i, err := scanIdentity(r.pool.QueryRow(ctx,
		`SELECT `+identityColumns+` FROM identities
		WHERE provider = $1 AND idp_external_id = $2 AND external_id = $3`,
		provider, idpExternalID, externalID))
	if err != nil {
		return nil, sqlerr.NotFound("identities", err)
	}
	return i, nil
}

func (r *IntegrationRepository) CreateIdentity(ctx context.Context, identity *model.Identity) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO identities (provider, idp_external_id, external_id, user_id, data)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, date_verified`,
		identity.Provider, identity.IdpExternalID, identity.ExternalID, identity.UserID, jsonMap(identity.Data),
	).Scan(&identity.ID, &identity.DateVerified)
	if err != nil {
		return fmt.Errorf("insert identity: %w", err)
	}
	return nil
}

func (r *IntegrationRepository) DeleteIdentity(ctx context.Context, id int64) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM identities WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete identity: %w", err)
	}
	return nil
}

// ListIdentitiesForUsers returns provider identities of the listed users.
func (r *IntegrationRepository) ListIdentitiesForUsers(ctx context.Context, provider string, userIDs []string) ([]model.Identity, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+identityColumns+` FROM identities
		WHERE provider = $1 AND user_id = ANY($2)
		ORDER BY id`, provider, userIDs)
	if err != nil {
		return nil, fmt.Errorf("list identities: %w", err)
	}
	defer rows.Close()

	var identities []model.Identity
	for rows.Next() {
		i, err := scanIdentity(rows)
		if err != nil {
			return nil, err
		}
		identities = append(identities, *i)
	}
	return identities, rows.Err()
}
