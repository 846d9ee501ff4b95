package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/deppfellow/trackr/internal/model"
	"github.com/deppfellow/trackr/internal/sqlerr"
)

type TenancyRepository struct {
	pool *pgxpool.Pool
}

func NewTenancyRepository(pool *pgxpool.Pool) *TenancyRepository {
	return &TenancyRepository{pool: pool}
}

const organizationColumns = `id, slug, name, status, options, date_added`

func scanOrganization(row pgx.Row) (*model.Organization, error) {
	var o model.Organization
	if err := row.Scan(&o.ID, &o.Slug, &o.Name, &o.Status, &o.Options, &o.DateAdded); err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *TenancyRepository) GetOrganizationBySlug(ctx context.Context, slug string) (*model.Organization, error) {
	org, err := scanOrganization(r.pool.QueryRow(ctx,
		`SELECT `+organizationColumns+` FROM organizations WHERE slug = $1`, slug))
	if err != nil {
		return nil, sqlerr.NotFound("organizations", err)
	}
	return org, nil
}

func (r *TenancyRepository) GetOrganization(ctx context.Context, id int64) (*model.Organization, error) {
	org, err := scanOrganization(r.pool.QueryRow(ctx,
		`SELECT `+organizationColumns+` FROM organizations WHERE id = $1`, id))
	if err != nil {
		return nil, sqlerr.NotFound("organizations", err)
	}
	return org, nil
}

// SetOrganizationOption stores value under key unless the key is already
// present. It reports whether the option was written.
func (r *TenancyRepository) SetOrganizationOption(ctx context.Context, orgID int64, key string, value any) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE organizations
		SET options = options || jsonb_build_object($2::text, $3::jsonb)
		WHERE id = $1 AND NOT (options ? $2::text)`,
		orgID, key, value)
	if err != nil {
		return false, fmt.Errorf("set organization option %q: %w", key, err)
	}
	return tag.RowsAffected() == 1, nil
}

const projectColumns = `id, organization_id, slug, name, platform, first_event, date_added`

func scanProject(row pgx.Row) (*model.Project, error) {
	var p model.Project
	if err := row.Scan(&p.ID, &p.OrganizationID, &p.Slug, &p.Name, &p.Platform, &p.FirstEvent, &p.DateAdded); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *TenancyRepository) GetProject(ctx context.Context, orgID int64, slug string) (*model.Project, error) {
	p, err := scanProject(r.pool.QueryRow(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE organization_id = $1 AND slug = $2`, orgID, slug))
	if err != nil {
		return nil, sqlerr.NotFound("projects", err)
	}
	return p, nil
}

func (r *TenancyRepository) GetProjectByID(ctx context.Context, id int64) (*model.Project, error) {
	p, err := scanProject(r.pool.QueryRow(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE id = $1`, id))
	if err != nil {
		return nil, sqlerr.NotFound("projects", err)
	}
	return p, nil
}

const memberColumns = `organization_id, user_id, email, role, date_added`

func scanMember(row pgx.Row) (*model.Member, error) {
	var m model.Member
	if err := row.Scan(&m.OrganizationID, &m.UserID, &m.Email, &m.Role, &m.DateAdded); err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *TenancyRepository) GetMember(ctx context.Context, orgID int64, userID string) (*model.Member, error) {
	m, err := scanMember(r.pool.QueryRow(ctx,
		`SELECT `+memberColumns+` FROM organization_members WHERE organization_id = $1 AND user_id = $2`,
		orgID, userID))
	if err != nil {
		return nil, sqlerr.NotFound("organization_members", err)
	}
	return m, nil
}

// ListProjectMembers returns everyone who can see the project. Projects are
// visible to every member of their organization.
func (r *TenancyRepository) ListProjectMembers(ctx context.Context, projectID int64) ([]model.Member, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT m.organization_id, m.user_id, m.email, m.role, m.date_added
		FROM organization_members m
		JOIN projects p ON p.organization_id = m.organization_id
		WHERE p.id = $1
		ORDER BY m.user_id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list project members: %w", err)
	}
	defer rows.Close()

	var members []model.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, *m)
	}
	return members, rows.Err()
}
