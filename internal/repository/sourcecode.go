package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/deppfellow/trackr/internal/database"
	"github.com/deppfellow/trackr/internal/model"
	"github.com/deppfellow/trackr/internal/sqlerr"
)

type SourceCodeRepository struct {
	pool *pgxpool.Pool
}

func NewSourceCodeRepository(pool *pgxpool.Pool) *SourceCodeRepository {
	return &SourceCodeRepository{pool: pool}
}

const repositoryColumns = `id, organization_id, name, url, provider, external_id, integration_id,
	status, config, date_added`

func scanRepository(row pgx.Row) (*model.Repository, error) {
	var r model.Repository
	err := row.Scan(&r.ID, &r.OrganizationID, &r.Name, &r.URL, &r.Provider, &r.ExternalID,
		&r.IntegrationID, &r.Status, &r.Config, &r.DateAdded)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func collectRepositories(rows pgx.Rows) ([]model.Repository, error) {
	defer rows.Close()
	var repos []model.Repository
	for rows.Next() {
		repo, err := scanRepository(rows)
		if err != nil {
			return nil, err
		}
		repos = append(repos, *repo)
	}
	return repos, rows.Err()
}

// ListRepositories lists an organization's repositories, optionally only
// those in one status.
func (r *SourceCodeRepository) ListRepositories(ctx context.Context, orgID int64, status *model.RepositoryStatus) ([]model.Repository, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+repositoryColumns+` FROM repositories
		WHERE organization_id = $1 AND ($2::text IS NULL OR status = $2::text)
		ORDER BY name`, orgID, status)
	if err != nil {
		return nil, fmt.Errorf("list repositories: %w", err)
	}
	return collectRepositories(rows)
}

func (r *SourceCodeRepository) GetRepository(ctx context.Context, orgID, id int64) (*model.Repository, error) {
	repo, err := scanRepository(r.pool.QueryRow(ctx,
		`SELECT `+repositoryColumns+` FROM repositories WHERE organization_id = $1 AND id = $2`, orgID, id))
	if err != nil {
		return nil, sqlerr.NotFound("repositories", err)
	}
	return repo, nil
}

// FindByExternalID returns the active repositories a provider id maps to.
// orgID 0 searches every organization.
func (r *SourceCodeRepository) FindByExternalID(ctx context.Context, provider, externalID string, orgID int64) ([]model.Repository, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+repositoryColumns+` FROM repositories
		WHERE provider = $1 AND external_id = $2 AND ($3::bigint = 0 OR organization_id = $3::bigint)
			AND status = 'active'
		ORDER BY id`, provider, externalID, orgID)
	if err != nil {
		return nil, fmt.Errorf("find repositories by external id: %w", err)
	}
	return collectRepositories(rows)
}

func (r *SourceCodeRepository) CreateRepository(ctx context.Context, repo *model.Repository) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO repositories (organization_id, name, url, provider, external_id, integration_id, status, config)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, date_added`,
		repo.OrganizationID, repo.Name, repo.URL, repo.Provider, repo.ExternalID, repo.IntegrationID,
		repo.Status, jsonMap(repo.Config),
	).Scan(&repo.ID, &repo.DateAdded)
	if err != nil {
		return fmt.Errorf("insert repository: %w", err)
	}
	return nil
}

func (r *SourceCodeRepository) UpdateRepositoryStatus(ctx context.Context, orgID, id int64, status model.RepositoryStatus) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE repositories SET status = $3 WHERE organization_id = $1 AND id = $2`, orgID, id, status)
	if err != nil {
		return fmt.Errorf("update repository status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sqlerr.NotFound("repositories", pgx.ErrNoRows)
	}
	return nil
}

// ListCommits returns a repository's newest commits with their authors.
func (r *SourceCodeRepository) ListCommits(ctx context.Context, orgID, repoID int64, limit int) ([]model.Commit, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT c.id, c.organization_id, c.repository_id, c.key, c.message, c.author_id, c.date_added,
			a.id, a.name, a.email, a.external_id
		FROM commits c
		LEFT JOIN commit_authors a ON a.id = c.author_id
		WHERE c.organization_id = $1 AND c.repository_id = $2
		ORDER BY c.date_added DESC, c.id DESC
		LIMIT $3`, orgID, repoID, limit)
	if err != nil {
		return nil, fmt.Errorf("list commits: %w", err)
	}
	defer rows.Close()

	var commits []model.Commit
	for rows.Next() {
		var (
			c           model.Commit
			authorID    *int64
			authorName  *string
			authorEmail *string
			externalID  *string
		)
		if err := rows.Scan(&c.ID, &c.OrganizationID, &c.RepositoryID, &c.Key, &c.Message, &c.AuthorID,
			&c.DateAdded, &authorID, &authorName, &authorEmail, &externalID); err != nil {
			return nil, err
		}
		if authorID != nil {
			c.Author = &model.CommitAuthor{
				ID:             *authorID,
				OrganizationID: c.OrganizationID,
				Name:           deref(authorName),
				Email:          deref(authorEmail),
				ExternalID:     externalID,
			}
		}
		commits = append(commits, c)
	}
	return commits, rows.Err()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// SaveCommit stores a commit with its author and file changes. It reports
// false without error when the repository already has the commit.
func (r *SourceCodeRepository) SaveCommit(ctx context.Context, repo *model.Repository, data model.CommitData) (bool, error) {
	created := false

	err := database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var authorID *int64
		if data.AuthorEmail != "" {
			var id int64
			if err := tx.QueryRow(ctx, `
				INSERT INTO commit_authors (organization_id, name, email)
				VALUES ($1, $2, lower($3))
				ON CONFLICT (organization_id, email) DO UPDATE
				SET name = CASE WHEN EXCLUDED.name <> '' THEN EXCLUDED.name ELSE commit_authors.name END
				RETURNING id`,
				repo.OrganizationID, data.AuthorName, data.AuthorEmail).Scan(&id); err != nil {
				return fmt.Errorf("upsert commit author: %w", err)
			}
			authorID = &id
		}

		dateAdded := time.Now().UTC()
		if data.Timestamp != nil {
			dateAdded = *data.Timestamp
		}

		var commitID int64
		err := tx.QueryRow(ctx, `
			INSERT INTO commits (organization_id, repository_id, key, message, author_id, date_added)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (repository_id, key) DO NOTHING
			RETURNING id`,
			repo.OrganizationID, repo.ID, data.ID, data.Message, authorID, dateAdded).Scan(&commitID)
		if sqlerr.IsNoRows(err) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("insert commit: %w", err)
		}
		created = true

		for _, patch := range data.Patches {
			if _, err := tx.Exec(ctx, `
				INSERT INTO commit_file_changes (organization_id, commit_id, filename, type)
				VALUES ($1, $2, $3, $4)
				ON CONFLICT (commit_id, filename) DO NOTHING`,
				repo.OrganizationID, commitID, patch.Path, string(patch.Type)); err != nil {
				return fmt.Errorf("insert file change %s: %w", patch.Path, err)
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return created, nil
}

// LinkReleaseCommits associates stored commits with a release version.
func (r *SourceCodeRepository) LinkReleaseCommits(ctx context.Context, repo *model.Repository, version string, keys []string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO release_commits (organization_id, version, commit_id)
		SELECT $1, $2, id FROM commits WHERE repository_id = $3 AND key = ANY($4)
		ON CONFLICT DO NOTHING`,
		repo.OrganizationID, version, repo.ID, keys)
	if err != nil {
		return fmt.Errorf("link release commits: %w", err)
	}
	return nil
}

// ListReleaseCommitters returns the members whose email authored a commit
// in the release.
func (r *SourceCodeRepository) ListReleaseCommitters(ctx context.Context, orgID int64, version string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT m.user_id
		FROM release_commits rc
		JOIN commits c ON c.id = rc.commit_id
		JOIN commit_authors a ON a.id = c.author_id
		JOIN organization_members m
			ON m.organization_id = rc.organization_id AND lower(m.email) = a.email
		WHERE rc.organization_id = $1 AND rc.version = $2
		ORDER BY m.user_id`, orgID, version)
	if err != nil {
		return nil, fmt.Errorf("list release committers: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}
