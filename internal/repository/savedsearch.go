package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/deppfellow/trackr/internal/model"
	"github.com/deppfellow/trackr/internal/sqlerr"
)

type SavedSearchRepository struct {
	pool *pgxpool.Pool
}

func NewSavedSearchRepository(pool *pgxpool.Pool) *SavedSearchRepository {
	return &SavedSearchRepository{pool: pool}
}

const savedSearchColumns = `id, organization_id, owner_id, name, query, sort, type, visibility,
	is_global, visibility = 'owner_pinned', date_added`

func scanSavedSearch(row pgx.Row) (*model.SavedSearch, error) {
	var s model.SavedSearch
	err := row.Scan(&s.ID, &s.OrganizationID, &s.OwnerID, &s.Name, &s.Query, &s.Sort, &s.Type,
		&s.Visibility, &s.IsGlobal, &s.IsPinned, &s.DateAdded)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// List returns the searches a user can see for one search type: global
// ones, ones shared with the organization and the user's own. Pinned
// searches come first.
func (r *SavedSearchRepository) List(ctx context.Context, orgID int64, userID string, searchType model.SearchType) ([]model.SavedSearch, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+savedSearchColumns+`
		FROM saved_searches
		WHERE type = $3 AND (
			is_global
			OR (organization_id = $1 AND (visibility = 'organization' OR owner_id = $2))
		)
		ORDER BY visibility = 'owner_pinned' DESC, is_global DESC, lower(name), id`,
		orgID, userID, int(searchType))
	if err != nil {
		return nil, fmt.Errorf("list saved searches: %w", err)
	}
	defer rows.Close()

	var searches []model.SavedSearch
	for rows.Next() {
		s, err := scanSavedSearch(rows)
		if err != nil {
			return nil, err
		}
		searches = append(searches, *s)
	}
	return searches, rows.Err()
}

// Get loads a search of the organization or a global one.
func (r *SavedSearchRepository) Get(ctx context.Context, orgID, id int64) (*model.SavedSearch, error) {
	s, err := scanSavedSearch(r.pool.QueryRow(ctx, `
		SELECT `+savedSearchColumns+`
		FROM saved_searches
		WHERE id = $2 AND (organization_id = $1 OR is_global)`, orgID, id))
	if err != nil {
		return nil, sqlerr.NotFound("saved_searches", err)
	}
	return s, nil
}

// QueryExists reports whether an equivalent search is already visible in
// the scope the new search would be created in.
func (r *SavedSearchRepository) QueryExists(ctx context.Context, orgID int64, userID string, s *model.SavedSearch) (bool, error) {
	var exists bool
	var err error
	if s.Visibility == model.VisibilityOrganization {
		err = r.pool.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM saved_searches
				WHERE type = $2 AND query = $3 AND (
					(organization_id = $1 AND visibility = 'organization') OR is_global
				)
			)`, orgID, int(s.Type), s.Query).Scan(&exists)
	} else {
		err = r.pool.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM saved_searches
				WHERE organization_id = $1 AND owner_id = $2 AND type = $3 AND query = $4
					AND visibility = 'owner'
			)`, orgID, userID, int(s.Type), s.Query).Scan(&exists)
	}
	if err != nil {
		return false, fmt.Errorf("check saved search query: %w", err)
	}
	return exists, nil
}

func (r *SavedSearchRepository) Create(ctx context.Context, s *model.SavedSearch) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO saved_searches (organization_id, owner_id, name, query, sort, type, visibility, is_global)
		VALUES ($1, $2, $3, $4, $5, $6, $7, false)
		RETURNING id, date_added`,
		s.OrganizationID, s.OwnerID, s.Name, s.Query, s.Sort, int(s.Type), s.Visibility,
	).Scan(&s.ID, &s.DateAdded)
	if err != nil {
		return fmt.Errorf("insert saved search: %w", err)
	}
	return nil
}

func (r *SavedSearchRepository) Delete(ctx context.Context, id int64) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM saved_searches WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete saved search: %w", err)
	}
	return nil
}

// UpsertPinned replaces the user's pinned search for s.Type.
func (r *SavedSearchRepository) UpsertPinned(ctx context.Context, s *model.SavedSearch) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO saved_searches (organization_id, owner_id, name, query, sort, type, visibility)
		VALUES ($1, $2, $3, $4, $5, $6, 'owner_pinned')
		ON CONFLICT (organization_id, owner_id, type) WHERE visibility = 'owner_pinned'
		DO UPDATE SET query = EXCLUDED.query, sort = EXCLUDED.sort, name = EXCLUDED.name
		RETURNING id, date_added`,
		s.OrganizationID, s.OwnerID, s.Name, s.Query, s.Sort, int(s.Type),
	).Scan(&s.ID, &s.DateAdded)
	if err != nil {
		return fmt.Errorf("upsert pinned search: %w", err)
	}
	s.Visibility = model.VisibilityOwnerPinned
	s.IsPinned = true
	return nil
}

func (r *SavedSearchRepository) DeletePinned(ctx context.Context, orgID int64, userID string, searchType model.SearchType) error {
	_, err := r.pool.Exec(ctx, `
		DELETE FROM saved_searches
		WHERE organization_id = $1 AND owner_id = $2 AND type = $3 AND visibility = 'owner_pinned'`,
		orgID, userID, int(searchType))
	if err != nil {
		return fmt.Errorf("delete pinned search: %w", err)
	}
	return nil
}
