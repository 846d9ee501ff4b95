package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/deppfellow/trackr/internal/model"
	"github.com/deppfellow/trackr/internal/sqlerr"
)

type APIKeyRepository struct {
	pool *pgxpool.Pool
}

func NewAPIKeyRepository(pool *pgxpool.Pool) *APIKeyRepository {
	return &APIKeyRepository{pool: pool}
}

const apiKeyColumns = `id, organization_id, label, hint, created_by, date_added`

func scanAPIKey(row pgx.Row) (*model.APIKey, error) {
	var k model.APIKey
	if err := row.Scan(&k.ID, &k.OrganizationID, &k.Label, &k.Hint, &k.CreatedBy, &k.DateAdded); err != nil {
		return nil, err
	}
	return &k, nil
}

func (r *APIKeyRepository) GetByHash(ctx context.Context, hash string) (*model.APIKey, error) {
	k, err := scanAPIKey(r.pool.QueryRow(ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE key_hash = $1`, hash))
	if err != nil {
		return nil, sqlerr.NotFound("api_keys", err)
	}
	return k, nil
}

func (r *APIKeyRepository) List(ctx context.Context, orgID int64) ([]model.APIKey, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE organization_id = $1 ORDER BY id`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	var keys []model.APIKey
	for rows.Next() {
		k, err := scanAPIKey(rows)
		if err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, *k)
	}
	return keys, rows.Err()
}

// Create stores k under hash and fills its id and date.
func (r *APIKeyRepository) Create(ctx context.Context, k *model.APIKey, hash string) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO api_keys (organization_id, label, key_hash, hint, created_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, date_added`,
		k.OrganizationID, k.Label, hash, k.Hint, k.CreatedBy).Scan(&k.ID, &k.DateAdded)
	if err != nil {
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

func (r *APIKeyRepository) Get(ctx context.Context, orgID, id int64) (*model.APIKey, error) {
	k, err := scanAPIKey(r.pool.QueryRow(ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE organization_id = $1 AND id = $2`, orgID, id))
	if err != nil {
		return nil, sqlerr.NotFound("api_keys", err)
	}
	return k, nil
}

func (r *APIKeyRepository) Delete(ctx context.Context, orgID, id int64) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM api_keys WHERE organization_id = $1 AND id = $2`, orgID, id); err != nil {
		return fmt.Errorf("delete api key: %w", err)
	}
	return nil
}
