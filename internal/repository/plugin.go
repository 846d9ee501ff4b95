package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/deppfellow/trackr/internal/model"
	"github.com/deppfellow/trackr/internal/sqlerr"
)

type PluginRepository struct {
	pool *pgxpool.Pool
}

func NewPluginRepository(pool *pgxpool.Pool) *PluginRepository {
	return &PluginRepository{pool: pool}
}

// GetPlugin returns the project's plugin row, nil when the plugin was never
// configured.
func (r *PluginRepository) GetPlugin(ctx context.Context, projectID int64, plugin string) (*model.ProjectPlugin, error) {
	var p model.ProjectPlugin
	err := r.pool.QueryRow(ctx, `
		SELECT project_id, plugin, enabled, config FROM project_plugins
		WHERE project_id = $1 AND plugin = $2`, projectID, plugin,
	).Scan(&p.ProjectID, &p.Plugin, &p.Enabled, &p.Config)
	if sqlerr.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get project plugin: %w", err)
	}
	return &p, nil
}

func (r *PluginRepository) UpsertPlugin(ctx context.Context, p *model.ProjectPlugin) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO project_plugins (project_id, plugin, enabled, config)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (project_id, plugin) DO UPDATE SET enabled = EXCLUDED.enabled, config = EXCLUDED.config`,
		p.ProjectID, p.Plugin, p.Enabled, jsonMap(p.Config))
	if err != nil {
		return fmt.Errorf("upsert project plugin: %w", err)
	}
	return nil
}

func (r *PluginRepository) DisablePlugin(ctx context.Context, projectID int64, plugin string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE project_plugins SET enabled = false WHERE project_id = $1 AND plugin = $2`, projectID, plugin)
	if err != nil {
		return fmt.Errorf("disable project plugin: %w", err)
	}
	return nil
}
