package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/deppfellow/trackr/internal/database"
	"github.com/deppfellow/trackr/internal/model"
)

type NotificationRepository struct {
	pool *pgxpool.Pool
}

func NewNotificationRepository(pool *pgxpool.Pool) *NotificationRepository {
	return &NotificationRepository{pool: pool}
}

// ListOptions returns the options of the listed users, optionally for one
// notification type.
func (r *NotificationRepository) ListOptions(ctx context.Context, userIDs []string, typ *model.NotificationType) ([]model.NotificationSettingOption, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, scope_type, scope_identifier, user_id, type, value
		FROM notification_setting_options
		WHERE user_id = ANY($1) AND ($2::text IS NULL OR type = $2::text)
		ORDER BY id`, userIDs, typ)
	if err != nil {
		return nil, fmt.Errorf("list notification options: %w", err)
	}
	defer rows.Close()

	var options []model.NotificationSettingOption
	for rows.Next() {
		var o model.NotificationSettingOption
		if err := rows.Scan(&o.ID, &o.ScopeType, &o.ScopeIdentifier, &o.UserID, &o.Type, &o.Value); err != nil {
			return nil, err
		}
		options = append(options, o)
	}
	return options, rows.Err()
}

// ListProviders returns the provider settings of the listed users.
func (r *NotificationRepository) ListProviders(ctx context.Context, userIDs []string, typ *model.NotificationType) ([]model.NotificationSettingProvider, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, scope_type, scope_identifier, user_id, provider, type, value
		FROM notification_setting_providers
		WHERE user_id = ANY($1) AND ($2::text IS NULL OR type = $2::text)
		ORDER BY id`, userIDs, typ)
	if err != nil {
		return nil, fmt.Errorf("list notification providers: %w", err)
	}
	defer rows.Close()

	var providers []model.NotificationSettingProvider
	for rows.Next() {
		var p model.NotificationSettingProvider
		if err := rows.Scan(&p.ID, &p.ScopeType, &p.ScopeIdentifier, &p.UserID, &p.Provider, &p.Type, &p.Value); err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	return providers, rows.Err()
}

// UpsertOptions writes all options in one transaction.
func (r *NotificationRepository) UpsertOptions(ctx context.Context, options []model.NotificationSettingOption) error {
	return database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		for i := range options {
			o := &options[i]
			if err := tx.QueryRow(ctx, `
				INSERT INTO notification_setting_options (scope_type, scope_identifier, user_id, type, value)
				VALUES ($1, $2, $3, $4, $5)
				ON CONFLICT (scope_type, scope_identifier, user_id, type) DO UPDATE SET value = EXCLUDED.value
				RETURNING id`,
				o.ScopeType, o.ScopeIdentifier, o.UserID, o.Type, o.Value).Scan(&o.ID); err != nil {
				return fmt.Errorf("upsert notification option: %w", err)
			}
		}
		return nil
	})
}

// UpsertProviders writes all provider settings in one transaction.
func (r *NotificationRepository) UpsertProviders(ctx context.Context, providers []model.NotificationSettingProvider) error {
	return database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		for i := range providers {
			p := &providers[i]
			if err := tx.QueryRow(ctx, `
				INSERT INTO notification_setting_providers (scope_type, scope_identifier, user_id, provider, type, value)
				VALUES ($1, $2, $3, $4, $5, $6)
				ON CONFLICT (scope_type, scope_identifier, user_id, provider, type) DO UPDATE SET value = EXCLUDED.value
				RETURNING id`,
				p.ScopeType, p.ScopeIdentifier, p.UserID, p.Provider, p.Type, p.Value).Scan(&p.ID); err != nil {
				return fmt.Errorf("upsert notification provider: %w", err)
			}
		}
		return nil
	})
}

// DeleteOption removes one of the user's options and reports whether it
// existed.
func (r *NotificationRepository) DeleteOption(ctx context.Context, userID string, id int64) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM notification_setting_options WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return false, fmt.Errorf("delete notification option: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *NotificationRepository) DeleteProvider(ctx context.Context, userID string, id int64) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM notification_setting_providers WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return false, fmt.Errorf("delete notification provider: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
