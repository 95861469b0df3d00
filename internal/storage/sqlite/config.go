package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/deskbridge/deskbridge/internal/storage"
	"github.com/deskbridge/deskbridge/internal/types"
)

// ActiveSyncConfig returns the single active connection configuration.
func (o ops) ActiveSyncConfig(ctx context.Context) (*types.SyncConfig, error) {
	row := o.q.QueryRowContext(ctx, `
		SELECT id, name, url, email, api_token, active, company_id, last_sync_at
		FROM sync_config
		WHERE active = 1
		ORDER BY id
		LIMIT 1`)

	cfg, err := scanSyncConfig(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNoActiveConfig
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load active sync config: %w", err)
	}
	return cfg, nil
}

// SaveSyncConfig inserts or updates a configuration. Activating a config
// deactivates any other active config of the same company first, keeping the
// partial unique index satisfied.
func (o ops) SaveSyncConfig(ctx context.Context, cfg *types.SyncConfig) error {
	if cfg.CompanyID == 0 {
		cfg.CompanyID = 1
	}

	if cfg.Active {
		_, err := o.q.ExecContext(ctx, `
			UPDATE sync_config SET active = 0
			WHERE company_id = ? AND active = 1 AND id != ?`,
			cfg.CompanyID, cfg.ID)
		if err != nil {
			return fmt.Errorf("failed to deactivate previous config: %w", err)
		}
	}

	if cfg.ID == 0 {
		res, err := o.q.ExecContext(ctx, `
			INSERT INTO sync_config (name, url, email, api_token, active, company_id, last_sync_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			cfg.Name, cfg.URL, cfg.Email, cfg.APIToken, cfg.Active, cfg.CompanyID, cfg.LastSyncAt)
		if err != nil {
			return fmt.Errorf("failed to insert sync config: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get sync config id: %w", err)
		}
		cfg.ID = id
		return nil
	}

	_, err := o.q.ExecContext(ctx, `
		UPDATE sync_config
		SET name = ?, url = ?, email = ?, api_token = ?, active = ?, company_id = ?
		WHERE id = ?`,
		cfg.Name, cfg.URL, cfg.Email, cfg.APIToken, cfg.Active, cfg.CompanyID, cfg.ID)
	if err != nil {
		return fmt.Errorf("failed to update sync config: %w", err)
	}
	return nil
}

// SetLastSync records the watermark after a completed pull run.
func (o ops) SetLastSync(ctx context.Context, configID int64, at time.Time) error {
	res, err := o.q.ExecContext(ctx,
		`UPDATE sync_config SET last_sync_at = ? WHERE id = ?`, at.UTC(), configID)
	if err != nil {
		return fmt.Errorf("failed to set last sync time: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func scanSyncConfig(row *sql.Row) (*types.SyncConfig, error) {
	var cfg types.SyncConfig
	var lastSync sql.NullTime
	err := row.Scan(&cfg.ID, &cfg.Name, &cfg.URL, &cfg.Email, &cfg.APIToken,
		&cfg.Active, &cfg.CompanyID, &lastSync)
	if err != nil {
		return nil, err
	}
	if lastSync.Valid {
		t := lastSync.Time.UTC()
		cfg.LastSyncAt = &t
	}
	return &cfg, nil
}
