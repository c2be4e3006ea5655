package store

import (
	"encoding/json"
	"errors"
	"fmt"

	"context"

	"github.com/jackc/pgx/v5"
)

// Settings is a flat key to JSON-value map per tenant. Key uniqueness is
// enforced by the primary key on every write path.
const settingsTable = "settings"

const ensureSettingsSQL = `CREATE TABLE IF NOT EXISTS settings (
	tenant_id TEXT NOT NULL,
	key TEXT NOT NULL,
	value JSONB,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (tenant_id, key)
)`

func (s *Store) ensureSettings(ctx context.Context) error {
	if _, done := s.ensured.Load(settingsTable); done {
		return nil
	}
	if _, err := s.pool.Exec(ctx, ensureSettingsSQL); err != nil {
		return fmt.Errorf("store: ensure settings: %w", err)
	}
	s.ensured.Store(settingsTable, struct{}{})
	return nil
}

// GetSetting fetches one settings value. Corrupt values read as absent.
func (s *Store) GetSetting(ctx context.Context, tenantID, key string) ([]byte, bool, error) {
	if err := s.ensureSettings(ctx); err != nil {
		return nil, false, err
	}
	return getSetting(ctx, s.pool, tenantID, key, false)
}

// PutSetting upserts one settings key.
func (s *Store) PutSetting(ctx context.Context, tenantID, key string, value any) error {
	if err := s.ensureSettings(ctx); err != nil {
		return err
	}
	return putSetting(ctx, s.pool, tenantID, key, value)
}

// AllSettings returns the tenant's full settings map. Corrupt values are
// skipped.
func (s *Store) AllSettings(ctx context.Context, tenantID string) (map[string]json.RawMessage, error) {
	if err := s.ensureSettings(ctx); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, `SELECT key, value FROM settings WHERE tenant_id = $1`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("store: all settings: %w", err)
	}
	defer rows.Close()
	out := make(map[string]json.RawMessage)
	for rows.Next() {
		var key string
		var raw []byte
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, fmt.Errorf("store: settings row: %w", err)
		}
		if len(raw) == 0 || !json.Valid(raw) {
			continue
		}
		out[key] = json.RawMessage(raw)
	}
	return out, rows.Err()
}

// GetSetting fetches one settings value inside the transaction.
func (t *Tx) GetSetting(ctx context.Context, tenantID, key string) ([]byte, bool, error) {
	return getSetting(ctx, t.tx, tenantID, key, false)
}

// GetSettingForUpdate fetches and row-locks one settings value.
func (t *Tx) GetSettingForUpdate(ctx context.Context, tenantID, key string) ([]byte, bool, error) {
	return getSetting(ctx, t.tx, tenantID, key, true)
}

// PutSetting upserts one settings key inside the transaction.
func (t *Tx) PutSetting(ctx context.Context, tenantID, key string, value any) error {
	return putSetting(ctx, t.tx, tenantID, key, value)
}

func getSetting(ctx context.Context, q querier, tenantID, key string, forUpdate bool) ([]byte, bool, error) {
	query := `SELECT value FROM settings WHERE tenant_id = $1 AND key = $2`
	if forUpdate {
		query += " FOR UPDATE"
	}
	var raw []byte
	err := q.QueryRow(ctx, query, tenantID, key).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("store: get setting %s: %w", key, err)
	}
	if len(raw) == 0 || !json.Valid(raw) {
		return nil, false, nil
	}
	return raw, true, nil
}

func putSetting(ctx context.Context, q querier, tenantID, key string, value any) error {
	raw, err := marshalDoc(value)
	if err != nil {
		return fmt.Errorf("store: encode setting %s: %w", key, err)
	}
	_, err = q.Exec(ctx, `INSERT INTO settings (tenant_id, key, value) VALUES ($1, $2, $3)
		ON CONFLICT (tenant_id, key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`, tenantID, key, raw)
	if err != nil {
		return fmt.Errorf("store: put setting %s: %w", key, err)
	}
	return nil
}
