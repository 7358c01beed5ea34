package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// ConfigRepo persists small per-bot key/value entries in ct_config — used
// for the processed-event set (internal/strategyloop) and per-strategy
// runtime overrides that don't warrant their own column.
type ConfigRepo struct {
	db *sqlx.DB
}

// Get returns the stored value for (botID, key).
func (r *ConfigRepo) Get(botID, key string) (string, error) {
	var value string
	err := r.db.Get(&value, `SELECT value FROM ct_config WHERE bot_id = ? AND key = ?`, botID, key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("fetching config %s/%s: %w", botID, key, err)
	}
	return value, nil
}

// Set upserts (botID, key) -> value.
func (r *ConfigRepo) Set(botID, key, value string) error {
	_, err := r.db.Exec(`
		INSERT INTO ct_config (bot_id, key, value, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(bot_id, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		botID, key, value, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("setting config %s/%s: %w", botID, key, err)
	}
	return nil
}

// Delete removes (botID, key) if present; absence is not an error.
func (r *ConfigRepo) Delete(botID, key string) error {
	if _, err := r.db.Exec(`DELETE FROM ct_config WHERE bot_id = ? AND key = ?`, botID, key); err != nil {
		return fmt.Errorf("deleting config %s/%s: %w", botID, key, err)
	}
	return nil
}
