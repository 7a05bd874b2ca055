package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"mdpreview/internal/model"
)

// SettingsStore keeps per-user editor preferences as a JSON row.
type SettingsStore struct {
	db *DB
}

// Load returns defaults when the user has never saved settings.
func (s *SettingsStore) Load(ctx context.Context, userID string) (model.Settings, error) {
	var js string
	err := s.db.sql.QueryRowContext(ctx, `SELECT settings_json FROM user_settings WHERE user_id = ?`, userID).Scan(&js)
	if errors.Is(err, sql.ErrNoRows) {
		return model.DefaultSettings(), nil
	}
	if err != nil {
		return model.Settings{}, err
	}
	var st model.Settings
	if err := json.Unmarshal([]byte(js), &st); err != nil {
		// Best-effort; a corrupt row falls back to defaults.
		return model.DefaultSettings(), nil
	}
	return st.WithDefaults(), nil
}

func (s *SettingsStore) Save(ctx context.Context, userID string, st model.Settings) error {
	if err := st.Validate(); err != nil {
		return err
	}
	b, err := json.Marshal(st)
	if err != nil {
		return err
	}
	_, err = s.db.sql.ExecContext(ctx, `INSERT INTO user_settings(user_id, settings_json, updated_at_unixms) VALUES(?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET settings_json = excluded.settings_json, updated_at_unixms = excluded.updated_at_unixms`,
		userID, string(b), unixMS(s.db.now()))
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}
