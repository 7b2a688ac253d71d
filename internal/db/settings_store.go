package db

import (
	"context"
	"database/sql"
	"fmt"
)

// Preference keys persisted locally
const (
	SettingSkipDeleteConfirm = "skip_delete_confirm"
)

// GetSetting returns the stored value for key, or "" when unset
func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get setting %q: %w", key, err)
	}
	return value, nil
}

// SetSetting stores a value for key, replacing any previous one
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO settings (key, value) VALUES (?, ?)`, key, value)
	if err != nil {
		return fmt.Errorf("set setting %q: %w", key, err)
	}
	return nil
}

// SkipDeleteConfirm reports whether the destructive-delete confirmation is
// bypassed for this user.
func (s *Store) SkipDeleteConfirm(ctx context.Context) (bool, error) {
	value, err := s.GetSetting(ctx, SettingSkipDeleteConfirm)
	if err != nil {
		return false, err
	}
	return value == "true", nil
}

// SetSkipDeleteConfirm persists the delete-confirmation bypass preference
func (s *Store) SetSkipDeleteConfirm(ctx context.Context, skip bool) error {
	value := "false"
	if skip {
		value = "true"
	}
	return s.SetSetting(ctx, SettingSkipDeleteConfirm, value)
}
