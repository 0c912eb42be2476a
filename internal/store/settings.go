package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dukerupert/tally/internal/model"
)

type SettingsStore struct {
	db *sql.DB
}

func NewSettingsStore(db *sql.DB) *SettingsStore {
	return &SettingsStore{db: db}
}

var settingOrderCols = []string{"key", "updated_at"}

func scanSetting(scanner interface{ Scan(...any) error }) (*model.Setting, error) {
	var st model.Setting
	var value string
	if err := scanner.Scan(&st.Key, &value, &st.UpdatedAt); err != nil {
		return nil, err
	}
	st.Value = json.RawMessage(value)
	return &st, nil
}

func (s *SettingsStore) Get(prefix, key string) (*model.Setting, error) {
	row := s.db.QueryRow(`SELECT key, value, updated_at FROM `+prefix+`settings WHERE key = ?`, key)
	st, err := scanSetting(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get setting %q: %w", key, err)
	}
	return st, nil
}

func (s *SettingsStore) List(prefix string, orders []Order) ([]model.Setting, error) {
	order, err := orderClause(orders, settingOrderCols, "key")
	if err != nil {
		return nil, err
	}
	rows, err := s.db.Query(`SELECT key, value, updated_at FROM ` + prefix + `settings` + order)
	if err != nil {
		return nil, fmt.Errorf("list settings: %w", err)
	}
	defer rows.Close()

	var settings []model.Setting
	for rows.Next() {
		st, err := scanSetting(rows)
		if err != nil {
			return nil, fmt.Errorf("scan setting: %w", err)
		}
		settings = append(settings, *st)
	}
	return settings, rows.Err()
}

// Set inserts or replaces a setting by key. A zero updatedAt means now.
func (s *SettingsStore) Set(prefix, key string, value json.RawMessage, updatedAt time.Time) error {
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	if len(value) == 0 {
		value = json.RawMessage("null")
	}
	_, err := s.db.Exec(
		`INSERT INTO `+prefix+`settings (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, string(value), updatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("set setting %q: %w", key, err)
	}
	return nil
}

func (s *SettingsStore) Delete(prefix, key string) (*model.Setting, error) {
	st, err := s.Get(prefix, key)
	if err != nil || st == nil {
		return nil, err
	}
	if _, err := s.db.Exec(`DELETE FROM `+prefix+`settings WHERE key = ?`, key); err != nil {
		return nil, fmt.Errorf("delete setting %q: %w", key, err)
	}
	return st, nil
}
