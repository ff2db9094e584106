package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// SettingsRepository handles the runtime tunables of the trader. Settings
// are stored as strings and converted to appropriate types when retrieved.
// This allows runtime configuration changes without restarting.
type SettingsRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewSettingsRepository creates a new settings repository.
func NewSettingsRepository(db *sql.DB, log zerolog.Logger) *SettingsRepository {
	return &SettingsRepository{
		db:  db,
		log: log.With().Str("repo", "settings").Logger(),
	}
}

// defaultSettings are seeded on first run if the key is absent.
var defaultSettings = map[string]string{
	"enabled":              "false",
	"paper_balance":        "100000",
	"max_positions":        "5",
	"max_daily_risk_pct":   "20",
	"max_margin_pct":       "70",
	"max_per_sector":       "2",
	"stop_loss_multiplier": "2",
	"profit_target_pct":    "50",
	"min_dte":              "1",
	"max_dte":              "45",
	"manage_dte":           "21",
	"allowed_strategies":   `["short_put","credit_spread","covered_call"]`,
	"min_spread_width":     "5",
	"monitor_interval_sec": "30",
	"morning_scan_time":    "06:00",
	"analysis_time":        "07:00",
	"execution_time":       "09:31",
	"eod_review_time":      "16:01",
	"reflection_time":      "16:30",
	"deepseek_model":       "deepseek-r1:70b",
	"grok_model":           "grok-4",
}

// SeedDefaults inserts any missing default settings. Existing values are
// never overwritten.
func (r *SettingsRepository) SeedDefaults() error {
	now := time.Now().Unix()
	for key, value := range defaultSettings {
		_, err := r.db.Exec(`
			INSERT INTO settings (key, value, updated_at)
			VALUES (?, ?, ?)
			ON CONFLICT(key) DO NOTHING
		`, key, value, now)
		if err != nil {
			return fmt.Errorf("failed to seed setting %s: %w", key, err)
		}
	}
	return nil
}

// Get retrieves a setting value by key.
// Returns nil if the setting doesn't exist (not an error).
func (r *SettingsRepository) Get(key string) (*string, error) {
	var value string
	err := r.db.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get setting %s: %w", key, err)
	}
	return &value, nil
}

// Set sets a setting value, inserting or updating as needed.
func (r *SettingsRepository) Set(key, value string) error {
	_, err := r.db.Exec(`
		INSERT INTO settings (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`, key, value, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to set setting %s: %w", key, err)
	}
	return nil
}

// GetAll retrieves all settings as a map.
func (r *SettingsRepository) GetAll() (map[string]string, error) {
	rows, err := r.db.Query("SELECT key, value FROM settings")
	if err != nil {
		return nil, fmt.Errorf("failed to get all settings: %w", err)
	}
	defer rows.Close()

	result := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			r.log.Warn().Err(err).Msg("Failed to scan setting row")
			continue
		}
		result[key] = value
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating settings: %w", err)
	}

	return result, nil
}

// GetFloat retrieves a setting value as float64.
// Returns defaultValue if the setting doesn't exist or parsing fails.
func (r *SettingsRepository) GetFloat(key string, defaultValue float64) (float64, error) {
	value, err := r.Get(key)
	if err != nil {
		return defaultValue, err
	}
	if value == nil {
		return defaultValue, nil
	}

	floatVal, err := strconv.ParseFloat(strings.TrimSpace(*value), 64)
	if err != nil {
		r.log.Warn().
			Err(err).
			Str("key", key).
			Str("value", *value).
			Msg("Failed to parse float setting")
		return defaultValue, nil
	}

	return floatVal, nil
}

// GetInt retrieves a setting value as integer.
// Parses via float first to handle "12.0" strings from the database.
func (r *SettingsRepository) GetInt(key string, defaultValue int) (int, error) {
	value, err := r.Get(key)
	if err != nil {
		return defaultValue, err
	}
	if value == nil {
		return defaultValue, nil
	}

	floatVal, err := strconv.ParseFloat(strings.TrimSpace(*value), 64)
	if err != nil {
		r.log.Warn().
			Err(err).
			Str("key", key).
			Str("value", *value).
			Msg("Failed to parse int setting")
		return defaultValue, nil
	}

	return int(floatVal), nil
}

// GetBool retrieves a setting value as boolean.
// Recognizes "true", "1", "yes", "on" as truthy.
func (r *SettingsRepository) GetBool(key string, defaultValue bool) (bool, error) {
	value, err := r.Get(key)
	if err != nil {
		return defaultValue, err
	}
	if value == nil {
		return defaultValue, nil
	}

	switch strings.ToLower(strings.TrimSpace(*value)) {
	case "true", "1", "yes", "on":
		return true, nil
	}
	return false, nil
}

// SetBool sets a setting value as boolean, stored as "true" or "false".
func (r *SettingsRepository) SetBool(key string, value bool) error {
	strVal := "false"
	if value {
		strVal = "true"
	}
	return r.Set(key, strVal)
}

// GetStringList retrieves a setting stored as a JSON array of strings.
// Returns defaultValue if the setting doesn't exist or parsing fails.
func (r *SettingsRepository) GetStringList(key string, defaultValue []string) ([]string, error) {
	value, err := r.Get(key)
	if err != nil {
		return defaultValue, err
	}
	if value == nil {
		return defaultValue, nil
	}

	var list []string
	if err := json.Unmarshal([]byte(*value), &list); err != nil {
		r.log.Warn().
			Err(err).
			Str("key", key).
			Str("value", *value).
			Msg("Failed to parse list setting")
		return defaultValue, nil
	}

	return list, nil
}

// Delete deletes a setting. Idempotent.
func (r *SettingsRepository) Delete(key string) error {
	_, err := r.db.Exec("DELETE FROM settings WHERE key = ?", key)
	if err != nil {
		return fmt.Errorf("failed to delete setting %s: %w", key, err)
	}
	return nil
}
