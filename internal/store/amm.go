package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/hqmon/argusd/internal/model"
)

// SaveAMMConfig upserts an automatic measurement configuration.
func (s *Store) SaveAMMConfig(cfg *model.AMMConfiguration) error {
	body, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal amm config: %w", err)
	}
	_, err = s.db.Exec(`
INSERT INTO amm_configurations (id, status, updated_at, body)
VALUES (?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	status     = excluded.status,
	updated_at = excluded.updated_at,
	body       = excluded.body`,
		cfg.ID, string(cfg.Status), encodeTime(cfg.UpdatedAt), string(body))
	if err != nil {
		return fmt.Errorf("save amm config %s: %w", cfg.ID, err)
	}
	return nil
}

// GetAMMConfig loads one configuration by identifier.
func (s *Store) GetAMMConfig(id string) (*model.AMMConfiguration, error) {
	var body string
	err := s.db.QueryRow(`SELECT body FROM amm_configurations WHERE id = ?`, id).Scan(&body)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("amm config %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get amm config %s: %w", id, err)
	}
	var cfg model.AMMConfiguration
	if err := json.Unmarshal([]byte(body), &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal amm config %s: %w", id, err)
	}
	return &cfg, nil
}

// ListAMMConfigs returns all configurations, most recently updated first.
func (s *Store) ListAMMConfigs() ([]*model.AMMConfiguration, error) {
	rows, err := s.db.Query(`SELECT body FROM amm_configurations ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list amm configs: %w", err)
	}
	defer rows.Close()

	var configs []*model.AMMConfiguration
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("list amm configs: %w", err)
		}
		var cfg model.AMMConfiguration
		if err := json.Unmarshal([]byte(body), &cfg); err != nil {
			return nil, fmt.Errorf("unmarshal amm config: %w", err)
		}
		configs = append(configs, &cfg)
	}
	return configs, rows.Err()
}

// ActiveAMMConfigs returns the configurations the scheduler should drive.
func (s *Store) ActiveAMMConfigs() ([]*model.AMMConfiguration, error) {
	rows, err := s.db.Query(`SELECT body FROM amm_configurations WHERE status = ? ORDER BY id`,
		string(model.AMMStatusActive))
	if err != nil {
		return nil, fmt.Errorf("active amm configs: %w", err)
	}
	defer rows.Close()

	var configs []*model.AMMConfiguration
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("active amm configs: %w", err)
		}
		var cfg model.AMMConfiguration
		if err := json.Unmarshal([]byte(body), &cfg); err != nil {
			return nil, fmt.Errorf("unmarshal amm config: %w", err)
		}
		configs = append(configs, &cfg)
	}
	return configs, rows.Err()
}

// SaveAMMExecution upserts one execution record.
func (s *Store) SaveAMMExecution(exec *model.AMMExecution) error {
	body, err := json.Marshal(exec)
	if err != nil {
		return fmt.Errorf("marshal amm execution: %w", err)
	}
	_, err = s.db.Exec(`
INSERT INTO amm_executions (id, config_id, started_at, body)
VALUES (?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET body = excluded.body`,
		exec.ID, exec.ConfigID, encodeTime(exec.StartedAt), string(body))
	if err != nil {
		return fmt.Errorf("save amm execution %s: %w", exec.ID, err)
	}
	return nil
}

// ListAMMExecutions returns the newest executions of one configuration.
// limit <= 0 means no limit.
func (s *Store) ListAMMExecutions(configID string, limit int) ([]*model.AMMExecution, error) {
	query := `SELECT body FROM amm_executions WHERE config_id = ? ORDER BY started_at DESC`
	args := []any{configID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list amm executions %s: %w", configID, err)
	}
	defer rows.Close()

	var execs []*model.AMMExecution
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("list amm executions %s: %w", configID, err)
		}
		var exec model.AMMExecution
		if err := json.Unmarshal([]byte(body), &exec); err != nil {
			return nil, fmt.Errorf("unmarshal amm execution: %w", err)
		}
		execs = append(execs, &exec)
	}
	return execs, rows.Err()
}
