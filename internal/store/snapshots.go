package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/hqmon/argusd/internal/model"
)

// SaveSnapshot upserts the snapshot produced by one topology query. A
// re-processed response overwrites its own row, never a newer one from a
// different order.
func (s *Store) SaveSnapshot(snap *model.SystemSnapshot) error {
	body, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	_, err = s.db.Exec(`
INSERT INTO snapshots (order_id, kind, taken_at, body)
VALUES (?, ?, ?, ?)
ON CONFLICT(order_id) DO UPDATE SET
	kind     = excluded.kind,
	taken_at = excluded.taken_at,
	body     = excluded.body`,
		snap.OrderID, string(snap.Kind), encodeTime(snap.TakenAt), string(body))
	if err != nil {
		return fmt.Errorf("save snapshot %s: %w", snap.OrderID, err)
	}
	return nil
}

// GetSnapshot loads the snapshot decoded from one order's response.
func (s *Store) GetSnapshot(orderID string) (*model.SystemSnapshot, error) {
	var body string
	err := s.db.QueryRow(`SELECT body FROM snapshots WHERE order_id = ?`, orderID).Scan(&body)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("snapshot %s: %w", orderID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot %s: %w", orderID, err)
	}
	return unmarshalSnapshot(body)
}

// LatestSnapshot returns the newest snapshot, optionally restricted to one
// kind. Concurrent callers share a single query.
func (s *Store) LatestSnapshot(kind model.SnapshotKind) (*model.SystemSnapshot, error) {
	v, err, _ := s.sf.Do("latest_snapshot:"+string(kind), func() (any, error) {
		return s.latestSnapshot(kind)
	})
	if err != nil {
		return nil, err
	}
	return v.(*model.SystemSnapshot), nil
}

func (s *Store) latestSnapshot(kind model.SnapshotKind) (*model.SystemSnapshot, error) {
	query := `SELECT body FROM snapshots`
	args := []any{}
	if kind != "" {
		query += ` WHERE kind = ?`
		args = append(args, string(kind))
	}
	query += ` ORDER BY taken_at DESC LIMIT 1`

	var body string
	err := s.db.QueryRow(query, args...).Scan(&body)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("latest snapshot: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("latest snapshot: %w", err)
	}
	return unmarshalSnapshot(body)
}

func unmarshalSnapshot(body string) (*model.SystemSnapshot, error) {
	var snap model.SystemSnapshot
	if err := json.Unmarshal([]byte(body), &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &snap, nil
}
