package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/hqmon/argusd/internal/model"
)

// SaveFrequencyList upserts the result of a frequency list query.
func (s *Store) SaveFrequencyList(l *model.FrequencyList) error {
	entries, err := json.Marshal(l.Entries)
	if err != nil {
		return fmt.Errorf("marshal frequency entries: %w", err)
	}
	_, err = s.db.Exec(`
INSERT INTO frequency_lists (order_id, name, created_at, entries)
VALUES (?, ?, ?, ?)
ON CONFLICT(order_id) DO UPDATE SET
	name       = excluded.name,
	created_at = excluded.created_at,
	entries    = excluded.entries`,
		l.OrderID, l.Name, encodeTime(l.CreatedAt), string(entries))
	if err != nil {
		return fmt.Errorf("save frequency list %s: %w", l.OrderID, err)
	}
	return nil
}

// GetFrequencyList loads the frequency list produced by one order.
func (s *Store) GetFrequencyList(orderID string) (*model.FrequencyList, error) {
	var (
		l         model.FrequencyList
		createdAt string
		entries   string
	)
	err := s.db.QueryRow(`
SELECT order_id, name, created_at, entries FROM frequency_lists WHERE order_id = ?`, orderID).
		Scan(&l.OrderID, &l.Name, &createdAt, &entries)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("frequency list %s: %w", orderID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get frequency list %s: %w", orderID, err)
	}
	l.CreatedAt = decodeTime(createdAt)
	if err := json.Unmarshal([]byte(entries), &l.Entries); err != nil {
		return nil, fmt.Errorf("unmarshal frequency entries: %w", err)
	}
	return &l, nil
}

// SaveTransmitterList upserts the result of a transmitter list query.
func (s *Store) SaveTransmitterList(l *model.TransmitterList) error {
	entries, err := json.Marshal(l.Entries)
	if err != nil {
		return fmt.Errorf("marshal transmitter entries: %w", err)
	}
	_, err = s.db.Exec(`
INSERT INTO transmitter_lists (order_id, name, created_at, entries)
VALUES (?, ?, ?, ?)
ON CONFLICT(order_id) DO UPDATE SET
	name       = excluded.name,
	created_at = excluded.created_at,
	entries    = excluded.entries`,
		l.OrderID, l.Name, encodeTime(l.CreatedAt), string(entries))
	if err != nil {
		return fmt.Errorf("save transmitter list %s: %w", l.OrderID, err)
	}
	return nil
}

// GetTransmitterList loads the transmitter list produced by one order.
func (s *Store) GetTransmitterList(orderID string) (*model.TransmitterList, error) {
	var (
		l         model.TransmitterList
		createdAt string
		entries   string
	)
	err := s.db.QueryRow(`
SELECT order_id, name, created_at, entries FROM transmitter_lists WHERE order_id = ?`, orderID).
		Scan(&l.OrderID, &l.Name, &createdAt, &entries)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("transmitter list %s: %w", orderID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get transmitter list %s: %w", orderID, err)
	}
	l.CreatedAt = decodeTime(createdAt)
	if err := json.Unmarshal([]byte(entries), &l.Entries); err != nil {
		return nil, fmt.Errorf("unmarshal transmitter entries: %w", err)
	}
	return &l, nil
}
