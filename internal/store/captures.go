package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hqmon/argusd/internal/model"
)

// captureBody holds the decoded frames for the JSON column. Raw bytes stay
// on disk; the database carries only the parse result.
type captureBody struct {
	Spectrum *model.SpectrumFrame `json:"spectrum,omitempty"`
	IQ       *model.IQFrame       `json:"iq,omitempty"`
}

// SaveCapture inserts one capture record.
func (s *Store) SaveCapture(rec *model.CaptureRecord) error {
	body, err := json.Marshal(captureBody{Spectrum: rec.Spectrum, IQ: rec.IQ})
	if err != nil {
		return fmt.Errorf("marshal capture body: %w", err)
	}
	_, err = s.db.Exec(`
INSERT INTO captures (id, received_at, source, type, size_bytes, raw_file, parsed, order_id, body)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, encodeTime(rec.ReceivedAt), rec.Source, string(rec.Type),
		rec.SizeBytes, rec.RawFile, rec.Parsed, rec.OrderID, string(body))
	if err != nil {
		return fmt.Errorf("save capture %s: %w", rec.ID, err)
	}
	return nil
}

// GetCapture loads one capture record.
func (s *Store) GetCapture(id string) (*model.CaptureRecord, error) {
	row := s.db.QueryRow(`
SELECT id, received_at, source, type, size_bytes, raw_file, parsed, order_id, body
FROM captures WHERE id = ?`, id)

	rec, err := scanCapture(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("capture %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get capture %s: %w", id, err)
	}
	return rec, nil
}

// ListCaptures returns the newest capture records. limit <= 0 means no limit.
func (s *Store) ListCaptures(limit int) ([]*model.CaptureRecord, error) {
	query := `
SELECT id, received_at, source, type, size_bytes, raw_file, parsed, order_id, body
FROM captures ORDER BY received_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list captures: %w", err)
	}
	defer rows.Close()

	var records []*model.CaptureRecord
	for rows.Next() {
		rec, err := scanCapture(rows)
		if err != nil {
			return nil, fmt.Errorf("list captures: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func scanCapture(row rowScanner) (*model.CaptureRecord, error) {
	var (
		rec         model.CaptureRecord
		receivedAt  string
		captureType string
		body        sql.NullString
	)
	err := row.Scan(&rec.ID, &receivedAt, &rec.Source, &captureType,
		&rec.SizeBytes, &rec.RawFile, &rec.Parsed, &rec.OrderID, &body)
	if err != nil {
		return nil, err
	}

	rec.ReceivedAt = decodeTime(receivedAt)
	rec.Type = model.CaptureType(captureType)
	if body.Valid && body.String != "" {
		var b captureBody
		if err := json.Unmarshal([]byte(body.String), &b); err != nil {
			return nil, fmt.Errorf("unmarshal capture body: %w", err)
		}
		rec.Spectrum = b.Spectrum
		rec.IQ = b.IQ
	}
	return &rec, nil
}

// DeleteCapturesBefore removes capture rows older than cutoff and returns
// how many were deleted. The raw files are the retention manager's job.
func (s *Store) DeleteCapturesBefore(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM captures WHERE received_at < ?`, encodeTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("delete captures: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete captures: %w", err)
	}
	return n, nil
}

// CountCaptures returns the number of stored capture rows.
func (s *Store) CountCaptures() (int64, error) {
	var n int64
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM captures`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count captures: %w", err)
	}
	return n, nil
}
