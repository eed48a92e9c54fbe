package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/hqmon/argusd/internal/model"
)

// paramsBlob wraps the per-type parameter block for the JSON column.
type paramsBlob struct {
	Measurement *model.MeasurementParams `json:"measurement,omitempty"`
	ListQuery   *model.ListQueryParams   `json:"list_query,omitempty"`
}

// SaveOrder inserts or updates an order row.
func (s *Store) SaveOrder(o *model.Order) error {
	params, err := json.Marshal(paramsBlob{Measurement: o.Measurement, ListQuery: o.ListQuery})
	if err != nil {
		return fmt.Errorf("marshal order params: %w", err)
	}

	var completedAt sql.NullString
	if o.CompletedAt != nil {
		completedAt = nullString(encodeTime(*o.CompletedAt))
	}
	var errCode, errMessage sql.NullString
	if o.Error != nil {
		errCode = nullString(o.Error.Code)
		errMessage = sql.NullString{String: o.Error.Message, Valid: true}
	}

	_, err = s.db.Exec(`
INSERT INTO orders (id, type, name, state, created_by, created_at, completed_at,
                    params, error_code, error_message, request_file, response_file)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	state         = excluded.state,
	completed_at  = excluded.completed_at,
	error_code    = excluded.error_code,
	error_message = excluded.error_message,
	request_file  = excluded.request_file,
	response_file = excluded.response_file`,
		o.ID, string(o.Type), o.Name, string(o.State), o.CreatedBy,
		encodeTime(o.CreatedAt), completedAt, string(params),
		errCode, errMessage, o.RequestFile, o.ResponseFile)
	if err != nil {
		return fmt.Errorf("save order %s: %w", o.ID, err)
	}
	return nil
}

// GetOrder loads one order by identifier.
func (s *Store) GetOrder(id string) (*model.Order, error) {
	row := s.db.QueryRow(`
SELECT id, type, name, state, created_by, created_at, completed_at,
       params, error_code, error_message, request_file, response_file
FROM orders WHERE id = ?`, id)

	o, err := scanOrder(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("order %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get order %s: %w", id, err)
	}
	return o, nil
}

// ListOrders returns orders newest first, optionally filtered by state.
// limit <= 0 means no limit.
func (s *Store) ListOrders(state model.OrderState, limit int) ([]*model.Order, error) {
	query := `
SELECT id, type, name, state, created_by, created_at, completed_at,
       params, error_code, error_message, request_file, response_file
FROM orders`
	args := []any{}
	if state != "" {
		query += " WHERE state = ?"
		args = append(args, string(state))
	}
	query += " ORDER BY created_at DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var orders []*model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("list orders: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// OpenOrders returns the orders still awaiting a terminal response.
func (s *Store) OpenOrders() ([]*model.Order, error) {
	rows, err := s.db.Query(`
SELECT id, type, name, state, created_by, created_at, completed_at,
       params, error_code, error_message, request_file, response_file
FROM orders WHERE state IN (?, ?) ORDER BY created_at`,
		string(model.OrderStateOpen), string(model.OrderStateInProcess))
	if err != nil {
		return nil, fmt.Errorf("open orders: %w", err)
	}
	defer rows.Close()

	var orders []*model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("open orders: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*model.Order, error) {
	var (
		o           model.Order
		orderType   string
		state       string
		createdAt   string
		completedAt sql.NullString
		params      string
		errCode     sql.NullString
		errMessage  sql.NullString
	)
	err := row.Scan(&o.ID, &orderType, &o.Name, &state, &o.CreatedBy, &createdAt,
		&completedAt, &params, &errCode, &errMessage, &o.RequestFile, &o.ResponseFile)
	if err != nil {
		return nil, err
	}

	o.Type = model.OrderType(orderType)
	o.State = model.OrderState(state)
	o.CreatedAt = decodeTime(createdAt)
	if completedAt.Valid {
		t := decodeTime(completedAt.String)
		o.CompletedAt = &t
	}
	if errCode.Valid {
		o.Error = &model.OrderError{Code: errCode.String, Message: errMessage.String}
	}

	var blob paramsBlob
	if err := json.Unmarshal([]byte(params), &blob); err != nil {
		return nil, fmt.Errorf("unmarshal order params: %w", err)
	}
	o.Measurement = blob.Measurement
	o.ListQuery = blob.ListQuery
	return &o, nil
}

// SaveMeasurements replaces the measurement points of an order. Replacing
// keeps response re-processing idempotent.
func (s *Store) SaveMeasurements(orderID string, points []model.MeasurementPoint) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("save measurements %s: %w", orderID, err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM measurements WHERE order_id = ?`, orderID); err != nil {
		return fmt.Errorf("save measurements %s: %w", orderID, err)
	}
	for i, p := range points {
		var level, bearing any
		if p.Level != nil {
			level = *p.Level
		}
		if p.Bearing != nil {
			bearing = *p.Bearing
		}
		if _, err := tx.Exec(`
INSERT INTO measurements (order_id, seq, frequency, level, bearing, timestamp)
VALUES (?, ?, ?, ?, ?, ?)`, orderID, i, p.Frequency, level, bearing, p.Timestamp); err != nil {
			return fmt.Errorf("save measurements %s: %w", orderID, err)
		}
	}
	return tx.Commit()
}

// Measurements returns the measurement points of an order in arrival order.
func (s *Store) Measurements(orderID string) ([]model.MeasurementPoint, error) {
	rows, err := s.db.Query(`
SELECT frequency, level, bearing, timestamp
FROM measurements WHERE order_id = ? ORDER BY seq`, orderID)
	if err != nil {
		return nil, fmt.Errorf("measurements %s: %w", orderID, err)
	}
	defer rows.Close()

	var points []model.MeasurementPoint
	for rows.Next() {
		var (
			p       model.MeasurementPoint
			level   sql.NullFloat64
			bearing sql.NullFloat64
		)
		if err := rows.Scan(&p.Frequency, &level, &bearing, &p.Timestamp); err != nil {
			return nil, fmt.Errorf("measurements %s: %w", orderID, err)
		}
		if level.Valid {
			v := level.Float64
			p.Level = &v
		}
		if bearing.Valid {
			v := bearing.Float64
			p.Bearing = &v
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// CountOrders returns the number of stored orders, for the status surface.
func (s *Store) CountOrders() (int64, error) {
	var n int64
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM orders`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count orders: %w", err)
	}
	return n, nil
}
