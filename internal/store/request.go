package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/tally/internal/model"
)

type RequestStore struct {
	db *sql.DB
}

func NewRequestStore(db *sql.DB) *RequestStore {
	return &RequestStore{db: db}
}

// RequestPatch changes the review status of a request. It is the only
// mutable column.
type RequestPatch struct {
	Status *model.RequestStatus `json:"status"`
}

const requestCols = `id, gift_id, gift_name, score, status, date`

var requestOrderCols = []string{"id", "gift_id", "score", "status", "date"}

func scanRequest(scanner interface{ Scan(...any) error }) (*model.RequestRow, error) {
	var r model.RequestRow
	var giftID sql.NullInt64
	if err := scanner.Scan(&r.ID, &giftID, &r.GiftName, &r.Score, &r.Status, &r.Date); err != nil {
		return nil, err
	}
	if giftID.Valid {
		r.GiftID = &giftID.Int64
	}
	return &r, nil
}

func (s *RequestStore) Create(prefix string, r model.RequestRow) (*model.RequestRow, error) {
	status := r.Status
	if status == "" {
		status = model.RequestPending
	}
	date := r.Date
	if date.IsZero() {
		date = time.Now()
	}
	result, err := s.db.Exec(
		`INSERT INTO `+prefix+`requests (gift_id, gift_name, score, status, date) VALUES (?, ?, ?, ?, ?)`,
		nullInt64(r.GiftID), r.GiftName, r.Score, string(status), date.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert request: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(prefix, id)
}

func (s *RequestStore) GetByID(prefix string, id int64) (*model.RequestRow, error) {
	row := s.db.QueryRow(`SELECT `+requestCols+` FROM `+prefix+`requests WHERE id = ?`, id)
	r, err := scanRequest(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get request: %w", err)
	}
	return r, nil
}

func (s *RequestStore) List(prefix string, orders []Order) ([]model.RequestRow, error) {
	order, err := orderClause(orders, requestOrderCols, "date DESC")
	if err != nil {
		return nil, err
	}
	rows, err := s.db.Query(`SELECT ` + requestCols + ` FROM ` + prefix + `requests` + order)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	defer rows.Close()

	var requests []model.RequestRow
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan request: %w", err)
		}
		requests = append(requests, *r)
	}
	return requests, rows.Err()
}

func (s *RequestStore) Update(prefix string, id int64, p RequestPatch) (*model.RequestRow, error) {
	if p.Status != nil {
		if _, err := s.db.Exec(`UPDATE `+prefix+`requests SET status = ? WHERE id = ?`, string(*p.Status), id); err != nil {
			return nil, fmt.Errorf("update request: %w", err)
		}
	}
	return s.GetByID(prefix, id)
}

func (s *RequestStore) Delete(prefix string, id int64) (*model.RequestRow, error) {
	r, err := s.GetByID(prefix, id)
	if err != nil || r == nil {
		return nil, err
	}
	if _, err := s.db.Exec(`DELETE FROM `+prefix+`requests WHERE id = ?`, id); err != nil {
		return nil, fmt.Errorf("delete request: %w", err)
	}
	return r, nil
}
