package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/tally/internal/model"
)

// RecordStore holds the activity log. Records are append-only: they are
// inserted and deleted, never updated.
type RecordStore struct {
	db *sql.DB
}

func NewRecordStore(db *sql.DB) *RecordStore {
	return &RecordStore{db: db}
}

const recordCols = `id, task_id, task_name, score, note, date`

var recordOrderCols = []string{"id", "task_id", "score", "date"}

func scanRecord(scanner interface{ Scan(...any) error }) (*model.RecordRow, error) {
	var r model.RecordRow
	var taskID sql.NullInt64
	if err := scanner.Scan(&r.ID, &taskID, &r.TaskName, &r.Score, &r.Note, &r.Date); err != nil {
		return nil, err
	}
	if taskID.Valid {
		r.TaskID = &taskID.Int64
	}
	return &r, nil
}

func nullInt64(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

func (s *RecordStore) Create(prefix string, r model.RecordRow) (*model.RecordRow, error) {
	date := r.Date
	if date.IsZero() {
		date = time.Now()
	}
	result, err := s.db.Exec(
		`INSERT INTO `+prefix+`records (task_id, task_name, score, note, date) VALUES (?, ?, ?, ?, ?)`,
		nullInt64(r.TaskID), r.TaskName, r.Score, r.Note, date.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert record: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(prefix, id)
}

func (s *RecordStore) GetByID(prefix string, id int64) (*model.RecordRow, error) {
	row := s.db.QueryRow(`SELECT `+recordCols+` FROM `+prefix+`records WHERE id = ?`, id)
	r, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	return r, nil
}

func (s *RecordStore) List(prefix string, orders []Order) ([]model.RecordRow, error) {
	order, err := orderClause(orders, recordOrderCols, "date DESC")
	if err != nil {
		return nil, err
	}
	rows, err := s.db.Query(`SELECT ` + recordCols + ` FROM ` + prefix + `records` + order)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var records []model.RecordRow
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		records = append(records, *r)
	}
	return records, rows.Err()
}

func (s *RecordStore) Delete(prefix string, id int64) (*model.RecordRow, error) {
	r, err := s.GetByID(prefix, id)
	if err != nil || r == nil {
		return nil, err
	}
	if _, err := s.db.Exec(`DELETE FROM `+prefix+`records WHERE id = ?`, id); err != nil {
		return nil, fmt.Errorf("delete record: %w", err)
	}
	return r, nil
}
