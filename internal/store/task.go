package store

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/dukerupert/tally/internal/model"
)

type TaskStore struct {
	db *sql.DB
}

func NewTaskStore(db *sql.DB) *TaskStore {
	return &TaskStore{db: db}
}

// TaskPatch holds the columns an update sets. Nil fields are left unchanged.
type TaskPatch struct {
	Name    *string  `json:"name"`
	Unit    *string  `json:"unit"`
	Score   *float64 `json:"score"`
	Type    *string  `json:"type"`
	Enabled *bool    `json:"enabled"`
}

const taskCols = `id, name, unit, score, type, enabled`

var taskOrderCols = []string{"id", "name", "unit", "score", "type", "enabled", "created_at"}

func scanTask(scanner interface{ Scan(...any) error }) (*model.Task, error) {
	var t model.Task
	var enabled int
	if err := scanner.Scan(&t.ID, &t.Name, &t.Unit, &t.Score, &t.Type, &enabled); err != nil {
		return nil, err
	}
	t.Enabled = model.Bool(enabled != 0)
	return &t, nil
}

func (s *TaskStore) Create(prefix string, t model.Task) (*model.Task, error) {
	result, err := s.db.Exec(
		`INSERT INTO `+prefix+`tasks (name, unit, score, type, enabled) VALUES (?, ?, ?, ?, ?)`,
		t.Name, t.Unit, t.Score, t.Type, boolToInt(t.IsEnabled()),
	)
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(prefix, id)
}

func (s *TaskStore) GetByID(prefix string, id int64) (*model.Task, error) {
	row := s.db.QueryRow(`SELECT `+taskCols+` FROM `+prefix+`tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

// List returns every task of the namespace in the requested order, or by id
// when no order is given.
func (s *TaskStore) List(prefix string, orders []Order) ([]model.Task, error) {
	order, err := orderClause(orders, taskOrderCols, "id ASC")
	if err != nil {
		return nil, err
	}
	rows, err := s.db.Query(`SELECT ` + taskCols + ` FROM ` + prefix + `tasks` + order)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

// Update applies patch and returns the updated row, or nil when id does not exist.
func (s *TaskStore) Update(prefix string, id int64, p TaskPatch) (*model.Task, error) {
	var sets []string
	var args []any
	if p.Name != nil {
		sets, args = append(sets, "name = ?"), append(args, *p.Name)
	}
	if p.Unit != nil {
		sets, args = append(sets, "unit = ?"), append(args, *p.Unit)
	}
	if p.Score != nil {
		sets, args = append(sets, "score = ?"), append(args, *p.Score)
	}
	if p.Type != nil {
		sets, args = append(sets, "type = ?"), append(args, *p.Type)
	}
	if p.Enabled != nil {
		sets, args = append(sets, "enabled = ?"), append(args, boolToInt(*p.Enabled))
	}
	if len(sets) > 0 {
		args = append(args, id)
		if _, err := s.db.Exec(`UPDATE `+prefix+`tasks SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...); err != nil {
			return nil, fmt.Errorf("update task: %w", err)
		}
	}
	return s.GetByID(prefix, id)
}

// Delete removes the task and returns the deleted row, or nil when nothing matched.
func (s *TaskStore) Delete(prefix string, id int64) (*model.Task, error) {
	t, err := s.GetByID(prefix, id)
	if err != nil || t == nil {
		return nil, err
	}
	if _, err := s.db.Exec(`DELETE FROM `+prefix+`tasks WHERE id = ?`, id); err != nil {
		return nil, fmt.Errorf("delete task: %w", err)
	}
	return t, nil
}
