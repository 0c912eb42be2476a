package store

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/dukerupert/tally/internal/model"
)

type GiftStore struct {
	db *sql.DB
}

func NewGiftStore(db *sql.DB) *GiftStore {
	return &GiftStore{db: db}
}

type GiftPatch struct {
	Name    *string  `json:"name"`
	Image   *string  `json:"image"`
	Score   *float64 `json:"score"`
	Enabled *bool    `json:"enabled"`
}

const giftCols = `id, name, image, score, enabled`

var giftOrderCols = []string{"id", "name", "score", "enabled", "created_at"}

func scanGift(scanner interface{ Scan(...any) error }) (*model.Gift, error) {
	var g model.Gift
	var image sql.NullString
	var enabled int
	if err := scanner.Scan(&g.ID, &g.Name, &image, &g.Score, &enabled); err != nil {
		return nil, err
	}
	g.Image = image.String
	g.Enabled = model.Bool(enabled != 0)
	return &g, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func (s *GiftStore) Create(prefix string, g model.Gift) (*model.Gift, error) {
	result, err := s.db.Exec(
		`INSERT INTO `+prefix+`gifts (name, image, score, enabled) VALUES (?, ?, ?, ?)`,
		g.Name, nullString(g.Image), g.Score, boolToInt(g.IsEnabled()),
	)
	if err != nil {
		return nil, fmt.Errorf("insert gift: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(prefix, id)
}

func (s *GiftStore) GetByID(prefix string, id int64) (*model.Gift, error) {
	row := s.db.QueryRow(`SELECT `+giftCols+` FROM `+prefix+`gifts WHERE id = ?`, id)
	g, err := scanGift(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get gift: %w", err)
	}
	return g, nil
}

func (s *GiftStore) List(prefix string, orders []Order) ([]model.Gift, error) {
	order, err := orderClause(orders, giftOrderCols, "id ASC")
	if err != nil {
		return nil, err
	}
	rows, err := s.db.Query(`SELECT ` + giftCols + ` FROM ` + prefix + `gifts` + order)
	if err != nil {
		return nil, fmt.Errorf("list gifts: %w", err)
	}
	defer rows.Close()

	var gifts []model.Gift
	for rows.Next() {
		g, err := scanGift(rows)
		if err != nil {
			return nil, fmt.Errorf("scan gift: %w", err)
		}
		gifts = append(gifts, *g)
	}
	return gifts, rows.Err()
}

func (s *GiftStore) Update(prefix string, id int64, p GiftPatch) (*model.Gift, error) {
	var sets []string
	var args []any
	if p.Name != nil {
		sets, args = append(sets, "name = ?"), append(args, *p.Name)
	}
	if p.Image != nil {
		sets, args = append(sets, "image = ?"), append(args, nullString(*p.Image))
	}
	if p.Score != nil {
		sets, args = append(sets, "score = ?"), append(args, *p.Score)
	}
	if p.Enabled != nil {
		sets, args = append(sets, "enabled = ?"), append(args, boolToInt(*p.Enabled))
	}
	if len(sets) > 0 {
		args = append(args, id)
		if _, err := s.db.Exec(`UPDATE `+prefix+`gifts SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...); err != nil {
			return nil, fmt.Errorf("update gift: %w", err)
		}
	}
	return s.GetByID(prefix, id)
}

func (s *GiftStore) Delete(prefix string, id int64) (*model.Gift, error) {
	g, err := s.GetByID(prefix, id)
	if err != nil || g == nil {
		return nil, err
	}
	if _, err := s.db.Exec(`DELETE FROM `+prefix+`gifts WHERE id = ?`, id); err != nil {
		return nil, fmt.Errorf("delete gift: %w", err)
	}
	return g, nil
}
