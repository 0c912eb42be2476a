package store

import (
	"database/sql"
	"fmt"
	"regexp"
	"strings"
)

// Collections are the logical tables every namespace owns.
var Collections = []string{"tasks", "gifts", "records", "requests", "settings"}

var prefixPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

const namespaceSchema = `
CREATE TABLE IF NOT EXISTS {p}tasks (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    name       TEXT NOT NULL,
    unit       TEXT NOT NULL DEFAULT '',
    score      REAL    NOT NULL DEFAULT 0,
    type       TEXT NOT NULL DEFAULT '',
    enabled    INTEGER NOT NULL DEFAULT 1,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS {p}gifts (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    name       TEXT NOT NULL,
    image      TEXT,
    score      REAL    NOT NULL DEFAULT 0,
    enabled    INTEGER NOT NULL DEFAULT 1,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS {p}records (
    id        INTEGER PRIMARY KEY AUTOINCREMENT,
    task_id   INTEGER,
    task_name TEXT NOT NULL DEFAULT '',
    score     REAL    NOT NULL DEFAULT 0,
    note      TEXT NOT NULL DEFAULT '',
    date      DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_{p}records_date ON {p}records(date);
CREATE TABLE IF NOT EXISTS {p}requests (
    id        INTEGER PRIMARY KEY AUTOINCREMENT,
    gift_id   INTEGER,
    gift_name TEXT NOT NULL DEFAULT '',
    score     REAL    NOT NULL DEFAULT 0,
    status    TEXT NOT NULL DEFAULT 'pending',
    date      DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_{p}requests_date ON {p}requests(date);
CREATE TABLE IF NOT EXISTS {p}settings (
    key        TEXT PRIMARY KEY,
    value      TEXT NOT NULL,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// NamespaceStore provisions and resolves per-user table namespaces.
type NamespaceStore struct {
	db *sql.DB
}

func NewNamespaceStore(db *sql.DB) *NamespaceStore {
	return &NamespaceStore{db: db}
}

// Provision creates the collection tables for prefix if they do not exist
// and records the namespace. It is idempotent.
func (s *NamespaceStore) Provision(userID, prefix string) error {
	if !prefixPattern.MatchString(prefix) {
		return fmt.Errorf("invalid table prefix %q", prefix)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(strings.ReplaceAll(namespaceSchema, "{p}", prefix)); err != nil {
		return fmt.Errorf("create tables for %q: %w", prefix, err)
	}
	if _, err := tx.Exec(
		`INSERT INTO namespaces (prefix, user_id) VALUES (?, ?)
		 ON CONFLICT(prefix) DO UPDATE SET user_id = excluded.user_id`,
		prefix, userID,
	); err != nil {
		return fmt.Errorf("record namespace %q: %w", prefix, err)
	}

	return tx.Commit()
}

// Prefixes returns all provisioned prefixes.
func (s *NamespaceStore) Prefixes() ([]string, error) {
	rows, err := s.db.Query(`SELECT prefix FROM namespaces ORDER BY prefix`)
	if err != nil {
		return nil, fmt.Errorf("list namespaces: %w", err)
	}
	defer rows.Close()

	var prefixes []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan namespace: %w", err)
		}
		prefixes = append(prefixes, p)
	}
	return prefixes, rows.Err()
}

// Resolve splits a full table name into a provisioned prefix and a logical
// collection. ok is false when the table does not belong to any namespace.
func (s *NamespaceStore) Resolve(table string) (prefix, collection string, ok bool, err error) {
	prefixes, err := s.Prefixes()
	if err != nil {
		return "", "", false, err
	}
	for _, p := range prefixes {
		rest, found := strings.CutPrefix(table, p)
		if !found {
			continue
		}
		for _, c := range Collections {
			if rest == c {
				return p, c, true, nil
			}
		}
	}
	return "", "", false, nil
}
