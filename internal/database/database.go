package database

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/backend/*.sql migrations/mirror/*.sql
var migrations embed.FS

// Open opens the backend SQLite database at the given path and runs the
// backend migrations. Per-namespace tables are provisioned separately by
// store.NamespaceStore.
func Open(dbPath string) (*sql.DB, error) {
	return open(dbPath, "migrations/backend")
}

// OpenMirror opens the client-side mirror database used as the local
// persistent key-value store.
func OpenMirror(dbPath string) (*sql.DB, error) {
	return open(dbPath, "migrations/mirror")
}

func open(dbPath, dir string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// :memory: databases are per-connection.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := runMigrations(db, dir); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return db, nil
}

func runMigrations(db *sql.DB, dir string) error {
	goose.SetBaseFS(migrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.Up(db, dir); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}

	return nil
}
