// Package migrations embeds the SQL schema and applies it with goose.
package migrations

import (
	"database/sql"
	"embed"
	"fmt"
	"sync"

	"github.com/pressly/goose/v3"
)

//go:embed sql/*.sql
var embedded embed.FS

// goose keeps its dialect and base FS in package state
var mu sync.Mutex

// Run applies every pending migration
func Run(db *sql.DB) error {
	mu.Lock()
	defer mu.Unlock()

	goose.SetBaseFS(embedded)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	if err := goose.Up(db, "sql"); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}

// Version returns the current schema version
func Version(db *sql.DB) (int64, error) {
	mu.Lock()
	defer mu.Unlock()

	if err := goose.SetDialect("sqlite3"); err != nil {
		return 0, err
	}
	return goose.GetDBVersion(db)
}
