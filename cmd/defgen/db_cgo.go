//go:build cgo_sqlite

package main

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
)

// initDB opens the model database with the cgo SQLite driver.
func initDB(path string) (*sql.DB, error) {
	return sql.Open("sqlite3", withParams(path, "_journal_mode=WAL&_busy_timeout=5000"))
}
