//go:build !cgo_sqlite

package main

import (
	"database/sql"

	_ "modernc.org/sqlite"
)

// initDB opens the model database with the pure Go SQLite driver.
func initDB(path string) (*sql.DB, error) {
	return sql.Open("sqlite", withParams(path, "_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"))
}
