//go:build cgo_sqlite

package markov

import (
	_ "github.com/mattn/go-sqlite3"
)

const testDriver = "sqlite3"
