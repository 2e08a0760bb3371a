//go:build !cgo_sqlite

package markov

import (
	_ "modernc.org/sqlite"
)

const testDriver = "sqlite"
