package tests

import (
	"github.com/google/uuid"
)

// Sqlite3URI returns a URI for a fresh in-memory SQLite database. The random
// name keeps concurrent tests from sharing state; shared cache keeps every
// connection of one test on the same database.
func Sqlite3URI() string {
	return "file::" + uuid.NewString() + ":?mode=memory&cache=shared&_foreign_keys=on"
}
