//go:build !cgo

package segment

import _ "modernc.org/sqlite"

// driverName is the database/sql driver registered for segment tables.
// Non-CGO builds fall back to the pure-Go modernc.org/sqlite driver,
// carried by the teacher in go.mod alongside mattn/go-sqlite3 for exactly
// this reason.
const driverName = "sqlite"
