//go:build cgo

package segment

import _ "github.com/mattn/go-sqlite3"

// driverName is the database/sql driver registered for segment tables.
// CGO builds prefer mattn/go-sqlite3 (the teacher's primary driver).
const driverName = "sqlite3"
