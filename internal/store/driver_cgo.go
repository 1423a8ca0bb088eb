//go:build cgo

package store

import _ "github.com/mattn/go-sqlite3"

// driverName is the database/sql driver registered for the metadata
// database (spec.md §4.14), mirroring internal/segment's own build-tag
// driver split.
const driverName = "sqlite3"
