//go:build !cgo

package store

import _ "modernc.org/sqlite"

// driverName is the pure-Go fallback driver, selected when CGO_ENABLED=0
// (see internal/segment/driver_purego.go for the identical rationale).
const driverName = "sqlite"
