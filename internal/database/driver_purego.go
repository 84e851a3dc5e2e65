//go:build !sqlite_cgo

package database

import (
	_ "modernc.org/sqlite" // pure Go driver, default build
)

// sqlDriverName is the database/sql driver name to open connections with.
// The pure Go driver is the default; build with -tags sqlite_cgo to link
// the cgo-accelerated driver instead.
const sqlDriverName = "sqlite"
