//go:build sqlite_cgo

package database

import (
	_ "github.com/mattn/go-sqlite3" // cgo-accelerated driver, opt-in build
)

const sqlDriverName = "sqlite3"
