//go:build cgo

package db

import (
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// SQLiteDialector: sterownik mattn/go-sqlite3 gdy mamy cgo.
func SQLiteDialector(dsn string) gorm.Dialector {
	return sqlite.Open(dsn)
}
