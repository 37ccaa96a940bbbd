//go:build !cgo

package db

import (
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

// SQLiteDialector: czysty Go (modernc) dla buildów bez cgo, np. cross-compile na Windows.
func SQLiteDialector(dsn string) gorm.Dialector {
	return sqlite.Open(dsn)
}
