package database

import (
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// OpenSQLite opens (creating if needed) a SQLite file. It backs local dry
// runs with DB_DRIVER=sqlite and the test suites.
func OpenSQLite(path string, level logger.LogLevel) (*gorm.DB, error) {
	return gorm.Open(sqlite.Open(path+"?_busy_timeout=5000"), &gorm.Config{
		Logger: NewGormLogger(level),
	})
}
