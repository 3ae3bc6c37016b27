package database

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"go-pricebook-sync/internal/model"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ConnectDB opens the postgres pool from DATABASE_URL or the DB_* variables.
// DB_DRIVER=sqlite opens DB_PATH instead.
func ConnectDB() *gorm.DB {
	if strings.EqualFold(os.Getenv("DB_DRIVER"), "sqlite") {
		path := os.Getenv("DB_PATH")
		if path == "" {
			path = "pricebook.db"
		}
		db, err := OpenSQLite(path, logger.Warn)
		if err != nil {
			log.Fatal("Failed to open sqlite database. \n", err)
		}
		log.Println("SQLite database opened:", path)
		return db
	}

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		dsn = fmt.Sprintf(
			"host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
			os.Getenv("DB_HOST"),
			os.Getenv("DB_USER"),
			os.Getenv("DB_PASSWORD"),
			os.Getenv("DB_NAME"),
			os.Getenv("DB_PORT"),
		)
	}

	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  dsn,
		PreferSimpleProtocol: true, // Disables implicit prepared statements for pooled (transaction mode) connections
	}), &gorm.Config{
		Logger:      NewGormLogger(logger.Warn),
		PrepareStmt: false,
	})

	if err != nil {
		log.Fatal("Failed to connect to database. \n", err)
	}

	// Each applier call holds a connection only for its own record, so a
	// modest pool is enough
	sqlDB, _ := db.DB()
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	log.Println("Database connection established")
	return db
}

// NewGormLogger logs SQL through the standard logger.
func NewGormLogger(level logger.LogLevel) logger.Interface {
	return logger.New(
		log.New(log.Writer(), "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  level,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
}

// Migrate creates or updates every table the sync engine owns.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(model.AllModels()...)
}
