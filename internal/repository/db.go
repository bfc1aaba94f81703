package repository

import (
	"fmt"
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const InMemory = ":memory:"

// NewSQLiteDB opens <dataDir>/history.db, or a private in-memory database
// when dataDir is InMemory.
func NewSQLiteDB(dataDir string) (*gorm.DB, error) {
	dsn := InMemory
	if dataDir != InMemory {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		dsn = filepath.Join(dataDir, "history.db") + "?_busy_timeout=5000&_journal_mode=WAL"
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}
	if dsn == InMemory {
		// every connection would get its own empty database
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}
	if err := db.AutoMigrate(&Attempt{}, &Transition{}); err != nil {
		return nil, err
	}
	return db, nil
}
