package database

import (
	"commitment-wall/models"
	"commitment-wall/storage"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	DB   *gorm.DB
	once sync.Once
	err  error
)

// Init opens the SQLite database at dbPath and auto-migrates the key-value table.
func Init(dbPath string, log *zap.Logger) (*gorm.DB, error) {
	if log == nil {
		log = zap.NewNop()
	}
	once.Do(func() {
		if err = storage.EnsureDataDir(dbPath); err != nil {
			return
		}

		DB, err = Open(dbPath)
		if err != nil {
			log.Error("Failed to connect to database", zap.String("path", dbPath), zap.Error(err))
			return
		}
		log.Info("Database connection established", zap.String("path", dbPath))
	})
	return DB, err
}

// Open connects to dsn and migrates the schema without touching the package-level DB.
func Open(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database '%s': %w", dsn, err)
	}

	if err := db.AutoMigrate(&models.KVEntry{}); err != nil {
		return nil, fmt.Errorf("failed to auto-migrate database schema: %w", err)
	}
	return db, nil
}

// Close releases the underlying connection pool.
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
