package tests

import (
	"commitment-wall/models"
	"commitment-wall/views"
	"fmt"
	"log"
	"sync"

	"github.com/gofiber/fiber/v2"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	testDB    *gorm.DB
	onceDB    sync.Once
	dbInitErr error
)

// SetupTestDB initializes an in-memory SQLite database for testing
// and migrates the schema.
func SetupTestDB() (*gorm.DB, error) {
	onceDB.Do(func() {
		testDB, dbInitErr = gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if dbInitErr != nil {
			log.Printf("Failed to connect to in-memory test database: %v", dbInitErr)
			return
		}

		// A single connection keeps every query on the same in-memory database.
		if sqlDB, err := testDB.DB(); err == nil {
			sqlDB.SetMaxOpenConns(1)
		}

		dbInitErr = testDB.AutoMigrate(&models.KVEntry{})
		if dbInitErr != nil {
			log.Printf("Failed to auto-migrate test database schema: %v", dbInitErr)
			return
		}
	})
	return testDB, dbInitErr
}

// CreateTestApp initializes a new Fiber app with the wall views for testing purposes.
func CreateTestApp() *fiber.App {
	app := fiber.New(fiber.Config{
		Views:     views.New(),
		BodyLimit: 8 * 1024 * 1024,
		Immutable: true,
		ErrorHandler: func(ctx *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			ctx.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
			return ctx.Status(code).SendString(err.Error())
		},
	})
	return app
}

// TeardownTestDB closes the test database connection.
func TeardownTestDB(db *gorm.DB) {
	if db != nil {
		sqlDB, err := db.DB()
		if err == nil {
			if err := sqlDB.Close(); err != nil {
				log.Printf("Error closing test database: %v", err)
			}
		}
	}
}

// ClearKVEntries deletes all entries from the key-value table.
func ClearKVEntries(db *gorm.DB) error {
	if err := db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.KVEntry{}).Error; err != nil {
		return fmt.Errorf("failed to delete kv entries: %w", err)
	}
	return nil
}
