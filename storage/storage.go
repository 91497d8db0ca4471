package storage

import (
	"commitment-wall/models"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// EnsureDataDir creates the parent directory of dbPath if it doesn't exist.
// In-memory DSNs are left alone.
func EnsureDataDir(dbPath string) error {
	if dbPath == "" || strings.HasPrefix(dbPath, "file:") || strings.Contains(dbPath, ":memory:") {
		return nil
	}
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory '%s': %w", dir, err)
	}
	return nil
}

// KVStore is a string key-value store in the manner of browser local storage.
type KVStore struct {
	db *gorm.DB
}

// NewKVStore wraps db, which must have models.KVEntry migrated.
func NewKVStore(db *gorm.DB) *KVStore {
	return &KVStore{db: db}
}

// GetItem returns the value stored under key. ok is false when the key is absent.
func (s *KVStore) GetItem(ctx context.Context, key string) (value string, ok bool, err error) {
	var entry models.KVEntry
	result := s.db.WithContext(ctx).Where(&models.KVEntry{Key: key}).Take(&entry)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to read item '%s': %w", key, result.Error)
	}
	return entry.Value, true, nil
}

// SetItem replaces the value stored under key.
func (s *KVStore) SetItem(ctx context.Context, key, value string) error {
	entry := models.KVEntry{Key: key, Value: value}
	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&entry)
	if result.Error != nil {
		return fmt.Errorf("failed to write item '%s': %w", key, result.Error)
	}
	return nil
}

// RemoveItem deletes key. Removing an absent key is not an error.
func (s *KVStore) RemoveItem(ctx context.Context, key string) error {
	result := s.db.WithContext(ctx).Where(&models.KVEntry{Key: key}).Delete(&models.KVEntry{})
	if result.Error != nil {
		return fmt.Errorf("failed to remove item '%s': %w", key, result.Error)
	}
	return nil
}
