package models

import "time"

// KVEntry is one key of the key-value store backing the wall
type KVEntry struct {
	Key       string    `gorm:"primaryKey"`           // Item key, e.g. "commitments"
	Value     string    `gorm:"type:text;not null"`   // Serialized value
	UpdatedAt time.Time                               // Last write
}
