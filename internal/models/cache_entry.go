package models

import "time"

// CacheEntry is a row of the database-backed cache. A zero ExpiresAt never expires.
type CacheEntry struct {
	Key       string    `gorm:"primaryKey;size:256"`
	Value     []byte
	ExpiresAt time.Time `gorm:"index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Expired reports whether the entry has lapsed at now.
func (e *CacheEntry) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && now.After(e.ExpiresAt)
}
