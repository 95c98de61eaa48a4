package models

import "time"

// CacheEntry backs the database cache driver. Rate-limit counters live in
// Counter; cached payloads live in Value. A nil ExpiresAt never expires.
type CacheEntry struct {
	Key       string     `gorm:"primaryKey;size:255"`
	Value     []byte     `gorm:"type:blob"`
	Counter   int64      `gorm:"not null;default:0"`
	ExpiresAt *time.Time `gorm:"index"`
	UpdatedAt time.Time
}

func (CacheEntry) TableName() string { return "cache_entries" }

// Live reports whether the entry is still valid at now.
func (e CacheEntry) Live(now time.Time) bool {
	return e.ExpiresAt == nil || now.Before(*e.ExpiresAt)
}
