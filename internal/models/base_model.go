package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BaseModel provides shared fields for all persistent models.
type BaseModel struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate ensures UUID identifiers are generated automatically.
func (m *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

// Audit records who created and last touched a record.
type Audit struct {
	CreatedBy *string `gorm:"size:36;index" json:"created_by,omitempty"`
	UpdatedBy *string `gorm:"size:36" json:"updated_by,omitempty"`
}

// SoftDelete is the status flag flipped by delete and restore. Rows are never
// removed by normal application flow.
type SoftDelete struct {
	IsActive bool `gorm:"not null;default:true;index" json:"is_active"`
}

// StringPtr returns a pointer to s, or nil when s is empty.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
