package models

import (
	"time"

	"gorm.io/datatypes"
)

// Support ticket statuses.
const (
	SupportOpen       = "OPEN"
	SupportInProgress = "IN_PROGRESS"
	SupportResolved   = "RESOLVED"
	SupportClosed     = "CLOSED"
)

// Feedback types.
const (
	FeedbackGeneral = "GENERAL"
	FeedbackBug     = "BUG"
	FeedbackContent = "CONTENT"
	FeedbackFeature = "FEATURE"
)

// Support is a help desk ticket.
type Support struct {
	BaseModel

	UserID      string                      `gorm:"size:36;not null;index" json:"user_id"`
	Subject     string                      `gorm:"not null" json:"subject"`
	Message     string                      `gorm:"type:text;not null" json:"message"`
	Attachments datatypes.JSONSlice[string] `json:"attachments,omitempty"`
	Status      string                      `gorm:"size:16;not null;index" json:"status"`
	AssignedTo  *string                     `gorm:"size:36;index" json:"assigned_to,omitempty"`
	Response    string                      `gorm:"type:text" json:"response,omitempty"`
	ResolvedAt  *time.Time                  `json:"resolved_at,omitempty"`
}

// Feedback is free-form product feedback.
type Feedback struct {
	BaseModel

	UserID     string     `gorm:"size:36;not null;index" json:"user_id"`
	Type       string     `gorm:"size:16;not null" json:"type"`
	Title      string     `gorm:"not null" json:"title"`
	Content    string     `gorm:"type:text;not null" json:"content"`
	Rating     *int       `json:"rating,omitempty"`
	RelatedID  *string    `gorm:"size:36" json:"related_id,omitempty"`
	IsResolved bool       `gorm:"not null;default:false;index" json:"is_resolved"`
	ResolvedBy *string    `gorm:"size:36" json:"resolved_by,omitempty"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}
