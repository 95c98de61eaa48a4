package models

import "time"

// Badge is an achievement definition.
type Badge struct {
	BaseModel
	Audit
	SoftDelete

	Name          string `gorm:"uniqueIndex;size:191;not null" json:"name"`
	Description   string `json:"description"`
	IconURL       string `json:"icon_url"`
	Type          string `gorm:"size:16;not null" json:"type"`
	Level         int    `gorm:"not null;default:1" json:"level"`
	Criteria      string `json:"criteria"`
	TriggerEvent  string `gorm:"size:64" json:"trigger_event,omitempty"`
	RequiredValue int    `gorm:"not null;default:0" json:"required_value"`
}

// UserBadge is an award of a badge to a user. Revoke and restore toggle
// IsRevoked.
type UserBadge struct {
	BaseModel

	UserID    string     `gorm:"size:36;not null;uniqueIndex:idx_user_badges_user_badge" json:"user_id"`
	BadgeID   string     `gorm:"size:36;not null;uniqueIndex:idx_user_badges_user_badge" json:"badge_id"`
	AwardedAt time.Time  `json:"awarded_at"`
	AwardedBy *string    `gorm:"size:36" json:"awarded_by,omitempty"`
	Reason    string     `json:"reason,omitempty"`
	Note      string     `json:"note,omitempty"`
	IsRevoked bool       `gorm:"not null;default:false;index" json:"is_revoked"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
}
