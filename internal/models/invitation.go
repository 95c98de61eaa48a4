package models

import "time"

// Invitation code types.
const (
	InvitationGroupJoin = "GROUP_JOIN"
	InvitationReferral  = "REFERRAL"
)

// History invitation statuses.
const (
	HistoryInvitationPending  = "PENDING"
	HistoryInvitationAccepted = "ACCEPTED"
	HistoryInvitationRejected = "REJECTED"
)

// InvitationCode is a shareable code created by a teacher or parent that
// students use during registration.
type InvitationCode struct {
	BaseModel
	SoftDelete

	Code        string     `gorm:"uniqueIndex;size:32;not null" json:"code"`
	CreatedBy   string     `gorm:"size:36;not null;index" json:"created_by"`
	Event       string     `json:"event"`
	Description string     `json:"description"`
	Type        string     `gorm:"size:16;not null" json:"type"`
	TotalUses   int        `gorm:"not null;default:0" json:"total_uses"`
	UsesLeft    int        `gorm:"not null;default:0" json:"uses_left"`
	StartedAt   time.Time  `json:"started_at"`
	ExpiredAt   *time.Time `gorm:"index" json:"expired_at,omitempty"`
}

// Usable reports whether the code can still be redeemed at now.
func (c *InvitationCode) Usable(now time.Time) bool {
	if !c.IsActive || c.UsesLeft <= 0 {
		return false
	}
	if now.Before(c.StartedAt) {
		return false
	}
	return c.ExpiredAt == nil || now.Before(*c.ExpiredAt)
}

// HistoryInvitation records a redemption of an invitation code.
type HistoryInvitation struct {
	BaseModel

	UserID    string    `gorm:"size:36;not null;index" json:"user_id"`
	InviteeID string    `gorm:"size:36;not null;index" json:"invitee_id"`
	Code      string    `gorm:"size:32;not null" json:"code"`
	InvitedAt time.Time `json:"invited_at"`
	Status    string    `gorm:"size:16;not null" json:"status"`
}
