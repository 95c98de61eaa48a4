package models

import "time"

// Token is the server-side record backing a bearer credential issued to one
// device. Revocation is terminal; a later login on the same device replaces
// the hash and clears the flag.
type Token struct {
	BaseModel

	UserID      string     `gorm:"size:36;not null;uniqueIndex:idx_tokens_user_device" json:"user_id"`
	DeviceID    string     `gorm:"size:128;not null;uniqueIndex:idx_tokens_user_device" json:"device_id"`
	TokenHash   string     `gorm:"size:64;not null" json:"-"`
	RefreshHash string     `gorm:"size:64" json:"-"`
	IsRevoked   bool       `gorm:"not null;default:false;index" json:"is_revoked"`
	RevokedAt   *time.Time `json:"revoked_at,omitempty"`
	LastSeen    *time.Time `json:"last_seen,omitempty"`
}
