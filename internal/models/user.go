package models

import "time"

// Roles.
const (
	RoleStudent = "STUDENT"
	RoleTeacher = "TEACHER"
	RoleParent  = "PARENT"
	RoleAdmin   = "ADMIN"
)

// Sign-in providers.
const (
	ProviderLocal    = "local"
	ProviderGoogle   = "google"
	ProviderFacebook = "facebook"
)

// User is a learner, teacher, parent or administrator account.
type User struct {
	BaseModel
	SoftDelete

	Username string     `gorm:"uniqueIndex;size:64;not null" json:"username"`
	Email    string     `gorm:"uniqueIndex;size:255;not null" json:"email"`
	Password string     `gorm:"not null" json:"-"`
	Fullname string     `json:"fullname"`
	Phone    string     `json:"phone,omitempty"`
	Avatar   string     `json:"avatar,omitempty"`
	Birthday *time.Time `json:"birthday,omitempty"`

	Role           string `gorm:"size:16;not null;default:STUDENT;index" json:"role"`
	AccountPackage string `gorm:"size:32;not null;default:FREE" json:"account_package"`

	IsVerify      bool       `gorm:"not null;default:false" json:"is_verify"`
	CodeVerify    string     `gorm:"size:16" json:"-"`
	CodeExpiresAt *time.Time `json:"-"`
	InvitedBy     *string    `gorm:"size:36;index" json:"invited_by,omitempty"`

	SchoolID *string `gorm:"size:36;index" json:"school_id,omitempty"`
	ClassID  *string `gorm:"size:36;index" json:"class_id,omitempty"`

	Provider   string `gorm:"size:16;not null;default:local" json:"provider"`
	ProviderID string `gorm:"size:128;index" json:"-"`

	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

// IsStudent reports whether the account belongs to a learner.
func (u *User) IsStudent() bool {
	return u.Role == RoleStudent
}
