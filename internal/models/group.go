package models

import "time"

// Group member roles.
const (
	GroupRoleOwner  = "OWNER"
	GroupRoleMember = "MEMBER"
)

// Group is a chat space, usually mirroring a class.
type Group struct {
	BaseModel
	Audit
	SoftDelete

	Name        string  `gorm:"not null" json:"name"`
	Description string  `json:"description,omitempty"`
	OwnerID     string  `gorm:"size:36;not null;index" json:"owner_id"`
	ClassID     *string `gorm:"size:36;index" json:"class_id,omitempty"`

	Members []GroupMember `gorm:"constraint:OnDelete:CASCADE" json:"members,omitempty"`
}

// GroupMember links a user to a group.
type GroupMember struct {
	GroupID  string    `gorm:"primaryKey;size:36" json:"group_id"`
	UserID   string    `gorm:"primaryKey;size:36" json:"user_id"`
	Role     string    `gorm:"size:16;not null" json:"role"`
	JoinedAt time.Time `json:"joined_at"`
}

// GroupMessage is a chat message. ReplyTo points at the parent message for
// threaded replies.
type GroupMessage struct {
	BaseModel
	SoftDelete

	GroupID  string     `gorm:"size:36;not null;index" json:"group_id"`
	SenderID string     `gorm:"size:36;not null;index" json:"sender_id"`
	Content  string     `gorm:"type:text;not null" json:"content"`
	ReplyTo  *string    `gorm:"size:36;index" json:"reply_to,omitempty"`
	IsEdited bool       `gorm:"not null;default:false" json:"is_edited"`
	EditedAt *time.Time `json:"edited_at,omitempty"`
}

// GroupMessageRead marks a message as read by a user.
type GroupMessageRead struct {
	MessageID string    `gorm:"primaryKey;size:36" json:"message_id"`
	UserID    string    `gorm:"primaryKey;size:36" json:"user_id"`
	GroupID   string    `gorm:"size:36;not null;index" json:"group_id"`
	ReadAt    time.Time `json:"read_at"`
}
