package services

import "github.com/charlesng35/happycat/internal/models"

// Actor is the authenticated caller of a service operation.
type Actor struct {
	UserID string
	Role   string
}

// IsAdmin reports whether the actor is an administrator.
func (a Actor) IsAdmin() bool {
	return a.Role == models.RoleAdmin
}

// IsStaff reports whether the actor teaches or administers.
func (a Actor) IsStaff() bool {
	return a.Role == models.RoleAdmin || a.Role == models.RoleTeacher
}

// CanAccess reports whether the actor may read or change data owned by userID.
func (a Actor) CanAccess(userID string) bool {
	return a.IsStaff() || a.UserID == userID
}
